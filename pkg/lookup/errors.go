package lookup

import "errors"

// ErrTooManyAccounts is returned by Query when the account set exceeds
// MaxAccounts, the hard cap imposed by the 64-bit cover bitmask.
var ErrTooManyAccounts = errors.New("lookup: query account set exceeds the 64-account bitmask cap")
