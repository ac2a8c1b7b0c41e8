package dispatch

import "errors"

// ErrNoCapacity is returned when dispatchOnce exhausts maxTryClaim in
// courteous mode without finding capacity and ForceCall is false. It is a
// null result, not a failure to classify or retry.
var ErrNoCapacity = errors.New("dispatch: no capacity available")

// ErrNoBackends is returned when the Load Balancer is empty.
var ErrNoBackends = errors.New("dispatch: no backends registered")
