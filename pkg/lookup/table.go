// Package lookup implements the Discovery Index: a partitioned, in-memory
// array of reference tables that scores them against a query account set
// and returns a near-minimal covering subset.
package lookup

// Address identifies a LookupTable or a queried account: a 32-byte public
// key, opaque to the core.
type Address [32]byte

// LookupTable is the opaque reference-table object the Discovery Index
// ranks and covers. Implementations are supplied by the embedding
// application (e.g. a deserialized Solana address-lookup-table account).
type LookupTable interface {
	// Address identifies the table itself.
	Address() Address
	// Contains reports whether account appears in the table.
	Contains(account Address) bool
	// NumUniqueAccounts is the table's addressable size, used to order the
	// flat allTables view.
	NumUniqueAccounts() int
	// SerializedLen is the byte length the table occupies on the wire, used
	// by the partition cache writer.
	SerializedLen() int
}

// ScoredTable pairs a table with its score against a specific query,
// ordered by descending score then insertion (stable sort).
type ScoredTable struct {
	Score uint32
	Table LookupTable
}
