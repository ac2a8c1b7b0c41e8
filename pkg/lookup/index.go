package lookup

import (
	"context"
	"sort"

	"go.uber.org/atomic"
)

// Index is the Partitioned Index: partitions[0..P-1], each holding the
// tables fetched for that shard, plus a flat allTables view sorted by
// numUniqueAccounts descending. Partitions are published independently by
// the table fetcher (pkg/tablefetch); allTables is republished only when
// PublishAllTables is called, which the fetcher does after every fetch
// cycle and after a disk-cache bootstrap that loaded at least 80% of
// partitions.
type Index struct {
	cfg        Config
	partitions []atomic.Pointer[[]LookupTable]
	allTables  atomic.Pointer[[]LookupTable]
}

// NewIndex allocates an Index with cfg.NumPartitions empty partition slots.
func NewIndex(cfg Config) *Index {
	return &Index{
		cfg:        cfg,
		partitions: make([]atomic.Pointer[[]LookupTable], cfg.NumPartitions),
	}
}

// NumPartitions returns P.
func (idx *Index) NumPartitions() int {
	return len(idx.partitions)
}

// SetPartition stores tables at partition p, replacing anything previously
// stored there. Safe for concurrent use across distinct p values; the
// fetcher's worker pool guarantees at most one writer per p at a time.
func (idx *Index) SetPartition(p int, tables []LookupTable) {
	cp := append([]LookupTable{}, tables...)
	idx.partitions[p].Store(&cp)
}

// PartitionLoaded reports whether partition p has been populated.
func (idx *Index) PartitionLoaded(p int) bool {
	return idx.partitions[p].Load() != nil
}

// PopulatedFraction returns the fraction of partitions currently loaded,
// in [0,1].
func (idx *Index) PopulatedFraction() float64 {
	if len(idx.partitions) == 0 {
		return 1
	}
	loaded := 0
	for i := range idx.partitions {
		if idx.partitions[i].Load() != nil {
			loaded++
		}
	}
	return float64(loaded) / float64(len(idx.partitions))
}

// PublishAllTables recomputes and atomically republishes the flat
// allTables view, sorted by numUniqueAccounts descending. Readers observe
// this via a relaxed (opaque) load and tolerate an older snapshot, per the
// release/acquire publish contract.
func (idx *Index) PublishAllTables() {
	var flat []LookupTable
	for i := range idx.partitions {
		if p := idx.partitions[i].Load(); p != nil {
			flat = append(flat, (*p)...)
		}
	}
	sort.SliceStable(flat, func(i, j int) bool {
		return flat[i].NumUniqueAccounts() > flat[j].NumUniqueAccounts()
	})
	idx.allTables.Store(&flat)
}

// AllTables returns the most recently published flat view. May be nil if
// no partition has ever been published.
func (idx *Index) AllTables() []LookupTable {
	p := idx.allTables.Load()
	if p == nil {
		return nil
	}
	return *p
}

// Query answers "which tables together contain accounts", per the
// Discovery Index's three-step algorithm: parallel windowed scoring over
// the published allTables snapshot, a stable merge by descending score,
// and a greedy bitmask-pruned cover. The query path never calls the Call
// Dispatcher; it is pure in-memory computation against whatever snapshot
// AllTables currently holds.
func (idx *Index) Query(ctx context.Context, accounts []Address) ([]LookupTable, error) {
	if len(accounts) > MaxAccounts {
		return nil, ErrTooManyAccounts
	}
	if len(accounts) == 0 {
		return nil, nil
	}

	merged, err := scoreAllTables(ctx, idx.AllTables(), accounts, int(idx.cfg.NumPartitionsPerQuery), int(idx.cfg.TopTablesPerPartition), idx.cfg.MinScore)
	if err != nil {
		return nil, err
	}
	return greedyCover(merged, accounts), nil
}
