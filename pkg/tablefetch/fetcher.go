// Package tablefetch implements the Partitioned Table Fetcher: a
// concurrency-controlled crawler that populates a lookup.Index's
// partitions via calls dispatched through the Call Dispatcher.
package tablefetch

import (
	"context"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/grafana/dskit/concurrency"

	"github.com/sava-software/rpc-core/pkg/balancer"
	clockpkg "github.com/sava-software/rpc-core/pkg/clock"
	"github.com/sava-software/rpc-core/pkg/dispatch"
	"github.com/sava-software/rpc-core/pkg/lookup"
	"github.com/sava-software/rpc-core/pkg/partitioncache"
)

// PartitionCallHandler fetches the tables for one partition from the given
// backend. It is the "partitionCallHandlers[p].call()" of the distilled
// spec, parameterized over the backend type shared with the rest of the
// core.
type PartitionCallHandler[B any] func(ctx context.Context, backend B, partition int) ([]lookup.LookupTable, error)

// Fetcher owns the periodic crawl that keeps a lookup.Index populated.
type Fetcher[B any] struct {
	Index      *lookup.Index
	Balancer   *balancer.LoadBalancer[B]
	Handler    PartitionCallHandler[B]
	Classify   dispatch.Classifier
	Call       dispatch.CallContext
	Workers    int
	Cache      *partitioncache.Store // nil disables the disk cache
	ReloadDelay time.Duration
	Clock      clockpkg.Clock
	Logger     log.Logger

	readyOnce sync.Once
	ready     chan struct{}
}

// DefaultCallContext is the high-retry-budget courteous call context the
// fetcher uses for partition fetches, per §4.5 of the specification.
var DefaultCallContext = dispatch.CallContext{
	MaxRetries:      15,
	CallWeight:      1,
	MeasureCallTime: true,
	MaxTryClaim:     5,
	ForceCall:       false,
	Mode:            dispatch.Courteous,
}

func (f *Fetcher[B]) logger() log.Logger {
	if f.Logger == nil {
		return log.NewNopLogger()
	}
	return f.Logger
}

func (f *Fetcher[B]) clock() clockpkg.Clock {
	if f.Clock == nil {
		return clockpkg.New()
	}
	return f.Clock
}

// Ready returns a channel closed once the index is considered initialized:
// either the disk-cache bootstrap loaded at least 80% of partitions, or a
// live fetch cycle completed. It is safe to call before Bootstrap/Run.
func (f *Fetcher[B]) Ready() <-chan struct{} {
	f.initReady()
	return f.ready
}

func (f *Fetcher[B]) initReady() {
	f.readyOnce.Do(func() {
		f.ready = make(chan struct{})
	})
}

func (f *Fetcher[B]) signalReady() {
	f.initReady()
	select {
	case <-f.ready:
	default:
		close(f.ready)
	}
}

// Bootstrap attempts to load every partition from the disk cache. If at
// least 80% load successfully, the index is considered initialized and
// Ready() fires; otherwise bootstrap leaves whatever partial state it
// found and the first live fetch cycle completes initialization.
func (f *Fetcher[B]) Bootstrap(ctx context.Context) {
	if f.Cache == nil {
		return
	}
	n := f.Index.NumPartitions()
	loaded := 0
	for p := 0; p < n; p++ {
		tables, err := f.Cache.Load(p)
		if err != nil {
			if err != partitioncache.ErrNotPresent {
				level.Warn(f.logger()).Log("msg", "partition cache load failed", "partition", p, "err", err)
			}
			continue
		}
		f.Index.SetPartition(p, tables)
		loaded++
	}
	level.Info(f.logger()).Log("msg", "bootstrapped partitions from disk cache", "loaded", loaded, "total", n)
	if n > 0 && float64(loaded)/float64(n) >= 0.8 {
		f.Index.PublishAllTables()
		f.signalReady()
	}
}

// FetchAll runs one full crawl cycle: W workers pull partitions from a
// shared counter (via dskit's ForEachJob), each dispatching its fetch
// through the Call Dispatcher in courteous mode. Partition failures are
// logged and left for the next cycle; FetchAll itself only returns an
// error if ctx is cancelled.
func (f *Fetcher[B]) FetchAll(ctx context.Context) error {
	n := f.Index.NumPartitions()
	workers := f.Workers
	if workers <= 0 {
		workers = 1
	}

	err := concurrency.ForEachJob(ctx, n, workers, func(ctx context.Context, p int) error {
		d := dispatch.New[B, []lookup.LookupTable](f.Balancer, func(ctx context.Context, b B) ([]lookup.LookupTable, error) {
			return f.Handler(ctx, b, p)
		}, f.Call, f.Classify, f.clock())

		start := f.clock().Now()
		tables, err := d.Get(ctx)
		if err != nil {
			level.Error(f.logger()).Log("msg", "partition fetch failed", "partition", p, "err", err)
			return nil
		}
		wall := f.clock().Now().Sub(start)

		f.Index.SetPartition(p, tables)
		if f.Cache != nil {
			if err := f.Cache.Store(p, tables); err != nil {
				level.Warn(f.logger()).Log("msg", "partition cache write failed", "partition", p, "err", err)
			}
		}

		level.Info(f.logger()).Log("msg", "partition load completed",
			"partition", p,
			"table_count", len(tables),
			"avg_unique_accounts", averageUniqueAccounts(tables),
			"wall_duration", wall)
		return nil
	})
	if err != nil {
		return err
	}

	f.Index.PublishAllTables()
	f.signalReady()
	level.Info(f.logger()).Log("msg", "completed partition fetch cycle", "populated_fraction", f.Index.PopulatedFraction())
	return nil
}

// averageUniqueAccounts computes the mean NumUniqueAccounts() across tables,
// for the per-partition load summary. Returns 0 for an empty partition.
func averageUniqueAccounts(tables []lookup.LookupTable) float64 {
	if len(tables) == 0 {
		return 0
	}
	total := 0
	for _, t := range tables {
		total += t.NumUniqueAccounts()
	}
	return float64(total) / float64(len(tables))
}

// Run bootstraps from cache, then repeatedly calls FetchAll separated by
// ReloadDelay until ctx is cancelled. A zero ReloadDelay means "refresh
// disabled": Run performs exactly one fetch cycle and returns.
func (f *Fetcher[B]) Run(ctx context.Context) error {
	f.Bootstrap(ctx)

	for {
		if err := f.FetchAll(ctx); err != nil {
			return err
		}
		if f.ReloadDelay <= 0 {
			return nil
		}

		timer := f.clock().Timer(f.ReloadDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
