package lookup

import (
	"flag"
	"fmt"
	"time"
)

// Config is the enumerated Discovery Index configuration.
type Config struct {
	NumPartitions          uint32        `yaml:"num_partitions"`
	MaxConcurrentRequests  uint32        `yaml:"max_concurrent_requests"`
	ReloadDelay            time.Duration `yaml:"reload_delay"`
	NumPartitionsPerQuery  uint32        `yaml:"num_partitions_per_query"`
	TopTablesPerPartition  uint32        `yaml:"top_tables_per_partition"`
	MinScore               uint32        `yaml:"min_score"`
	CacheDirectory         string        `yaml:"cache_directory"`
}

// DefaultConfig mirrors the motivating deployment's defaults: 257
// partitions, a zero ReloadDelay meaning "refresh disabled" (the fetcher
// treats zero as no periodic reload, consistent with the distilled spec's
// `duration | none`).
var DefaultConfig = Config{
	NumPartitions:         257,
	MaxConcurrentRequests: 16,
	ReloadDelay:           0,
	NumPartitionsPerQuery: 8,
	TopTablesPerPartition: 4,
	MinScore:              1,
	CacheDirectory:        "",
}

func (c *Config) RegisterFlags(prefix string, f *flag.FlagSet) {
	*c = DefaultConfig
	f.Func(prefix+".num-partitions", "Number of keyspace partitions (P).", uint32Flag(&c.NumPartitions, DefaultConfig.NumPartitions))
	f.Func(prefix+".max-concurrent-requests", "Worker ceiling (W) for the partitioned table fetcher.", uint32Flag(&c.MaxConcurrentRequests, DefaultConfig.MaxConcurrentRequests))
	f.DurationVar(&c.ReloadDelay, prefix+".reload-delay", DefaultConfig.ReloadDelay, "Delay between fetch cycles; zero disables periodic refresh.")
	f.Func(prefix+".num-partitions-per-query", "Number of parallel scoring windows per query.", uint32Flag(&c.NumPartitionsPerQuery, DefaultConfig.NumPartitionsPerQuery))
	f.Func(prefix+".top-tables-per-partition", "Bounded buffer size per scoring window.", uint32Flag(&c.TopTablesPerPartition, DefaultConfig.TopTablesPerPartition))
	f.Func(prefix+".min-score", "Tables scoring at or below this are rejected.", uint32Flag(&c.MinScore, DefaultConfig.MinScore))
	f.StringVar(&c.CacheDirectory, prefix+".cache-directory", DefaultConfig.CacheDirectory, "Directory holding per-partition cache files; empty disables the disk cache.")
}

func uint32Flag(dst *uint32, def uint32) func(string) error {
	*dst = def
	return func(s string) error {
		var v uint32
		if _, err := fmt.Sscanf(s, "%d", &v); err != nil {
			return err
		}
		*dst = v
		return nil
	}
}

func (c *Config) Validate() error {
	if c.NumPartitions == 0 {
		return fmt.Errorf("lookup: num-partitions must be > 0")
	}
	if c.MaxConcurrentRequests == 0 {
		return fmt.Errorf("lookup: max-concurrent-requests must be > 0")
	}
	if c.NumPartitionsPerQuery == 0 {
		return fmt.Errorf("lookup: num-partitions-per-query must be > 0")
	}
	if c.TopTablesPerPartition == 0 {
		return fmt.Errorf("lookup: top-tables-per-partition must be > 0")
	}
	if c.ReloadDelay < 0 {
		return fmt.Errorf("lookup: reload-delay must be >= 0")
	}
	return nil
}
