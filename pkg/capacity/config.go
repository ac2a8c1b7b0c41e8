package capacity

import (
	"flag"
	"fmt"
	"strconv"
)

// Config is the enumerated configuration surface for a CapacityState, per
// the external-interfaces section of the specification this package
// implements: tokens, refillPerSecond, burst, minHealthForSelection.
type Config struct {
	Tokens                uint32  `yaml:"tokens"`
	RefillPerSecond       float64 `yaml:"refill_per_second"`
	Burst                 uint32  `yaml:"burst"`
	MinHealthForSelection float64 `yaml:"min_health_for_selection"`

	// ErrorWindow is the number of recent outcomes the health tracker
	// remembers. Not part of the distilled configuration enumeration, but
	// required to realize "sliding window of recent outcomes" from the
	// data model.
	ErrorWindow int `yaml:"error_window"`
}

// DefaultConfig holds the defaults that RegisterFlags installs and uses as
// flag defaults. Validate does not fill in zero values from it.
var DefaultConfig = Config{
	Tokens:                100,
	RefillPerSecond:       10,
	Burst:                 20,
	MinHealthForSelection: 0.2,
	ErrorWindow:           50,
}

// RegisterFlags registers the config's fields as flags under prefix,
// following the reference codebase's convention of every configurable
// component exposing a RegisterFlags method. flag has no native uint32
// type, so the two bounded fields are registered via flag.Func.
func (c *Config) RegisterFlags(prefix string, f *flag.FlagSet) {
	*c = DefaultConfig

	f.Func(prefix+".tokens", "Token budget for the backend; not read by capacity.New, where burst sets both the initial fill and the refill ceiling.", uint32Setter(&c.Tokens, DefaultConfig.Tokens))
	f.Float64Var(&c.RefillPerSecond, prefix+".refill-per-second", DefaultConfig.RefillPerSecond, "Tokens refilled per second.")
	f.Func(prefix+".burst", "Maximum burst size (and the largest single claim weight supported).", uint32Setter(&c.Burst, DefaultConfig.Burst))
	f.Float64Var(&c.MinHealthForSelection, prefix+".min-health-for-selection", DefaultConfig.MinHealthForSelection, "Health score threshold, in [0,1]; validated but not read by capacity.New or the load balancer, which orders items by raw health.")
	f.IntVar(&c.ErrorWindow, prefix+".error-window", DefaultConfig.ErrorWindow, "Number of recent call outcomes used to compute health.")
}

func uint32Setter(dst *uint32, def uint32) func(string) error {
	*dst = def
	return func(s string) error {
		v, err := strconv.ParseUint(s, 10, 32)
		if err != nil {
			return err
		}
		*dst = uint32(v)
		return nil
	}
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if c.Burst == 0 {
		return fmt.Errorf("capacity: burst must be > 0")
	}
	if c.RefillPerSecond < 0 {
		return fmt.Errorf("capacity: refill-per-second must be >= 0")
	}
	if c.MinHealthForSelection < 0 || c.MinHealthForSelection > 1 {
		return fmt.Errorf("capacity: min-health-for-selection must be in [0,1]")
	}
	if c.ErrorWindow <= 0 {
		return fmt.Errorf("capacity: error-window must be > 0")
	}
	return nil
}
