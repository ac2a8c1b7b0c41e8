package retry

import (
	"flag"
	"fmt"
	"math/rand"
	"time"
)

// PolicyKind selects a built-in Policy by name, for configuration files and
// flags that cannot carry a function value directly.
type PolicyKind string

const (
	PolicyLinear      PolicyKind = "linear"
	PolicyExponential PolicyKind = "exponential"
)

// Config is the enumerated Error Handler configuration.
type Config struct {
	PolicyKind PolicyKind    `yaml:"policy"`
	BaseMillis uint32        `yaml:"base_millis"`
	CapMillis  uint32        `yaml:"cap_millis"`
	// LinearCeiling bounds errorCount in the linear policy; not part of the
	// distilled enumeration but needed to realize "min(errorCount, ceiling)".
	LinearCeiling int `yaml:"linear_ceiling"`
}

var DefaultConfig = Config{
	PolicyKind:    PolicyExponential,
	BaseMillis:    10,
	CapMillis:     2000,
	LinearCeiling: 5,
}

func (c *Config) RegisterFlags(prefix string, f *flag.FlagSet) {
	*c = DefaultConfig
	f.Func(prefix+".policy", "Backoff policy: linear or exponential.", func(s string) error {
		switch PolicyKind(s) {
		case PolicyLinear, PolicyExponential:
			c.PolicyKind = PolicyKind(s)
			return nil
		default:
			return fmt.Errorf("unknown policy %q", s)
		}
	})
	f.Func(prefix+".base-millis", "Base backoff delay, in milliseconds.", uint32Flag(&c.BaseMillis, DefaultConfig.BaseMillis))
	f.Func(prefix+".cap-millis", "Maximum backoff delay, in milliseconds.", uint32Flag(&c.CapMillis, DefaultConfig.CapMillis))
	f.IntVar(&c.LinearCeiling, prefix+".linear-ceiling", DefaultConfig.LinearCeiling, "Error-count ceiling for the linear policy.")
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
	switch c.PolicyKind {
	case PolicyLinear, PolicyExponential:
	default:
		return fmt.Errorf("retry: unknown policy %q", c.PolicyKind)
	}
	if c.BaseMillis == 0 {
		return fmt.Errorf("retry: base-millis must be > 0")
	}
	if c.CapMillis < c.BaseMillis {
		return fmt.Errorf("retry: cap-millis must be >= base-millis")
	}
	if c.LinearCeiling <= 0 {
		return fmt.Errorf("retry: linear-ceiling must be > 0")
	}
	return nil
}

// Build constructs the HTTP-aware Policy (fatal-on-4xx wrapping the
// configured backoff shape) described by the configuration.
func (c Config) Build(rng *rand.Rand) Policy {
	base := time.Duration(c.BaseMillis) * time.Millisecond
	capDelay := time.Duration(c.CapMillis) * time.Millisecond

	var inner Policy
	switch c.PolicyKind {
	case PolicyLinear:
		inner = Linear(base, c.LinearCeiling)
	default:
		inner = Exponential(base, capDelay, rng)
	}
	return FatalOn4xx(inner)
}
