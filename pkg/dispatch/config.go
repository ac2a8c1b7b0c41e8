package dispatch

import (
	"flag"
	"fmt"
)

// Mode selects one of the three dispatcher invocation strategies.
type Mode string

const (
	// Unchecked does no capacity bookkeeping at all.
	Unchecked Mode = "unchecked"
	// Greedy unconditionally claims capacity (willing to overdraft).
	Greedy Mode = "greedy"
	// Courteous never overdrafts unless ForceCall is set.
	Courteous Mode = "courteous"
)

// CallContext is the enumerated per-call configuration from the external
// interfaces section: maxRetries, callWeight, measureCallTime,
// maxTryClaim, forceCall, and the invocation mode.
type CallContext struct {
	MaxRetries      uint32 `yaml:"max_retries"`
	CallWeight      uint32 `yaml:"call_weight"`
	MeasureCallTime bool   `yaml:"measure_call_time"`
	MaxTryClaim     uint32 `yaml:"max_try_claim"`
	ForceCall       bool   `yaml:"force_call"`
	Mode            Mode   `yaml:"mode"`
}

// DefaultCallContext matches the defaults enumerated in the specification.
var DefaultCallContext = CallContext{
	MaxRetries:      7,
	CallWeight:      1,
	MeasureCallTime: true,
	MaxTryClaim:     3,
	ForceCall:       false,
	Mode:            Courteous,
}

func (c *CallContext) RegisterFlags(prefix string, f *flag.FlagSet) {
	*c = DefaultCallContext
	f.Func(prefix+".max-retries", "Maximum retries on the same item before giving up.", uint32Flag(&c.MaxRetries, DefaultCallContext.MaxRetries))
	f.Func(prefix+".call-weight", "Capacity weight charged per call.", uint32Flag(&c.CallWeight, DefaultCallContext.CallWeight))
	f.BoolVar(&c.MeasureCallTime, prefix+".measure-call-time", DefaultCallContext.MeasureCallTime, "Whether to sample call latency into the item's EWMA.")
	f.Func(prefix+".max-try-claim", "Attempts to claim capacity before sleeping or giving up in courteous mode.", uint32Flag(&c.MaxTryClaim, DefaultCallContext.MaxTryClaim))
	f.BoolVar(&c.ForceCall, prefix+".force-call", DefaultCallContext.ForceCall, "In courteous mode, overdraft rather than return NoCapacity once attempts are exhausted.")
	f.Func(prefix+".mode", "Dispatch mode: unchecked, greedy, or courteous.", func(s string) error {
		switch Mode(s) {
		case Unchecked, Greedy, Courteous:
			c.Mode = Mode(s)
			return nil
		default:
			return fmt.Errorf("unknown mode %q", s)
		}
	})
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

func (c *CallContext) Validate() error {
	switch c.Mode {
	case Unchecked, Greedy, Courteous:
	default:
		return fmt.Errorf("dispatch: unknown mode %q", c.Mode)
	}
	if c.CallWeight == 0 {
		return fmt.Errorf("dispatch: call-weight must be > 0")
	}
	if c.Mode == Courteous && c.MaxTryClaim == 0 {
		return fmt.Errorf("dispatch: max-try-claim must be > 0 in courteous mode")
	}
	return nil
}
