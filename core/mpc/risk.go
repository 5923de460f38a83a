package mpc

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrInvalidRisk is wrapped when risk parameters are out of range.
var ErrInvalidRisk = errors.New("mpc: invalid risk parameters")

// Risk describes the outage scenario weighed against normal operation.
type Risk struct {
	// Probability that the grid fails during the horizon, in [0,1].
	Probability float64 `json:"outage_probability"`
	// Duration of the outage. It is truncated to whole slots.
	Duration time.Duration `json:"outage_duration"`
	// CriticalFraction is the share of the load that must be served while
	// islanded, in [0,1].
	CriticalFraction float64 `json:"critical_load_fraction"`
	// VoLL is the value of lost load per kWh.
	VoLL float64 `json:"voll"`
}

// Validate checks that every parameter lies in its admissible range.
func (r Risk) Validate() error {
	switch {
	case math.IsNaN(r.Probability) || r.Probability < 0 || r.Probability > 1:
		return fmt.Errorf("%w: outage probability %g outside [0,1]", ErrInvalidRisk, r.Probability)
	case r.Duration < 0:
		return fmt.Errorf("%w: negative outage duration %s", ErrInvalidRisk, r.Duration)
	case math.IsNaN(r.CriticalFraction) || r.CriticalFraction < 0 || r.CriticalFraction > 1:
		return fmt.Errorf("%w: critical load fraction %g outside [0,1]", ErrInvalidRisk, r.CriticalFraction)
	case math.IsNaN(r.VoLL) || math.IsInf(r.VoLL, 0) || r.VoLL < 0:
		return fmt.Errorf("%w: VoLL %g must be finite and non-negative", ErrInvalidRisk, r.VoLL)
	}
	return nil
}

// DurationSlots converts the outage duration into a number of slots.
func (r Risk) DurationSlots(period time.Duration) int {
	if period <= 0 {
		return 0
	}
	return int(r.Duration / period)
}
