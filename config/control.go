package config

import (
	"fmt"
	"time"

	"github.com/kilianp07/gridmpc/core/lp"
	"github.com/kilianp07/gridmpc/core/mpc"
)

// DefaultStart is the first slot of the reference data set.
const DefaultStart = "2020-02-08T00:00:00Z"

// ControlConfig defines the time grid and the solver limits.
type ControlConfig struct {
	// Start is the RFC 3339 timestamp of iteration 0.
	Start         string       `json:"start"`
	HorizonHours  float64      `json:"horizon_hours"`
	PeriodMinutes float64      `json:"period_minutes"`
	Solver        SolverConfig `json:"solver"`
}

// SolverConfig tunes the simplex backend.
type SolverConfig struct {
	Tolerance      float64 `json:"tolerance"`
	TimeoutSeconds float64 `json:"timeout_seconds"`
}

// SetDefaults applies a 24 h hourly horizon.
func (c *ControlConfig) SetDefaults() {
	if c.Start == "" {
		c.Start = DefaultStart
	}
	if c.HorizonHours == 0 {
		c.HorizonHours = 24
	}
	if c.PeriodMinutes == 0 {
		c.PeriodMinutes = 60
	}
	if c.Solver.Tolerance == 0 {
		c.Solver.Tolerance = lp.DefaultTolerance
	}
	if c.Solver.TimeoutSeconds == 0 {
		c.Solver.TimeoutSeconds = 10
	}
}

// Validate checks that the grid holds at least one slot.
func (c ControlConfig) Validate() error {
	if _, err := c.StartTime(); err != nil {
		return err
	}
	if c.Solver.Tolerance < 0 || c.Solver.TimeoutSeconds < 0 {
		return fmt.Errorf("control.solver: tolerance and timeout must not be negative")
	}
	return c.MPC().Validate()
}

// StartTime parses Start.
func (c ControlConfig) StartTime() (time.Time, error) {
	t, err := time.Parse(time.RFC3339, c.Start)
	if err != nil {
		return time.Time{}, fmt.Errorf("control.start: %w", err)
	}
	return t.UTC(), nil
}

// MPC converts the section into the controller configuration. Start is the
// zero time when it does not parse; Validate reports that case.
func (c ControlConfig) MPC() mpc.Config {
	start, _ := c.StartTime()
	return mpc.Config{
		Start:   start,
		Horizon: time.Duration(c.HorizonHours * float64(time.Hour)),
		Period:  time.Duration(c.PeriodMinutes * float64(time.Minute)),
	}
}

// NewSolver builds the simplex solver described by the section.
func (c ControlConfig) NewSolver() *lp.SimplexSolver {
	return lp.NewSimplexSolver(c.Solver.Tolerance, time.Duration(c.Solver.TimeoutSeconds*float64(time.Second)))
}

// RiskConfig holds the default outage scenario used when a request does not
// carry one.
type RiskConfig struct {
	OutageProbability    float64 `json:"outage_probability"`
	OutageDurationHours  float64 `json:"outage_duration_hours"`
	CriticalLoadFraction float64 `json:"critical_load_fraction"`
	VoLL                 float64 `json:"voll"`
}

// Risk converts the section into controller risk parameters.
func (c RiskConfig) Risk() mpc.Risk {
	return mpc.Risk{
		Probability:      c.OutageProbability,
		Duration:         time.Duration(c.OutageDurationHours * float64(time.Hour)),
		CriticalFraction: c.CriticalLoadFraction,
		VoLL:             c.VoLL,
	}
}

// Validate checks the parameter ranges.
func (c RiskConfig) Validate() error {
	if err := c.Risk().Validate(); err != nil {
		return fmt.Errorf("risk: %w", err)
	}
	return nil
}

// HTTPConfig configures the API server.
type HTTPConfig struct {
	Address string `json:"address"`
}

// SetDefaults listens on :8080.
func (c *HTTPConfig) SetDefaults() {
	if c.Address == "" {
		c.Address = ":8080"
	}
}
