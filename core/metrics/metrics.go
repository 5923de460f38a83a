package metrics

import (
	"errors"
	"time"

	"github.com/kilianp07/gridmpc/core/forecast"
	"github.com/kilianp07/gridmpc/core/lp"
	"github.com/kilianp07/gridmpc/core/mpc"
)

// StepEvent describes the outcome of one controller step.
type StepEvent struct {
	StepID    string
	Iteration int
	Time      time.Time
	Action    mpc.Action
	Status    lp.Status
	Objective float64
	Duration  time.Duration
	Err       error
}

// Failed reports whether the step produced no action.
func (e StepEvent) Failed() bool { return e.Err != nil }

// Outcome is a short label for the step result: the solver status, or
// "lookup_failed" / "invalid_input" when no problem could be built.
func (e StepEvent) Outcome() string {
	switch {
	case e.Err == nil:
		return e.Status.String()
	case errors.Is(e.Err, forecast.ErrLookup):
		return "lookup_failed"
	case errors.Is(e.Err, mpc.ErrInvalidRisk), errors.Is(e.Err, mpc.ErrInvalidRequest):
		return "invalid_input"
	default:
		return lp.StatusOf(e.Err).String()
	}
}

// MetricsSink records step outcomes for observability purposes.
type MetricsSink interface {
	RecordStep(ev StepEvent) error
}

// PlanEvent carries the full trajectory computed for a step.
type PlanEvent struct {
	StepID string
	Plan   *mpc.Plan
}

// PlanRecorder is implemented by sinks able to store every slot of a plan.
type PlanRecorder interface {
	RecordPlan(ev PlanEvent) error
}

// NopSink implements MetricsSink with no-op methods.
type NopSink struct{}

func (NopSink) RecordStep(StepEvent) error { return nil }
func (NopSink) RecordPlan(PlanEvent) error { return nil }
