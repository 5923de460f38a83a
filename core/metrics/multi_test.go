package metrics

import (
	"errors"
	"fmt"
	"testing"

	"github.com/kilianp07/gridmpc/core/forecast"
	"github.com/kilianp07/gridmpc/core/lp"
	"github.com/kilianp07/gridmpc/core/mpc"
	"github.com/stretchr/testify/assert"
)

type recordSink struct {
	steps int
	plans int
	err   error
}

func (r *recordSink) RecordStep(StepEvent) error {
	r.steps++
	return r.err
}

func (r *recordSink) RecordPlan(PlanEvent) error {
	r.plans++
	return nil
}

type stepOnly struct{ steps int }

func (s *stepOnly) RecordStep(StepEvent) error {
	s.steps++
	return nil
}

// TestMultiSink ensures events are forwarded to all sinks.
func TestMultiSink(t *testing.T) {
	s1 := &recordSink{}
	s2 := &stepOnly{}
	m := NewMultiSink(s1, s2)
	if err := m.RecordStep(StepEvent{Iteration: 1}); err != nil {
		t.Fatalf("record step: %v", err)
	}
	if err := m.RecordPlan(PlanEvent{}); err != nil {
		t.Fatalf("record plan: %v", err)
	}
	assert.Equal(t, 1, s1.steps)
	assert.Equal(t, 1, s1.plans)
	assert.Equal(t, 1, s2.steps)
}

func TestMultiSink_StopsOnError(t *testing.T) {
	boom := errors.New("boom")
	s1 := &recordSink{err: boom}
	s2 := &stepOnly{}
	err := NewMultiSink(s1, s2).RecordStep(StepEvent{})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, s2.steps)
}

func TestStepEvent_Failed(t *testing.T) {
	assert.False(t, StepEvent{}.Failed())
	assert.True(t, StepEvent{Err: errors.New("x")}.Failed())
}

func TestStepEvent_Outcome(t *testing.T) {
	tests := []struct {
		ev   StepEvent
		want string
	}{
		{StepEvent{Status: lp.StatusOptimal}, "optimal"},
		{StepEvent{Err: fmt.Errorf("iteration 2: %w", &forecast.LookupError{Series: "pv"})}, "lookup_failed"},
		{StepEvent{Err: fmt.Errorf("wrap: %w", mpc.ErrInvalidRisk)}, "invalid_input"},
		{StepEvent{Err: &lp.SolveError{Status: lp.StatusInfeasible}}, "infeasible"},
		{StepEvent{Err: &lp.SolveError{Status: lp.StatusLimitExceeded}}, "limit_exceeded"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.ev.Outcome())
	}
}

type closingSink struct {
	NopSink
	closed bool
}

func (c *closingSink) Close() { c.closed = true }

func TestMultiSinkClose(t *testing.T) {
	c := &closingSink{}
	m := NewMultiSink(c, &stepOnly{})
	m.Close()
	assert.True(t, c.closed)
}
