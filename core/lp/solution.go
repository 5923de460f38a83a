package lp

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInfeasible is returned when the problem has no feasible point or its
	// objective is unbounded below.
	ErrInfeasible = errors.New("lp: infeasible or unbounded")
	// ErrLimitExceeded is returned when the solve stopped before optimality
	// could be certified, e.g. because the deadline expired.
	ErrLimitExceeded = errors.New("lp: limit exceeded before optimality")
	// ErrNumerical is returned when the solver failed for numerical reasons
	// or its answer did not satisfy the constraints.
	ErrNumerical = errors.New("lp: numerical failure")
)

// Status is the outcome of a solve.
type Status int

const (
	StatusOptimal Status = iota
	StatusInfeasible
	StatusUnbounded
	StatusLimitExceeded
	StatusNumerical
)

func (s Status) String() string {
	switch s {
	case StatusOptimal:
		return "optimal"
	case StatusInfeasible:
		return "infeasible"
	case StatusUnbounded:
		return "unbounded"
	case StatusLimitExceeded:
		return "limit_exceeded"
	case StatusNumerical:
		return "numerical"
	default:
		return "unknown"
	}
}

// MarshalText encodes the status by name.
func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText decodes a status name produced by MarshalText.
func (s *Status) UnmarshalText(b []byte) error {
	v, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// ParseStatus returns the status with the given name.
func ParseStatus(name string) (Status, error) {
	for st := StatusOptimal; st <= StatusNumerical; st++ {
		if st.String() == name {
			return st, nil
		}
	}
	return 0, fmt.Errorf("lp: unknown status %q", name)
}

func (s Status) sentinel() error {
	switch s {
	case StatusInfeasible, StatusUnbounded:
		return ErrInfeasible
	case StatusLimitExceeded:
		return ErrLimitExceeded
	default:
		return ErrNumerical
	}
}

// SolveError carries the failure status together with the backend error.
type SolveError struct {
	Status Status
	Cause  error
}

func (e *SolveError) Error() string {
	if e.Cause == nil {
		return e.Status.sentinel().Error()
	}
	return fmt.Sprintf("%v: %v", e.Status.sentinel(), e.Cause)
}

// Unwrap exposes both the package sentinel and the backend cause.
func (e *SolveError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Status.sentinel()}
	}
	return []error{e.Status.sentinel(), e.Cause}
}

func failure(s Status, cause error) error { return &SolveError{Status: s, Cause: cause} }

// StatusOf extracts the status from a Solve error. A nil error is optimal.
func StatusOf(err error) Status {
	if err == nil {
		return StatusOptimal
	}
	var se *SolveError
	if errors.As(err, &se) {
		return se.Status
	}
	switch {
	case errors.Is(err, ErrInfeasible):
		return StatusInfeasible
	case errors.Is(err, ErrLimitExceeded):
		return StatusLimitExceeded
	default:
		return StatusNumerical
	}
}

// Solution is an optimal point of a Problem.
type Solution struct {
	Status    Status
	X         []float64
	Objective float64
	// StdRows and StdCols give the size of the standard-form problem that
	// was handed to the simplex backend.
	StdRows int
	StdCols int
	Elapsed time.Duration
}

// Solver solves a Problem. Implementations must not retain p.
type Solver interface {
	Solve(ctx context.Context, p *Problem) (*Solution, error)
}

// SolverFunc adapts a function to the Solver interface.
type SolverFunc func(ctx context.Context, p *Problem) (*Solution, error)

// Solve calls f(ctx, p).
func (f SolverFunc) Solve(ctx context.Context, p *Problem) (*Solution, error) { return f(ctx, p) }
