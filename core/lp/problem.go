// Package lp describes bounded linear programs in general form and solves
// them with the gonum simplex implementation.
//
// The general form is
//
//	minimize    Cᵀx
//	subject to  Aeq·x  = Beq
//	            Aub·x <= Bub
//	            Lo <= x <= Hi
//
// where either bound of a variable may be infinite.
package lp

import (
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/mat"
)

// Bound is the admissible range of a single variable.
type Bound struct {
	Lo float64 `json:"lo"`
	Hi float64 `json:"hi"`
}

// Free is the unbounded range (-Inf, +Inf).
func Free() Bound { return Bound{Lo: math.Inf(-1), Hi: math.Inf(1)} }

// Between returns the range [lo, hi].
func Between(lo, hi float64) Bound { return Bound{Lo: lo, Hi: hi} }

// Contains reports whether v lies in the range within tol.
func (b Bound) Contains(v, tol float64) bool {
	return v >= b.Lo-tol && v <= b.Hi+tol
}

// Problem is a dense LP instance. Aeq and Aub may be nil when the problem has
// no rows of that kind.
type Problem struct {
	C      []float64
	Aeq    *mat.Dense
	Beq    []float64
	Aub    *mat.Dense
	Bub    []float64
	Bounds []Bound
}

// NumVars returns the length of the decision vector.
func (p *Problem) NumVars() int { return len(p.C) }

// NumEq returns the number of equality rows.
func (p *Problem) NumEq() int { return len(p.Beq) }

// NumUb returns the number of inequality rows.
func (p *Problem) NumUb() int { return len(p.Bub) }

// Validate checks that every component has consistent dimensions.
func (p *Problem) Validate() error {
	n := len(p.C)
	if n == 0 {
		return fmt.Errorf("lp: problem has no variables")
	}
	if len(p.Bounds) != n {
		return fmt.Errorf("lp: %d bounds for %d variables", len(p.Bounds), n)
	}
	if err := checkBlock("equality", p.Aeq, p.Beq, n); err != nil {
		return err
	}
	if err := checkBlock("inequality", p.Aub, p.Bub, n); err != nil {
		return err
	}
	for i, b := range p.Bounds {
		if math.IsNaN(b.Lo) || math.IsNaN(b.Hi) {
			return fmt.Errorf("lp: bound %d is NaN", i)
		}
	}
	return nil
}

func checkBlock(kind string, a *mat.Dense, b []float64, n int) error {
	if a == nil {
		if len(b) != 0 {
			return fmt.Errorf("lp: %d %s right-hand sides without a matrix", len(b), kind)
		}
		return nil
	}
	r, c := a.Dims()
	if c != n {
		return fmt.Errorf("lp: %s matrix has %d columns, want %d", kind, c, n)
	}
	if r != len(b) {
		return fmt.Errorf("lp: %s matrix has %d rows but %d right-hand sides", kind, r, len(b))
	}
	return nil
}

// Objective evaluates Cᵀx.
func (p *Problem) Objective(x []float64) float64 {
	var f float64
	for i, c := range p.C {
		f += c * x[i]
	}
	return f
}

// Equal reports whether q is bit-identical to p.
func (p *Problem) Equal(q *Problem) bool {
	if p == nil || q == nil {
		return p == q
	}
	return slices.Equal(p.C, q.C) &&
		slices.Equal(p.Beq, q.Beq) &&
		slices.Equal(p.Bub, q.Bub) &&
		slices.Equal(p.Bounds, q.Bounds) &&
		denseEqual(p.Aeq, q.Aeq) &&
		denseEqual(p.Aub, q.Aub)
}

func denseEqual(a, b *mat.Dense) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return mat.Equal(a, b)
}
