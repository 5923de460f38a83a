package lp

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	gonumlp "gonum.org/v1/gonum/optimize/convex/lp"
)

// DefaultTolerance is the pivoting tolerance handed to the simplex backend.
const DefaultTolerance = 1e-7

// feasibilityTol is the relative slack accepted when checking the recovered
// point against the original rows and bounds.
const feasibilityTol = 1e-6

// simplex points to the backend. Tests override it to simulate failures.
var simplex = gonumlp.Simplex

// SimplexSolver solves problems with gonum's dense simplex implementation.
// The zero value is usable: it applies DefaultTolerance and no deadline.
type SimplexSolver struct {
	Tolerance float64
	// Timeout bounds a single solve. Zero means the caller's context is
	// the only limit. On expiry Solve returns at once while the backend
	// call in flight is abandoned, not stopped: it runs to completion in the
	// background but no further start is attempted after it.
	Timeout time.Duration
}

// NewSimplexSolver returns a solver with the given tolerance and timeout.
func NewSimplexSolver(tol float64, timeout time.Duration) *SimplexSolver {
	return &SimplexSolver{Tolerance: tol, Timeout: timeout}
}

type simplexResult struct {
	x   []float64
	err error
}

// Solve converts p to standard form, runs the simplex method and maps the
// optimum back onto the original variables.
func (s *SimplexSolver) Solve(ctx context.Context, p *Problem) (*Solution, error) {
	if err := p.Validate(); err != nil {
		return nil, failure(StatusNumerical, err)
	}
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}
	if err := ctx.Err(); err != nil {
		return nil, failure(StatusLimitExceeded, err)
	}
	tol := s.Tolerance
	if tol <= 0 {
		tol = DefaultTolerance
	}

	began := time.Now()
	sf, err := toStandard(p)
	if err != nil {
		return nil, err
	}
	rows, cols := sf.dims()
	if rows > cols {
		return nil, failure(StatusNumerical, fmt.Errorf("standard form has %d rows for %d columns", rows, cols))
	}

	done := make(chan simplexResult, 1)
	go func() {
		x, err := sf.solve(ctx, p, tol)
		done <- simplexResult{x: x, err: err}
	}()
	var x []float64
	select {
	case <-ctx.Done():
		return nil, failure(StatusLimitExceeded, ctx.Err())
	case res := <-done:
		if res.err != nil {
			return nil, res.err
		}
		x = res.x
	}
	return &Solution{
		Status:    StatusOptimal,
		X:         x,
		Objective: p.Objective(x),
		StdRows:   rows,
		StdCols:   cols,
		Elapsed:   time.Since(began),
	}, nil
}

// start selects how the backend is seeded with a feasible basis.
type start int

const (
	// startPerturbed seeds an explicit basis on a right-hand side nudged
	// off the degenerate vertices.
	startPerturbed start = iota
	// startExact seeds an explicit basis on the exact right-hand side.
	startExact
	// startBackend lets the backend search for its own basis.
	startBackend
)

// perturbation is the smallest shift applied to a scaled right-hand side by
// startPerturbed. Row i is shifted by perturbation·(1+i/m).
const perturbation = 1e-10

// phaseOneTol bounds the artificial mass left by phase one on a feasible
// problem, relative to the scaled right-hand side.
const phaseOneTol = 1e-9

// independenceTol is the relative residual below which a column counts as
// a combination of the columns already in the basis.
const independenceTol = 1e-8

// solve tries each start in turn and returns the first point that passes
// verify. Infeasibility found on the perturbed problem is only trusted once
// the exact problem agrees. Unboundedness does not depend on the right-hand
// side and stops the search at once.
func (sf *standardForm) solve(ctx context.Context, p *Problem, tol float64) ([]float64, error) {
	if rows, _ := sf.dims(); rows == 0 {
		x := sf.unmap(nil)
		if err := verify(p, x); err != nil {
			return nil, failure(StatusNumerical, err)
		}
		return x, nil
	}
	var first error
	for st := startPerturbed; st <= startBackend; st++ {
		if err := ctx.Err(); err != nil {
			return nil, failure(StatusLimitExceeded, err)
		}
		y, err := sf.attempt(ctx, st, tol)
		if err == nil {
			x := sf.unmap(y)
			if err = verify(p, x); err == nil {
				return x, nil
			}
			err = failure(StatusNumerical, err)
		}
		switch StatusOf(err) {
		case StatusUnbounded:
			return nil, err
		case StatusInfeasible:
			if st != startPerturbed {
				return nil, err
			}
		}
		if first == nil || StatusOf(first) != StatusNumerical {
			first = err
		}
	}
	return nil, first
}

func (sf *standardForm) attempt(ctx context.Context, st start, tol float64) ([]float64, error) {
	switch st {
	case startPerturbed:
		return sf.twoPhase(ctx, tol, perturbation)
	case startExact:
		return sf.twoPhase(ctx, tol, 0)
	default:
		return runSimplex(sf.c, sf.a, sf.b, tol, nil)
	}
}

// twoPhase finds a feasible basis itself and hands it to the backend, which
// then only has to improve the objective. With eps > 0 the right-hand side
// is nudged first and the optimal basis found there is re-solved on the
// exact side; the nudged point is kept when that basis does not carry over.
func (sf *standardForm) twoPhase(ctx context.Context, tol, eps float64) ([]float64, error) {
	m, _ := sf.a.Dims()
	b := sf.b
	if eps > 0 {
		b = make([]float64, m)
		for i, v := range sf.b {
			b[i] = v + eps*(1+float64(i)/float64(m))
		}
	}
	basis, b, err := sf.feasibleBasis(b)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, failure(StatusLimitExceeded, err)
	}
	y, err := runSimplex(sf.c, sf.a, b, tol, basis)
	if err != nil || eps == 0 || ctx.Err() != nil {
		return y, err
	}
	if basis, err := independentColumns(sf.a, supportFirst(y, sf.singletons())); err == nil {
		if exact, err := runSimplex(sf.c, sf.a, sf.b, tol, basis); err == nil {
			return exact, nil
		}
	}
	return y, nil
}

// feasibleBasis returns m columns of sf.a forming a basis whose basic
// solution is non-negative for the returned right-hand side. That side
// equals b up to the phase one residual.
//
// Rows holding a slack of the right sign start from that slack. The other
// rows get an artificial column and phase one drives the artificial mass to
// zero from the identity start.
func (sf *standardForm) feasibleBasis(b []float64) ([]int, []float64, error) {
	m, n := sf.a.Dims()
	basis := make([]int, m)
	for i := range basis {
		basis[i] = -1
	}
	for _, j := range sf.singletons() {
		if r, v := singleEntry(sf.a, j); basis[r] < 0 && v*b[r] >= 0 {
			basis[r] = j
		}
	}
	var missing []int
	for r, j := range basis {
		if j < 0 {
			missing = append(missing, r)
		}
	}
	if len(missing) == 0 {
		return basis, b, nil
	}

	k := len(missing)
	a1 := mat.NewDense(m, n+k, nil)
	a1.Slice(0, m, 0, n).(*mat.Dense).Copy(sf.a)
	c1 := make([]float64, n+k)
	seed := make([]int, m)
	copy(seed, basis)
	for i, r := range missing {
		sign := 1.0
		if b[r] < 0 {
			sign = -1
		}
		a1.Set(r, n+i, sign)
		c1[n+i] = 1
		seed[r] = n + i
	}
	x1, err := runSimplex(c1, a1, b, phaseOneTol, seed)
	if err != nil {
		return nil, nil, err
	}
	if left := floats.Sum(x1[n:]); left > phaseOneTol {
		return nil, nil, failure(StatusInfeasible, fmt.Errorf("phase one left %g of artificial mass", left))
	}

	// Rebuild the right-hand side from the non-negative part so the
	// artificial residue does not leak into phase two.
	y := make([]float64, n)
	for j := range y {
		y[j] = math.Max(x1[j], 0)
	}
	var bv mat.VecDense
	bv.MulVec(sf.a, mat.NewVecDense(n, y))

	basis, err = independentColumns(sf.a, supportFirst(y, sf.singletons()))
	if err != nil {
		return nil, nil, failure(StatusNumerical, err)
	}
	return basis, bv.RawVector().Data, nil
}

// singletons lists the columns of sf.a holding a single non-zero entry.
// Slack columns are among them.
func (sf *standardForm) singletons() []int {
	_, n := sf.a.Dims()
	var out []int
	for j := 0; j < n; j++ {
		if r, _ := singleEntry(sf.a, j); r >= 0 {
			out = append(out, j)
		}
	}
	return out
}

// supportFirst orders columns for independentColumns: the support of y,
// then the preferred columns, then every column from the last one down.
func supportFirst(y []float64, prefer []int) []int {
	order := make([]int, 0, 2*len(y)+len(prefer))
	for j, v := range y {
		if v > 0 {
			order = append(order, j)
		}
	}
	order = append(order, prefer...)
	for j := len(y) - 1; j >= 0; j-- {
		order = append(order, j)
	}
	return order
}

// singleEntry returns the row and value of the only non-zero entry of
// column j, or -1 when the column has none or several.
func singleEntry(a *mat.Dense, j int) (int, float64) {
	m, _ := a.Dims()
	row, val := -1, 0.0
	for i := 0; i < m; i++ {
		v := a.At(i, j)
		if v == 0 {
			continue
		}
		if row >= 0 {
			return -1, 0
		}
		row, val = i, v
	}
	return row, val
}

// independentColumns walks order and keeps every column that is not a
// combination of the ones kept before it, until m are found. The test runs
// Gram-Schmidt twice against the kept columns.
func independentColumns(a *mat.Dense, order []int) ([]int, error) {
	m, _ := a.Dims()
	kept := make([]int, 0, m)
	q := make([][]float64, 0, m)
	seen := make(map[int]bool, len(order))
	for _, j := range order {
		if len(kept) == m {
			break
		}
		if seen[j] {
			continue
		}
		seen[j] = true
		v := mat.Col(nil, j, a)
		norm := floats.Norm(v, 2)
		if norm == 0 {
			continue
		}
		for pass := 0; pass < 2; pass++ {
			for _, u := range q {
				floats.AddScaled(v, -floats.Dot(u, v), u)
			}
		}
		r := floats.Norm(v, 2)
		if r <= independenceTol*norm {
			continue
		}
		floats.Scale(1/r, v)
		q = append(q, v)
		kept = append(kept, j)
	}
	if len(kept) < m {
		return nil, fmt.Errorf("standard form has rank %d for %d rows", len(kept), m)
	}
	return kept, nil
}

// runSimplex calls the backend and turns its errors and panics into
// SolveErrors. The backend panics when a supplied basis is not feasible.
func runSimplex(c []float64, a mat.Matrix, b []float64, tol float64, basis []int) (x []float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			x, err = nil, failure(StatusNumerical, fmt.Errorf("simplex panic: %v", r))
		}
	}()
	_, x, err = simplex(c, a, b, tol, basis)
	if err != nil {
		return nil, classify(err)
	}
	return x, nil
}

func classify(err error) error {
	var se *SolveError
	switch {
	case errors.As(err, &se):
		return err
	case errors.Is(err, gonumlp.ErrInfeasible):
		return failure(StatusInfeasible, err)
	case errors.Is(err, gonumlp.ErrUnbounded):
		return failure(StatusUnbounded, err)
	default:
		return failure(StatusNumerical, err)
	}
}

type varKind int

const (
	kindFixed   varKind = iota // x = base
	kindShift                  // x = base + y, y >= 0
	kindReflect                // x = base - y, y >= 0
	kindFree                   // x = y - z, y, z >= 0
)

type varMap struct {
	kind varKind
	base float64
	col  int
	neg  int
}

// standardForm is min cᵀy s.t. a·y = b, y >= 0 together with the mapping back
// to the original variables.
type standardForm struct {
	vars []varMap
	c    []float64
	a    *mat.Dense
	b    []float64
	// scale divides b so the backend's absolute tolerances see unit values.
	scale float64
}

func (sf *standardForm) dims() (int, int) {
	if sf.a == nil {
		return 0, 0
	}
	return sf.a.Dims()
}

func (sf *standardForm) unmap(y []float64) []float64 {
	at := func(i int) float64 { return y[i] * sf.scale }
	x := make([]float64, len(sf.vars))
	for j, vm := range sf.vars {
		switch vm.kind {
		case kindFixed:
			x[j] = vm.base
		case kindShift:
			x[j] = vm.base + at(vm.col)
		case kindReflect:
			x[j] = vm.base - at(vm.col)
		case kindFree:
			x[j] = at(vm.col) - at(vm.neg)
		}
	}
	return x
}

// toStandard shifts finite lower bounds to zero, reflects variables that only
// have an upper bound, splits free variables and adds a slack per inequality
// and per finite upper bound. Variables that appear in no row are fixed at
// the bound that minimises their cost.
func toStandard(p *Problem) (*standardForm, error) {
	n := p.NumVars()
	used := make([]bool, n)
	markUsed(p.Aeq, used)
	markUsed(p.Aub, used)

	sf := &standardForm{vars: make([]varMap, n), scale: 1}
	var upper []int
	addCol := func(c float64) int {
		sf.c = append(sf.c, c)
		return len(sf.c) - 1
	}
	for j, bd := range p.Bounds {
		c := p.C[j]
		vm := varMap{col: -1, neg: -1}
		hasLo, hasHi := !math.IsInf(bd.Lo, -1), !math.IsInf(bd.Hi, 1)
		switch {
		case math.IsInf(bd.Lo, 1) || math.IsInf(bd.Hi, -1) || bd.Lo > bd.Hi:
			return nil, failure(StatusInfeasible, fmt.Errorf("variable %d has empty range [%g, %g]", j, bd.Lo, bd.Hi))
		case bd.Lo == bd.Hi:
			vm.kind, vm.base = kindFixed, bd.Lo
		case !used[j]:
			// Nothing constrains it: park it on the cheapest end of its range.
			vm.kind = kindFixed
			switch {
			case c > 0 && hasLo, c == 0 && hasLo:
				vm.base = bd.Lo
			case c < 0 && hasHi, c == 0 && hasHi:
				vm.base = bd.Hi
			case c == 0:
			default:
				return nil, failure(StatusUnbounded, fmt.Errorf("variable %d decreases the objective without limit", j))
			}
		case hasLo:
			vm.kind, vm.base = kindShift, bd.Lo
			vm.col = addCol(c)
			if hasHi {
				upper = append(upper, j)
			}
		case hasHi:
			vm.kind, vm.base = kindReflect, bd.Hi
			vm.col = addCol(-c)
		default:
			vm.kind = kindFree
			vm.col = addCol(c)
			vm.neg = addCol(-c)
		}
		sf.vars[j] = vm
	}

	eqRows, err := liveEqualityRows(p, sf.vars)
	if err != nil {
		return nil, err
	}
	nStruct := len(sf.c)
	nUb, nUp := p.NumUb(), len(upper)
	rows := len(eqRows) + nUb + nUp
	cols := nStruct + nUb + nUp
	if rows == 0 {
		return sf, nil
	}
	for k := 0; k < nUb+nUp; k++ {
		addCol(0)
	}
	sf.a = mat.NewDense(rows, cols, nil)
	sf.b = make([]float64, rows)

	put := func(r, j int, coef float64) {
		if coef == 0 {
			return
		}
		vm := sf.vars[j]
		switch vm.kind {
		case kindFixed:
			sf.b[r] -= coef * vm.base
		case kindShift:
			sf.b[r] -= coef * vm.base
			sf.a.Set(r, vm.col, coef)
		case kindReflect:
			sf.b[r] -= coef * vm.base
			sf.a.Set(r, vm.col, -coef)
		case kindFree:
			sf.a.Set(r, vm.col, coef)
			sf.a.Set(r, vm.neg, -coef)
		}
	}

	r := 0
	for _, i := range eqRows {
		sf.b[r] = p.Beq[i]
		for j := 0; j < n; j++ {
			put(r, j, p.Aeq.At(i, j))
		}
		r++
	}
	for i := 0; i < nUb; i++ {
		sf.b[r] = p.Bub[i]
		for j := 0; j < n; j++ {
			put(r, j, p.Aub.At(i, j))
		}
		sf.a.Set(r, nStruct+i, 1)
		r++
	}
	for k, j := range upper {
		vm := sf.vars[j]
		sf.a.Set(r, vm.col, 1)
		sf.a.Set(r, nStruct+nUb+k, 1)
		sf.b[r] = p.Bounds[j].Hi - vm.base
		r++
	}
	equilibrate(sf.a, sf.b)
	for _, v := range sf.b {
		sf.scale = math.Max(sf.scale, math.Abs(v))
	}
	for i := range sf.b {
		sf.b[i] /= sf.scale
	}
	return sf, nil
}

func markUsed(a *mat.Dense, used []bool) {
	if a == nil {
		return
	}
	r, c := a.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if a.At(i, j) != 0 {
				used[j] = true
			}
		}
	}
}

// liveEqualityRows returns the equality rows that still reference a
// non-fixed variable. Rows made only of fixed variables must already hold.
func liveEqualityRows(p *Problem, vars []varMap) ([]int, error) {
	var live []int
	for i := 0; i < p.NumEq(); i++ {
		residual := p.Beq[i]
		alive := false
		for j, vm := range vars {
			coef := p.Aeq.At(i, j)
			if coef == 0 {
				continue
			}
			if vm.kind != kindFixed {
				alive = true
				break
			}
			residual -= coef * vm.base
		}
		if alive {
			live = append(live, i)
			continue
		}
		if math.Abs(residual) > feasibilityTol*math.Max(1, math.Abs(p.Beq[i])) {
			return nil, failure(StatusInfeasible, fmt.Errorf("equality row %d cannot be satisfied", i))
		}
	}
	return live, nil
}

// equilibrate scales every row to a unit infinity norm.
func equilibrate(a *mat.Dense, b []float64) {
	r, c := a.Dims()
	for i := 0; i < r; i++ {
		var m float64
		for j := 0; j < c; j++ {
			m = math.Max(m, math.Abs(a.At(i, j)))
		}
		if m == 0 || m == 1 {
			continue
		}
		for j := 0; j < c; j++ {
			if v := a.At(i, j); v != 0 {
				a.Set(i, j, v/m)
			}
		}
		b[i] /= m
	}
}

// verify checks x against every row and bound, then snaps values that sit
// within tolerance outside a bound back onto it.
func verify(p *Problem, x []float64) error {
	check := func(kind string, a *mat.Dense, rhs []float64, eq bool) error {
		if a == nil {
			return nil
		}
		r, c := a.Dims()
		for i := 0; i < r; i++ {
			var lhs, scale float64
			scale = math.Max(1, math.Abs(rhs[i]))
			for j := 0; j < c; j++ {
				t := a.At(i, j) * x[j]
				lhs += t
				scale = math.Max(scale, math.Abs(t))
			}
			d := lhs - rhs[i]
			if eq {
				d = math.Abs(d)
			}
			if d > feasibilityTol*scale {
				return fmt.Errorf("%s row %d violated by %g", kind, i, d)
			}
		}
		return nil
	}
	if err := check("equality", p.Aeq, p.Beq, true); err != nil {
		return err
	}
	if err := check("inequality", p.Aub, p.Bub, false); err != nil {
		return err
	}
	for j, bd := range p.Bounds {
		tol := feasibilityTol * math.Max(1, math.Abs(x[j]))
		if !bd.Contains(x[j], tol) {
			return fmt.Errorf("variable %d = %g outside [%g, %g]", j, x[j], bd.Lo, bd.Hi)
		}
		x[j] = math.Min(math.Max(x[j], bd.Lo), bd.Hi)
	}
	return nil
}
