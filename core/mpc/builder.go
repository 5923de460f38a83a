package mpc

import (
	"errors"
	"fmt"
	"time"

	"github.com/kilianp07/gridmpc/core/battery"
	"github.com/kilianp07/gridmpc/core/forecast"
	"github.com/kilianp07/gridmpc/core/lp"
	"gonum.org/v1/gonum/mat"
)

// RowKind tells whether a row belongs to the equality or inequality block.
type RowKind int

const (
	Equality RowKind = iota
	Inequality
)

func (k RowKind) String() string {
	if k == Inequality {
		return "inequality"
	}
	return "equality"
}

// RowLabel identifies the rule and slot that produced a constraint row.
type RowLabel struct {
	Rule  string
	Slot  int
	Kind  RowKind
	Index int // row index inside its block
}

// Instance is one fully assembled horizon problem.
type Instance struct {
	Problem *lp.Problem
	Layout  Layout
	Start   time.Time
	Slots   []forecast.Slot
	Labels  []RowLabel
	// OutageSlots is the outage duration truncated to whole slots.
	OutageSlots int
}

// Rows returns the labels produced by the named rule, in row order.
func (in *Instance) Rows(rule string) []RowLabel {
	var out []RowLabel
	for _, l := range in.Labels {
		if l.Rule == rule {
			out = append(out, l)
		}
	}
	return out
}

// Builder assembles the horizon problem from battery parameters and a
// forecast provider. It holds no mutable state.
type Builder struct {
	Battery  battery.Params
	Period   time.Duration
	Slots    int
	Provider forecast.Provider
}

// Build fetches the forecast for the horizon starting at start and
// assembles the bounds, rows and objective for the measured energy soc.
func (b Builder) Build(start time.Time, soc float64, risk Risk) (*Instance, error) {
	if b.Slots <= 0 {
		return nil, fmt.Errorf("mpc: horizon must contain at least one slot, got %d", b.Slots)
	}
	if b.Period <= 0 {
		return nil, fmt.Errorf("mpc: period must be positive, got %s", b.Period)
	}
	if b.Provider == nil {
		return nil, errors.New("mpc: no forecast provider")
	}
	if err := risk.Validate(); err != nil {
		return nil, err
	}
	slots, err := b.Provider.Horizon(start, b.Period, b.Slots)
	if err != nil {
		return nil, fmt.Errorf("mpc: fetch horizon at %s: %w", start.UTC().Format(time.RFC3339), err)
	}
	if len(slots) != b.Slots {
		return nil, fmt.Errorf("mpc: provider returned %d slots, want %d", len(slots), b.Slots)
	}

	layout := Layout{Slots: b.Slots}
	in := &Instance{
		Layout:      layout,
		Start:       start,
		Slots:       slots,
		OutageSlots: risk.DurationSlots(b.Period),
	}
	ctxs := make([]slotContext, b.Slots)
	for x := range ctxs {
		ctxs[x] = slotContext{
			x:      x,
			slot:   slots[x],
			risk:   risk,
			outage: in.OutageSlots,
			soc:    soc,
			hours:  b.Period.Hours(),
		}
	}

	eq, eqLabels := assemble(layout, ctxs, equalityRules, Equality)
	ub, ubLabels := assemble(layout, ctxs, inequalityRules, Inequality)
	in.Labels = append(eqLabels, ubLabels...)

	p := &lp.Problem{
		C:      b.objective(layout, ctxs),
		Bounds: b.bounds(layout),
	}
	p.Aeq, p.Beq = eq.dense(layout.NumVars())
	p.Aub, p.Bub = ub.dense(layout.NumVars())
	in.Problem = p
	return in, nil
}

func (b Builder) bounds(l Layout) []lp.Bound {
	pLo, pHi := b.Battery.PowerBounds()
	eLo, eHi := b.Battery.EnergyBounds()
	block := [FieldsPerSlot]lp.Bound{
		CostSlack:          lp.Free(),
		GridPower:          lp.Free(),
		BattPowerGridTied:  lp.Between(pLo, pHi),
		BattEnergyGridTied: lp.Between(eLo, eHi),
		BattPowerIslanded:  lp.Between(pLo, pHi),
		BattEnergyIslanded: lp.Between(eLo, eHi),
		LoadShed:           lp.Between(0, 1),
		PVShed:             lp.Between(0, 1),
	}
	out := make([]lp.Bound, 0, l.NumVars())
	for x := 0; x < l.Slots; x++ {
		out = append(out, block[:]...)
	}
	return out
}

// objective weighs the cost slack by the probability of staying connected
// and charges shed critical load at VoLL (per kWh) by the outage probability.
func (b Builder) objective(l Layout, ctxs []slotContext) []float64 {
	c := make([]float64, l.NumVars())
	for _, sc := range ctxs {
		p := sc.risk.Probability
		c[l.Index(sc.x, CostSlack)] = 1 - p
		c[l.Index(sc.x, LoadShed)] = -(sc.risk.VoLL / 1000) * p * sc.risk.CriticalFraction * sc.slot.LoadW
	}
	return c
}

type rowBlock struct {
	coefs [][]float64
	rhs   []float64
}

func (rb rowBlock) dense(n int) (*mat.Dense, []float64) {
	if len(rb.coefs) == 0 {
		return nil, nil
	}
	data := make([]float64, 0, len(rb.coefs)*n)
	for _, r := range rb.coefs {
		data = append(data, r...)
	}
	return mat.NewDense(len(rb.coefs), n, data), rb.rhs
}

// assemble evaluates rules slot by slot, in rule order within a slot.
func assemble(l Layout, ctxs []slotContext, rules []rule, kind RowKind) (rowBlock, []RowLabel) {
	var rb rowBlock
	var labels []RowLabel
	for _, sc := range ctxs {
		for _, ru := range rules {
			if !ru.applies(sc) {
				continue
			}
			r := ru.row(sc)
			coefs := make([]float64, l.NumVars())
			for _, t := range r.terms {
				coefs[l.Index(sc.x+t.offset, t.field)] += t.coef
			}
			labels = append(labels, RowLabel{Rule: ru.name, Slot: sc.x, Kind: kind, Index: len(rb.rhs)})
			rb.coefs = append(rb.coefs, coefs)
			rb.rhs = append(rb.rhs, r.rhs)
		}
	}
	return rb, labels
}
