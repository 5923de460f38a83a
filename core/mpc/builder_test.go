package mpc

import (
	"errors"
	"testing"
	"time"

	"github.com/kilianp07/gridmpc/core/battery"
	"github.com/kilianp07/gridmpc/core/forecast"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2020, 2, 8, 0, 0, 0, 0, time.UTC)

func testBattery(t *testing.T) battery.Params {
	t.Helper()
	cfg := battery.Config{}
	cfg.SetDefaults()
	p, err := cfg.Params()
	require.NoError(t, err)
	return p
}

func flatSet(n int, period time.Duration) forecast.Set {
	return forecast.Constant(t0, period, n, -5000, 0, 0.20, 0.05)
}

func testBuilder(t *testing.T, slots int) Builder {
	return Builder{
		Battery:  testBattery(t),
		Period:   time.Hour,
		Slots:    slots,
		Provider: flatSet(slots+2, time.Hour),
	}
}

func slotsOf(labels []RowLabel) []int {
	out := make([]int, len(labels))
	for i, l := range labels {
		out[i] = l.Slot
	}
	return out
}

func TestBuild_RowCounts(t *testing.T) {
	risk := Risk{Probability: 0.5, Duration: 2 * time.Hour, CriticalFraction: 0.5, VoLL: 10}
	in, err := testBuilder(t, 4).Build(t0, 20000, risk)
	require.NoError(t, err)

	p := in.Problem
	assert.Equal(t, 32, p.NumVars())
	assert.Equal(t, 4+4+2+4+1, p.NumEq())
	assert.Equal(t, 8, p.NumUb())
	assert.Equal(t, 2, in.OutageSlots)
	assert.Equal(t, []int{1, 2}, slotsOf(in.Rows(RuleIslandBalance)))
	assert.Equal(t, []int{0}, slotsOf(in.Rows(RuleModeCoupling)))
	assert.Equal(t, []int{0, 1, 2, 3}, slotsOf(in.Rows(RuleCostSell)))
	require.NoError(t, p.Validate())

	first := in.Labels[:4]
	assert.Equal(t, []string{RuleGridSOC, RuleGridBalance, RuleIslandSOC, RuleModeCoupling},
		[]string{first[0].Rule, first[1].Rule, first[2].Rule, first[3].Rule})
	for _, l := range in.Rows(RuleCostBuy) {
		assert.Equal(t, Inequality, l.Kind)
	}
}

func TestBuild_ZeroDurationOmitsIslandBalance(t *testing.T) {
	risk := Risk{Probability: 0.5, Duration: 0, CriticalFraction: 1, VoLL: 10}
	in, err := testBuilder(t, 3).Build(t0, 20000, risk)
	require.NoError(t, err)
	assert.Empty(t, in.Rows(RuleIslandBalance))
	assert.Len(t, in.Rows(RuleModeCoupling), 1)
}

func TestBuild_DurationTruncatedToSlots(t *testing.T) {
	risk := Risk{Probability: 0.5, Duration: 150 * time.Minute, CriticalFraction: 1, VoLL: 10}
	in, err := testBuilder(t, 6).Build(t0, 20000, risk)
	require.NoError(t, err)
	assert.Equal(t, 2, in.OutageSlots)
	assert.Equal(t, []int{1, 2}, slotsOf(in.Rows(RuleIslandBalance)))
}

func TestBuild_SingleSlot(t *testing.T) {
	in, err := testBuilder(t, 1).Build(t0, 20000, Risk{})
	require.NoError(t, err)
	p := in.Problem
	assert.Equal(t, FieldsPerSlot, p.NumVars())
	assert.Equal(t, 3, p.NumEq())
	assert.Equal(t, 2, p.NumUb())

	for _, l := range in.Rows(RuleGridSOC) {
		var nonzero int
		for j := 0; j < p.NumVars(); j++ {
			if p.Aeq.At(l.Index, j) != 0 {
				nonzero++
			}
		}
		assert.Equal(t, 2, nonzero)
		assert.Equal(t, 20000.0, p.Beq[l.Index])
	}
}

func TestBuild_Coefficients(t *testing.T) {
	b := Builder{
		Battery:  testBattery(t),
		Period:   30 * time.Minute,
		Slots:    3,
		Provider: forecast.Profile(t0, 30*time.Minute, []float64{-4000, -6000, -2000}, []float64{1000, 0, 3000}, []float64{0.1, 0.2, 0.3}, []float64{0.04, 0.05, 0.06}),
	}
	risk := Risk{Probability: 0.5, Duration: time.Hour, CriticalFraction: 0.5, VoLL: 10}
	in, err := b.Build(t0, 15000, risk)
	require.NoError(t, err)
	p, l := in.Problem, in.Layout

	soc := in.Rows(RuleGridSOC)[1]
	assert.Equal(t, 1.0, p.Aeq.At(soc.Index, l.Index(1, BattEnergyGridTied)))
	assert.Equal(t, 0.5, p.Aeq.At(soc.Index, l.Index(1, BattPowerGridTied)))
	assert.Equal(t, -1.0, p.Aeq.At(soc.Index, l.Index(0, BattEnergyGridTied)))
	assert.Equal(t, 0.0, p.Beq[soc.Index])

	bal := in.Rows(RuleGridBalance)[2]
	assert.Equal(t, 1.0, p.Aeq.At(bal.Index, l.Index(2, GridPower)))
	assert.Equal(t, 1.0, p.Aeq.At(bal.Index, l.Index(2, BattPowerGridTied)))
	assert.Equal(t, -1000.0, p.Beq[bal.Index])

	island := in.Rows(RuleIslandBalance)
	require.Len(t, island, 2)
	row := island[0]
	assert.Equal(t, 1, row.Slot)
	assert.Equal(t, 1.0, p.Aeq.At(row.Index, l.Index(1, BattPowerIslanded)))
	assert.Equal(t, 3000.0, p.Aeq.At(row.Index, l.Index(1, LoadShed)))
	assert.Equal(t, 0.0, p.Aeq.At(row.Index, l.Index(1, PVShed)))
	assert.Equal(t, 3000.0, p.Beq[row.Index])

	coupling := in.Rows(RuleModeCoupling)[0]
	assert.Equal(t, 1.0, p.Aeq.At(coupling.Index, l.Index(0, BattEnergyGridTied)))
	assert.Equal(t, -1.0, p.Aeq.At(coupling.Index, l.Index(0, BattEnergyIslanded)))

	buy := in.Rows(RuleCostBuy)[2]
	assert.Equal(t, -1.0, p.Aub.At(buy.Index, l.Index(2, CostSlack)))
	assert.InDelta(t, 0.3*0.5/1000, p.Aub.At(buy.Index, l.Index(2, GridPower)), 1e-15)
	sell := in.Rows(RuleCostSell)[0]
	assert.InDelta(t, 0.04*0.5/1000, p.Aub.At(sell.Index, l.Index(0, GridPower)), 1e-15)
}

func TestBuild_Bounds(t *testing.T) {
	in, err := testBuilder(t, 2).Build(t0, 20000, Risk{})
	require.NoError(t, err)
	l := in.Layout
	bd := in.Problem.Bounds
	assert.Equal(t, -8000.0, bd[l.Index(1, BattPowerIslanded)].Lo)
	assert.Equal(t, 8000.0, bd[l.Index(1, BattPowerGridTied)].Hi)
	assert.Equal(t, 11400.0, bd[l.Index(0, BattEnergyGridTied)].Lo)
	assert.Equal(t, 38000.0, bd[l.Index(0, BattEnergyIslanded)].Hi)
	assert.Equal(t, 1.0, bd[l.Index(1, LoadShed)].Hi)
	assert.True(t, bd[l.Index(0, GridPower)] == bd[l.Index(0, CostSlack)])
}

func TestBuild_ObjectiveWithoutOutageRisk(t *testing.T) {
	risk := Risk{Probability: 0, Duration: 3 * time.Hour, CriticalFraction: 0.5, VoLL: 10}
	in, err := testBuilder(t, 4).Build(t0, 20000, risk)
	require.NoError(t, err)
	for i, c := range in.Problem.C {
		_, f := in.Layout.Locate(i)
		if f == CostSlack {
			assert.Equal(t, 1.0, c)
			continue
		}
		assert.Zero(t, c, "coefficient of %s", f)
	}
	assert.Empty(t, in.Rows(RuleModeCoupling))
}

func TestBuild_ObjectiveWeightsByProbability(t *testing.T) {
	risk := Risk{Probability: 0.25, Duration: time.Hour, CriticalFraction: 0.5, VoLL: 10}
	in, err := testBuilder(t, 2).Build(t0, 20000, risk)
	require.NoError(t, err)
	c, l := in.Problem.C, in.Layout
	assert.Equal(t, 0.75, c[l.Index(1, CostSlack)])
	assert.InDelta(t, 6.25, c[l.Index(1, LoadShed)], 1e-12)
	assert.Zero(t, c[l.Index(1, PVShed)])
	assert.Zero(t, c[l.Index(1, BattEnergyIslanded)])
}

func TestBuild_Idempotent(t *testing.T) {
	b := testBuilder(t, 4)
	risk := Risk{Probability: 0.3, Duration: 2 * time.Hour, CriticalFraction: 0.7, VoLL: 5}
	a, err := b.Build(t0, 25000, risk)
	require.NoError(t, err)
	c, err := b.Build(t0, 25000, risk)
	require.NoError(t, err)
	assert.True(t, a.Problem.Equal(c.Problem))
	assert.Equal(t, a.Labels, c.Labels)
}

func TestBuild_LookupFailure(t *testing.T) {
	b := testBuilder(t, 3)
	b.Provider = flatSet(2, time.Hour)
	_, err := b.Build(t0, 20000, Risk{})
	require.Error(t, err)
	assert.ErrorIs(t, err, forecast.ErrLookup)
	var le *forecast.LookupError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, t0.Add(2*time.Hour), le.At)
}

func TestBuild_InvalidInputs(t *testing.T) {
	tests := []struct {
		name string
		mut  func(*Builder, *Risk)
		want error
	}{
		{"probability above one", func(_ *Builder, r *Risk) { r.Probability = 1.5 }, ErrInvalidRisk},
		{"negative critical fraction", func(_ *Builder, r *Risk) { r.CriticalFraction = -0.1 }, ErrInvalidRisk},
		{"negative duration", func(_ *Builder, r *Risk) { r.Duration = -time.Hour }, ErrInvalidRisk},
		{"negative voll", func(_ *Builder, r *Risk) { r.VoLL = -1 }, ErrInvalidRisk},
		{"no slots", func(b *Builder, _ *Risk) { b.Slots = 0 }, nil},
		{"no period", func(b *Builder, _ *Risk) { b.Period = 0 }, nil},
		{"no provider", func(b *Builder, _ *Risk) { b.Provider = nil }, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := testBuilder(t, 2)
			risk := Risk{Probability: 0.5, Duration: time.Hour, CriticalFraction: 0.5, VoLL: 1}
			tt.mut(&b, &risk)
			_, err := b.Build(t0, 20000, risk)
			require.Error(t, err)
			if tt.want != nil {
				assert.ErrorIs(t, err, tt.want)
			}
		})
	}
}

func TestLayout(t *testing.T) {
	l := Layout{Slots: 3}
	assert.Equal(t, 24, l.NumVars())
	assert.Equal(t, 8+int(LoadShed), l.Index(1, LoadShed))
	x, f := l.Locate(l.Index(2, BattEnergyIslanded))
	assert.Equal(t, 2, x)
	assert.Equal(t, BattEnergyIslanded, f)
	assert.Panics(t, func() { l.Index(3, CostSlack) })
	assert.Equal(t, "pv_shed", PVShed.String())
	assert.Len(t, Fields(), FieldsPerSlot)

	v := make([]float64, l.NumVars())
	v[l.Index(1, GridPower)] = 42
	assert.Equal(t, 42.0, l.Block(v, 1)[GridPower])
}
