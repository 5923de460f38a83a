package mpc

import "github.com/kilianp07/gridmpc/core/forecast"

// Rule names as they appear in row labels.
const (
	RuleGridSOC       = "grid_soc"
	RuleGridBalance   = "grid_balance"
	RuleIslandBalance = "island_balance"
	RuleIslandSOC     = "island_soc"
	RuleModeCoupling  = "mode_coupling"
	RuleCostBuy       = "cost_buy"
	RuleCostSell      = "cost_sell"
)

// slotContext is everything a rule may look at when generating the row of
// slot x.
type slotContext struct {
	x      int
	slot   forecast.Slot
	risk   Risk
	outage int     // outage length in slots
	soc    float64 // measured energy at the start of the horizon
	hours  float64 // slot length in hours
}

// term references a variable by slot offset and field. The offset is
// relative to the slot the rule is evaluated for.
type term struct {
	offset int
	field  Field
	coef   float64
}

type row struct {
	terms []term
	rhs   float64
}

// rule generates at most one row per slot.
type rule struct {
	name    string
	applies func(c slotContext) bool
	row     func(c slotContext) row
}

func always(slotContext) bool { return true }

// soc builds E[x] + h·P[x] - E[x-1] = 0, or E[0] + h·P[0] = soc.
func soc(energy, power Field) func(c slotContext) row {
	return func(c slotContext) row {
		r := row{terms: []term{{0, energy, 1}, {0, power, c.hours}}}
		if c.x == 0 {
			r.rhs = c.soc
			return r
		}
		r.terms = append(r.terms, term{-1, energy, -1})
		return r
	}
}

var equalityRules = []rule{
	{
		name:    RuleGridSOC,
		applies: always,
		row:     soc(BattEnergyGridTied, BattPowerGridTied),
	},
	{
		name:    RuleGridBalance,
		applies: always,
		row: func(c slotContext) row {
			return row{
				terms: []term{{0, GridPower, 1}, {0, BattPowerGridTied, 1}},
				rhs:   c.slot.NetW(),
			}
		},
	},
	{
		// The outage starts one slot after the decision and lasts d slots.
		name:    RuleIslandBalance,
		applies: func(c slotContext) bool { return c.x >= 1 && c.x <= c.outage },
		row: func(c slotContext) row {
			critical := c.risk.CriticalFraction * c.slot.LoadW
			return row{
				terms: []term{
					{0, BattPowerIslanded, 1},
					{0, LoadShed, -critical},
					{0, PVShed, -c.slot.PVW},
				},
				rhs: -(c.slot.PVW + critical),
			}
		},
	},
	{
		name:    RuleIslandSOC,
		applies: always,
		row:     soc(BattEnergyIslanded, BattPowerIslanded),
	},
	{
		name:    RuleModeCoupling,
		applies: func(c slotContext) bool { return c.risk.Probability > 0 && c.x == 0 },
		row: func(slotContext) row {
			return row{terms: []term{{0, BattEnergyGridTied, 1}, {0, BattEnergyIslanded, -1}}}
		},
	},
}

// costRow builds -ε[x] + Pg[x]·price·h/1000 <= 0.
func costRow(price func(forecast.Slot) float64) func(c slotContext) row {
	return func(c slotContext) row {
		return row{terms: []term{
			{0, CostSlack, -1},
			{0, GridPower, price(c.slot) * c.hours / 1000},
		}}
	}
}

var inequalityRules = []rule{
	{name: RuleCostBuy, applies: always, row: costRow(func(s forecast.Slot) float64 { return s.BuyPrice })},
	{name: RuleCostSell, applies: always, row: costRow(func(s forecast.Slot) float64 { return s.SellPrice })},
}
