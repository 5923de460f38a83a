package mpc

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/kilianp07/gridmpc/core/battery"
	"github.com/kilianp07/gridmpc/core/forecast"
	"github.com/kilianp07/gridmpc/core/logger"
	"github.com/kilianp07/gridmpc/core/lp"
)

// ErrInvalidRequest is wrapped when the measured state is unusable.
var ErrInvalidRequest = errors.New("mpc: invalid request")

// Config fixes the time grid of the controller.
type Config struct {
	// Start is the timestamp of iteration 0.
	Start   time.Time
	Horizon time.Duration
	Period  time.Duration
}

// Slots returns the number of slots in the horizon.
func (c Config) Slots() int {
	if c.Period <= 0 {
		return 0
	}
	return int(c.Horizon / c.Period)
}

// Validate checks that the horizon holds at least one slot.
func (c Config) Validate() error {
	if c.Period <= 0 {
		return fmt.Errorf("mpc: period must be positive, got %s", c.Period)
	}
	if c.Slots() < 1 {
		return fmt.Errorf("mpc: horizon %s shorter than one period of %s", c.Horizon, c.Period)
	}
	return nil
}

// Request is the input of one control step.
type Request struct {
	// SOC is the measured stored energy in Wh.
	SOC       float64 `json:"soc_wh"`
	Iteration int     `json:"iteration"`
	Risk      Risk    `json:"risk"`
}

// Action is the decision for one slot. GridPowerW uses the load convention:
// import is negative, export positive.
type Action struct {
	Time                 time.Time `json:"time"`
	Iteration            int       `json:"iteration"`
	CostSlack            float64   `json:"cost_slack"`
	GridPowerW           float64   `json:"grid_power_w"`
	BattPowerGridTiedW   float64   `json:"battery_power_w"`
	BattEnergyGridTiedWh float64   `json:"battery_energy_wh"`
	BattPowerIslandedW   float64   `json:"islanded_battery_power_w"`
	BattEnergyIslandedWh float64   `json:"islanded_battery_energy_wh"`
	LoadShed             float64   `json:"load_shed"`
	PVShed               float64   `json:"pv_shed"`
	Objective            float64   `json:"objective"`
	Status               lp.Status `json:"status"`
}

// Values returns the slot quantities in Field order.
func (a Action) Values() [FieldsPerSlot]float64 {
	return [FieldsPerSlot]float64{
		CostSlack:          a.CostSlack,
		GridPower:          a.GridPowerW,
		BattPowerGridTied:  a.BattPowerGridTiedW,
		BattEnergyGridTied: a.BattEnergyGridTiedWh,
		BattPowerIslanded:  a.BattPowerIslandedW,
		BattEnergyIslanded: a.BattEnergyIslandedWh,
		LoadShed:           a.LoadShed,
		PVShed:             a.PVShed,
	}
}

// Plan is the full optimal trajectory of one step.
type Plan struct {
	Start       time.Time       `json:"start"`
	Iteration   int             `json:"iteration"`
	Objective   float64         `json:"objective"`
	Status      lp.Status       `json:"status"`
	OutageSlots int             `json:"outage_slots"`
	Actions     []Action        `json:"actions"`
	Forecast    []forecast.Slot `json:"forecast"`
	Elapsed     time.Duration   `json:"elapsed"`
}

// First returns the action applied at the current step.
func (p *Plan) First() Action { return p.Actions[0] }

// Controller runs one receding-horizon step per call. It keeps no state
// between calls and may be used concurrently.
type Controller struct {
	cfg     Config
	builder Builder
	solver  lp.Solver
	log     logger.Logger
}

// NewController validates the time grid and wires the builder.
func NewController(cfg Config, bat battery.Params, prov forecast.Provider, solver lp.Solver, log logger.Logger) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if prov == nil {
		return nil, errors.New("mpc: forecast provider is required")
	}
	if solver == nil {
		solver = lp.NewSimplexSolver(lp.DefaultTolerance, 0)
	}
	if log == nil {
		log = logger.Nop{}
	}
	return &Controller{
		cfg: cfg,
		builder: Builder{
			Battery:  bat,
			Period:   cfg.Period,
			Slots:    cfg.Slots(),
			Provider: prov,
		},
		solver: solver,
		log:    log,
	}, nil
}

// Config returns the time grid the controller was built with.
func (c *Controller) Config() Config { return c.cfg }

// StartOf returns the first slot timestamp of the given iteration.
func (c *Controller) StartOf(iteration int) time.Time {
	return c.cfg.Start.Add(time.Duration(iteration) * c.cfg.Period)
}

// Build assembles the problem of a request without solving it.
func (c *Controller) Build(req Request) (*Instance, error) {
	if math.IsNaN(req.SOC) || math.IsInf(req.SOC, 0) || req.SOC < 0 {
		return nil, fmt.Errorf("%w: soc %g Wh", ErrInvalidRequest, req.SOC)
	}
	if req.Iteration < 0 {
		return nil, fmt.Errorf("%w: negative iteration %d", ErrInvalidRequest, req.Iteration)
	}
	return c.builder.Build(c.StartOf(req.Iteration), req.SOC, req.Risk)
}

// Step solves the horizon problem and returns the first slot's action.
func (c *Controller) Step(ctx context.Context, req Request) (Action, error) {
	plan, err := c.Plan(ctx, req)
	if err != nil {
		return Action{}, err
	}
	a := plan.First()
	c.log.Infof("iteration %d: grid %.1f W battery %.1f W energy %.1f Wh shed %.3f objective %.4f",
		req.Iteration, a.GridPowerW, a.BattPowerGridTiedW, a.BattEnergyGridTiedWh, a.LoadShed, a.Objective)
	return a, nil
}

// Plan solves the horizon problem and decodes every slot.
func (c *Controller) Plan(ctx context.Context, req Request) (*Plan, error) {
	in, err := c.Build(req)
	if err != nil {
		return nil, fmt.Errorf("iteration %d: %w", req.Iteration, err)
	}
	c.log.Debugw("horizon built", map[string]any{
		"iteration":    req.Iteration,
		"start":        in.Start,
		"slots":        in.Layout.Slots,
		"outage_slots": in.OutageSlots,
		"eq_rows":      in.Problem.NumEq(),
		"ub_rows":      in.Problem.NumUb(),
	})
	sol, err := c.solver.Solve(ctx, in.Problem)
	if err != nil {
		c.log.Warnf("iteration %d: solve failed: %v", req.Iteration, err)
		return nil, fmt.Errorf("iteration %d: %w", req.Iteration, err)
	}
	return decode(in, sol, req.Iteration), nil
}

func decode(in *Instance, sol *lp.Solution, iteration int) *Plan {
	plan := &Plan{
		Start:       in.Start,
		Iteration:   iteration,
		Objective:   sol.Objective,
		Status:      sol.Status,
		OutageSlots: in.OutageSlots,
		Actions:     make([]Action, in.Layout.Slots),
		Forecast:    in.Slots,
		Elapsed:     sol.Elapsed,
	}
	for x := range plan.Actions {
		v := in.Layout.Block(sol.X, x)
		plan.Actions[x] = Action{
			Time:      in.Slots[x].Time,
			Iteration: iteration,
			CostSlack: v[CostSlack],
			// The program counts import as positive; callers use the load
			// convention.
			GridPowerW:           -v[GridPower],
			BattPowerGridTiedW:   v[BattPowerGridTied],
			BattEnergyGridTiedWh: v[BattEnergyGridTied],
			BattPowerIslandedW:   v[BattPowerIslanded],
			BattEnergyIslandedWh: v[BattEnergyIslanded],
			LoadShed:             v[LoadShed],
			PVShed:               v[PVShed],
			Objective:            sol.Objective,
			Status:               sol.Status,
		}
	}
	return plan
}
