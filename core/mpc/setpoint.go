package mpc

import "time"

// Setpoint is the message published to the site for the applied slot.
type Setpoint struct {
	StepID          string    `json:"step_id"`
	Time            time.Time `json:"time"`
	Iteration       int       `json:"iteration"`
	GridPowerW      float64   `json:"grid_power_w"`
	BatteryPowerW   float64   `json:"battery_power_w"`
	BatteryEnergyWh float64   `json:"battery_energy_wh"`
	LoadShed        float64   `json:"load_shed"`
	PVShed          float64   `json:"pv_shed"`
}

// NewSetpoint copies the grid-tied quantities of a, the part of the plan a
// site controller applies.
func NewSetpoint(stepID string, a Action) Setpoint {
	return Setpoint{
		StepID:          stepID,
		Time:            a.Time.UTC(),
		Iteration:       a.Iteration,
		GridPowerW:      a.GridPowerW,
		BatteryPowerW:   a.BattPowerGridTiedW,
		BatteryEnergyWh: a.BattEnergyGridTiedWh,
		LoadShed:        a.LoadShed,
		PVShed:          a.PVShed,
	}
}
