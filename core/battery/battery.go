// Package battery holds the immutable parameters of the storage unit that the
// dispatch problem is built around.
package battery

import (
	"errors"
	"fmt"
)

// Config is the user-facing battery description. Powers are magnitudes in W,
// capacity in Wh.
type Config struct {
	CapacityWh      float64 `json:"capacity_wh"`
	ReserveFraction float64 `json:"reserve_fraction"`
	ChargePowerW    float64 `json:"charge_power_w"`
	DischargePowerW float64 `json:"discharge_power_w"`
	Efficiency      float64 `json:"efficiency"`
}

// SetDefaults fills zero fields with the values of the reference installation.
func (c *Config) SetDefaults() {
	if c.CapacityWh == 0 {
		c.CapacityWh = 38000
	}
	if c.ReserveFraction == 0 {
		c.ReserveFraction = 0.3
	}
	if c.ChargePowerW == 0 {
		c.ChargePowerW = 8000
	}
	if c.DischargePowerW == 0 {
		c.DischargePowerW = 8000
	}
	if c.Efficiency == 0 {
		c.Efficiency = 0.95
	}
}

// Validate checks physical consistency.
func (c Config) Validate() error {
	if c.CapacityWh <= 0 {
		return errors.New("battery: capacity_wh must be positive")
	}
	if c.ReserveFraction < 0 || c.ReserveFraction >= 1 {
		return fmt.Errorf("battery: reserve_fraction %.3f outside [0,1)", c.ReserveFraction)
	}
	if c.ChargePowerW <= 0 || c.DischargePowerW <= 0 {
		return errors.New("battery: charge and discharge power must be positive")
	}
	if c.Efficiency <= 0 || c.Efficiency > 1 {
		return fmt.Errorf("battery: efficiency %.3f outside (0,1]", c.Efficiency)
	}
	return nil
}

// Params derives the bound pairs used when building constraints.
func (c Config) Params() (Params, error) {
	if err := c.Validate(); err != nil {
		return Params{}, err
	}
	return Params{
		EnergyMaxWh:     c.CapacityWh,
		EnergyMinWh:     c.CapacityWh * c.ReserveFraction,
		ChargeLimitW:    -c.ChargePowerW,
		DischargeLimitW: c.DischargePowerW,
		Efficiency:      c.Efficiency,
	}, nil
}

// Params are the constants consumed by the problem builder. Battery power is
// positive when discharging, so ChargeLimitW is negative.
//
// Efficiency is carried for reporting only; the dispatch model treats the
// battery as lossless.
type Params struct {
	EnergyMaxWh     float64
	EnergyMinWh     float64
	ChargeLimitW    float64
	DischargeLimitW float64
	Efficiency      float64
}

// PowerBounds returns the admissible battery power range [charge, discharge].
func (p Params) PowerBounds() (lo, hi float64) { return p.ChargeLimitW, p.DischargeLimitW }

// EnergyBounds returns the admissible stored energy range [min, max].
func (p Params) EnergyBounds() (lo, hi float64) { return p.EnergyMinWh, p.EnergyMaxWh }

// UsableWh is the energy available between the reserve and full charge.
func (p Params) UsableWh() float64 { return p.EnergyMaxWh - p.EnergyMinWh }
