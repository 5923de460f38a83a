package mpc

import "fmt"

// Field names one variable inside a slot block.
type Field int

const (
	CostSlack Field = iota
	GridPower
	BattPowerGridTied
	BattEnergyGridTied
	BattPowerIslanded
	BattEnergyIslanded
	LoadShed
	PVShed
	numFields
)

// FieldsPerSlot is the size of a slot block.
const FieldsPerSlot = int(numFields)

var fieldNames = [...]string{
	CostSlack:          "cost_slack",
	GridPower:          "grid_power",
	BattPowerGridTied:  "batt_power_gridtied",
	BattEnergyGridTied: "batt_energy_gridtied",
	BattPowerIslanded:  "batt_power_islanded",
	BattEnergyIslanded: "batt_energy_islanded",
	LoadShed:           "load_shed",
	PVShed:             "pv_shed",
}

func (f Field) String() string {
	if f < 0 || f >= numFields {
		return fmt.Sprintf("field(%d)", int(f))
	}
	return fieldNames[f]
}

// Fields lists every field in block order.
func Fields() []Field {
	out := make([]Field, FieldsPerSlot)
	for i := range out {
		out[i] = Field(i)
	}
	return out
}

// Layout maps (slot, field) pairs onto the flat decision vector. Blocks are
// stored slot-major.
type Layout struct {
	Slots int
}

// NumVars returns the length of the decision vector.
func (l Layout) NumVars() int { return l.Slots * FieldsPerSlot }

// Index returns the position of field f of slot x.
func (l Layout) Index(x int, f Field) int {
	if x < 0 || x >= l.Slots || f < 0 || f >= numFields {
		panic(fmt.Sprintf("mpc: slot %d field %s outside layout of %d slots", x, f, l.Slots))
	}
	return x*FieldsPerSlot + int(f)
}

// Locate is the inverse of Index.
func (l Layout) Locate(i int) (int, Field) {
	return i / FieldsPerSlot, Field(i % FieldsPerSlot)
}

// Block extracts the values of slot x from a decision vector.
func (l Layout) Block(v []float64, x int) [FieldsPerSlot]float64 {
	var out [FieldsPerSlot]float64
	copy(out[:], v[l.Index(x, 0):l.Index(x, 0)+FieldsPerSlot])
	return out
}
