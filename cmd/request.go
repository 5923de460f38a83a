package cmd

import (
	"encoding/json"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/gridmpc/core/mpc"
)

// stepFlags are shared by the step and plan commands. Risk flags left unset
// keep the values of the risk section.
type stepFlags struct {
	soc         float64
	iteration   int
	probability float64
	duration    float64
	critical    float64
	voll        float64
}

func (f *stepFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.Float64Var(&f.soc, "soc", 0, "measured stored energy in Wh")
	fs.IntVar(&f.iteration, "iteration", 0, "control step index since control.start")
	fs.Float64Var(&f.probability, "probability", 0, "outage probability in [0,1]")
	fs.Float64Var(&f.duration, "duration", 0, "outage duration in hours")
	fs.Float64Var(&f.critical, "critical", 0, "critical load fraction in [0,1]")
	fs.Float64Var(&f.voll, "voll", 0, "value of lost load per kWh")
	_ = cmd.MarkFlagRequired("soc")
}

func (f *stepFlags) request(cmd *cobra.Command, def mpc.Risk) mpc.Request {
	risk := def
	fs := cmd.Flags()
	if fs.Changed("probability") {
		risk.Probability = f.probability
	}
	if fs.Changed("duration") {
		risk.Duration = time.Duration(f.duration * float64(time.Hour))
	}
	if fs.Changed("critical") {
		risk.CriticalFraction = f.critical
	}
	if fs.Changed("voll") {
		risk.VoLL = f.voll
	}
	return mpc.Request{SOC: f.soc, Iteration: f.iteration, Risk: risk}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
