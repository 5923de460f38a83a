package metrics

import (
	"errors"

	coremetrics "github.com/kilianp07/gridmpc/core/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

// PromConfig tunes the Prometheus sink.
type PromConfig struct {
	// Buckets of the solve duration histogram, in seconds.
	Buckets []float64 `json:"buckets"`
}

// PromSink records controller steps in Prometheus metrics.
type PromSink struct {
	steps     *prometheus.CounterVec
	duration  prometheus.Histogram
	grid      prometheus.Gauge
	battery   prometheus.Gauge
	energy    prometheus.Gauge
	shed      prometheus.Gauge
	objective prometheus.Gauge
}

// NewPromSink registers step metrics on the default Prometheus registerer.
// The /metrics endpoint is served by Handler.
func NewPromSink(cfg PromConfig) (*PromSink, error) {
	return NewPromSinkWithRegistry(cfg, prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer. Collectors
// that are already registered are reused.
func NewPromSinkWithRegistry(cfg PromConfig, reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	buckets := cfg.Buckets
	if len(buckets) == 0 {
		buckets = prometheus.ExponentialBuckets(0.005, 2, 12)
	}
	s := &PromSink{
		steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mpc_steps_total",
			Help: "Controller steps by solver status",
		}, []string{"status"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "mpc_solve_duration_seconds",
			Help:    "Time spent building and solving the horizon problem",
			Buckets: buckets,
		}),
		grid:      gauge("mpc_grid_power_watts", "Grid power of the applied slot, import negative"),
		battery:   gauge("mpc_battery_power_watts", "Battery power of the applied slot, discharge positive"),
		energy:    gauge("mpc_battery_energy_wh", "Planned stored energy at the end of the applied slot"),
		shed:      gauge("mpc_load_shed_fraction", "Planned critical load shed of the applied slot"),
		objective: gauge("mpc_objective", "Optimal objective of the last successful step"),
	}
	var err error
	if s.steps, err = register(reg, s.steps); err != nil {
		return nil, err
	}
	if s.duration, err = register(reg, s.duration); err != nil {
		return nil, err
	}
	for _, g := range []*prometheus.Gauge{&s.grid, &s.battery, &s.energy, &s.shed, &s.objective} {
		if *g, err = register(reg, *g); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func gauge(name, help string) prometheus.Gauge {
	return prometheus.NewGauge(prometheus.GaugeOpts{Name: name, Help: help})
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// RecordStep counts the step and, when it succeeded, exposes the applied
// setpoints.
func (s *PromSink) RecordStep(ev coremetrics.StepEvent) error {
	s.steps.WithLabelValues(ev.Outcome()).Inc()
	s.duration.Observe(ev.Duration.Seconds())
	if ev.Failed() {
		return nil
	}
	s.grid.Set(ev.Action.GridPowerW)
	s.battery.Set(ev.Action.BattPowerGridTiedW)
	s.energy.Set(ev.Action.BattEnergyGridTiedWh)
	s.shed.Set(ev.Action.LoadShed)
	s.objective.Set(ev.Objective)
	return nil
}
