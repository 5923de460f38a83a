package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/gridmpc/core/decisionlog"
	"github.com/kilianp07/gridmpc/core/lp"
)

const sampleYAML = `battery:
  capacity_wh: 20000
  reserve_fraction: 0.2
control:
  start: "2024-01-01T00:00:00Z"
  horizon_hours: 6
  period_minutes: 30
  solver:
    timeout_seconds: 2
risk:
  outage_probability: 0.1
  outage_duration_hours: 2
  critical_load_fraction: 0.5
  voll: 10
forecast:
  load:
    path: data/load.csv
    value_column: "Electricity:Facility [kW](Hourly)"
  pv:
    path: /abs/pv.csv
  buy_price:
    path: data/buy.yaml
  sell_price:
    path: data/sell.yaml
    scale: 0.001
metrics:
  sinks:
    - type: "nop"
mqtt:
  enabled: true
  broker: "tcp://localhost:1883"
  qos: 1
kafka:
  enabled: true
  brokers: ["kafka-1:9092", "kafka-2:9092"]
  acks: all
decision_log:
  backend: jsonl
`

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

//nolint:gocyclo
func TestLoad(t *testing.T) {
	path := writeConfig(t, "config.yaml", sampleYAML)
	dir := filepath.Dir(path)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	checks := []struct {
		name string
		got  any
		want any
	}{
		{"battery.capacity_wh", cfg.Battery.CapacityWh, 20000.0},
		{"battery.charge default", cfg.Battery.ChargePowerW, 8000.0},
		{"control.horizon", cfg.Control.MPC().Horizon, 6 * time.Hour},
		{"control.period", cfg.Control.MPC().Period, 30 * time.Minute},
		{"control.slots", cfg.Control.MPC().Slots(), 12},
		{"control.tolerance default", cfg.Control.Solver.Tolerance, lp.DefaultTolerance},
		{"solver.timeout", cfg.Control.NewSolver().Timeout, 2 * time.Second},
		{"risk.duration", cfg.Risk.Risk().Duration, 2 * time.Hour},
		{"risk.voll", cfg.Risk.Risk().VoLL, 10.0},
		{"forecast.load.path", cfg.Forecast.Load.Path, filepath.Join(dir, "data/load.csv")},
		{"forecast.load.column", cfg.Forecast.Load.ValueColumn, "Electricity:Facility [kW](Hourly)"},
		{"forecast.load.scale", cfg.Forecast.Load.Scale, -1000.0},
		{"forecast.pv.path", cfg.Forecast.PV.Path, "/abs/pv.csv"},
		{"forecast.pv.scale", cfg.Forecast.PV.Scale, 1000.0},
		{"forecast.buy.format", cfg.Forecast.BuyPrice.Format, "yaml"},
		{"forecast.sell.scale", cfg.Forecast.SellPrice.Scale, 0.001},
		{"metrics_sink", len(cfg.Metrics.Sinks) == 1 && cfg.Metrics.Sinks[0].Type == "nop", true},
		{"mqtt.qos", cfg.MQTT.QoS, byte(1)},
		{"mqtt.topic default", cfg.MQTT.Topic, "microgrid/setpoint"},
		{"kafka.brokers", len(cfg.Kafka.Brokers), 2},
		{"kafka.acks", cfg.Kafka.Acks, "all"},
		{"kafka.topic default", cfg.Kafka.Topic, "microgrid.setpoint"},
		{"decision_log.path", cfg.DecisionLog.Path, filepath.Join(dir, "decisions.jsonl")},
		{"http.address", cfg.HTTP.Address, ":8080"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s mismatch: got %v want %v", c.name, c.got, c.want)
		}
	}
	start, err := cfg.Control.StartTime()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), start)
}

func TestLoadEnvOverride(t *testing.T) {
	path := writeConfig(t, "config.yaml", sampleYAML)
	t.Setenv("MPC_CONTROL__HORIZON_HOURS", "3")
	t.Setenv("MPC_RISK__OUTAGE_PROBABILITY", "0.4")
	t.Setenv("MPC_DECISION_LOG__BACKEND", "sqlite")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3*time.Hour, cfg.Control.MPC().Horizon)
	assert.Equal(t, 0.4, cfg.Risk.OutageProbability)
	assert.Equal(t, decisionlog.BackendSQLite, cfg.DecisionLog.Backend)
}

func TestLoadJSON(t *testing.T) {
	path := writeConfig(t, "config.json", `{
  "forecast": {
    "load": {"path": "l.csv"}, "pv": {"path": "p.csv"},
    "buy_price": {"path": "b.csv"}, "sell_price": {"path": "s.csv"}
  }
}`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultStart, cfg.Control.Start)
	assert.Equal(t, 24, cfg.Control.MPC().Slots())
	assert.Equal(t, decisionlog.BackendNone, cfg.DecisionLog.Backend)
	assert.False(t, cfg.MQTT.Enabled)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		file string
		body string
		want string
	}{
		{"format", "config.toml", "", "unsupported config format"},
		{"missing forecast", "config.yaml", "battery: {capacity_wh: 1000}\n", "forecast.load"},
		{"bad battery", "config.yaml", "battery: {reserve_fraction: 1.5}\n", "reserve_fraction"},
		{"bad start", "config.yaml", "control: {start: yesterday}\n", "control.start"},
		{"short horizon", "config.yaml", "control: {horizon_hours: 0.5}\n", "horizon"},
		{"bad risk", "config.yaml", "risk: {outage_probability: 2}\n", "risk"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.file, tt.body)
			_, err := Load(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
	assert.Error(t, err)
}
