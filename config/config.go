package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/gridmpc/core/battery"
	"github.com/kilianp07/gridmpc/core/decisionlog"
	"github.com/kilianp07/gridmpc/core/metrics"
	"github.com/kilianp07/gridmpc/infra/dataset"
	"github.com/kilianp07/gridmpc/infra/kafka"
	"github.com/kilianp07/gridmpc/infra/mqtt"
)

// EnvPrefix marks the environment variables that override file values.
// MPC_CONTROL__HORIZON_HOURS=12 sets control.horizon_hours.
const EnvPrefix = "MPC_"

type Config struct {
	Battery     battery.Config     `json:"battery"`
	Control     ControlConfig      `json:"control"`
	Risk        RiskConfig         `json:"risk"`
	Forecast    dataset.Config     `json:"forecast"`
	Metrics     metrics.Config     `json:"metrics"`
	MQTT        mqtt.Config        `json:"mqtt"`
	Kafka       kafka.Config       `json:"kafka"`
	DecisionLog decisionlog.Config `json:"decision_log"`
	HTTP        HTTPConfig         `json:"http"`
}

func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	// Optional environment overrides
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), strings.ToLower(EnvPrefix))
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	cfg.resolvePaths(filepath.Dir(path))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults applies every section's defaults.
func (c *Config) SetDefaults() {
	c.Battery.SetDefaults()
	c.Control.SetDefaults()
	c.Forecast.SetDefaults()
	c.MQTT.SetDefaults()
	c.Kafka.SetDefaults()
	c.DecisionLog.SetDefaults()
	c.HTTP.SetDefaults()
}

// Validate checks every section in declaration order.
func (c Config) Validate() error {
	if err := c.Battery.Validate(); err != nil {
		return err
	}
	if err := c.Control.Validate(); err != nil {
		return err
	}
	if err := c.Risk.Validate(); err != nil {
		return err
	}
	if err := c.Forecast.Validate(); err != nil {
		return err
	}
	if err := c.MQTT.Validate(); err != nil {
		return err
	}
	if err := c.Kafka.Validate(); err != nil {
		return err
	}
	return c.DecisionLog.Validate()
}

// resolvePaths makes file paths relative to the configuration file.
func (c *Config) resolvePaths(dir string) {
	for _, p := range []*string{
		&c.Forecast.Load.Path, &c.Forecast.PV.Path,
		&c.Forecast.BuyPrice.Path, &c.Forecast.SellPrice.Path,
		&c.DecisionLog.Path,
	} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(dir, *p)
		}
	}
}
