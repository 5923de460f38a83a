// Package dataset loads forecast and price series from files or HTTP
// endpoints.
//
// CSV sources need a header row; the time and value columns are picked by
// name. YAML and JSON sources hold a list of {time, value} entries. Timestamps are parsed with
// the configured layout and normalised to UTC, values are multiplied by the
// series scale.
package dataset

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/gridmpc/auth"
	"github.com/kilianp07/gridmpc/core/forecast"
)

// Supported file formats.
const (
	FormatCSV  = "csv"
	FormatYAML = "yaml"
	FormatJSON = "json"
)

// Default column names and scales. The load scale converts kW of consumption
// into negative W, PV kW into W.
const (
	DefaultTimeColumn  = "time"
	DefaultValueColumn = "value"
	DefaultLoadScale   = -1000
	DefaultPVScale     = 1000
	DefaultPriceScale  = 1
)

// SeriesConfig locates one series on disk or behind a URL.
type SeriesConfig struct {
	Path string `json:"path" yaml:"path"`
	// URL is fetched with GET when Path is empty. Auth adds an OAuth2
	// client-credentials bearer token.
	URL         string     `json:"url" yaml:"url"`
	Auth        *auth.Conf `json:"auth" yaml:"auth"`
	Format      string     `json:"format" yaml:"format"`
	TimeColumn  string     `json:"time_column" yaml:"time_column"`
	ValueColumn string     `json:"value_column" yaml:"value_column"`
	TimeLayout  string     `json:"time_layout" yaml:"time_layout"`
	Scale       float64    `json:"scale" yaml:"scale"`
}

// SetDefaults fills empty fields. A zero scale is replaced by scale.
func (c *SeriesConfig) SetDefaults(scale float64) {
	if c.Format == "" {
		src := c.Path
		if src == "" {
			src = c.URL
		}
		if u, err := url.Parse(src); err == nil && u.Scheme != "" {
			src = u.Path
		}
		switch strings.ToLower(filepath.Ext(src)) {
		case ".yaml", ".yml":
			c.Format = FormatYAML
		case ".json":
			c.Format = FormatJSON
		default:
			c.Format = FormatCSV
		}
	}
	c.Format = strings.ToLower(c.Format)
	if c.TimeColumn == "" {
		c.TimeColumn = DefaultTimeColumn
	}
	if c.ValueColumn == "" {
		c.ValueColumn = DefaultValueColumn
	}
	if c.TimeLayout == "" {
		c.TimeLayout = time.RFC3339
	}
	if c.Scale == 0 {
		c.Scale = scale
	}
}

// Validate checks mandatory fields.
func (c SeriesConfig) Validate() error {
	if c.Path == "" && c.URL == "" {
		return errors.New("path or url is required")
	}
	if c.URL != "" {
		if _, err := url.ParseRequestURI(c.URL); err != nil {
			return fmt.Errorf("invalid url: %w", err)
		}
	}
	if c.Auth != nil {
		if err := c.Auth.Validate(); err != nil {
			return err
		}
	}
	switch c.Format {
	case FormatCSV, FormatYAML, FormatJSON:
		return nil
	default:
		return fmt.Errorf("unknown format %q", c.Format)
	}
}

// Config lists the four series consumed by the controller.
type Config struct {
	Load      SeriesConfig `json:"load" yaml:"load"`
	PV        SeriesConfig `json:"pv" yaml:"pv"`
	BuyPrice  SeriesConfig `json:"buy_price" yaml:"buy_price"`
	SellPrice SeriesConfig `json:"sell_price" yaml:"sell_price"`
}

// SetDefaults applies the per-series default scales.
func (c *Config) SetDefaults() {
	c.Load.SetDefaults(DefaultLoadScale)
	c.PV.SetDefaults(DefaultPVScale)
	c.BuyPrice.SetDefaults(DefaultPriceScale)
	c.SellPrice.SetDefaults(DefaultPriceScale)
}

// Validate checks every series.
func (c Config) Validate() error {
	names := []string{"load", "pv", "buy_price", "sell_price"}
	for i, sc := range []SeriesConfig{c.Load, c.PV, c.BuyPrice, c.SellPrice} {
		if err := sc.Validate(); err != nil {
			return fmt.Errorf("forecast.%s: %w", names[i], err)
		}
	}
	return nil
}

// Load reads the four series and bundles them into a forecast.Set.
func Load(cfg Config) (forecast.Set, error) {
	var set forecast.Set
	targets := []struct {
		name string
		sc   SeriesConfig
		dst  *forecast.Series
	}{
		{"load", cfg.Load, &set.Load},
		{"pv", cfg.PV, &set.PV},
		{"buy_price", cfg.BuyPrice, &set.Buy},
		{"sell_price", cfg.SellPrice, &set.Sell},
	}
	for _, t := range targets {
		s, err := LoadSeries(t.name, t.sc)
		if err != nil {
			return forecast.Set{}, err
		}
		*t.dst = s
	}
	return set, nil
}

// LoadSeries reads a single series from its file or URL.
func LoadSeries(name string, sc SeriesConfig) (forecast.Series, error) {
	src := sc.Path
	var (
		rc  io.ReadCloser
		err error
	)
	if src != "" {
		rc, err = os.Open(src)
	} else {
		src = sc.URL
		rc, err = fetch(context.Background(), sc)
	}
	if err != nil {
		return forecast.Series{}, fmt.Errorf("dataset %s: %w", name, err)
	}
	defer rc.Close()

	var pts []forecast.Point
	switch sc.Format {
	case FormatCSV:
		pts, err = ReadCSV(rc, sc)
	case FormatYAML, FormatJSON:
		pts, err = ReadYAML(rc, sc)
	default:
		err = fmt.Errorf("unknown format %q", sc.Format)
	}
	if err != nil {
		return forecast.Series{}, fmt.Errorf("dataset %s (%s): %w", name, src, err)
	}
	s, err := forecast.NewSeries(name, pts)
	if err != nil {
		return forecast.Series{}, fmt.Errorf("dataset %s (%s): %w", name, src, err)
	}
	return s, nil
}

// ReadCSV parses a CSV stream with a header row.
func ReadCSV(r io.Reader, sc SeriesConfig) ([]forecast.Point, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	ti, vi := -1, -1
	for i, h := range header {
		switch strings.TrimSpace(h) {
		case sc.TimeColumn:
			ti = i
		case sc.ValueColumn:
			vi = i
		}
	}
	if ti < 0 {
		return nil, fmt.Errorf("column %q not found", sc.TimeColumn)
	}
	if vi < 0 {
		return nil, fmt.Errorf("column %q not found", sc.ValueColumn)
	}

	var pts []forecast.Point
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		p, err := parsePoint(rec[ti], rec[vi], sc)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		pts = append(pts, p)
	}
	return pts, nil
}

type yamlEntry struct {
	Time  string `yaml:"time"`
	Value string `yaml:"value"`
}

// ReadYAML parses a YAML list of {time, value} entries. JSON input is
// accepted since it is valid YAML.
func ReadYAML(r io.Reader, sc SeriesConfig) ([]forecast.Point, error) {
	var entries []yamlEntry
	if err := yaml.NewDecoder(r).Decode(&entries); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	pts := make([]forecast.Point, 0, len(entries))
	for i, e := range entries {
		p, err := parsePoint(e.Time, e.Value, sc)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		pts = append(pts, p)
	}
	return pts, nil
}

func parsePoint(ts, val string, sc SeriesConfig) (forecast.Point, error) {
	t, err := time.Parse(sc.TimeLayout, strings.TrimSpace(ts))
	if err != nil {
		return forecast.Point{}, fmt.Errorf("parse time %q: %w", ts, err)
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
	if err != nil {
		return forecast.Point{}, fmt.Errorf("parse value %q: %w", val, err)
	}
	return forecast.Point{Time: t.UTC(), Value: v * sc.Scale}, nil
}
