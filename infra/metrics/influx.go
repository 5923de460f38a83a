package metrics

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/gridmpc/core/metrics"
	"github.com/kilianp07/gridmpc/infra/logger"
)

// InfluxConfig locates the bucket the sink writes to.
type InfluxConfig struct {
	URL     string        `json:"url"`
	Token   string        `json:"token"`
	Org     string        `json:"org"`
	Bucket  string        `json:"bucket"`
	Timeout time.Duration `json:"timeout"`
}

// Validate checks that the sink knows where to write.
func (c InfluxConfig) Validate() error {
	switch {
	case c.URL == "":
		return errors.New("influx: url is required")
	case c.Org == "":
		return errors.New("influx: org is required")
	case c.Bucket == "":
		return errors.New("influx: bucket is required")
	case c.Timeout < 0:
		return errors.New("influx: timeout must be positive")
	}
	return nil
}

func (c InfluxConfig) timeout() time.Duration {
	if c.Timeout <= 0 {
		return 5 * time.Second
	}
	return c.Timeout
}

// InfluxSink writes controller steps to an InfluxDB instance using the
// official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	timeout  time.Duration
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(cfg InfluxConfig) *InfluxSink {
	base := strings.TrimSuffix(cfg.URL, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, cfg.Token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: cfg.timeout()}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		timeout:  cfg.timeout(),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback tries to ping the InfluxDB instance and
// returns a NopSink if the health check fails.
func NewInfluxSinkWithFallback(cfg InfluxConfig) coremetrics.MetricsSink {
	sink := NewInfluxSink(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), sink.timeout)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// Close releases the HTTP resources of the client.
func (s *InfluxSink) Close() { s.client.Close() }

// RecordStep writes one mpc_step point.
func (s *InfluxSink) RecordStep(ev coremetrics.StepEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	p := write.NewPointWithMeasurement("mpc_step").
		AddTag("status", ev.Outcome()).
		AddTag("step_id", ev.StepID).
		AddField("iteration", ev.Iteration).
		AddField("duration_ms", round3(ev.Duration.Seconds()*1000))
	if ev.Failed() {
		p = p.AddField("error", ev.Err.Error())
	} else {
		a := ev.Action
		p = p.AddField("grid_power_w", round3(a.GridPowerW)).
			AddField("battery_power_w", round3(a.BattPowerGridTiedW)).
			AddField("battery_energy_wh", round3(a.BattEnergyGridTiedWh)).
			AddField("load_shed", round3(a.LoadShed)).
			AddField("pv_shed", round3(a.PVShed)).
			AddField("cost_slack", round3(a.CostSlack)).
			AddField("objective", round3(ev.Objective))
	}
	p = p.SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordPlan writes one mpc_plan point per slot of the trajectory.
func (s *InfluxSink) RecordPlan(ev coremetrics.PlanEvent) error {
	if ev.Plan == nil || len(ev.Plan.Actions) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	points := make([]*write.Point, 0, len(ev.Plan.Actions))
	for x, a := range ev.Plan.Actions {
		points = append(points, write.NewPointWithMeasurement("mpc_plan").
			AddTag("step_id", ev.StepID).
			AddTag("slot", strconv.Itoa(x)).
			AddField("iteration", ev.Plan.Iteration).
			AddField("grid_power_w", round3(a.GridPowerW)).
			AddField("battery_power_w", round3(a.BattPowerGridTiedW)).
			AddField("battery_energy_wh", round3(a.BattEnergyGridTiedWh)).
			AddField("islanded_energy_wh", round3(a.BattEnergyIslandedWh)).
			AddField("load_shed", round3(a.LoadShed)).
			AddField("pv_shed", round3(a.PVShed)).
			SetTime(a.Time))
	}
	return s.writeAPI.WritePoint(ctx, points...)
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
