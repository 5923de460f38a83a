package metrics

import (
	"github.com/kilianp07/gridmpc/core/factory"
	coremetrics "github.com/kilianp07/gridmpc/core/metrics"
)

// Sink type names accepted in the metrics.sinks configuration.
const (
	SinkNop        = "nop"
	SinkPrometheus = "prometheus"
	SinkInflux     = "influx"
	SinkSentry     = "sentry"
)

func init() {
	_ = coremetrics.RegisterMetricsSink(SinkNop, func(map[string]any) (coremetrics.MetricsSink, error) {
		return coremetrics.NopSink{}, nil
	})
	_ = coremetrics.RegisterMetricsSink(SinkPrometheus, newPromFromConf)
	_ = coremetrics.RegisterMetricsSink(SinkInflux, newInfluxFromConf)
	_ = coremetrics.RegisterMetricsSink(SinkSentry, func(conf map[string]any) (coremetrics.MetricsSink, error) {
		var c SentryConfig
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewSentrySink(c)
	})
}

func newPromFromConf(conf map[string]any) (coremetrics.MetricsSink, error) {
	var c PromConfig
	if err := factory.Decode(conf, &c); err != nil {
		return nil, err
	}
	return NewPromSink(c)
}

// An unreachable InfluxDB degrades to a NopSink, a malformed config is an
// error.
func newInfluxFromConf(conf map[string]any) (coremetrics.MetricsSink, error) {
	var c InfluxConfig
	if err := factory.Decode(conf, &c); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return NewInfluxSinkWithFallback(c), nil
}
