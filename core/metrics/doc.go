// Package metrics defines the observability contract of the controller. Every
// control step produces a StepEvent that sinks such as the Prometheus and
// InfluxDB implementations in infra/metrics record. Sinks are created from
// configuration through a factory registry; NewMetricsSink returns a
// MultiSink when several sinks are configured.
package metrics
