// Package infra holds the adapters around the controller: dataset loaders,
// the MQTT and Kafka setpoint publishers, metrics exporters and the zerolog
// logger. They depend on the contracts declared under core, never the reverse.
package infra
