package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/kilianp07/gridmpc/config"
	coremetrics "github.com/kilianp07/gridmpc/core/metrics"
	"github.com/kilianp07/gridmpc/core/mpc"
	"github.com/kilianp07/gridmpc/infra/kafka"
	"github.com/kilianp07/gridmpc/infra/mqtt"
)

// fanout publishes every setpoint on each transport. All transports are
// attempted even when one fails.
type fanout []Publisher

func (f fanout) Publish(ctx context.Context, stepID string, a mpc.Action) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, stepID, a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// newPublishers connects the enabled transports. It returns nil when none
// is enabled.
func newPublishers(cfg *config.Config) (Publisher, error) {
	var pubs fanout
	if cfg.MQTT.Enabled {
		p, err := mqtt.NewPublisher(cfg.MQTT)
		if err != nil {
			return nil, fmt.Errorf("mqtt publisher: %w", err)
		}
		pubs = append(pubs, p)
	}
	if cfg.Kafka.Enabled {
		p, err := kafka.NewPublisher(cfg.Kafka)
		if err != nil {
			closePublisher(pubs)
			return nil, fmt.Errorf("kafka publisher: %w", err)
		}
		pubs = append(pubs, p)
	}
	switch len(pubs) {
	case 0:
		return nil, nil
	case 1:
		return pubs[0], nil
	}
	return pubs, nil
}

func closePublisher(p Publisher) {
	switch v := p.(type) {
	case fanout:
		for _, sub := range v {
			closePublisher(sub)
		}
	case interface{ Disconnect() }:
		v.Disconnect()
	case interface{ Close() error }:
		_ = v.Close()
	}
}

func closeSink(s coremetrics.MetricsSink) {
	if c, ok := s.(interface{ Close() }); ok {
		c.Close()
	}
}
