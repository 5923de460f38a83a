package kafka

import (
	"errors"
	"fmt"
	"time"

	kafkago "github.com/segmentio/kafka-go"
)

// Acknowledgement levels accepted in Config.Acks.
const (
	AcksNone = "none"
	AcksOne  = "one"
	AcksAll  = "all"
)

// Config describes where setpoints are written. Messages carry Key so that
// every setpoint of a site lands on the same partition, in order.
type Config struct {
	Enabled        bool     `json:"enabled" yaml:"enabled"`
	Brokers        []string `json:"brokers" yaml:"brokers"`
	Topic          string   `json:"topic" yaml:"topic"`
	Key            string   `json:"key" yaml:"key"`
	Acks           string   `json:"acks" yaml:"acks"`
	TimeoutSeconds int      `json:"timeout_seconds" yaml:"timeout_seconds"`
}

// SetDefaults fills the optional fields.
func (c *Config) SetDefaults() {
	if c.Topic == "" {
		c.Topic = "microgrid.setpoint"
	}
	if c.Key == "" {
		c.Key = "microgrid"
	}
	if c.Acks == "" {
		c.Acks = AcksOne
	}
	if c.TimeoutSeconds == 0 {
		c.TimeoutSeconds = 5
	}
}

// Validate checks the settings of an enabled publisher.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if len(c.Brokers) == 0 {
		return errors.New("kafka: at least one broker is required")
	}
	if c.Topic == "" {
		return errors.New("kafka: topic is required")
	}
	if c.TimeoutSeconds < 0 {
		return errors.New("kafka: timeout_seconds must not be negative")
	}
	if _, err := c.requiredAcks(); err != nil {
		return err
	}
	return nil
}

// Timeout bounds one Publish call.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c Config) requiredAcks() (kafkago.RequiredAcks, error) {
	switch c.Acks {
	case AcksNone:
		return kafkago.RequireNone, nil
	case AcksOne, "":
		return kafkago.RequireOne, nil
	case AcksAll:
		return kafkago.RequireAll, nil
	}
	return 0, fmt.Errorf("kafka: unknown acks %q", c.Acks)
}
