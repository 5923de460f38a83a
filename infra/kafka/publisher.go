package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/kilianp07/gridmpc/core/mpc"
	"github.com/kilianp07/gridmpc/infra/logger"
)

// ErrTimeout is returned when the brokers did not acknowledge in time.
var ErrTimeout = errors.New("kafka: timed out waiting for brokers")

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

var newWriter = func(cfg Config) messageWriter {
	acks, _ := cfg.requiredAcks()
	return &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: acks,
		WriteTimeout: cfg.Timeout(),
	}
}

// Publisher writes setpoints to a Kafka topic.
type Publisher struct {
	w       messageWriter
	topic   string
	key     []byte
	timeout time.Duration
	log     logger.Logger
}

// NewPublisher builds a synchronous writer for cfg. No connection is made
// until the first Publish.
func NewPublisher(cfg Config) (*Publisher, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Publisher{
		w:       newWriter(cfg),
		topic:   cfg.Topic,
		key:     []byte(cfg.Key),
		timeout: cfg.Timeout(),
		log:     logger.New("kafka_publisher"),
	}, nil
}

// Publish writes the setpoint of a. The step identifier is also sent as a
// header so consumers can correlate without decoding the value.
func (p *Publisher) Publish(ctx context.Context, stepID string, a mpc.Action) error {
	if stepID == "" {
		stepID = uuid.NewString()
	}
	value, err := json.Marshal(mpc.NewSetpoint(stepID, a))
	if err != nil {
		return err
	}
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	msg := kafkago.Message{
		Key:     p.key,
		Value:   value,
		Time:    a.Time.UTC(),
		Headers: []kafkago.Header{{Key: "step_id", Value: []byte(stepID)}},
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = ErrTimeout
		}
		return fmt.Errorf("publish step %s: %w", stepID, err)
	}
	p.log.Infof("sent setpoint %s to %s", stepID, p.topic)
	return nil
}

// Close flushes and closes the writer.
func (p *Publisher) Close() error { return p.w.Close() }
