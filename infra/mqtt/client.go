package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// Config defines the broker connection and the setpoint topic.
type Config struct {
	Enabled        bool        `json:"enabled" yaml:"enabled"`
	Broker         string      `json:"broker" yaml:"broker"`
	ClientID       string      `json:"client_id" yaml:"client_id"`
	Username       string      `json:"username" yaml:"username"`
	Password       string      `json:"password" yaml:"password"`
	Topic          string      `json:"topic" yaml:"topic"`
	QoS            byte        `json:"qos" yaml:"qos"`
	Retain         bool        `json:"retain" yaml:"retain"`
	TimeoutSeconds int         `json:"timeout_seconds" yaml:"timeout_seconds"`
	UseTLS         bool        `json:"use_tls" yaml:"use_tls"`
	ClientCert     string      `json:"client_cert" yaml:"client_cert"`
	ClientKey      string      `json:"client_key" yaml:"client_key"`
	CABundle       string      `json:"ca_bundle" yaml:"ca_bundle"`
	LWTTopic       string      `json:"lwt_topic" yaml:"lwt_topic"`
	LWTPayload     string      `json:"lwt_payload" yaml:"lwt_payload"`
	LWTQoS         byte        `json:"lwt_qos" yaml:"lwt_qos"`
	LWTRetain      bool        `json:"lwt_retain" yaml:"lwt_retain"`
	MaxRetries     int         `json:"max_retries" yaml:"max_retries"`
	BackoffMS      int         `json:"backoff_ms" yaml:"backoff_ms"`
	TLSConfig      *tls.Config `json:"-" yaml:"-"`
}

// SetDefaults fills the optional fields.
func (c *Config) SetDefaults() {
	if c.ClientID == "" {
		c.ClientID = "gridmpc"
	}
	if c.Topic == "" {
		c.Topic = "microgrid/setpoint"
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = 5
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.BackoffMS <= 0 {
		c.BackoffMS = 100
	}
}

// Validate reports unusable settings. A disabled publisher is always valid.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Broker == "" {
		return fmt.Errorf("mqtt: broker is required when enabled")
	}
	if c.Topic == "" {
		return fmt.Errorf("mqtt: topic is required when enabled")
	}
	if c.QoS > 2 || c.LWTQoS > 2 {
		return fmt.Errorf("mqtt: qos must be 0, 1 or 2")
	}
	if c.UseTLS && c.TLSConfig == nil && (c.ClientCert == "" || c.ClientKey == "" || c.CABundle == "") {
		return fmt.Errorf("mqtt: tls requires client_cert, client_key and ca_bundle")
	}
	return nil
}

// Timeout is the longest a connect or publish may wait.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// pahoClient is the subset of paho.Client used by the publisher.
type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// NewClientOptions builds mqtt client options from Config.
func NewClientOptions(cfg Config) (*paho.ClientOptions, error) {
	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	opts.AutoReconnect = true
	if cfg.TimeoutSeconds > 0 {
		opts.SetConnectTimeout(cfg.Timeout())
		opts.SetWriteTimeout(cfg.Timeout())
	}
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	if cfg.UseTLS {
		tlsCfg, err := cfg.LoadTLSConfig()
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}
	if cfg.LWTTopic != "" {
		opts.SetWill(cfg.LWTTopic, cfg.LWTPayload, cfg.LWTQoS, cfg.LWTRetain)
	}
	return opts, nil
}

// LoadTLSConfig loads the TLS configuration from the file paths in the config.
func (c Config) LoadTLSConfig() (*tls.Config, error) {
	if c.TLSConfig != nil {
		return c.TLSConfig, nil
	}
	if c.ClientCert == "" || c.ClientKey == "" || c.CABundle == "" {
		return nil, fmt.Errorf("tls config requires client_cert, client_key and ca_bundle")
	}
	cert, err := tls.LoadX509KeyPair(c.ClientCert, c.ClientKey)
	if err != nil {
		return nil, fmt.Errorf("load cert: %w", err)
	}
	caBytes, err := os.ReadFile(c.CABundle)
	if err != nil {
		return nil, fmt.Errorf("read ca: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caBytes) {
		return nil, fmt.Errorf("ca bundle %s holds no certificate", c.CABundle)
	}
	return &tls.Config{Certificates: []tls.Certificate{cert}, RootCAs: pool, MinVersion: tls.VersionTLS12}, nil
}
