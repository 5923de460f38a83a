// Package decisionlog persists one record per controller step so past
// decisions can be audited and queried.
package decisionlog

import (
	"context"
	"fmt"
	"time"

	"github.com/kilianp07/gridmpc/core/mpc"
)

// Record captures one controller step and its outcome.
type Record struct {
	StepID string `json:"step_id"`
	// Timestamp is the start of the horizon the step planned for.
	Timestamp time.Time   `json:"timestamp"`
	Iteration int         `json:"iteration"`
	Request   mpc.Request `json:"request"`
	Action    *mpc.Action `json:"action,omitempty"`
	Status    string      `json:"status"`
	Objective float64     `json:"objective"`
	Error     string      `json:"error,omitempty"`
}

// Query defines filters for retrieving records. Zero values match all.
type Query struct {
	Start  time.Time
	End    time.Time
	Status string
}

func (q Query) match(r Record) bool {
	if !q.Start.IsZero() && r.Timestamp.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && r.Timestamp.After(q.End) {
		return false
	}
	if q.Status != "" && r.Status != q.Status {
		return false
	}
	return true
}

// Store persists Records and supports querying.
type Store interface {
	Append(ctx context.Context, rec Record) error
	Query(ctx context.Context, q Query) ([]Record, error)
	Close() error
}

// NopStore discards records.
type NopStore struct{}

func (NopStore) Append(context.Context, Record) error           { return nil }
func (NopStore) Query(context.Context, Query) ([]Record, error) { return nil, nil }
func (NopStore) Close() error                                   { return nil }

// Backends accepted in Config.Backend.
const (
	BackendNone     = "none"
	BackendJSONL    = "jsonl"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Config selects and locates the store.
type Config struct {
	Backend string `json:"backend"`
	Path    string `json:"path"`
	// DSN of the postgres backend.
	DSN string `json:"dsn"`
	// Rotation of the JSONL file. MaxSizeMB of zero disables rotation.
	MaxSizeMB  int `json:"max_size_mb"`
	MaxBackups int `json:"max_backups"`
	MaxAgeDays int `json:"max_age_days"`
}

// SetDefaults picks the no-op backend and a file name matching the backend.
func (c *Config) SetDefaults() {
	if c.Backend == "" {
		c.Backend = BackendNone
	}
	if c.Path == "" {
		switch c.Backend {
		case BackendJSONL:
			c.Path = "decisions.jsonl"
		case BackendSQLite:
			c.Path = "decisions.db"
		}
	}
}

// Validate checks the backend name and rotation settings.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendNone, BackendJSONL, BackendSQLite:
	case BackendPostgres:
		if c.DSN == "" {
			return fmt.Errorf("decision_log: dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("decision_log: unknown backend %q", c.Backend)
	}
	if c.MaxSizeMB < 0 || c.MaxBackups < 0 || c.MaxAgeDays < 0 {
		return fmt.Errorf("decision_log: rotation settings must not be negative")
	}
	return nil
}

// Open creates the store described by cfg.
func Open(cfg Config) (Store, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var (
		s   Store
		err error
	)
	switch cfg.Backend {
	case BackendJSONL:
		if cfg.MaxSizeMB > 0 {
			s, err = NewRotatingJSONLStore(cfg.Path, cfg.MaxSizeMB, cfg.MaxBackups, cfg.MaxAgeDays)
		} else {
			s, err = NewJSONLStore(cfg.Path)
		}
	case BackendSQLite:
		s, err = NewSQLiteStore(cfg.Path)
	case BackendPostgres:
		if s, err = NewPostgresStore(cfg.DSN); err != nil {
			return nil, fmt.Errorf("decision_log: open postgres store: %w", err)
		}
	default:
		return NopStore{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("decision_log: open %s store at %s: %w", cfg.Backend, cfg.Path, err)
	}
	return s, nil
}
