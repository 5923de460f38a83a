package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/gridmpc/api/decisions"
	"github.com/kilianp07/gridmpc/api/step"
	"github.com/kilianp07/gridmpc/config"
	"github.com/kilianp07/gridmpc/core/decisionlog"
	"github.com/kilianp07/gridmpc/core/lp"
	coremetrics "github.com/kilianp07/gridmpc/core/metrics"
	"github.com/kilianp07/gridmpc/core/mpc"
	"github.com/kilianp07/gridmpc/infra/dataset"
	"github.com/kilianp07/gridmpc/infra/logger"
	"github.com/kilianp07/gridmpc/infra/metrics"
)

// Publisher sends the applied setpoint to the site controller.
type Publisher interface {
	Publish(ctx context.Context, stepID string, a mpc.Action) error
}

// Components are the optional collaborators of a Service. Nil fields are
// replaced by no-op implementations.
type Components struct {
	Sink      coremetrics.MetricsSink
	Store     decisionlog.Store
	Publisher Publisher
	Risk      mpc.Risk
	Logger    logger.Logger
	// Address is where Run serves the HTTP API.
	Address string
}

// Service runs controller steps and fans their outcome out to metrics, the
// decision log and the setpoint publisher.
type Service struct {
	ctrl  *mpc.Controller
	sink  coremetrics.MetricsSink
	store decisionlog.Store
	pub   Publisher
	risk  mpc.Risk
	log   logger.Logger
	addr  string
	newID func() string
}

// NewService wraps ctrl with the given components.
func NewService(ctrl *mpc.Controller, c Components) *Service {
	s := &Service{
		ctrl:  ctrl,
		sink:  c.Sink,
		store: c.Store,
		pub:   c.Publisher,
		risk:  c.Risk,
		log:   c.Logger,
		addr:  c.Address,
		newID: uuid.NewString,
	}
	if s.sink == nil {
		s.sink = coremetrics.NopSink{}
	}
	if s.store == nil {
		s.store = decisionlog.NopStore{}
	}
	if s.log == nil {
		s.log = logger.NopLogger{}
	}
	return s
}

// New creates a Service from the configuration.
func New(cfg *config.Config) (*Service, error) {
	logg := logger.New("service")

	bat, err := cfg.Battery.Params()
	if err != nil {
		return nil, err
	}
	set, err := dataset.Load(cfg.Forecast)
	if err != nil {
		return nil, fmt.Errorf("forecast: %w", err)
	}
	ctrl, err := mpc.NewController(cfg.Control.MPC(), bat, set, cfg.Control.NewSolver(), logger.New("controller"))
	if err != nil {
		return nil, fmt.Errorf("controller: %w", err)
	}

	sink, err := coremetrics.NewMetricsSink(cfg.Metrics.Sinks)
	if err != nil {
		return nil, fmt.Errorf("metrics sink: %w", err)
	}
	store, err := decisionlog.Open(cfg.DecisionLog)
	if err != nil {
		return nil, err
	}
	c := Components{Sink: sink, Store: store, Risk: cfg.Risk.Risk(), Logger: logg, Address: cfg.HTTP.Address}
	pub, err := newPublishers(cfg)
	if err != nil {
		closeSink(sink)
		_ = store.Close()
		return nil, err
	}
	if pub != nil {
		c.Publisher = pub
	}
	return NewService(ctrl, c), nil
}

// Controller returns the wrapped controller.
func (s *Service) Controller() *mpc.Controller { return s.ctrl }

// DefaultRisk is the configured outage scenario.
func (s *Service) DefaultRisk() mpc.Risk { return s.risk }

// Decisions queries the decision log.
func (s *Service) Decisions(ctx context.Context, q decisionlog.Query) ([]decisionlog.Record, error) {
	return s.store.Query(ctx, q)
}

// Step runs one controller step and publishes the resulting setpoint. The
// returned identifier tags the metrics, the decision record and the
// published message.
func (s *Service) Step(ctx context.Context, req mpc.Request) (string, mpc.Action, error) {
	id := s.newID()
	began := time.Now()
	a, err := s.ctrl.Step(ctx, req)
	if err != nil {
		s.record(ctx, id, req, nil, err, time.Since(began))
		return id, mpc.Action{}, err
	}
	s.record(ctx, id, req, &a, nil, time.Since(began))
	if s.pub != nil {
		if perr := s.pub.Publish(ctx, id, a); perr != nil {
			s.log.Errorf("step %s: publish setpoint: %v", id, perr)
		}
	}
	return id, a, nil
}

// Plan solves the horizon and returns every slot. Nothing is published.
func (s *Service) Plan(ctx context.Context, req mpc.Request) (string, *mpc.Plan, error) {
	id := s.newID()
	began := time.Now()
	plan, err := s.ctrl.Plan(ctx, req)
	if err != nil {
		s.record(ctx, id, req, nil, err, time.Since(began))
		return id, nil, err
	}
	first := plan.First()
	s.record(ctx, id, req, &first, nil, time.Since(began))
	if rec, ok := s.sink.(coremetrics.PlanRecorder); ok {
		if rerr := rec.RecordPlan(coremetrics.PlanEvent{StepID: id, Plan: plan}); rerr != nil {
			s.log.Errorf("step %s: record plan: %v", id, rerr)
		}
	}
	return id, plan, nil
}

func (s *Service) record(ctx context.Context, id string, req mpc.Request, a *mpc.Action, err error, d time.Duration) {
	ev := coremetrics.StepEvent{
		StepID:    id,
		Iteration: req.Iteration,
		Time:      s.ctrl.StartOf(req.Iteration),
		Duration:  d,
		Err:       err,
	}
	if a != nil {
		ev.Action = *a
		ev.Status = a.Status
		ev.Objective = a.Objective
	} else {
		ev.Status = lp.StatusOf(err)
	}
	if merr := s.sink.RecordStep(ev); merr != nil {
		s.log.Errorf("step %s: record metrics: %v", id, merr)
	}

	rec := decisionlog.Record{
		StepID:    id,
		Timestamp: ev.Time,
		Iteration: req.Iteration,
		Request:   req,
		Action:    a,
		Status:    ev.Outcome(),
		Objective: ev.Objective,
	}
	if err != nil {
		rec.Error = err.Error()
	}
	if lerr := s.store.Append(ctx, rec); lerr != nil {
		s.log.Errorf("step %s: append decision: %v", id, lerr)
	}
}

// Handler exposes the HTTP API and the Prometheus endpoint.
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/api/step", step.NewHandler(s, logger.New("api-step")))
	mux.Handle("/api/decisions", decisions.NewHandler(s))
	mux.Handle("/metrics", metrics.Handler(nil))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

// Run serves the HTTP API until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Errorf("http server shutdown: %v", err)
		}
		cancel()
	}()
	s.log.Infof("serving API on %s", s.addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	closePublisher(s.pub)
	closeSink(s.sink)
	return s.store.Close()
}
