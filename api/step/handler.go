package step

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/kilianp07/gridmpc/core/forecast"
	"github.com/kilianp07/gridmpc/core/logger"
	"github.com/kilianp07/gridmpc/core/lp"
	"github.com/kilianp07/gridmpc/core/mpc"
)

// Stepper runs one controller step and returns its identifier.
type Stepper interface {
	Step(ctx context.Context, req mpc.Request) (string, mpc.Action, error)
	DefaultRisk() mpc.Risk
}

// Request is the body of POST /api/step. Omitted risk fields take the
// configured defaults.
type Request struct {
	SOC                  *float64 `json:"soc_wh"`
	Iteration            int      `json:"iteration"`
	OutageProbability    *float64 `json:"outage_probability"`
	OutageDurationHours  *float64 `json:"outage_duration_hours"`
	CriticalLoadFraction *float64 `json:"critical_load_fraction"`
	VoLL                 *float64 `json:"voll"`
}

// Response carries the applied action.
type Response struct {
	StepID string     `json:"step_id"`
	Action mpc.Action `json:"action"`
}

// controller converts the body, filling the risk from def.
func (r Request) controller(def mpc.Risk) (mpc.Request, error) {
	if r.SOC == nil {
		return mpc.Request{}, errors.New("soc_wh is required")
	}
	risk := def
	if r.OutageProbability != nil {
		risk.Probability = *r.OutageProbability
	}
	if r.OutageDurationHours != nil {
		risk.Duration = time.Duration(*r.OutageDurationHours * float64(time.Hour))
	}
	if r.CriticalLoadFraction != nil {
		risk.CriticalFraction = *r.CriticalLoadFraction
	}
	if r.VoLL != nil {
		risk.VoLL = *r.VoLL
	}
	return mpc.Request{SOC: *r.SOC, Iteration: r.Iteration, Risk: risk}, nil
}

// NewHandler returns an HTTP handler running a controller step via
// POST /api/step.
func NewHandler(s Stepper, log logger.Logger) http.Handler {
	if log == nil {
		log = logger.Nop{}
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var body Request
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&body); err != nil {
			http.Error(w, "invalid body: "+err.Error(), http.StatusBadRequest)
			return
		}
		req, err := body.controller(s.DefaultRisk())
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		id, a, err := s.Step(r.Context(), req)
		if err != nil {
			code := StatusCode(err)
			if code == http.StatusInternalServerError {
				log.Errorf("step %s: %v", id, err)
			}
			http.Error(w, err.Error(), code)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(Response{StepID: id, Action: a}); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	})
}

// StatusCode maps a step error to an HTTP status.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, mpc.ErrInvalidRisk), errors.Is(err, mpc.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, forecast.ErrLookup), errors.Is(err, lp.ErrInfeasible):
		return http.StatusUnprocessableEntity
	case errors.Is(err, lp.ErrLimitExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
