package decisions

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/kilianp07/gridmpc/core/decisionlog"
)

// Querier returns past decision records.
type Querier interface {
	Decisions(ctx context.Context, q decisionlog.Query) ([]decisionlog.Record, error)
}

// NewHandler returns an HTTP handler exposing the decision log via
// GET /api/decisions?start=&end=&status=. Times are RFC 3339.
func NewHandler(s Querier) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		q, err := parseQuery(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		records, err := s.Decisions(r.Context(), q)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if records == nil {
			records = []decisionlog.Record{}
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(records); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	})
}

func parseQuery(r *http.Request) (decisionlog.Query, error) {
	v := r.URL.Query()
	q := decisionlog.Query{Status: v.Get("status")}
	for _, f := range []struct {
		key string
		dst *time.Time
	}{{"start", &q.Start}, {"end", &q.End}} {
		s := v.Get(f.key)
		if s == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return q, fmt.Errorf("invalid %s: %w", f.key, err)
		}
		*f.dst = t
	}
	return q, nil
}
