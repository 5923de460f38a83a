package dataset

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kilianp07/gridmpc/auth"
)

// FetchTimeout bounds a single remote series download.
const FetchTimeout = 30 * time.Second

var httpClient = &http.Client{Timeout: FetchTimeout}

func fetch(ctx context.Context, sc SeriesConfig) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sc.URL, nil)
	if err != nil {
		return nil, err
	}
	if sc.Auth != nil {
		if err := auth.NewClientCred(*sc.Auth).SetAuthHeader(req); err != nil {
			return nil, err
		}
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		_ = resp.Body.Close()
		return nil, fmt.Errorf("GET %s: status %d: %s", sc.URL, resp.StatusCode, body)
	}
	return resp.Body, nil
}
