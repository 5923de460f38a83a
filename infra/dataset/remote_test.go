package dataset

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/gridmpc/auth"
)

func TestLoadSeriesFromURLWithAuth(t *testing.T) {
	tokens := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok","token_type":"bearer","expires_in":3600}`))
	}))
	defer tokens.Close()
	data := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`[{"time": "2024-01-01T00:00:00Z", "value": 0.25}, {"time": "2024-01-01T01:00:00Z", "value": 0.3}]`))
	}))
	defer data.Close()

	sc := SeriesConfig{
		URL:  data.URL + "/prices.json",
		Auth: &auth.Conf{ClientID: "id", ClientSecret: "s", AuthURL: tokens.URL},
	}
	sc.SetDefaults(DefaultPriceScale)
	require.Equal(t, FormatJSON, sc.Format)
	require.NoError(t, sc.Validate())

	s, err := LoadSeries("buy_price", sc)
	require.NoError(t, err)
	v, err := s.At(time.Date(2024, 1, 1, 1, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 0.3, v)

	sc.Auth = nil
	_, err = LoadSeries("buy_price", sc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
}

func TestSeriesValidateRemote(t *testing.T) {
	sc := SeriesConfig{URL: "::not a url"}
	sc.SetDefaults(1)
	assert.ErrorContains(t, sc.Validate(), "invalid url")

	sc = SeriesConfig{URL: "http://example.com/x.csv", Auth: &auth.Conf{}}
	sc.SetDefaults(1)
	assert.Error(t, sc.Validate())
}
