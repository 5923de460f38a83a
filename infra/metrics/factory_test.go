package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/gridmpc/core/factory"
	coremetrics "github.com/kilianp07/gridmpc/core/metrics"
)

func TestBuiltinSinksRegistered(t *testing.T) {
	assert.Equal(t, []string{SinkInflux, SinkNop, SinkPrometheus, SinkSentry}, coremetrics.SinkTypes())
}

func TestInfluxFactoryRejectsIncompleteConfig(t *testing.T) {
	tests := []struct {
		name string
		conf map[string]any
		want string
	}{
		{"no url", map[string]any{"org": "o", "bucket": "b"}, "url"},
		{"no org", map[string]any{"url": "http://localhost:8086", "bucket": "b"}, "org"},
		{"no bucket", map[string]any{"url": "http://localhost:8086", "org": "o"}, "bucket"},
		{"negative timeout", map[string]any{"url": "http://x", "org": "o", "bucket": "b", "timeout": "-1s"}, "timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := coremetrics.NewMetricsSink([]factory.ModuleConfig{{Type: SinkInflux, Conf: tt.conf}})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestInfluxConfigValidate(t *testing.T) {
	c := InfluxConfig{URL: "http://localhost:8086", Org: "o", Bucket: "b"}
	assert.NoError(t, c.Validate())
}
