package observability

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/steadyhand/internal/config"
)

func TestWriteMetricsTextfile(t *testing.T) {
	t.Run("empty path is a no-op", func(t *testing.T) {
		assert.NoError(t, WriteMetricsTextfile(""))
	})

	t.Run("writes registered series", func(t *testing.T) {
		ActionOutcomes.WithLabelValues("click", "primary").Inc()
		path := filepath.Join(t.TempDir(), "steadyhand.prom")

		require.NoError(t, WriteMetricsTextfile(path))
		body, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(body), `steadyhand_action_outcomes_total{operation="click",outcome="primary"}`)
	})
}

func TestNewTracerProvider(t *testing.T) {
	t.Run("disabled tracing yields nil provider", func(t *testing.T) {
		tp, err := NewTracerProvider(config.TracingConfig{}, "steadyhand", "test")
		require.NoError(t, err)
		assert.Nil(t, tp)
		assert.NoError(t, tp.Shutdown(context.Background()), "Shutdown on nil must be safe")
	})

	t.Run("spans are exported to the configured file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "spans.json")
		tp, err := NewTracerProvider(config.TracingConfig{Enabled: true, File: path}, "steadyhand", "test")
		require.NoError(t, err)

		_, span := StartSpan(context.Background(), "unit")
		span.End()
		require.NoError(t, tp.Shutdown(context.Background()))

		body, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(body), `"Name":"unit"`)
	})
}
