package telemetry_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"topicchat/backend/internal/config"
	"topicchat/backend/internal/telemetry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitMetrics_Disabled(t *testing.T) {
	meter, shutdown, err := telemetry.InitMetrics(context.Background(), config.TelemetryConfig{}, "test")
	require.NoError(t, err)
	require.NotNil(t, meter)

	counter, err := meter.Int64Counter("noop_counter")
	require.NoError(t, err)
	counter.Add(context.Background(), 1)

	assert.NoError(t, shutdown(context.Background()))
}

func TestInitMetrics_ExportsOnShutdown(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics.log")
	cfg := config.TelemetryConfig{Enabled: true, MetricsFile: path, Interval: time.Hour}

	meter, shutdown, err := telemetry.InitMetrics(context.Background(), cfg, "test")
	require.NoError(t, err)

	counter, err := meter.Int64Counter("random_chat.searches")
	require.NoError(t, err)
	counter.Add(context.Background(), 3)

	require.NoError(t, shutdown(context.Background()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "random_chat.searches")
}
