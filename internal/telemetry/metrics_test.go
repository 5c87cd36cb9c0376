package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teacher-dashboard-api/internal/config"
)

func TestInitMetricsWithGlobalProvider(t *testing.T) {
	m, err := InitMetrics()
	require.NoError(t, err)

	ctx := context.Background()
	assert.NotPanics(t, func() {
		m.RecordRequest(ctx, "POST", "/slides/", "success", 20*time.Millisecond)
		m.RecordUpload(ctx, "pdf", 4, 1, time.Second)
		m.RecordEmbedding(ctx, "RETRIEVAL_DOCUMENT", 50*time.Millisecond, errors.New("boom"))
		m.RecordSearch(ctx, true, 3)
	})
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordRequest(context.Background(), "GET", "/", "success", 0)
		m.RecordUpload(context.Background(), "pdf", 1, 0, 0)
		m.RecordEmbedding(context.Background(), "RETRIEVAL_QUERY", 0, nil)
		m.RecordSearch(context.Background(), false, 0)
	})
}

func TestInitTracerDisabled(t *testing.T) {
	shutdown, err := InitTracer(context.Background(), &config.Config{TracingEnabled: false})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}
