package observability_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/prune/internal/observability"
)

func TestInit_NoopWhenNothingConfigured(t *testing.T) {
	t.Parallel()

	providers, err := observability.Init(context.Background(), observability.DefaultConfig())
	require.NoError(t, err)

	assert.NotNil(t, providers.Tracer)
	assert.NotNil(t, providers.Meter)
	assert.NotNil(t, providers.Logger)
	assert.Nil(t, providers.MetricsHandler)

	_, span := providers.Tracer.Start(context.Background(), "prune.batch")
	span.End()

	require.NoError(t, providers.Shutdown(context.Background()))
}

func TestInit_PrometheusServesRewriteMetrics(t *testing.T) {
	t.Parallel()

	cfg := observability.DefaultConfig()
	cfg.Prometheus = true
	cfg.ServiceVersion = "1.2.3"

	providers, err := observability.Init(context.Background(), cfg)
	require.NoError(t, err)

	t.Cleanup(func() { require.NoError(t, providers.Shutdown(context.Background())) })
	require.NotNil(t, providers.MetricsHandler)

	metrics, err := observability.NewRewriteMetrics(providers.Meter, "java")
	require.NoError(t, err)

	metrics.RecordFile(context.Background(), sampleResult())

	req := httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody)
	rec := httptest.NewRecorder()
	providers.MetricsHandler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "prune_files")
	assert.Contains(t, rec.Body.String(), "prune_rules_fired")
	assert.Contains(t, rec.Body.String(), "target_info")
}

func TestParseOTLPHeaders(t *testing.T) {
	t.Parallel()

	assert.Nil(t, observability.ParseOTLPHeaders(""))
	assert.Nil(t, observability.ParseOTLPHeaders("garbage"))
	assert.Equal(t,
		map[string]string{"api-key": "secret", "team": "flags"},
		observability.ParseOTLPHeaders(" api-key = secret ,team=flags,broken"),
	)
}
