package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func TestLogger_AddsCorrelationID(t *testing.T) {
	var buf bytes.Buffer
	Setup(&buf, "info")
	t.Cleanup(func() { Setup(os.Stdout, "info") })

	ctx := WithCorrelationID(context.Background(), "corr-1")
	Logger(ctx).Info("hello")
	Logger(context.Background()).Debug("dropped")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	require.Equal(t, "corr-1", rec["correlation_id"])
	require.Equal(t, "hello", rec["msg"])
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	require.Equal(t, slog.LevelWarn, ParseLevel("warn"))
	require.Equal(t, slog.LevelError, ParseLevel(" error "))
	require.Equal(t, slog.LevelInfo, ParseLevel(""))
	require.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func counterValue(t *testing.T, service, outcome string) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, upstreamRequests.WithLabelValues(service, outcome).Write(&m))
	return m.GetCounter().GetValue()
}

type statusErr int

func (e statusErr) Error() string       { return "status" }
func (e statusErr) HTTPStatusCode() int { return int(e) }

func TestObserveUpstream(t *testing.T) {
	before := counterValue(t, "test-svc", OutcomeRateLimited)
	ObserveUpstream("test-svc", time.Now(), errors.Join(errors.New("wrapped"), statusErr(429)))
	require.Equal(t, before+1, counterValue(t, "test-svc", OutcomeRateLimited))

	ObserveUpstream("test-svc", time.Now(), nil)
	require.Equal(t, float64(1), counterValue(t, "test-svc", OutcomeOK))
	require.Equal(t, OutcomeError, outcome(statusErr(500)))
}

func TestMetricsHandler(t *testing.T) {
	ObserveUpstream("handler-svc", time.Now(), nil)
	rec := httptest.NewRecorder()
	MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, _ := io.ReadAll(rec.Body)
	require.Contains(t, string(body), `property_agent_upstream_requests_total{outcome="ok",service="handler-svc"} 1`)
}
