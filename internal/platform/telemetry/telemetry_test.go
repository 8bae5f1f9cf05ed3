package telemetry

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestQueueMetrics_ObserveOperation(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewQueueMetrics(reg)

	m.ObserveOperation("start", "applied")
	m.ObserveOperation("start", "applied")
	m.ObserveOperation("start", "noop")

	if got := testutil.ToFloat64(m.operations.WithLabelValues("start", "applied")); got != 2 {
		t.Errorf("expected 2 applied, got %v", got)
	}
	if got := testutil.ToFloat64(m.operations.WithLabelValues("start", "noop")); got != 1 {
		t.Errorf("expected 1 noop, got %v", got)
	}
}

func TestQueueMetrics_SetEntriesResets(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewQueueMetrics(reg)

	m.SetEntries(map[string]int{"Waiting": 3, "In Progress": 1})
	m.SetEntries(map[string]int{"Waiting": 2})

	if got := testutil.CollectAndCount(m.entries); got != 1 {
		t.Fatalf("expected stale series to be dropped, got %d series", got)
	}
	if got := testutil.ToFloat64(m.entries.WithLabelValues("Waiting")); got != 2 {
		t.Errorf("expected 2 waiting, got %v", got)
	}
	if strings.Contains(gather(t, reg), `status="In Progress"`) {
		t.Error("expected stale In Progress series to be removed")
	}
}

func TestQueueMetrics_NilSafe(t *testing.T) {
	var m *QueueMetrics
	m.ObserveOperation("add", "applied")
	m.SetEntries(map[string]int{"Waiting": 1})
}

func TestHTTPMetrics_Middleware(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHTTPMetrics(reg)

	e := echo.New()
	e.Use(m.Middleware())
	e.GET("/api/v1/queue/:id", func(c echo.Context) error {
		return c.NoContent(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/queue/abc", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if got := testutil.CollectAndCount(m.duration); got != 1 {
		t.Fatalf("expected 1 series, got %d", got)
	}
	out := gather(t, reg)
	if !strings.Contains(out, `route="/api/v1/queue/:id"`) || !strings.Contains(out, `status="204"`) {
		t.Errorf("unexpected labels in exposition:\n%s", out)
	}
	if got := testutil.ToFloat64(m.active); got != 0 {
		t.Errorf("expected no active requests, got %v", got)
	}
}

func TestHandler_ServesRegistry(t *testing.T) {
	reg := NewRegistry()
	NewQueueMetrics(reg).ObserveOperation("add", "applied")

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := Handler(reg)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), "clinic_queue_operations_total") {
		t.Errorf("expected queue counter in output, got:\n%s", rec.Body.String())
	}
}

func gather(t *testing.T, reg *prometheus.Registry) string {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	Handler(reg)(echo.New().NewContext(req, rec))
	return rec.Body.String()
}
