package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/yungbote/neurobridge-mastery/internal/observability"
)

func TestMetricsLabelsRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := observability.NewMetrics(prometheus.NewRegistry())
	r := gin.New()
	r.Use(Metrics(m))
	r.GET("/api/skills/:id", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET(MetricsPath, gin.WrapH(m.Handler()))

	for _, path := range []string{"/api/skills/css-grid", "/api/skills/js-dom", "/nope/1", "/nope/2", MetricsPath} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	if n := testutil.CollectAndCount(m.Registry(), "mastery_api_requests_total"); n != 2 {
		t.Fatalf("request series = %d, want 2", n)
	}
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, MetricsPath, nil))
	body := rec.Body.String()
	for _, line := range []string{
		`route="/api/skills/:id",status="200"} 2`,
		`route="no_route",status="404"} 2`,
	} {
		if !strings.Contains(body, line) {
			t.Fatalf("missing %q in\n%s", line, body)
		}
	}
	if strings.Contains(body, `route="`+MetricsPath+`"`) {
		t.Fatalf("scrape requests were counted")
	}
}

func TestMetricsNilIsPassThrough(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Metrics(nil))
	r.GET("/healthcheck", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthcheck", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}
