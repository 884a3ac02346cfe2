package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_CountsBySurfaceAndRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(Metrics())
	r.POST("/webhooks/intercom", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/api/v1/events", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	hook := requestsTotal.WithLabelValues(surfaceWebhook, "POST", "/webhooks/intercom", "200")
	api := requestsTotal.WithLabelValues(surfaceAPI, "GET", "/api/v1/events", "204")
	miss := requestsTotal.WithLabelValues(surfaceAPI, "GET", "unmatched", "404")
	baseHook, baseAPI, baseMiss := testutil.ToFloat64(hook), testutil.ToFloat64(api), testutil.ToFloat64(miss)

	for _, tc := range []struct {
		method, path string
		want         int
	}{
		{http.MethodPost, "/webhooks/intercom", http.StatusOK},
		{http.MethodGet, "/api/v1/events", http.StatusNoContent},
		{http.MethodGet, "/nope/123", http.StatusNotFound},
	} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(tc.method, tc.path, nil))
		if w.Code != tc.want {
			t.Fatalf("%s %s -> %d; want %d", tc.method, tc.path, w.Code, tc.want)
		}
	}

	if got := testutil.ToFloat64(hook); got != baseHook+1 {
		t.Fatalf("webhook counter = %v; want %v", got, baseHook+1)
	}
	if got := testutil.ToFloat64(api); got != baseAPI+1 {
		t.Fatalf("api counter = %v; want %v", got, baseAPI+1)
	}
	if got := testutil.ToFloat64(miss); got != baseMiss+1 {
		t.Fatalf("unmatched counter = %v; want %v", got, baseMiss+1)
	}
	if n := testutil.ToFloat64(requestsInFlight.WithLabelValues(surfaceWebhook)); n != 0 {
		t.Fatalf("in-flight webhooks = %v; want 0", n)
	}
}

func TestSurfaceOf(t *testing.T) {
	cases := map[string]string{
		"/webhooks/twilio/inbound": surfaceWebhook,
		"/health":                  surfaceInfra,
		"/metrics":                 surfaceInfra,
		"/swagger/index.html":      surfaceInfra,
		"/api/v1/routing":          surfaceAPI,
	}
	for path, want := range cases {
		if got := surfaceOf(path); got != want {
			t.Fatalf("surfaceOf(%q) = %q; want %q", path, got, want)
		}
	}
}
