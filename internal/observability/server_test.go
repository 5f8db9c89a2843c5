package observability

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func startServer(t *testing.T, ready ReadinessChecker) *Server {
	t.Helper()
	server := NewServer("127.0.0.1:0", ready, nil)
	if _, err := server.Start(); err != nil {
		t.Fatalf("failed to start server: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Stop(ctx)
	})
	return server
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, string(body)
}

func TestServer_Metrics(t *testing.T) {
	server := startServer(t, nil)
	NewHTTPMetrics(server.Registry()).Observe("POST", "/auth/login", 200, 10*time.Millisecond)

	status, body := get(t, "http://"+server.Addr()+"/metrics")
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	for _, want := range []string{"# HELP", "go_", "http_requests_total", `route="/auth/login"`} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestServer_Probes(t *testing.T) {
	var ready atomic.Bool
	server := startServer(t, func(context.Context) bool { return ready.Load() })
	base := "http://" + server.Addr()

	if status, _ := get(t, base+"/healthz/liveness"); status != http.StatusOK {
		t.Errorf("liveness: expected 200, got %d", status)
	}
	if status, body := get(t, base+"/healthz/readiness"); status != http.StatusServiceUnavailable || body != "not ready\n" {
		t.Errorf("readiness: got %d %q", status, body)
	}
	ready.Store(true)
	if status, _ := get(t, base+"/healthz/readiness"); status != http.StatusOK {
		t.Errorf("readiness: expected 200, got %d", status)
	}
}

func TestServer_StartTwice(t *testing.T) {
	server := startServer(t, nil)
	if _, err := server.Start(); err == nil {
		t.Fatal("expected error starting a running server")
	}
	if err := server.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := server.Stop(context.Background()); err != nil {
		t.Fatalf("second stop: %v", err)
	}
}

func TestGuard(t *testing.T) {
	guard, err := NewGuard([]string{"10.0.0.0/8", " 192.168.1.5 ", "", "::1"}, "scraper", "s3cret")
	if err != nil {
		t.Fatalf("NewGuard: %v", err)
	}
	tests := []struct {
		name   string
		remote string
		user   string
		pass   string
		want   int
	}{
		{"cidr", "10.2.3.4:5000", "", "", http.StatusOK},
		{"single address", "192.168.1.5:5000", "", "", http.StatusOK},
		{"ipv6 loopback", "[::1]:5000", "", "", http.StatusOK},
		{"mapped ipv4", "[::ffff:10.1.1.1]:5000", "", "", http.StatusOK},
		{"basic auth", "8.8.8.8:5000", "scraper", "s3cret", http.StatusOK},
		{"wrong password", "8.8.8.8:5000", "scraper", "nope", http.StatusUnauthorized},
		{"no credentials", "8.8.8.8:5000", "", "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/metrics", nil)
			r.RemoteAddr = tt.remote
			if tt.user != "" {
				r.SetBasicAuth(tt.user, tt.pass)
			}
			if got := guard.Decision(r); got != tt.want {
				t.Errorf("Decision() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestGuard_NoBasicAuthConfigured(t *testing.T) {
	guard, err := NewGuard(nil, "", "")
	if err != nil {
		t.Fatalf("NewGuard: %v", err)
	}
	rec := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	r.RemoteAddr = "8.8.8.8:1"
	guard.Wrap(http.NotFoundHandler()).ServeHTTP(rec, r)
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", rec.Code)
	}
}

func TestGuard_InvalidEntry(t *testing.T) {
	if _, err := NewGuard([]string{"not-an-ip"}, "", ""); err == nil {
		t.Fatal("expected error for invalid entry")
	}
}

func TestHTTPMetrics_Observe(t *testing.T) {
	server := NewServer("127.0.0.1:0", nil, nil)
	m := NewHTTPMetrics(server.Registry())
	m.Observe("GET", "", 404, time.Millisecond)
	m.Observe("GET", "", 404, time.Millisecond)

	if got := testutil.ToFloat64(m.Requests.WithLabelValues("GET", "unknown", "404")); got != 2 {
		t.Errorf("requests = %v, want 2", got)
	}
	var nilMetrics *HTTPMetrics
	nilMetrics.Observe("GET", "/", 200, 0)
}
