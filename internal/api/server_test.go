package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/keywatch/keywatch/internal/config"
	"github.com/keywatch/keywatch/internal/health"
	"github.com/keywatch/keywatch/internal/metrics"
	"github.com/keywatch/keywatch/internal/store"
)

func testConfig(uri string) config.Config {
	return config.Config{
		Listen:   config.ListenConfig{APIPort: 8080, APIBind: "127.0.0.1"},
		Database: config.DatabaseConfig{URI: uri, ConnectTimeout: 5 * time.Second},
		HealthCheck: config.HealthCheckConfig{
			Interval:         30 * time.Second,
			FailureThreshold: 3,
			Timeout:          time.Second,
		},
		CORS: config.CORSConfig{AllowedOrigins: []string{"*"}},
	}
}

// newTestServer returns a fully wired handler backed by a fresh SQLite file.
func newTestServer(t *testing.T) (*Server, http.Handler) {
	t.Helper()
	return newTestServerWithURI(t, "sqlite://"+filepath.Join(t.TempDir(), "keywatch.db"))
}

func newTestServerWithURI(t *testing.T, uri string) (*Server, http.Handler) {
	t.Helper()
	cfg := testConfig(uri)
	m := metrics.New()
	conns := store.NewManager(cfg.Database)
	t.Cleanup(func() { conns.Close(context.Background()) })
	hc := health.NewChecker(conns, m, cfg.HealthCheck)

	s := NewServer(conns, hc, m, cfg)
	return s, s.Handler()
}

func request(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
}

func TestKeywordLifecycle(t *testing.T) {
	_, h := newTestServer(t)

	// 1. create, then list
	rr := request(h, "POST", "/api/keywords", `{"keyword": "alpha"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var created map[string]interface{}
	decodeBody(t, rr, &created)
	id, _ := created["_id"].(string)
	if id == "" || created["keyword"] != "alpha" || created["frequency"] != float64(0) {
		t.Fatalf("unexpected created record: %v", created)
	}

	rr = request(h, "GET", "/api/keywords", "")
	var list []map[string]interface{}
	decodeBody(t, rr, &list)
	if len(list) != 1 || list[0]["keyword"] != "alpha" {
		t.Fatalf("expected [alpha], got %v", list)
	}

	// 2. duplicate
	rr = request(h, "POST", "/api/keywords", `{"keyword": "alpha"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("duplicate: expected 400, got %d", rr.Code)
	}
	var errBody map[string]string
	decodeBody(t, rr, &errBody)
	if errBody["error"] != "Keyword already exists." {
		t.Errorf("unexpected duplicate message %q", errBody["error"])
	}

	// 3. delete by path, then list
	rr = request(h, "DELETE", "/api/keywords/"+id, "")
	if rr.Code != http.StatusNoContent {
		t.Fatalf("delete: expected 204, got %d: %s", rr.Code, rr.Body.String())
	}
	if rr.Body.Len() != 0 {
		t.Errorf("expected empty delete body, got %q", rr.Body.String())
	}

	rr = request(h, "GET", "/api/keywords", "")
	if got := strings.TrimSpace(rr.Body.String()); got != "[]" {
		t.Errorf("expected [], got %s", got)
	}

	// 4. delete again
	rr = request(h, "DELETE", "/api/keywords/"+id, "")
	if rr.Code != http.StatusNotFound {
		t.Errorf("second delete: expected 404, got %d", rr.Code)
	}

	// 5. missing key
	rr = request(h, "POST", "/api/keywords", `{}`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("missing key: expected 400, got %d", rr.Code)
	}

	// 6. unsupported method
	rr = request(h, "PATCH", "/api/keywords", "")
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("patch: expected 405, got %d", rr.Code)
	}
	if allow := rr.Header().Get("Allow"); allow != "GET, POST, DELETE" {
		t.Errorf("unexpected Allow header %q", allow)
	}
}

func TestChannelDeleteByQuery(t *testing.T) {
	_, h := newTestServer(t)

	rr := request(h, "POST", "/api/channels", `{"channel_id": "C1"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var created map[string]interface{}
	decodeBody(t, rr, &created)
	if created["alertCount"] != float64(0) {
		t.Errorf("expected alertCount 0, got %v", created["alertCount"])
	}

	rr = request(h, "DELETE", "/api/channels?id="+created["_id"].(string), "")
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}

	rr = request(h, "DELETE", "/api/channels", "")
	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without id, got %d", rr.Code)
	}
}

func TestResourcesAreIndependent(t *testing.T) {
	_, h := newTestServer(t)

	request(h, "POST", "/api/keywords", `{"keyword": "shared"}`)
	rr := request(h, "POST", "/api/channels", `{"channel_id": "shared"}`)
	if rr.Code != http.StatusCreated {
		t.Errorf("expected same key in another resource to be accepted, got %d", rr.Code)
	}
}

func TestMethodNotAllowedOnItemPath(t *testing.T) {
	_, h := newTestServer(t)

	for _, method := range []string{"GET", "PUT", "POST"} {
		rr := request(h, method, "/api/channels/abc", "")
		if rr.Code != http.StatusMethodNotAllowed {
			t.Errorf("%s: expected 405, got %d", method, rr.Code)
		}
		if allow := rr.Header().Get("Allow"); allow != "GET, POST, DELETE" {
			t.Errorf("%s: unexpected Allow header %q", method, allow)
		}
	}
}

func TestCORSPreflight(t *testing.T) {
	_, h := newTestServer(t)

	req := httptest.NewRequest("OPTIONS", "/api/keywords", nil)
	req.Header.Set("Origin", "http://example.com")
	req.Header.Set("Access-Control-Request-Method", "DELETE")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	if origin := rr.Header().Get("Access-Control-Allow-Origin"); origin != "*" {
		t.Errorf("unexpected Access-Control-Allow-Origin %q", origin)
	}
	if methods := rr.Header().Get("Access-Control-Allow-Methods"); !strings.Contains(methods, "DELETE") {
		t.Errorf("expected DELETE in allowed methods, got %q", methods)
	}
}

func TestBareOptionsIs405(t *testing.T) {
	_, h := newTestServer(t)

	rr := request(h, "OPTIONS", "/api/keywords", "")
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rr.Code)
	}
}

func TestCORSOnSimpleRequest(t *testing.T) {
	_, h := newTestServer(t)

	req := httptest.NewRequest("GET", "/api/channels", nil)
	req.Header.Set("Origin", "http://example.com")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if origin := rr.Header().Get("Access-Control-Allow-Origin"); origin != "*" {
		t.Errorf("unexpected Access-Control-Allow-Origin %q", origin)
	}
}

func TestSecurityHeaders(t *testing.T) {
	_, h := newTestServer(t)

	rr := request(h, "GET", "/api/keywords", "")
	if rr.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("missing X-Content-Type-Options")
	}
	if rr.Header().Get("X-Frame-Options") != "DENY" {
		t.Error("missing X-Frame-Options")
	}
}

func TestNoConnectionString(t *testing.T) {
	_, h := newTestServerWithURI(t, "")

	rr := request(h, "GET", "/api/keywords", "")
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	var errBody map[string]string
	decodeBody(t, rr, &errBody)
	if errBody["error"] != "Database connection failed" {
		t.Errorf("unexpected message %q", errBody["error"])
	}

	rr = request(h, "GET", "/ready", "")
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("ready: expected 503, got %d", rr.Code)
	}
}

func TestHealthAndReady(t *testing.T) {
	s, h := newTestServer(t)

	rr := request(h, "GET", "/health", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("health: expected 200, got %d", rr.Code)
	}
	var body map[string]interface{}
	decodeBody(t, rr, &body)
	if body["connected"] != false {
		t.Errorf("expected not connected before first request, got %v", body["connected"])
	}

	rr = request(h, "GET", "/ready", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("ready: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var ready map[string]string
	decodeBody(t, rr, &ready)
	if ready["backend"] != store.BackendSQLite {
		t.Errorf("expected SQLite backend, got %q", ready["backend"])
	}
	if !s.conns.Connected() {
		t.Error("expected ready probe to connect")
	}
}

func TestHealthDuringSlowConnect(t *testing.T) {
	s, h := newTestServer(t)

	var opens atomic.Int32
	started := make(chan struct{})
	s.conns.SetOpener(func(context.Context, config.DatabaseConfig) (store.Store, error) {
		if opens.Add(1) == 1 {
			close(started)
		}
		time.Sleep(500 * time.Millisecond)
		return nil, errors.New("connection refused")
	})

	const callers = 3
	codes := make([]int, callers)
	var wg sync.WaitGroup
	begin := time.Now()
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			codes[i] = request(h, "GET", "/api/keywords", "").Code
		}(i)
	}
	<-started

	healthStart := time.Now()
	rr := request(h, "GET", "/health", "")
	if rr.Code != http.StatusOK {
		t.Errorf("health: expected 200, got %d", rr.Code)
	}
	if elapsed := time.Since(healthStart); elapsed > 200*time.Millisecond {
		t.Errorf("health waited %v for the connection attempt", elapsed)
	}

	wg.Wait()
	for i, code := range codes {
		if code != http.StatusInternalServerError {
			t.Errorf("request %d: expected 500, got %d", i, code)
		}
	}
	if n := opens.Load(); n != 1 {
		t.Errorf("expected concurrent requests to share 1 attempt, got %d", n)
	}
	if elapsed := time.Since(begin); elapsed > 1200*time.Millisecond {
		t.Errorf("requests were serialized behind each other: %v", elapsed)
	}
}

func TestHealthCheckSkipsUntilConnected(t *testing.T) {
	s, h := newTestServer(t)

	for i := 0; i < 3; i++ {
		s.healthCheck.Check(context.Background())
	}
	// Not connected yet, so checks are skipped.
	if rr := request(h, "GET", "/health", ""); rr.Code != http.StatusOK {
		t.Fatalf("expected 200 while unconnected, got %d", rr.Code)
	}

	request(h, "GET", "/ready", "")
	s.conns.Close(context.Background())
	if _, err := s.conns.Ensure(context.Background()); err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	s.healthCheck.Check(context.Background())
	if status := s.healthCheck.GetStatus(); status.Status != health.StatusHealthy {
		t.Errorf("expected healthy after a successful ping, got %v", status.Status)
	}
}

func TestStatus(t *testing.T) {
	_, h := newTestServer(t)

	rr := request(h, "GET", "/status", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var body map[string]interface{}
	decodeBody(t, rr, &body)
	resources, _ := body["resources"].([]interface{})
	if len(resources) != 2 {
		t.Errorf("expected 2 resources, got %v", body["resources"])
	}
}

func TestMetricsEndpoint(t *testing.T) {
	_, h := newTestServer(t)

	request(h, "POST", "/api/keywords", `{"keyword": "alpha"}`)

	rr := request(h, "GET", "/metrics", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `keywatch_requests_total{code="201",operation="create",resource="keywords"} 1`) {
		t.Errorf("expected create request counted, got:\n%s", rr.Body.String())
	}
}

func TestDashboard(t *testing.T) {
	_, h := newTestServer(t)

	rr := request(h, "GET", "/", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("unexpected content type %q", ct)
	}
	page := rr.Body.String()
	for _, want := range []string{`data-resource="keywords"`, `data-resource="channels"`, "rec._id"} {
		if !strings.Contains(page, want) {
			t.Errorf("page missing %q", want)
		}
	}
}

func TestStopWithoutStart(t *testing.T) {
	s, _ := newTestServer(t)
	if err := s.Stop(); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
}
