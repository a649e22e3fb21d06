package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	sloghttp "github.com/samber/slog-http"

	"github.com/keywatch/keywatch/internal/config"
	"github.com/keywatch/keywatch/internal/health"
	"github.com/keywatch/keywatch/internal/metrics"
	"github.com/keywatch/keywatch/internal/model"
	"github.com/keywatch/keywatch/internal/resource"
	"github.com/keywatch/keywatch/internal/store"
)

// Server is the REST API and metrics server.
type Server struct {
	conns       *store.Manager
	healthCheck *health.Checker
	metrics     *metrics.Collector
	resources   []*resource.Handler
	httpServer  *http.Server
	startTime   time.Time
	cfg         config.Config
	logger      *slog.Logger
}

// NewServer creates a new API server with one resource handler per kind.
func NewServer(conns *store.Manager, hc *health.Checker, m *metrics.Collector, cfg config.Config) *Server {
	s := &Server{
		conns:       conns,
		healthCheck: hc,
		metrics:     m,
		startTime:   time.Now(),
		cfg:         cfg,
		logger:      slog.Default(),
	}
	for _, k := range model.Kinds {
		s.resources = append(s.resources, resource.New(k, conns, m))
	}
	return s
}

// Handler builds the routed handler with all middleware applied.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()

	// Resource CRUD. The unrestricted routes come last and catch every
	// other method on the same paths.
	for _, h := range s.resources {
		base := "/api/" + h.Kind().Name
		r.HandleFunc(base, h.HandleList).Methods(http.MethodGet)
		r.HandleFunc(base, h.HandleCreate).Methods(http.MethodPost)
		r.HandleFunc(base, h.HandleDelete).Methods(http.MethodDelete)
		r.HandleFunc(base+"/{id}", h.HandleDelete).Methods(http.MethodDelete)
		r.HandleFunc(base, h.HandleUnsupported)
		r.HandleFunc(base+"/{id}", h.HandleUnsupported)
	}

	// Server status
	r.HandleFunc("/status", s.statusHandler).Methods(http.MethodGet)

	// Health & readiness
	r.HandleFunc("/health", s.healthHandler).Methods(http.MethodGet)
	r.HandleFunc("/ready", s.readyHandler).Methods(http.MethodGet)

	// Prometheus metrics
	if s.metrics != nil && s.metrics.Registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{}))
	} else {
		r.Handle("/metrics", promhttp.Handler())
	}

	// Browser client
	r.HandleFunc("/", s.dashboardHandler).Methods(http.MethodGet)

	return Wrap(r, s.cfg.CORS, s.logger)
}

// Wrap applies the middleware shared by every deployment: security
// headers, panic recovery, access logging and CORS, outermost last.
func Wrap(h http.Handler, cc config.CORSConfig, logger *slog.Logger) http.Handler {
	handler := securityHeaders(h)
	handler = sloghttp.Recovery(handler)
	handler = sloghttp.New(logger)(handler)
	return newCORS(cc).Handler(handler)
}

func newCORS(cc config.CORSConfig) *cors.Cors {
	origins := cc.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowedHeaders: []string{"Content-Type"},
	})
}

// Start starts the HTTP API server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Listen.APIBind, s.cfg.Listen.APIPort)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	slog.Info("REST API listening", "addr", addr)

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("API server error", "err", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the API server.
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

// --- Health Handlers ---

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	healthy := s.healthCheck.IsHealthy()

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}

	resource.WriteJSON(w, status, map[string]interface{}{
		"status":    boolToStatus(healthy),
		"connected": s.conns.Connected(),
		"store":     s.healthCheck.GetStatus(),
	})
}

// readyHandler connects on demand, so a fresh instance becomes ready on
// its first probe.
func (s *Server) readyHandler(w http.ResponseWriter, r *http.Request) {
	st, err := s.conns.Ensure(r.Context())
	if err != nil {
		resource.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready"})
		return
	}
	if !s.healthCheck.IsHealthy() {
		resource.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready"})
		return
	}
	resource.WriteJSON(w, http.StatusOK, map[string]string{"status": "ready", "backend": st.Backend()})
}

// --- Status Handler ---

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	resources := make([]string, 0, len(s.resources))
	for _, h := range s.resources {
		resources = append(resources, h.Kind().Name)
	}

	resource.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"uptime_seconds": time.Since(s.startTime).Seconds(),
		"goroutines":     runtime.NumGoroutine(),
		"memory_mb":      float64(mem.Alloc) / 1024 / 1024,
		"connected":      s.conns.Connected(),
		"resources":      resources,
	})
}

// securityHeaders adds security-related HTTP headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

func boolToStatus(b bool) string {
	if b {
		return "healthy"
	}
	return "unhealthy"
}
