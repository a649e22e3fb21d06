// Package serverless adapts the resource handlers to single-function
// deployments, where each resource path is served by one exported
// http.HandlerFunc and the process may be frozen between requests.
package serverless

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/keywatch/keywatch/internal/api"
	"github.com/keywatch/keywatch/internal/config"
	"github.com/keywatch/keywatch/internal/model"
	"github.com/keywatch/keywatch/internal/resource"
	"github.com/keywatch/keywatch/internal/store"
)

// App holds one wrapped handler per resource over a shared connection
// manager. The handlers dispatch on method and read the delete id from
// the query string.
type App struct {
	Conns    *store.Manager
	Keywords http.Handler
	Channels http.Handler
}

// New builds an App from cfg. No connection is made until the first
// request that needs the store.
func New(cfg *config.Config, logger *slog.Logger) *App {
	conns := store.NewManager(cfg.Database)
	wrap := func(k model.Kind) http.Handler {
		return api.Wrap(resource.New(k, conns, nil), cfg.CORS, logger)
	}
	return &App{
		Conns:    conns,
		Keywords: wrap(model.Keywords),
		Channels: wrap(model.Channels),
	}
}

var (
	defaultOnce sync.Once
	defaultApp  *App
)

// Default returns the process-wide App, built from the environment on
// first use with logger as its access logger. Warm invocations reuse it
// and its connection; later loggers are ignored.
func Default(logger *slog.Logger) *App {
	defaultOnce.Do(func() {
		defaultApp = New(config.FromEnv(), logger)
	})
	return defaultApp
}
