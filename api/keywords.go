// Package handler holds the serverless function entry points. Each file
// exports one function served at the matching /api path.
package handler

import (
	"log/slog"
	"net/http"
	"os"

	"github.com/keywatch/keywatch/internal/serverless"
)

// logger writes JSON lines to stdout, where the platform collects them.
var logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))

// Keywords serves /api/keywords.
func Keywords(w http.ResponseWriter, r *http.Request) {
	serverless.Default(logger).Keywords.ServeHTTP(w, r)
}
