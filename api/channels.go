package handler

import (
	"net/http"

	"github.com/keywatch/keywatch/internal/serverless"
)

// Channels serves /api/channels.
func Channels(w http.ResponseWriter, r *http.Request) {
	serverless.Default(logger).Channels.ServeHTTP(w, r)
}
