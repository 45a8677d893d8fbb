package httpserver

import (
	"net/http"

	"facegate/internal/platform/config"
)

// New builds the HTTP server from the server config.
func New(cfg config.Server, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		IdleTimeout:       2 * cfg.RequestTimeout,
	}
}
