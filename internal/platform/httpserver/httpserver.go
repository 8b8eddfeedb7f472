// Package httpserver configures the disclosure API's HTTP server. Every
// endpoint is a short JSON exchange (authorize, resolve, catalog CRUD), so
// the timeouts are tight: a caller holding a connection open longer than the
// router's own 30s request deadline is not a legitimate client.
package httpserver

import (
	"net/http"
	"time"
)

const (
	readHeaderTimeout = 5 * time.Second
	readTimeout       = 10 * time.Second
	writeTimeout      = 35 * time.Second
	idleTimeout       = 2 * time.Minute
)

// New builds the API server. The write timeout sits just above the router's
// per-request deadline so a handler that hits its context deadline can still
// write its error response.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}
}
