package httpapi

import (
	"net/http"
	"time"
)

// NewServer wraps handler in the process's HTTP server. There is no write
// timeout: /realtime holds sockjs streaming and polling responses open for as
// long as a display stays connected. ReadHeaderTimeout still bounds slow
// clients.
func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
