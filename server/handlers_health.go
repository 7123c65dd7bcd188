package server

import (
	"context"
	"errors"
	"net/http"
	"time"
)

const healthTimeout = 2 * time.Second

// HandleHealthz responds to liveness probes. The process is healthy as long as
// it serves; a configured store must also answer a ping.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	if h.Bindings != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()
		if err := h.Bindings.Ping(ctx); err != nil {
			http.Error(w, "unhealthy", http.StatusServiceUnavailable)
			return
		}
	}
	writeText(w, http.StatusOK, "ok")
}

// HandleReadyz reports whether clip requests can succeed: the binding store
// must be reachable and the metered lookup must have credentials.
func (h *Handlers) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	checks := []struct {
		name string
		fn   func() error
	}{
		{"database", func() error {
			if h.Bindings == nil {
				return errors.New("database not initialized")
			}
			return h.Bindings.Ping(ctx)
		}},
		{"youtube_api_key", func() error {
			if h.MeteredReady != nil && !h.MeteredReady() {
				return errors.New("YOUTUBE_API_KEY not configured")
			}
			return nil
		}},
	}

	for _, check := range checks {
		if err := check.fn(); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":       "not_ready",
				"failed_check": check.name,
				"error":        err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
