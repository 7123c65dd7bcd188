// Package server exposes the HTTP API handlers.
package server

import (
	"context"

	"github.com/onnwee/clipstream/clip"
	"github.com/onnwee/clipstream/db"
)

// BindingStore is the persistence the handlers need. *db.BindingStore
// satisfies it.
type BindingStore interface {
	PutBinding(ctx context.Context, b db.Binding) error
	GetBinding(ctx context.Context, channelID string) (*db.Binding, error)
	ListBindings(ctx context.Context, withEndpoints bool) ([]db.Binding, error)
	CountBindings(ctx context.Context) (int, error)
	Ping(ctx context.Context) error
}

// Notifier delivers a message synchronously.
type Notifier interface {
	Send(ctx context.Context, endpoint, message string) error
}

// Deps wires the server to the rest of the process. Bindings may be nil when
// the database could not be initialized; handlers then report it instead of
// failing to start.
type Deps struct {
	Bindings     BindingStore
	Clips        *clip.Orchestrator
	Notifier     Notifier
	MeteredReady func() bool
	StaticDir    string
}

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	Deps
}

// NewHandlers creates a new Handlers instance with the given dependencies.
func NewHandlers(deps Deps) *Handlers {
	if deps.StaticDir == "" {
		deps.StaticDir = "public"
	}
	return &Handlers{Deps: deps}
}
