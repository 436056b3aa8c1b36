// Package trace attaches a per-exchange correlation ID to verbose frame
// tracing so interleaved logs from concurrent sessions on a shared bus can
// be told apart.
package trace

import (
	"log/slog"

	"github.com/google/uuid"

	"github.com/go-ctaphid/ctaphid/pkg/ctaphid"
)

// Tracer wraps an *slog.Logger, stamping every record it produces with a
// fresh correlation ID, and exposes a *ctaphid.Observer bound to that
// stamped logger for the transport to trace frames through.
type Tracer struct {
	ID       string
	Observer *ctaphid.Observer
}

// New creates a Tracer with a random correlation ID. A nil logger yields a
// Tracer whose Observer is also nil, disabling frame tracing.
func New(logger *slog.Logger) *Tracer {
	if logger == nil {
		return &Tracer{}
	}

	id := uuid.NewString()
	return &Tracer{
		ID:       id,
		Observer: ctaphid.NewObserver(logger.With("exchange_id", id)),
	}
}
