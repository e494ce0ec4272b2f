package core

import (
	"context"
	"log/slog"
	"time"
)

// RequestState holds per-request mutable state. The execution context sets
// it before calling into JS and clears it after, so Go callbacks invoked by
// the script (host calls, logging) can find the request they belong to.
type RequestState struct {
	ID        string
	Ctx       context.Context
	Logger    *slog.Logger
	Started   time.Time
	HostCalls int
}

// NewRequestState returns state for a request starting now.
func NewRequestState(ctx context.Context, id string, logger *slog.Logger) *RequestState {
	if ctx == nil {
		ctx = context.Background()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RequestState{
		ID:      id,
		Ctx:     ctx,
		Logger:  logger.With("request_id", id),
		Started: time.Now(),
	}
}
