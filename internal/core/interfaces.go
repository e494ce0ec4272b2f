package core

import "context"

// Host issues one operation against the system the scripts run on behalf
// of (the backing Redis server). Implementations are not required to be
// safe for concurrent use; the host call bridge serializes access.
//
// An operation the host itself rejects is returned as a Value of
// KindError with a nil error. A non-nil error means the operation could not
// be issued at all (connection failure, deadline).
type Host interface {
	Do(ctx context.Context, name string, args []string) (Value, error)
}

// HostFunc adapts a function to the Host interface.
type HostFunc func(ctx context.Context, name string, args []string) (Value, error)

// Do calls f.
func (f HostFunc) Do(ctx context.Context, name string, args []string) (Value, error) {
	return f(ctx, name, args)
}
