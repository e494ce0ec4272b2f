// Package hostcall is the Go side of redis.call and redis.pcall: it lets a
// running script issue one operation on the single host connection and get
// the converted reply back.
package hostcall

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cryguy/evaljs/internal/core"
	"github.com/cryguy/evaljs/internal/marshal"
)

// ErrNoHost is returned when scripts call redis.call without a configured
// host connection.
var ErrNoHost = errors.New("no host connection configured")

const errNoCommand = "ERR Please specify at least one argument for this redis lib call"

// Bridge serializes host operations from every worker over one connection.
// The lock is held for exactly one operation, never for a whole script, so
// scripts on different workers interleave their calls.
type Bridge struct {
	host    core.Host
	timeout time.Duration
	logger  *slog.Logger

	mu    sync.Mutex // guards host
	calls atomic.Uint64
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithTimeout bounds each host operation.
func WithTimeout(d time.Duration) Option {
	return func(b *Bridge) {
		b.timeout = d
	}
}

// WithLogger sets the logger used for host failures.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bridge) {
		b.logger = l
	}
}

// New returns a bridge over host. A nil host makes every call fail with
// ErrNoHost.
func New(host core.Host, opts ...Option) *Bridge {
	b := &Bridge{host: host, logger: slog.Default()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Calls returns the number of host operations issued so far.
func (b *Bridge) Calls() uint64 {
	return b.calls.Load()
}

type envelope struct {
	OK    *marshal.ScriptValue `json:"ok,omitempty"`
	Err   *string              `json:"err,omitempty"`
	Raise *string              `json:"raise,omitempty"`
}

// Call handles one redis.call/pcall invocation. argsJSON is the JSON array
// of tagged arguments built by the prelude; the returned envelope carries
// either the converted reply, a host error (pcall returns it as a value) or
// a caller error (always thrown).
//
// Call never panics and never replies to the request's caller; its only
// output is the returned envelope.
func (b *Bridge) Call(ctx context.Context, argsJSON string) (out string) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("host call panicked", "panic", r)
			out = encodeEnvelope(envelope{Err: ptr(fmt.Sprintf("ERR host call failed: %v", r))})
		}
	}()

	var vals []marshal.ScriptValue
	if err := json.Unmarshal([]byte(argsJSON), &vals); err != nil {
		return encodeEnvelope(envelope{Raise: ptr("ERR malformed host call arguments")})
	}
	if len(vals) == 0 {
		return encodeEnvelope(envelope{Raise: ptr(errNoCommand)})
	}
	args, err := marshal.ToHostArgs(vals)
	if err != nil {
		return encodeEnvelope(envelope{Raise: ptr(core.ReplyError(err))})
	}

	reply, err := b.Do(ctx, args[0], args[1:])
	if err != nil {
		return encodeEnvelope(envelope{Err: ptr(core.ReplyError(err))})
	}
	if reply.IsError() {
		return encodeEnvelope(envelope{Err: ptr(core.WithCode(reply.Str))})
	}
	sv := marshal.ToScript(reply)
	return encodeEnvelope(envelope{OK: &sv})
}

// Do issues a single host operation while holding the connection lock.
func (b *Bridge) Do(ctx context.Context, name string, args []string) (core.Value, error) {
	if b.host == nil {
		return core.Value{}, ErrNoHost
	}
	if ctx == nil {
		ctx = context.Background()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	// The budget covers the operation only, not the wait for the lock.
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	b.calls.Add(1)
	v, err := b.host.Do(ctx, name, args)
	if err != nil {
		b.logger.Warn("host operation failed", "command", name, "error", err)
		return core.Value{}, fmt.Errorf("host connection: %w", err)
	}
	return v, nil
}

func encodeEnvelope(e envelope) string {
	b, err := json.Marshal(e)
	if err != nil {
		// Only reachable through an unknown tag, which ToScript never emits.
		return `{"raise":"ERR cannot encode host reply"}`
	}
	return string(b)
}

func ptr(s string) *string { return &s }
