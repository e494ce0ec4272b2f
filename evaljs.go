// Package evaljs runs short JavaScript functions on behalf of Redis
// clients. Each function receives KEYS and ARGV, may call back into the
// backing server through redis.call and redis.pcall, and its return value
// is converted into a Redis reply.
//
// The JavaScript engine is QuickJS by default; build with -tags v8 for V8.
package evaljs

import (
	"context"

	"github.com/cryguy/evaljs/internal/core"
	"github.com/cryguy/evaljs/internal/executor"
)

type (
	// Value is a Redis reply value.
	Value = core.Value
	// Request is one evaluation.
	Request = core.Request
	// EngineConfig configures the execution core.
	EngineConfig = core.EngineConfig
	// Host is the backing server redis.call reaches.
	Host = core.Host
	// HostFunc adapts a function to Host.
	HostFunc = core.HostFunc
	// Option configures an Engine.
	Option = executor.Option
	// Stats is a snapshot of engine counters.
	Stats = executor.Stats
)

var (
	WithHost      = executor.WithHost
	WithLogger    = executor.WithLogger
	WithTransform = executor.WithTransform
)

// Backend names the JavaScript engine compiled into this binary.
func Backend() string { return backendName }

// DefaultFactory returns the runtime factory of the compiled-in engine.
func DefaultFactory() core.RuntimeFactory { return newBackend() }

// Engine wraps an executor running the compiled-in backend.
type Engine struct {
	exec *executor.Executor
}

// New starts an engine with the given config.
func New(cfg EngineConfig, opts ...Option) *Engine {
	return &Engine{exec: executor.New(newBackend(), cfg, opts...)}
}

// Eval runs code with keys and args and returns its reply.
func (e *Engine) Eval(ctx context.Context, code string, keys, args []string) Value {
	return e.exec.Eval(ctx, Request{Code: code, Keys: keys, Args: args})
}

// Do runs a prepared request.
func (e *Engine) Do(ctx context.Context, req Request) Value {
	return e.exec.Eval(ctx, req)
}

// Executor exposes the underlying executor, for serving it over RESP.
func (e *Engine) Executor() *executor.Executor { return e.exec }

// Stats returns current counters.
func (e *Engine) Stats() Stats { return e.exec.Stats() }

// Close stops the workers and releases every execution context.
func (e *Engine) Close() { e.exec.Close() }
