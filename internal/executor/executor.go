// Package executor wires the execution core together: requests are parked
// with the reply bridge, run on the dispatch pool inside the worker's own
// execution context, and resolved exactly once.
package executor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/cryguy/evaljs/internal/core"
	"github.com/cryguy/evaljs/internal/dispatch"
	"github.com/cryguy/evaljs/internal/engine"
	"github.com/cryguy/evaljs/internal/hostcall"
	"github.com/cryguy/evaljs/internal/reply"
)

// Transform turns a function body into a definition program before it is
// evaluated (see transpile.Transpiler.Program).
type Transform func(code string) (string, error)

// Executor runs EVALJS requests.
type Executor struct {
	cfg       core.EngineConfig
	logger    *slog.Logger
	transform Transform

	bridge  *hostcall.Bridge
	engines *engine.Manager
	pool    *dispatch.Pool
	replies *reply.Bridge
}

type options struct {
	host      core.Host
	logger    *slog.Logger
	transform Transform
}

// Option configures an Executor.
type Option func(*options)

// WithHost sets the connection scripts reach through redis.call.
func WithHost(h core.Host) Option {
	return func(o *options) {
		o.host = h
	}
}

// WithLogger sets the logger for every component.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithTransform applies t to every request that has no prebuilt program.
func WithTransform(t Transform) Option {
	return func(o *options) {
		o.transform = t
	}
}

// New sizes and starts the dispatch pool. Execution contexts are built
// lazily by each worker.
func New(factory core.RuntimeFactory, cfg core.EngineConfig, opts ...Option) *Executor {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	cfg = cfg.WithDefaults()

	bridge := hostcall.New(o.host,
		hostcall.WithTimeout(cfg.HostCallTimeout),
		hostcall.WithLogger(o.logger),
	)
	e := &Executor{
		cfg:       cfg,
		logger:    o.logger,
		transform: o.transform,
		bridge:    bridge,
		engines:   engine.NewManager(factory, cfg, bridge, o.logger),
		pool: dispatch.New(cfg.Workers,
			dispatch.WithQueueLimit(cfg.QueueLimit),
			dispatch.WithLogger(o.logger),
		),
		replies: reply.NewBridge(),
	}
	e.logger.Info("executor started", "workers", cfg.Workers, "queue_limit", cfg.QueueLimit)
	return e
}

// Config returns the effective engine configuration.
func (e *Executor) Config() core.EngineConfig { return e.cfg }

// Submit parks sink and queues req. It returns the request id immediately;
// the reply reaches sink exactly once, from a worker or, if the request
// cannot be queued, before Submit returns.
func (e *Executor) Submit(ctx context.Context, req core.Request, sink reply.Sink) string {
	id := uuid.NewString()
	h := e.replies.Park(sink)

	err := e.pool.Submit(func(w dispatch.Worker) {
		e.run(ctx, w, id, req, h)
	})
	if err != nil {
		e.logger.Warn("request rejected", "request_id", id, "error", err)
		_ = h.Resolve(core.ErrorReply(err))
	}
	return id
}

func (e *Executor) run(ctx context.Context, w dispatch.Worker, id string, req core.Request, h *reply.Handle) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("request panicked", "request_id", id, "worker", w.ID, "panic", r)
			_ = h.Resolve(core.ErrorReply(fmt.Errorf("internal error: %v", r)))
		}
	}()

	if req.Program == "" && e.transform != nil {
		program, err := e.transform(req.Code)
		if err != nil {
			_ = h.Resolve(core.ErrorReply(err))
			return
		}
		req.Program = program
	}

	c, err := e.engines.Get(w.ID)
	if err != nil {
		_ = h.Resolve(core.ErrorReply(err))
		return
	}
	_ = h.Resolve(c.Eval(ctx, id, req))
}

// Eval runs req and waits for its reply. If ctx ends first the caller gets
// the context error; the evaluation itself still runs to completion.
func (e *Executor) Eval(ctx context.Context, req core.Request) core.Value {
	w := reply.NewWaiter()
	e.Submit(ctx, req, w)
	select {
	case v := <-w.C():
		return v
	case <-ctx.Done():
		return core.ErrorReply(ctx.Err())
	}
}

// Stats is a snapshot of executor counters.
type Stats struct {
	Workers       int
	Busy          int64
	Queued        int
	Pending       int64
	Completed     uint64
	ContextsBuilt uint64
	ContextsLive  int64
	HostCalls     uint64
}

// Stats returns current counters.
func (e *Executor) Stats() Stats {
	return Stats{
		Workers:       e.pool.Size(),
		Busy:          e.pool.Busy(),
		Queued:        e.pool.Len(),
		Pending:       e.replies.Pending(),
		Completed:     e.replies.Resolved(),
		ContextsBuilt: e.engines.Built(),
		ContextsLive:  e.engines.Live(),
		HostCalls:     e.bridge.Calls(),
	}
}

// Close drains queued work, stops the workers and releases every context.
func (e *Executor) Close() {
	e.pool.Close()
	e.engines.Close()
	e.logger.Info("executor stopped")
}
