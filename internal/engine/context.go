// Package engine owns execution contexts: one script engine instance per
// dispatch worker, created on first use and reused for every request that
// worker serves.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cryguy/evaljs/internal/core"
	"github.com/cryguy/evaljs/internal/hostcall"
	"github.com/cryguy/evaljs/internal/jsapi"
	"github.com/cryguy/evaljs/internal/marshal"
)

// Context is one engine instance with the redis namespace installed. It is
// confined to the worker that created it.
//
// Globals a script creates (other than KEYS and ARGV) persist into later
// requests on the same worker. Set EngineConfig.ContextMaxUses to bound
// that reuse.
type Context struct {
	worker int
	rt     core.JSRuntime
	cfg    core.EngineConfig
	bridge *hostcall.Bridge
	logger *slog.Logger

	state  *core.RequestState // set for the duration of Eval
	uses   int
	broken bool // interrupted or panicked; rebuilt on next use
}

func newContext(worker int, factory core.RuntimeFactory, cfg core.EngineConfig, bridge *hostcall.Bridge, logger *slog.Logger) (c *Context, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("engine construction panicked: %v", r)
		}
	}()

	if factory == nil {
		return nil, errors.New("no engine backend")
	}
	rt, err := factory(cfg.Runtime())
	if err != nil {
		return nil, err
	}

	c = &Context{
		worker: worker,
		rt:     rt,
		cfg:    cfg,
		bridge: bridge,
		logger: logger.With("worker", worker),
	}
	if err := jsapi.SetupRedis(rt, jsapi.Callbacks{HostCall: c.hostCall, Log: c.log}); err != nil {
		rt.Close()
		return nil, fmt.Errorf("installing redis namespace: %w", err)
	}
	return c, nil
}

// Uses returns how many evaluations the context has run.
func (c *Context) Uses() int { return c.uses }

func (c *Context) retired() bool {
	if c.broken {
		return true
	}
	return c.cfg.ContextMaxUses > 0 && c.uses >= c.cfg.ContextMaxUses
}

func (c *Context) close() {
	c.rt.Close()
}

// Eval runs one request and returns the value to reply with. Every failure
// (compile error, exception, timeout, marshaling, panic) comes back as an
// error Value; Eval itself never panics.
func (c *Context) Eval(ctx context.Context, reqID string, req core.Request) (reply core.Value) {
	c.uses++
	c.state = core.NewRequestState(ctx, reqID, c.logger)
	state := c.state

	var watchdog *time.Timer
	var fired chan struct{}
	if c.cfg.ExecutionTimeout > 0 {
		fired = make(chan struct{})
		rt := c.rt
		watchdog = time.AfterFunc(c.cfg.ExecutionTimeout, func() {
			defer close(fired)
			rt.Interrupt()
		})
	}

	defer func() {
		var timedOut bool
		if watchdog != nil && !watchdog.Stop() {
			// The runtime may be closed as soon as Eval returns, so the
			// interrupt must have finished by then.
			timedOut = true
			<-fired
		}
		if r := recover(); r != nil {
			c.broken = true
			reply = core.ErrorReply(fmt.Errorf("script panic: %v", r))
		}
		if timedOut {
			c.broken = true
			reply = core.ErrorReply(fmt.Errorf("%w (limit: %v)", core.ErrTimeout, c.cfg.ExecutionTimeout))
		}
		c.state = nil

		level := slog.LevelDebug
		if reply.IsError() {
			level = slog.LevelInfo
		}
		state.Logger.Log(context.Background(), level, "evaluation finished",
			"duration", time.Since(state.Started),
			"host_calls", state.HostCalls,
			"error", reply.IsError(),
		)
	}()

	return c.run(req)
}

func (c *Context) run(req core.Request) core.Value {
	if err := jsapi.BindArgs(c.rt, req.Keys, req.Args); err != nil {
		return core.ErrorReply(err)
	}
	program := req.Program
	if program == "" {
		program = jsapi.DefineJS(req.Code)
	}
	if err := c.rt.Eval(program); err != nil {
		return core.ErrorReply(&core.ScriptError{Message: engineMessage(err), Compile: true})
	}

	out, err := c.rt.EvalString(jsapi.RunJS)
	if err != nil {
		return core.ErrorReply(&core.ScriptError{Message: engineMessage(err)})
	}
	if out == jsapi.PendingMarker {
		c.rt.RunMicrotasks()
		out, err = c.rt.EvalString(jsapi.SettledJS)
		if err != nil {
			return core.ErrorReply(&core.ScriptError{Message: engineMessage(err)})
		}
		if out == "" {
			return core.ErrorReply(&core.ScriptError{Message: "script returned a promise that never settled"})
		}
	}

	sv, err := marshal.Decode(out)
	if err != nil {
		return core.ErrorReply(&core.MarshalError{Reason: fmt.Sprintf("decoding script result: %v", err)})
	}
	return marshal.ToHostReply(sv)
}

func (c *Context) hostCall(argsJSON string) string {
	ctx := context.Background()
	if st := c.state; st != nil {
		st.HostCalls++
		ctx = st.Ctx
	}
	return c.bridge.Call(ctx, argsJSON)
}

func (c *Context) log(entryJSON string) string {
	var entry struct {
		Level string `json:"level"`
		Msg   string `json:"msg"`
	}
	if err := json.Unmarshal([]byte(entryJSON), &entry); err != nil {
		return ""
	}
	logger := c.logger
	if st := c.state; st != nil {
		logger = st.Logger
	}
	logger.Log(context.Background(), scriptLevel(entry.Level), entry.Msg, "source", "script")
	return ""
}

func scriptLevel(name string) slog.Level {
	switch name {
	case "debug", "verbose":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// engineMessage keeps the first line of an engine error; the remaining
// lines are a backtrace.
func engineMessage(err error) string {
	msg := strings.TrimSpace(err.Error())
	if line, _, ok := strings.Cut(msg, "\n"); ok {
		msg = strings.TrimSpace(line)
	}
	return msg
}
