//go:build v8

// Package v8engine is the V8 engine backend, selected with -tags v8.
package v8engine

import (
	"fmt"
	"sync"

	"github.com/cryguy/evaljs/internal/core"
	v8 "github.com/tommie/v8go"
)

// v8Runtime implements core.JSRuntime for the V8 engine.
type v8Runtime struct {
	iso *v8.Isolate
	ctx *v8.Context
}

var _ core.JSRuntime = (*v8Runtime)(nil)

var stackFlagOnce sync.Once

// New creates a V8 isolate and context. It matches core.RuntimeFactory.
//
// V8 takes its stack limit from a process-wide flag, so the first runtime
// created fixes it for the whole process. MemoryLimitMB is not applied.
func New(cfg core.RuntimeConfig) (core.JSRuntime, error) {
	if cfg.MaxStackSize > 0 {
		stackFlagOnce.Do(func() {
			v8.SetFlags(fmt.Sprintf("--stack-size=%d", cfg.MaxStackSize/1024))
		})
	}

	iso := v8.NewIsolate()
	if iso == nil {
		return nil, fmt.Errorf("creating V8 isolate")
	}
	ctx := v8.NewContext(iso)
	if ctx == nil {
		iso.Dispose()
		return nil, fmt.Errorf("creating V8 context")
	}
	return &v8Runtime{iso: iso, ctx: ctx}, nil
}

// Eval evaluates JavaScript and discards the result.
func (r *v8Runtime) Eval(js string) error {
	_, err := r.ctx.RunScript(js, "eval.js")
	return err
}

// EvalString evaluates JavaScript and returns the result as a Go string.
func (r *v8Runtime) EvalString(js string) (string, error) {
	val, err := r.ctx.RunScript(js, "eval_string.js")
	if err != nil {
		return "", err
	}
	if val == nil || val.IsUndefined() || val.IsNull() {
		return "", nil
	}
	return val.String(), nil
}

// RegisterFunc registers a Go function as a global JavaScript function.
// A missing argument arrives as the empty string.
func (r *v8Runtime) RegisterFunc(name string, fn func(arg string) string) error {
	tmpl := v8.NewFunctionTemplate(r.iso, func(info *v8.FunctionCallbackInfo) *v8.Value {
		var arg string
		if args := info.Args(); len(args) > 0 {
			arg = args[0].String()
		}
		v, err := v8.NewValue(r.iso, fn(arg))
		if err != nil {
			return nil
		}
		return v
	})
	return r.ctx.Global().Set(name, tmpl.GetFunction(r.ctx))
}

// RunMicrotasks pumps the V8 microtask queue.
func (r *v8Runtime) RunMicrotasks() {
	r.ctx.PerformMicrotaskCheckpoint()
}

// Interrupt terminates the running script.
func (r *v8Runtime) Interrupt() {
	r.iso.TerminateExecution()
}

// Close disposes the context and isolate.
func (r *v8Runtime) Close() {
	r.ctx.Close()
	r.iso.Dispose()
}
