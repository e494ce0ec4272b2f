//go:build !v8

// Package quickjs is the default engine backend, built on the pure-Go
// modernc.org/quickjs port.
package quickjs

import (
	"fmt"

	"github.com/cryguy/evaljs/internal/core"
	"modernc.org/quickjs"
)

// qjsRuntime implements core.JSRuntime for the QuickJS engine.
type qjsRuntime struct {
	vm *quickjs.VM
}

var _ core.JSRuntime = (*qjsRuntime)(nil)

// New creates a QuickJS VM configured with cfg. It matches
// core.RuntimeFactory.
func New(cfg core.RuntimeConfig) (core.JSRuntime, error) {
	vm, err := quickjs.NewVM()
	if err != nil {
		return nil, fmt.Errorf("creating QuickJS VM: %w", err)
	}

	if cfg.MemoryLimitMB > 0 {
		vm.SetMemoryLimit(uintptr(cfg.MemoryLimitMB) * 1024 * 1024)
	}
	if cfg.MaxStackSize > 0 {
		if err := setMaxStackSize(vm, cfg.MaxStackSize); err != nil {
			vm.Close()
			return nil, err
		}
	}

	return &qjsRuntime{vm: vm}, nil
}

// Eval evaluates JavaScript and discards the result.
func (r *qjsRuntime) Eval(js string) error {
	v, err := r.vm.EvalValue(js, quickjs.EvalGlobal)
	if err != nil {
		return err
	}
	v.Free()
	return nil
}

// EvalString evaluates JavaScript and returns the result as a Go string.
func (r *qjsRuntime) EvalString(js string) (string, error) {
	result, err := r.vm.Eval(js, quickjs.EvalGlobal)
	if err != nil {
		return "", err
	}
	switch v := result.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	default:
		return fmt.Sprint(v), nil
	}
}

// RegisterFunc registers a Go function as a global JavaScript function.
func (r *qjsRuntime) RegisterFunc(name string, fn func(arg string) string) error {
	return r.vm.RegisterFunc(name, fn, false)
}

// RunMicrotasks pumps the QuickJS microtask queue.
func (r *qjsRuntime) RunMicrotasks() {
	executePendingJobs(r.vm)
}

// Interrupt aborts the running evaluation with an uncatchable error.
func (r *qjsRuntime) Interrupt() {
	r.vm.Interrupt()
}

// Close frees the VM.
func (r *qjsRuntime) Close() {
	r.vm.Close()
}
