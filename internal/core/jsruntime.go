package core

// JSRuntime abstracts the JavaScript engine (QuickJS or V8) behind the
// narrow surface the execution core needs. Shared setup code in
// internal/jsapi and the execution context in internal/engine only talk to
// this interface, so every backend installs the same prelude.
//
// A JSRuntime is confined to the goroutine that owns it. Only Interrupt may
// be called from another goroutine.
type JSRuntime interface {
	// Eval evaluates JavaScript source and discards the result.
	Eval(js string) error

	// EvalString evaluates JavaScript and returns the result as a Go string.
	EvalString(js string) (string, error)

	// RegisterFunc registers a Go function as a global JavaScript function.
	// Supported signatures use string arguments and a single string return;
	// marshaling of anything richer happens in JSON on both sides.
	RegisterFunc(name string, fn func(arg string) string) error

	// RunMicrotasks pumps the microtask queue (Promise callbacks).
	// V8: PerformMicrotaskCheckpoint, QuickJS: ExecutePendingJob loop.
	RunMicrotasks()

	// Interrupt aborts the evaluation currently running on the runtime.
	// Safe to call from any goroutine.
	Interrupt()

	// Close releases the engine. The runtime is unusable afterwards.
	Close()
}

// RuntimeConfig is applied once when a runtime is created.
type RuntimeConfig struct {
	MaxStackSize  int // bytes; 0 keeps the engine default
	MemoryLimitMB int // 0 means unlimited
}

// RuntimeFactory creates a new engine instance. Backends (QuickJS, V8)
// provide one; tests substitute failing or counting factories.
type RuntimeFactory func(cfg RuntimeConfig) (JSRuntime, error)
