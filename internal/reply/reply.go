// Package reply parks callers while their script runs on a worker and
// delivers each caller's result exactly once.
package reply

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/cryguy/evaljs/internal/core"
)

// ErrAlreadyResolved is returned by Handle.Resolve after the first call.
var ErrAlreadyResolved = errors.New("reply already resolved")

// Sink receives the one reply of a parked request.
type Sink interface {
	Deliver(v core.Value)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(v core.Value)

// Deliver calls f.
func (f SinkFunc) Deliver(v core.Value) { f(v) }

// Bridge tracks parked requests.
type Bridge struct {
	pending  atomic.Int64
	resolved atomic.Uint64
}

// NewBridge returns an empty bridge.
func NewBridge() *Bridge {
	return &Bridge{}
}

// Park registers sink as waiting for a reply and returns the handle that
// resolves it. Park never blocks.
func (b *Bridge) Park(sink Sink) *Handle {
	b.pending.Add(1)
	return &Handle{bridge: b, sink: sink}
}

// Pending returns the number of parked requests not yet resolved.
func (b *Bridge) Pending() int64 { return b.pending.Load() }

// Resolved returns the number of replies delivered.
func (b *Bridge) Resolved() uint64 { return b.resolved.Load() }

// Handle is a pending reply. It moves into the work closure; only its
// first Resolve delivers.
type Handle struct {
	bridge *Bridge
	once   sync.Once
	sink   Sink
}

// Resolve delivers v to the parked caller. A second call returns
// ErrAlreadyResolved and delivers nothing.
func (h *Handle) Resolve(v core.Value) error {
	err := ErrAlreadyResolved
	h.once.Do(func() {
		err = nil
		sink := h.sink
		h.sink = nil
		h.bridge.pending.Add(-1)
		h.bridge.resolved.Add(1)
		if sink != nil {
			sink.Deliver(v)
		}
	})
	return err
}

// Waiter is a Sink a goroutine can block on.
type Waiter struct {
	ch chan core.Value
}

// NewWaiter returns a waiter with room for its single reply.
func NewWaiter() *Waiter {
	return &Waiter{ch: make(chan core.Value, 1)}
}

// Deliver stores v without blocking.
func (w *Waiter) Deliver(v core.Value) {
	select {
	case w.ch <- v:
	default:
	}
}

// C returns the channel the reply arrives on.
func (w *Waiter) C() <-chan core.Value { return w.ch }

// Wait blocks until the reply arrives.
func (w *Waiter) Wait() core.Value { return <-w.ch }
