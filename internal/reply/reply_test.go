package reply

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/cryguy/evaljs/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve_DeliversOnce(t *testing.T) {
	b := NewBridge()
	w := NewWaiter()
	h := b.Park(w)
	assert.Equal(t, int64(1), b.Pending())

	require.NoError(t, h.Resolve(core.Int(4)))
	assert.ErrorIs(t, h.Resolve(core.Int(5)), ErrAlreadyResolved)

	assert.Equal(t, core.Int(4), w.Wait())
	select {
	case v := <-w.C():
		t.Fatalf("second delivery: %s", v)
	default:
	}
	assert.Equal(t, int64(0), b.Pending())
	assert.Equal(t, uint64(1), b.Resolved())
}

func TestResolve_ConcurrentOnlyOneWins(t *testing.T) {
	b := NewBridge()
	var delivered atomic.Int32
	h := b.Park(SinkFunc(func(core.Value) { delivered.Add(1) }))

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if h.Resolve(core.Int(int64(i))) == nil {
				wins.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, int32(1), delivered.Load())
	assert.Equal(t, int64(0), b.Pending())
}

func TestPark_IndependentHandles(t *testing.T) {
	b := NewBridge()
	w1, w2 := NewWaiter(), NewWaiter()
	h1, h2 := b.Park(w1), b.Park(w2)
	assert.Equal(t, int64(2), b.Pending())

	// Resolve out of order.
	require.NoError(t, h2.Resolve(core.String("second")))
	require.NoError(t, h1.Resolve(core.String("first")))

	assert.Equal(t, core.String("first"), w1.Wait())
	assert.Equal(t, core.String("second"), w2.Wait())
}

func TestResolve_NilSink(t *testing.T) {
	b := NewBridge()
	h := b.Park(nil)
	assert.NoError(t, h.Resolve(core.Null()))
	assert.Equal(t, int64(0), b.Pending())
}
