package hostcall

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cryguy/evaljs/internal/core"
	"github.com/cryguy/evaljs/internal/marshal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHost struct {
	mu    sync.Mutex
	calls [][]string
	reply core.Value
	err   error
}

func (h *recordingHost) Do(_ context.Context, name string, args []string) (core.Value, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, append([]string{name}, args...))
	return h.reply, h.err
}

func decodeEnvelope(t *testing.T, s string) envelope {
	t.Helper()
	var e envelope
	require.NoError(t, json.Unmarshal([]byte(s), &e), "envelope %s", s)
	return e
}

func args(t *testing.T, vals ...marshal.ScriptValue) string {
	t.Helper()
	b, err := json.Marshal(vals)
	require.NoError(t, err)
	return string(b)
}

func str(s string) marshal.ScriptValue { return marshal.ScriptValue{Tag: marshal.TagString, Str: s} }

func TestCall_ForwardsStringifiedArgs(t *testing.T) {
	host := &recordingHost{reply: core.Status("OK")}
	b := New(host)

	out := decodeEnvelope(t, b.Call(context.Background(), args(t,
		str("SET"), str("counter"), marshal.ScriptValue{Tag: marshal.TagInteger, Int: 5},
	)))

	require.NotNil(t, out.OK)
	assert.Equal(t, marshal.TagStatus, out.OK.Tag)
	assert.Equal(t, "OK", out.OK.Str)
	assert.Equal(t, [][]string{{"SET", "counter", "5"}}, host.calls)
	assert.Equal(t, uint64(1), b.Calls())
}

func TestCall_ConvertsArrayReply(t *testing.T) {
	host := &recordingHost{reply: core.Array(core.String("a"), core.Null(), core.Int(3))}
	b := New(host)

	out := decodeEnvelope(t, b.Call(context.Background(), args(t, str("LRANGE"), str("l"), str("0"), str("-1"))))
	require.NotNil(t, out.OK)
	assert.True(t, host.reply.Equal(marshal.ToHostReply(*out.OK)))
}

func TestCall_NoArgumentsRaises(t *testing.T) {
	host := &recordingHost{}
	b := New(host)

	out := decodeEnvelope(t, b.Call(context.Background(), `[]`))
	require.NotNil(t, out.Raise)
	assert.Equal(t, errNoCommand, *out.Raise)
	assert.Empty(t, host.calls, "host must not be touched")
}

func TestCall_NonStringArgumentRaises(t *testing.T) {
	host := &recordingHost{}
	b := New(host)

	out := decodeEnvelope(t, b.Call(context.Background(), args(t, str("GET"), marshal.ScriptValue{Tag: marshal.TagUnsupported, Kind: "object"})))
	require.NotNil(t, out.Raise)
	assert.Equal(t, marshal.ErrArgumentType, *out.Raise)
	assert.Empty(t, host.calls)
}

func TestCall_MalformedJSONRaises(t *testing.T) {
	b := New(&recordingHost{})
	out := decodeEnvelope(t, b.Call(context.Background(), `not json`))
	require.NotNil(t, out.Raise)
}

func TestCall_HostErrorReply(t *testing.T) {
	host := &recordingHost{reply: core.ErrorValue("WRONGTYPE Operation against a key holding the wrong kind of value")}
	b := New(host)

	out := decodeEnvelope(t, b.Call(context.Background(), args(t, str("INCR"), str("list"))))
	require.NotNil(t, out.Err)
	assert.Equal(t, "WRONGTYPE Operation against a key holding the wrong kind of value", *out.Err)
	assert.Nil(t, out.OK)
}

func TestCall_TransportError(t *testing.T) {
	host := &recordingHost{err: errors.New("connection reset")}
	b := New(host)

	out := decodeEnvelope(t, b.Call(context.Background(), args(t, str("PING"))))
	require.NotNil(t, out.Err)
	assert.Equal(t, "ERR host connection: connection reset", *out.Err)
}

func TestCall_NoHost(t *testing.T) {
	b := New(nil)
	out := decodeEnvelope(t, b.Call(context.Background(), args(t, str("PING"))))
	require.NotNil(t, out.Err)
	assert.Equal(t, "ERR no host connection configured", *out.Err)
}

func TestCall_PanickingHost(t *testing.T) {
	b := New(core.HostFunc(func(context.Context, string, []string) (core.Value, error) {
		panic("boom")
	}))

	var out string
	require.NotPanics(t, func() { out = b.Call(context.Background(), args(t, str("PING"))) })
	e := decodeEnvelope(t, out)
	require.NotNil(t, e.Err)
	assert.Contains(t, *e.Err, "boom")

	// The lock was released by the deferred unlock.
	done := make(chan struct{})
	go func() {
		b.mu.Lock()
		b.mu.Unlock()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("host lock left held after panic")
	}
}

func TestDo_SerializesOperations(t *testing.T) {
	var inFlight, maxInFlight atomic.Int32
	host := core.HostFunc(func(context.Context, string, []string) (core.Value, error) {
		n := inFlight.Add(1)
		for {
			m := maxInFlight.Load()
			if n <= m || maxInFlight.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		inFlight.Add(-1)
		return core.Status("OK"), nil
	})
	b := New(host)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := b.Do(context.Background(), "PING", nil)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInFlight.Load(), "host operations overlapped")
	assert.Equal(t, uint64(16), b.Calls())
}

func TestDo_AppliesTimeout(t *testing.T) {
	var deadline time.Time
	var ok bool
	b := New(core.HostFunc(func(ctx context.Context, _ string, _ []string) (core.Value, error) {
		deadline, ok = ctx.Deadline()
		return core.Null(), nil
	}), WithTimeout(time.Second))

	_, err := b.Do(context.Background(), "GET", []string{"k"})
	require.NoError(t, err)
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(time.Second), deadline, time.Second)
}

func TestDo_TimeoutExcludesLockWait(t *testing.T) {
	entered := make(chan struct{})
	var fastErr error
	host := core.HostFunc(func(ctx context.Context, name string, _ []string) (core.Value, error) {
		if name == "SLOW" {
			close(entered)
			time.Sleep(300 * time.Millisecond)
			return core.Status("OK"), nil
		}
		fastErr = ctx.Err()
		return core.Status("OK"), nil
	})
	b := New(host, WithTimeout(200*time.Millisecond))

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = b.Do(context.Background(), "SLOW", nil)
	}()
	<-entered

	_, err := b.Do(context.Background(), "FAST", nil)
	require.NoError(t, err)
	assert.NoError(t, fastErr, "deadline expired while waiting for the lock")
	<-done
}
