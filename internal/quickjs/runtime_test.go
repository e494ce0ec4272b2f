//go:build !v8

package quickjs

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryguy/evaljs/internal/core"
)

func newRuntime(t *testing.T, cfg core.RuntimeConfig) core.JSRuntime {
	t.Helper()
	rt, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(rt.Close)
	return rt
}

func TestRuntime_EvalString(t *testing.T) {
	rt := newRuntime(t, core.RuntimeConfig{})

	require.NoError(t, rt.Eval("globalThis.x = 20;"))
	got, err := rt.EvalString("String(x * 2 + 2)")
	require.NoError(t, err)
	assert.Equal(t, "42", got)

	got, err = rt.EvalString("undefined")
	require.NoError(t, err)
	assert.Equal(t, "", got)

	_, err = rt.EvalString("throw new Error('bad')")
	assert.Error(t, err)
}

func TestRuntime_RegisterFunc(t *testing.T) {
	rt := newRuntime(t, core.RuntimeConfig{})
	require.NoError(t, rt.RegisterFunc("shout", strings.ToUpper))

	got, err := rt.EvalString("shout('hello')")
	require.NoError(t, err)
	assert.Equal(t, "HELLO", got)
}

func TestRuntime_RunMicrotasks(t *testing.T) {
	rt := newRuntime(t, core.RuntimeConfig{})
	require.NoError(t, rt.Eval("globalThis.done = 'no'; Promise.resolve().then(function() { globalThis.done = 'yes'; });"))

	got, err := rt.EvalString("done")
	require.NoError(t, err)
	assert.Equal(t, "no", got)

	rt.RunMicrotasks()
	got, err = rt.EvalString("done")
	require.NoError(t, err)
	assert.Equal(t, "yes", got)
}

func TestRuntime_StackLimit(t *testing.T) {
	rt := newRuntime(t, core.RuntimeConfig{MaxStackSize: 64 * 1024})
	_, err := rt.EvalString("(function f() { return f(); })()")
	assert.Error(t, err)

	got, err := rt.EvalString("'still usable'")
	require.NoError(t, err)
	assert.Equal(t, "still usable", got)
}
