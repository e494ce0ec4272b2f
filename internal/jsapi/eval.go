package jsapi

import (
	"encoding/json"
	"fmt"

	"github.com/cryguy/evaljs/internal/core"
)

// PendingMarker is what RunJS yields when the function returned a
// thenable; the settled value is read with SettledJS after microtasks run.
const PendingMarker = `{"t":"p"}`

// DefineJS wraps a function body in a function expression stored on
// globalThis. Evaluating it compiles the script without running it, so
// syntax errors surface separately from runtime errors.
func DefineJS(body string) string {
	return "globalThis.__evaljs_fn = (function() {\n" + body + "\n});"
}

// RunJS calls the function stored by DefineJS and returns its result (or
// the exception it threw) as a tagged JSON string.
const RunJS = `
(function() {
	var ev = globalThis.__evaljs;
	var fn = globalThis.__evaljs_fn;
	delete globalThis.__evaljs_fn;
	function fail(e) {
		try { return JSON.stringify({t: 'e', v: ev.message(e)}); }
		catch (e2) { return '{"t":"e","v":"ERR unprintable exception"}'; }
	}
	function settle(v) {
		try { return JSON.stringify(ev.encode(v)); } catch (e) { return fail(e); }
	}
	if (typeof fn !== 'function') return fail(new Error('ERR script function missing'));
	var r;
	try {
		r = fn();
	} catch (e) {
		return fail(e);
	}
	if (r !== null && (typeof r === 'object' || typeof r === 'function') && typeof r.then === 'function') {
		globalThis.__evaljs_settled = undefined;
		try {
			r.then(function(v) { globalThis.__evaljs_settled = settle(v); },
				function(e) { globalThis.__evaljs_settled = fail(e); });
		} catch (e) {
			return fail(e);
		}
		return '` + PendingMarker + `';
	}
	return settle(r);
})()
`

// SettledJS reads and clears the value a pending promise settled with. It
// yields the empty string while the promise is still pending.
const SettledJS = `
(function() {
	var s = globalThis.__evaljs_settled;
	delete globalThis.__evaljs_settled;
	return s === undefined ? '' : s;
})()
`

// BindArgs rebinds KEYS and ARGV to fresh arrays. Other globals are left
// untouched.
func BindArgs(rt core.JSRuntime, keys, args []string) error {
	if keys == nil {
		keys = []string{}
	}
	if args == nil {
		args = []string{}
	}
	k, err := json.Marshal(keys)
	if err != nil {
		return fmt.Errorf("encoding KEYS: %w", err)
	}
	a, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encoding ARGV: %w", err)
	}
	return rt.Eval("globalThis.KEYS = " + string(k) + ";\nglobalThis.ARGV = " + string(a) + ";")
}
