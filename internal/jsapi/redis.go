// Package jsapi installs the script-visible globals of an execution
// context: the redis namespace, console, and the per-evaluation wrapper.
// Everything here is engine-agnostic and goes through core.JSRuntime.
package jsapi

import (
	"github.com/cryguy/evaljs/internal/core"
)

// Names of the Go callbacks the prelude captures and then removes from
// globalThis.
const (
	hostCallFunc = "__evaljs_host_call"
	logFunc      = "__evaljs_log"
)

// Callbacks are the Go functions behind the redis namespace. Both take and
// return JSON strings.
type Callbacks struct {
	// HostCall receives a JSON array of tagged argument values and returns
	// a JSON envelope: {"ok": value}, {"err": msg} for an operation the host
	// rejected, or {"raise": msg} for a caller error.
	HostCall func(argsJSON string) string

	// Log receives {"level": "...", "msg": "..."}.
	Log func(entryJSON string) string
}

// redisJS builds the frozen redis namespace, console and the internal
// __evaljs helpers used by the evaluation wrapper.
const redisJS = `
(function() {
	var hostCall = globalThis.__evaljs_host_call;
	var hostLog = globalThis.__evaljs_log;
	delete globalThis.__evaljs_host_call;
	delete globalThis.__evaljs_log;

	function typeName(v) {
		if (v === null) return 'null';
		if (Array.isArray(v)) return 'array';
		return typeof v;
	}

	function encodeNumber(v) {
		if (Number.isSafeInteger(v)) return {t: 'i', v: v};
		if (isFinite(v)) return {t: 'f', v: v};
		return {t: 'f', k: isNaN(v) ? 'NaN' : (v > 0 ? 'Infinity' : '-Infinity')};
	}

	function encodeScalar(v) {
		switch (typeof v) {
		case 'undefined': return {t: 'n'};
		case 'boolean': return {t: 'b', v: v};
		case 'number': return encodeNumber(v);
		case 'string': return {t: 's', v: v};
		case 'bigint': return {t: 's', v: v.toString()};
		}
		if (v === null) return {t: 'n'};
		return null;
	}

	// Objects carrying a string err/ok field are error and status replies.
	function encode(v) {
		var s = encodeScalar(v);
		if (s !== null) return s;
		if (Array.isArray(v)) {
			var items = new Array(v.length);
			for (var i = 0; i < v.length; i++) items[i] = encode(v[i]);
			return {t: 'a', v: items};
		}
		if (typeof v === 'object') {
			if (typeof v.err === 'string') return {t: 'e', v: v.err};
			if (typeof v.ok === 'string') return {t: 'o', v: v.ok};
		}
		return {t: 'x', k: typeName(v)};
	}

	function encodeArg(v) {
		var s = encodeScalar(v);
		return s !== null ? s : {t: 'x', k: typeName(v)};
	}

	function decode(w) {
		switch (w.t) {
		case 'b': case 'i': case 's': case 'o':
			return w.v;
		case 'f':
			if (w.k === 'NaN') return NaN;
			if (w.k === 'Infinity') return Infinity;
			if (w.k === '-Infinity') return -Infinity;
			return w.v;
		case 'a':
			var out = new Array(w.v.length);
			for (var i = 0; i < w.v.length; i++) out[i] = decode(w.v[i]);
			return out;
		case 'e':
			return {err: w.v};
		}
		return null;
	}

	function message(e) {
		if (e instanceof Error) {
			if (e.name && e.name !== 'Error') return e.name + ': ' + e.message;
			return e.message;
		}
		if (e !== null && typeof e === 'object' && typeof e.err === 'string') return e.err;
		return String(e);
	}

	function invoke(args, protect) {
		var wire = new Array(args.length);
		for (var i = 0; i < args.length; i++) wire[i] = encodeArg(args[i]);
		var res = JSON.parse(hostCall(JSON.stringify(wire)));
		if (res.raise !== undefined) throw new Error(res.raise);
		if (res.err !== undefined) {
			if (protect) return {err: res.err};
			throw new Error(res.err);
		}
		return decode(res.ok);
	}

	function join(args, from) {
		var parts = [];
		for (var i = from; i < args.length; i++) {
			var a = args[i];
			parts.push(a !== null && typeof a === 'object' ? JSON.stringify(a) : String(a));
		}
		return parts.join(' ');
	}

	var logLevels = ['debug', 'verbose', 'notice', 'warning'];

	var redis = {
		LOG_DEBUG: 0,
		LOG_VERBOSE: 1,
		LOG_NOTICE: 2,
		LOG_WARNING: 3,
		call: function() { return invoke(arguments, false); },
		pcall: function() { return invoke(arguments, true); },
		error_reply: function(msg) { return {err: String(msg)}; },
		status_reply: function(msg) { return {ok: String(msg)}; },
		log: function(level) {
			if (arguments.length < 2) throw new Error('ERR redis.log() requires two arguments or more');
			var name = logLevels[level];
			if (name === undefined) throw new Error('ERR Invalid log level');
			hostLog(JSON.stringify({level: name, msg: join(arguments, 1)}));
		}
	};

	var con = {};
	['log', 'info', 'warn', 'error', 'debug'].forEach(function(lvl) {
		con[lvl] = function() { hostLog(JSON.stringify({level: lvl, msg: join(arguments, 0)})); };
	});

	Object.defineProperty(globalThis, 'redis', {value: Object.freeze(redis), enumerable: false});
	globalThis.console = con;
	Object.defineProperty(globalThis, '__evaljs', {
		value: Object.freeze({encode: encode, message: message}),
		enumerable: false
	});
})();
`

// SetupRedis registers the Go callbacks and installs the redis namespace.
// It runs once per execution context.
func SetupRedis(rt core.JSRuntime, cb Callbacks) error {
	if err := rt.RegisterFunc(hostCallFunc, cb.HostCall); err != nil {
		return err
	}
	if err := rt.RegisterFunc(logFunc, cb.Log); err != nil {
		return err
	}
	return rt.Eval(redisJS)
}
