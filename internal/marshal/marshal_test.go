package marshal

import (
	"encoding/json"
	"math"
	"strings"
	"testing"

	"github.com/cryguy/evaljs/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip_ArrayOfScalars(t *testing.T) {
	host := core.Array(
		core.Int(1),
		core.String("two"),
		core.Null(),
		core.Float(3.25),
		core.Bool(true),
		core.Bool(false),
		core.Status("OK"),
		core.Int(-42),
	)

	got := ToHostReply(ToScript(host))
	assert.True(t, host.Equal(got), "round trip changed value: %s", got)
}

func TestRoundTrip_ThroughWire(t *testing.T) {
	host := core.Array(core.Int(7), core.Array(core.String("a"), core.Float(0.5)), core.Null())

	encoded, err := Encode(ToScript(host))
	require.NoError(t, err)

	decoded, err := Decode(encoded)
	require.NoError(t, err)
	assert.True(t, host.Equal(ToHostReply(decoded)))
}

func TestDecode_PreludeOutput(t *testing.T) {
	// Shapes produced by the JS encoder.
	v, err := Decode(`{"t":"a","v":[{"t":"i","v":4},{"t":"s","v":"x"},{"t":"n"},{"t":"x","k":"function"}]}`)
	require.NoError(t, err)

	reply := ToHostReply(v)
	require.Equal(t, core.KindArray, reply.Kind)
	require.Len(t, reply.Array, 4)
	assert.Equal(t, core.Int(4), reply.Array[0])
	assert.Equal(t, core.String("x"), reply.Array[1])
	assert.Equal(t, core.KindNull, reply.Array[2].Kind)
	assert.Equal(t, core.ErrorValue("ERR unsupported type"), reply.Array[3])
}

func TestDecode_EmptyArrayIsNotNil(t *testing.T) {
	v, err := Decode(`{"t":"a","v":[]}`)
	require.NoError(t, err)
	reply := ToHostReply(v)
	assert.Equal(t, core.KindArray, reply.Kind)
	assert.NotNil(t, reply.Array)
	assert.Empty(t, reply.Array)
}

func TestDecode_RejectsUnknownTag(t *testing.T) {
	_, err := Decode(`{"t":"q","v":1}`)
	assert.Error(t, err)
}

func TestDecode_RejectsMissingPayload(t *testing.T) {
	_, err := Decode(`{"t":"i"}`)
	assert.Error(t, err)
}

func TestDecode_DeepNestingFails(t *testing.T) {
	depth := 20000
	s := strings.Repeat(`{"t":"a","v":[`, depth) + strings.Repeat(`]}`, depth)
	_, err := Decode(s)
	assert.Error(t, err, "nesting beyond the decoder limit must fail, not crash")
}

func TestFloat_NonFinite(t *testing.T) {
	for _, f := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		encoded, err := Encode(ScriptValue{Tag: TagFloat, Float: f})
		require.NoError(t, err)

		decoded, err := Decode(encoded)
		require.NoError(t, err)
		if math.IsNaN(f) {
			assert.True(t, math.IsNaN(decoded.Float))
		} else {
			assert.Equal(t, f, decoded.Float)
		}
	}
}

func TestToScript_ErrorAndStatus(t *testing.T) {
	assert.Equal(t, ScriptValue{Tag: TagError, Str: "WRONGTYPE bad"}, ToScript(core.ErrorValue("WRONGTYPE bad")))
	assert.Equal(t, ScriptValue{Tag: TagStatus, Str: "OK"}, ToScript(core.Status("OK")))
}

func TestToHostReply_ErrorGetsCode(t *testing.T) {
	assert.Equal(t, core.ErrorValue("ERR boom"), ToHostReply(ScriptValue{Tag: TagError, Str: "boom"}))
	assert.Equal(t, core.ErrorValue("WRONGTYPE nope"), ToHostReply(ScriptValue{Tag: TagError, Str: "WRONGTYPE nope"}))
}

func TestToHostArgs(t *testing.T) {
	args, err := ToHostArgs([]ScriptValue{
		{Tag: TagString, Str: "SET"},
		{Tag: TagString, Str: "k"},
		{Tag: TagInteger, Int: 10},
		{Tag: TagFloat, Float: 1.5},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"SET", "k", "10", "1.5"}, args)
}

func TestToHostArgs_RejectsNonStringable(t *testing.T) {
	for _, v := range []ScriptValue{
		{Tag: TagNull},
		{Tag: TagBool, Bool: true},
		{Tag: TagArray},
		{Tag: TagUnsupported, Kind: "object"},
	} {
		_, err := ToHostArgs([]ScriptValue{{Tag: TagString, Str: "GET"}, v})
		var merr *core.MarshalError
		require.ErrorAs(t, err, &merr, "tag %q", v.Tag)
		assert.Equal(t, ErrArgumentType, merr.Reason)
	}
}

func TestMarshalJSON_Shape(t *testing.T) {
	b, err := json.Marshal(ScriptValue{Tag: TagArray, Items: []ScriptValue{{Tag: TagInteger, Int: 1}, {Tag: TagNull}}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"t":"a","v":[{"t":"i","v":1},{"t":"n"}]}`, string(b))
}
