// Package marshal converts between host values (core.Value) and script
// values.
//
// Script values cross the engine boundary as tagged JSON produced and
// consumed by the JS prelude in internal/jsapi:
//
//	{"t":"n"}                 null / undefined
//	{"t":"b","v":true}        boolean
//	{"t":"i","v":4}           integer (safe integer in JS)
//	{"t":"f","v":1.5}         floating point ({"t":"f","k":"NaN"} when not finite)
//	{"t":"s","v":"x"}         string
//	{"t":"o","v":"OK"}        status string (a string in JS)
//	{"t":"a","v":[...]}       array, elements tagged recursively
//	{"t":"e","v":"ERR x"}     error
//	{"t":"x","k":"object"}    a value with no host representation
//
// Keeping the representation in JSON lets every engine backend share one
// conversion path.
package marshal

import (
	"encoding/json"
	"fmt"
	"math"
)

// Tag identifies the kind of a ScriptValue on the wire.
type Tag string

const (
	TagNull        Tag = "n"
	TagBool        Tag = "b"
	TagInteger     Tag = "i"
	TagFloat       Tag = "f"
	TagString      Tag = "s"
	TagStatus      Tag = "o"
	TagArray       Tag = "a"
	TagError       Tag = "e"
	TagUnsupported Tag = "x"
)

// ScriptValue is a script-side value in its transport form.
type ScriptValue struct {
	Tag   Tag
	Bool  bool
	Int   int64
	Float float64
	Str   string // string, status or error text
	Items []ScriptValue
	Kind  string // JS type name for TagUnsupported
}

type wire struct {
	T Tag             `json:"t"`
	V json.RawMessage `json:"v,omitempty"`
	K string          `json:"k,omitempty"`
}

// MarshalJSON encodes v in the tagged wire format.
func (v ScriptValue) MarshalJSON() ([]byte, error) {
	w := wire{T: v.Tag}
	var payload any
	switch v.Tag {
	case TagNull:
	case TagBool:
		payload = v.Bool
	case TagInteger:
		payload = v.Int
	case TagFloat:
		switch {
		case math.IsNaN(v.Float):
			w.K = "NaN"
		case math.IsInf(v.Float, 1):
			w.K = "Infinity"
		case math.IsInf(v.Float, -1):
			w.K = "-Infinity"
		default:
			payload = v.Float
		}
	case TagString, TagStatus, TagError:
		payload = v.Str
	case TagArray:
		items := v.Items
		if items == nil {
			items = []ScriptValue{}
		}
		payload = items
	case TagUnsupported:
		w.K = v.Kind
	default:
		return nil, fmt.Errorf("marshal: unknown tag %q", v.Tag)
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		w.V = raw
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes the tagged wire format.
func (v *ScriptValue) UnmarshalJSON(b []byte) error {
	var w wire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*v = ScriptValue{Tag: w.T, Kind: w.K}
	var err error
	switch w.T {
	case TagNull, TagUnsupported:
	case TagBool:
		err = decodePayload(w.V, &v.Bool)
	case TagInteger:
		err = decodePayload(w.V, &v.Int)
	case TagFloat:
		switch w.K {
		case "NaN":
			v.Float = math.NaN()
		case "Infinity":
			v.Float = math.Inf(1)
		case "-Infinity":
			v.Float = math.Inf(-1)
		default:
			err = decodePayload(w.V, &v.Float)
		}
		v.Kind = ""
	case TagString, TagStatus, TagError:
		err = decodePayload(w.V, &v.Str)
	case TagArray:
		err = decodePayload(w.V, &v.Items)
		if v.Items == nil {
			v.Items = []ScriptValue{}
		}
	default:
		return fmt.Errorf("marshal: unknown tag %q", w.T)
	}
	if err != nil {
		return fmt.Errorf("marshal: decoding %q value: %w", w.T, err)
	}
	return nil
}

func decodePayload(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return fmt.Errorf("missing payload")
	}
	return json.Unmarshal(raw, dst)
}

// Decode parses one JSON-encoded ScriptValue.
func Decode(s string) (ScriptValue, error) {
	var v ScriptValue
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return ScriptValue{}, err
	}
	return v, nil
}

// Encode renders v as JSON for the JS prelude.
func Encode(v ScriptValue) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
