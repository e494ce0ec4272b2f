package marshal

import (
	"strconv"

	"github.com/cryguy/evaljs/internal/core"
)

// ErrArgumentType is the marshaling error for a host-call argument with no
// string form.
const ErrArgumentType = "ERR command arguments must be strings or numbers"

// ToScript converts a host value into its script form. Host errors become
// TagError values; the JS side throws them.
func ToScript(v core.Value) ScriptValue {
	switch v.Kind {
	case core.KindNull:
		return ScriptValue{Tag: TagNull}
	case core.KindBool:
		return ScriptValue{Tag: TagBool, Bool: v.Bool}
	case core.KindInteger:
		return ScriptValue{Tag: TagInteger, Int: v.Int}
	case core.KindFloat:
		return ScriptValue{Tag: TagFloat, Float: v.Float}
	case core.KindString:
		return ScriptValue{Tag: TagString, Str: v.Str}
	case core.KindStatus:
		return ScriptValue{Tag: TagStatus, Str: v.Str}
	case core.KindError:
		return ScriptValue{Tag: TagError, Str: v.Str}
	case core.KindArray:
		items := make([]ScriptValue, len(v.Array))
		for i, item := range v.Array {
			items[i] = ToScript(item)
		}
		return ScriptValue{Tag: TagArray, Items: items}
	default:
		return ScriptValue{Tag: TagNull}
	}
}

// ToHostReply converts the final script value of an evaluation into the
// host value that is replied to the caller.
func ToHostReply(v ScriptValue) core.Value {
	switch v.Tag {
	case TagNull:
		return core.Null()
	case TagBool:
		return core.Bool(v.Bool)
	case TagInteger:
		return core.Int(v.Int)
	case TagFloat:
		return core.Float(v.Float)
	case TagString:
		return core.String(v.Str)
	case TagStatus:
		return core.Status(v.Str)
	case TagError:
		return core.ErrorValue(core.WithCode(v.Str))
	case TagArray:
		items := make([]core.Value, len(v.Items))
		for i, item := range v.Items {
			items[i] = ToHostReply(item)
		}
		return core.Array(items...)
	default:
		return core.ErrorValue("ERR unsupported type")
	}
}

// ToHostArgs converts the arguments of a host call into strings. Strings
// pass through and numbers are formatted; anything else is a caller error.
func ToHostArgs(vals []ScriptValue) ([]string, error) {
	out := make([]string, len(vals))
	for i, v := range vals {
		switch v.Tag {
		case TagString, TagStatus:
			out[i] = v.Str
		case TagInteger:
			out[i] = strconv.FormatInt(v.Int, 10)
		case TagFloat:
			out[i] = strconv.FormatFloat(v.Float, 'g', -1, 64)
		default:
			return nil, &core.MarshalError{Reason: ErrArgumentType}
		}
	}
	return out, nil
}
