package core

import (
	"fmt"
	"strings"
)

// Kind tags a host Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInteger
	KindFloat
	KindStatus // simple string
	KindString // bulk string
	KindArray
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInteger:
		return "integer"
	case KindFloat:
		return "float"
	case KindStatus:
		return "status"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindError:
		return "error"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Value is a host value: what the host returns from an operation and what
// the final evaluation result is converted into before it is replied.
type Value struct {
	Kind  Kind
	Bool  bool
	Int   int64
	Float float64
	Str   string // status, bulk string or error message
	Array []Value
}

// Null returns the null reply.
func Null() Value { return Value{Kind: KindNull} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{Kind: KindBool, Bool: b} }

// Int returns an integer value.
func Int(i int64) Value { return Value{Kind: KindInteger, Int: i} }

// Float returns a floating point value.
func Float(f float64) Value { return Value{Kind: KindFloat, Float: f} }

// Status returns a simple string value.
func Status(s string) Value { return Value{Kind: KindStatus, Str: s} }

// String returns a bulk string value.
func String(s string) Value { return Value{Kind: KindString, Str: s} }

// Array returns an array value.
func Array(items ...Value) Value {
	if items == nil {
		items = []Value{}
	}
	return Value{Kind: KindArray, Array: items}
}

// ErrorValue returns an error reply carrying msg verbatim.
func ErrorValue(msg string) Value { return Value{Kind: KindError, Str: msg} }

// ErrorReply returns an error reply for err, normalized with ReplyError.
func ErrorReply(err error) Value { return ErrorValue(ReplyError(err)) }

// IsError reports whether v is an error reply.
func (v Value) IsError() bool { return v.Kind == KindError }

// Equal reports deep equality of two values.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindNull:
		return true
	case KindBool:
		return v.Bool == o.Bool
	case KindInteger:
		return v.Int == o.Int
	case KindFloat:
		return v.Float == o.Float
	case KindStatus, KindString, KindError:
		return v.Str == o.Str
	case KindArray:
		if len(v.Array) != len(o.Array) {
			return false
		}
		for i := range v.Array {
			if !v.Array[i].Equal(o.Array[i]) {
				return false
			}
		}
		return true
	}
	return false
}

// String renders v the way redis-cli would.
func (v Value) String() string {
	var b strings.Builder
	v.format(&b, "")
	return b.String()
}

func (v Value) format(b *strings.Builder, indent string) {
	switch v.Kind {
	case KindNull:
		b.WriteString("(nil)")
	case KindBool:
		fmt.Fprintf(b, "(boolean) %t", v.Bool)
	case KindInteger:
		fmt.Fprintf(b, "(integer) %d", v.Int)
	case KindFloat:
		fmt.Fprintf(b, "(double) %v", v.Float)
	case KindStatus:
		b.WriteString(v.Str)
	case KindString:
		fmt.Fprintf(b, "%q", v.Str)
	case KindError:
		fmt.Fprintf(b, "(error) %s", v.Str)
	case KindArray:
		if len(v.Array) == 0 {
			b.WriteString("(empty array)")
			return
		}
		for i, item := range v.Array {
			if i > 0 {
				b.WriteString("\n")
				b.WriteString(indent)
			}
			fmt.Fprintf(b, "%d) ", i+1)
			item.format(b, indent+"   ")
		}
	}
}
