package core

import (
	"errors"
	"strings"
	"unicode"
)

// Request and dispatch errors. Each maps onto one class of the error
// taxonomy and is checked with errors.Is.
var (
	ErrWrongArity        = errors.New("wrong number of arguments")
	ErrInvalidNumKeys    = errors.New("invalid number of keys")
	ErrTooManyKeys       = errors.New("number of keys can't be greater than number of args")
	ErrEngineUnavailable = errors.New("engine not initialized")
	ErrTimeout           = errors.New("script timed out")
	ErrQueueFull         = errors.New("dispatch queue full")
	ErrClosed            = errors.New("engine is shut down")
	ErrNoScript          = errors.New("no matching script")
)

// ScriptError is an exception raised inside the engine, or a script
// compilation failure. Message is the engine's text.
type ScriptError struct {
	Message string
	Compile bool
}

func (e *ScriptError) Error() string {
	if e.Compile {
		return "compile error: " + e.Message
	}
	return e.Message
}

// MarshalError reports a value that cannot cross the host/script boundary.
type MarshalError struct {
	Reason string
}

func (e *MarshalError) Error() string { return e.Reason }

// ReplyError formats err as the text of a RESP error reply. Messages that
// already start with an upper-case error code ("WRONGTYPE ...",
// "ERR ...") pass through; everything else gets the generic ERR prefix.
func ReplyError(err error) string {
	if err == nil {
		return "ERR unknown error"
	}
	if errors.Is(err, ErrNoScript) {
		return "NOSCRIPT No matching script. Please use JSSCRIPT LOAD."
	}
	return WithCode(err.Error())
}

// WithCode prefixes msg with "ERR " unless it already carries an error code.
func WithCode(msg string) string {
	msg = strings.TrimSpace(strings.ReplaceAll(msg, "\r\n", " "))
	msg = strings.ReplaceAll(msg, "\n", " ")
	if hasCode(msg) {
		return msg
	}
	if msg == "" {
		return "ERR unknown error"
	}
	return "ERR " + msg
}

func hasCode(msg string) bool {
	code, _, ok := strings.Cut(msg, " ")
	if !ok || len(code) < 2 {
		return false
	}
	for _, r := range code {
		if !unicode.IsUpper(r) {
			return false
		}
	}
	return true
}
