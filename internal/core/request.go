package core

import (
	"fmt"
	"strconv"
)

// Request is one evaluation: the function body plus its KEYS and ARGV.
type Request struct {
	Code string
	Keys []string
	Args []string

	// Program, when set, is the already-built definition program for Code
	// (see jsapi.DefineJS), for example the cached output of the transpiler.
	Program string
}

// ParseRequest parses the tokens of an EVALJS-style command:
//
//	<name> <code> <numkeys> [key ...] [arg ...]
//
// tokens[0] is the command name. numkeys must be a non-negative integer no
// larger than the number of remaining tokens; everything after the keys is
// collected as args.
func ParseRequest(tokens []string) (Request, error) {
	if len(tokens) < 3 {
		return Request{}, ErrWrongArity
	}
	n, err := strconv.ParseUint(tokens[2], 10, 63)
	if err != nil {
		return Request{}, fmt.Errorf("%w: %q", ErrInvalidNumKeys, tokens[2])
	}
	rest := tokens[3:]
	if n > uint64(len(rest)) {
		return Request{}, ErrTooManyKeys
	}
	return Request{
		Code: tokens[1],
		Keys: append([]string{}, rest[:n]...),
		Args: append([]string{}, rest[n:]...),
	}, nil
}
