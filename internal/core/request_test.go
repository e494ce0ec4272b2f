package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRequest(t *testing.T) {
	tests := []struct {
		name   string
		tokens []string
		want   Request
	}{
		{"no keys", []string{"EVALJS", "return 1;", "0"}, Request{Code: "return 1;", Keys: []string{}, Args: []string{}}},
		{"keys only", []string{"EVALJS", "c", "2", "a", "b"}, Request{Code: "c", Keys: []string{"a", "b"}, Args: []string{}}},
		{"keys and args", []string{"EVALJS", "c", "1", "a", "x", "y"}, Request{Code: "c", Keys: []string{"a"}, Args: []string{"x", "y"}}},
		{"args only", []string{"EVALJS", "c", "0", "x"}, Request{Code: "c", Keys: []string{}, Args: []string{"x"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRequest(tt.tokens)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseRequest_Errors(t *testing.T) {
	_, err := ParseRequest([]string{"EVALJS", "return 1;"})
	assert.ErrorIs(t, err, ErrWrongArity)

	for _, n := range []string{"x", "-1", "1.5", ""} {
		_, err = ParseRequest([]string{"EVALJS", "c", n})
		assert.ErrorIs(t, err, ErrInvalidNumKeys, n)
	}

	_, err = ParseRequest([]string{"EVALJS", "c", "2", "a"})
	assert.ErrorIs(t, err, ErrTooManyKeys)
}

func TestParseRequest_CopiesTokens(t *testing.T) {
	tokens := []string{"EVALJS", "c", "1", "k", "v"}
	req, err := ParseRequest(tokens)
	require.NoError(t, err)
	tokens[3], tokens[4] = "changed", "changed"
	assert.Equal(t, []string{"k"}, req.Keys)
	assert.Equal(t, []string{"v"}, req.Args)
}
