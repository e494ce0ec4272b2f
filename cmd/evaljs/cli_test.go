package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryguy/evaljs"
)

func executeCommand(root *cobra.Command, args ...string) (string, string, error) {
	stdout := new(bytes.Buffer)
	stderr := new(bytes.Buffer)
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetArgs(args)
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func TestCLIHelp(t *testing.T) {
	out, _, err := executeCommand(rootCmd, "--help")
	require.NoError(t, err)
	for _, phrase := range []string{"EVALJS", "serve", "eval", "version", "--config", "--env-file", "--redis"} {
		assert.Contains(t, out, phrase)
	}
}

func TestCLIServeHelp(t *testing.T) {
	out, _, err := executeCommand(rootCmd, "serve", "--help")
	require.NoError(t, err)
	for _, phrase := range []string{"--listen", "--workers", "--timeout", "--script-store", "JSSCRIPT"} {
		assert.Contains(t, out, phrase)
	}
}

func TestCLIVersion(t *testing.T) {
	out, _, err := executeCommand(rootCmd, "version")
	require.NoError(t, err)
	assert.Equal(t, "evaljs dev ("+evaljs.Backend()+")\n", out)
}

func TestCLIEval(t *testing.T) {
	out, _, err := executeCommand(rootCmd, "eval", "--log-level", "error", "return Number(ARGV[0]) * 2;", "1", "k", "21")
	require.NoError(t, err)
	assert.Equal(t, "(integer) 42\n", out)
}

func TestCLIEval_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "script.js")
	require.NoError(t, os.WriteFile(path, []byte("return [KEYS[0], 'x'];"), 0644))

	out, _, err := executeCommand(rootCmd, "eval", "--log-level", "error", "@"+path, "1", "key")
	require.NoError(t, err)
	assert.Equal(t, "1) \"key\"\n2) \"x\"\n", out)
}

func TestCLIEval_ErrorReply(t *testing.T) {
	out, _, err := executeCommand(rootCmd, "eval", "--log-level", "error", "throw new Error('nope');", "0")
	require.ErrorIs(t, err, errReply)
	assert.Equal(t, "(error) ERR nope\n", out)
}

func TestCLIEval_BadNumKeys(t *testing.T) {
	_, _, err := executeCommand(rootCmd, "eval", "--log-level", "error", "return 1;", "many")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid number of keys")
}

func TestReadCode(t *testing.T) {
	code, err := readCode("-", bytes.NewBufferString("return 1;"))
	require.NoError(t, err)
	assert.Equal(t, "return 1;", code)

	code, err = readCode("return 2;", nil)
	require.NoError(t, err)
	assert.Equal(t, "return 2;", code)

	_, err = readCode("@"+filepath.Join(t.TempDir(), "missing.js"), nil)
	assert.Error(t, err)
}
