// Package transpile lowers script bodies with esbuild before they reach the
// engine, so scripts may use TypeScript syntax or newer JavaScript than the
// engine parses.
package transpile

import (
	"fmt"
	"strings"

	esbuild "github.com/evanw/esbuild/pkg/api"

	"github.com/cryguy/evaljs/internal/core"
	"github.com/cryguy/evaljs/internal/jsapi"
)

// Loader selects the source language.
type Loader string

const (
	LoaderJS Loader = "js"
	LoaderTS Loader = "ts"
)

// ParseLoader maps a config value onto a Loader.
func ParseLoader(s string) (Loader, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "js", "javascript":
		return LoaderJS, nil
	case "ts", "typescript":
		return LoaderTS, nil
	default:
		return "", fmt.Errorf("unknown loader %q (want js or ts)", s)
	}
}

// Transpiler turns function bodies into definition programs.
type Transpiler struct {
	loader Loader
}

// New returns a transpiler for loader.
func New(loader Loader) *Transpiler {
	if loader == "" {
		loader = LoaderJS
	}
	return &Transpiler{loader: loader}
}

// Loader returns the configured source language.
func (t *Transpiler) Loader() Loader { return t.loader }

// Program wraps body the way jsapi.DefineJS does and runs the result
// through esbuild. Syntax errors come back as a compile-time
// *core.ScriptError with line numbers relative to body.
func (t *Transpiler) Program(body string) (string, error) {
	loader := esbuild.LoaderJS
	if t.loader == LoaderTS {
		loader = esbuild.LoaderTS
	}

	result := esbuild.Transform(jsapi.DefineJS(body), esbuild.TransformOptions{
		Loader:   loader,
		Target:   esbuild.ES2020,
		Format:   esbuild.FormatDefault,
		LogLevel: esbuild.LogLevelSilent,
	})
	if len(result.Errors) > 0 {
		var msgs []string
		for _, e := range result.Errors {
			msgs = append(msgs, formatMessage(e))
		}
		return "", &core.ScriptError{Message: strings.Join(msgs, "; "), Compile: true}
	}
	return string(result.Code), nil
}

// formatMessage renders an esbuild message, shifting the line back past the
// wrapper's first line.
func formatMessage(m esbuild.Message) string {
	if m.Location == nil {
		return m.Text
	}
	line := m.Location.Line - 1
	if line < 1 {
		line = 1
	}
	return fmt.Sprintf("line %d:%d: %s", line, m.Location.Column, m.Text)
}
