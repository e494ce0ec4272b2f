//go:build v8

package evaljs

import (
	"github.com/cryguy/evaljs/internal/core"
	"github.com/cryguy/evaljs/internal/v8engine"
)

const backendName = "v8"

func newBackend() core.RuntimeFactory {
	return v8engine.New
}
