//go:build !v8

package evaljs

import (
	"github.com/cryguy/evaljs/internal/core"
	"github.com/cryguy/evaljs/internal/quickjs"
)

const backendName = "quickjs"

func newBackend() core.RuntimeFactory {
	return quickjs.New
}
