// Package safego launches goroutines that survive panics in the task body.
package safego

import (
	"context"
	"runtime/debug"

	"github.com/relaymesh/relay/pkg/logger"
)

// Go runs fn in a new goroutine, recovering and logging any panic so a
// misbehaving task cannot take the process down.
func Go(_ context.Context, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("[safego] goroutine panic recovered: %v\n%s", r, debug.Stack())
			}
		}()
		fn()
	}()
}
