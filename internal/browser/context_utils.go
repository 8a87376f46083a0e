// internal/browser/context_utils.go
package browser

import "context"

// CombineContext derives a context from tabCtx, which carries the CDP target,
// that is also canceled when opCtx is done. Values come from tabCtx only.
func CombineContext(tabCtx, opCtx context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancel(tabCtx)
	stop := context.AfterFunc(opCtx, cancel)
	return combined, func() {
		stop()
		cancel()
	}
}
