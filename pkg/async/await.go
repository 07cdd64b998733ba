package async

import (
	"context"
	"time"
)

// AwaitTimeout waits for a value or gives up after d. ok is false on timeout.
func AwaitTimeout[R any](a <-chan R, d time.Duration) (r R, ok bool) {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	return AwaitContext(ctx, a)
}

func AwaitContext[R any](ctx context.Context, a <-chan R) (r R, ok bool) {
	select {
	case r, ok = <-a:
		return
	case <-ctx.Done():
		return
	}
}
