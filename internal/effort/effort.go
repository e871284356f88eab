// Package effort runs side effects whose failure must never fail the caller.
package effort

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// DefaultTimeout bounds a single best-effort attempt.
const DefaultTimeout = 10 * time.Second

// Do runs fn once with a bounded timeout. Errors and panics are logged at
// Warn and swallowed. It reports whether fn succeeded.
func Do(ctx context.Context, op string, fn func(context.Context) error) (ok bool) {
	return DoTimeout(ctx, op, DefaultTimeout, fn)
}

// DoTimeout is Do with an explicit timeout.
func DoTimeout(ctx context.Context, op string, timeout time.Duration, fn func(context.Context) error) (ok bool) {
	if ctx == nil {
		ctx = context.Background()
	}
	// A side effect outlives the request that triggered it, but not its
	// own deadline.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			slog.Warn("Best-effort operation panicked", "op", op, "error", fmt.Sprint(r))
			ok = false
		}
	}()
	if err := fn(ctx); err != nil {
		slog.Warn("Best-effort operation failed", "op", op, "error", err)
		return false
	}
	return true
}
