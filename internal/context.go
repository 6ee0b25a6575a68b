package internal

import (
	"context"
	"time"
)

const defaultDetachTimeout = 5 * time.Second

// DetachedTimeout returns a context independent of the caller's lifetime,
// bounded by d (five seconds when d is zero or negative). Writes that must
// outlive the originating request, such as audit appends, run under it.
func DetachedTimeout(d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = defaultDetachTimeout
	}
	return context.WithTimeout(context.Background(), d)
}
