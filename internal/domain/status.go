package domain

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// StatusUpdater edits the externally visible status line of one acquisition
type StatusUpdater interface {
	// Update replaces the status text. It returns nil, ErrStatusRejected when the
	// destination no longer accepts edits, or a *RateLimitedError.
	Update(ctx context.Context, text string) error
}

// ErrStatusRejected means the destination refused the edit (already final, unchanged, gone)
var ErrStatusRejected = errors.New("status update rejected")

// RateLimitedError asks the caller to back off before the next update
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("status update rate limited, retry after %s", e.RetryAfter)
}

// StatusUpdaterFunc adapts a function to StatusUpdater
type StatusUpdaterFunc func(ctx context.Context, text string) error

// Update calls f
func (f StatusUpdaterFunc) Update(ctx context.Context, text string) error {
	return f(ctx, text)
}
