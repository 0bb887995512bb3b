package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/yourusername/url-relay-go/internal/domain"
	"github.com/yourusername/url-relay-go/pkg/format"
	"github.com/yourusername/url-relay-go/pkg/logger"
	"go.uber.org/zap"
)

// nearlyDone is the percentage from which every step is worth showing.
const nearlyDone = 99.0

// ProgressReporter turns raw samples into throttled status edits for one acquisition.
// It is never shared between acquisitions.
type ProgressReporter struct {
	updater domain.StatusUpdater
	config  domain.ProgressConfig
	logger  *zap.Logger
	now     func() time.Time

	mu             sync.Mutex
	start          time.Time
	emitted        int
	attempted      bool
	lastEmit       time.Time
	lastPct        float64
	lastDone       int64
	lastPhase      string
	lastText       string
	suspendedUntil time.Time
	pending        *domain.ProgressSample
}

// NewProgressReporter creates a reporter writing to updater
func NewProgressReporter(updater domain.StatusUpdater, config *domain.ProgressConfig, log *zap.Logger) *ProgressReporter {
	r := &ProgressReporter{
		updater: updater,
		config:  *config,
		logger:  logger.OrNop(log),
		now:     time.Now,
	}
	if r.config.PctStep <= 0 {
		r.config.PctStep = 1
	}
	return r
}

// Sink adapts the reporter to the callback strategies report to
func (r *ProgressReporter) Sink(ctx context.Context) domain.ProgressSink {
	return func(s domain.ProgressSample) {
		r.OnSample(ctx, s)
	}
}

// OnSample considers one sample and reports whether a status edit was sent
func (r *ProgressReporter) OnSample(ctx context.Context, s domain.ProgressSample) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if r.start.IsZero() {
		r.start = now
	}

	if now.Before(r.suspendedUntil) {
		r.pending = &s
		return false
	}

	// A sample held back by a suspension goes out with the first sample after it.
	force := r.pending != nil || s.IsFinal()
	r.pending = nil

	return r.consider(ctx, s, now, force)
}

// Flush emits the sample held back by a rate-limit suspension, waiting the suspension
// out first. It returns false if nothing was pending or ctx ended the wait.
func (r *ProgressReporter) Flush(ctx context.Context) bool {
	r.mu.Lock()
	if r.pending == nil {
		r.mu.Unlock()
		return false
	}
	wait := r.suspendedUntil.Sub(r.now())
	r.mu.Unlock()

	if wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return false
		case <-timer.C:
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pending == nil {
		return false
	}
	s := *r.pending
	r.pending = nil
	return r.consider(ctx, s, r.now(), true)
}

// Emitted returns how many status edits were accepted
func (r *ProgressReporter) Emitted() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.emitted
}

func (r *ProgressReporter) consider(ctx context.Context, s domain.ProgressSample, now time.Time, force bool) bool {
	pct := s.Percent()

	// Failed and rejected edits count against the throttle like accepted ones.
	if r.attempted {
		if s.Done < r.lastDone || (s.Total > 0 && pct < r.lastPct) {
			return false
		}

		if !force {
			if now.Sub(r.lastEmit) < r.config.MinInterval {
				return false
			}
			if !r.advanced(s, pct) {
				return false
			}
		}
	}

	text := r.render(s, now)
	if text == r.lastText {
		return false
	}

	return r.emit(ctx, s, pct, text, now)
}

// advanced reports whether s moved far enough past the last emission to be shown.
func (r *ProgressReporter) advanced(s domain.ProgressSample, pct float64) bool {
	if s.Phase != r.lastPhase {
		return true
	}
	if s.Total > 0 {
		return pct-r.lastPct >= r.config.PctStep || pct >= nearlyDone
	}
	return s.Done > r.lastDone
}

func (r *ProgressReporter) emit(ctx context.Context, s domain.ProgressSample, pct float64, text string, now time.Time) bool {
	err := r.updater.Update(ctx, text)

	var limited *domain.RateLimitedError
	switch {
	case err == nil:
		r.emitted++
		r.record(s, pct, text, now)
		return true

	case errors.Is(err, domain.ErrStatusRejected):
		r.record(s, pct, text, now)
		return false

	case errors.As(err, &limited):
		r.suspendedUntil = now.Add(limited.RetryAfter)
		r.pending = &s
		r.logger.Debug("Status updates suspended", zap.Duration("retry_after", limited.RetryAfter))
		return false

	default:
		r.attempted = true
		r.lastEmit = now
		r.logger.Warn("Failed to update status", zap.Error(err))
		return false
	}
}

func (r *ProgressReporter) record(s domain.ProgressSample, pct float64, text string, now time.Time) {
	r.attempted = true
	r.lastEmit = now
	r.lastPct = pct
	r.lastDone = s.Done
	r.lastPhase = s.Phase
	r.lastText = text
}

// render builds the status text for s.
func (r *ProgressReporter) render(s domain.ProgressSample, now time.Time) string {
	elapsed := now.Sub(r.start).Seconds()

	var speed float64
	if elapsed > 0 {
		speed = float64(s.Done) / elapsed
	}

	eta := -1.0
	if s.Total > 0 && speed > 0 {
		eta = float64(s.Total-s.Done) / speed
	}

	var b strings.Builder
	b.WriteString(s.Phase)
	b.WriteString("\n")
	if s.Total > 0 {
		fmt.Fprintf(&b, "%s %.1f%%\n", format.Bar(s.Percent()), s.Percent())
		fmt.Fprintf(&b, "%s / %s\n", format.Bytes(s.Done), format.Bytes(s.Total))
	} else {
		fmt.Fprintf(&b, "%s downloaded\n", format.Bytes(s.Done))
	}
	fmt.Fprintf(&b, "Speed: %s/s | ETA: %s\n", format.Bytes(int64(speed)), format.ETA(eta))
	fmt.Fprintf(&b, "Elapsed: %s", format.ETA(elapsed))
	if s.Detail != "" {
		b.WriteString("\n")
		b.WriteString(s.Detail)
	}
	return b.String()
}
