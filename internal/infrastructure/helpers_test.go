package infrastructure

import (
	"os"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/yourusername/url-relay-go/internal/domain"
)

type cancelFlag struct {
	atomic.Bool
}

func (c *cancelFlag) Cancelled() bool { return c.Load() }

type sampleRecorder struct {
	mu      sync.Mutex
	samples []domain.ProgressSample
	onEmit  func(domain.ProgressSample)
}

func (r *sampleRecorder) sink() domain.ProgressSink {
	return func(s domain.ProgressSample) {
		r.mu.Lock()
		r.samples = append(r.samples, s)
		hook := r.onEmit
		r.mu.Unlock()
		if hook != nil {
			hook(s)
		}
	}
}

func (r *sampleRecorder) all() []domain.ProgressSample {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.ProgressSample(nil), r.samples...)
}

func (r *sampleRecorder) downloading() []domain.ProgressSample {
	var out []domain.ProgressSample
	for _, s := range r.all() {
		if s.Phase == domain.PhaseDownloading && (s.Done > 0 || s.Total > 0) {
			out = append(out, s)
		}
	}
	return out
}

func newTestJob(kind domain.LocatorKind, rawURL string, rec *sampleRecorder, cancel domain.CancelSignal) (*domain.Job, *string) {
	tracked := new(string)
	job := &domain.Job{
		Locator: domain.Locator{Kind: kind, Raw: rawURL, URL: rawURL},
		Sink:    rec.sink(),
		Cancel:  cancel,
		Track:   func(p string) { *tracked = p },
	}
	return job, tracked
}

func dirEntries(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}
