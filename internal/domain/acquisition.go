package domain

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Phase labels reported in progress samples
const (
	PhaseResolving   = "Resolving"
	PhaseConnecting  = "Connecting to peers"
	PhaseMetadata    = "Fetching metadata"
	PhaseDownloading = "Downloading"
	PhaseDescriptor  = "Fetching torrent file"
)

// ProgressSample is one raw observation of an in-flight transfer
type ProgressSample struct {
	Done  int64
	Total int64 // 0 when unknown
	Phase string
	// Detail is an optional extra line, e.g. swarm peer counts.
	Detail string
	At     time.Time
}

// Percent returns the completion percentage, or 0 when the total is unknown
func (s ProgressSample) Percent() float64 {
	if s.Total <= 0 {
		return 0
	}
	pct := float64(s.Done) * 100 / float64(s.Total)
	if pct > 100 {
		pct = 100
	}
	return pct
}

// IsFinal reports whether the sample marks a completed transfer
func (s ProgressSample) IsFinal() bool {
	return s.Total > 0 && s.Done >= s.Total
}

// ProgressSink receives samples from a strategy. It must not block for long.
type ProgressSink func(ProgressSample)

// Emit calls the sink if it is set, stamping the sample time
func (f ProgressSink) Emit(s ProgressSample) {
	if f == nil {
		return
	}
	if s.At.IsZero() {
		s.At = time.Now()
	}
	f(s)
}

// AcquisitionRequest is what a caller hands to the dispatcher
type AcquisitionRequest struct {
	Locator  string
	Filename string // optional desired name
	Sink     ProgressSink
}

// AcquisitionResult describes a successfully acquired local artifact
type AcquisitionResult struct {
	Path string      `json:"path"`
	Name string      `json:"name"`
	Size int64       `json:"size"`
	Kind LocatorKind `json:"kind"`
}

// CancelSignal is polled by strategies at each natural suspension point
type CancelSignal interface {
	Cancelled() bool
}

// Job is the unit of work passed to a Fetcher
type Job struct {
	Locator  Locator
	Filename string
	Sink     ProgressSink
	Cancel   CancelSignal
	// Track is told about the working path once it is known, so cleanup and
	// cancellation can find partial files.
	Track func(path string)
}

// Cancelled reports whether the owning task was cancelled
func (j *Job) Cancelled() bool {
	return j.Cancel != nil && j.Cancel.Cancelled()
}

// TrackPath records the working path of the job
func (j *Job) TrackPath(path string) {
	if j.Track != nil {
		j.Track(path)
	}
}

// Fetcher is implemented by each retrieval strategy
type Fetcher interface {
	Fetch(ctx context.Context, job *Job) (*AcquisitionResult, error)
}

// ActiveTask is the registry's record of one user's in-flight acquisition
type ActiveTask struct {
	ID        string    `json:"id"`
	UserID    int64     `json:"user_id"`
	Locator   string    `json:"locator"`
	StartedAt time.Time `json:"started_at"`

	cancelled atomic.Bool
	mu        sync.RWMutex
	path      string
}

// NewActiveTask creates a task record for a user
func NewActiveTask(userID int64, locator string) *ActiveTask {
	return &ActiveTask{
		ID:        uuid.New().String(),
		UserID:    userID,
		Locator:   locator,
		StartedAt: time.Now(),
	}
}

// Cancel sets the cooperative cancellation flag
func (t *ActiveTask) Cancel() {
	t.cancelled.Store(true)
}

// Cancelled reports whether cancellation was requested
func (t *ActiveTask) Cancelled() bool {
	return t.cancelled.Load()
}

// SetPath records the task's local working path
func (t *ActiveTask) SetPath(path string) {
	t.mu.Lock()
	t.path = path
	t.mu.Unlock()
}

// Path returns the task's local working path, if known
func (t *ActiveTask) Path() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.path
}
