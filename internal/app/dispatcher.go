package app

import (
	"context"
	"os"
	"sync"

	"github.com/yourusername/url-relay-go/internal/domain"
	"github.com/yourusername/url-relay-go/pkg/logger"
	"go.uber.org/zap"
)

const descriptorName = "descriptor.torrent"

// DirectStrategy streams HTTP resources, optionally into a given directory
type DirectStrategy interface {
	domain.Fetcher
	FetchTo(ctx context.Context, job *domain.Job, dir string) (*domain.AcquisitionResult, error)
}

// SwarmStrategy downloads magnets and torrent descriptors
type SwarmStrategy interface {
	domain.Fetcher
	FetchDescriptor(ctx context.Context, job *domain.Job, source string) (*domain.AcquisitionResult, error)
}

// Dispatcher classifies a locator and routes it to exactly one retrieval strategy
type Dispatcher struct {
	classifier *domain.Classifier
	direct     DirectStrategy
	media      domain.Fetcher
	swarm      SwarmStrategy
	torrentDir string
	logger     *zap.Logger
}

// NewDispatcher creates a new dispatcher. A nil swarm strategy disables magnets and torrents.
func NewDispatcher(
	classifier *domain.Classifier,
	direct DirectStrategy,
	media domain.Fetcher,
	swarm SwarmStrategy,
	torrentDir string,
	log *zap.Logger,
) *Dispatcher {
	return &Dispatcher{
		classifier: classifier,
		direct:     direct,
		media:      media,
		swarm:      swarm,
		torrentDir: torrentDir,
		logger:     logger.OrNop(log),
	}
}

// Classify exposes the dispatcher's classifier
func (d *Dispatcher) Classify(raw string) domain.Locator {
	return d.classifier.Classify(raw)
}

// phaseTracker remembers the last phase a strategy reported, for error context.
type phaseTracker struct {
	mu    sync.Mutex
	phase string
}

func (p *phaseTracker) wrap(sink domain.ProgressSink) domain.ProgressSink {
	return func(s domain.ProgressSample) {
		p.mu.Lock()
		p.phase = s.Phase
		p.mu.Unlock()
		sink.Emit(s)
	}
}

func (p *phaseTracker) last() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.phase
}

// Download acquires req.Locator for task. task may be nil for one-off acquisitions that
// are not registered, in which case the acquisition cannot be cancelled.
func (d *Dispatcher) Download(ctx context.Context, task *domain.ActiveTask, req domain.AcquisitionRequest) (result *domain.AcquisitionResult, err error) {
	loc := d.classifier.Classify(req.Locator)
	if !loc.IsValid() {
		return nil, domain.NewError(domain.KindInvalidLocator, "unrecognized locator").WithContext(req.Locator, "")
	}

	tracker := &phaseTracker{}
	job := &domain.Job{
		Locator:  loc,
		Filename: req.Filename,
		Sink:     tracker.wrap(req.Sink),
	}
	if task != nil {
		job.Cancel = task
		job.Track = task.SetPath
	}

	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = domain.NewError(domain.KindInternal, "strategy panicked: %v", r)
		}
		if err != nil {
			ae := domain.AsAcquisitionError(err).WithContext(loc.URL, tracker.last())
			d.logger.Warn("Acquisition failed",
				zap.String("locator", loc.URL),
				zap.String("kind", string(loc.Kind)),
				zap.String("error_kind", string(ae.Kind)),
				zap.String("phase", ae.Phase),
				zap.Error(ae))
			err = ae
		}
	}()

	d.logger.Info("Dispatching acquisition",
		zap.String("locator", loc.URL),
		zap.String("kind", string(loc.Kind)))

	if loc.IsSwarm() && d.swarm == nil {
		return nil, errSwarmDisabled()
	}

	switch loc.Kind {
	case domain.LocatorHTTP:
		return d.direct.Fetch(ctx, job)
	case domain.LocatorMedia:
		return d.media.Fetch(ctx, job)
	case domain.LocatorMagnet:
		return d.swarm.Fetch(ctx, job)
	case domain.LocatorTorrent:
		if loc.IsRemote() {
			return d.fetchRemoteTorrent(ctx, job)
		}
		return d.swarm.FetchDescriptor(ctx, job, loc.URL)
	default:
		return nil, domain.NewError(domain.KindInternal, "no strategy for locator kind %q", loc.Kind)
	}
}

// fetchRemoteTorrent downloads a .torrent descriptor into a private temp directory,
// runs the swarm on it and removes the descriptor whatever the outcome.
func (d *Dispatcher) fetchRemoteTorrent(ctx context.Context, job *domain.Job) (*domain.AcquisitionResult, error) {
	if err := os.MkdirAll(d.torrentDir, 0755); err != nil {
		return nil, domain.WrapError(domain.KindInternal, err, "failed to create torrent directory")
	}
	tmp, err := os.MkdirTemp(d.torrentDir, ".descriptor-*")
	if err != nil {
		return nil, domain.WrapError(domain.KindInternal, err, "failed to create descriptor directory")
	}
	defer d.Cleanup(tmp)

	job.Sink.Emit(domain.ProgressSample{Phase: domain.PhaseDescriptor})

	descJob := &domain.Job{
		Locator:  job.Locator,
		Filename: descriptorName,
		Cancel:   job.Cancel,
	}
	desc, err := d.direct.FetchTo(ctx, descJob, tmp)
	if err != nil {
		return nil, err
	}

	d.logger.Debug("Fetched torrent descriptor",
		zap.String("url", job.Locator.URL),
		zap.Int64("size", desc.Size))

	return d.swarm.FetchDescriptor(ctx, job, desc.Path)
}

// Cleanup removes a file or directory tree. Missing paths are ignored and failures are
// logged, so it is safe to call any number of times.
func (d *Dispatcher) Cleanup(path string) {
	if path == "" {
		return
	}
	if err := os.RemoveAll(path); err != nil {
		d.logger.Warn("Failed to clean up", zap.String("path", path), zap.Error(err))
	}
}

func errSwarmDisabled() *domain.AcquisitionError {
	return domain.NewError(domain.KindSwarmError, "peer-to-peer downloads are disabled")
}

