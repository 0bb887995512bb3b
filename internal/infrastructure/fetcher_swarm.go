package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/yourusername/url-relay-go/internal/domain"
	"github.com/yourusername/url-relay-go/pkg/format"
	"github.com/yourusername/url-relay-go/pkg/logger"
	"go.uber.org/zap"
)

// SwarmHandle is one torrent inside a SwarmEngine
type SwarmHandle interface {
	GotInfo() <-chan struct{}
	Closed() <-chan struct{}
	DownloadAll()
	Name() string
	BytesCompleted() int64
	Length() int64
	MultiFile() bool
	Peers() (active, seeds int)
	Drop()
}

// ErrSwarmInUse is returned by a SwarmEngine for a torrent another task already holds
var ErrSwarmInUse = errors.New("torrent already open")

// SwarmEngine opens torrents for download. Each handle stores its payload under the
// directory it was added with.
type SwarmEngine interface {
	AddMagnet(uri, dir string) (SwarmHandle, error)
	AddTorrentFile(path, dir string) (SwarmHandle, error)
	DataDir() string
	Close() error
}

// SwarmFetcher drives a swarm download from add to teardown. Every handle it opens
// is dropped exactly once, whatever the outcome.
type SwarmFetcher struct {
	engine SwarmEngine
	config *domain.SwarmConfig
	logger *zap.Logger
	now    func() time.Time
}

// NewSwarmFetcher creates a new swarm fetcher
func NewSwarmFetcher(engine SwarmEngine, config *domain.SwarmConfig, log *zap.Logger) *SwarmFetcher {
	return &SwarmFetcher{
		engine: engine,
		config: config,
		logger: logger.OrNop(log),
		now:    time.Now,
	}
}

// Fetch downloads a magnet URI or a local .torrent descriptor
func (s *SwarmFetcher) Fetch(ctx context.Context, job *domain.Job) (*domain.AcquisitionResult, error) {
	return s.FetchDescriptor(ctx, job, job.Locator.URL)
}

// FetchDescriptor downloads the torrent described by source: a magnet URI or the
// path of a local .torrent file.
func (s *SwarmFetcher) FetchDescriptor(ctx context.Context, job *domain.Job, source string) (*domain.AcquisitionResult, error) {
	job.Sink.Emit(domain.ProgressSample{Phase: domain.PhaseConnecting})

	if err := os.MkdirAll(s.engine.DataDir(), 0755); err != nil {
		return nil, domain.WrapError(domain.KindInternal, err, "failed to create torrent directory")
	}
	workDir, err := os.MkdirTemp(s.engine.DataDir(), "swarm-")
	if err != nil {
		return nil, domain.WrapError(domain.KindInternal, err, "failed to create torrent work directory")
	}
	job.TrackPath(workDir)

	var handle SwarmHandle
	if job.Locator.Kind == domain.LocatorMagnet {
		handle, err = s.engine.AddMagnet(source, workDir)
	} else {
		handle, err = s.engine.AddTorrentFile(source, workDir)
	}
	if err != nil {
		s.removePayload(workDir)
		if errors.Is(err, ErrSwarmInUse) {
			return nil, domain.WrapError(domain.KindSwarmError, err, "this torrent is already being downloaded by another request")
		}
		return nil, domain.WrapError(domain.KindSwarmError, err, "failed to open torrent")
	}

	var dropOnce sync.Once
	drop := func() { dropOnce.Do(handle.Drop) }
	defer drop()

	if err := s.awaitMetadata(ctx, job, handle); err != nil {
		s.logger.Warn("Torrent metadata unavailable", zap.String("locator", job.Locator.URL), zap.Error(err))
		drop()
		s.removePayload(workDir)
		return nil, err
	}

	name := handle.Name()
	if name == "" || name == "." || name == ".." {
		drop()
		s.removePayload(workDir)
		return nil, domain.NewError(domain.KindSwarmError, "torrent has no usable name")
	}
	path := filepath.Join(workDir, filepath.Base(name))
	job.TrackPath(path)

	s.logger.Info("Torrent metadata received",
		zap.String("name", name),
		zap.Int64("size", handle.Length()),
		zap.Bool("multi_file", handle.MultiFile()))

	handle.DownloadAll()

	total, err := s.transfer(ctx, job, handle, drop, workDir)
	if err != nil {
		s.logger.Warn("Torrent download aborted", zap.String("name", name), zap.Error(err))
		return nil, err
	}

	// Stop swarm participation as soon as the payload is complete.
	drop()

	job.Sink.Emit(domain.ProgressSample{Done: total, Total: total, Phase: domain.PhaseDownloading})

	s.logger.Info("Torrent download completed",
		zap.String("name", name),
		zap.String("path", path),
		zap.Int64("size", total))

	return &domain.AcquisitionResult{
		Path: path,
		Name: filepath.Base(path),
		Size: total,
		Kind: job.Locator.Kind,
	}, nil
}

func (s *SwarmFetcher) awaitMetadata(ctx context.Context, job *domain.Job, handle SwarmHandle) error {
	job.Sink.Emit(domain.ProgressSample{Phase: domain.PhaseMetadata})

	timeout := time.NewTimer(s.metadataTimeout())
	defer timeout.Stop()
	ticker := time.NewTicker(s.pollInterval())
	defer ticker.Stop()

	for {
		select {
		case <-handle.GotInfo():
			return nil
		case <-timeout.C:
			return domain.NewError(domain.KindTimeout, "timed out waiting for metadata after %s", s.metadataTimeout())
		case <-handle.Closed():
			return domain.NewError(domain.KindSwarmError, "torrent closed while waiting for metadata")
		case <-ctx.Done():
			return domain.WrapError(domain.KindCancelled, ctx.Err(), "stopped while waiting for metadata")
		case <-ticker.C:
			if job.Cancelled() {
				return domain.NewError(domain.KindCancelled, "cancelled while waiting for metadata")
			}
		}
	}
}

// transfer polls the handle until the payload is complete. It returns the payload size.
// workDir is removed on every failure.
func (s *SwarmFetcher) transfer(ctx context.Context, job *domain.Job, handle SwarmHandle, drop func(), workDir string) (int64, error) {
	ticker := time.NewTicker(s.pollInterval())
	defer ticker.Stop()

	var (
		lastPct  = -1.0
		lastEmit time.Time
		prevDone int64
		prevAt   = s.now()
	)

	abort := func(err *domain.AcquisitionError) (int64, error) {
		drop()
		s.removePayload(workDir)
		return 0, err
	}

	for {
		done, total := handle.BytesCompleted(), handle.Length()
		if total > 0 && done >= total {
			return total, nil
		}

		now := s.now()
		sample := domain.ProgressSample{Done: done, Total: total, Phase: domain.PhaseDownloading}
		pct := sample.Percent()
		if pct-lastPct >= s.progressStep() || now.Sub(lastEmit) >= s.emitInterval() {
			var speed float64
			if dt := now.Sub(prevAt).Seconds(); dt > 0 && done >= prevDone {
				speed = float64(done-prevDone) / dt
			}
			active, seeds := handle.Peers()
			sample.Detail = fmt.Sprintf("Peers: %d | Seeds: %d | %s/s", active, seeds, format.Bytes(int64(speed)))
			sample.At = now
			job.Sink.Emit(sample)

			lastPct, lastEmit = pct, now
			prevDone, prevAt = done, now
		}

		select {
		case <-ctx.Done():
			return abort(domain.WrapError(domain.KindCancelled, ctx.Err(), "torrent download stopped"))
		case <-handle.Closed():
			return abort(domain.NewError(domain.KindSwarmError, "torrent closed before completion"))
		case <-ticker.C:
		}

		if job.Cancelled() {
			return abort(domain.NewError(domain.KindCancelled, "cancelled after %s", format.Bytes(done)))
		}
	}
}

// removePayload deletes a partially downloaded file or directory.
func (s *SwarmFetcher) removePayload(path string) {
	if err := os.RemoveAll(path); err != nil {
		s.logger.Warn("Failed to remove partial torrent data", zap.String("path", path), zap.Error(err))
	}
}

func (s *SwarmFetcher) metadataTimeout() time.Duration {
	if s.config.MetadataTimeout > 0 {
		return s.config.MetadataTimeout
	}
	return 60 * time.Second
}

func (s *SwarmFetcher) pollInterval() time.Duration {
	if s.config.PollInterval > 0 {
		return s.config.PollInterval
	}
	return time.Second
}

func (s *SwarmFetcher) emitInterval() time.Duration {
	if s.config.EmitInterval > 0 {
		return s.config.EmitInterval
	}
	return 3 * time.Second
}

func (s *SwarmFetcher) progressStep() float64 {
	if s.config.ProgressStep > 0 {
		return s.config.ProgressStep
	}
	return 1
}
