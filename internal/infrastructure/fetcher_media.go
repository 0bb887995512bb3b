package infrastructure

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/yourusername/url-relay-go/internal/domain"
	"github.com/yourusername/url-relay-go/pkg/logger"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// MediaRequest describes one extraction for a MediaEngine
type MediaRequest struct {
	URL         string
	OutputDir   string
	Format      string
	MergeFormat string
}

// MediaProgress is an engine-side progress observation
type MediaProgress struct {
	Done     int64
	Total    int64
	Filename string
}

// MediaEngine resolves and downloads platform-hosted media. Extract blocks until the
// engine exits and returns the output file it reported, if any.
type MediaEngine interface {
	Extract(ctx context.Context, req MediaRequest, progress func(MediaProgress)) (string, error)
}

// alternateExtensions are probed when the reported output is missing, since merging
// may change the container.
var alternateExtensions = []string{".mp4", ".mkv", ".webm"}

// formatIDSuffix matches the per-stream suffix of unmerged outputs (title.f137.mp4).
var formatIDSuffix = regexp.MustCompile(`\.f\d+$`)

var (
	accessDeniedMarkers = []string{
		"private video", "sign in", "login required", "log in", "forbidden", "http error 403",
		"geo", "region", "not available in your country", "members-only", "age-restricted",
	}
	contentRemovedMarkers = []string{
		"removed", "deleted", "no longer available", "video unavailable", "does not exist",
		"http error 404", "not found", "account has been terminated",
	}
)

// MediaFetcher runs a MediaEngine on a bounded worker pool
type MediaFetcher struct {
	engine       MediaEngine
	config       *domain.ExtractorConfig
	outputDir    string
	pollInterval time.Duration
	pool         *semaphore.Weighted
	logger       *zap.Logger
}

// NewMediaFetcher creates a new media extractor adapter
func NewMediaFetcher(engine MediaEngine, config *domain.ExtractorConfig, outputDir string, pollInterval time.Duration, log *zap.Logger) *MediaFetcher {
	workers := config.Workers
	if workers < 1 {
		workers = 1
	}
	if pollInterval <= 0 {
		pollInterval = time.Second
	}

	return &MediaFetcher{
		engine:       engine,
		config:       config,
		outputDir:    outputDir,
		pollInterval: pollInterval,
		pool:         semaphore.NewWeighted(int64(workers)),
		logger:       logger.OrNop(log),
	}
}

type extraction struct {
	path string
	err  error
}

// Fetch extracts the best muxed audio+video stream of job's URL
func (m *MediaFetcher) Fetch(ctx context.Context, job *domain.Job) (*domain.AcquisitionResult, error) {
	job.Sink.Emit(domain.ProgressSample{Phase: domain.PhaseResolving})

	if err := os.MkdirAll(m.outputDir, 0755); err != nil {
		return nil, domain.WrapError(domain.KindInternal, err, "failed to create download directory")
	}

	if err := m.pool.Acquire(ctx, 1); err != nil {
		return nil, domain.WrapError(domain.KindCancelled, err, "stopped while waiting for an extractor slot")
	}
	defer m.pool.Release(1)

	if job.Cancelled() {
		return nil, domain.NewError(domain.KindCancelled, "cancelled before extraction started")
	}

	// Each extraction writes into its own directory, so equal titles never share a path.
	workDir, err := os.MkdirTemp(m.outputDir, "media-")
	if err != nil {
		return nil, domain.WrapError(domain.KindInternal, err, "failed to create extraction directory")
	}
	job.TrackPath(workDir)
	completed := false
	defer func() {
		if !completed {
			m.removeWorkDir(workDir)
		}
	}()

	job.Sink.Emit(domain.ProgressSample{Phase: domain.PhaseDownloading})

	engineCtx, cancelEngine := context.WithCancel(ctx)
	defer cancelEngine()

	var (
		mu       sync.Mutex
		lastFile string
		lastPct  float64
	)
	onProgress := func(p MediaProgress) {
		mu.Lock()
		defer mu.Unlock()
		if p.Filename != "" && lastFile != p.Filename {
			lastFile = p.Filename
			job.TrackPath(p.Filename)
		}
		sample := domain.ProgressSample{Done: p.Done, Total: p.Total, Phase: domain.PhaseDownloading}
		if pct := sample.Percent(); p.Total > 0 && pct >= lastPct {
			lastPct = pct
			job.Sink.Emit(sample)
		}
	}

	started := time.Now()
	req := MediaRequest{
		URL:         job.Locator.URL,
		OutputDir:   workDir,
		Format:      m.config.Format,
		MergeFormat: m.config.MergeFormat,
	}

	m.logger.Info("Starting media extraction",
		zap.String("url", req.URL),
		zap.String("format", req.Format))

	done := make(chan extraction, 1)
	go func() {
		path, err := m.engine.Extract(engineCtx, req, onProgress)
		done <- extraction{path: path, err: err}
	}()

	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	cancelled := false
	for {
		select {
		case out := <-done:
			mu.Lock()
			reported := out.path
			if reported == "" {
				reported = lastFile
			}
			mu.Unlock()

			if cancelled || job.Cancelled() {
				return nil, domain.NewError(domain.KindCancelled, "extraction cancelled")
			}

			if out.err != nil {
				if ctx.Err() != nil {
					return nil, domain.WrapError(domain.KindCancelled, out.err, "extraction stopped")
				}
				m.logger.Warn("Media extraction failed", zap.String("url", req.URL), zap.Error(out.err))
				return nil, classifyEngineError(out.err)
			}

			if reported == "" {
				reported = newestFileSince(workDir, started)
			}

			path, size, err := resolveMediaOutput(reported)
			if err != nil {
				return nil, err
			}
			completed = true
			job.TrackPath(path)
			job.Sink.Emit(domain.ProgressSample{Done: size, Total: size, Phase: domain.PhaseDownloading})

			m.logger.Info("Media extraction completed",
				zap.String("url", req.URL),
				zap.String("path", path),
				zap.Int64("size", size))

			return &domain.AcquisitionResult{
				Path: path,
				Name: filepath.Base(path),
				Size: size,
				Kind: job.Locator.Kind,
			}, nil

		case <-ticker.C:
			if !cancelled && job.Cancelled() {
				cancelled = true
				cancelEngine()
			}
		}
	}
}

// removeWorkDir deletes an extraction directory with everything the engine left in it.
func (m *MediaFetcher) removeWorkDir(dir string) {
	if err := os.RemoveAll(dir); err != nil {
		m.logger.Warn("Failed to remove extraction directory", zap.String("path", dir), zap.Error(err))
	}
}

// resolveMediaOutput returns the first non-empty file among the reported path and the
// same base name with each alternate container extension.
func resolveMediaOutput(reported string) (string, int64, error) {
	if reported == "" {
		return "", 0, domain.NewError(domain.KindNotFound, "extractor did not report an output file")
	}

	base := strings.TrimSuffix(reported, filepath.Ext(reported))
	base = formatIDSuffix.ReplaceAllString(base, "")

	candidates := []string{reported}
	for _, ext := range alternateExtensions {
		candidates = append(candidates, base+ext)
	}

	for _, c := range candidates {
		info, err := os.Stat(c)
		if err == nil && info.Mode().IsRegular() && info.Size() > 0 {
			return c, info.Size(), nil
		}
	}

	return "", 0, domain.NewError(domain.KindNotFound, "output file %s is missing or empty", filepath.Base(reported))
}

// newestFileSince finds the most recently modified regular file in dir changed after t.
func newestFileSince(dir string, t time.Time) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}

	var newest string
	var newestMod time.Time
	for _, e := range entries {
		if e.IsDir() || strings.HasSuffix(e.Name(), ".part") {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().Before(t) {
			continue
		}
		if info.ModTime().After(newestMod) {
			newest = filepath.Join(dir, e.Name())
			newestMod = info.ModTime()
		}
	}
	return newest
}

// classifyEngineError maps engine failure text to an engine failure subkind.
func classifyEngineError(err error) *domain.AcquisitionError {
	var ae *domain.AcquisitionError
	if errors.As(err, &ae) {
		return ae
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range accessDeniedMarkers {
		if strings.Contains(msg, marker) {
			return domain.NewEngineError(domain.EngineAccessDenied, err, "access denied or region-locked")
		}
	}
	for _, marker := range contentRemovedMarkers {
		if strings.Contains(msg, marker) {
			return domain.NewEngineError(domain.EngineContentRemoved, err, "content removed or unavailable")
		}
	}
	return domain.NewEngineError(domain.EngineUnknown, err, "extraction failed")
}
