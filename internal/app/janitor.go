package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/yourusername/url-relay-go/internal/domain"
	"github.com/yourusername/url-relay-go/pkg/logger"
	"go.uber.org/zap"
)

// ResultPruner forgets finished results older than a cutoff
type ResultPruner interface {
	PruneFinished(cutoff time.Time) int
}

// Janitor periodically removes stale working files that no active task owns
type Janitor struct {
	config   *domain.JanitorConfig
	dirs     []string
	registry *TaskRegistry
	pruner   ResultPruner
	cron     *cron.Cron
	logger   *zap.Logger
	now      func() time.Time
}

// NewJanitor creates a janitor sweeping dirs. pruner may be nil.
func NewJanitor(config *domain.JanitorConfig, dirs []string, registry *TaskRegistry, pruner ResultPruner, log *zap.Logger) *Janitor {
	return &Janitor{
		config:   config,
		dirs:     dirs,
		registry: registry,
		pruner:   pruner,
		cron:     cron.New(),
		logger:   logger.OrNop(log),
		now:      time.Now,
	}
}

// Start schedules the sweep
func (j *Janitor) Start() error {
	if _, err := j.cron.AddFunc(j.config.Schedule, func() { j.Sweep() }); err != nil {
		return fmt.Errorf("invalid janitor schedule %q: %w", j.config.Schedule, err)
	}
	j.cron.Start()

	j.logger.Info("Janitor started",
		zap.String("schedule", j.config.Schedule),
		zap.Duration("max_age", j.config.MaxAge))
	return nil
}

// Stop stops the schedule. The returned context is done when a running sweep finishes.
func (j *Janitor) Stop() context.Context {
	return j.cron.Stop()
}

// Sweep removes entries older than the configured maximum age and returns how many
// were removed.
func (j *Janitor) Sweep() int {
	cutoff := j.now().Add(-j.config.MaxAge)

	protected := make(map[string]bool, len(j.dirs))
	for _, dir := range j.dirs {
		protected[filepath.Clean(dir)] = true
	}

	removed := 0
	for _, dir := range j.dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if !os.IsNotExist(err) {
				j.logger.Warn("Janitor cannot read directory", zap.String("dir", dir), zap.Error(err))
			}
			continue
		}

		for _, e := range entries {
			path := filepath.Join(dir, e.Name())
			if protected[filepath.Clean(path)] {
				continue
			}

			info, err := e.Info()
			if err != nil || info.ModTime().After(cutoff) {
				continue
			}
			if j.registry != nil && j.registry.OwnsPath(path) {
				continue
			}

			if err := os.RemoveAll(path); err != nil {
				j.logger.Warn("Janitor failed to remove entry", zap.String("path", path), zap.Error(err))
				continue
			}
			removed++
			j.logger.Debug("Janitor removed stale entry", zap.String("path", path))
		}
	}

	if j.pruner != nil {
		j.pruner.PruneFinished(cutoff)
	}

	if removed > 0 {
		j.logger.Info("Janitor sweep finished", zap.Int("removed", removed))
	}
	return removed
}
