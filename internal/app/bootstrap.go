package app

import (
	"fmt"
	"os"

	"github.com/yourusername/url-relay-go/internal/domain"
	"github.com/yourusername/url-relay-go/internal/infrastructure"
	"go.uber.org/zap"
)

// BuildDispatcher wires the retrieval strategies described by config. The returned
// close function releases the swarm engine and must be called once acquisitions have
// stopped.
func BuildDispatcher(config *domain.Config, log *zap.Logger) (*Dispatcher, func() error, error) {
	if err := CreateDirectories(config); err != nil {
		return nil, nil, err
	}

	direct := infrastructure.NewDirectFetcher(
		infrastructure.NewHTTPClient(&config.Download),
		&config.Download,
		infrastructure.DiskSpaceChecker{},
		log,
	)

	media := infrastructure.NewMediaFetcher(
		infrastructure.NewYTDLPEngine(log),
		&config.Extractor,
		config.Download.Dir,
		config.Swarm.PollInterval,
		log,
	)

	closeFn := func() error { return nil }
	var swarm SwarmStrategy
	if config.Swarm.Enabled {
		engine := infrastructure.NewAnacrolixEngine(&config.Swarm, config.Download.SpeedLimit, log)
		swarm = infrastructure.NewSwarmFetcher(engine, &config.Swarm, log)
		closeFn = engine.Close
	}

	dispatcher := NewDispatcher(
		domain.NewClassifier(config.Classifier.MediaDomains),
		direct,
		media,
		swarm,
		config.Swarm.TorrentDir,
		log,
	)
	return dispatcher, closeFn, nil
}

// CreateDirectories creates the working directories named by config
func CreateDirectories(config *domain.Config) error {
	dirs := []string{config.Download.Dir}
	if config.Swarm.Enabled {
		dirs = append(dirs, config.Swarm.TorrentDir)
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}
