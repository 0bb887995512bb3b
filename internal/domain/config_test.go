package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.NotNil(t, config)
	assert.Equal(t, "localhost", config.Server.Host)
	assert.Equal(t, 8080, config.Server.Port)
	assert.Equal(t, 4*GiB, config.Download.MaxFileSize)
	assert.Equal(t, int(4*MiB), config.Download.ChunkSize)
	assert.Equal(t, 30*time.Second, config.Download.ConnectTimeout)
	assert.Equal(t, 2*time.Second, config.Progress.MinInterval)
	assert.Equal(t, 1.0, config.Progress.PctStep)
	assert.Equal(t, 60*time.Second, config.Swarm.MetadataTimeout)
	assert.Equal(t, time.Second, config.Swarm.PollInterval)
	assert.Equal(t, 100*KiB, config.Swarm.UploadLimit)
	assert.Equal(t, "bestvideo+bestaudio/best", config.Extractor.Format)
	assert.Equal(t, "mp4", config.Extractor.MergeFormat)
	assert.Contains(t, config.Classifier.MediaDomains, "youtube.com")
	assert.Equal(t, "log", config.Notification.Method)
	assert.Equal(t, "info", config.Logging.Level)
}

func TestDefaultConfig_TorrentDirUnderDownloadDir(t *testing.T) {
	config := DefaultConfig()

	assert.NotEmpty(t, config.Download.Dir)
	assert.Contains(t, config.Swarm.TorrentDir, config.Download.Dir)
	assert.NotEqual(t, config.Download.Dir, config.Swarm.TorrentDir)
}
