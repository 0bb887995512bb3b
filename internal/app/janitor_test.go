package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/url-relay-go/internal/domain"
)

type countingPruner struct {
	cutoffs []time.Time
}

func (p *countingPruner) PruneFinished(cutoff time.Time) int {
	p.cutoffs = append(p.cutoffs, cutoff)
	return 0
}

func touch(t *testing.T, path string, age time.Duration) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
	mtime := time.Now().Add(-age)
	require.NoError(t, os.Chtimes(path, mtime, mtime))
}

func TestJanitor_Sweep(t *testing.T) {
	downloads := t.TempDir()
	torrents := filepath.Join(downloads, "torrents")
	require.NoError(t, os.MkdirAll(torrents, 0755))
	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(torrents, old, old))

	touch(t, filepath.Join(downloads, "stale.bin.part"), 12*time.Hour)
	touch(t, filepath.Join(downloads, "fresh.bin"), time.Minute)
	touch(t, filepath.Join(downloads, "running.bin.part"), 12*time.Hour)
	touch(t, filepath.Join(torrents, "abandoned", "a.mkv"), 12*time.Hour)
	abandoned := filepath.Join(torrents, "abandoned")
	require.NoError(t, os.Chtimes(abandoned, old, old))

	registry := NewTaskRegistry(&domain.RegistryConfig{})
	task, err := registry.Register(1, "https://example.com/running.bin")
	require.NoError(t, err)
	task.SetPath(filepath.Join(downloads, "running.bin"))

	pruner := &countingPruner{}
	j := NewJanitor(&domain.JanitorConfig{Schedule: "@every 1h", MaxAge: 6 * time.Hour},
		[]string{downloads, torrents}, registry, pruner, nil)

	removed := j.Sweep()
	assert.Equal(t, 2, removed)

	assert.NoFileExists(t, filepath.Join(downloads, "stale.bin.part"))
	assert.NoDirExists(t, abandoned)
	assert.FileExists(t, filepath.Join(downloads, "fresh.bin"))
	assert.FileExists(t, filepath.Join(downloads, "running.bin.part"))
	assert.DirExists(t, torrents, "configured directories are never removed")

	require.Len(t, pruner.cutoffs, 1)
}

func TestJanitor_MissingDirectory(t *testing.T) {
	j := NewJanitor(&domain.JanitorConfig{Schedule: "@every 1h", MaxAge: time.Hour},
		[]string{filepath.Join(t.TempDir(), "missing")}, nil, nil, nil)

	assert.Zero(t, j.Sweep())
}

func TestJanitor_StartRejectsBadSchedule(t *testing.T) {
	j := NewJanitor(&domain.JanitorConfig{Schedule: "whenever", MaxAge: time.Hour}, nil, nil, nil, nil)
	assert.Error(t, j.Start())

	ok := NewJanitor(&domain.JanitorConfig{Schedule: "@every 1h", MaxAge: time.Hour}, nil, nil, nil, nil)
	require.NoError(t, ok.Start())
	<-ok.Stop().Done()
}
