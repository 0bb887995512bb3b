package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/url-relay-go/internal/domain"
)

// fakeStrategy records every call and delegates to fn when set
type fakeStrategy struct {
	mu    sync.Mutex
	calls []string
	jobs  []*domain.Job

	fetch      func(ctx context.Context, job *domain.Job) (*domain.AcquisitionResult, error)
	fetchTo    func(ctx context.Context, job *domain.Job, dir string) (*domain.AcquisitionResult, error)
	descriptor func(ctx context.Context, job *domain.Job, source string) (*domain.AcquisitionResult, error)
}

func (f *fakeStrategy) record(call string, job *domain.Job) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.jobs = append(f.jobs, job)
	f.mu.Unlock()
}

func (f *fakeStrategy) invoked() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeStrategy) Fetch(ctx context.Context, job *domain.Job) (*domain.AcquisitionResult, error) {
	f.record("Fetch", job)
	if f.fetch != nil {
		return f.fetch(ctx, job)
	}
	return &domain.AcquisitionResult{Path: "/tmp/out", Name: "out", Size: 1, Kind: job.Locator.Kind}, nil
}

func (f *fakeStrategy) FetchTo(ctx context.Context, job *domain.Job, dir string) (*domain.AcquisitionResult, error) {
	f.record("FetchTo", job)
	if f.fetchTo != nil {
		return f.fetchTo(ctx, job, dir)
	}
	path := filepath.Join(dir, job.Filename)
	if err := os.WriteFile(path, []byte("d8:announce0:e"), 0644); err != nil {
		return nil, err
	}
	return &domain.AcquisitionResult{Path: path, Name: job.Filename, Size: 14, Kind: job.Locator.Kind}, nil
}

func (f *fakeStrategy) FetchDescriptor(ctx context.Context, job *domain.Job, source string) (*domain.AcquisitionResult, error) {
	f.record("FetchDescriptor:"+source, job)
	if f.descriptor != nil {
		return f.descriptor(ctx, job, source)
	}
	return &domain.AcquisitionResult{Path: "/tmp/show", Name: "show", Size: 2, Kind: job.Locator.Kind}, nil
}

type dispatcherFixture struct {
	dispatcher *Dispatcher
	direct     *fakeStrategy
	media      *fakeStrategy
	swarm      *fakeStrategy
	torrentDir string
}

func newDispatcherFixture(t *testing.T) *dispatcherFixture {
	f := &dispatcherFixture{
		direct:     &fakeStrategy{},
		media:      &fakeStrategy{},
		swarm:      &fakeStrategy{},
		torrentDir: t.TempDir(),
	}
	f.dispatcher = NewDispatcher(domain.NewClassifier(nil), f.direct, f.media, f.swarm, f.torrentDir, nil)
	return f
}

func (f *dispatcherFixture) noCalls(t *testing.T) {
	t.Helper()
	assert.Empty(t, f.direct.invoked())
	assert.Empty(t, f.media.invoked())
	assert.Empty(t, f.swarm.invoked())
}

func TestDispatcher_InvalidLocatorInvokesNothing(t *testing.T) {
	f := newDispatcherFixture(t)

	for _, input := range []string{"not a url at all", "", "   ", "just-text", "file.txt"} {
		_, err := f.dispatcher.Download(context.Background(), nil, domain.AcquisitionRequest{Locator: input})

		require.Error(t, err, input)
		assert.ErrorIs(t, err, domain.ErrInvalidLocator, input)
	}
	f.noCalls(t)
}

func TestDispatcher_Routing(t *testing.T) {
	tests := []struct {
		name    string
		locator string
		kind    domain.LocatorKind
	}{
		{
			name:    "plain http",
			locator: "https://example.com/file.zip",
			kind:    domain.LocatorHTTP,
		},
		{
			name:    "media host",
			locator: "https://www.youtube.com/watch?v=abc",
			kind:    domain.LocatorMedia,
		},
		{
			name:    "magnet",
			locator: "magnet:?xt=urn:btih:0123456789abcdef",
			kind:    domain.LocatorMagnet,
		},
		{
			name:    "local torrent",
			locator: "/srv/incoming/show.torrent",
			kind:    domain.LocatorTorrent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newDispatcherFixture(t)

			result, err := f.dispatcher.Download(context.Background(), nil, domain.AcquisitionRequest{Locator: tt.locator})
			require.NoError(t, err)
			assert.Equal(t, tt.kind, result.Kind)

			switch tt.kind {
			case domain.LocatorHTTP:
				assert.Equal(t, []string{"Fetch"}, f.direct.invoked())
				assert.Empty(t, f.media.invoked())
				assert.Empty(t, f.swarm.invoked())
			case domain.LocatorMedia:
				assert.Equal(t, []string{"Fetch"}, f.media.invoked())
				assert.Empty(t, f.direct.invoked())
				assert.Empty(t, f.swarm.invoked())
			case domain.LocatorMagnet:
				assert.Equal(t, []string{"Fetch"}, f.swarm.invoked())
				assert.Empty(t, f.direct.invoked())
			case domain.LocatorTorrent:
				assert.Equal(t, []string{"FetchDescriptor:" + tt.locator}, f.swarm.invoked())
				assert.Empty(t, f.direct.invoked())
			}
		})
	}
}

func TestDispatcher_RemoteTorrentDescriptorRemoved(t *testing.T) {
	f := newDispatcherFixture(t)

	var descriptorPath string
	f.swarm.descriptor = func(_ context.Context, job *domain.Job, source string) (*domain.AcquisitionResult, error) {
		descriptorPath = source
		assert.FileExists(t, source)
		return &domain.AcquisitionResult{Path: "/tmp/show", Name: "show", Kind: job.Locator.Kind}, nil
	}

	var phases []string
	sink := func(s domain.ProgressSample) { phases = append(phases, s.Phase) }

	_, err := f.dispatcher.Download(context.Background(), nil, domain.AcquisitionRequest{
		Locator: "https://tracker.example.org/files/show.torrent",
		Sink:    sink,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"FetchTo"}, f.direct.invoked())
	require.NotEmpty(t, descriptorPath)
	assert.Equal(t, descriptorName, filepath.Base(descriptorPath))
	assert.NoFileExists(t, descriptorPath)
	assert.NoDirExists(t, filepath.Dir(descriptorPath))
	assert.Equal(t, []string{domain.PhaseDescriptor}, phases)

	// The descriptor fetch must not report progress of its own.
	assert.Nil(t, f.direct.jobs[0].Sink)
}

func TestDispatcher_RemoteTorrentDescriptorRemovedOnFailure(t *testing.T) {
	f := newDispatcherFixture(t)

	f.swarm.descriptor = func(context.Context, *domain.Job, string) (*domain.AcquisitionResult, error) {
		return nil, domain.NewError(domain.KindTimeout, "timed out waiting for metadata after 1m0s")
	}

	_, err := f.dispatcher.Download(context.Background(), nil, domain.AcquisitionRequest{
		Locator: "https://tracker.example.org/files/show.torrent",
	})
	assert.ErrorIs(t, err, domain.ErrTimeout)

	entries, rerr := os.ReadDir(f.torrentDir)
	require.NoError(t, rerr)
	assert.Empty(t, entries)
}

func TestDispatcher_RemoteTorrentDescriptorFetchFails(t *testing.T) {
	f := newDispatcherFixture(t)

	f.direct.fetchTo = func(context.Context, *domain.Job, string) (*domain.AcquisitionResult, error) {
		return nil, &domain.AcquisitionError{Kind: domain.KindRemoteRejected, StatusCode: 404, Message: "HTTP 404"}
	}

	_, err := f.dispatcher.Download(context.Background(), nil, domain.AcquisitionRequest{
		Locator: "https://tracker.example.org/files/show.torrent",
	})
	assert.ErrorIs(t, err, domain.ErrRemoteRejected)
	assert.Empty(t, f.swarm.invoked())
}

func TestDispatcher_SwarmDisabled(t *testing.T) {
	direct := &fakeStrategy{}
	d := NewDispatcher(domain.NewClassifier(nil), direct, &fakeStrategy{}, nil, t.TempDir(), nil)

	_, err := d.Download(context.Background(), nil, domain.AcquisitionRequest{Locator: "magnet:?xt=urn:btih:abc"})
	assert.ErrorIs(t, err, domain.ErrSwarm)

	_, err = d.Download(context.Background(), nil, domain.AcquisitionRequest{Locator: "https://example.com/a.torrent"})
	assert.ErrorIs(t, err, domain.ErrSwarm)
	assert.Empty(t, direct.invoked())
}

func TestDispatcher_ErrorsCarryContext(t *testing.T) {
	f := newDispatcherFixture(t)

	f.direct.fetch = func(_ context.Context, job *domain.Job) (*domain.AcquisitionResult, error) {
		job.Sink.Emit(domain.ProgressSample{Phase: domain.PhaseDownloading, Done: 10, Total: 100})
		return nil, domain.NewError(domain.KindNetwork, "connection reset")
	}

	_, err := f.dispatcher.Download(context.Background(), nil, domain.AcquisitionRequest{
		Locator: "www.example.com/file.bin",
	})

	var ae *domain.AcquisitionError
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, domain.KindNetwork, ae.Kind)
	assert.Equal(t, "https://www.example.com/file.bin", ae.Locator)
	assert.Equal(t, domain.PhaseDownloading, ae.Phase)
}

func TestDispatcher_ForeignErrorsBecomeInternal(t *testing.T) {
	f := newDispatcherFixture(t)
	f.direct.fetch = func(context.Context, *domain.Job) (*domain.AcquisitionResult, error) {
		return nil, errors.New("boom")
	}

	_, err := f.dispatcher.Download(context.Background(), nil, domain.AcquisitionRequest{Locator: "https://example.com/a"})
	assert.Equal(t, domain.KindInternal, domain.KindOf(err))
}

func TestDispatcher_PanicBecomesInternal(t *testing.T) {
	f := newDispatcherFixture(t)
	f.media.fetch = func(context.Context, *domain.Job) (*domain.AcquisitionResult, error) {
		panic("engine exploded")
	}

	result, err := f.dispatcher.Download(context.Background(), nil, domain.AcquisitionRequest{Locator: "https://vimeo.com/123"})
	assert.Nil(t, result)
	require.Error(t, err)
	assert.Equal(t, domain.KindInternal, domain.KindOf(err))
	assert.Contains(t, err.Error(), "engine exploded")
}

func TestDispatcher_TaskWiring(t *testing.T) {
	f := newDispatcherFixture(t)
	task := domain.NewActiveTask(1, "https://example.com/a")

	f.direct.fetch = func(_ context.Context, job *domain.Job) (*domain.AcquisitionResult, error) {
		job.TrackPath("/downloads/a")
		task.Cancel()
		if job.Cancelled() {
			return nil, domain.NewError(domain.KindCancelled, "cancelled by user")
		}
		return nil, errors.New("cancellation not observed")
	}

	_, err := f.dispatcher.Download(context.Background(), task, domain.AcquisitionRequest{Locator: "https://example.com/a"})
	assert.ErrorIs(t, err, domain.ErrCancelled)
	assert.Equal(t, "/downloads/a", task.Path())
}

func TestDispatcher_CleanupIsIdempotent(t *testing.T) {
	f := newDispatcherFixture(t)

	dir := filepath.Join(t.TempDir(), "partial")
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.part"), []byte("x"), 0644))

	f.dispatcher.Cleanup(dir)
	assert.NoDirExists(t, dir)

	f.dispatcher.Cleanup(dir)
	f.dispatcher.Cleanup("")
	assert.NoDirExists(t, dir)
}
