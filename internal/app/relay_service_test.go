package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/url-relay-go/internal/domain"
)

// memoryRepo is an in-memory journal
type memoryRepo struct {
	mu      sync.Mutex
	records []*domain.AcquisitionRecord
}

func (m *memoryRepo) Create(record *domain.AcquisitionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, record)
	return nil
}

func (m *memoryRepo) FindByID(id string) (*domain.AcquisitionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.records {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, domain.NewError(domain.KindNotFound, "acquisition %s not found", id)
}

func (m *memoryRepo) FindByUser(userID int64, limit int) ([]*domain.AcquisitionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.AcquisitionRecord
	for i := len(m.records) - 1; i >= 0 && len(out) < limit; i-- {
		if m.records[i].UserID == userID {
			out = append(out, m.records[i])
		}
	}
	return out, nil
}

func (m *memoryRepo) GetStats() (*domain.AcquisitionStats, error) {
	return m.stats(0), nil
}

func (m *memoryRepo) GetUserStats(userID int64) (*domain.AcquisitionStats, error) {
	return m.stats(userID), nil
}

func (m *memoryRepo) stats(userID int64) *domain.AcquisitionStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := &domain.AcquisitionStats{BySource: map[string]int64{}}
	for _, r := range m.records {
		if userID != 0 && r.UserID != userID {
			continue
		}
		stats.Total++
		switch r.Status {
		case domain.StatusCompleted:
			stats.Completed++
			stats.TotalBytes += r.Size
		case domain.StatusFailed:
			stats.Failed++
		case domain.StatusCancelled:
			stats.Cancelled++
		}
	}
	return stats
}

func (m *memoryRepo) Close() error { return nil }

func (m *memoryRepo) all() []*domain.AcquisitionRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*domain.AcquisitionRecord(nil), m.records...)
}

type recordingNotifier struct {
	mu        sync.Mutex
	completed []string
	failed    []domain.ErrorKind
}

func (n *recordingNotifier) NotifyCompleted(_ int64, result *domain.AcquisitionResult) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.completed = append(n.completed, result.Name)
}

func (n *recordingNotifier) NotifyFailed(_ int64, _ string, err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failed = append(n.failed, domain.KindOf(err))
}

type relayFixture struct {
	service  *RelayService
	registry *TaskRegistry
	repo     *memoryRepo
	notifier *recordingNotifier
	direct   *fakeStrategy
}

func newRelayFixture(t *testing.T) *relayFixture {
	f := &relayFixture{
		registry: NewTaskRegistry(&domain.RegistryConfig{Cooldown: time.Minute}),
		repo:     &memoryRepo{},
		notifier: &recordingNotifier{},
		direct:   &fakeStrategy{},
	}
	dispatcher := NewDispatcher(domain.NewClassifier(nil), f.direct, &fakeStrategy{}, &fakeStrategy{}, t.TempDir(), nil)
	f.service = NewRelayService(dispatcher, f.registry, f.repo, f.notifier,
		&domain.ProgressConfig{MinInterval: 0, PctStep: 1}, nil, nil)
	return f
}

func waitIdle(t *testing.T, s *RelayService) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Wait(ctx))
}

func TestRelayService_StartCompletes(t *testing.T) {
	f := newRelayFixture(t)
	updater := &recordingUpdater{}

	task, err := f.service.Start(context.Background(), StartRequest{
		UserID:  1,
		Locator: "https://example.com/out",
		Updater: updater,
	})
	require.NoError(t, err)
	waitIdle(t, f.service)

	assert.False(t, f.registry.IsActive(1))

	records := f.repo.all()
	require.Len(t, records, 1)
	assert.Equal(t, task.ID, records[0].ID)
	assert.Equal(t, domain.StatusCompleted, records[0].Status)
	assert.Equal(t, domain.LocatorHTTP, records[0].Kind)
	assert.Equal(t, "/tmp/out", records[0].FilePath)

	assert.Equal(t, []string{"out"}, f.notifier.completed)

	texts := updater.all()
	require.NotEmpty(t, texts)
	assert.Equal(t, "Completed: out (1 B)", texts[len(texts)-1])

	_, err = f.service.Start(context.Background(), StartRequest{UserID: 1, Locator: "https://example.com/next"})
	assert.ErrorIs(t, err, domain.ErrCoolingDown)
}

func TestRelayService_InvalidLocatorNotRegistered(t *testing.T) {
	f := newRelayFixture(t)

	_, err := f.service.Start(context.Background(), StartRequest{UserID: 1, Locator: "not a url at all"})
	assert.ErrorIs(t, err, domain.ErrInvalidLocator)
	assert.False(t, f.registry.IsActive(1))
	assert.Empty(t, f.direct.invoked())
	assert.Empty(t, f.repo.all())
}

func TestRelayService_AlreadyActive(t *testing.T) {
	f := newRelayFixture(t)

	release := make(chan struct{})
	f.direct.fetch = func(context.Context, *domain.Job) (*domain.AcquisitionResult, error) {
		<-release
		return &domain.AcquisitionResult{Path: "/tmp/a", Name: "a", Size: 1, Kind: domain.LocatorHTTP}, nil
	}

	_, err := f.service.Start(context.Background(), StartRequest{UserID: 1, Locator: "https://example.com/a"})
	require.NoError(t, err)

	_, err = f.service.Start(context.Background(), StartRequest{UserID: 1, Locator: "https://example.com/b"})
	assert.ErrorIs(t, err, domain.ErrAlreadyActive)

	_, err = f.service.Start(context.Background(), StartRequest{UserID: 2, Locator: "https://example.com/b"})
	assert.NoError(t, err)

	close(release)
	waitIdle(t, f.service)
	assert.Len(t, f.repo.all(), 2)
}

func TestRelayService_Cancel(t *testing.T) {
	f := newRelayFixture(t)

	started := make(chan struct{})
	f.direct.fetch = func(_ context.Context, job *domain.Job) (*domain.AcquisitionResult, error) {
		close(started)
		for !job.Cancelled() {
			time.Sleep(time.Millisecond)
		}
		return nil, domain.NewError(domain.KindCancelled, "cancelled by user")
	}

	assert.False(t, f.service.Cancel(1))

	task, err := f.service.Start(context.Background(), StartRequest{UserID: 1, Locator: "https://example.com/a"})
	require.NoError(t, err)
	<-started

	active, ok := f.service.Active(1)
	require.True(t, ok)
	assert.Equal(t, task.ID, active.ID)

	status, err := f.service.Status(task.ID)
	require.NoError(t, err)
	assert.Equal(t, StateRunning, status.State)

	assert.True(t, f.service.Cancel(1))
	waitIdle(t, f.service)

	status, err = f.service.Status(task.ID)
	require.NoError(t, err)
	assert.Equal(t, string(domain.StatusCancelled), status.State)
	assert.Equal(t, domain.KindCancelled, status.ErrorKind)
	require.NotNil(t, status.CompletedAt)

	assert.Empty(t, f.notifier.failed, "cancellations are not reported as failures")
	assert.Zero(t, f.registry.CooldownRemaining(1), "no cooldown after a cancellation")
}

func TestRelayService_AcquireFailure(t *testing.T) {
	f := newRelayFixture(t)
	f.direct.fetch = func(context.Context, *domain.Job) (*domain.AcquisitionResult, error) {
		return nil, &domain.AcquisitionError{Kind: domain.KindRemoteRejected, StatusCode: 403, Message: "HTTP 403"}
	}
	updater := &recordingUpdater{}

	_, err := f.service.Acquire(context.Background(), StartRequest{
		UserID:  5,
		Locator: "https://example.com/secret",
		Updater: updater,
	})
	assert.ErrorIs(t, err, domain.ErrRemoteRejected)
	assert.False(t, f.registry.IsActive(5))

	records := f.repo.all()
	require.Len(t, records, 1)
	assert.Equal(t, domain.StatusFailed, records[0].Status)
	assert.Equal(t, domain.KindRemoteRejected, records[0].ErrorKind)

	assert.Equal(t, []domain.ErrorKind{domain.KindRemoteRejected}, f.notifier.failed)

	texts := updater.all()
	require.NotEmpty(t, texts)
	assert.Equal(t, "The server refused the request (HTTP 403).", texts[len(texts)-1])
}

func TestRelayService_ResultLookup(t *testing.T) {
	f := newRelayFixture(t)

	_, err := f.service.Result("missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.service.Status("missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.service.Acquire(context.Background(), StartRequest{UserID: 1, Locator: "https://example.com/out"})
	require.NoError(t, err)

	history, err := f.service.History(1, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)

	record, err := f.service.Result(history[0].ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, record.Status)

	stats, err := f.service.Stats(0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Completed)

	stats, err = f.service.Stats(2)
	require.NoError(t, err)
	assert.Zero(t, stats.Total)
}

func TestRelayService_PruneFinished(t *testing.T) {
	f := newRelayFixture(t)

	_, err := f.service.Acquire(context.Background(), StartRequest{UserID: 1, Locator: "https://example.com/out"})
	require.NoError(t, err)
	id := f.repo.all()[0].ID

	assert.Zero(t, f.service.PruneFinished(time.Now().Add(-time.Hour)))
	assert.Equal(t, 1, f.service.PruneFinished(time.Now().Add(time.Second)))

	// Pruned results are still served from the journal.
	record, err := f.service.Result(id)
	require.NoError(t, err)
	assert.Equal(t, id, record.ID)
}

func TestRelayService_WithoutJournal(t *testing.T) {
	dispatcher := NewDispatcher(domain.NewClassifier(nil), &fakeStrategy{}, &fakeStrategy{}, nil, t.TempDir(), nil)
	s := NewRelayService(dispatcher, NewTaskRegistry(&domain.RegistryConfig{}), nil, nil,
		&domain.ProgressConfig{PctStep: 1}, nil, nil)

	result, err := s.Acquire(context.Background(), StartRequest{UserID: 1, Locator: "https://example.com/out"})
	require.NoError(t, err)
	assert.Equal(t, "out", result.Name)

	history, err := s.History(1, 10)
	require.NoError(t, err)
	assert.Empty(t, history)

	stats, err := s.Stats(0)
	require.NoError(t, err)
	assert.Zero(t, stats.Total)
}

func TestRelayService_WaitHonoursContext(t *testing.T) {
	f := newRelayFixture(t)

	release := make(chan struct{})
	defer close(release)
	f.direct.fetch = func(context.Context, *domain.Job) (*domain.AcquisitionResult, error) {
		<-release
		return nil, domain.NewError(domain.KindNetwork, "closed")
	}

	_, err := f.service.Start(context.Background(), StartRequest{UserID: 1, Locator: "https://example.com/a"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, f.service.Wait(ctx), context.DeadlineExceeded)
}
