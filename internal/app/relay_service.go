package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
	"github.com/yourusername/url-relay-go/internal/domain"
	"github.com/yourusername/url-relay-go/internal/infrastructure"
	"github.com/yourusername/url-relay-go/pkg/format"
	"github.com/yourusername/url-relay-go/pkg/logger"
	"go.uber.org/zap"
)

// Task states reported by Status
const (
	StateRunning = "running"
)

// Notifier receives acquisition outcomes
type Notifier interface {
	NotifyCompleted(userID int64, result *domain.AcquisitionResult)
	NotifyFailed(userID int64, locator string, err error)
}

// StartRequest asks the relay to acquire a locator on behalf of a user
type StartRequest struct {
	UserID   int64
	Locator  string
	Filename string
	// Updater receives progress edits. Nil logs them instead.
	Updater domain.StatusUpdater
}

// TaskStatus is the externally visible state of one acquisition
type TaskStatus struct {
	ID          string           `json:"id"`
	UserID      int64            `json:"user_id"`
	Locator     string           `json:"locator"`
	State       string           `json:"state"`
	Path        string           `json:"path,omitempty"`
	Size        int64            `json:"size,omitempty"`
	ErrorKind   domain.ErrorKind `json:"error_kind,omitempty"`
	Error       string           `json:"error,omitempty"`
	StartedAt   time.Time        `json:"started_at"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
}

// RelayService runs acquisitions for users: registration, progress, journal, cooldown
// and notification around one dispatcher call.
type RelayService struct {
	dispatcher  *Dispatcher
	registry    *TaskRegistry
	repo        domain.AcquisitionRepository
	notifier    Notifier
	progress    *domain.ProgressConfig
	logger      *zap.Logger
	multiLogger *logger.MultiLogger

	finished *xsync.Map[string, *domain.AcquisitionRecord]
	wg       sync.WaitGroup
}

// NewRelayService creates a new relay service. repo, notifier and multiLogger are optional.
func NewRelayService(
	dispatcher *Dispatcher,
	registry *TaskRegistry,
	repo domain.AcquisitionRepository,
	notifier Notifier,
	progress *domain.ProgressConfig,
	multiLogger *logger.MultiLogger,
	log *zap.Logger,
) *RelayService {
	return &RelayService{
		dispatcher:  dispatcher,
		registry:    registry,
		repo:        repo,
		notifier:    notifier,
		progress:    progress,
		logger:      logger.OrNop(log),
		multiLogger: multiLogger,
		finished:    xsync.NewMap[string, *domain.AcquisitionRecord](),
	}
}

// Start registers the user's task and runs it in the background. ctx bounds the
// acquisition itself, so pass a long-lived context rather than a request context.
func (s *RelayService) Start(ctx context.Context, req StartRequest) (*domain.ActiveTask, error) {
	loc := s.dispatcher.Classify(req.Locator)
	if !loc.IsValid() {
		return nil, domain.NewError(domain.KindInvalidLocator, "unrecognized locator").WithContext(req.Locator, "")
	}

	task, err := s.registry.Register(req.UserID, loc.URL)
	if err != nil {
		return nil, err
	}

	s.logEvent("acquisition_started",
		zap.String("task_id", task.ID),
		zap.Int64("user_id", req.UserID),
		zap.String("locator", loc.URL),
		zap.String("kind", string(loc.Kind)))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx, task, req)
	}()

	return task, nil
}

// Acquire runs one acquisition for the user in the calling goroutine
func (s *RelayService) Acquire(ctx context.Context, req StartRequest) (*domain.AcquisitionResult, error) {
	task, err := s.registry.Register(req.UserID, req.Locator)
	if err != nil {
		return nil, err
	}
	return s.run(ctx, task, req)
}

func (s *RelayService) run(ctx context.Context, task *domain.ActiveTask, req StartRequest) (*domain.AcquisitionResult, error) {
	defer s.registry.Release(task.UserID)

	updater := req.Updater
	if updater == nil {
		updater = infrastructure.NewLogStatusUpdater(s.logger, task.ID)
	}
	reporter := NewProgressReporter(updater, s.progress, s.logger)

	result, err := s.dispatcher.Download(ctx, task, domain.AcquisitionRequest{
		Locator:  req.Locator,
		Filename: req.Filename,
		Sink:     reporter.Sink(ctx),
	})
	reporter.Flush(ctx)

	record := &domain.AcquisitionRecord{
		ID:          task.ID,
		UserID:      task.UserID,
		Locator:     task.Locator,
		Kind:        s.dispatcher.Classify(req.Locator).Kind,
		StartedAt:   task.StartedAt,
		CompletedAt: time.Now(),
	}

	if err == nil {
		record.Status = domain.StatusCompleted
		record.FilePath = result.Path
		record.Size = result.Size
		s.registry.StartCooldown(task.UserID)
		s.finalStatus(ctx, updater, fmt.Sprintf("Completed: %s (%s)", result.Name, format.Bytes(result.Size)))
	} else {
		ae := domain.AsAcquisitionError(err)
		record.Status = domain.StatusFailed
		if ae.Kind == domain.KindCancelled || task.Cancelled() {
			record.Status = domain.StatusCancelled
		}
		record.ErrorKind = ae.Kind
		record.ErrorMessage = ae.Error()
		s.finalStatus(ctx, updater, ae.UserMessage())
	}

	if s.repo != nil {
		if jerr := s.repo.Create(record); jerr != nil {
			s.logger.Error("Failed to journal acquisition", zap.String("task_id", task.ID), zap.Error(jerr))
		}
	}
	s.finished.Store(task.ID, record)

	s.logEvent("acquisition_finished",
		zap.String("task_id", task.ID),
		zap.Int64("user_id", task.UserID),
		zap.String("status", string(record.Status)),
		zap.String("error_kind", string(record.ErrorKind)),
		zap.String("path", record.FilePath),
		zap.Int64("size", record.Size),
		zap.Int("status_edits", reporter.Emitted()),
		zap.Duration("duration", record.Duration()))

	if s.notifier != nil {
		if err == nil {
			s.notifier.NotifyCompleted(task.UserID, result)
		} else if record.Status == domain.StatusFailed {
			s.notifier.NotifyFailed(task.UserID, task.Locator, err)
		}
	}

	return result, err
}

func (s *RelayService) finalStatus(ctx context.Context, updater domain.StatusUpdater, text string) {
	if ctx.Err() != nil {
		return
	}
	if err := updater.Update(ctx, text); err != nil {
		s.logger.Debug("Final status not delivered", zap.Error(err))
	}
}

// Cancel requests cancellation of the user's active task
func (s *RelayService) Cancel(userID int64) bool {
	ok := s.registry.MarkCancelled(userID)
	if ok {
		s.logEvent("acquisition_cancel_requested", zap.Int64("user_id", userID))
	}
	return ok
}

// Active returns the user's running task
func (s *RelayService) Active(userID int64) (*domain.ActiveTask, bool) {
	return s.registry.Get(userID)
}

// Classify reports how a locator would be routed
func (s *RelayService) Classify(raw string) domain.Locator {
	return s.dispatcher.Classify(raw)
}

// ActiveTasks returns every running task, oldest first
func (s *RelayService) ActiveTasks() []*domain.ActiveTask {
	return s.registry.Active()
}

// Status returns the state of a running or finished task
func (s *RelayService) Status(id string) (*TaskStatus, error) {
	for _, task := range s.registry.Active() {
		if task.ID == id {
			return &TaskStatus{
				ID:        task.ID,
				UserID:    task.UserID,
				Locator:   task.Locator,
				State:     StateRunning,
				Path:      task.Path(),
				StartedAt: task.StartedAt,
			}, nil
		}
	}

	record, err := s.Result(id)
	if err != nil {
		return nil, err
	}
	completed := record.CompletedAt
	return &TaskStatus{
		ID:          record.ID,
		UserID:      record.UserID,
		Locator:     record.Locator,
		State:       string(record.Status),
		Path:        record.FilePath,
		Size:        record.Size,
		ErrorKind:   record.ErrorKind,
		Error:       record.ErrorMessage,
		StartedAt:   record.StartedAt,
		CompletedAt: &completed,
	}, nil
}

// Result returns the record of a finished task
func (s *RelayService) Result(id string) (*domain.AcquisitionRecord, error) {
	if record, ok := s.finished.Load(id); ok {
		return record, nil
	}
	if s.repo != nil {
		return s.repo.FindByID(id)
	}
	return nil, domain.NewError(domain.KindNotFound, "acquisition %s not found", id)
}

// History returns the user's most recent acquisitions
func (s *RelayService) History(userID int64, limit int) ([]*domain.AcquisitionRecord, error) {
	if s.repo == nil {
		return []*domain.AcquisitionRecord{}, nil
	}
	return s.repo.FindByUser(userID, limit)
}

// Stats returns journal statistics, for one user when userID is non-zero
func (s *RelayService) Stats(userID int64) (*domain.AcquisitionStats, error) {
	if s.repo == nil {
		return &domain.AcquisitionStats{BySource: map[string]int64{}}, nil
	}
	if userID != 0 {
		return s.repo.GetUserStats(userID)
	}
	return s.repo.GetStats()
}

// PruneFinished forgets in-memory results completed before cutoff. The journal keeps them.
func (s *RelayService) PruneFinished(cutoff time.Time) int {
	pruned := 0
	s.finished.Range(func(id string, record *domain.AcquisitionRecord) bool {
		if record.CompletedAt.Before(cutoff) {
			s.finished.Delete(id)
			pruned++
		}
		return true
	})
	return pruned
}

// Wait blocks until every background acquisition has returned or ctx is done
func (s *RelayService) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *RelayService) logEvent(event string, fields ...zap.Field) {
	if s.multiLogger != nil {
		s.multiLogger.LogAcquisitionEvent(event, fields...)
	}
}
