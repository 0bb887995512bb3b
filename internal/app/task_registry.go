package app

import (
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
	"github.com/yourusername/url-relay-go/internal/domain"
)

// TaskRegistry tracks at most one in-flight acquisition per user, plus the cooldown
// each user serves after a successful one.
type TaskRegistry struct {
	tasks     *xsync.Map[int64, *domain.ActiveTask]
	cooldowns *xsync.Map[int64, time.Time]
	cooldown  time.Duration
	now       func() time.Time
}

// NewTaskRegistry creates a registry. A zero cooldown disables cooldowns.
func NewTaskRegistry(config *domain.RegistryConfig) *TaskRegistry {
	return &TaskRegistry{
		tasks:     xsync.NewMap[int64, *domain.ActiveTask](),
		cooldowns: xsync.NewMap[int64, time.Time](),
		cooldown:  config.Cooldown,
		now:       time.Now,
	}
}

// Register atomically claims the user's slot for a new task
func (r *TaskRegistry) Register(userID int64, locator string) (*domain.ActiveTask, error) {
	if remaining := r.CooldownRemaining(userID); remaining > 0 {
		return nil, domain.NewError(domain.KindCoolingDown, "try again in %s", remaining.Round(time.Second))
	}

	task := domain.NewActiveTask(userID, locator)
	if existing, loaded := r.tasks.LoadOrStore(userID, task); loaded {
		return nil, domain.NewError(domain.KindAlreadyActive, "task %s is still running", existing.ID)
	}
	return task, nil
}

// MarkCancelled sets the cancellation flag of the user's task. It returns false if the
// user has no active task.
func (r *TaskRegistry) MarkCancelled(userID int64) bool {
	task, ok := r.tasks.Load(userID)
	if !ok {
		return false
	}
	task.Cancel()
	return true
}

// Release removes the user's task unconditionally
func (r *TaskRegistry) Release(userID int64) {
	r.tasks.Delete(userID)
}

// IsActive reports whether the user has a task in flight
func (r *TaskRegistry) IsActive(userID int64) bool {
	_, ok := r.tasks.Load(userID)
	return ok
}

// Get returns the user's active task
func (r *TaskRegistry) Get(userID int64) (*domain.ActiveTask, bool) {
	return r.tasks.Load(userID)
}

// Active returns a snapshot of all active tasks, oldest first
func (r *TaskRegistry) Active() []*domain.ActiveTask {
	tasks := make([]*domain.ActiveTask, 0, r.tasks.Size())
	r.tasks.Range(func(_ int64, task *domain.ActiveTask) bool {
		tasks = append(tasks, task)
		return true
	})
	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].StartedAt.Before(tasks[j].StartedAt)
	})
	return tasks
}

// OwnsPath reports whether any active task is working on path, on a file inside it, or
// on a file path is a partial of (name.part).
func (r *TaskRegistry) OwnsPath(path string) bool {
	owned := false
	r.tasks.Range(func(_ int64, task *domain.ActiveTask) bool {
		p := task.Path()
		if p != "" && (p == path ||
			strings.HasPrefix(p, path+string(filepath.Separator)) ||
			strings.HasPrefix(path, p)) {
			owned = true
			return false
		}
		return true
	})
	return owned
}

// StartCooldown starts the user's cooldown
func (r *TaskRegistry) StartCooldown(userID int64) {
	if r.cooldown <= 0 {
		return
	}
	r.cooldowns.Store(userID, r.now().Add(r.cooldown))
}

// CooldownRemaining returns how long the user must still wait
func (r *TaskRegistry) CooldownRemaining(userID int64) time.Duration {
	until, ok := r.cooldowns.Load(userID)
	if !ok {
		return 0
	}
	remaining := until.Sub(r.now())
	if remaining <= 0 {
		r.cooldowns.Delete(userID)
		return 0
	}
	return remaining
}
