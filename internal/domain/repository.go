package domain

import "time"

// AcquisitionStatus is the terminal status recorded in the journal
type AcquisitionStatus string

const (
	StatusCompleted AcquisitionStatus = "completed"
	StatusFailed    AcquisitionStatus = "failed"
	StatusCancelled AcquisitionStatus = "cancelled"
)

// AcquisitionRecord is one journal entry for a finished acquisition
type AcquisitionRecord struct {
	ID           string            `json:"id" gorm:"primaryKey"`
	UserID       int64             `json:"user_id" gorm:"not null;index"`
	Locator      string            `json:"locator" gorm:"not null"`
	Source       string            `json:"source" gorm:"index"`
	Kind         LocatorKind       `json:"kind" gorm:"not null"`
	Status       AcquisitionStatus `json:"status" gorm:"not null;index"`
	ErrorKind    ErrorKind         `json:"error_kind,omitempty"`
	ErrorMessage string            `json:"error_message,omitempty"`
	FilePath     string            `json:"file_path,omitempty"`
	Size         int64             `json:"size"`
	StartedAt    time.Time         `json:"started_at"`
	CompletedAt  time.Time         `json:"completed_at"`
	CreatedAt    time.Time         `json:"created_at" gorm:"autoCreateTime"`
}

// Duration returns how long the acquisition ran
func (r *AcquisitionRecord) Duration() time.Duration {
	return r.CompletedAt.Sub(r.StartedAt)
}

// AcquisitionRepository defines the interface for journal persistence
type AcquisitionRepository interface {
	// Create stores a finished acquisition
	Create(record *AcquisitionRecord) error

	// FindByID finds a record by task ID
	FindByID(id string) (*AcquisitionRecord, error)

	// FindByUser returns the most recent records of a user, newest first
	FindByUser(userID int64, limit int) ([]*AcquisitionRecord, error)

	// GetStats returns global statistics
	GetStats() (*AcquisitionStats, error)

	// GetUserStats returns statistics for one user
	GetUserStats(userID int64) (*AcquisitionStats, error)

	Close() error
}

// AcquisitionStats represents journal statistics
type AcquisitionStats struct {
	Total      int64            `json:"total"`
	Completed  int64            `json:"completed"`
	Failed     int64            `json:"failed"`
	Cancelled  int64            `json:"cancelled"`
	TotalBytes int64            `json:"total_bytes"`
	Users      int64            `json:"users"`
	BySource   map[string]int64 `json:"by_source,omitempty"`
}
