package infrastructure

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/yourusername/url-relay-go/internal/domain"
	"golang.org/x/net/publicsuffix"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SQLiteAcquisitionRepository implements AcquisitionRepository using SQLite
type SQLiteAcquisitionRepository struct {
	db *gorm.DB
}

// NewSQLiteAcquisitionRepository creates a new SQLite journal. ":memory:" keeps it in memory.
func NewSQLiteAcquisitionRepository(dbPath string) (*SQLiteAcquisitionRepository, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.AutoMigrate(&domain.AcquisitionRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &SQLiteAcquisitionRepository{db: db}, nil
}

// Create stores a finished acquisition, deriving its source domain
func (r *SQLiteAcquisitionRepository) Create(record *domain.AcquisitionRecord) error {
	if record.Source == "" {
		record.Source = SourceDomain(record.Kind, record.Locator)
	}
	return r.db.Create(record).Error
}

// FindByID finds a record by task ID
func (r *SQLiteAcquisitionRepository) FindByID(id string) (*domain.AcquisitionRecord, error) {
	var record domain.AcquisitionRecord
	err := r.db.First(&record, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NewError(domain.KindNotFound, "acquisition %s not found", id)
		}
		return nil, err
	}
	return &record, nil
}

// FindByUser returns the most recent records of a user, newest first
func (r *SQLiteAcquisitionRepository) FindByUser(userID int64, limit int) ([]*domain.AcquisitionRecord, error) {
	var records []*domain.AcquisitionRecord
	query := r.db.Where("user_id = ?", userID).Order("completed_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&records).Error
	return records, err
}

// GetStats returns global statistics
func (r *SQLiteAcquisitionRepository) GetStats() (*domain.AcquisitionStats, error) {
	return r.stats(r.db.Model(&domain.AcquisitionRecord{}))
}

// GetUserStats returns statistics for one user
func (r *SQLiteAcquisitionRepository) GetUserStats(userID int64) (*domain.AcquisitionStats, error) {
	return r.stats(r.db.Model(&domain.AcquisitionRecord{}).Where("user_id = ?", userID))
}

func (r *SQLiteAcquisitionRepository) stats(base *gorm.DB) (*domain.AcquisitionStats, error) {
	stats := &domain.AcquisitionStats{BySource: make(map[string]int64)}

	if err := base.Session(&gorm.Session{}).Count(&stats.Total).Error; err != nil {
		return nil, err
	}

	var byStatus []struct {
		Status domain.AcquisitionStatus
		Count  int64
	}
	if err := base.Session(&gorm.Session{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&byStatus).Error; err != nil {
		return nil, err
	}
	for _, s := range byStatus {
		switch s.Status {
		case domain.StatusCompleted:
			stats.Completed = s.Count
		case domain.StatusFailed:
			stats.Failed = s.Count
		case domain.StatusCancelled:
			stats.Cancelled = s.Count
		}
	}

	var totalBytes struct{ Sum int64 }
	if err := base.Session(&gorm.Session{}).
		Select("COALESCE(SUM(size), 0) as sum").
		Where("status = ?", domain.StatusCompleted).
		Scan(&totalBytes).Error; err != nil {
		return nil, err
	}
	stats.TotalBytes = totalBytes.Sum

	if err := base.Session(&gorm.Session{}).
		Distinct("user_id").
		Count(&stats.Users).Error; err != nil {
		return nil, err
	}

	var bySource []struct {
		Source string
		Count  int64
	}
	if err := base.Session(&gorm.Session{}).
		Select("source, count(*) as count").
		Group("source").
		Scan(&bySource).Error; err != nil {
		return nil, err
	}
	for _, s := range bySource {
		if s.Source != "" {
			stats.BySource[s.Source] = s.Count
		}
	}

	return stats, nil
}

// Close closes the database connection
func (r *SQLiteAcquisitionRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SourceDomain returns the registrable domain a locator points at, "magnet" for
// magnet URIs and "local" for descriptor paths.
func SourceDomain(kind domain.LocatorKind, locator string) string {
	if kind == domain.LocatorMagnet {
		return "magnet"
	}

	raw := locator
	if strings.HasPrefix(strings.ToLower(raw), "www.") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		if kind == domain.LocatorTorrent {
			return "local"
		}
		return ""
	}

	host := strings.ToLower(u.Hostname())
	if etld1, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
		return etld1
	}
	return host
}
