package database

import (
	"strings"
	"time"

	"github.com/panicsave/panicsave/internal/models"

	"github.com/pkg/errors"

	"gorm.io/gorm"
)

// Repository handles all database operations for the save journal
type Repository struct {
	db *DB
}

// NewRepository creates a new repository instance
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// CreateSaveRecord inserts a new save record into the database
func (r *Repository) CreateSaveRecord(record *models.SaveRecord) error {
	record.TargetApp = strings.ToLower(record.TargetApp)
	result := r.db.Create(record)
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to insert save record")
	}
	return nil
}

// GetByID retrieves a save record by its ID
func (r *Repository) GetByID(id uint) (*models.SaveRecord, error) {
	var record models.SaveRecord
	result := r.db.First(&record, id)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, gorm.ErrRecordNotFound
		}
		return nil, errors.Wrap(result.Error, "failed to get save record")
	}
	return &record, nil
}

// GetSavesSince retrieves save records since a given time, newest first.
// A limit of zero or less returns every record.
func (r *Repository) GetSavesSince(since time.Time, limit int) ([]*models.SaveRecord, error) {
	var records []*models.SaveRecord
	query := r.db.Where("timestamp >= ?", since).Order("timestamp DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	if result := query.Find(&records); result.Error != nil {
		return nil, errors.Wrap(result.Error, "failed to query save records")
	}

	return records, nil
}

// GetSaveSummarySince returns save counts per target application since a given time
func (r *Repository) GetSaveSummarySince(since time.Time) ([]models.SaveSummary, error) {
	var summaries []models.SaveSummary

	result := r.db.Model(&models.SaveRecord{}).
		Select("target_app, COUNT(*) as save_count, " +
			"SUM(CASE WHEN success THEN 0 ELSE 1 END) as failure_count, " +
			"SUM(duration_ms) as total_ms").
		Where("timestamp >= ?", since).
		Group("target_app").
		Order("save_count DESC, target_app ASC").
		Scan(&summaries)

	if result.Error != nil {
		return nil, errors.Wrap(result.Error, "failed to query save summary")
	}

	return summaries, nil
}

// GetLatestSave retrieves the most recent save record, or nil when the journal is empty
func (r *Repository) GetLatestSave() (*models.SaveRecord, error) {
	var record models.SaveRecord
	result := r.db.Order("timestamp DESC").First(&record)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, errors.Wrap(result.Error, "failed to get latest save")
	}
	return &record, nil
}

// DeleteOldSaves deletes records older than a specified date (soft delete)
func (r *Repository) DeleteOldSaves(before time.Time) (int64, error) {
	result := r.db.Where("timestamp < ?", before).Delete(&models.SaveRecord{})
	if result.Error != nil {
		return 0, errors.Wrap(result.Error, "failed to delete old saves")
	}
	return result.RowsAffected, nil
}

// CreateErrorLog inserts a new error log into the database
func (r *Repository) CreateErrorLog(errorLog *models.ErrorLog) error {
	result := r.db.Create(errorLog)
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to insert error log")
	}
	return nil
}

// GetErrorsSince retrieves error logs since a given time, newest first
func (r *Repository) GetErrorsSince(since time.Time) ([]*models.ErrorLog, error) {
	var logs []*models.ErrorLog
	result := r.db.Where("timestamp >= ?", since).Order("timestamp DESC").Find(&logs)
	if result.Error != nil {
		return nil, errors.Wrap(result.Error, "failed to query error logs")
	}
	return logs, nil
}

// Clear removes all save records and error logs from the database
func (r *Repository) Clear() error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM save_records").Error; err != nil {
			return errors.Wrap(err, "failed to clear save records")
		}
		if err := tx.Exec("DELETE FROM error_logs").Error; err != nil {
			return errors.Wrap(err, "failed to clear error logs")
		}
		return nil
	})
}
