// Package scans records the local scan history: every decoded barcode and what
// became of it.
//
// # Usage
//
//	repo := scans.NewRepository(db)
//	err := repo.Record(ctx, entities.ScanRecord{Barcode: "9780134190440", Outcome: entities.ScanOutcomeAdded})
package scans

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/mrlokans/shelfscan/internal/entities"
)

const defaultLimit = 50

// Repository handles scan history database operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new scan history repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Record appends one scan to the history.
func (r *Repository) Record(ctx context.Context, rec entities.ScanRecord) error {
	if rec.ScannedAt.IsZero() {
		rec.ScannedAt = time.Now()
	}
	return r.db.WithContext(ctx).Create(&rec).Error
}

// Recent returns the latest scans, newest first.
func (r *Repository) Recent(ctx context.Context, limit int) ([]entities.ScanRecord, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	var records []entities.ScanRecord
	err := r.db.WithContext(ctx).Order("scanned_at DESC, id DESC").Limit(limit).Find(&records).Error
	return records, err
}

// CountByOutcome summarizes the history.
func (r *Repository) CountByOutcome(ctx context.Context) (map[entities.ScanOutcome]int64, error) {
	var rows []struct {
		Outcome entities.ScanOutcome
		Count   int64
	}
	err := r.db.WithContext(ctx).Model(&entities.ScanRecord{}).
		Select("outcome, COUNT(*) as count").
		Group("outcome").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[entities.ScanOutcome]int64, len(rows))
	for _, row := range rows {
		counts[row.Outcome] = row.Count
	}
	return counts, nil
}

// DeleteOlderThan prunes history entries older than the cutoff.
func (r *Repository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Where("scanned_at < ?", cutoff).Delete(&entities.ScanRecord{})
	return result.RowsAffected, result.Error
}
