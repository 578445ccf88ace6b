// Package kv provides the durable key/value store backed by the local database.
//
// # Usage
//
//	repo := kv.NewRepository(db)
//	value, ok, err := repo.Get(ctx, "session")
package kv

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mrlokans/shelfscan/internal/entities"
	"github.com/mrlokans/shelfscan/internal/kvstore"
)

var _ kvstore.Store = (*Repository)(nil)

// Repository handles all key/value database operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new key/value repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Get returns the value stored under key. A missing key is not an error.
func (r *Repository) Get(ctx context.Context, key string) (string, bool, error) {
	var entry entities.KVEntry
	err := r.db.WithContext(ctx).Where("key = ?", key).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return entry.Value, true, nil
}

// Set replaces the value under key in a single upsert statement, so readers
// only ever see the previous or the new value.
func (r *Repository) Set(ctx context.Context, key, value string) error {
	now := time.Now()
	entry := entities.KVEntry{
		Key:       key,
		Value:     value,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&entry).Error
}

// Remove deletes key. Removing a missing key is a no-op.
func (r *Repository) Remove(ctx context.Context, key string) error {
	return r.db.WithContext(ctx).Where("key = ?", key).Delete(&entities.KVEntry{}).Error
}

// Keys lists every stored key.
func (r *Repository) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	err := r.db.WithContext(ctx).Model(&entities.KVEntry{}).Order("key").Pluck("key", &keys).Error
	return keys, err
}
