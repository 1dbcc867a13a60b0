package cache

import (
	"context"
	"errors"
	"strconv"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/charlesng35/runmate/internal/models"
)

// DatabaseStore keeps entries in the cache_entries table of the primary
// database. Expired entries are hidden on read and removed by PurgeExpired.
type DatabaseStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewDatabaseStore returns nil for a nil db.
func NewDatabaseStore(db *gorm.DB) *DatabaseStore {
	if db == nil {
		return nil
	}
	return &DatabaseStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (s *DatabaseStore) session(ctx context.Context) (*gorm.DB, error) {
	if s == nil || s.db == nil {
		return nil, ErrNotInitialised
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return s.db.WithContext(ctx), nil
}

// IncrementWithTTL bumps a fixed-window counter. The window restarts once the
// previous one has expired.
func (s *DatabaseStore) IncrementWithTTL(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	db, err := s.session(ctx)
	if err != nil {
		return 0, 0, err
	}
	if window <= 0 {
		window = defaultWindow
	}

	key = normalizeKey(key)
	now := s.now()
	entry := models.CacheEntry{Key: key}

	err = db.Transaction(func(tx *gorm.DB) error {
		findErr := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Take(&entry, "key = ?", key).Error
		fresh := errors.Is(findErr, gorm.ErrRecordNotFound)
		if findErr != nil && !fresh {
			return findErr
		}

		if fresh || !entry.ExpiresAt.After(now) {
			entry.Value = []byte("1")
			entry.ExpiresAt = now.Add(window)
		} else {
			count, _ := strconv.ParseInt(string(entry.Value), 10, 64)
			entry.Value = strconv.AppendInt(nil, count+1, 10)
		}

		if fresh {
			return tx.Create(&entry).Error
		}
		return tx.Save(&entry).Error
	})
	if err != nil {
		return 0, 0, err
	}

	count, _ := strconv.ParseInt(string(entry.Value), 10, 64)
	return count, entry.ExpiresAt.Sub(now), nil
}

// Set upserts key. A non-positive ttl stores the value without expiry.
func (s *DatabaseStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	db, err := s.session(ctx)
	if err != nil {
		return err
	}

	entry := models.CacheEntry{Key: normalizeKey(key), Value: value}
	if ttl > 0 {
		entry.ExpiresAt = s.now().Add(ttl)
	}

	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "expires_at", "updated_at"}),
	}).Create(&entry).Error
}

// Get reports found=false for missing and expired keys. An expired key is
// deleted on the way out.
func (s *DatabaseStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	db, err := s.session(ctx)
	if err != nil {
		return nil, false, err
	}

	var entry models.CacheEntry
	switch err := db.Take(&entry, "key = ?", normalizeKey(key)).Error; {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, false, nil
	case err != nil:
		return nil, false, err
	}

	if !entry.ExpiresAt.IsZero() && s.now().After(entry.ExpiresAt) {
		_ = s.Delete(ctx, key)
		return nil, false, nil
	}
	return entry.Value, true, nil
}

// Delete removes keys; missing keys are not an error.
func (s *DatabaseStore) Delete(ctx context.Context, keys ...string) error {
	db, err := s.session(ctx)
	if err != nil || len(keys) == 0 {
		return err
	}
	return db.Where("key IN ?", normalizeKeys(keys, normalizeKey)).Delete(&models.CacheEntry{}).Error
}

// PurgeExpired deletes entries that expired before now and reports how many
// went. Entries without expiry stay.
func (s *DatabaseStore) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	db, err := s.session(ctx)
	if err != nil {
		return 0, err
	}
	result := db.Where("expires_at > ? AND expires_at < ?", time.Time{}, now.UTC()).Delete(&models.CacheEntry{})
	return result.RowsAffected, result.Error
}
