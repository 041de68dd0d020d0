package capture

import (
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/snapwall-app/snapwall/internal/models"
)

// ErrStorageUnavailable means the durable store cannot serve the request
// (missing file, quota, locked database). Callers degrade to holding the
// image in volatile memory with a user-visible warning; capture itself
// must not block.
var ErrStorageUnavailable = errors.New("local capture storage unavailable")

// Store is the durable, device-local queue of captured-but-unsynced
// images: an append log keyed by auto-incrementing id. The sqlite handle
// is opened once and owned exclusively by the store; rows are deleted
// only here, after a confirmed upload acknowledgment.
type Store struct {
	db     *gorm.DB
	sealer *Sealer
}

// Option configures a Store at open time
type Option func(*Store)

// WithSealer enables at-rest encryption of payloads
func WithSealer(s *Sealer) Option {
	return func(st *Store) { st.sealer = s }
}

// Open opens (or creates) the capture database at path
func Open(path string, opts ...Option) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	if err := db.AutoMigrate(&models.CapturedImage{}, &models.CachedCredential{}); err != nil {
		return nil, fmt.Errorf("%w: migrate: %v", ErrStorageUnavailable, err)
	}

	st := &Store{db: db}
	for _, opt := range opts {
		opt(st)
	}

	log.Printf("📦 Capture store open: %s (sealed=%v)", path, st.sealer != nil)
	return st, nil
}

// DB exposes the underlying handle for the credential cache table. The
// capture rows themselves stay private to the store.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Enqueue appends a captured payload and returns its id. The row is
// durable before Enqueue returns; there is no observable success without
// persistence.
func (s *Store) Enqueue(payload []byte) (uint, error) {
	if len(payload) == 0 {
		return 0, errors.New("empty payload")
	}

	row := models.CapturedImage{
		Payload:    payload,
		CapturedAt: time.Now().UTC(),
	}
	if s.sealer != nil {
		sealed, err := s.sealer.Seal(payload)
		if err != nil {
			return 0, fmt.Errorf("seal payload: %w", err)
		}
		row.Payload = sealed
		row.Sealed = true
	}

	if err := s.db.Create(&row).Error; err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return row.ID, nil
}

// List returns all buffered images in insertion order, with sealed
// payloads opened. Read-only; calling it repeatedly is safe.
func (s *Store) List() ([]models.CapturedImage, error) {
	var rows []models.CapturedImage
	if err := s.db.Order("id asc").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	for i := range rows {
		if !rows[i].Sealed {
			continue
		}
		if s.sealer == nil {
			return nil, errors.New("sealed capture present but no seal key configured")
		}
		plain, err := s.sealer.Open(rows[i].Payload)
		if err != nil {
			return nil, fmt.Errorf("open sealed capture %d: %w", rows[i].ID, err)
		}
		rows[i].Payload = plain
	}
	return rows, nil
}

// Count returns the queue depth
func (s *Store) Count() (int64, error) {
	var n int64
	if err := s.db.Model(&models.CapturedImage{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return n, nil
}

// Remove deletes the entry with that id. Deliberately a no-op when the
// id is already gone: upload acknowledgments may race with local clears.
func (s *Store) Remove(id uint) error {
	if err := s.db.Delete(&models.CapturedImage{}, id).Error; err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}

// Close releases the sqlite handle
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
