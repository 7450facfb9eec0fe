// Package store is the agent's local sqlite state: the device identity
// written once at setup, and a journal of command outcomes that survives
// restarts so a re-delivered command is never executed twice.
package store

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type Identity struct {
	ID        uint   `gorm:"primaryKey"`
	Code      string `gorm:"uniqueIndex;size:32;not null"`
	Token     string `gorm:"size:8192"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CommandRecord is one terminal command outcome. Presence of a row means the
// command must not run again.
type CommandRecord struct {
	ID         string `gorm:"primaryKey;size:64"`
	Status     string `gorm:"size:32"`
	Error      string `gorm:"size:512"`
	ExecutedAt time.Time
}

type Store struct{ db *gorm.DB }

func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&Identity{}, &CommandRecord{}); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// LoadIdentity returns the persisted identity, or nil when none exists yet.
func (s *Store) LoadIdentity() (*Identity, error) {
	var id Identity
	err := s.db.First(&id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func (s *Store) SaveIdentity(id *Identity) error {
	var existing Identity
	if err := s.db.First(&existing).Error; err == nil {
		id.ID = existing.ID
		return s.db.Save(id).Error
	}
	return s.db.Create(id).Error
}

// Seen returns the journaled outcome of a command. seen is false when no
// terminal record exists yet.
func (s *Store) Seen(commandID string) (status, errMsg string, seen bool, err error) {
	var rec CommandRecord
	e := s.db.Where("id = ?", commandID).First(&rec).Error
	if errors.Is(e, gorm.ErrRecordNotFound) {
		return "", "", false, nil
	}
	if e != nil {
		return "", "", false, e
	}
	return rec.Status, rec.Error, true, nil
}

func (s *Store) Journal(commandID, status, errMsg string) error {
	rec := CommandRecord{ID: commandID, Status: status, Error: errMsg, ExecutedAt: time.Now()}
	// re-delivery after journaling is a no-op
	return s.db.Where("id = ?", commandID).FirstOrCreate(&rec).Error
}
