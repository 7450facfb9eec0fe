package repo

import (
	"time"

	"gorm.io/gorm"

	"rynx/backend/app/models"
)

type SessionRepository struct{ db *gorm.DB }

func NewSessionRepository(db *gorm.DB) *SessionRepository { return &SessionRepository{db: db} }

func (r *SessionRepository) Create(s *models.Session) error { return r.db.Create(s).Error }

func (r *SessionRepository) FindByID(id string) (*models.Session, error) {
	var s models.Session
	if err := r.db.Where("id = ?", id).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *SessionRepository) ActiveByDevice(deviceID uint) (*models.Session, error) {
	var s models.Session
	if err := r.db.Where("device_id = ? AND status = ?", deviceID, "active").First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// PatchActive updates the live counters. The guard on status keeps a
// terminal session immutable even against a late reconcile write.
func (r *SessionRepository) PatchActive(id string, fields map[string]any) (int64, error) {
	res := r.db.Model(&models.Session{}).
		Where("id = ? AND status = ?", id, "active").
		Updates(fields)
	return res.RowsAffected, res.Error
}

// End moves an active session to a terminal status exactly once.
func (r *SessionRepository) End(id, status string) (int64, error) {
	now := time.Now()
	res := r.db.Model(&models.Session{}).
		Where("id = ? AND status = ?", id, "active").
		Updates(map[string]any{"status": status, "ended_at": &now})
	return res.RowsAffected, res.Error
}
