package repo

import (
	"time"

	"gorm.io/gorm"

	"rynx/backend/app/models"
)

type CommandRepository struct{ db *gorm.DB }

func NewCommandRepository(db *gorm.DB) *CommandRepository { return &CommandRepository{db: db} }

func (r *CommandRepository) Create(c *models.Command) error { return r.db.Create(c).Error }

func (r *CommandRepository) FindByID(id string) (*models.Command, error) {
	var c models.Command
	if err := r.db.Where("id = ?", id).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// PendingByDevice returns only commands the agent has not resolved yet;
// re-delivery of resolved commands is filtered out here.
func (r *CommandRepository) PendingByDevice(code string) ([]models.Command, error) {
	var cmds []models.Command
	err := r.db.Where("device_code = ? AND status = ?", code, "pending").
		Order("created_at ASC").Find(&cmds).Error
	if err != nil {
		return nil, err
	}
	return cmds, nil
}

// Resolve writes a terminal status once; resolving an already-resolved
// command affects zero rows and is reported as such.
func (r *CommandRepository) Resolve(id, status, errMsg string) (int64, error) {
	now := time.Now()
	res := r.db.Model(&models.Command{}).
		Where("id = ? AND status = ?", id, "pending").
		Updates(map[string]any{"status": status, "error": errMsg, "executed_at": &now})
	return res.RowsAffected, res.Error
}
