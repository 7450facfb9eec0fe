package repo

import (
	"time"

	"gorm.io/gorm"

	"rynx/backend/app/models"
)

type DeviceRepository struct{ db *gorm.DB }

func NewDeviceRepository(db *gorm.DB) *DeviceRepository { return &DeviceRepository{db: db} }

func (r *DeviceRepository) FindByCode(code string) (*models.Device, error) {
	var d models.Device
	if err := r.db.Where("code = ?", code).First(&d).Error; err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *DeviceRepository) Create(d *models.Device) error { return r.db.Create(d).Error }

func (r *DeviceRepository) ListAll() ([]models.Device, error) {
	var out []models.Device
	if err := r.db.Order("code ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// Patch applies a partial update to the device row.
func (r *DeviceRepository) Patch(code string, fields map[string]any) error {
	return r.db.Model(&models.Device{}).Where("code = ?", code).Updates(fields).Error
}

func (r *DeviceRepository) Heartbeat(code string) error {
	return r.db.Model(&models.Device{}).Where("code = ?", code).
		Update("last_heartbeat", time.Now()).Error
}
