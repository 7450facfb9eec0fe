package repo

import (
	"gorm.io/gorm"

	"rynx/backend/app/models"
)

type RateRepository struct{ db *gorm.DB }

func NewRateRepository(db *gorm.DB) *RateRepository { return &RateRepository{db: db} }

func (r *RateRepository) FindByID(id uint) (*models.Rate, error) {
	var rate models.Rate
	if err := r.db.First(&rate, id).Error; err != nil {
		return nil, err
	}
	return &rate, nil
}

func (r *RateRepository) Create(rate *models.Rate) error { return r.db.Create(rate).Error }

func (r *RateRepository) CreateBranch(b *models.Branch) error { return r.db.Create(b).Error }
