package repo

import (
	"gorm.io/gorm"

	"rynx/backend/app/models"
)

type MemberRepository struct{ db *gorm.DB }

func NewMemberRepository(db *gorm.DB) *MemberRepository { return &MemberRepository{db: db} }

func (r *MemberRepository) Create(m *models.Member) error { return r.db.Create(m).Error }

func (r *MemberRepository) FindByID(id uint) (*models.Member, error) {
	var m models.Member
	if err := r.db.First(&m, id).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *MemberRepository) FindByUsername(username string) (*models.Member, error) {
	var m models.Member
	if err := r.db.Where("username = ?", username).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// Debit decrements the balance in one conditional UPDATE; zero rows means
// the balance could not cover the amount.
func (r *MemberRepository) Debit(id uint, amount float64) (int64, error) {
	res := r.db.Model(&models.Member{}).
		Where("id = ? AND credits >= ?", id, amount).
		Update("credits", gorm.Expr("credits - ?", amount))
	return res.RowsAffected, res.Error
}
