package services

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"rynx/backend/app/models"
	"rynx/backend/app/repo"
	"rynx/protocol"
)

type MemberService struct {
	members *repo.MemberRepository
}

func NewMemberService(members *repo.MemberRepository) *MemberService {
	return &MemberService{members: members}
}

// Authenticate verifies a username/PIN pair. A wrong PIN and an unknown
// username both return ErrUnauthorized so the lockscreen cannot be used to
// enumerate accounts.
func (s *MemberService) Authenticate(username, pin string) (*models.Member, error) {
	m, err := s.members.FindByUsername(username)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUnauthorized
	}
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(m.PINHash), []byte(pin)) != nil {
		return nil, ErrUnauthorized
	}
	return m, nil
}

// Debit charges the member atomically. ErrInsufficientCredit means the
// balance could not cover the amount and nothing was deducted.
func (s *MemberService) Debit(id uint, amount float64) (*models.Member, error) {
	if amount <= 0 {
		return nil, ErrInvalid
	}
	n, err := s.members.Debit(id, amount)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		if _, ferr := s.members.FindByID(id); errors.Is(ferr, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, ErrInsufficientCredit
	}
	return s.members.FindByID(id)
}

// Create registers a member with a bcrypt-hashed PIN.
func (s *MemberService) Create(username, pin string, credits float64) (*models.Member, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	m := &models.Member{Username: username, PINHash: string(hash), Credits: credits}
	if err := s.members.Create(m); err != nil {
		return nil, err
	}
	return m, nil
}

// MemberToWire converts a stored member to its wire form. The PIN hash never
// crosses the wire.
func MemberToWire(m *models.Member) protocol.Member {
	return protocol.Member{ID: m.ID, Username: m.Username, Credits: m.Credits}
}
