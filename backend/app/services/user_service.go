package services

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"rynx/backend/app/models"
	"rynx/backend/app/repo"
)

type UserService struct {
	users *repo.UserRepository
}

func NewUserService(users *repo.UserRepository) *UserService {
	return &UserService{users: users}
}

func (s *UserService) Authenticate(username, password string) (*models.User, error) {
	u, err := s.users.FindByUsername(username)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUnauthorized
	}
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, ErrUnauthorized
	}
	return u, nil
}

// EnsureAdmin seeds the admin account on first boot so a fresh install is
// immediately operable from the console.
func (s *UserService) EnsureAdmin(username, password string) error {
	_, err := s.users.FindByUsername(username)
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return s.users.Create(&models.User{Username: username, PasswordHash: string(hash), Role: "admin"})
}
