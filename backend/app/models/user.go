package models

import "time"

// User is an operator account for the console and admin endpoints.
type User struct {
	ID           uint   `gorm:"primaryKey"`
	Username     string `gorm:"uniqueIndex;size:191;not null"`
	PasswordHash string `gorm:"size:255;not null"`
	Role         string `gorm:"size:32;not null"` // admin
	CreatedAt    time.Time
}
