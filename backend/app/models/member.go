package models

import "time"

type Member struct {
	ID        uint    `gorm:"primaryKey"`
	Username  string  `gorm:"uniqueIndex;size:191;not null"`
	PINHash   string  `gorm:"size:255;not null"`
	Credits   float64 `gorm:"not null;default:0"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
