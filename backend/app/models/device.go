package models

import "time"

type Branch struct {
	ID        uint   `gorm:"primaryKey"`
	Name      string `gorm:"size:255;not null"`
	CreatedAt time.Time
}

type Rate struct {
	ID          uint    `gorm:"primaryKey"`
	Name        string  `gorm:"size:255;not null"`
	UnitPrice   float64 `gorm:"not null"`
	UnitMinutes int     `gorm:"not null"`
	CreatedAt   time.Time
}

// Device is created implicitly on first registration. The agent mutates
// status/heartbeat; only operators mutate the assignment.
type Device struct {
	ID            uint   `gorm:"primaryKey"`
	Code          string `gorm:"uniqueIndex;size:32;not null"`
	BranchID      *uint  `gorm:"index"`
	RateID        *uint
	Status        string `gorm:"size:32;index"` // pending,online,offline,in_use
	IsLocked      bool
	LastHeartbeat time.Time
	Hostname      string `gorm:"size:255"`
	OSName        string `gorm:"size:128"`
	Arch          string `gorm:"size:64"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
