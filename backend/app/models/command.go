package models

import "time"

// Command is the durable operator-command queue. The fetch path only
// returns pending rows and resolve is a conditional update, so a command is
// executed at most once even under duplicate delivery.
type Command struct {
	ID         string `gorm:"primaryKey;size:64"`
	DeviceCode string `gorm:"size:32;index;not null"`
	Type       string `gorm:"size:32;not null"`
	Payload    string `gorm:"type:longtext"` // JSON argument
	Status     string `gorm:"size:32;index"` // pending,executed,failed
	Error      string `gorm:"size:512"`
	CreatedAt  time.Time
	ExecutedAt *time.Time
}
