package models

import "time"

// Session belongs to exactly one device; at most one is active per device
// at a time. Once it reaches a terminal status it is immutable.
type Session struct {
	ID                   string `gorm:"primaryKey;size:64"`
	DeviceID             uint   `gorm:"index;not null"`
	MemberID             *uint  `gorm:"index"`
	Type                 string `gorm:"size:32;not null"` // guest,member
	Status               string `gorm:"size:32;index"`    // active,completed,terminated
	TimeRemainingSeconds *int64
	TotalSecondsUsed     int64
	StartedAt            time.Time
	EndedAt              *time.Time
}
