package model

import "time"

// UsageStatus is the coarse lifecycle of a usage attempt.
type UsageStatus string

const (
	UsageInUse     UsageStatus = "IN_USE"
	UsageCompleted UsageStatus = "COMPLETED"
)

// SetStatus tracks set/rest progress within a usage.
type SetStatus string

const (
	SetExercising     SetStatus = "EXERCISING"
	SetResting        SetStatus = "RESTING"
	SetCompleted      SetStatus = "COMPLETED"
	SetStopped        SetStatus = "STOPPED"
	SetForceCompleted SetStatus = "FORCE_COMPLETED"
)

// IsTerminal reports whether no further set transitions are possible.
func (s SetStatus) IsTerminal() bool {
	return s == SetCompleted || s == SetStopped || s == SetForceCompleted
}

// UsageRecord is one attempt by a user to occupy a piece of equipment.
// The partial unique indexes keep at most one IN_USE row per equipment and per user.
type UsageRecord struct {
	ID                  int64       `gorm:"primaryKey" json:"id"`
	EquipmentID         int64       `gorm:"not null;index;uniqueIndex:idx_usage_active_equipment,where:status = 'IN_USE'" json:"equipmentId"`
	UserID              int64       `gorm:"not null;index;uniqueIndex:idx_usage_active_user,where:status = 'IN_USE'" json:"userId"`
	Status              UsageStatus `gorm:"size:16;not null;index" json:"status"`
	SetStatus           SetStatus   `gorm:"size:16;not null" json:"setStatus"`
	TotalSets           int         `gorm:"not null" json:"totalSets"`
	CurrentSet          int         `gorm:"not null" json:"currentSet"`
	RestSeconds         int         `gorm:"not null" json:"restSeconds"`
	CurrentSetStartedAt time.Time   `gorm:"not null" json:"currentSetStartedAt"`
	RestStartedAt       *time.Time  `json:"restStartedAt"`
	StartedAt           time.Time   `gorm:"not null" json:"startedAt"`
	EndedAt             *time.Time  `json:"endedAt"`
	EstimatedEndAt      time.Time   `gorm:"not null" json:"estimatedEndAt"`
	CreatedAt           time.Time   `json:"-"`
	UpdatedAt           time.Time   `json:"-"`
}

// IsActive reports whether the record still holds its equipment.
func (u *UsageRecord) IsActive() bool {
	return u != nil && u.Status == UsageInUse
}
