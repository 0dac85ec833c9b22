package model

import "time"

// PushSubscription holds a browser push endpoint registered by a user. It backs
// the persisted-notification path when the user has no live event stream.
type PushSubscription struct {
	Endpoint  string    `gorm:"primaryKey"`
	UserID    int64     `gorm:"not null;index"`
	P256DH    string    `gorm:"column:p256dh;not null"`
	Auth      string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`
}
