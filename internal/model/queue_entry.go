package model

import "time"

// QueueStatus is the lifecycle of a waiting-queue entry.
type QueueStatus string

const (
	QueueWaiting   QueueStatus = "WAITING"
	QueueNotified  QueueStatus = "NOTIFIED"
	QueueCompleted QueueStatus = "COMPLETED"
	QueueExpired   QueueStatus = "EXPIRED"
)

// ActiveQueueStatuses are the statuses that hold a position in line.
var ActiveQueueStatuses = []QueueStatus{QueueWaiting, QueueNotified}

// IsActive reports whether the status still holds a position in line.
func (s QueueStatus) IsActive() bool {
	return s == QueueWaiting || s == QueueNotified
}

// QueueEntry is one user waiting for a piece of equipment. Rows are never
// deleted; they leave the line by moving to COMPLETED or EXPIRED.
type QueueEntry struct {
	ID            int64       `gorm:"primaryKey" json:"id"`
	EquipmentID   int64       `gorm:"not null;index;uniqueIndex:idx_queue_active_user,where:status <> 'COMPLETED' AND status <> 'EXPIRED';uniqueIndex:idx_queue_active_position,where:status <> 'COMPLETED' AND status <> 'EXPIRED'" json:"equipmentId"`
	UserID        int64       `gorm:"not null;index;uniqueIndex:idx_queue_active_user,where:status <> 'COMPLETED' AND status <> 'EXPIRED'" json:"userId"`
	QueuePosition int         `gorm:"not null;uniqueIndex:idx_queue_active_position,where:status <> 'COMPLETED' AND status <> 'EXPIRED'" json:"queuePosition"`
	Status        QueueStatus `gorm:"size:16;not null;index" json:"status"`
	NotifiedAt    *time.Time  `json:"notifiedAt"`
	CreatedAt     time.Time   `json:"createdAt"`
	UpdatedAt     time.Time   `json:"updatedAt"`
}
