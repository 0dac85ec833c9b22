package store

import (
	"errors"

	"equipment-queue-backend/internal/model"
)

var (
	// ErrEquipmentNotFound is returned when the locked equipment row does not exist.
	ErrEquipmentNotFound = errors.New("equipment not found")
	// ErrNotFound is returned when a usage record or queue entry does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a partial unique index rejects a write,
	// i.e. a concurrent writer already holds the slot.
	ErrDuplicate = errors.New("duplicate active record")
)

// Snapshot is the current occupant and active line of one piece of equipment.
type Snapshot struct {
	EquipmentID int64
	Usage       *model.UsageRecord
	Queue       []model.QueueEntry
}

// Idle reports whether nobody occupies the equipment.
func (s Snapshot) Idle() bool {
	return s.Usage == nil
}

// Empty reports whether nobody is waiting.
func (s Snapshot) Empty() bool {
	return len(s.Queue) == 0
}

// Notified returns the entry currently holding a claim notification, if any.
func (s Snapshot) Notified() *model.QueueEntry {
	for i := range s.Queue {
		if s.Queue[i].Status == model.QueueNotified {
			return &s.Queue[i]
		}
	}
	return nil
}
