package autoupdate

import (
	"time"

	"equipment-queue-backend/internal/broadcast"
	"equipment-queue-backend/internal/eta"
	"equipment-queue-backend/internal/store"
)

// QueueETA is one waiting user's estimate.
type QueueETA struct {
	EntryID  int64  `json:"entryId"`
	UserID   int64  `json:"userId"`
	Position int    `json:"position"`
	Status   string `json:"status"`
	Minutes  int    `json:"etaMinutes"`
}

// Estimate is the ETA Engine output for one piece of equipment.
type Estimate struct {
	EquipmentID      int64      `json:"equipmentId"`
	Available        bool       `json:"available"`
	RemainingMinutes int        `json:"remainingMinutes"`
	QueueLength      int        `json:"queueLength"`
	Queue            []QueueETA `json:"queue"`
	ComputedAt       time.Time  `json:"computedAt"`
}

// Compute runs the ETA Engine over a snapshot.
func Compute(snap store.Snapshot, now time.Time) Estimate {
	head := eta.EstimateRemaining(snap.Usage, now)
	waits := eta.EstimateQueueWaits(head, snap.Queue)

	queue := make([]QueueETA, len(snap.Queue))
	for i, e := range snap.Queue {
		queue[i] = QueueETA{
			EntryID:  e.ID,
			UserID:   e.UserID,
			Position: e.QueuePosition,
			Status:   string(e.Status),
			Minutes:  waits[i],
		}
	}

	return Estimate{
		EquipmentID:      snap.EquipmentID,
		Available:        snap.Idle(),
		RemainingMinutes: head,
		QueueLength:      len(snap.Queue),
		Queue:            queue,
		ComputedAt:       now.UTC(),
	}
}

// Event wraps an estimate as an eta_updated broadcast.
func (e Estimate) Event(source string) broadcast.Event {
	return broadcast.NewEvent(broadcast.EventETAUpdated, e.EquipmentID, 0, map[string]any{
		"source":           source,
		"available":        e.Available,
		"remainingMinutes": e.RemainingMinutes,
		"queueLength":      e.QueueLength,
		"queue":            e.Queue,
	})
}
