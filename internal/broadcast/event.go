package broadcast

import "time"

// EventType names a published event.
type EventType string

const (
	EventQueueJoined         EventType = "queue_joined"
	EventQueueCancelled      EventType = "queue_cancelled"
	EventQueueReordered      EventType = "queue_reordered"
	EventQueueExpired        EventType = "queue_expired"
	EventYourTurn            EventType = "your_turn"
	EventUsageStarted        EventType = "usage_started"
	EventRestStarted         EventType = "rest_started"
	EventNextSetStarted      EventType = "next_set_started"
	EventRestSkipped         EventType = "rest_skipped"
	EventWorkoutCompleted    EventType = "workout_completed"
	EventWorkoutStopped      EventType = "workout_stopped"
	EventWorkoutForceStopped EventType = "workout_force_stopped"
	EventETAUpdated          EventType = "eta_updated"
)

// Event is the tagged payload delivered to observers.
type Event struct {
	Type        EventType      `json:"type"`
	EquipmentID int64          `json:"equipmentId,omitempty"`
	UserID      int64          `json:"userId,omitempty"`
	Data        map[string]any `json:"data,omitempty"`
	At          time.Time      `json:"at"`
}

// NewEvent stamps an event with the current time.
func NewEvent(typ EventType, equipmentID, userID int64, data map[string]any) Event {
	return Event{
		Type:        typ,
		EquipmentID: equipmentID,
		UserID:      userID,
		Data:        data,
		At:          time.Now().UTC(),
	}
}
