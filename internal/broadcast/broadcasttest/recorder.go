// Package broadcasttest provides a Gateway that records what it was asked to send.
package broadcasttest

import (
	"sync"

	"equipment-queue-backend/internal/broadcast"
)

// Sent is one recorded publication.
type Sent struct {
	UserID      int64
	EquipmentID int64
	Event       broadcast.Event
}

// Recorder implements broadcast.Gateway in memory.
type Recorder struct {
	mu     sync.Mutex
	direct []Sent
	rooms  []Sent
	// Online controls what SendToUser reports.
	Online bool
}

func (r *Recorder) SendToUser(userID int64, ev broadcast.Event) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.direct = append(r.direct, Sent{UserID: userID, EquipmentID: ev.EquipmentID, Event: ev})
	return r.Online
}

func (r *Recorder) BroadcastToRoom(equipmentID int64, ev broadcast.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rooms = append(r.rooms, Sent{EquipmentID: equipmentID, Event: ev})
}

// Direct returns a copy of the SendToUser calls.
func (r *Recorder) Direct() []Sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Sent(nil), r.direct...)
}

// Room returns a copy of the BroadcastToRoom calls.
func (r *Recorder) Room() []Sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Sent(nil), r.rooms...)
}

// RoomTypes lists the event types broadcast to equipmentID, in order.
func (r *Recorder) RoomTypes(equipmentID int64) []broadcast.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	var types []broadcast.EventType
	for _, s := range r.rooms {
		if s.EquipmentID == equipmentID {
			types = append(types, s.Event.Type)
		}
	}
	return types
}

// DirectTypes lists the event types sent to userID, in order.
func (r *Recorder) DirectTypes(userID int64) []broadcast.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	var types []broadcast.EventType
	for _, s := range r.direct {
		if s.UserID == userID {
			types = append(types, s.Event.Type)
		}
	}
	return types
}
