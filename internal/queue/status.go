package queue

import (
	"context"
	"strconv"
	"time"

	"equipment-queue-backend/internal/apperr"
	"equipment-queue-backend/internal/autoupdate"
	"equipment-queue-backend/internal/model"
	"equipment-queue-backend/internal/ratelimit"
	"equipment-queue-backend/internal/store"
)

// Occupant describes the current holder of a piece of equipment.
type Occupant struct {
	UserID           int64           `json:"userId"`
	SetStatus        model.SetStatus `json:"setStatus"`
	CurrentSet       int             `json:"currentSet"`
	TotalSets        int             `json:"totalSets"`
	RestSeconds      int             `json:"restSeconds"`
	RemainingMinutes int             `json:"remainingMinutes"`
	StartedAt        time.Time       `json:"startedAt"`
	EstimatedEndAt   time.Time       `json:"estimatedEndAt"`
}

// EquipmentStatus is the read model of one piece of equipment. The My* fields
// are nil for anonymous viewers.
type EquipmentStatus struct {
	EquipmentID int64                 `json:"equipmentId"`
	Name        string                `json:"name"`
	Category    string                `json:"category"`
	Available   bool                  `json:"available"`
	Occupant    *Occupant             `json:"occupant"`
	QueueLength int                   `json:"queueLength"`
	Queue       []autoupdate.QueueETA `json:"queue"`
	ComputedAt  time.Time             `json:"computedAt"`

	MyPosition *int   `json:"myPosition"`
	MyETA      *int   `json:"myEtaMinutes"`
	MyEntryID  *int64 `json:"myEntryId"`
	IsOccupant *bool  `json:"isOccupant"`
}

// Status returns the live state of the given equipment, or of all equipment
// when ids is empty. Unknown ids are skipped.
func (c *Coordinator) Status(ctx context.Context, ids []int64, viewer *int64) ([]EquipmentStatus, error) {
	equipment, err := c.store.ListEquipment(ctx, ids)
	if err != nil {
		return nil, classify(err, "failed to list equipment")
	}

	statuses := make([]EquipmentStatus, 0, len(equipment))
	for _, eq := range equipment {
		snap, err := c.store.Snapshot(ctx, eq.ID)
		if err != nil {
			return nil, classify(err, "failed to load equipment state")
		}
		c.ensureMonitored(snap)
		statuses = append(statuses, buildStatus(eq, snap, autoupdate.Compute(snap, c.now()), viewer))
	}
	return statuses, nil
}

// StatusOne is Status for a single id; unknown equipment is NotFound.
func (c *Coordinator) StatusOne(ctx context.Context, equipmentID int64, viewer *int64) (*EquipmentStatus, error) {
	statuses, err := c.Status(ctx, []int64{equipmentID}, viewer)
	if err != nil {
		return nil, err
	}
	if len(statuses) == 0 {
		return nil, apperr.NotFound("equipment_not_found", "equipment not found")
	}
	return &statuses[0], nil
}

type refreshed struct {
	equipment model.Equipment
	snap      store.Snapshot
	estimate  autoupdate.Estimate
}

// RefreshETA recomputes and broadcasts the ETA on the caller's request.
// Requests are throttled per user; concurrent refreshes of the same equipment
// share one computation and one broadcast.
func (c *Coordinator) RefreshETA(ctx context.Context, equipmentID, userID int64) (*EquipmentStatus, error) {
	if res := c.limiter.Check(userID); !res.Allowed {
		if res.Reason == ratelimit.ReasonCooldown {
			return nil, apperr.RateLimited("refresh_cooldown", "please wait before refreshing again", res.Remaining)
		}
		return nil, apperr.RateLimited("refresh_quota", "too many refresh requests", res.Remaining)
	}

	v, err, _ := c.refresh.Do(strconv.FormatInt(equipmentID, 10), func() (any, error) {
		equipment, err := c.store.ListEquipment(ctx, []int64{equipmentID})
		if err != nil {
			return nil, classify(err, "failed to load equipment")
		}
		if len(equipment) == 0 {
			return nil, apperr.NotFound("equipment_not_found", "equipment not found")
		}
		snap, err := c.store.Snapshot(ctx, equipmentID)
		if err != nil {
			return nil, classify(err, "failed to load equipment state")
		}
		est := autoupdate.Compute(snap, c.now())
		c.broadcast(equipmentID, est.Event("manual"))
		c.ensureMonitored(snap)
		return refreshed{equipment: equipment[0], snap: snap, estimate: est}, nil
	})
	if err != nil {
		return nil, err
	}

	r := v.(refreshed)
	status := buildStatus(r.equipment, r.snap, r.estimate, &userID)
	return &status, nil
}

// ensureMonitored restarts a lost auto-update handle for active equipment.
func (c *Coordinator) ensureMonitored(snap store.Snapshot) {
	if !snap.Idle() {
		c.scheduler.StartAutoUpdate(snap.EquipmentID)
	}
}

func buildStatus(eq model.Equipment, snap store.Snapshot, est autoupdate.Estimate, viewer *int64) EquipmentStatus {
	status := EquipmentStatus{
		EquipmentID: eq.ID,
		Name:        eq.Name,
		Category:    eq.Category,
		Available:   est.Available,
		QueueLength: est.QueueLength,
		Queue:       est.Queue,
		ComputedAt:  est.ComputedAt,
	}
	if u := snap.Usage; u != nil {
		status.Occupant = &Occupant{
			UserID:           u.UserID,
			SetStatus:        u.SetStatus,
			CurrentSet:       u.CurrentSet,
			TotalSets:        u.TotalSets,
			RestSeconds:      u.RestSeconds,
			RemainingMinutes: est.RemainingMinutes,
			StartedAt:        u.StartedAt,
			EstimatedEndAt:   u.EstimatedEndAt,
		}
	}

	if viewer == nil {
		return status
	}
	isOccupant := snap.Usage != nil && snap.Usage.UserID == *viewer
	status.IsOccupant = &isOccupant
	for i := range est.Queue {
		if est.Queue[i].UserID != *viewer {
			continue
		}
		pos, wait, id := est.Queue[i].Position, est.Queue[i].Minutes, est.Queue[i].EntryID
		status.MyPosition, status.MyETA, status.MyEntryID = &pos, &wait, &id
		break
	}
	return status
}
