package queue

import (
	"context"
	"errors"
	"time"

	"equipment-queue-backend/internal/apperr"
	"equipment-queue-backend/internal/broadcast"
	"equipment-queue-backend/internal/eta"
	"equipment-queue-backend/internal/model"
	"equipment-queue-backend/internal/store"
)

const (
	MaxTotalSets   = 20
	MaxRestSeconds = 600
)

// StartUsage grants equipmentID to userID. When a line exists only its head may claim.
func (c *Coordinator) StartUsage(ctx context.Context, equipmentID, userID int64, totalSets, restSeconds int) (*model.UsageRecord, error) {
	if totalSets < 1 || totalSets > MaxTotalSets {
		return nil, apperr.Invalid("invalid_total_sets", "total_sets must be between 1 and 20")
	}
	if restSeconds < 0 || restSeconds > MaxRestSeconds {
		return nil, apperr.Invalid("invalid_rest_seconds", "rest_seconds must be between 0 and 600")
	}

	var (
		usage     *model.UsageRecord
		claimed   *model.QueueEntry
		remaining int
	)
	err := c.store.WithinEquipment(ctx, equipmentID, func(tx *store.Tx) error {
		active, err := tx.ActiveUsage()
		if err != nil {
			return err
		}
		if active != nil {
			if active.UserID == userID {
				return apperr.Conflict("already_using_this", "you are already using this equipment")
			}
			return apperr.Conflict("equipment_in_use", "equipment is in use by another user")
		}

		mine, err := tx.ActiveUsageByUser(userID)
		if err != nil {
			return err
		}
		if mine != nil {
			return apperr.Conflict("already_using_other", "you are already using other equipment")
		}

		line, err := tx.ActiveQueue()
		if err != nil {
			return err
		}
		if len(line) > 0 && line[0].UserID != userID {
			return apperr.Forbidden("not_queue_head", "another user is ahead of you in line")
		}

		now := c.now()
		usage = &model.UsageRecord{
			UserID:              userID,
			Status:              model.UsageInUse,
			SetStatus:           model.SetExercising,
			TotalSets:           totalSets,
			CurrentSet:          1,
			RestSeconds:         restSeconds,
			CurrentSetStartedAt: now,
			StartedAt:           now,
			EstimatedEndAt:      eta.PlannedEnd(now, totalSets, restSeconds),
		}
		if err := tx.CreateUsage(usage); err != nil {
			return err
		}

		if len(line) > 0 {
			claimed = &line[0]
			claimed.Status = model.QueueCompleted
			if err := tx.UpdateEntry(claimed); err != nil {
				return err
			}
			if remaining, err = tx.Reorder(); err != nil {
				return err
			}
		}
		return nil
	})
	if errors.Is(err, store.ErrDuplicate) {
		return nil, apperr.Conflict("usage_conflict", "another active usage was created concurrently")
	}
	if err != nil {
		return nil, classify(err, "failed to start usage")
	}

	c.scheduler.StartAutoUpdate(equipmentID)
	c.broadcast(equipmentID, broadcast.NewEvent(broadcast.EventUsageStarted, equipmentID, userID, usageData(usage)))
	if claimed != nil {
		c.broadcast(equipmentID, broadcast.NewEvent(broadcast.EventQueueReordered, equipmentID, 0, map[string]any{
			"claimedEntryId": claimed.ID,
			"queueLength":    remaining,
		}))
	}
	return usage, nil
}

// CompleteSet finishes the current set, entering rest or ending the workout.
func (c *Coordinator) CompleteSet(ctx context.Context, equipmentID, userID int64) (*model.UsageRecord, error) {
	var usage *model.UsageRecord
	err := c.store.WithinEquipment(ctx, equipmentID, func(tx *store.Tx) error {
		u, err := c.occupantRecord(tx, userID)
		if err != nil {
			return err
		}
		if u.SetStatus != model.SetExercising {
			return apperr.InvalidState("not_exercising", "the current set is not in progress")
		}

		now := c.now()
		if u.CurrentSet >= u.TotalSets {
			finish(u, model.SetCompleted, now)
		} else {
			u.SetStatus = model.SetResting
			u.RestStartedAt = &now
		}
		usage = u
		return tx.SaveUsage(u)
	})
	if err != nil {
		return nil, classify(err, "failed to complete set")
	}

	if usage.Status == model.UsageCompleted {
		c.released(usage, broadcast.EventWorkoutCompleted, nil)
		return usage, nil
	}

	c.broadcast(equipmentID, broadcast.NewEvent(broadcast.EventRestStarted, equipmentID, userID, usageData(usage)))
	c.scheduleRestEnd(usage)
	return usage, nil
}

// SkipRest ends the rest period now.
func (c *Coordinator) SkipRest(ctx context.Context, equipmentID, userID int64) (*model.UsageRecord, error) {
	var usage *model.UsageRecord
	err := c.store.WithinEquipment(ctx, equipmentID, func(tx *store.Tx) error {
		u, err := c.occupantRecord(tx, userID)
		if err != nil {
			return err
		}
		if u.SetStatus != model.SetResting {
			return apperr.InvalidState("not_resting", "you are not resting")
		}

		now := c.now()
		if u.CurrentSet+1 > u.TotalSets {
			finish(u, model.SetCompleted, now)
		} else {
			advance(u, now)
		}
		usage = u
		return tx.SaveUsage(u)
	})
	if err != nil {
		return nil, classify(err, "failed to skip rest")
	}

	if usage.Status == model.UsageCompleted {
		c.released(usage, broadcast.EventWorkoutCompleted, nil)
		return usage, nil
	}
	c.broadcast(equipmentID, broadcast.NewEvent(broadcast.EventRestSkipped, equipmentID, userID, usageData(usage)))
	return usage, nil
}

// StopUsage ends the workout early from any non-terminal set state.
func (c *Coordinator) StopUsage(ctx context.Context, equipmentID, userID int64) (*model.UsageRecord, error) {
	var usage *model.UsageRecord
	err := c.store.WithinEquipment(ctx, equipmentID, func(tx *store.Tx) error {
		u, err := tx.ActiveUsage()
		if err != nil {
			return err
		}
		if u == nil || u.UserID != userID {
			return apperr.NotFound("usage_not_found", "you are not using this equipment")
		}
		finish(u, model.SetStopped, c.now())
		usage = u
		return tx.SaveUsage(u)
	})
	if err != nil {
		return nil, classify(err, "failed to stop usage")
	}

	c.released(usage, broadcast.EventWorkoutStopped, map[string]any{"interrupted": true})
	return usage, nil
}

// occupantRecord returns the caller's IN_USE record on the locked equipment.
// A caller whose latest record already ended gets InvalidState, not NotFound,
// so a repeated completion is never mistaken for a missing workout.
func (c *Coordinator) occupantRecord(tx *store.Tx, userID int64) (*model.UsageRecord, error) {
	u, err := tx.ActiveUsage()
	if err != nil {
		return nil, err
	}
	if u != nil && u.UserID == userID {
		return u, nil
	}

	last, err := tx.LatestUsageForUser(userID)
	if err != nil {
		return nil, err
	}
	if last != nil && last.Status == model.UsageCompleted && u == nil {
		return nil, apperr.InvalidState("usage_finished", "this workout has already ended")
	}
	return nil, apperr.NotFound("usage_not_found", "you are not using this equipment")
}

// scheduleRestEnd arms the rest timer. At fire time the record is reloaded and
// only advanced if it is still resting on the same set.
func (c *Coordinator) scheduleRestEnd(u *model.UsageRecord) {
	equipmentID, usageID, set := u.EquipmentID, u.ID, u.CurrentSet
	c.after(time.Duration(u.RestSeconds)*time.Second, "rest_end", equipmentID, func(ctx context.Context) error {
		_, err := c.advanceAfterRest(ctx, equipmentID, usageID, set)
		return err
	})
}

// ResumeOverdueRest advances a record whose rest timer was lost, e.g. across
// a restart.
func (c *Coordinator) ResumeOverdueRest(ctx context.Context, u model.UsageRecord) (bool, error) {
	advanced, err := c.advanceAfterRest(ctx, u.EquipmentID, u.ID, u.CurrentSet)
	if err != nil {
		return false, classify(err, "failed to resume rest")
	}
	return advanced, nil
}

// advanceAfterRest moves a resting record to its next set. It reports whether
// anything changed.
func (c *Coordinator) advanceAfterRest(ctx context.Context, equipmentID, usageID int64, restingSet int) (bool, error) {
	var usage *model.UsageRecord
	err := c.store.WithinEquipment(ctx, equipmentID, func(tx *store.Tx) error {
		u, err := tx.Usage(usageID)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if !u.IsActive() || u.SetStatus != model.SetResting || u.CurrentSet != restingSet {
			return nil
		}
		if u.CurrentSet >= u.TotalSets {
			return nil
		}
		advance(u, c.now())
		usage = u
		return tx.SaveUsage(u)
	})
	if err != nil || usage == nil {
		return false, err
	}

	ev := broadcast.NewEvent(broadcast.EventNextSetStarted, equipmentID, usage.UserID, usageData(usage))
	c.broadcast(equipmentID, ev)
	c.sendToUser(usage.UserID, ev)
	return true, nil
}

// released publishes the end of a usage and hands the equipment to the line.
func (c *Coordinator) released(u *model.UsageRecord, typ broadcast.EventType, extra map[string]any) {
	c.scheduler.StopAutoUpdate(u.EquipmentID)

	data := usageData(u)
	for k, v := range extra {
		data[k] = v
	}
	c.broadcast(u.EquipmentID, broadcast.NewEvent(typ, u.EquipmentID, u.UserID, data))
	c.scheduleNotify(u.EquipmentID, c.opts.SettleDelay)
}

func finish(u *model.UsageRecord, status model.SetStatus, now time.Time) {
	u.Status = model.UsageCompleted
	u.SetStatus = status
	u.EndedAt = &now
	u.RestStartedAt = nil
}

func advance(u *model.UsageRecord, now time.Time) {
	u.CurrentSet++
	u.SetStatus = model.SetExercising
	u.CurrentSetStartedAt = now
	u.RestStartedAt = nil
}

func usageData(u *model.UsageRecord) map[string]any {
	data := map[string]any{
		"usageId":        u.ID,
		"userId":         u.UserID,
		"status":         u.Status,
		"setStatus":      u.SetStatus,
		"currentSet":     u.CurrentSet,
		"totalSets":      u.TotalSets,
		"restSeconds":    u.RestSeconds,
		"estimatedEndAt": u.EstimatedEndAt,
	}
	if u.RestStartedAt != nil {
		data["restStartedAt"] = *u.RestStartedAt
	}
	if u.EndedAt != nil {
		data["endedAt"] = *u.EndedAt
	}
	return data
}
