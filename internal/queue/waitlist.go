package queue

import (
	"context"
	"errors"

	"equipment-queue-backend/internal/apperr"
	"equipment-queue-backend/internal/broadcast"
	"equipment-queue-backend/internal/model"
	"equipment-queue-backend/internal/store"
)

// Join appends userID to the line for equipmentID.
func (c *Coordinator) Join(ctx context.Context, equipmentID, userID int64) (*model.QueueEntry, error) {
	var (
		entry    *model.QueueEntry
		occupied bool
	)
	err := c.store.WithinEquipment(ctx, equipmentID, func(tx *store.Tx) error {
		existing, err := tx.ActiveEntryForUser(userID)
		if err != nil {
			return err
		}
		if existing != nil {
			return apperr.Conflict("duplicate_queue_entry", "you are already in line for this equipment")
		}

		mine, err := tx.ActiveUsageByUser(userID)
		if err != nil {
			return err
		}
		if mine != nil {
			if mine.EquipmentID == equipmentID {
				return apperr.Conflict("already_using_this", "you are already using this equipment")
			}
			return apperr.Conflict("already_using_other", "you are already using other equipment")
		}

		active, err := tx.ActiveUsage()
		if err != nil {
			return err
		}
		occupied = active != nil

		entry, err = tx.AppendEntry(userID)
		return err
	})
	if errors.Is(err, store.ErrDuplicate) {
		return nil, apperr.Conflict("duplicate_queue_entry", "you are already in line for this equipment")
	}
	if err != nil {
		return nil, classify(err, "failed to join queue")
	}

	c.broadcast(equipmentID, broadcast.NewEvent(broadcast.EventQueueJoined, equipmentID, userID, map[string]any{
		"entryId":  entry.ID,
		"position": entry.QueuePosition,
	}))
	if occupied {
		c.scheduler.StartAutoUpdate(equipmentID)
	} else {
		c.scheduleNotify(equipmentID, c.opts.NotifyDelay)
	}
	return entry, nil
}

// NotifyNextUser tells the head of the line it may claim idle equipment. It
// does nothing while the equipment is occupied, the line is empty or someone
// already holds a notification.
func (c *Coordinator) NotifyNextUser(ctx context.Context, equipmentID int64) error {
	var head *model.QueueEntry
	err := c.store.WithinEquipment(ctx, equipmentID, func(tx *store.Tx) error {
		active, err := tx.ActiveUsage()
		if err != nil || active != nil {
			return err
		}
		line, err := tx.ActiveQueue()
		if err != nil || len(line) == 0 {
			return err
		}
		for i := range line {
			if line[i].Status == model.QueueNotified {
				return nil
			}
		}

		now := c.now()
		head = &line[0]
		head.Status = model.QueueNotified
		head.NotifiedAt = &now
		return tx.UpdateEntry(head)
	})
	if err != nil {
		return classify(err, "failed to notify next user")
	}
	if head == nil {
		return nil
	}

	data := map[string]any{
		"entryId":  head.ID,
		"position": head.QueuePosition,
	}
	c.sendToUser(head.UserID, broadcast.NewEvent(broadcast.EventYourTurn, equipmentID, head.UserID, data))
	c.broadcast(equipmentID, broadcast.NewEvent(broadcast.EventYourTurn, equipmentID, head.UserID, data))
	return nil
}

// Cancel expires a queue entry owned by callerID and compacts the line.
func (c *Coordinator) Cancel(ctx context.Context, entryID, callerID int64) error {
	found, err := c.store.FindQueueEntry(ctx, entryID)
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound("queue_entry_not_found", "queue entry not found")
	}
	if err != nil {
		return classify(err, "failed to load queue entry")
	}
	if found.UserID != callerID {
		return apperr.Forbidden("not_entry_owner", "this queue entry belongs to another user")
	}

	var (
		wasNotified bool
		remaining   int
	)
	equipmentID := found.EquipmentID
	err = c.store.WithinEquipment(ctx, equipmentID, func(tx *store.Tx) error {
		entry, err := tx.Entry(entryID)
		if err != nil {
			return err
		}
		if !entry.Status.IsActive() {
			return apperr.Conflict("entry_not_active", "queue entry is no longer active")
		}
		wasNotified = entry.Status == model.QueueNotified
		entry.Status = model.QueueExpired
		if err := tx.UpdateEntry(entry); err != nil {
			return err
		}
		remaining, err = tx.Reorder()
		return err
	})
	if err != nil {
		return classify(err, "failed to cancel queue entry")
	}

	c.broadcast(equipmentID, broadcast.NewEvent(broadcast.EventQueueCancelled, equipmentID, callerID, map[string]any{
		"entryId":     entryID,
		"queueLength": remaining,
	}))
	if wasNotified {
		c.scheduleNotify(equipmentID, c.opts.NotifyDelay)
	}
	return nil
}

// ReorderQueue compacts active positions for equipmentID to 1..N and returns N.
func (c *Coordinator) ReorderQueue(ctx context.Context, equipmentID int64) (int, error) {
	var remaining int
	err := c.store.WithinEquipment(ctx, equipmentID, func(tx *store.Tx) error {
		var err error
		remaining, err = tx.Reorder()
		return err
	})
	if err != nil {
		return 0, classify(err, "failed to reorder queue")
	}
	return remaining, nil
}
