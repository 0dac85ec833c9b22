package queue

import (
	"context"
	"fmt"
	"slices"

	"go.uber.org/multierr"

	"equipment-queue-backend/internal/apperr"
	"equipment-queue-backend/internal/broadcast"
	"equipment-queue-backend/internal/logger"
	"equipment-queue-backend/internal/model"
	"equipment-queue-backend/internal/store"
)

// CleanupReason names the lifecycle event that triggered a cleanup.
type CleanupReason string

const (
	ReasonLogout         CleanupReason = "logout"
	ReasonAccountDeleted CleanupReason = "account_deleted"
)

// CleanupSummary reports what a cleanup touched. Failures lists the steps
// that could not be completed; the others still ran.
type CleanupSummary struct {
	ForceStopped        int      `json:"forceStopped"`
	ExpiredEntries      int      `json:"expiredEntries"`
	RoutinesDeactivated int      `json:"routinesDeactivated"`
	Equipment           []int64  `json:"equipment"`
	Failures            []string `json:"failures,omitempty"`
}

// Partial reports whether some step failed.
func (s CleanupSummary) Partial() bool {
	return len(s.Failures) > 0
}

// CleanupUserActivities force-stops the user's usage and expires every active
// queue entry. A failure on one equipment does not stop the rest; the returned
// error aggregates every failure alongside the summary.
func (c *Coordinator) CleanupUserActivities(ctx context.Context, userID int64, reason CleanupReason) (CleanupSummary, error) {
	var (
		summary CleanupSummary
		errs    error
	)
	touched := make(map[int64]struct{})
	fail := func(step string, err error) {
		errs = multierr.Append(errs, fmt.Errorf("%s: %w", step, err))
		summary.Failures = append(summary.Failures, step)
	}

	usage, err := c.store.ActiveUsageForUser(ctx, userID)
	if err != nil {
		fail("load active usage", err)
	} else if usage != nil {
		stopped, err := c.forceStop(ctx, usage.EquipmentID, userID, reason)
		if err != nil {
			fail(fmt.Sprintf("force stop on equipment %d", usage.EquipmentID), err)
		} else if stopped {
			summary.ForceStopped++
			touched[usage.EquipmentID] = struct{}{}
		}
	}

	entries, err := c.store.ActiveEntriesForUser(ctx, userID)
	if err != nil {
		fail("load queue entries", err)
	}
	byEquipment := make(map[int64][]int64)
	var order []int64
	for _, e := range entries {
		if _, ok := byEquipment[e.EquipmentID]; !ok {
			order = append(order, e.EquipmentID)
		}
		byEquipment[e.EquipmentID] = append(byEquipment[e.EquipmentID], e.ID)
	}
	for _, equipmentID := range order {
		n, err := c.expireEntries(ctx, equipmentID, userID, byEquipment[equipmentID], reason)
		if err != nil {
			fail(fmt.Sprintf("expire entries on equipment %d", equipmentID), err)
			continue
		}
		if n > 0 {
			summary.ExpiredEntries += n
			touched[equipmentID] = struct{}{}
		}
	}

	n, err := c.routines.DeactivateForUser(ctx, userID)
	if err != nil {
		fail("deactivate routines", err)
	}
	summary.RoutinesDeactivated = n

	for id := range touched {
		summary.Equipment = append(summary.Equipment, id)
	}
	slices.Sort(summary.Equipment)

	event := logger.Info()
	if errs != nil {
		event = logger.Warn().Err(errs)
	}
	event.Int64("user_id", userID).Str("reason", string(reason)).
		Int("force_stopped", summary.ForceStopped).
		Int("expired_entries", summary.ExpiredEntries).
		Int("routines_deactivated", summary.RoutinesDeactivated).
		Msg("user activities cleaned up")

	if errs != nil {
		return summary, apperr.Internal(errs, "cleanup completed partially")
	}
	return summary, nil
}

func (c *Coordinator) forceStop(ctx context.Context, equipmentID, userID int64, reason CleanupReason) (bool, error) {
	var usage *model.UsageRecord
	err := c.store.WithinEquipment(ctx, equipmentID, func(tx *store.Tx) error {
		u, err := tx.ActiveUsage()
		if err != nil || u == nil || u.UserID != userID {
			return err
		}
		finish(u, model.SetForceCompleted, c.now())
		usage = u
		return tx.SaveUsage(u)
	})
	if err != nil || usage == nil {
		return false, err
	}

	c.released(usage, broadcast.EventWorkoutForceStopped, map[string]any{"reason": string(reason)})
	return true, nil
}

func (c *Coordinator) expireEntries(ctx context.Context, equipmentID, userID int64, entryIDs []int64, reason CleanupReason) (int, error) {
	var (
		expired     int
		wasNotified bool
		remaining   int
	)
	err := c.store.WithinEquipment(ctx, equipmentID, func(tx *store.Tx) error {
		for _, id := range entryIDs {
			entry, err := tx.Entry(id)
			if err != nil {
				return err
			}
			if entry.UserID != userID || !entry.Status.IsActive() {
				continue
			}
			if entry.Status == model.QueueNotified {
				wasNotified = true
			}
			entry.Status = model.QueueExpired
			if err := tx.UpdateEntry(entry); err != nil {
				return err
			}
			expired++
		}
		if expired == 0 {
			return nil
		}
		var err error
		remaining, err = tx.Reorder()
		return err
	})
	if err != nil {
		return 0, err
	}
	if expired == 0 {
		return 0, nil
	}

	c.broadcast(equipmentID, broadcast.NewEvent(broadcast.EventQueueExpired, equipmentID, userID, map[string]any{
		"reason":      string(reason),
		"queueLength": remaining,
	}))
	if wasNotified {
		c.scheduleNotify(equipmentID, c.opts.NotifyDelay)
	}
	return expired, nil
}
