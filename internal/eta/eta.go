// Package eta holds the coarse time-to-availability heuristics. Every function
// is pure: callers pass the wall-clock time and nothing is cached across calls.
package eta

import (
	"math"
	"time"

	"equipment-queue-backend/internal/model"
)

const (
	// AverageSetDuration is the assumed length of one active set.
	AverageSetDuration = 3 * time.Minute
	// TurnoverDuration covers setup and cleanup between two users.
	TurnoverDuration = 1 * time.Minute
	// PerPersonTurnoverMinutes is the flat wait added per queued person:
	// 3 sets x 3 min + ~2 min rest + 1 min turnover. It ignores the set count
	// the person actually intends to do.
	PerPersonTurnoverMinutes = 3*3 + 2 + 1

	// PlanningSetDuration is the per-set constant used for the end-to-end
	// estimate written at usage start. It is tuned independently of
	// AverageSetDuration.
	PlanningSetDuration = 5 * time.Minute
)

// EstimateRemaining returns the minutes, rounded up, until the occupant of a
// usage record is expected to release the equipment.
func EstimateRemaining(usage *model.UsageRecord, now time.Time) int {
	if usage == nil || usage.Status != model.UsageInUse {
		return 0
	}

	remainingSets := usage.TotalSets - usage.CurrentSet + 1
	if remainingSets < 0 {
		remainingSets = 0
	}
	rest := time.Duration(usage.RestSeconds) * time.Second

	var remaining time.Duration
	switch usage.SetStatus {
	case model.SetExercising:
		left := AverageSetDuration - now.Sub(usage.CurrentSetStartedAt)
		if left < 0 {
			left = 0
		}
		after := remainingSets - 1
		if after < 0 {
			after = 0
		}
		remaining = left + time.Duration(after)*AverageSetDuration + time.Duration(after)*rest
	case model.SetResting:
		restLeft := rest
		if usage.RestStartedAt != nil {
			restLeft = rest - now.Sub(*usage.RestStartedAt)
		}
		if restLeft < 0 {
			restLeft = 0
		}
		gaps := remainingSets - 1
		if gaps < 0 {
			gaps = 0
		}
		remaining = restLeft + time.Duration(remainingSets)*AverageSetDuration + time.Duration(gaps)*rest
	default:
		return 0
	}

	return ceilMinutes(remaining)
}

// EstimateQueueWaits returns one wait estimate in minutes per queue entry, in
// the order given. headETA is the occupant's remaining minutes (0 when idle).
func EstimateQueueWaits(headETA int, queue []model.QueueEntry) []int {
	waits := make([]int, len(queue))
	acc := headETA + int(TurnoverDuration/time.Minute)
	for i := range queue {
		waits[i] = acc
		acc += PerPersonTurnoverMinutes
	}
	return waits
}

// PlannedEnd is the end-to-end estimate stored on a new usage record.
func PlannedEnd(start time.Time, totalSets, restSeconds int) time.Time {
	gaps := totalSets - 1
	if gaps < 0 {
		gaps = 0
	}
	return start.
		Add(time.Duration(totalSets) * PlanningSetDuration).
		Add(time.Duration(gaps*restSeconds) * time.Second)
}

func ceilMinutes(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Minutes()))
}
