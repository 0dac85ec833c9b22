package eta

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"equipment-queue-backend/internal/model"
)

func TestEstimateRemaining(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	restStarted := now.Add(-20 * time.Second)

	testCases := []struct {
		name     string
		usage    *model.UsageRecord
		expected int
	}{
		{
			name:     "nil usage",
			usage:    nil,
			expected: 0,
		},
		{
			name: "completed usage",
			usage: &model.UsageRecord{
				Status: model.UsageCompleted, SetStatus: model.SetCompleted,
				TotalSets: 3, CurrentSet: 3,
			},
			expected: 0,
		},
		{
			name: "first set just started, three sets with 60s rest",
			usage: &model.UsageRecord{
				Status: model.UsageInUse, SetStatus: model.SetExercising,
				TotalSets: 3, CurrentSet: 1, RestSeconds: 60,
				CurrentSetStartedAt: now,
			},
			// 3 + 2*3 + 2*1 = 11
			expected: 11,
		},
		{
			name: "last set half done rounds up",
			usage: &model.UsageRecord{
				Status: model.UsageInUse, SetStatus: model.SetExercising,
				TotalSets: 2, CurrentSet: 2, RestSeconds: 30,
				CurrentSetStartedAt: now.Add(-90 * time.Second),
			},
			expected: 2,
		},
		{
			name: "overrun set floors at zero",
			usage: &model.UsageRecord{
				Status: model.UsageInUse, SetStatus: model.SetExercising,
				TotalSets: 1, CurrentSet: 1,
				CurrentSetStartedAt: now.Add(-10 * time.Minute),
			},
			expected: 0,
		},
		{
			name: "resting after set one of three",
			usage: &model.UsageRecord{
				Status: model.UsageInUse, SetStatus: model.SetResting,
				TotalSets: 3, CurrentSet: 1, RestSeconds: 60,
				CurrentSetStartedAt: now.Add(-4 * time.Minute),
				RestStartedAt:       &restStarted,
			},
			// 40s rest left + 3*3min + 2*60s = 40s + 540s + 120s = 700s -> 12 min
			expected: 12,
		},
		{
			name: "stopped record is zero",
			usage: &model.UsageRecord{
				Status: model.UsageInUse, SetStatus: model.SetStopped,
				TotalSets: 3, CurrentSet: 1,
			},
			expected: 0,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, EstimateRemaining(tc.usage, now))
		})
	}
}

func TestEstimateRemaining_UsesCallerClock(t *testing.T) {
	start := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	usage := &model.UsageRecord{
		Status: model.UsageInUse, SetStatus: model.SetExercising,
		TotalSets: 1, CurrentSet: 1, CurrentSetStartedAt: start,
	}

	assert.Equal(t, 3, EstimateRemaining(usage, start))
	assert.Equal(t, 2, EstimateRemaining(usage, start.Add(61*time.Second)))
	assert.Equal(t, 1, EstimateRemaining(usage, start.Add(150*time.Second)))
}

func TestEstimateQueueWaits(t *testing.T) {
	queue := []model.QueueEntry{{ID: 1}, {ID: 2}, {ID: 3}}

	assert.Equal(t, []int{6, 18, 30}, EstimateQueueWaits(5, queue))
	assert.Equal(t, []int{1, 13, 25}, EstimateQueueWaits(0, queue))
	assert.Empty(t, EstimateQueueWaits(7, nil))
}

func TestEstimateQueueWaits_StrictlyIncreasing(t *testing.T) {
	queue := make([]model.QueueEntry, 10)
	for head := 0; head < 40; head += 7 {
		waits := EstimateQueueWaits(head, queue)
		for i := 1; i < len(waits); i++ {
			assert.Greater(t, waits[i], waits[i-1])
		}
	}
}

func TestPlannedEnd(t *testing.T) {
	start := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	assert.Equal(t, start.Add(15*time.Minute+2*90*time.Second), PlannedEnd(start, 3, 90))
	assert.Equal(t, start.Add(5*time.Minute), PlannedEnd(start, 1, 120))
}
