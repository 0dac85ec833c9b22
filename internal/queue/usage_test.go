package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"equipment-queue-backend/internal/apperr"
	"equipment-queue-backend/internal/broadcast"
	"equipment-queue-backend/internal/model"
)

func TestStartUsage_IdleEquipment(t *testing.T) {
	f := newFixture(t)

	u, err := f.c.StartUsage(context.Background(), 1, 10, 3, 90)
	require.NoError(t, err)

	assert.Equal(t, model.UsageInUse, u.Status)
	assert.Equal(t, model.SetExercising, u.SetStatus)
	assert.Equal(t, 1, u.CurrentSet)
	// 3 x 5 min planning sets + 2 x 90 s rest.
	assert.WithinDuration(t, u.StartedAt.Add(18*time.Minute), u.EstimatedEndAt, time.Second)
	assert.True(t, f.sched.Running(1))
	assert.Equal(t, []broadcast.EventType{broadcast.EventUsageStarted}, f.gw.RoomTypes(1))
}

func TestStartUsage_Validation(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name        string
		totalSets   int
		restSeconds int
		code        string
	}{
		{"zero sets", 0, 60, "invalid_total_sets"},
		{"too many sets", 21, 60, "invalid_total_sets"},
		{"negative rest", 3, -1, "invalid_rest_seconds"},
		{"rest too long", 3, 601, "invalid_rest_seconds"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.c.StartUsage(context.Background(), 1, 10, tt.totalSets, tt.restSeconds)
			assertKind(t, err, apperr.KindInvalidArgument, tt.code)
		})
	}
}

func TestStartUsage_UnknownEquipment(t *testing.T) {
	f := newFixture(t)

	_, err := f.c.StartUsage(context.Background(), 99, 10, 3, 60)
	assertKind(t, err, apperr.KindNotFound, "equipment_not_found")
}

func TestStartUsage_Conflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.c.StartUsage(ctx, 1, 10, 3, 60)
	require.NoError(t, err)

	_, err = f.c.StartUsage(ctx, 1, 11, 3, 60)
	assertKind(t, err, apperr.KindConflict, "equipment_in_use")

	_, err = f.c.StartUsage(ctx, 1, 10, 3, 60)
	assertKind(t, err, apperr.KindConflict, "already_using_this")

	_, err = f.c.StartUsage(ctx, 2, 10, 3, 60)
	assertKind(t, err, apperr.KindConflict, "already_using_other")
}

func TestStartUsage_OnlyQueueHeadMayClaim(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	head, err := f.c.Join(ctx, 1, 20)
	require.NoError(t, err)
	_, err = f.c.Join(ctx, 1, 21)
	require.NoError(t, err)

	_, err = f.c.StartUsage(ctx, 1, 21, 3, 60)
	assertKind(t, err, apperr.KindForbidden, "not_queue_head")
	_, err = f.c.StartUsage(ctx, 1, 30, 3, 60)
	assertKind(t, err, apperr.KindForbidden, "not_queue_head")

	_, err = f.c.StartUsage(ctx, 1, 20, 3, 60)
	require.NoError(t, err)

	assert.Equal(t, model.QueueCompleted, f.entry(t, head.ID).Status)
	assert.Equal(t, map[int64]int{21: 1}, f.positions(t, 1))
}

func TestStartUsage_ConcurrentClaimsGrantOne(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const claimants = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < claimants; i++ {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			_, err := f.c.StartUsage(ctx, 1, userID, 3, 60)
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
				return
			}
			assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
		}(int64(100 + i))
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	var active int64
	require.NoError(t, f.store.DB().Model(&model.UsageRecord{}).
		Where("equipment_id = ? AND status = ?", 1, model.UsageInUse).Count(&active).Error)
	assert.Equal(t, int64(1), active)
}

func TestCompleteSet_FinalSetCompletesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	u, err := f.c.StartUsage(ctx, 1, 10, 1, 0)
	require.NoError(t, err)

	done, err := f.c.CompleteSet(ctx, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, model.UsageCompleted, done.Status)
	assert.Equal(t, model.SetCompleted, done.SetStatus)

	stored := f.usage(t, u.ID)
	assert.Equal(t, model.UsageCompleted, stored.Status)
	assert.Equal(t, model.SetCompleted, stored.SetStatus)
	assert.NotNil(t, stored.EndedAt)
	assert.False(t, f.sched.Running(1))
	assert.Contains(t, f.gw.RoomTypes(1), broadcast.EventWorkoutCompleted)

	_, err = f.c.CompleteSet(ctx, 1, 10)
	assertKind(t, err, apperr.KindInvalidState, "usage_finished")
}

func TestCompleteSet_RequiresExercising(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.c.StartUsage(ctx, 1, 10, 3, 60)
	require.NoError(t, err)
	_, err = f.c.CompleteSet(ctx, 1, 10)
	require.NoError(t, err)

	_, err = f.c.CompleteSet(ctx, 1, 10)
	assertKind(t, err, apperr.KindInvalidState, "not_exercising")
}

func TestCompleteSet_NotOccupant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.c.CompleteSet(ctx, 1, 10)
	assertKind(t, err, apperr.KindNotFound, "usage_not_found")

	_, err = f.c.StartUsage(ctx, 1, 10, 3, 60)
	require.NoError(t, err)
	_, err = f.c.CompleteSet(ctx, 1, 11)
	assertKind(t, err, apperr.KindNotFound, "usage_not_found")
}

func TestCompleteSet_RestAdvancesWithoutCall(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	u, err := f.c.StartUsage(ctx, 1, 10, 3, 1)
	require.NoError(t, err)
	_, err = f.c.Join(ctx, 1, 20)
	require.NoError(t, err)

	resting, err := f.c.CompleteSet(ctx, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, model.SetResting, resting.SetStatus)
	assert.NotNil(t, resting.RestStartedAt)
	assert.Equal(t, map[int64]int{20: 1}, f.positions(t, 1))

	assert.Eventually(t, func() bool {
		stored := f.usage(t, u.ID)
		return stored.CurrentSet == 2 && stored.SetStatus == model.SetExercising
	}, 3*time.Second, 50*time.Millisecond)

	stored := f.usage(t, u.ID)
	assert.Nil(t, stored.RestStartedAt)
	assert.Contains(t, f.gw.RoomTypes(1), broadcast.EventNextSetStarted)
	assert.Contains(t, f.gw.DirectTypes(10), broadcast.EventNextSetStarted)
}

func TestSkipRest_AdvancesAndStaleTimerIsNoop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	u, err := f.c.StartUsage(ctx, 1, 10, 3, 1)
	require.NoError(t, err)
	_, err = f.c.CompleteSet(ctx, 1, 10)
	require.NoError(t, err)

	skipped, err := f.c.SkipRest(ctx, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, skipped.CurrentSet)
	assert.Equal(t, model.SetExercising, skipped.SetStatus)

	// Let the original rest timer fire; set 2 must not be skipped ahead.
	time.Sleep(1500 * time.Millisecond)
	stored := f.usage(t, u.ID)
	assert.Equal(t, 2, stored.CurrentSet)
	assert.Equal(t, model.SetExercising, stored.SetStatus)
	assert.NotContains(t, f.gw.RoomTypes(1), broadcast.EventNextSetStarted)
}

func TestSkipRest_RequiresResting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.c.SkipRest(ctx, 1, 10)
	assertKind(t, err, apperr.KindNotFound, "usage_not_found")

	_, err = f.c.StartUsage(ctx, 1, 10, 3, 60)
	require.NoError(t, err)
	_, err = f.c.SkipRest(ctx, 1, 10)
	assertKind(t, err, apperr.KindInvalidState, "not_resting")
}

func TestStopUsage_InterruptsRest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	u, err := f.c.StartUsage(ctx, 1, 10, 3, 1)
	require.NoError(t, err)
	_, err = f.c.CompleteSet(ctx, 1, 10)
	require.NoError(t, err)

	stopped, err := f.c.StopUsage(ctx, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, model.SetStopped, stopped.SetStatus)
	assert.False(t, f.sched.Running(1))

	time.Sleep(1500 * time.Millisecond)
	stored := f.usage(t, u.ID)
	assert.Equal(t, model.UsageCompleted, stored.Status)
	assert.Equal(t, model.SetStopped, stored.SetStatus)
	assert.Equal(t, 1, stored.CurrentSet)

	var stopEvent *broadcast.Event
	for _, s := range f.gw.Room() {
		if s.Event.Type == broadcast.EventWorkoutStopped {
			ev := s.Event
			stopEvent = &ev
		}
	}
	require.NotNil(t, stopEvent)
	assert.Equal(t, true, stopEvent.Data["interrupted"])

	_, err = f.c.StopUsage(ctx, 1, 10)
	assertKind(t, err, apperr.KindNotFound, "usage_not_found")
}

func TestRelease_NotifiesHeadOfLine(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.c.StartUsage(ctx, 1, 10, 1, 0)
	require.NoError(t, err)
	entry, err := f.c.Join(ctx, 1, 20)
	require.NoError(t, err)
	assert.True(t, f.sched.Running(1))

	_, err = f.c.CompleteSet(ctx, 1, 10)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return f.entry(t, entry.ID).Status == model.QueueNotified
	}, 2*time.Second, 20*time.Millisecond)
	assert.Equal(t, []broadcast.EventType{broadcast.EventYourTurn}, f.gw.DirectTypes(20))
	assert.NotNil(t, f.entry(t, entry.ID).NotifiedAt)
}

func TestResumeOverdueRest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	u, err := f.c.StartUsage(ctx, 1, 10, 2, 600)
	require.NoError(t, err)
	resting, err := f.c.CompleteSet(ctx, 1, 10)
	require.NoError(t, err)

	advanced, err := f.c.ResumeOverdueRest(ctx, *resting)
	require.NoError(t, err)
	assert.True(t, advanced)
	assert.Equal(t, 2, f.usage(t, u.ID).CurrentSet)

	advanced, err = f.c.ResumeOverdueRest(ctx, *resting)
	require.NoError(t, err)
	assert.False(t, advanced)
}
