package internal

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"equipment-queue-backend/config"
	"equipment-queue-backend/internal/autoupdate"
	"equipment-queue-backend/internal/broadcast"
	"equipment-queue-backend/internal/model"
	"equipment-queue-backend/internal/queue"
	"equipment-queue-backend/internal/ratelimit"
	"equipment-queue-backend/internal/reconcile"
	"equipment-queue-backend/internal/store"
	"equipment-queue-backend/internal/store/storetest"
)

type engine struct {
	hub   *broadcast.Hub
	sched *autoupdate.Scheduler
	coord *queue.Coordinator
}

func newEngine(t *testing.T, s store.Store) *engine {
	t.Helper()
	hub := broadcast.NewHub(nil)
	sched := autoupdate.New(s, hub, time.Second, 5*time.Second)
	sched.Start()
	coord := queue.NewCoordinator(s, hub, sched, ratelimit.New(time.Second, time.Minute, 5), queue.Options{
		NotifyDelay:      10 * time.Millisecond,
		SettleDelay:      10 * time.Millisecond,
		OperationTimeout: 5 * time.Second,
	})
	t.Cleanup(func() {
		coord.Shutdown()
		sched.Stop()
	})
	return &engine{hub: hub, sched: sched, coord: coord}
}

func waitFor(t *testing.T, ch <-chan broadcast.Event, typ broadcast.EventType) broadcast.Event {
	t.Helper()
	return waitMatch(t, ch, typ, func(broadcast.Event) bool { return true })
}

func waitMatch(t *testing.T, ch <-chan broadcast.Event, typ broadcast.EventType, match func(broadcast.Event) bool) broadcast.Event {
	t.Helper()
	deadline := time.After(4 * time.Second)
	for {
		select {
		case ev := <-ch:
			if ev.Type == typ && match(ev) {
				return ev
			}
		case <-deadline:
			t.Fatalf("no %s event received", typ)
			return broadcast.Event{}
		}
	}
}

// TestWorkoutLifecycle follows one occupant through rest periods to the
// handover to the next user in line, observing the live streams.
func TestWorkoutLifecycle(t *testing.T) {
	gormDB := storetest.NewDB(t)
	storetest.SeedEquipment(t, gormDB, 1)
	s := store.NewGormStore(gormDB)
	e := newEngine(t, s)
	ctx := context.Background()

	room := e.hub.SubscribeRooms("room", []int64{1})
	waiter := e.hub.SubscribeUser("waiter", 20)

	usage, err := e.coord.StartUsage(ctx, 1, 10, 2, 1)
	require.NoError(t, err)
	waitFor(t, room, broadcast.EventUsageStarted)
	assert.Equal(t, 1, e.coord.AutoUpdateCount())

	entry, err := e.coord.Join(ctx, 1, 20)
	require.NoError(t, err)
	assert.Equal(t, 1, entry.QueuePosition)

	// The scheduler pushes an ETA for the occupant and the waiting user.
	eta := waitMatch(t, room, broadcast.EventETAUpdated, func(ev broadcast.Event) bool {
		return ev.Data["queueLength"] == 1
	})
	assert.Equal(t, false, eta.Data["available"])

	_, err = e.coord.CompleteSet(ctx, 1, 10)
	require.NoError(t, err)
	waitFor(t, room, broadcast.EventRestStarted)
	waitFor(t, room, broadcast.EventNextSetStarted)

	done, err := e.coord.CompleteSet(ctx, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, model.SetCompleted, done.SetStatus)
	assert.Equal(t, 2, done.CurrentSet)

	turn := waitFor(t, waiter, broadcast.EventYourTurn)
	assert.Equal(t, entry.ID, turn.Data["entryId"])

	_, err = e.coord.StartUsage(ctx, 1, 20, 1, 0)
	require.NoError(t, err)

	var claimed model.QueueEntry
	require.NoError(t, gormDB.First(&claimed, entry.ID).Error)
	assert.Equal(t, model.QueueCompleted, claimed.Status)

	var first model.UsageRecord
	require.NoError(t, gormDB.First(&first, usage.ID).Error)
	assert.Equal(t, model.UsageCompleted, first.Status)
}

// TestRestartRecovery checks that a fresh process rebuilds lost timers from
// the database.
func TestRestartRecovery(t *testing.T) {
	gormDB := storetest.NewDB(t)
	storetest.SeedEquipment(t, gormDB, 1, 2)
	s := store.NewGormStore(gormDB)
	ctx := context.Background()

	before := newEngine(t, s)
	u, err := before.coord.StartUsage(ctx, 1, 10, 3, 1)
	require.NoError(t, err)
	_, err = before.coord.CompleteSet(ctx, 1, 10)
	require.NoError(t, err)
	before.coord.Shutdown()
	before.sched.Stop()

	// User 20 waits on idle equipment 2 without having been notified.
	require.NoError(t, gormDB.Create(&model.QueueEntry{EquipmentID: 2, UserID: 20, QueuePosition: 1, Status: model.QueueWaiting}).Error)
	time.Sleep(1100 * time.Millisecond)

	after := newEngine(t, s)
	assert.Equal(t, 0, after.coord.AutoUpdateCount())

	svc := reconcile.NewService(config.ReconcileConfig{Enabled: true, Interval: time.Minute}, s, after.coord, after.sched)
	report := svc.ReconcileOnce(ctx)

	assert.Equal(t, 1, report.RestsResumed)
	assert.Equal(t, 2, after.coord.AutoUpdateCount())

	var resumed model.UsageRecord
	require.NoError(t, gormDB.First(&resumed, u.ID).Error)
	assert.Equal(t, 2, resumed.CurrentSet)
	assert.Equal(t, model.SetExercising, resumed.SetStatus)

	var waiting model.QueueEntry
	require.NoError(t, gormDB.Where("equipment_id = ? AND user_id = ?", 2, 20).First(&waiting).Error)
	assert.Equal(t, model.QueueNotified, waiting.Status)
}
