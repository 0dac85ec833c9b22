package reconcile

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"equipment-queue-backend/config"
	"equipment-queue-backend/internal/model"
	"equipment-queue-backend/internal/store"
	"equipment-queue-backend/internal/store/storetest"
)

// mockEngine is a mock implementation of the Engine interface.
type mockEngine struct {
	NotifyNextUserFunc    func(ctx context.Context, equipmentID int64) error
	ResumeOverdueRestFunc func(ctx context.Context, u model.UsageRecord) (bool, error)
}

func (m *mockEngine) NotifyNextUser(ctx context.Context, equipmentID int64) error {
	return m.NotifyNextUserFunc(ctx, equipmentID)
}

func (m *mockEngine) ResumeOverdueRest(ctx context.Context, u model.UsageRecord) (bool, error) {
	return m.ResumeOverdueRestFunc(ctx, u)
}

type recordingMonitor struct {
	mu  sync.Mutex
	ids []int64
}

func (m *recordingMonitor) StartAutoUpdate(id int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ids = append(m.ids, id)
}

func (m *recordingMonitor) started() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int64(nil), m.ids...)
}

func seed(t *testing.T) store.Store {
	t.Helper()
	gormDB := storetest.NewDB(t)
	storetest.SeedEquipment(t, gormDB, 1, 2, 3)

	now := time.Now()
	restStarted := now.Add(-2 * time.Minute)
	usages := []model.UsageRecord{
		// Resting past its 60 s rest on equipment 1.
		{EquipmentID: 1, UserID: 10, Status: model.UsageInUse, SetStatus: model.SetResting, TotalSets: 3, CurrentSet: 1,
			RestSeconds: 60, RestStartedAt: &restStarted, CurrentSetStartedAt: restStarted, StartedAt: restStarted, EstimatedEndAt: now},
	}
	require.NoError(t, gormDB.Create(&usages).Error)
	// Equipment 3 is idle with a waiting user.
	require.NoError(t, gormDB.Create(&model.QueueEntry{EquipmentID: 3, UserID: 30, QueuePosition: 1, Status: model.QueueWaiting}).Error)
	return store.NewGormStore(gormDB)
}

func TestReconcileOnce(t *testing.T) {
	s := seed(t)
	var resumed []int64
	var notified []int64
	engine := &mockEngine{
		ResumeOverdueRestFunc: func(ctx context.Context, u model.UsageRecord) (bool, error) {
			resumed = append(resumed, u.ID)
			return true, nil
		},
		NotifyNextUserFunc: func(ctx context.Context, equipmentID int64) error {
			notified = append(notified, equipmentID)
			return nil
		},
	}
	monitor := &recordingMonitor{}
	svc := NewService(config.ReconcileConfig{Enabled: true, Interval: time.Minute}, s, engine, monitor)

	report := svc.ReconcileOnce(context.Background())

	assert.ElementsMatch(t, []int64{1, 3}, monitor.started())
	assert.Len(t, resumed, 1)
	assert.Equal(t, []int64{3}, notified)
	assert.Equal(t, Report{Monitored: 2, RestsResumed: 1, NotifyPasses: 1}, report)
}

func TestReconcileOnce_ContinuesPastFailures(t *testing.T) {
	s := seed(t)
	engine := &mockEngine{
		ResumeOverdueRestFunc: func(ctx context.Context, u model.UsageRecord) (bool, error) {
			return false, errors.New("lock timeout")
		},
		NotifyNextUserFunc: func(ctx context.Context, equipmentID int64) error {
			return nil
		},
	}
	svc := NewService(config.ReconcileConfig{Enabled: true, Interval: time.Minute}, s, engine, &recordingMonitor{})

	report := svc.ReconcileOnce(context.Background())

	assert.Equal(t, 1, report.Errors)
	assert.Equal(t, 1, report.NotifyPasses)
}

func TestRun_DisabledReturnsImmediately(t *testing.T) {
	svc := NewService(config.ReconcileConfig{Enabled: false}, nil, nil, nil)

	done := make(chan struct{})
	go func() {
		svc.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return for a disabled reconciler")
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	s := seed(t)
	var mu sync.Mutex
	passes := 0
	engine := &mockEngine{
		ResumeOverdueRestFunc: func(ctx context.Context, u model.UsageRecord) (bool, error) { return false, nil },
		NotifyNextUserFunc: func(ctx context.Context, equipmentID int64) error {
			mu.Lock()
			passes++
			mu.Unlock()
			return nil
		},
	}
	svc := NewService(config.ReconcileConfig{Enabled: true, Interval: 20 * time.Millisecond}, s, engine, &recordingMonitor{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return passes >= 2
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
