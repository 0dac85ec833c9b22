package autoupdate

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"equipment-queue-backend/internal/broadcast"
	"equipment-queue-backend/internal/logger"
	"equipment-queue-backend/internal/store"
)

type handle struct {
	entryID cron.EntryID
	// epoch moves whenever the handle is re-requested, so a tick that saw an
	// idle snapshot does not tear down a handle someone just asked for.
	epoch uint64
}

// Scheduler keeps one recurring ETA broadcast per actively monitored equipment.
type Scheduler struct {
	cron     *cron.Cron
	store    store.Store
	gateway  broadcast.Gateway
	interval time.Duration
	timeout  time.Duration

	mu      sync.Mutex
	handles map[int64]*handle

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a scheduler. Ticks for one equipment never overlap: a tick that
// is still running when the next is due causes that next tick to be skipped.
func New(s store.Store, gw broadcast.Gateway, interval, timeout time.Duration) *Scheduler {
	cronLogger := cron.PrintfLogger(logger.Get())
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:     cron.New(cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger))),
		store:    s,
		gateway:  gw,
		interval: interval,
		timeout:  timeout,
		handles:  make(map[int64]*handle),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start begins running scheduled ticks.
func (s *Scheduler) Start() {
	s.cron.Start()
	logger.Info().Dur("interval", s.interval).Msg("auto-update scheduler started")
}

// Stop halts the scheduler and waits for running ticks to finish.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()

	s.mu.Lock()
	for id, h := range s.handles {
		s.cron.Remove(h.entryID)
		delete(s.handles, id)
	}
	s.mu.Unlock()
}

// StartAutoUpdate begins periodic ETA broadcasts for equipmentID. It is a
// no-op when a handle already exists.
func (s *Scheduler) StartAutoUpdate(equipmentID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if h, ok := s.handles[equipmentID]; ok {
		h.epoch++
		return
	}

	entryID := s.cron.Schedule(cron.Every(s.interval), cron.FuncJob(func() {
		s.tick(equipmentID)
	}))
	s.handles[equipmentID] = &handle{entryID: entryID}
	logger.Debug().Int64("equipment_id", equipmentID).Msg("auto-update started")
}

// StopAutoUpdate cancels the handle for equipmentID if present. A tick already
// in flight completes; its broadcast is merely stale.
func (s *Scheduler) StopAutoUpdate(equipmentID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(equipmentID)
}

// Count returns the number of running handles.
func (s *Scheduler) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handles)
}

// Running reports whether equipmentID has a handle.
func (s *Scheduler) Running(equipmentID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.handles[equipmentID]
	return ok
}

func (s *Scheduler) removeLocked(equipmentID int64) {
	h, ok := s.handles[equipmentID]
	if !ok {
		return
	}
	s.cron.Remove(h.entryID)
	delete(s.handles, equipmentID)
	logger.Debug().Int64("equipment_id", equipmentID).Msg("auto-update stopped")
}

func (s *Scheduler) epoch(equipmentID int64) (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.handles[equipmentID]
	if !ok {
		return 0, false
	}
	return h.epoch, true
}

func (s *Scheduler) tick(equipmentID int64) {
	startEpoch, ok := s.epoch(equipmentID)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	snap, err := s.store.Snapshot(ctx, equipmentID)
	if err != nil {
		logger.Warn().Err(err).Int64("equipment_id", equipmentID).Msg("auto-update tick failed to load state")
		return
	}

	if snap.Idle() && snap.Empty() {
		s.mu.Lock()
		if h, ok := s.handles[equipmentID]; ok && h.epoch == startEpoch {
			s.removeLocked(equipmentID)
		}
		s.mu.Unlock()
		return
	}

	s.gateway.BroadcastToRoom(equipmentID, Compute(snap, time.Now()).Event("auto"))
}
