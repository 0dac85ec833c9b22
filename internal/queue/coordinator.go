// Package queue orchestrates exclusive equipment use: the usage state machine,
// the waiting line, deferred transitions and the cleanup cascade. Every
// read-modify-write runs inside store.WithinEquipment; events are published
// only after the transaction commits.
package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"equipment-queue-backend/internal/apperr"
	"equipment-queue-backend/internal/broadcast"
	"equipment-queue-backend/internal/logger"
	"equipment-queue-backend/internal/ratelimit"
	"equipment-queue-backend/internal/store"
)

// Scheduler is the auto-update surface the coordinator drives.
type Scheduler interface {
	StartAutoUpdate(equipmentID int64)
	StopAutoUpdate(equipmentID int64)
	Count() int
}

// RefreshLimiter throttles manual ETA refreshes per user.
type RefreshLimiter interface {
	Check(userID int64) ratelimit.Result
}

// RoutineDeactivator ends a user's active routine associations on cleanup.
type RoutineDeactivator interface {
	DeactivateForUser(ctx context.Context, userID int64) (int, error)
}

type noopRoutines struct{}

func (noopRoutines) DeactivateForUser(context.Context, int64) (int, error) { return 0, nil }

// Options tunes the coordinator timers.
type Options struct {
	// NotifyDelay precedes a notify-next pass after a join or cancel.
	NotifyDelay time.Duration
	// SettleDelay precedes a notify-next pass after the equipment is released.
	SettleDelay time.Duration
	// OperationTimeout bounds each deferred callback.
	OperationTimeout time.Duration
	Routines         RoutineDeactivator
}

// Coordinator owns every state transition of usage records and queue entries.
type Coordinator struct {
	store     store.Store
	gateway   broadcast.Gateway
	scheduler Scheduler
	limiter   RefreshLimiter
	routines  RoutineDeactivator
	opts      Options
	now       func() time.Time

	refresh singleflight.Group

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
	timers map[*time.Timer]struct{}
	closed bool
}

// NewCoordinator wires the coordinator to its collaborators.
func NewCoordinator(s store.Store, gw broadcast.Gateway, sched Scheduler, limiter RefreshLimiter, opts Options) *Coordinator {
	if opts.OperationTimeout <= 0 {
		opts.OperationTimeout = 10 * time.Second
	}
	routines := opts.Routines
	if routines == nil {
		routines = noopRoutines{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		store:     s,
		gateway:   gw,
		scheduler: sched,
		limiter:   limiter,
		routines:  routines,
		opts:      opts,
		now:       time.Now,
		ctx:       ctx,
		cancel:    cancel,
		timers:    make(map[*time.Timer]struct{}),
	}
}

// AutoUpdateCount returns the number of running auto-update handles.
func (c *Coordinator) AutoUpdateCount() int {
	return c.scheduler.Count()
}

// Shutdown drops pending deferred callbacks and waits for running ones.
func (c *Coordinator) Shutdown() {
	c.mu.Lock()
	c.closed = true
	for t := range c.timers {
		if t.Stop() {
			c.wg.Done()
		}
		delete(c.timers, t)
	}
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
}

// after runs fn once d has elapsed. fn must reload whatever state it acts on.
func (c *Coordinator) after(d time.Duration, what string, equipmentID int64, fn func(ctx context.Context) error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	var t *time.Timer
	c.wg.Add(1)
	t = time.AfterFunc(d, func() {
		defer c.wg.Done()
		c.mu.Lock()
		delete(c.timers, t)
		c.mu.Unlock()

		ctx, cancel := context.WithTimeout(c.ctx, c.opts.OperationTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			logger.Warn().Err(err).Str("task", what).Int64("equipment_id", equipmentID).Msg("deferred task failed")
		}
	})
	c.timers[t] = struct{}{}
}

// scheduleNotify queues a notify-next pass for equipmentID.
func (c *Coordinator) scheduleNotify(equipmentID int64, delay time.Duration) {
	c.after(delay, "notify_next", equipmentID, func(ctx context.Context) error {
		return c.NotifyNextUser(ctx, equipmentID)
	})
}

func (c *Coordinator) sendToUser(userID int64, ev broadcast.Event) {
	if !c.gateway.SendToUser(userID, ev) {
		logger.Debug().Int64("user_id", userID).Str("event", string(ev.Type)).Msg("user has no live connection")
	}
}

func (c *Coordinator) broadcast(equipmentID int64, ev broadcast.Event) {
	c.gateway.BroadcastToRoom(equipmentID, ev)
}

// classify maps store errors onto the error taxonomy.
func classify(err error, msg string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrEquipmentNotFound):
		return apperr.NotFound("equipment_not_found", "equipment not found")
	case errors.Is(err, store.ErrNotFound):
		return apperr.NotFound("record_not_found", msg)
	}
	return apperr.Internal(err, msg)
}
