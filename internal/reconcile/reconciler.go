// Package reconcile rebuilds in-memory timer state from the database. Auto-update
// handles and rest timers live only in process memory, so after a restart (or a
// lost callback) this loop brings them back in line with the persisted rows.
package reconcile

import (
	"context"
	"time"

	"equipment-queue-backend/config"
	"equipment-queue-backend/internal/logger"
	"equipment-queue-backend/internal/model"
	"equipment-queue-backend/internal/store"
)

// Engine is the subset of the queue coordinator the reconciler drives.
type Engine interface {
	NotifyNextUser(ctx context.Context, equipmentID int64) error
	ResumeOverdueRest(ctx context.Context, u model.UsageRecord) (bool, error)
}

// Monitor starts auto-update handles.
type Monitor interface {
	StartAutoUpdate(equipmentID int64)
}

// Report counts what one pass did.
type Report struct {
	Monitored    int
	RestsResumed int
	NotifyPasses int
	Errors       int
}

// Service periodically reconciles timers with the database.
type Service struct {
	cfg     config.ReconcileConfig
	store   store.Store
	engine  Engine
	monitor Monitor
	now     func() time.Time
}

// NewService creates a reconciler.
func NewService(cfg config.ReconcileConfig, s store.Store, engine Engine, monitor Monitor) *Service {
	return &Service{
		cfg:     cfg,
		store:   s,
		engine:  engine,
		monitor: monitor,
		now:     time.Now,
	}
}

// Run reconciles once immediately and then on every interval until ctx ends.
func (s *Service) Run(ctx context.Context) {
	if !s.cfg.Enabled {
		logger.Info().Msg("reconciler is disabled, not starting")
		return
	}
	logger.Info().Dur("interval", s.cfg.Interval).Msg("starting reconciler")

	s.ReconcileOnce(ctx)

	timer := time.NewTimer(s.cfg.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("reconciler shutting down")
			return
		case <-timer.C:
			s.ReconcileOnce(ctx)
			timer.Reset(s.cfg.Interval)
		}
	}
}

// ReconcileOnce performs a single pass. Failures are logged and counted; the
// pass always continues with the next equipment.
func (s *Service) ReconcileOnce(ctx context.Context) Report {
	var report Report

	// Step 1: every equipment with an occupant or a line gets a handle.
	active, err := s.store.EquipmentWithActivity(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("failed to list active equipment")
		report.Errors++
	}
	for _, id := range active {
		s.monitor.StartAutoUpdate(id)
		report.Monitored++
	}

	// Step 2: rests whose timer was lost are advanced now.
	overdue, err := s.store.OverdueRests(ctx, s.now())
	if err != nil {
		logger.Error().Err(err).Msg("failed to list overdue rests")
		report.Errors++
	}
	for _, u := range overdue {
		advanced, err := s.engine.ResumeOverdueRest(ctx, u)
		if err != nil {
			logger.Warn().Err(err).Int64("usage_id", u.ID).Msg("failed to resume overdue rest")
			report.Errors++
			continue
		}
		if advanced {
			report.RestsResumed++
		}
	}

	// Step 3: idle equipment with a line gets a notify pass; the pass itself
	// is a no-op when someone is already notified or the equipment is taken.
	waiting, err := s.store.EquipmentWithWaiting(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("failed to list equipment with waiting users")
		report.Errors++
	}
	for _, id := range waiting {
		if err := s.engine.NotifyNextUser(ctx, id); err != nil {
			logger.Warn().Err(err).Int64("equipment_id", id).Msg("notify pass failed")
			report.Errors++
			continue
		}
		report.NotifyPasses++
	}

	if report.RestsResumed > 0 || report.Errors > 0 {
		logger.Info().
			Int("monitored", report.Monitored).
			Int("rests_resumed", report.RestsResumed).
			Int("notify_passes", report.NotifyPasses).
			Int("errors", report.Errors).
			Msg("reconcile pass finished")
	}
	return report
}
