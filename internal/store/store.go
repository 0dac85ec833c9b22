package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"equipment-queue-backend/internal/model"
)

// Store defines the persistence operations used by the queue engine.
type Store interface {
	DB() *gorm.DB

	// WithinEquipment runs fn in one transaction holding the equipment row lock.
	// All read-modify-write of usage records and queue positions goes through it.
	WithinEquipment(ctx context.Context, equipmentID int64, fn func(tx *Tx) error) error

	Snapshot(ctx context.Context, equipmentID int64) (Snapshot, error)
	ListEquipment(ctx context.Context, ids []int64) ([]model.Equipment, error)
	FindQueueEntry(ctx context.Context, id int64) (*model.QueueEntry, error)
	ActiveUsageForUser(ctx context.Context, userID int64) (*model.UsageRecord, error)
	ActiveEntriesForUser(ctx context.Context, userID int64) ([]model.QueueEntry, error)

	EquipmentWithActivity(ctx context.Context) ([]int64, error)
	EquipmentWithWaiting(ctx context.Context) ([]int64, error)
	OverdueRests(ctx context.Context, now time.Time) ([]model.UsageRecord, error)

	UpsertSubscription(ctx context.Context, sub *model.PushSubscription) error
	SubscriptionsForUser(ctx context.Context, userID int64) ([]model.PushSubscription, error)
	DeleteSubscription(ctx context.Context, userID int64, endpoint string) error
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) DB() *gorm.DB {
	return s.db
}

// WithinEquipment locks the equipment row (FOR UPDATE where supported) and runs fn.
func (s *gormStore) WithinEquipment(ctx context.Context, equipmentID int64, fn func(tx *Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		var eq model.Equipment
		err := db.Clauses(clause.Locking{Strength: "UPDATE"}).First(&eq, equipmentID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrEquipmentNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to lock equipment %d: %w", equipmentID, err)
		}
		return fn(&Tx{db: db, equipment: eq})
	})
}

// Snapshot loads the occupant and the active line without locking.
func (s *gormStore) Snapshot(ctx context.Context, equipmentID int64) (Snapshot, error) {
	snap := Snapshot{EquipmentID: equipmentID}
	db := s.db.WithContext(ctx)

	usage, err := activeUsage(db, equipmentID)
	if err != nil {
		return snap, err
	}
	snap.Usage = usage

	queue, err := activeQueue(db, equipmentID)
	if err != nil {
		return snap, err
	}
	snap.Queue = queue
	return snap, nil
}

func (s *gormStore) ListEquipment(ctx context.Context, ids []int64) ([]model.Equipment, error) {
	var equipment []model.Equipment
	q := s.db.WithContext(ctx).Order("id")
	if len(ids) > 0 {
		q = q.Where("id IN ?", ids)
	}
	if err := q.Find(&equipment).Error; err != nil {
		return nil, fmt.Errorf("failed to list equipment: %w", err)
	}
	return equipment, nil
}

func (s *gormStore) FindQueueEntry(ctx context.Context, id int64) (*model.QueueEntry, error) {
	var entry model.QueueEntry
	err := s.db.WithContext(ctx).First(&entry, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load queue entry %d: %w", id, err)
	}
	return &entry, nil
}

func (s *gormStore) ActiveUsageForUser(ctx context.Context, userID int64) (*model.UsageRecord, error) {
	return activeUsageByUser(s.db.WithContext(ctx), userID)
}

func (s *gormStore) ActiveEntriesForUser(ctx context.Context, userID int64) ([]model.QueueEntry, error) {
	var entries []model.QueueEntry
	if err := s.db.WithContext(ctx).
		Where("user_id = ? AND status IN ?", userID, model.ActiveQueueStatuses).
		Order("equipment_id, queue_position").
		Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to load queue entries for user %d: %w", userID, err)
	}
	return entries, nil
}

// EquipmentWithActivity lists equipment that has an occupant or a non-empty line.
func (s *gormStore) EquipmentWithActivity(ctx context.Context) ([]int64, error) {
	var inUse []int64
	if err := s.db.WithContext(ctx).Model(&model.UsageRecord{}).
		Where("status = ?", model.UsageInUse).
		Distinct().Pluck("equipment_id", &inUse).Error; err != nil {
		return nil, fmt.Errorf("failed to list occupied equipment: %w", err)
	}
	waiting, err := s.EquipmentWithWaiting(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[int64]struct{}, len(inUse)+len(waiting))
	ids := make([]int64, 0, len(inUse)+len(waiting))
	for _, id := range append(inUse, waiting...) {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *gormStore) EquipmentWithWaiting(ctx context.Context) ([]int64, error) {
	var ids []int64
	if err := s.db.WithContext(ctx).Model(&model.QueueEntry{}).
		Where("status IN ?", model.ActiveQueueStatuses).
		Distinct().Pluck("equipment_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to list equipment with waiting users: %w", err)
	}
	return ids, nil
}

// OverdueRests returns resting usages whose rest period ended before now.
func (s *gormStore) OverdueRests(ctx context.Context, now time.Time) ([]model.UsageRecord, error) {
	var resting []model.UsageRecord
	if err := s.db.WithContext(ctx).
		Where("status = ? AND set_status = ?", model.UsageInUse, model.SetResting).
		Find(&resting).Error; err != nil {
		return nil, fmt.Errorf("failed to list resting usages: %w", err)
	}

	overdue := resting[:0]
	for _, u := range resting {
		if u.RestStartedAt == nil {
			overdue = append(overdue, u)
			continue
		}
		if !u.RestStartedAt.Add(time.Duration(u.RestSeconds) * time.Second).After(now) {
			overdue = append(overdue, u)
		}
	}
	return overdue, nil
}

func (s *gormStore) UpsertSubscription(ctx context.Context, sub *model.PushSubscription) error {
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "endpoint"}},
		DoUpdates: clause.AssignmentColumns([]string{"user_id", "p256dh", "auth"}),
	}).Create(sub).Error; err != nil {
		return fmt.Errorf("failed to upsert push subscription: %w", err)
	}
	return nil
}

func (s *gormStore) SubscriptionsForUser(ctx context.Context, userID int64) ([]model.PushSubscription, error) {
	var subs []model.PushSubscription
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Find(&subs).Error; err != nil {
		return nil, fmt.Errorf("failed to load push subscriptions for user %d: %w", userID, err)
	}
	return subs, nil
}

func (s *gormStore) DeleteSubscription(ctx context.Context, userID int64, endpoint string) error {
	if err := s.db.WithContext(ctx).
		Where("user_id = ? AND endpoint = ?", userID, endpoint).
		Delete(&model.PushSubscription{}).Error; err != nil {
		return fmt.Errorf("failed to delete push subscription: %w", err)
	}
	return nil
}

// --- shared query helpers ---

func activeUsage(db *gorm.DB, equipmentID int64) (*model.UsageRecord, error) {
	var usage model.UsageRecord
	err := db.Where("equipment_id = ? AND status = ?", equipmentID, model.UsageInUse).
		Limit(1).Find(&usage).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load active usage for equipment %d: %w", equipmentID, err)
	}
	if usage.ID == 0 {
		return nil, nil
	}
	return &usage, nil
}

func activeUsageByUser(db *gorm.DB, userID int64) (*model.UsageRecord, error) {
	var usage model.UsageRecord
	err := db.Where("user_id = ? AND status = ?", userID, model.UsageInUse).
		Limit(1).Find(&usage).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load active usage for user %d: %w", userID, err)
	}
	if usage.ID == 0 {
		return nil, nil
	}
	return &usage, nil
}

func activeQueue(db *gorm.DB, equipmentID int64) ([]model.QueueEntry, error) {
	var entries []model.QueueEntry
	if err := db.Where("equipment_id = ? AND status IN ?", equipmentID, model.ActiveQueueStatuses).
		Order("queue_position, id").
		Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to load queue for equipment %d: %w", equipmentID, err)
	}
	return entries, nil
}

func translateWriteErr(err error, what string) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) || isUniqueViolation(err) {
		return fmt.Errorf("%s: %w", what, ErrDuplicate)
	}
	return fmt.Errorf("%s: %w", what, err)
}

// isUniqueViolation catches driver errors the dialector did not translate.
func isUniqueViolation(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "duplicate key value")
}
