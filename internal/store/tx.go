package store

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"equipment-queue-backend/internal/model"
)

// Tx is a transaction scoped to one locked piece of equipment.
type Tx struct {
	db        *gorm.DB
	equipment model.Equipment
}

// Equipment returns the locked equipment row.
func (t *Tx) Equipment() model.Equipment {
	return t.equipment
}

// ActiveUsage returns the IN_USE record of the locked equipment, or nil.
func (t *Tx) ActiveUsage() (*model.UsageRecord, error) {
	return activeUsage(t.db, t.equipment.ID)
}

// ActiveUsageByUser returns the user's IN_USE record on any equipment, or nil.
func (t *Tx) ActiveUsageByUser(userID int64) (*model.UsageRecord, error) {
	return activeUsageByUser(t.db, userID)
}

// Usage reloads a usage record of the locked equipment by id.
func (t *Tx) Usage(id int64) (*model.UsageRecord, error) {
	var usage model.UsageRecord
	err := t.db.Where("id = ? AND equipment_id = ?", id, t.equipment.ID).First(&usage).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load usage %d: %w", id, err)
	}
	return &usage, nil
}

// LatestUsageForUser returns the user's most recent record on the locked
// equipment regardless of status, or nil.
func (t *Tx) LatestUsageForUser(userID int64) (*model.UsageRecord, error) {
	var usage model.UsageRecord
	err := t.db.Where("equipment_id = ? AND user_id = ?", t.equipment.ID, userID).
		Order("id DESC").Limit(1).Find(&usage).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load latest usage for user %d: %w", userID, err)
	}
	if usage.ID == 0 {
		return nil, nil
	}
	return &usage, nil
}

func (t *Tx) CreateUsage(usage *model.UsageRecord) error {
	usage.EquipmentID = t.equipment.ID
	if err := t.db.Create(usage).Error; err != nil {
		return translateWriteErr(err, "failed to create usage record")
	}
	return nil
}

func (t *Tx) SaveUsage(usage *model.UsageRecord) error {
	if err := t.db.Save(usage).Error; err != nil {
		return translateWriteErr(err, fmt.Sprintf("failed to save usage record %d", usage.ID))
	}
	return nil
}

// ActiveQueue returns the active entries of the locked equipment in line order.
func (t *Tx) ActiveQueue() ([]model.QueueEntry, error) {
	return activeQueue(t.db, t.equipment.ID)
}

// ActiveEntryForUser returns the user's active entry for the locked equipment, or nil.
func (t *Tx) ActiveEntryForUser(userID int64) (*model.QueueEntry, error) {
	var entry model.QueueEntry
	err := t.db.Where("equipment_id = ? AND user_id = ? AND status IN ?", t.equipment.ID, userID, model.ActiveQueueStatuses).
		Limit(1).Find(&entry).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load queue entry for user %d: %w", userID, err)
	}
	if entry.ID == 0 {
		return nil, nil
	}
	return &entry, nil
}

// Entry reloads a queue entry of the locked equipment by id.
func (t *Tx) Entry(id int64) (*model.QueueEntry, error) {
	var entry model.QueueEntry
	err := t.db.Where("id = ? AND equipment_id = ?", id, t.equipment.ID).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load queue entry %d: %w", id, err)
	}
	return &entry, nil
}

// CountActive returns the number of entries holding a position.
func (t *Tx) CountActive() (int, error) {
	var count int64
	if err := t.db.Model(&model.QueueEntry{}).
		Where("equipment_id = ? AND status IN ?", t.equipment.ID, model.ActiveQueueStatuses).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count queue for equipment %d: %w", t.equipment.ID, err)
	}
	return int(count), nil
}

// AppendEntry places a new WAITING entry at the end of the line.
func (t *Tx) AppendEntry(userID int64) (*model.QueueEntry, error) {
	count, err := t.CountActive()
	if err != nil {
		return nil, err
	}
	entry := &model.QueueEntry{
		EquipmentID:   t.equipment.ID,
		UserID:        userID,
		QueuePosition: count + 1,
		Status:        model.QueueWaiting,
	}
	if err := t.db.Create(entry).Error; err != nil {
		return nil, translateWriteErr(err, "failed to create queue entry")
	}
	return entry, nil
}

// UpdateEntry persists status and notification fields of an entry.
func (t *Tx) UpdateEntry(entry *model.QueueEntry) error {
	if err := t.db.Model(entry).Updates(map[string]any{
		"status":      entry.Status,
		"notified_at": entry.NotifiedAt,
	}).Error; err != nil {
		return fmt.Errorf("failed to update queue entry %d: %w", entry.ID, err)
	}
	return nil
}

// Reorder compacts active positions to a dense 1..N sequence, keeping
// relative order, and returns N.
func (t *Tx) Reorder() (int, error) {
	entries, err := t.ActiveQueue()
	if err != nil {
		return 0, err
	}
	// Ascending assignment never collides: each target slot is at or below the old one.
	for i := range entries {
		want := i + 1
		if entries[i].QueuePosition == want {
			continue
		}
		if err := t.db.Model(&model.QueueEntry{}).
			Where("id = ?", entries[i].ID).
			Update("queue_position", want).Error; err != nil {
			return 0, fmt.Errorf("failed to reposition queue entry %d: %w", entries[i].ID, err)
		}
	}
	return len(entries), nil
}
