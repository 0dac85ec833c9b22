package model

import "time"

// Equipment is a single shared resource with exclusive-use semantics.
// The catalog itself is maintained elsewhere; this table only anchors ids and
// serves as the per-resource lock row.
type Equipment struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:256;not null" json:"name"`
	Category  string    `gorm:"size:64;index" json:"category"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName pins the table name; the plural of "equipment" is itself.
func (Equipment) TableName() string { return "equipment" }
