package models

import (
	"time"

	"github.com/google/uuid"
)

// Notification is the dedup ledger for scheduler-raised notifications. The
// unique index guarantees at most one row per membership per kind per window,
// so a sweep re-run never raises the same notification twice.
type Notification struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	MembershipID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_notifications_dedup"`
	Kind         string    `gorm:"type:text;not null;uniqueIndex:idx_notifications_dedup"`
	WindowStart  time.Time `gorm:"not null;uniqueIndex:idx_notifications_dedup"`
	CreatedAt    time.Time `gorm:"autoCreateTime"`
}

func (Notification) TableName() string { return "notifications" }
