package models

import (
	"time"

	"github.com/google/uuid"
)

// Plan is a catalog entry system pods are spawned from. Deactivating a plan
// stops new pods from opening; pods already running keep their terms.
type Plan struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey"`
	Code           string    `gorm:"type:text;uniqueIndex;not null"`
	Amount         int64     `gorm:"not null"`
	LifecycleWeeks int       `gorm:"not null"`
	MaxMembers     int       `gorm:"not null"`
	Active         bool      `gorm:"not null;default:true"`
	CreatedAt      time.Time `gorm:"autoCreateTime"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime"`
}

func (Plan) TableName() string { return "plans" }
