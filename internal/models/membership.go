package models

import (
	"time"

	"github.com/google/uuid"
)

// Membership ties an account to a pod. AccountID is nil for system-bot slots
// filling unsold capacity at lock time. JoinOrder is 1-based arrival order;
// FinalOrder is assigned once when the pod locks and forms a 1..N permutation
// across the pod's memberships.
type Membership struct {
	ID               uuid.UUID  `gorm:"type:uuid;primaryKey"`
	PodID            uuid.UUID  `gorm:"type:uuid;index;not null"`
	AccountID        *uuid.UUID `gorm:"type:uuid;index"`
	JoinOrder        int        `gorm:"not null"`
	FinalOrder       *int
	PayoutDate       *time.Time
	PaidOut          bool       `gorm:"not null;default:false"`
	TotalContributed int64      `gorm:"not null;default:0"`
	SystemBot        bool       `gorm:"not null;default:false"`
	Goal             int64      `gorm:"not null;default:0"`
	GoalNote         string     `gorm:"type:text"`
	CreatedAt        time.Time  `gorm:"autoCreateTime"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime"`
}

func (Membership) TableName() string { return "memberships" }
