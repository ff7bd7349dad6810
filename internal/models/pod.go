package models

import (
	"time"

	"github.com/google/uuid"

	"podvault/internal/schedule"
)

type PodType string

const (
	PodTypeSystem PodType = "SYSTEM"
	PodTypeCustom PodType = "CUSTOM"
)

type PodStatus string

const (
	PodStatusPending   PodStatus = "PENDING"
	PodStatusOpen      PodStatus = "OPEN"
	PodStatusGrace     PodStatus = "GRACE"
	PodStatusActive    PodStatus = "ACTIVE"
	PodStatusCompleted PodStatus = "COMPLETED"
)

// Pod is a rotating savings group. Status transitions are monotonic and
// type-specific: system pods cycle OPEN (reschedule while empty) then
// OPEN->GRACE->ACTIVE->COMPLETED, custom pods go PENDING->ACTIVE->COMPLETED.
// Checksum fingerprints the mutable scheduling fields; InviteChecksum covers
// the invite set of custom pods.
type Pod struct {
	ID                   uuid.UUID         `gorm:"type:uuid;primaryKey"`
	PlanCode             string            `gorm:"type:text;index;not null"`
	Type                 PodType           `gorm:"type:text;not null"`
	Status               PodStatus         `gorm:"type:text;index;not null"`
	Name                 string            `gorm:"type:text"`
	Amount               int64             `gorm:"not null"`
	LifecycleWeeks       int               `gorm:"not null"`
	MaxMembers           int               `gorm:"not null"`
	Cadence              schedule.Cadence  `gorm:"type:text;not null"`
	RandomizePayoutOrder bool              `gorm:"not null;default:false"`
	ExpectedMembers      int               `gorm:"not null"`
	ScheduledStartDate   *time.Time
	StartDate            *time.Time
	GraceEndsAt          *time.Time
	LockedAt             *time.Time
	CompletedAt          *time.Time
	CycleCount           int               `gorm:"not null;default:0"`
	NextContributionDate *time.Time
	NextPayoutDate       *time.Time
	Checksum             string            `gorm:"type:text"`
	InviteChecksum       string            `gorm:"type:text"`
	CreatedAt            time.Time         `gorm:"autoCreateTime"`
	UpdatedAt            time.Time         `gorm:"autoUpdateTime"`
}

func (Pod) TableName() string { return "pods" }
