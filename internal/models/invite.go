package models

import (
	"time"

	"github.com/google/uuid"
)

// Invite is a pending invitation to a custom pod. Only the SHA-256 digest of
// the opaque token is stored; the token itself is returned once at creation.
// An invite is mutated exactly once (acceptance) or never.
type Invite struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey"`
	PodID       uuid.UUID  `gorm:"type:uuid;index;not null"`
	Email       string     `gorm:"type:text;not null"`
	InviteOrder int        `gorm:"not null"`
	TokenDigest string     `gorm:"type:text;uniqueIndex;not null"`
	Origin      string     `gorm:"type:text"`
	InvitedAt   time.Time  `gorm:"not null"`
	AcceptedAt  *time.Time
	AccountID   *uuid.UUID `gorm:"type:uuid"`
	CreatedAt   time.Time  `gorm:"autoCreateTime"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime"`
}

func (Invite) TableName() string { return "invites" }
