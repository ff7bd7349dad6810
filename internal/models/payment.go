package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type PaymentKind string

const (
	PaymentKindContribution PaymentKind = "contribution"
	PaymentKindPayout       PaymentKind = "payout"
)

// Payment records a debit (contribution) or credit (payout) request against
// the external processor. ProcessorRef is the idempotency reference: webhook
// callbacks and scheduler retries converge on the same row. WindowStart is
// the contribution-window dedup key and is unset for payouts.
type Payment struct {
	ID           uuid.UUID         `gorm:"type:uuid;primaryKey"`
	PodID        uuid.UUID         `gorm:"type:uuid;index;not null"`
	MembershipID uuid.UUID         `gorm:"type:uuid;index;not null"`
	AccountID    uuid.UUID         `gorm:"type:uuid;index;not null"`
	Kind         PaymentKind       `gorm:"type:text;not null"`
	Amount       int64             `gorm:"not null"`
	Currency     string            `gorm:"type:text;not null;default:'USD'"`
	Status       string            `gorm:"type:text;not null"`
	ProcessorRef string            `gorm:"type:text;uniqueIndex;not null"`
	WindowStart  *time.Time
	Metadata     datatypes.JSONMap
	CreatedAt    time.Time         `gorm:"autoCreateTime"`
	UpdatedAt    time.Time         `gorm:"autoUpdateTime"`
}

func (Payment) TableName() string { return "payments" }
