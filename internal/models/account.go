package models

import (
	"time"

	"github.com/google/uuid"
)

// Account represents a saver that joins pods. The risk flags are written by
// the join-rate guard and the payment schedulers and read back on every join
// attempt; overheat is one-way and only cleared by external remediation.
type Account struct {
	ID                uuid.UUID  `gorm:"type:uuid;primaryKey"`
	Email             string     `gorm:"type:text;uniqueIndex;not null"`
	Name              string     `gorm:"type:text;not null"`
	BankAccountLinked bool       `gorm:"not null;default:false"`
	PaymentMethodID   *string    `gorm:"type:text"`
	FraudReview       bool       `gorm:"not null;default:false"`
	MissedPayment     bool       `gorm:"not null;default:false"`
	Overheated        bool       `gorm:"not null;default:false"`
	OverheatedAt      *time.Time
	CreatedAt         time.Time  `gorm:"autoCreateTime"`
	UpdatedAt         time.Time  `gorm:"autoUpdateTime"`
}

func (Account) TableName() string { return "accounts" }
