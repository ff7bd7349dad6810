// Package payments defines the contract with the external payment processor.
// The processor is consumed as an opaque service: it takes a debit or credit
// request keyed by account, amount, currency, and an idempotency reference,
// and answers with an immediate status. Terminal statuses may also arrive
// later through the webhook surface.
package payments

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// Status is the processor's view of a charge.
type Status string

const (
	StatusSucceeded      Status = "succeeded"
	StatusProcessing     Status = "processing"
	StatusRequiresAction Status = "requires_action"
	StatusFailed         Status = "failed"
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// InFlight reports whether a charge with this status is still pending a
// terminal outcome.
func (s Status) InFlight() bool {
	return s == StatusProcessing || s == StatusRequiresAction
}

// ErrUnavailable marks transient transport failures; callers may retry the
// same reference safely.
var ErrUnavailable = errors.New("payment processor unavailable")

// ChargeRequest describes a debit or credit. Reference is the idempotency
// key: the processor must treat repeated requests with the same reference as
// one charge.
type ChargeRequest struct {
	AccountID       uuid.UUID
	PaymentMethodID string
	Amount          int64
	Currency        string
	Reference       string
	Metadata        map[string]string
}

// ChargeResult is the processor's immediate answer.
type ChargeResult struct {
	Reference string
	Status    Status
}

// Processor executes debits and credits. Implementations must be idempotent
// by reference.
type Processor interface {
	Debit(ctx context.Context, req ChargeRequest) (ChargeResult, error)
	Credit(ctx context.Context, req ChargeRequest) (ChargeResult, error)
}
