package pods

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"podvault/internal/integrity"
	"podvault/internal/models"
	"podvault/internal/payments"
	"podvault/internal/schedule"
)

// RecordPaymentInput describes an immediate or webhook-delivered contribution
// status keyed by processor reference.
type RecordPaymentInput struct {
	Reference    string
	MembershipID uuid.UUID
	Status       payments.Status
	WindowStart  time.Time
	Metadata     map[string]string
}

// RecordPayment persists a contribution status. It is the single code path
// for both the debit scheduler's immediate results and processor webhooks:
// repeated deliveries of the same reference converge on one row, and the
// success side effects (contribution total, window advance) apply exactly
// once, on the transition into a terminal status.
func (s *Service) RecordPayment(ctx context.Context, in RecordPaymentInput) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m models.Membership
		if err := tx.First(&m, "id = ?", in.MembershipID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrMembershipNotFound
			}
			return err
		}
		if m.AccountID == nil {
			return ErrBotMembership
		}

		var pod models.Pod
		if err := tx.First(&pod, "id = ?", m.PodID).Error; err != nil {
			return err
		}
		if err := integrity.VerifyPod(s.key, pod); err != nil {
			return err
		}

		window := schedule.Day(in.WindowStart)
		payment, applied, err := upsertPayment(tx, models.Payment{
			ID:           uuid.New(),
			PodID:        pod.ID,
			MembershipID: m.ID,
			AccountID:    *m.AccountID,
			Kind:         models.PaymentKindContribution,
			Amount:       pod.Amount,
			Currency:     defaultCurrency,
			Status:       string(in.Status),
			ProcessorRef: in.Reference,
			WindowStart:  &window,
			Metadata:     jsonMetadata(in.Metadata),
		})
		if err != nil {
			return err
		}
		if !applied {
			return nil
		}

		switch payments.Status(payment.Status) {
		case payments.StatusSucceeded:
			if target := contributionTarget(pod); m.TotalContributed < target {
				m.TotalContributed += pod.Amount
				if m.TotalContributed > target {
					m.TotalContributed = target
				}
				if err := tx.Save(&m).Error; err != nil {
					return err
				}
			}
			return s.advanceContributionWindow(tx, &pod, window)

		case payments.StatusFailed:
			return flagMissedPayment(tx, *m.AccountID)
		}
		return nil
	})
}

// RecordPayoutInput describes an immediate or webhook-delivered payout status.
type RecordPayoutInput struct {
	Reference    string
	MembershipID uuid.UUID
	Status       payments.Status
	Metadata     map[string]string
}

// RecordPayout persists a payout status; a successful payout completes the
// membership through the one completion code path.
func (s *Service) RecordPayout(ctx context.Context, in RecordPayoutInput) error {
	var succeeded bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m models.Membership
		if err := tx.First(&m, "id = ?", in.MembershipID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrMembershipNotFound
			}
			return err
		}
		if m.AccountID == nil {
			return ErrBotMembership
		}

		var pod models.Pod
		if err := tx.First(&pod, "id = ?", m.PodID).Error; err != nil {
			return err
		}

		payout := pod.Amount * int64(pod.ExpectedMembers)
		_, applied, err := upsertPayment(tx, models.Payment{
			ID:           uuid.New(),
			PodID:        pod.ID,
			MembershipID: m.ID,
			AccountID:    *m.AccountID,
			Kind:         models.PaymentKindPayout,
			Amount:       payout,
			Currency:     defaultCurrency,
			Status:       string(in.Status),
			ProcessorRef: in.Reference,
			Metadata:     jsonMetadata(in.Metadata),
		})
		if err != nil {
			return err
		}
		if !applied {
			return nil
		}

		switch in.Status {
		case payments.StatusSucceeded:
			succeeded = true
		case payments.StatusFailed:
			return flagMissedPayment(tx, *m.AccountID)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if succeeded {
		return s.CompleteMembership(ctx, in.MembershipID)
	}
	return nil
}

// upsertPayment creates or updates the payment row for a reference. It
// reports whether the given status newly took effect; terminal rows are
// immutable, so replays and duplicate webhooks report false.
func upsertPayment(tx *gorm.DB, incoming models.Payment) (models.Payment, bool, error) {
	var existing models.Payment
	err := tx.First(&existing, "processor_ref = ?", incoming.ProcessorRef).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		if err := tx.Create(&incoming).Error; err != nil {
			return models.Payment{}, false, err
		}
		return incoming, true, nil
	case err != nil:
		return models.Payment{}, false, err
	}

	if payments.Status(existing.Status).Terminal() {
		return existing, false, nil
	}
	if existing.Status == incoming.Status {
		return existing, false, nil
	}
	existing.Status = incoming.Status
	if err := tx.Save(&existing).Error; err != nil {
		return models.Payment{}, false, err
	}
	return existing, true, nil
}

// jsonMetadata converts the charge context to the stored column type, nil
// when there is nothing to record.
func jsonMetadata(meta map[string]string) datatypes.JSONMap {
	if len(meta) == 0 {
		return nil
	}
	out := make(datatypes.JSONMap, len(meta))
	for k, v := range meta {
		out[k] = v
	}
	return out
}

// advanceContributionWindow moves the pod's next contribution date one
// window forward, at most once per window regardless of how many members
// paid.
func (s *Service) advanceContributionWindow(tx *gorm.DB, pod *models.Pod, window time.Time) error {
	if pod.NextContributionDate != nil && pod.NextContributionDate.After(window) {
		return nil
	}
	next := schedule.NextWindowStart(window, pod.Cadence)
	pod.NextContributionDate = &next
	pod.CycleCount++
	pod.Checksum = integrity.PodChecksum(s.key, *pod)
	if err := tx.Save(pod).Error; err != nil {
		return fmt.Errorf("advance contribution window: %w", err)
	}
	return nil
}

func flagMissedPayment(tx *gorm.DB, accountID uuid.UUID) error {
	return tx.Model(&models.Account{}).
		Where("id = ?", accountID).
		Update("missed_payment", true).Error
}
