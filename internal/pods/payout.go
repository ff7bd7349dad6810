package pods

import (
	"context"
	"errors"
	"fmt"
	"time"

	"podvault/internal/metrics"
	"podvault/internal/models"
	"podvault/internal/payments"
	"podvault/internal/schedule"
)

// RunPayoutCredits is the daily auto-credit pass: memberships whose payout
// date falls today and are not yet paid out get a credit request, unless the
// account is flagged or a payout is already active for the membership.
func (s *Service) RunPayoutCredits(ctx context.Context, now time.Time) error {
	today := schedule.Day(now)
	tomorrow := today.AddDate(0, 0, 1)

	var members []models.Membership
	err := s.db.WithContext(ctx).
		Joins("JOIN pods ON pods.id = memberships.pod_id").
		Where("pods.status = ?", models.PodStatusActive).
		Where("memberships.system_bot = ? AND memberships.paid_out = ?", false, false).
		Where("memberships.payout_date >= ? AND memberships.payout_date < ?", today, tomorrow).
		Order("memberships.final_order").
		Find(&members).Error
	if err != nil {
		return fmt.Errorf("list due payouts: %w", err)
	}

	var firstErr error
	for _, m := range members {
		if err := s.creditMembership(ctx, m); err != nil {
			s.log.Error().Err(err).Str("membership_id", m.ID.String()).Msg("payout credit failed")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (s *Service) creditMembership(ctx context.Context, m models.Membership) error {
	if m.AccountID == nil {
		return nil
	}

	account, err := s.loadAccount(ctx, *m.AccountID)
	if err != nil {
		return err
	}
	if account.FraudReview || account.MissedPayment || account.Overheated {
		s.log.Warn().Str("membership_id", m.ID.String()).
			Str("account_id", account.ID.String()).Msg("payout skipped for flagged account")
		return nil
	}

	var active int64
	err = s.db.WithContext(ctx).Model(&models.Payment{}).
		Where("membership_id = ? AND kind = ? AND status IN ?", m.ID, models.PaymentKindPayout,
			[]string{
				string(payments.StatusSucceeded),
				string(payments.StatusProcessing),
				string(payments.StatusRequiresAction),
			}).
		Count(&active).Error
	if err != nil {
		return err
	}
	if active > 0 {
		return nil
	}

	var pod models.Pod
	if err := s.db.WithContext(ctx).First(&pod, "id = ?", m.PodID).Error; err != nil {
		return err
	}

	req := payments.ChargeRequest{
		AccountID: account.ID,
		Amount:    pod.Amount * int64(pod.ExpectedMembers),
		Currency:  defaultCurrency,
		Reference: fmt.Sprintf("payout-%s", m.ID),
		Metadata: map[string]string{
			"pod_id":        pod.ID.String(),
			"membership_id": m.ID.String(),
			"kind":          "payout",
		},
	}

	result, err := s.charge(ctx, req, s.processor.Credit)
	if err != nil {
		if !errors.Is(err, payments.ErrUnavailable) {
			return err
		}
		metrics.PayoutCredits.WithLabelValues("unavailable").Inc()
		return nil
	}

	metrics.PayoutCredits.WithLabelValues(string(result.Status)).Inc()
	return s.RecordPayout(ctx, RecordPayoutInput{
		Reference:    result.Reference,
		MembershipID: m.ID,
		Status:       result.Status,
		Metadata:     req.Metadata,
	})
}
