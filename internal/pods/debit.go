package pods

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"

	"podvault/internal/metrics"
	"podvault/internal/models"
	"podvault/internal/payments"
	"podvault/internal/schedule"
)

// debitRetries bounds transient-transport retries against the processor
// within one tick. The idempotency reference makes the retries safe.
const debitRetries = 3

// RunContributionDebits is the daily auto-debit pass. Each membership is
// processed and persisted independently: a failure on one never blocks the
// rest, and re-running the tick is safe because successful and in-flight
// windows are skipped.
func (s *Service) RunContributionDebits(ctx context.Context, now time.Time) error {
	today := schedule.Day(now)

	var pods []models.Pod
	err := s.db.WithContext(ctx).
		Where("status = ?", models.PodStatusActive).
		Order("created_at").
		Find(&pods).Error
	if err != nil {
		return fmt.Errorf("list active pods: %w", err)
	}

	var firstErr error
	for _, pod := range pods {
		if !schedule.InContributionWindow(today, pod.Cadence) {
			continue
		}
		if err := s.debitPodMembers(ctx, pod, today); err != nil {
			s.log.Error().Err(err).Str("pod_id", pod.ID.String()).Msg("contribution debit pass failed")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (s *Service) debitPodMembers(ctx context.Context, pod models.Pod, today time.Time) error {
	window := schedule.ResolveWindowStart(today, pod.Cadence)
	target := contributionTarget(pod)

	var members []models.Membership
	err := s.db.WithContext(ctx).
		Where("pod_id = ? AND system_bot = ?", pod.ID, false).
		Order("join_order").
		Find(&members).Error
	if err != nil {
		return err
	}

	for _, m := range members {
		if m.AccountID == nil || m.PaidOut || m.TotalContributed >= target {
			continue
		}

		account, err := s.loadAccount(ctx, *m.AccountID)
		if err != nil {
			return err
		}
		if account.PaymentMethodID == nil {
			continue
		}

		done, err := s.windowSettledOrInFlight(ctx, m.ID, window)
		if err != nil {
			return err
		}
		if done {
			continue
		}

		if err := s.debitMembership(ctx, pod, m, account, window); err != nil {
			s.log.Error().Err(err).Str("membership_id", m.ID.String()).Msg("contribution debit failed")
		}
	}
	return nil
}

// windowSettledOrInFlight reports whether a successful or still-pending
// contribution payment already exists for the membership in this window.
func (s *Service) windowSettledOrInFlight(ctx context.Context, membershipID any, window time.Time) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Payment{}).
		Where("membership_id = ? AND kind = ? AND window_start = ? AND status IN ?",
			membershipID, models.PaymentKindContribution, window,
			[]string{
				string(payments.StatusSucceeded),
				string(payments.StatusProcessing),
				string(payments.StatusRequiresAction),
			}).
		Count(&count).Error
	return count > 0, err
}

func (s *Service) debitMembership(ctx context.Context, pod models.Pod, m models.Membership, account models.Account, window time.Time) error {
	req := payments.ChargeRequest{
		AccountID:       account.ID,
		PaymentMethodID: *account.PaymentMethodID,
		Amount:          pod.Amount,
		Currency:        defaultCurrency,
		Reference:       fmt.Sprintf("contrib-%s-%s", m.ID, window.Format("2006-01-02")),
		Metadata: map[string]string{
			"pod_id":        pod.ID.String(),
			"membership_id": m.ID.String(),
			"kind":          "contribution",
		},
	}

	result, err := s.charge(ctx, req, s.processor.Debit)
	if err != nil {
		// Terminal transport failure degrades to a missed-payment flag so
		// later passes skip the account instead of raising.
		if !errors.Is(err, payments.ErrUnavailable) {
			return err
		}
		metrics.ContributionDebits.WithLabelValues("unavailable").Inc()
		return nil
	}

	metrics.ContributionDebits.WithLabelValues(string(result.Status)).Inc()
	return s.RecordPayment(ctx, RecordPaymentInput{
		Reference:    result.Reference,
		MembershipID: m.ID,
		Status:       result.Status,
		WindowStart:  window,
		Metadata:     req.Metadata,
	})
}

// charge invokes a processor call with bounded retries on transient
// transport errors.
func (s *Service) charge(ctx context.Context, req payments.ChargeRequest, call func(context.Context, payments.ChargeRequest) (payments.ChargeResult, error)) (payments.ChargeResult, error) {
	var result payments.ChargeResult
	backoff := retry.WithMaxRetries(debitRetries, retry.NewFibonacci(time.Second))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var err error
		result, err = call(ctx, req)
		if errors.Is(err, payments.ErrUnavailable) {
			return retry.RetryableError(err)
		}
		return err
	})
	return result, err
}
