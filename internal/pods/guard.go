package pods

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"podvault/internal/metrics"
	"podvault/internal/models"
)

// checkJoinEligibility enforces the hard account-level blocks: missing payout
// bank account, fraud review, missed payment, or an existing overheat flag.
func (s *Service) checkJoinEligibility(account models.Account) error {
	switch {
	case !account.BankAccountLinked:
		return fmt.Errorf("%w: no linked payout bank account", ErrJoinBlocked)
	case account.FraudReview:
		return fmt.Errorf("%w: account under fraud review", ErrJoinBlocked)
	case account.MissedPayment:
		return fmt.Errorf("%w: unresolved missed payment", ErrJoinBlocked)
	case account.Overheated:
		return fmt.Errorf("%w: account flagged overheat", ErrJoinBlocked)
	}
	return nil
}

// checkJoinCooldown blocks a 4th join within 7 days of the 3rd-most-recent
// join. Applied at join time only, not at invite acceptance.
func (s *Service) checkJoinCooldown(ctx context.Context, accountID uuid.UUID, now time.Time) error {
	var recent []models.Membership
	err := s.db.WithContext(ctx).
		Where("account_id = ? AND system_bot = ?", accountID, false).
		Order("created_at DESC").
		Limit(cooldownJoinCount).
		Find(&recent).Error
	if err != nil {
		return err
	}

	if len(recent) < cooldownJoinCount {
		return nil
	}
	third := recent[cooldownJoinCount-1]
	if now.Sub(third.CreatedAt) < cooldownWindow {
		return fmt.Errorf("%w: %d joins within the last week", ErrJoinCooldown, cooldownJoinCount)
	}
	return nil
}

// flagOverheatIfNeeded runs after a successful join: more than
// overheatJoinLimit non-bot joins inside the trailing window flips the
// one-way overheat flag. Remediation is external; this engine never clears
// it.
func (s *Service) flagOverheatIfNeeded(ctx context.Context, account models.Account, now time.Time) error {
	if account.Overheated {
		return nil
	}

	var count int64
	err := s.db.WithContext(ctx).Model(&models.Membership{}).
		Where("account_id = ? AND system_bot = ? AND created_at > ?", account.ID, false, now.Add(-overheatWindow)).
		Count(&count).Error
	if err != nil {
		return err
	}
	if count <= overheatJoinLimit {
		return nil
	}

	flaggedAt := now
	err = s.db.WithContext(ctx).Model(&models.Account{}).
		Where("id = ?", account.ID).
		Updates(map[string]any{"overheated": true, "overheated_at": flaggedAt}).Error
	if err != nil {
		return err
	}

	metrics.AccountsOverheated.Inc()
	s.log.Warn().Str("account_id", account.ID.String()).Int64("recent_joins", count).
		Msg("account flagged overheat")
	return nil
}
