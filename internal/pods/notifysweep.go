package pods

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm/clause"

	"podvault/internal/metrics"
	"podvault/internal/models"
	"podvault/internal/schedule"
)

const notificationKindContributionDue = "contribution_due"

// RunDueNotifications raises a due-contribution notification for every
// unpaid, non-bot membership of an active pod that started before the
// current window and has not yet paid this window. The notifications table's
// unique index deduplicates per membership per window, so re-runs are safe.
func (s *Service) RunDueNotifications(ctx context.Context, now time.Time) error {
	today := schedule.Day(now)

	var firstErr error
	for _, cadence := range []schedule.Cadence{schedule.CadenceBiWeekly, schedule.CadenceMonthly} {
		if !schedule.InContributionWindow(today, cadence) {
			continue
		}
		window := schedule.ResolveWindowStart(today, cadence)
		if err := s.sweepCadence(ctx, cadence, window); err != nil {
			s.log.Error().Err(err).Str("cadence", string(cadence)).Msg("due-notification sweep failed")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (s *Service) sweepCadence(ctx context.Context, cadence schedule.Cadence, window time.Time) error {
	var pods []models.Pod
	err := s.db.WithContext(ctx).
		Where("status = ? AND cadence = ? AND start_date < ?", models.PodStatusActive, cadence, window).
		Find(&pods).Error
	if err != nil {
		return fmt.Errorf("list active pods for cadence %s: %w", cadence, err)
	}

	for _, pod := range pods {
		var members []models.Membership
		err := s.db.WithContext(ctx).
			Where("pod_id = ? AND system_bot = ? AND paid_out = ? AND account_id IS NOT NULL",
				pod.ID, false, false).
			Order("join_order").
			Find(&members).Error
		if err != nil {
			return err
		}

		for _, m := range members {
			settled, err := s.windowSettledOrInFlight(ctx, m.ID, window)
			if err != nil {
				return err
			}
			if settled {
				continue
			}
			if err := s.raiseDueNotification(ctx, pod, m, window); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Service) raiseDueNotification(ctx context.Context, pod models.Pod, m models.Membership, window time.Time) error {
	row := models.Notification{
		ID:           uuid.New(),
		MembershipID: m.ID,
		Kind:         notificationKindContributionDue,
		WindowStart:  window,
	}
	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return nil
	}

	metrics.DueNotifications.Inc()
	s.events.ContributionDue(ctx, pod, m, window)
	return nil
}
