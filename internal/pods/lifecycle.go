package pods

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"podvault/internal/integrity"
	"podvault/internal/metrics"
	"podvault/internal/models"
	"podvault/internal/schedule"
)

// RefreshPods runs the per-plan lifecycle check for every active plan. It is
// invoked by the lifecycle-refresh scheduler and may be called directly with
// an explicit reference time. Failures are isolated per plan so one bad pod
// cannot stall the rest of the sweep.
func (s *Service) RefreshPods(ctx context.Context, reference *time.Time) error {
	now := s.now()
	if reference != nil {
		now = reference.UTC()
	}

	var plans []models.Plan
	if err := s.db.WithContext(ctx).Where("active = ?", true).Order("code").Find(&plans).Error; err != nil {
		return fmt.Errorf("list active plans: %w", err)
	}

	var firstErr error
	for _, plan := range plans {
		if err := s.refreshPlan(ctx, plan, now); err != nil {
			s.log.Error().Err(err).Str("plan", plan.Code).Msg("plan lifecycle check failed")
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	s.cache.invalidateAll()
	return firstErr
}

// refreshPlan guarantees one OPEN pod exists for the plan, then advances the
// plan's OPEN and GRACE pods.
func (s *Service) refreshPlan(ctx context.Context, plan models.Plan, now time.Time) error {
	if err := s.ensureOpenPod(ctx, plan, now); err != nil {
		return err
	}

	var pods []models.Pod
	err := s.db.WithContext(ctx).
		Where("plan_code = ? AND type = ? AND status IN ?", plan.Code, models.PodTypeSystem,
			[]models.PodStatus{models.PodStatusOpen, models.PodStatusGrace}).
		Order("created_at").
		Find(&pods).Error
	if err != nil {
		return fmt.Errorf("list open pods for plan %s: %w", plan.Code, err)
	}

	for _, pod := range pods {
		if err := s.advancePod(ctx, pod.ID, now); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) ensureOpenPod(ctx context.Context, plan models.Plan, now time.Time) error {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Pod{}).
		Where("plan_code = ? AND type = ? AND status = ?", plan.Code, models.PodTypeSystem, models.PodStatusOpen).
		Count(&count).Error
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	start := nextOpenStart(now, schedule.CadenceBiWeekly)
	pod := models.Pod{
		ID:                 uuid.New(),
		PlanCode:           plan.Code,
		Type:               models.PodTypeSystem,
		Status:             models.PodStatusOpen,
		Amount:             plan.Amount,
		LifecycleWeeks:     plan.LifecycleWeeks,
		MaxMembers:         plan.MaxMembers,
		Cadence:            schedule.CadenceBiWeekly,
		ExpectedMembers:    plan.MaxMembers,
		ScheduledStartDate: &start,
	}
	pod.Checksum = integrity.PodChecksum(s.key, pod)

	if err := s.db.WithContext(ctx).Create(&pod).Error; err != nil {
		return fmt.Errorf("open pod for plan %s: %w", plan.Code, err)
	}

	metrics.PodsOpened.Inc()
	s.cache.invalidate(plan.Code)
	s.log.Info().Str("plan", plan.Code).Str("pod_id", pod.ID.String()).
		Time("scheduled_start", start).Msg("opened system pod")
	return nil
}

// advancePod applies at most one state transition to a system pod, guarded
// by the state checksum.
func (s *Service) advancePod(ctx context.Context, podID uuid.UUID, now time.Time) error {
	var activated *models.Pod

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var pod models.Pod
		if err := tx.First(&pod, "id = ?", podID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrPodNotFound
			}
			return err
		}
		if err := integrity.VerifyPod(s.key, pod); err != nil {
			return err
		}

		var count int64
		if err := tx.Model(&models.Membership{}).Where("pod_id = ?", pod.ID).Count(&count).Error; err != nil {
			return err
		}

		today := schedule.Day(now)
		changed := false

		switch pod.Status {
		case models.PodStatusOpen:
			if pod.ScheduledStartDate == nil || today.Before(*pod.ScheduledStartDate) {
				return nil
			}
			if count == 0 {
				start := nextOpenStart(now, pod.Cadence)
				pod.ScheduledStartDate = &start
				changed = true
			} else {
				start := *pod.ScheduledStartDate
				graceEnd := start.AddDate(0, 0, GracePeriodDays)
				pod.Status = models.PodStatusGrace
				pod.StartDate = &start
				pod.GraceEndsAt = &graceEnd
				changed = true
				s.log.Info().Str("pod_id", pod.ID.String()).Time("grace_ends", graceEnd).
					Int64("members", count).Msg("pod entered grace")
			}

		case models.PodStatusGrace:
			if count == 0 {
				start := nextOpenStart(now, pod.Cadence)
				pod.Status = models.PodStatusOpen
				pod.ScheduledStartDate = &start
				pod.StartDate = nil
				pod.GraceEndsAt = nil
				changed = true
				s.log.Info().Str("pod_id", pod.ID.String()).Msg("pod drained, reverting to open")
			} else if pod.GraceEndsAt != nil && !today.Before(*pod.GraceEndsAt) {
				if err := s.lockPod(tx, &pod, now); err != nil {
					return err
				}
				activated = &pod
				changed = true
			}

		default:
			return nil
		}

		if !changed {
			return nil
		}
		pod.Checksum = integrity.PodChecksum(s.key, pod)
		return tx.Save(&pod).Error
	})
	if err != nil {
		return err
	}

	if activated != nil {
		s.cache.invalidate(activated.PlanCode)
		s.events.PodActivated(ctx, *activated)
		metrics.PodsActivated.WithLabelValues(string(models.PodTypeSystem)).Inc()
	}
	return nil
}

// lockPod performs the irreversible GRACE->ACTIVE transition: fill unsold
// capacity with bot slots, order bots first then shuffled real members,
// assign the 1..N payout order and dates.
func (s *Service) lockPod(tx *gorm.DB, pod *models.Pod, now time.Time) error {
	var members []models.Membership
	if err := tx.Where("pod_id = ?", pod.ID).Order("join_order").Find(&members).Error; err != nil {
		return err
	}

	for slot := len(members) + 1; slot <= pod.MaxMembers; slot++ {
		bot := models.Membership{
			ID:        uuid.New(),
			PodID:     pod.ID,
			JoinOrder: slot,
			SystemBot: true,
		}
		if err := tx.Create(&bot).Error; err != nil {
			return err
		}
		members = append(members, bot)
	}

	bots := make([]models.Membership, 0, len(members))
	humans := make([]models.Membership, 0, len(members))
	for _, m := range members {
		if m.SystemBot {
			bots = append(bots, m)
		} else {
			humans = append(humans, m)
		}
	}
	s.shuffle(len(humans), func(i, j int) { humans[i], humans[j] = humans[j], humans[i] })
	ordered := append(bots, humans...)

	if pod.StartDate == nil {
		return fmt.Errorf("pod %s has no start date at lock time", pod.ID)
	}
	dates := schedule.SystemPayoutSchedule(*pod.StartDate, len(ordered))

	for i := range ordered {
		order := i + 1
		date := dates[i]
		ordered[i].FinalOrder = &order
		ordered[i].PayoutDate = &date
		if err := tx.Save(&ordered[i]).Error; err != nil {
			return err
		}
	}

	lockedAt := now
	next := *pod.StartDate
	first := dates[0]
	pod.Status = models.PodStatusActive
	pod.LockedAt = &lockedAt
	pod.NextContributionDate = &next
	pod.NextPayoutDate = &first

	s.log.Info().Str("pod_id", pod.ID.String()).Int("members", len(ordered)).
		Int("bots", len(bots)).Time("first_payout", first).Msg("pod locked")
	return nil
}

// OpenPods returns the open-or-grace pods of a plan through the 30 second
// cache.
func (s *Service) OpenPods(ctx context.Context, planCode string) ([]models.Pod, error) {
	now := s.now()
	if pods, ok := s.cache.get(planCode, now); ok {
		return pods, nil
	}

	var pods []models.Pod
	err := s.db.WithContext(ctx).
		Where("plan_code = ? AND status IN ?", planCode,
			[]models.PodStatus{models.PodStatusOpen, models.PodStatusGrace}).
		Order("created_at").
		Find(&pods).Error
	if err != nil {
		return nil, err
	}

	s.cache.put(planCode, pods, now)
	return pods, nil
}
