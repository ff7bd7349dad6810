package pods

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"podvault/internal/integrity"
	"podvault/internal/metrics"
	"podvault/internal/models"
)

// expectedCycles is the number of contribution cycles a member is expected
// to fund over the pod's life.
func expectedCycles(pod models.Pod) int {
	if pod.Type == models.PodTypeCustom {
		return pod.ExpectedMembers
	}
	return (pod.LifecycleWeeks + 1) / 2
}

// contributionTarget is the full expected contribution for one membership.
func contributionTarget(pod models.Pod) int64 {
	return pod.Amount * int64(expectedCycles(pod))
}

// CompleteMembership marks a membership paid out. Calling it again is a
// no-op. When every non-bot membership of the pod is paid, the pod
// transitions to COMPLETED. Bot memberships are rejected outright.
func (s *Service) CompleteMembership(ctx context.Context, membershipID uuid.UUID) error {
	now := s.now()

	var completed *models.Pod
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m models.Membership
		if err := tx.First(&m, "id = ?", membershipID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrMembershipNotFound
			}
			return err
		}
		if m.SystemBot {
			return ErrBotMembership
		}
		if m.PaidOut {
			return nil
		}

		var pod models.Pod
		if err := tx.First(&pod, "id = ?", m.PodID).Error; err != nil {
			return err
		}
		if err := integrity.VerifyPod(s.key, pod); err != nil {
			return err
		}

		m.PaidOut = true
		m.TotalContributed = contributionTarget(pod)
		if err := tx.Save(&m).Error; err != nil {
			return err
		}

		var remaining int64
		err := tx.Model(&models.Membership{}).
			Where("pod_id = ? AND system_bot = ? AND paid_out = ?", pod.ID, false, false).
			Count(&remaining).Error
		if err != nil {
			return err
		}
		if remaining > 0 {
			return nil
		}

		completedAt := now
		pod.Status = models.PodStatusCompleted
		pod.CompletedAt = &completedAt
		pod.NextContributionDate = nil
		pod.NextPayoutDate = nil
		pod.Checksum = integrity.PodChecksum(s.key, pod)
		if err := tx.Save(&pod).Error; err != nil {
			return err
		}
		completed = &pod
		return nil
	})
	if err != nil {
		return err
	}

	if completed != nil {
		s.cache.invalidate(completed.PlanCode)
		metrics.PodsCompleted.WithLabelValues(string(completed.Type)).Inc()
		s.events.PodCompleted(ctx, *completed)
		s.log.Info().Str("pod_id", completed.ID.String()).Msg("pod completed")
	}
	return nil
}
