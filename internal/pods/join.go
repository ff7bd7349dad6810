package pods

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"podvault/internal/integrity"
	"podvault/internal/metrics"
	"podvault/internal/models"
)

// JoinPod enrolls an account into the plan's current open system pod. Joins
// are accepted while the pod is OPEN and during its grace window.
func (s *Service) JoinPod(ctx context.Context, accountID uuid.UUID, planCode string, goal int64, goalNote string) (models.Membership, error) {
	now := s.now()

	account, err := s.loadAccount(ctx, accountID)
	if err != nil {
		return models.Membership{}, err
	}
	if err := s.checkJoinEligibility(account); err != nil {
		return models.Membership{}, err
	}
	if err := s.checkJoinCooldown(ctx, accountID, now); err != nil {
		return models.Membership{}, err
	}

	var plan models.Plan
	if err := s.db.WithContext(ctx).First(&plan, "code = ?", planCode).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Membership{}, fmt.Errorf("%w: %s", ErrPlanNotFound, planCode)
		}
		return models.Membership{}, err
	}

	var membership models.Membership
	var joinedPod models.Pod

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var pod models.Pod
		err := tx.Where("plan_code = ? AND type = ? AND status IN ?", plan.Code, models.PodTypeSystem,
			[]models.PodStatus{models.PodStatusOpen, models.PodStatusGrace}).
			Order("created_at").
			First(&pod).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: no open pod for plan %s", ErrPodNotFound, plan.Code)
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
		if count >= int64(pod.MaxMembers) {
			return ErrPodFull
		}

		var existing int64
		if err := tx.Model(&models.Membership{}).
			Where("pod_id = ? AND account_id = ?", pod.ID, accountID).
			Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return ErrAlreadyMember
		}

		acct := accountID
		membership = models.Membership{
			ID:        uuid.New(),
			PodID:     pod.ID,
			AccountID: &acct,
			JoinOrder: int(count) + 1,
			Goal:      goal,
			GoalNote:  goalNote,
		}
		if err := tx.Create(&membership).Error; err != nil {
			return err
		}

		pod.Checksum = integrity.PodChecksum(s.key, pod)
		if err := tx.Save(&pod).Error; err != nil {
			return err
		}
		joinedPod = pod
		return nil
	})
	if err != nil {
		return models.Membership{}, err
	}

	s.cache.invalidate(plan.Code)
	metrics.MembershipsJoined.Inc()
	s.events.MembershipJoined(ctx, joinedPod, membership)

	if err := s.flagOverheatIfNeeded(ctx, account, now); err != nil {
		s.log.Error().Err(err).Str("account_id", accountID.String()).Msg("overheat check failed")
	}

	s.log.Info().Str("pod_id", joinedPod.ID.String()).Str("account_id", accountID.String()).
		Int("join_order", membership.JoinOrder).Msg("account joined pod")
	return membership, nil
}

func (s *Service) loadAccount(ctx context.Context, accountID uuid.UUID) (models.Account, error) {
	var account models.Account
	if err := s.db.WithContext(ctx).First(&account, "id = ?", accountID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Account{}, fmt.Errorf("%w: %s", ErrAccountNotFound, accountID)
		}
		return models.Account{}, err
	}
	return account, nil
}
