package pods

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"podvault/internal/integrity"
	"podvault/internal/metrics"
	"podvault/internal/models"
	"podvault/internal/schedule"
)

// CreateCustomPodInput carries the creator's pod configuration.
type CreateCustomPodInput struct {
	CreatorAccountID   uuid.UUID
	InviteEmails       []string
	Cadence            schedule.Cadence
	Amount             int64
	RandomizePositions bool
	Name               string
	InviteOrigin       string
}

// InviteToken pairs an invitee email with its opaque token. Tokens are
// returned exactly once; only digests are persisted.
type InviteToken struct {
	Email string
	Token string
}

// CustomPodResult is returned from CreateCustomPod.
type CustomPodResult struct {
	Pod        models.Pod
	Membership models.Membership
	Invites    []InviteToken
}

// CreateCustomPod creates a PENDING custom pod with one membership for the
// creator and one invite per invitee. Lifecycle weeks derive from the member
// count: members x 2 for bi-weekly, members x 4 for monthly.
func (s *Service) CreateCustomPod(ctx context.Context, in CreateCustomPodInput) (CustomPodResult, error) {
	now := s.now()

	account, err := s.loadAccount(ctx, in.CreatorAccountID)
	if err != nil {
		return CustomPodResult{}, err
	}
	if err := s.checkJoinEligibility(account); err != nil {
		return CustomPodResult{}, err
	}

	if !in.Cadence.Valid() {
		return CustomPodResult{}, fmt.Errorf("%w: %q", ErrInvalidCadence, in.Cadence)
	}
	emails, err := normalizeInviteEmails(in.InviteEmails, account.Email)
	if err != nil {
		return CustomPodResult{}, err
	}
	if in.Amount <= 0 {
		return CustomPodResult{}, fmt.Errorf("%w: amount must be positive", ErrInvalidInvitees)
	}

	members := len(emails) + 1
	weeks := members * 2
	if in.Cadence == schedule.CadenceMonthly {
		weeks = members * 4
	}

	var result CustomPodResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		pod := models.Pod{
			ID:                   uuid.New(),
			PlanCode:             "custom",
			Type:                 models.PodTypeCustom,
			Status:               models.PodStatusPending,
			Name:                 in.Name,
			Amount:               in.Amount,
			LifecycleWeeks:       weeks,
			MaxMembers:           members,
			Cadence:              in.Cadence,
			RandomizePayoutOrder: in.RandomizePositions,
			ExpectedMembers:      members,
		}

		creator := in.CreatorAccountID
		membership := models.Membership{
			ID:        uuid.New(),
			PodID:     pod.ID,
			AccountID: &creator,
			JoinOrder: 1,
		}

		invites := make([]models.Invite, 0, len(emails))
		tokens := make([]InviteToken, 0, len(emails))
		for i, email := range emails {
			token, digest, err := newInviteToken()
			if err != nil {
				return err
			}
			invites = append(invites, models.Invite{
				ID:          uuid.New(),
				PodID:       pod.ID,
				Email:       email,
				InviteOrder: i + 1,
				TokenDigest: digest,
				Origin:      in.InviteOrigin,
				InvitedAt:   now,
			})
			tokens = append(tokens, InviteToken{Email: email, Token: token})
		}

		pod.InviteChecksum = integrity.InviteChecksum(s.key, invites)
		pod.Checksum = integrity.PodChecksum(s.key, pod)

		if err := tx.Create(&pod).Error; err != nil {
			return err
		}
		if err := tx.Create(&membership).Error; err != nil {
			return err
		}
		for i := range invites {
			if err := tx.Create(&invites[i]).Error; err != nil {
				return err
			}
		}

		result = CustomPodResult{Pod: pod, Membership: membership, Invites: tokens}
		return nil
	})
	if err != nil {
		return CustomPodResult{}, err
	}

	metrics.MembershipsJoined.Inc()
	s.events.MembershipJoined(ctx, result.Pod, result.Membership)

	if err := s.flagOverheatIfNeeded(ctx, account, now); err != nil {
		s.log.Error().Err(err).Str("account_id", account.ID.String()).Msg("overheat check failed")
	}

	s.log.Info().Str("pod_id", result.Pod.ID.String()).Int("invites", len(result.Invites)).
		Str("cadence", string(in.Cadence)).Msg("custom pod created")
	return result, nil
}

// AcceptCustomPodInvite validates the token against the authenticating
// account and creates the membership. When the last outstanding invite is
// accepted the pod activates: schedule computed, final order assigned,
// status ACTIVE.
func (s *Service) AcceptCustomPodInvite(ctx context.Context, token string, accountID uuid.UUID) (models.Membership, error) {
	now := s.now()

	account, err := s.loadAccount(ctx, accountID)
	if err != nil {
		return models.Membership{}, err
	}
	if err := s.checkJoinEligibility(account); err != nil {
		return models.Membership{}, err
	}

	digest := tokenDigest(token)

	var membership models.Membership
	var pod models.Pod
	activated := false

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var invite models.Invite
		if err := tx.First(&invite, "token_digest = ?", digest).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrInviteNotFound
			}
			return err
		}
		if invite.AcceptedAt != nil {
			return ErrInviteAlreadyAccepted
		}
		if !strings.EqualFold(invite.Email, account.Email) {
			return ErrInviteEmailMismatch
		}

		if err := tx.First(&pod, "id = ?", invite.PodID).Error; err != nil {
			return err
		}
		if pod.Status != models.PodStatusPending {
			return fmt.Errorf("%w: pod no longer accepting invites", ErrPodFull)
		}

		var invites []models.Invite
		if err := tx.Where("pod_id = ?", pod.ID).Order("invite_order").Find(&invites).Error; err != nil {
			return err
		}
		if err := integrity.VerifyPod(s.key, pod); err != nil {
			return err
		}
		if err := integrity.VerifyInvites(s.key, pod, invites); err != nil {
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
		}
		if err := tx.Create(&membership).Error; err != nil {
			return err
		}

		acceptedAt := now
		invite.AcceptedAt = &acceptedAt
		invite.AccountID = &acct
		if err := tx.Save(&invite).Error; err != nil {
			return err
		}
		for i := range invites {
			if invites[i].ID == invite.ID {
				invites[i] = invite
			}
		}

		allAccepted := true
		for _, inv := range invites {
			if inv.AcceptedAt == nil {
				allAccepted = false
				break
			}
		}
		if allAccepted {
			if err := s.activateCustomPod(tx, &pod, invites, now); err != nil {
				return err
			}
			activated = true
		}

		pod.InviteChecksum = integrity.InviteChecksum(s.key, invites)
		pod.Checksum = integrity.PodChecksum(s.key, pod)
		return tx.Save(&pod).Error
	})
	if err != nil {
		return models.Membership{}, err
	}

	metrics.MembershipsJoined.Inc()
	s.events.MembershipJoined(ctx, pod, membership)
	if activated {
		metrics.PodsActivated.WithLabelValues(string(models.PodTypeCustom)).Inc()
		s.events.PodActivated(ctx, pod)
	}

	// Invite acceptance bypasses the join cooldown but still counts toward
	// the join-rate guard.
	if err := s.flagOverheatIfNeeded(ctx, account, now); err != nil {
		s.log.Error().Err(err).Str("account_id", accountID.String()).Msg("overheat check failed")
	}

	s.log.Info().Str("pod_id", pod.ID.String()).Str("account_id", accountID.String()).
		Bool("activated", activated).Msg("invite accepted")
	return membership, nil
}

// activateCustomPod fixes the pod's schedule: a contribution-window-aligned
// start (the next window when now falls outside one), payout dates from the
// cadence schedule, and the final payout order. The schedule is never
// recomputed afterwards; only an explicit swap alters it.
func (s *Service) activateCustomPod(tx *gorm.DB, pod *models.Pod, invites []models.Invite, now time.Time) error {
	start := schedule.ResolveWindowStart(now, pod.Cadence)

	var members []models.Membership
	if err := tx.Where("pod_id = ?", pod.ID).Order("join_order").Find(&members).Error; err != nil {
		return err
	}

	if pod.RandomizePayoutOrder {
		s.shuffle(len(members), func(i, j int) { members[i], members[j] = members[j], members[i] })
	} else {
		orderByAccount := make(map[uuid.UUID]int, len(invites))
		for _, inv := range invites {
			if inv.AccountID != nil {
				orderByAccount[*inv.AccountID] = inv.InviteOrder
			}
		}
		// Creator sorts first, invitees by invite order, anyone without a
		// matching invite record last by join order.
		sortKey := func(m models.Membership) int {
			if m.JoinOrder == 1 {
				return 0
			}
			if m.AccountID != nil {
				if order, ok := orderByAccount[*m.AccountID]; ok {
					return order
				}
			}
			return len(invites) + 1 + m.JoinOrder
		}
		sort.SliceStable(members, func(i, j int) bool {
			return sortKey(members[i]) < sortKey(members[j])
		})
	}

	dates := schedule.CustomPayoutSchedule(start, len(members), pod.Cadence)
	for i := range members {
		order := i + 1
		date := dates[i]
		members[i].FinalOrder = &order
		members[i].PayoutDate = &date
		if err := tx.Save(&members[i]).Error; err != nil {
			return err
		}
	}

	lockedAt := now
	next := start
	first := dates[0]
	pod.Status = models.PodStatusActive
	pod.StartDate = &start
	pod.ScheduledStartDate = &start
	pod.LockedAt = &lockedAt
	pod.NextContributionDate = &next
	pod.NextPayoutDate = &first

	s.log.Info().Str("pod_id", pod.ID.String()).Time("start", start).
		Int("members", len(members)).Msg("custom pod activated")
	return nil
}

// SwapResult reports the two updated positions after a swap.
type SwapResult struct {
	FirstMembershipID  uuid.UUID
	FirstOrder         int
	SecondMembershipID uuid.UUID
	SecondOrder        int
}

// SwapPayoutPositions exchanges finalOrder and payoutDate between exactly two
// memberships of the same active custom pod.
func (s *Service) SwapPayoutPositions(ctx context.Context, podID, firstID, secondID uuid.UUID) (SwapResult, error) {
	if firstID == secondID {
		return SwapResult{}, ErrSameMembership
	}

	var result SwapResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var pod models.Pod
		if err := tx.First(&pod, "id = ?", podID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrPodNotFound
			}
			return err
		}
		if pod.Type != models.PodTypeCustom {
			return ErrNotCustomPod
		}
		if pod.Status != models.PodStatusActive {
			return ErrPodNotActive
		}
		if err := integrity.VerifyPod(s.key, pod); err != nil {
			return err
		}

		load := func(id uuid.UUID) (models.Membership, error) {
			var m models.Membership
			if err := tx.First(&m, "id = ? AND pod_id = ?", id, podID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return m, fmt.Errorf("%w: %s", ErrMembershipNotFound, id)
				}
				return m, err
			}
			return m, nil
		}

		first, err := load(firstID)
		if err != nil {
			return err
		}
		second, err := load(secondID)
		if err != nil {
			return err
		}
		if first.FinalOrder == nil || second.FinalOrder == nil {
			return ErrOrderNotAssigned
		}

		first.FinalOrder, second.FinalOrder = second.FinalOrder, first.FinalOrder
		first.PayoutDate, second.PayoutDate = second.PayoutDate, first.PayoutDate

		if err := tx.Save(&first).Error; err != nil {
			return err
		}
		if err := tx.Save(&second).Error; err != nil {
			return err
		}

		pod.Checksum = integrity.PodChecksum(s.key, pod)
		if err := tx.Save(&pod).Error; err != nil {
			return err
		}

		result = SwapResult{
			FirstMembershipID:  first.ID,
			FirstOrder:         *first.FinalOrder,
			SecondMembershipID: second.ID,
			SecondOrder:        *second.FinalOrder,
		}
		return nil
	})
	if err != nil {
		return SwapResult{}, err
	}

	s.log.Info().Str("pod_id", podID.String()).
		Str("first", firstID.String()).Str("second", secondID.String()).
		Msg("payout positions swapped")
	return result, nil
}

func normalizeInviteEmails(raw []string, creatorEmail string) ([]string, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: at least one invitee required", ErrInvalidInvitees)
	}

	seen := make(map[string]bool, len(raw))
	emails := make([]string, 0, len(raw))
	creator := strings.ToLower(strings.TrimSpace(creatorEmail))
	for _, e := range raw {
		email := strings.ToLower(strings.TrimSpace(e))
		if email == "" || !strings.Contains(email, "@") {
			return nil, fmt.Errorf("%w: %q", ErrInvalidInvitees, e)
		}
		if email == creator {
			return nil, fmt.Errorf("%w: creator cannot invite themselves", ErrInvalidInvitees)
		}
		if seen[email] {
			return nil, fmt.Errorf("%w: duplicate invitee %q", ErrInvalidInvitees, email)
		}
		seen[email] = true
		emails = append(emails, email)
	}
	return emails, nil
}

func newInviteToken() (token, digest string, err error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", err
	}
	token = hex.EncodeToString(buf)
	return token, tokenDigest(token), nil
}

func tokenDigest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
