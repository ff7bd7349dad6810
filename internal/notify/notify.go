// Package notify publishes fire-and-forget lifecycle events for downstream
// notification and achievement consumers. Publish failures are logged and
// never propagated into lifecycle state.
package notify

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"podvault/internal/models"
	"podvault/pkg/bus"
)

const (
	subjectMembershipJoined = "podvault.memberships.joined"
	subjectPodActivated     = "podvault.pods.activated"
	subjectPodCompleted     = "podvault.pods.completed"
	subjectContributionDue  = "podvault.contributions.due"
)

// Events receives pod lifecycle notifications.
type Events interface {
	MembershipJoined(ctx context.Context, pod models.Pod, m models.Membership)
	PodActivated(ctx context.Context, pod models.Pod)
	PodCompleted(ctx context.Context, pod models.Pod)
	ContributionDue(ctx context.Context, pod models.Pod, m models.Membership, windowStart time.Time)
}

// Nop discards all events. Used when no bus is configured and in tests.
type Nop struct{}

func (Nop) MembershipJoined(context.Context, models.Pod, models.Membership)           {}
func (Nop) PodActivated(context.Context, models.Pod)                                  {}
func (Nop) PodCompleted(context.Context, models.Pod)                                  {}
func (Nop) ContributionDue(context.Context, models.Pod, models.Membership, time.Time) {}

// BusEvents publishes events to NATS.
type BusEvents struct {
	bus *bus.Bus
	log zerolog.Logger
}

// NewBusEvents builds a NATS-backed Events.
func NewBusEvents(b *bus.Bus, log zerolog.Logger) *BusEvents {
	return &BusEvents{bus: b, log: log}
}

func (e *BusEvents) publish(ctx context.Context, subj, msgID string, payload map[string]any) {
	if err := e.bus.Publish(ctx, subj, msgID, payload); err != nil {
		e.log.Warn().Err(err).Str("subject", subj).Msg("publish lifecycle event")
	}
}

func (e *BusEvents) MembershipJoined(ctx context.Context, pod models.Pod, m models.Membership) {
	e.publish(ctx, subjectMembershipJoined, "membership-joined-"+m.ID.String(), map[string]any{
		"pod_id":        pod.ID,
		"pod_type":      pod.Type,
		"plan_code":     pod.PlanCode,
		"membership_id": m.ID,
		"account_id":    m.AccountID,
		"join_order":    m.JoinOrder,
	})
}

func (e *BusEvents) PodActivated(ctx context.Context, pod models.Pod) {
	e.publish(ctx, subjectPodActivated, "pod-activated-"+pod.ID.String(), map[string]any{
		"pod_id":     pod.ID,
		"pod_type":   pod.Type,
		"plan_code":  pod.PlanCode,
		"start_date": pod.StartDate,
	})
}

func (e *BusEvents) PodCompleted(ctx context.Context, pod models.Pod) {
	e.publish(ctx, subjectPodCompleted, "pod-completed-"+pod.ID.String(), map[string]any{
		"pod_id":       pod.ID,
		"pod_type":     pod.Type,
		"plan_code":    pod.PlanCode,
		"completed_at": pod.CompletedAt,
	})
}

func (e *BusEvents) ContributionDue(ctx context.Context, pod models.Pod, m models.Membership, windowStart time.Time) {
	e.publish(ctx, subjectContributionDue, "contribution-due-"+m.ID.String()+"-"+windowStart.Format("2006-01-02"), map[string]any{
		"pod_id":        pod.ID,
		"membership_id": m.ID,
		"account_id":    m.AccountID,
		"amount":        pod.Amount,
		"window_start":  windowStart,
	})
}
