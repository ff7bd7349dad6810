package pods

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"podvault/internal/models"
	"podvault/internal/payments"
)

func TestRunContributionDebits(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	pod, members := activeCustomPod(t, env)

	require.NoError(t, env.svc.RunContributionDebits(ctx, utcDate(2026, time.March, 2)))
	assert.Equal(t, 3, env.processor.debitCount())

	for _, m := range members {
		got := env.reloadMembership(t, m.ID)
		assert.EqualValues(t, 2500, got.TotalContributed)
	}

	got := env.reloadPod(t, pod.ID)
	assert.Equal(t, 1, got.CycleCount)
	require.NotNil(t, got.NextContributionDate)
	assert.Equal(t, utcDate(2026, time.March, 16), *got.NextContributionDate)

	var rows []models.Payment
	require.NoError(t, env.db.
		Where("pod_id = ? AND kind = ?", pod.ID, models.PaymentKindContribution).
		Find(&rows).Error)
	require.Len(t, rows, 3)
	for _, row := range rows {
		assert.Equal(t, "contribution", row.Metadata["kind"])
		assert.Equal(t, pod.ID.String(), row.Metadata["pod_id"])
	}
}

func TestRunContributionDebitsSkipsSettledWindow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	activeCustomPod(t, env)

	require.NoError(t, env.svc.RunContributionDebits(ctx, utcDate(2026, time.March, 2)))
	require.Equal(t, 3, env.processor.debitCount())

	// Rerunning inside the same window raises no new charges.
	require.NoError(t, env.svc.RunContributionDebits(ctx, utcDate(2026, time.March, 3)))
	assert.Equal(t, 3, env.processor.debitCount())
}

func TestRunContributionDebitsOutsideWindow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	activeCustomPod(t, env)

	require.NoError(t, env.svc.RunContributionDebits(ctx, utcDate(2026, time.March, 10)))
	assert.Equal(t, 0, env.processor.debitCount())
}

func TestRunContributionDebitsFailureFlagsAccount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.processor.status = payments.StatusFailed
	_, members := activeCustomPod(t, env)

	require.NoError(t, env.svc.RunContributionDebits(ctx, utcDate(2026, time.March, 2)))

	for _, m := range members {
		got := env.reloadMembership(t, m.ID)
		assert.EqualValues(t, 0, got.TotalContributed)
		account := env.reloadAccount(t, *got.AccountID)
		assert.True(t, account.MissedPayment)
	}
}

func TestRunContributionDebitsSkipsMembersWithoutPaymentMethod(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, members := activeCustomPod(t, env)

	require.NoError(t, env.db.Model(&models.Account{}).
		Where("id = ?", *members[0].AccountID).
		Update("payment_method_id", nil).Error)

	require.NoError(t, env.svc.RunContributionDebits(ctx, utcDate(2026, time.March, 2)))
	assert.Equal(t, 2, env.processor.debitCount())

	got := env.reloadMembership(t, members[0].ID)
	assert.EqualValues(t, 0, got.TotalContributed)
}

func TestRunPayoutCredits(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	pod, members := activeCustomPod(t, env)

	// Nobody pays out before the first anchor.
	require.NoError(t, env.svc.RunPayoutCredits(ctx, utcDate(2026, time.March, 10)))
	assert.Equal(t, 0, env.processor.creditCount())

	// The creator holds position one with a Mar 15 payout.
	require.NoError(t, env.svc.RunPayoutCredits(ctx, utcDate(2026, time.March, 15)))
	require.Equal(t, 1, env.processor.creditCount())
	assert.EqualValues(t, 7500, env.processor.credits[0].Amount, "payout is amount x expected members")

	first := env.reloadMembership(t, members[0].ID)
	assert.True(t, first.PaidOut)
	assert.Equal(t, models.PodStatusActive, env.reloadPod(t, pod.ID).Status)

	var payout models.Payment
	require.NoError(t, env.db.
		Where("membership_id = ? AND kind = ?", members[0].ID, models.PaymentKindPayout).
		First(&payout).Error)
	assert.Equal(t, "payout", payout.Metadata["kind"])
	assert.Equal(t, members[0].ID.String(), payout.Metadata["membership_id"])

	// Rerunning the same day finds the membership already paid.
	require.NoError(t, env.svc.RunPayoutCredits(ctx, utcDate(2026, time.March, 15)))
	assert.Equal(t, 1, env.processor.creditCount())
}

func TestRunPayoutCreditsSkipsFlaggedAccount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, members := activeCustomPod(t, env)

	require.NoError(t, env.db.Model(&models.Account{}).
		Where("id = ?", *members[0].AccountID).
		Update("missed_payment", true).Error)

	require.NoError(t, env.svc.RunPayoutCredits(ctx, utcDate(2026, time.March, 15)))
	assert.Equal(t, 0, env.processor.creditCount())

	got := env.reloadMembership(t, members[0].ID)
	assert.False(t, got.PaidOut)
}

func TestRunDueNotifications(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, members := activeCustomPod(t, env)

	// The pod started with the Mar 1 window; the sweep targets pods already
	// running before the current window.
	require.NoError(t, env.svc.RecordPayment(ctx, RecordPaymentInput{
		Reference:    "contrib-sweep-1",
		MembershipID: members[0].ID,
		Status:       payments.StatusSucceeded,
		WindowStart:  utcDate(2026, time.March, 16),
	}))

	require.NoError(t, env.svc.RunDueNotifications(ctx, utcDate(2026, time.March, 16)))

	var rows []models.Notification
	require.NoError(t, env.db.Find(&rows).Error)
	require.Len(t, rows, 2, "paid member gets no due notification")
	for _, row := range rows {
		assert.Equal(t, notificationKindContributionDue, row.Kind)
		assert.Equal(t, utcDate(2026, time.March, 16), row.WindowStart.UTC())
		assert.NotEqual(t, members[0].ID, row.MembershipID)
	}

	// The sweep is idempotent across reruns.
	require.NoError(t, env.svc.RunDueNotifications(ctx, utcDate(2026, time.March, 17)))
	var count int64
	require.NoError(t, env.db.Model(&models.Notification{}).Count(&count).Error)
	assert.EqualValues(t, 2, count)
}

func TestRunDueNotificationsOutsideWindow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	activeCustomPod(t, env)

	require.NoError(t, env.svc.RunDueNotifications(ctx, utcDate(2026, time.March, 10)))
	var count int64
	require.NoError(t, env.db.Model(&models.Notification{}).Count(&count).Error)
	assert.EqualValues(t, 0, count)
}
