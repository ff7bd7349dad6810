// Package metrics exposes the engine's prometheus counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PodsOpened = promauto.NewCounter(prometheus.CounterOpts{
		Name: "podvault_pods_opened_total",
		Help: "System pods opened for enrollment.",
	})

	PodsActivated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "podvault_pods_activated_total",
		Help: "Pods locked and activated, by pod type.",
	}, []string{"type"})

	PodsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "podvault_pods_completed_total",
		Help: "Pods fully paid out, by pod type.",
	}, []string{"type"})

	MembershipsJoined = promauto.NewCounter(prometheus.CounterOpts{
		Name: "podvault_memberships_joined_total",
		Help: "Memberships created by joins and invite acceptances.",
	})

	AccountsOverheated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "podvault_accounts_overheated_total",
		Help: "Accounts flagged overheat by the join-rate guard.",
	})

	ContributionDebits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "podvault_contribution_debits_total",
		Help: "Contribution debit requests, by immediate processor status.",
	}, []string{"status"})

	PayoutCredits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "podvault_payout_credits_total",
		Help: "Payout credit requests, by immediate processor status.",
	}, []string{"status"})

	DueNotifications = promauto.NewCounter(prometheus.CounterOpts{
		Name: "podvault_due_notifications_total",
		Help: "Due-contribution notifications raised.",
	})

	SchedulerTickErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "podvault_scheduler_tick_errors_total",
		Help: "Failed scheduler ticks, by scheduler.",
	}, []string{"scheduler"})
)
