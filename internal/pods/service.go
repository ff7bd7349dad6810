// Package pods implements the pod lifecycle and payout scheduling engine:
// the system-pod state machine, the custom-pod orchestrator, membership
// completion, the join-rate guard, and the scheduler tick bodies. User
// actions and scheduler ticks enter through the same methods, so each state
// change has exactly one code path.
package pods

import (
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"podvault/internal/notify"
	"podvault/internal/payments"
	"podvault/internal/schedule"
)

const (
	// GracePeriodDays is the late-join window after a system pod's
	// scheduled start, before it locks.
	GracePeriodDays = 3

	// openPodCacheTTL bounds staleness of the open-pods view.
	openPodCacheTTL = 30 * time.Second

	// overheatJoinLimit joins within overheatWindow flip the overheat flag.
	overheatJoinLimit = 4
	overheatWindow    = 72 * time.Hour

	// cooldownJoinCount recent joins with the oldest of them inside
	// cooldownWindow block the next join.
	cooldownJoinCount = 3
	cooldownWindow    = 7 * 24 * time.Hour

	defaultCurrency = "USD"
)

// Service is the single scheduling authority for pods in a deployment.
type Service struct {
	db        *gorm.DB
	key       []byte
	events    notify.Events
	processor payments.Processor
	log       zerolog.Logger
	now       func() time.Time

	rngMu sync.Mutex
	rng   *rand.Rand

	cache openPodCache
}

// Options configures a Service. Zero-value fields fall back to production
// defaults; tests inject Now and Rand for determinism.
type Options struct {
	ChecksumKey []byte
	Events      notify.Events
	Processor   payments.Processor
	Logger      zerolog.Logger
	Now         func() time.Time
	Rand        *rand.Rand
}

// New builds a Service on top of the given gorm handle.
func New(db *gorm.DB, opts Options) *Service {
	if opts.Events == nil {
		opts.Events = notify.Nop{}
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Service{
		db:        db,
		key:       opts.ChecksumKey,
		events:    opts.Events,
		processor: opts.Processor,
		log:       opts.Logger,
		now:       opts.Now,
		rng:       opts.Rand,
		cache:     openPodCache{entries: make(map[string]openPodEntry)},
	}
}

// shuffle runs a Fisher-Yates pass over n elements using the injected source.
func (s *Service) shuffle(n int, swap func(i, j int)) {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	s.rng.Shuffle(n, swap)
}

// nextOpenStart computes the first future contribution-window start for a
// newly opened or rescheduled system pod.
func nextOpenStart(now time.Time, cadence schedule.Cadence) time.Time {
	start := schedule.ResolveWindowStart(now, cadence)
	if !start.After(schedule.Day(now)) {
		start = schedule.NextWindowStart(start, cadence)
	}
	return start
}
