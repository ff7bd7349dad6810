package pods

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"podvault/internal/models"
	"podvault/internal/payments"
)

var testChecksumKey = []byte("test-checksum-key")

var testDBSeq atomic.Int64

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:podvault_test_%d?mode=memory&cache=shared", testDBSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Account{},
		&models.Plan{},
		&models.Pod{},
		&models.Membership{},
		&models.Invite{},
		&models.Payment{},
		&models.Notification{},
	))
	return db
}

// testClock is a settable now() source shared with the service under test.
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

// fakeProcessor answers every charge with a configured status or error and
// records the requests it saw.
type fakeProcessor struct {
	mu      sync.Mutex
	status  payments.Status
	err     error
	debits  []payments.ChargeRequest
	credits []payments.ChargeRequest
}

func (p *fakeProcessor) Debit(ctx context.Context, req payments.ChargeRequest) (payments.ChargeResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return payments.ChargeResult{}, p.err
	}
	p.debits = append(p.debits, req)
	return payments.ChargeResult{Reference: req.Reference, Status: p.status}, nil
}

func (p *fakeProcessor) Credit(ctx context.Context, req payments.ChargeRequest) (payments.ChargeResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return payments.ChargeResult{}, p.err
	}
	p.credits = append(p.credits, req)
	return payments.ChargeResult{Reference: req.Reference, Status: p.status}, nil
}

func (p *fakeProcessor) debitCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.debits)
}

func (p *fakeProcessor) creditCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.credits)
}

type testEnv struct {
	db        *gorm.DB
	svc       *Service
	clock     *testClock
	processor *fakeProcessor
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := openTestDB(t)
	clock := &testClock{t: time.Date(2026, time.February, 20, 12, 0, 0, 0, time.UTC)}
	processor := &fakeProcessor{status: payments.StatusSucceeded}

	svc := New(db, Options{
		ChecksumKey: testChecksumKey,
		Processor:   processor,
		Logger:      zerolog.Nop(),
		Now:         clock.Now,
		Rand:        rand.New(rand.NewSource(1)),
	})
	return &testEnv{db: db, svc: svc, clock: clock, processor: processor}
}

func (e *testEnv) createAccount(t *testing.T, email string) models.Account {
	t.Helper()
	method := "pm_" + uuid.NewString()[:8]
	account := models.Account{
		ID:                uuid.New(),
		Email:             email,
		Name:              email,
		BankAccountLinked: true,
		PaymentMethodID:   &method,
	}
	require.NoError(t, e.db.Create(&account).Error)
	return account
}

func (e *testEnv) createPlan(t *testing.T, code string, amount int64, weeks, maxMembers int) models.Plan {
	t.Helper()
	plan := models.Plan{
		ID:             uuid.New(),
		Code:           code,
		Amount:         amount,
		LifecycleWeeks: weeks,
		MaxMembers:     maxMembers,
		Active:         true,
	}
	require.NoError(t, e.db.Create(&plan).Error)
	return plan
}

func (e *testEnv) reloadPod(t *testing.T, id uuid.UUID) models.Pod {
	t.Helper()
	var pod models.Pod
	require.NoError(t, e.db.First(&pod, "id = ?", id).Error)
	return pod
}

func (e *testEnv) reloadMembership(t *testing.T, id uuid.UUID) models.Membership {
	t.Helper()
	var m models.Membership
	require.NoError(t, e.db.First(&m, "id = ?", id).Error)
	return m
}

func (e *testEnv) reloadAccount(t *testing.T, id uuid.UUID) models.Account {
	t.Helper()
	var a models.Account
	require.NoError(t, e.db.First(&a, "id = ?", id).Error)
	return a
}

func (e *testEnv) podMemberships(t *testing.T, podID uuid.UUID) []models.Membership {
	t.Helper()
	var members []models.Membership
	require.NoError(t, e.db.Where("pod_id = ?", podID).Order("join_order").Find(&members).Error)
	return members
}

func utcDate(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
