package integrity

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"podvault/internal/models"
	"podvault/internal/schedule"
)

var testKey = []byte("checksum-test-key")

func samplePod() models.Pod {
	start := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	next := time.Date(2026, time.March, 16, 0, 0, 0, 0, time.UTC)
	return models.Pod{
		ID:                   uuid.MustParse("6d2f3a9e-0000-4000-8000-000000000001"),
		Type:                 models.PodTypeSystem,
		Status:               models.PodStatusActive,
		PlanCode:             "starter",
		Amount:               5000,
		LifecycleWeeks:       12,
		MaxMembers:           6,
		Cadence:              schedule.CadenceBiWeekly,
		ExpectedMembers:      6,
		StartDate:            &start,
		CycleCount:           2,
		NextContributionDate: &next,
	}
}

func TestPodChecksumStable(t *testing.T) {
	pod := samplePod()
	if PodChecksum(testKey, pod) != PodChecksum(testKey, pod) {
		t.Fatal("same pod state must produce the same checksum")
	}
}

func TestPodChecksumCoversSchedulingFields(t *testing.T) {
	base := PodChecksum(testKey, samplePod())

	mutations := map[string]func(*models.Pod){
		"status":     func(p *models.Pod) { p.Status = models.PodStatusCompleted },
		"amount":     func(p *models.Pod) { p.Amount = 5001 },
		"cycle":      func(p *models.Pod) { p.CycleCount = 3 },
		"cadence":    func(p *models.Pod) { p.Cadence = schedule.CadenceMonthly },
		"start nil":  func(p *models.Pod) { p.StartDate = nil },
		"next contribution": func(p *models.Pod) {
			d := time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC)
			p.NextContributionDate = &d
		},
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			pod := samplePod()
			mutate(&pod)
			if PodChecksum(testKey, pod) == base {
				t.Fatalf("mutating %s did not change the checksum", name)
			}
		})
	}
}

func TestPodChecksumKeyed(t *testing.T) {
	pod := samplePod()
	if PodChecksum(testKey, pod) == PodChecksum([]byte("other-key"), pod) {
		t.Fatal("different keys must produce different checksums")
	}
}

func TestVerifyPod(t *testing.T) {
	pod := samplePod()
	pod.Checksum = PodChecksum(testKey, pod)
	if err := VerifyPod(testKey, pod); err != nil {
		t.Fatalf("valid checksum rejected: %v", err)
	}

	pod.CycleCount++
	err := VerifyPod(testKey, pod)
	if !errors.Is(err, ErrChecksumMismatch) {
		t.Fatalf("tampered pod accepted, err = %v", err)
	}
}

func TestVerifyPodEmptyChecksumPasses(t *testing.T) {
	pod := samplePod()
	pod.Checksum = ""
	if err := VerifyPod(testKey, pod); err != nil {
		t.Fatalf("fresh row with empty checksum rejected: %v", err)
	}
}

func sampleInvites() []models.Invite {
	return []models.Invite{
		{ID: uuid.MustParse("6d2f3a9e-0000-4000-8000-00000000000a"), Email: "a@example.com", InviteOrder: 2, TokenDigest: "aaaa"},
		{ID: uuid.MustParse("6d2f3a9e-0000-4000-8000-00000000000b"), Email: "b@example.com", InviteOrder: 3, TokenDigest: "bbbb"},
		{ID: uuid.MustParse("6d2f3a9e-0000-4000-8000-00000000000c"), Email: "c@example.com", InviteOrder: 4, TokenDigest: "cccc"},
	}
}

func TestInviteChecksumOrderInsensitive(t *testing.T) {
	invites := sampleInvites()
	shuffled := []models.Invite{invites[2], invites[0], invites[1]}
	if InviteChecksum(testKey, invites) != InviteChecksum(testKey, shuffled) {
		t.Fatal("invite checksum must not depend on row order")
	}
}

func TestInviteChecksumCoversAcceptance(t *testing.T) {
	invites := sampleInvites()
	base := InviteChecksum(testKey, invites)

	accepted := sampleInvites()
	at := time.Date(2026, time.March, 2, 10, 0, 0, 0, time.UTC)
	account := uuid.MustParse("6d2f3a9e-0000-4000-8000-0000000000ff")
	accepted[1].AcceptedAt = &at
	accepted[1].AccountID = &account

	if InviteChecksum(testKey, accepted) == base {
		t.Fatal("accepting an invite must change the checksum")
	}
}

func TestVerifyInvites(t *testing.T) {
	pod := samplePod()
	invites := sampleInvites()
	pod.InviteChecksum = InviteChecksum(testKey, invites)

	if err := VerifyInvites(testKey, pod, invites); err != nil {
		t.Fatalf("valid invite checksum rejected: %v", err)
	}

	invites[0].Email = "evil@example.com"
	if err := VerifyInvites(testKey, pod, invites); !errors.Is(err, ErrChecksumMismatch) {
		t.Fatalf("tampered invites accepted, err = %v", err)
	}
}
