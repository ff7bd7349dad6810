// Package integrity computes the keyed fingerprints guarding mutable pod
// state. The checksum is the engine's only concurrency-conflict detector: a
// stored value that no longer matches the freshly computed one means a
// conflicting or corrupted write, and the operation must abort. Mismatches
// are never auto-corrected.
package integrity

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"podvault/internal/models"
)

var ErrChecksumMismatch = errors.New("pod state checksum mismatch")

func digest(key []byte, parts []string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(mac.Sum(nil))
}

func timePart(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// PodChecksum digests the ordered tuple of a pod's mutable scheduling fields.
func PodChecksum(key []byte, pod models.Pod) string {
	parts := []string{
		pod.ID.String(),
		pod.PlanCode,
		fmt.Sprintf("%d", pod.Amount),
		fmt.Sprintf("%d", pod.LifecycleWeeks),
		fmt.Sprintf("%d", pod.MaxMembers),
		string(pod.Status),
		string(pod.Cadence),
		fmt.Sprintf("%t", pod.RandomizePayoutOrder),
		fmt.Sprintf("%d", pod.ExpectedMembers),
		timePart(pod.ScheduledStartDate),
		timePart(pod.StartDate),
		timePart(pod.GraceEndsAt),
		timePart(pod.LockedAt),
		timePart(pod.CompletedAt),
		fmt.Sprintf("%d", pod.CycleCount),
		timePart(pod.NextContributionDate),
		timePart(pod.NextPayoutDate),
	}
	return digest(key, parts)
}

// InviteChecksum digests a custom pod's invite set, sorted by invite order
// then email so the stored row order is irrelevant.
func InviteChecksum(key []byte, invites []models.Invite) string {
	sorted := make([]models.Invite, len(invites))
	copy(sorted, invites)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].InviteOrder != sorted[j].InviteOrder {
			return sorted[i].InviteOrder < sorted[j].InviteOrder
		}
		return sorted[i].Email < sorted[j].Email
	})

	parts := make([]string, 0, len(sorted))
	for _, inv := range sorted {
		account := ""
		if inv.AccountID != nil {
			account = inv.AccountID.String()
		}
		parts = append(parts, strings.Join([]string{
			inv.ID.String(),
			strings.ToLower(inv.Email),
			fmt.Sprintf("%d", inv.InviteOrder),
			inv.TokenDigest,
			timePart(inv.AcceptedAt),
			account,
		}, "^"))
	}
	return digest(key, parts)
}

// VerifyPod recomputes the pod checksum and compares it to the stored value.
// An empty stored checksum (freshly created row) passes.
func VerifyPod(key []byte, pod models.Pod) error {
	if pod.Checksum == "" {
		return nil
	}
	if pod.Checksum != PodChecksum(key, pod) {
		return fmt.Errorf("%w: pod %s", ErrChecksumMismatch, pod.ID)
	}
	return nil
}

// VerifyInvites recomputes the invite checksum and compares it to the stored
// value.
func VerifyInvites(key []byte, pod models.Pod, invites []models.Invite) error {
	if pod.InviteChecksum == "" {
		return nil
	}
	if pod.InviteChecksum != InviteChecksum(key, invites) {
		return fmt.Errorf("%w: pod %s invites", ErrChecksumMismatch, pod.ID)
	}
	return nil
}
