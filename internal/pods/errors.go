package pods

import "errors"

// Validation and not-found errors surface synchronously to callers with no
// state mutated. Integrity errors come from the integrity package and abort
// the operation.
var (
	ErrPlanNotFound       = errors.New("plan not found")
	ErrPodNotFound        = errors.New("pod not found")
	ErrMembershipNotFound = errors.New("membership not found")
	ErrInviteNotFound     = errors.New("invite not found")
	ErrAccountNotFound    = errors.New("account not found")

	ErrPodFull               = errors.New("pod is at capacity")
	ErrAlreadyMember         = errors.New("account is already a member of this pod")
	ErrInviteAlreadyAccepted = errors.New("invite already accepted")
	ErrInviteEmailMismatch   = errors.New("invite was issued to a different email")
	ErrInvalidInvitees       = errors.New("invalid invite list")
	ErrInvalidCadence        = errors.New("invalid cadence")

	ErrJoinBlocked  = errors.New("account is not eligible to join pods")
	ErrJoinCooldown = errors.New("join cooldown active")

	ErrBotMembership    = errors.New("operation not valid for system-bot memberships")
	ErrNotCustomPod     = errors.New("pod is not a custom pod")
	ErrPodNotActive     = errors.New("pod is not active")
	ErrOrderNotAssigned = errors.New("payout order not yet assigned")
	ErrSameMembership   = errors.New("cannot swap a membership with itself")
)
