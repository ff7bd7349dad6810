package handlers

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"podvault/internal/integrity"
	"podvault/internal/payments"
	"podvault/internal/pods"
)

type handler struct {
	svc    *pods.Service
	secret string
	log    zerolog.Logger
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (h *handler) openPods(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	open, err := h.svc.OpenPods(r.Context(), code)
	if err != nil {
		h.log.Error().Err(err).Str("plan", code).Msg("open pods lookup failed")
		writeError(w, http.StatusInternalServerError, errors.New("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pods": open})
}

// webhookEvent is the processor's terminal-status callback payload.
type webhookEvent struct {
	Reference    string    `json:"reference"`
	Kind         string    `json:"kind"`
	Status       string    `json:"status"`
	MembershipID uuid.UUID `json:"membership_id"`
	WindowStart  time.Time `json:"window_start"`
}

func (h *handler) paymentWebhook(w http.ResponseWriter, r *http.Request) {
	if h.secret != "" {
		provided := r.Header.Get("X-Webhook-Secret")
		if subtle.ConstantTimeCompare([]byte(provided), []byte(h.secret)) != 1 {
			writeError(w, http.StatusUnauthorized, errors.New("invalid webhook secret"))
			return
		}
	}

	var evt webhookEvent
	if err := json.NewDecoder(r.Body).Decode(&evt); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("malformed payload"))
		return
	}
	if evt.Reference == "" || evt.MembershipID == uuid.Nil {
		writeError(w, http.StatusBadRequest, errors.New("reference and membership_id are required"))
		return
	}

	var err error
	switch evt.Kind {
	case "contribution":
		err = h.svc.RecordPayment(r.Context(), pods.RecordPaymentInput{
			Reference:    evt.Reference,
			MembershipID: evt.MembershipID,
			Status:       payments.Status(evt.Status),
			WindowStart:  evt.WindowStart,
		})
	case "payout":
		err = h.svc.RecordPayout(r.Context(), pods.RecordPayoutInput{
			Reference:    evt.Reference,
			MembershipID: evt.MembershipID,
			Status:       payments.Status(evt.Status),
		})
	default:
		writeError(w, http.StatusBadRequest, errors.New("unknown event kind"))
		return
	}

	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
	case errors.Is(err, pods.ErrMembershipNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, integrity.ErrChecksumMismatch):
		h.log.Error().Err(err).Str("reference", evt.Reference).Msg("webhook aborted on integrity error")
		writeError(w, http.StatusConflict, err)
	default:
		h.log.Error().Err(err).Str("reference", evt.Reference).Msg("webhook recording failed")
		writeError(w, http.StatusInternalServerError, errors.New("internal error"))
	}
}
