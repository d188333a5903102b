package controllers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dinebot-ai/dinebot-backend/api/responses"
	"github.com/dinebot-ai/dinebot-backend/pkg/enums"
	pkgerrors "github.com/dinebot-ai/dinebot-backend/pkg/errors"
	"github.com/dinebot-ai/dinebot-backend/pkg/logger"

	"github.com/dinebot-ai/dinebot-backend/internal/payments"
)

type advancePayload struct {
	Status   string          `json:"status"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

// SessionPayments lists a session's payment intents, newest first.
func SessionPayments(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w,
				pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}

		sessionID := chi.URLParam(r, "sessionID")
		if sessionID == "" {
			responses.WriteError(ctx, logg, w,
				pkgerrors.New(pkgerrors.CodeValidation, "session id is required"))
			return
		}

		intents, err := svc.FindBySession(ctx, sessionID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"payment_intents": intents})
	}
}

// PaymentAdvance moves a payment intent forward. Backward or terminal
// transitions return the intent unchanged.
func PaymentAdvance(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w,
				pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}

		id, err := uuid.Parse(chi.URLParam(r, "intentID"))
		if err != nil {
			responses.WriteError(ctx, logg, w,
				pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment intent id"))
			return
		}

		var payload advancePayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			responses.WriteError(ctx, logg, w,
				pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid request body"))
			return
		}

		status, err := enums.ParsePaymentIntentStatus(payload.Status)
		if err != nil {
			responses.WriteError(ctx, logg, w,
				pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment intent status"))
			return
		}

		intent, err := svc.Advance(ctx, id, status, payload.Metadata)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, intent)
	}
}
