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

	"github.com/dinebot-ai/dinebot-backend/internal/checkout"
)

type promotePayload struct {
	OrderType     string `json:"order_type"`
	PaymentMethod string `json:"payment_method"`
	CustomerID    string `json:"customer_id,omitempty"`
}

// CheckoutPromote turns the session's cart into a placed order.
func CheckoutPromote(promoter checkout.Promoter, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if promoter == nil {
			responses.WriteError(ctx, logg, w,
				pkgerrors.New(pkgerrors.CodeInternal, "checkout promoter unavailable"))
			return
		}

		sessionID := chi.URLParam(r, "sessionID")
		if sessionID == "" {
			responses.WriteError(ctx, logg, w,
				pkgerrors.New(pkgerrors.CodeValidation, "session id is required"))
			return
		}

		var payload promotePayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			responses.WriteError(ctx, logg, w,
				pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid request body"))
			return
		}

		orderType, err := enums.ParseOrderType(payload.OrderType)
		if err != nil {
			responses.WriteError(ctx, logg, w,
				pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order type"))
			return
		}

		paymentMethod, err := enums.ParsePaymentMethod(payload.PaymentMethod)
		if err != nil {
			responses.WriteError(ctx, logg, w,
				pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment method"))
			return
		}

		var customerID *uuid.UUID
		if payload.CustomerID != "" {
			parsed, err := uuid.Parse(payload.CustomerID)
			if err != nil {
				responses.WriteError(ctx, logg, w,
					pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid customer id"))
				return
			}
			customerID = &parsed
		}

		orderID, err := promoter.Promote(ctx, checkout.PromoteInput{
			SessionID:     sessionID,
			OrderType:     orderType,
			PaymentMethod: paymentMethod,
			CustomerID:    customerID,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, map[string]string{
			"order_id": orderID.String(),
		})
	}
}
