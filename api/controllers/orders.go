package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dinebot-ai/dinebot-backend/api/responses"
	pkgerrors "github.com/dinebot-ai/dinebot-backend/pkg/errors"
	"github.com/dinebot-ai/dinebot-backend/pkg/logger"

	"github.com/dinebot-ai/dinebot-backend/internal/orders"
)

// SessionOrders lists the orders a session has placed, newest first.
func SessionOrders(repo orders.Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if repo == nil {
			responses.WriteError(ctx, logg, w,
				pkgerrors.New(pkgerrors.CodeInternal, "orders repository unavailable"))
			return
		}

		sessionID := chi.URLParam(r, "sessionID")
		if sessionID == "" {
			responses.WriteError(ctx, logg, w,
				pkgerrors.New(pkgerrors.CodeValidation, "session id is required"))
			return
		}

		placed, err := repo.FindBySession(ctx, sessionID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"orders": placed})
	}
}

// OrderByID returns one order with its frozen lines.
func OrderByID(repo orders.Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if repo == nil {
			responses.WriteError(ctx, logg, w,
				pkgerrors.New(pkgerrors.CodeInternal, "orders repository unavailable"))
			return
		}

		id, err := uuid.Parse(chi.URLParam(r, "orderID"))
		if err != nil {
			responses.WriteError(ctx, logg, w,
				pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order id"))
			return
		}

		order, err := repo.FindByID(ctx, id)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if order == nil {
			responses.WriteError(ctx, logg, w,
				pkgerrors.New(pkgerrors.CodeNotFound, "order not found"))
			return
		}
		responses.WriteSuccess(w, order)
	}
}
