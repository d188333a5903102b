package controllers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/dinebot-ai/dinebot-backend/api/responses"
	pkgerrors "github.com/dinebot-ai/dinebot-backend/pkg/errors"
	"github.com/dinebot-ai/dinebot-backend/pkg/logger"

	"github.com/dinebot-ai/dinebot-backend/internal/session"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

type intentPayload struct {
	Intent  string          `json:"intent"`
	Payload json.RawMessage `json:"payload"`
}

// SessionCart returns the materialized cart for a session.
func SessionCart(engine session.Engine, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if engine == nil {
			responses.WriteError(ctx, logg, w,
				pkgerrors.New(pkgerrors.CodeInternal, "session engine unavailable"))
			return
		}

		sessionID := chi.URLParam(r, "sessionID")
		if sessionID == "" {
			responses.WriteError(ctx, logg, w,
				pkgerrors.New(pkgerrors.CodeValidation, "session id is required"))
			return
		}

		cart, err := engine.CurrentCart(ctx, sessionID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, cart)
	}
}

// SessionState returns the conversation state for a session.
func SessionState(engine session.Engine, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if engine == nil {
			responses.WriteError(ctx, logg, w,
				pkgerrors.New(pkgerrors.CodeInternal, "session engine unavailable"))
			return
		}

		sessionID := chi.URLParam(r, "sessionID")
		if sessionID == "" {
			responses.WriteError(ctx, logg, w,
				pkgerrors.New(pkgerrors.CodeValidation, "session id is required"))
			return
		}

		state, err := engine.CurrentState(ctx, sessionID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, state)
	}
}

// SessionHistory returns the session's event log, newest first.
func SessionHistory(engine session.Engine, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if engine == nil {
			responses.WriteError(ctx, logg, w,
				pkgerrors.New(pkgerrors.CodeInternal, "session engine unavailable"))
			return
		}

		sessionID := chi.URLParam(r, "sessionID")
		if sessionID == "" {
			responses.WriteError(ctx, logg, w,
				pkgerrors.New(pkgerrors.CodeValidation, "session id is required"))
			return
		}

		limit := queryInt(r, "limit", defaultHistoryLimit)
		if limit <= 0 || limit > maxHistoryLimit {
			limit = defaultHistoryLimit
		}
		offset := queryInt(r, "offset", 0)
		if offset < 0 {
			offset = 0
		}

		events, err := engine.History(ctx, sessionID, limit, offset)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"events": events,
			"limit":  limit,
			"offset": offset,
		})
	}
}

// SessionIntent appends one intent to the session and applies its derived
// updates.
func SessionIntent(engine session.Engine, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if engine == nil {
			responses.WriteError(ctx, logg, w,
				pkgerrors.New(pkgerrors.CodeInternal, "session engine unavailable"))
			return
		}

		sessionID := chi.URLParam(r, "sessionID")
		if sessionID == "" {
			responses.WriteError(ctx, logg, w,
				pkgerrors.New(pkgerrors.CodeValidation, "session id is required"))
			return
		}

		var payload intentPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			responses.WriteError(ctx, logg, w,
				pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid request body"))
			return
		}

		kind, err := session.ParseIntentKind(payload.Intent)
		if err != nil {
			responses.WriteError(ctx, logg, w,
				pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid intent"))
			return
		}

		event, err := engine.ApplyIntent(ctx, sessionID, kind, payload.Payload)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, event)
	}
}

// SessionRecover rebuilds the cart from the event log.
func SessionRecover(engine session.Engine, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if engine == nil {
			responses.WriteError(ctx, logg, w,
				pkgerrors.New(pkgerrors.CodeInternal, "session engine unavailable"))
			return
		}

		sessionID := chi.URLParam(r, "sessionID")
		if sessionID == "" {
			responses.WriteError(ctx, logg, w,
				pkgerrors.New(pkgerrors.CodeValidation, "session id is required"))
			return
		}

		restored, err := engine.Recover(ctx, sessionID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]int{"restored": restored})
	}
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
