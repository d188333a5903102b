package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/dinebot-ai/dinebot-backend/internal/cart"
	"github.com/dinebot-ai/dinebot-backend/internal/checkout"
	"github.com/dinebot-ai/dinebot-backend/internal/conversation"
	"github.com/dinebot-ai/dinebot-backend/pkg/logger"
)

const defaultIdleThreshold = 24 * time.Hour

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type hotSessionCache interface {
	Del(ctx context.Context, keys ...string) error
	IdleSessions(ctx context.Context, cutoff time.Time) ([]string, error)
	ForgetActivity(ctx context.Context, sessionIDs ...string) error
	CartCacheKey(sessionID string) string
	StateCacheKey(sessionID string) string
}

// SessionExpiryJobParams wire the sweeper's collaborators.
type SessionExpiryJobParams struct {
	Tx            txRunner
	Conversation  conversation.Repository
	Cart          cart.Repository
	Checkout      checkout.Repository
	Cache         hotSessionCache
	Logger        *logger.Logger
	IdleThreshold time.Duration
	BatchLimit    int
}

// SessionExpiryJob reclaims the ephemeral rows of idle sessions. The event
// log and payment intents are durable and never touched; a returning visitor
// simply gets replayed state if they ever come back.
type SessionExpiryJob struct {
	tx            txRunner
	conversation  conversation.Repository
	cart          cart.Repository
	checkout      checkout.Repository
	cache         hotSessionCache
	logg          *logger.Logger
	idleThreshold time.Duration
	batchLimit    int
	now           func() time.Time
}

// NewSessionExpiryJob builds the sweeper job.
func NewSessionExpiryJob(params SessionExpiryJobParams) (*SessionExpiryJob, error) {
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Conversation == nil {
		return nil, fmt.Errorf("conversation repository required")
	}
	if params.Cart == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if params.Checkout == nil {
		return nil, fmt.Errorf("checkout repository required")
	}
	threshold := params.IdleThreshold
	if threshold <= 0 {
		threshold = defaultIdleThreshold
	}
	return &SessionExpiryJob{
		tx:            params.Tx,
		conversation:  params.Conversation,
		cart:          params.Cart,
		checkout:      params.Checkout,
		cache:         params.Cache,
		logg:          params.Logger,
		idleThreshold: threshold,
		batchLimit:    params.BatchLimit,
		now:           time.Now,
	}, nil
}

// Name implements Job.
func (j *SessionExpiryJob) Name() string {
	return "session-expiry"
}

// Run implements Job. Each candidate is reclaimed in its own transaction so
// one poisoned session does not block the rest; failures aggregate.
func (j *SessionExpiryJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.idleThreshold)
	candidates, err := j.scanCandidates(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("scanning idle sessions: %w", err)
	}

	var errs error
	reclaimed := 0
	for _, sessionID := range candidates {
		swept, err := j.reclaim(ctx, sessionID, cutoff)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("session %s: %w", sessionID, err))
			continue
		}
		if swept {
			reclaimed++
		}
	}

	if j.logg != nil {
		ctx = j.logg.WithField(ctx, "reclaimed", reclaimed)
		ctx = j.logg.WithField(ctx, "candidates", len(candidates))
		j.logg.Info(ctx, "idle session sweep finished")
	}
	return errs
}

// scanCandidates unions the database scan with the redis activity index. The
// index catches sessions whose state row is already gone but whose cart or
// cache entries linger; every candidate is re-checked inside its own
// transaction before anything is deleted.
func (j *SessionExpiryJob) scanCandidates(ctx context.Context, cutoff time.Time) ([]string, error) {
	states, err := j.conversation.FindIdleBefore(ctx, cutoff, j.batchLimit)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(states))
	candidates := make([]string, 0, len(states))
	for _, state := range states {
		seen[state.SessionID] = struct{}{}
		candidates = append(candidates, state.SessionID)
	}

	if j.cache != nil {
		indexed, err := j.cache.IdleSessions(ctx, cutoff)
		if err != nil {
			if j.logg != nil {
				j.logg.Warn(ctx, "activity index scan failed; using database candidates only")
			}
			return candidates, nil
		}
		for _, sessionID := range indexed {
			if _, ok := seen[sessionID]; ok {
				continue
			}
			candidates = append(candidates, sessionID)
		}
	}
	return candidates, nil
}

func (j *SessionExpiryJob) reclaim(ctx context.Context, sessionID string, cutoff time.Time) (bool, error) {
	swept := false
	err := j.tx.WithTx(ctx, func(tx *gorm.DB) error {
		// Re-check inside the transaction; the session may have woken up
		// between the scan and now.
		state, err := j.conversation.WithTx(tx).Find(ctx, sessionID)
		if err != nil {
			return err
		}
		// A missing state row means the only idle signal is the activity
		// index; any remaining cart or checkout rows are orphans.
		if state != nil && !state.LastActivityAt.Before(cutoff) {
			return nil
		}
		if err := j.cart.WithTx(tx).DeleteBySession(ctx, sessionID); err != nil {
			return err
		}
		if err := j.checkout.WithTx(tx).Delete(ctx, sessionID); err != nil {
			return err
		}
		if err := j.conversation.WithTx(tx).Delete(ctx, sessionID); err != nil {
			return err
		}
		swept = true
		return nil
	})
	if err != nil || !swept {
		return false, err
	}

	if j.cache != nil {
		// Cache drops are best effort; entries expire on their own TTL.
		_ = j.cache.Del(ctx, j.cache.CartCacheKey(sessionID), j.cache.StateCacheKey(sessionID))
		_ = j.cache.ForgetActivity(ctx, sessionID)
	}
	return true, nil
}
