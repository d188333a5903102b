package realtime

import (
	"strings"
	"sync"
	"time"
)

// DefaultFallbackGrace is how long after a stream completes a duplicate
// complete ai_response for the same turn is still swallowed.
const DefaultFallbackGrace = 100 * time.Millisecond

// StreamAssembler folds start/delta/end frames into one logical message per
// turn. Producers sometimes follow a successful stream with a complete
// fallback message for the same turn; the assembler remembers finished turns
// briefly so that duplicate can be dropped instead of rendered twice.
type StreamAssembler struct {
	mu    sync.Mutex
	grace time.Duration
	now   func() time.Time

	open  map[string]*strings.Builder
	ended map[string]time.Time
}

// NewStreamAssembler builds an assembler with the given fallback grace
// window. A non-positive grace falls back to the default.
func NewStreamAssembler(grace time.Duration) *StreamAssembler {
	if grace <= 0 {
		grace = DefaultFallbackGrace
	}
	return &StreamAssembler{
		grace: grace,
		now:   time.Now,
		open:  make(map[string]*strings.Builder),
		ended: make(map[string]time.Time),
	}
}

// Apply feeds one frame in. When the frame completes a turn, the assembled
// message is returned with done=true; every other frame returns done=false.
func (a *StreamAssembler) Apply(event *AGUIEvent) (string, bool) {
	if event == nil || event.TurnID == "" {
		return "", false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.prune()

	switch event.Type {
	case AGUITextMessageStart:
		a.open[event.TurnID] = &strings.Builder{}
	case AGUITextMessageContent:
		builder, ok := a.open[event.TurnID]
		if !ok {
			// Tolerate a missing start frame; begin the turn here.
			builder = &strings.Builder{}
			a.open[event.TurnID] = builder
		}
		builder.WriteString(event.Delta)
	case AGUITextMessageEnd:
		builder, ok := a.open[event.TurnID]
		if !ok {
			return "", false
		}
		delete(a.open, event.TurnID)
		a.ended[event.TurnID] = a.now()
		return builder.String(), true
	}
	return "", false
}

// SuppressFallback reports whether a complete ai_response for the turn
// should be dropped because the same turn just finished streaming.
func (a *StreamAssembler) SuppressFallback(turnID string) bool {
	if turnID == "" {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	endedAt, ok := a.ended[turnID]
	if !ok {
		return false
	}
	if a.now().Sub(endedAt) > a.grace {
		delete(a.ended, turnID)
		return false
	}
	return true
}

// prune drops finished-turn records older than the grace window. Caller
// holds the lock.
func (a *StreamAssembler) prune() {
	now := a.now()
	for turnID, endedAt := range a.ended {
		if now.Sub(endedAt) > a.grace {
			delete(a.ended, turnID)
		}
	}
}
