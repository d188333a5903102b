package realtime

import (
	"encoding/json"
	"fmt"
)

// EnvelopeType is the wire discriminant of a realtime message.
type EnvelopeType string

const (
	EnvelopeUserMessage      EnvelopeType = "user_message"
	EnvelopeFormResponse     EnvelopeType = "form_response"
	EnvelopeAIResponse       EnvelopeType = "ai_response"
	EnvelopeAGUIEvent        EnvelopeType = "agui_event"
	EnvelopeQuickReplies     EnvelopeType = "quick_replies"
	EnvelopeTypingIndicator  EnvelopeType = "typing_indicator"
	EnvelopeConnectionStatus EnvelopeType = "connection_status"
)

// AGUIEventType is the nested streaming sub-event discriminant.
type AGUIEventType string

const (
	AGUIRunStarted         AGUIEventType = "run_started"
	AGUITextMessageStart   AGUIEventType = "text_message_start"
	AGUITextMessageContent AGUIEventType = "text_message_content"
	AGUITextMessageEnd     AGUIEventType = "text_message_end"
	AGUIRunFinished        AGUIEventType = "run_finished"
)

// Envelope is the single JSON frame both directions speak. Which fields are
// populated depends on the type.
type Envelope struct {
	Type      EnvelopeType `json:"type"`
	SessionID string       `json:"sessionId,omitempty"`
	MessageID string       `json:"messageId,omitempty"`

	// user_message / ai_response
	Content string `json:"content,omitempty"`
	TurnID  string `json:"turnId,omitempty"`

	// form_response: a decided intent plus its payload
	Intent  string          `json:"intent,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`

	// agui_event
	AGUI *AGUIEvent `json:"agui,omitempty"`

	// quick_replies
	Replies []QuickReply `json:"replies,omitempty"`

	// typing_indicator
	Typing bool `json:"typing,omitempty"`

	// connection_status
	Status string `json:"status,omitempty"`
}

// AGUIEvent is one frame of a streamed assistant turn.
type AGUIEvent struct {
	Type   AGUIEventType `json:"type"`
	TurnID string        `json:"turnId"`
	Delta  string        `json:"delta,omitempty"`
}

// QuickReply is one tap-to-answer suggestion rendered under a message.
type QuickReply struct {
	Label   string `json:"label"`
	Payload string `json:"payload"`
}

var clientEnvelopeTypes = map[EnvelopeType]bool{
	EnvelopeUserMessage:  true,
	EnvelopeFormResponse: true,
}

// ParseClientEnvelope decodes and validates an inbound frame. Only the
// client-originated types are accepted and every one must name its session.
func ParseClientEnvelope(raw []byte) (*Envelope, error) {
	var envelope Envelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("malformed envelope: %w", err)
	}
	if !clientEnvelopeTypes[envelope.Type] {
		return nil, fmt.Errorf("unexpected client envelope type %q", envelope.Type)
	}
	if envelope.SessionID == "" {
		return nil, fmt.Errorf("envelope missing sessionId")
	}
	if envelope.Type == EnvelopeFormResponse && envelope.Intent == "" {
		return nil, fmt.Errorf("form_response missing intent")
	}
	return &envelope, nil
}

// NewConnectionStatus builds the status frame sent on connect and close.
func NewConnectionStatus(sessionID, status string) *Envelope {
	return &Envelope{
		Type:      EnvelopeConnectionStatus,
		SessionID: sessionID,
		Status:    status,
	}
}

// NewQuickReplies builds the suggestion frame rendered under a message.
func NewQuickReplies(sessionID string, replies []QuickReply) *Envelope {
	return &Envelope{
		Type:      EnvelopeQuickReplies,
		SessionID: sessionID,
		Replies:   replies,
	}
}

// NewTypingIndicator toggles the assistant's typing state.
func NewTypingIndicator(sessionID string, typing bool) *Envelope {
	return &Envelope{
		Type:      EnvelopeTypingIndicator,
		SessionID: sessionID,
		Typing:    typing,
	}
}
