// Package models defines the core data structures for TripNavi.
//
// It includes the travel plan enumeration, conversation turns, and the
// structured reply shape shared across modules.
package models

import (
	"errors"
	"strings"
	"time"
)

// Plan identifies which travel itinerary a conversation is grounded in.
type Plan string

const (
	// PlanTokyo selects the Tokyo itinerary.
	PlanTokyo Plan = "TokyoPlan"
	// PlanNagoya selects the Nagoya itinerary.
	PlanNagoya Plan = "NagoyaPlan"
)

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Error variables for better error handling and testability
var (
	ErrUnknownPlan    = errors.New("unknown travel plan")
	ErrEmptyUserID    = errors.New("user ID cannot be empty")
	ErrEmptyReply     = errors.New("reply text cannot be empty")
	ErrMalformedReply = errors.New("model output is not a valid travel reply")
)

// Plans returns the fixed set of selectable travel plans.
func Plans() []Plan {
	return []Plan{PlanTokyo, PlanNagoya}
}

// IsValidPlan checks if the given plan is a member of the fixed plan set.
func IsValidPlan(p Plan) bool {
	switch p {
	case PlanTokyo, PlanNagoya:
		return true
	default:
		return false
	}
}

// ParsePlan validates message text against the enumerated plan set.
// Only exact members (after trimming surrounding whitespace) are
// selections; anything else, including near-matches, returns false and
// the message falls through to normal question handling.
func ParsePlan(text string) (Plan, bool) {
	p := Plan(strings.TrimSpace(text))
	if IsValidPlan(p) {
		return p, true
	}
	return "", false
}

// Turn represents one message in a conversation history.
type Turn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// TravelReply is the structured result of one answer generation call.
// Detailed carries the full itinerary answer sent as text; Short is a
// condensed version used for speech synthesis.
type TravelReply struct {
	Detailed string `json:"detailed"`
	Short    string `json:"short"`
}

// Validate checks that both fields of the reply are present.
func (r *TravelReply) Validate() error {
	if strings.TrimSpace(r.Detailed) == "" || strings.TrimSpace(r.Short) == "" {
		return ErrMalformedReply
	}
	return nil
}

// Event is the extracted inbound webhook event the core consumes.
// Signature verification and payload parsing happen at the boundary.
type Event struct {
	UserID     string `json:"user_id"`
	Text       string `json:"text"`
	ReplyToken string `json:"reply_token"`
}

// Reply is the outbound message set for one turn. AudioName is empty
// when the turn degrades to text only.
type Reply struct {
	Text          string `json:"text"`
	AudioName     string `json:"audio_name,omitempty"`
	AudioDuration int64  `json:"audio_duration_ms,omitempty"`
}

// HasAudio reports whether the reply carries an audio part.
func (r Reply) HasAudio() bool {
	return r.AudioName != "" && r.AudioDuration > 0
}
