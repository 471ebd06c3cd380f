package model

import (
	"time"

	"github.com/google/uuid"
)

type ConversationState string

const (
	StateInitialOutreach    ConversationState = "initial_outreach"
	StateAwaitingResponse   ConversationState = "awaiting_response"
	StateFollowUp1          ConversationState = "follow_up_1"
	StateAwaitingResponse2  ConversationState = "awaiting_response_2"
	StateFollowUp2          ConversationState = "follow_up_2"
	StateFinalAttempt       ConversationState = "final_attempt"
	StatePositiveResponse   ConversationState = "positive_response"
	StateNegativeResponse   ConversationState = "negative_response"
	StateNeutralResponse    ConversationState = "neutral_response"
	StateNurturingSequence  ConversationState = "nurturing_sequence"
	StateInformationSharing ConversationState = "information_sharing"
	StateClosedUnresponsive ConversationState = "closed_unresponsive"
	StateRespectfulClosure  ConversationState = "respectful_closure"
	StateOnboarding         ConversationState = "onboarding"
)

// Terminal reports whether the state is final. Terminal conversations
// leave the active working set and are read-only afterward.
func (s ConversationState) Terminal() bool {
	switch s {
	case StateClosedUnresponsive, StateRespectfulClosure, StateOnboarding:
		return true
	}
	return false
}

// Conversation tracks one prospect's progress through one campaign.
// Mutated exclusively by the flow manager, after the external send
// resolves.
type Conversation struct {
	ID               uuid.UUID         `db:"id" json:"id"`
	ProspectID       uuid.UUID         `db:"prospect_id" json:"prospect_id"`
	CampaignID       uuid.UUID         `db:"campaign_id" json:"campaign_id"`
	Channel          Channel           `db:"channel" json:"channel"`
	State            ConversationState `db:"state" json:"state"`
	StartedAt        time.Time         `db:"started_at" json:"started_at"`
	LastUpdated      time.Time         `db:"last_updated" json:"last_updated"`
	LastOutboundAt   *time.Time        `db:"last_outbound_at" json:"last_outbound_at,omitempty"`
	FollowUpCount    int               `db:"follow_up_count" json:"follow_up_count"`
	ResponseReceived bool              `db:"response_received" json:"response_received"`
	SendFailures     int               `db:"send_failures" json:"send_failures"`
	Active           bool              `db:"active" json:"active"`
	ClosedReason     string            `db:"closed_reason" json:"closed_reason,omitempty"`
}
