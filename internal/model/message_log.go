package model

import (
	"time"

	"github.com/google/uuid"
)

type MessageStatus string

const (
	MessagePending MessageStatus = "pending"
	MessageSent    MessageStatus = "sent"
	MessageFailed  MessageStatus = "failed"
	MessageOpened  MessageStatus = "opened"
	MessageClicked MessageStatus = "clicked"
	MessageReplied MessageStatus = "replied"
	MessageBounced MessageStatus = "bounced"
)

type MessageType string

const (
	MessageOutreach    MessageType = "outreach"
	MessageFollowUp    MessageType = "follow_up"
	MessageResponse    MessageType = "response"
	MessageInformation MessageType = "information"
)

// MessageLog is the immutable record of a single send attempt. Later
// lifecycle timestamps (open/click/reply) are appended; rows are never
// deleted.
type MessageLog struct {
	ID                uuid.UUID     `db:"id" json:"id"`
	ConversationID    uuid.UUID     `db:"conversation_id" json:"conversation_id"`
	ProspectID        uuid.UUID     `db:"prospect_id" json:"prospect_id"`
	CampaignID        uuid.UUID     `db:"campaign_id" json:"campaign_id"`
	TemplateID        *uuid.UUID    `db:"template_id" json:"template_id,omitempty"`
	Channel           Channel       `db:"channel" json:"channel"`
	Type              MessageType   `db:"message_type" json:"message_type"`
	StepNumber        int           `db:"step_number" json:"step_number"`
	Subject           string        `db:"subject" json:"subject"`
	Content           string        `db:"content" json:"content"`
	Status            MessageStatus `db:"status" json:"status"`
	ExternalMessageID string        `db:"external_message_id" json:"external_message_id,omitempty"`
	ABTestVariant     *uuid.UUID    `db:"ab_test_variant" json:"ab_test_variant,omitempty"`
	Sentiment         *float64      `db:"sentiment" json:"sentiment,omitempty"`
	LastError         string        `db:"last_error" json:"last_error,omitempty"`
	SentAt            *time.Time    `db:"sent_at" json:"sent_at,omitempty"`
	OpenedAt          *time.Time    `db:"opened_at" json:"opened_at,omitempty"`
	ClickedAt         *time.Time    `db:"clicked_at" json:"clicked_at,omitempty"`
	RepliedAt         *time.Time    `db:"replied_at" json:"replied_at,omitempty"`
	CreatedAt         time.Time     `db:"created_at" json:"created_at"`
}
