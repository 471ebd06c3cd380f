package model

import (
	"time"

	"github.com/google/uuid"
)

type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignActive    CampaignStatus = "active"
	CampaignPaused    CampaignStatus = "paused"
	CampaignCompleted CampaignStatus = "completed"
)

type Campaign struct {
	ID        uuid.UUID      `db:"id" json:"id"`
	Name      string         `db:"name" json:"name"`
	Channel   Channel        `db:"channel" json:"channel"`
	Status    CampaignStatus `db:"status" json:"status"`
	ABTestID  *uuid.UUID     `db:"ab_test_id" json:"ab_test_id,omitempty"`
	CreatedAt time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt *time.Time     `db:"updated_at" json:"updated_at,omitempty"`
}

// MessageTemplate is the raw subject/body a sequence step renders
// against prospect attributes.
type MessageTemplate struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Subject   string    `db:"subject" json:"subject"`
	Content   string    `db:"content" json:"content"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
