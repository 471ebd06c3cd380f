package model

import (
	"time"

	"github.com/google/uuid"
)

// SequenceStep is one templated message in a campaign's sequence.
// Step numbers are unique per campaign and define the only valid send
// order: step N+1 never goes out before step N.
type SequenceStep struct {
	ID         uuid.UUID `db:"id" json:"id"`
	CampaignID uuid.UUID `db:"campaign_id" json:"campaign_id"`
	StepNumber int       `db:"step_number" json:"step_number"`
	TemplateID uuid.UUID `db:"template_id" json:"template_id"`
	DelayDays  int       `db:"delay_days" json:"delay_days"`
	// NoResponseOnly skips the step once the prospect has replied.
	NoResponseOnly bool      `db:"no_response_only" json:"no_response_only"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// Enrollment records a prospect joining a campaign. The conversation row
// itself is only created on the first outreach send.
type Enrollment struct {
	CampaignID uuid.UUID `db:"campaign_id" json:"campaign_id"`
	ProspectID uuid.UUID `db:"prospect_id" json:"prospect_id"`
	EnrolledAt time.Time `db:"enrolled_at" json:"enrolled_at"`
}
