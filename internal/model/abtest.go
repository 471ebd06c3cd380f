package model

import (
	"time"

	"github.com/google/uuid"
)

type ABTest struct {
	ID         uuid.UUID `db:"id" json:"id"`
	CampaignID uuid.UUID `db:"campaign_id" json:"campaign_id"`
	Name       string    `db:"name" json:"name"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`

	Variants []ABVariant `json:"variants,omitempty"`
}

// ABVariant is one message variant under comparison. Weight is a
// percentage share for selection; zero weights fall back to uniform.
type ABVariant struct {
	ID         uuid.UUID `db:"id" json:"id"`
	ABTestID   uuid.UUID `db:"ab_test_id" json:"ab_test_id"`
	TemplateID uuid.UUID `db:"template_id" json:"template_id"`
	Weight     int       `db:"weight" json:"weight"`
}

// ABTestResult is the per-variant aggregate, recomputed incrementally on
// each relevant MessageLog mutation. Rates are percentages.
type ABTestResult struct {
	ID                   uuid.UUID `db:"id" json:"id"`
	ABTestID             uuid.UUID `db:"ab_test_id" json:"ab_test_id"`
	VariantID            uuid.UUID `db:"variant_id" json:"variant_id"`
	SentCount            int       `db:"sent_count" json:"sent_count"`
	OpenRate             float64   `db:"open_rate" json:"open_rate"`
	ClickRate            float64   `db:"click_rate" json:"click_rate"`
	ReplyRate            float64   `db:"reply_rate" json:"reply_rate"`
	PositiveResponseRate float64   `db:"positive_response_rate" json:"positive_response_rate"`
	UpdatedAt            time.Time `db:"updated_at" json:"updated_at"`
}
