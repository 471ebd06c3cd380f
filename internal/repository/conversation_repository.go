package repository

import (
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/affiliatehq/outreach-backend/internal/model"
)

type ConversationRepositoryInterface interface {
	Create(c *model.Conversation) error
	GetByID(id uuid.UUID) (*model.Conversation, error)
	GetByProspectCampaign(prospectID, campaignID uuid.UUID) (*model.Conversation, error)
	Update(c *model.Conversation) error
	ListActive() ([]*model.Conversation, error)
}

type ConversationRepository struct {
	DB *sql.DB
}

const conversationColumns = `id, prospect_id, campaign_id, channel, state, started_at, last_updated,
       last_outbound_at, follow_up_count, response_received, send_failures, active, closed_reason`

func (r *ConversationRepository) Create(c *model.Conversation) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	now := time.Now()
	if c.StartedAt.IsZero() {
		c.StartedAt = now
	}
	c.LastUpdated = now
	c.Active = true
	query := `
        INSERT INTO conversations (id, prospect_id, campaign_id, channel, state, started_at, last_updated,
            last_outbound_at, follow_up_count, response_received, send_failures, active, closed_reason)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
    `
	_, err := r.DB.Exec(query,
		c.ID, c.ProspectID, c.CampaignID, c.Channel, c.State, c.StartedAt, c.LastUpdated,
		c.LastOutboundAt, c.FollowUpCount, c.ResponseReceived, c.SendFailures, c.Active, c.ClosedReason,
	)
	return err
}

func (r *ConversationRepository) scanOne(row *sql.Row) (*model.Conversation, error) {
	var c model.Conversation
	err := row.Scan(
		&c.ID, &c.ProspectID, &c.CampaignID, &c.Channel, &c.State, &c.StartedAt, &c.LastUpdated,
		&c.LastOutboundAt, &c.FollowUpCount, &c.ResponseReceived, &c.SendFailures, &c.Active, &c.ClosedReason,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

func (r *ConversationRepository) GetByID(id uuid.UUID) (*model.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE id=$1`
	return r.scanOne(r.DB.QueryRow(query, id))
}

func (r *ConversationRepository) GetByProspectCampaign(prospectID, campaignID uuid.UUID) (*model.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE prospect_id=$1 AND campaign_id=$2`
	return r.scanOne(r.DB.QueryRow(query, prospectID, campaignID))
}

func (r *ConversationRepository) Update(c *model.Conversation) error {
	c.LastUpdated = time.Now()
	query := `
        UPDATE conversations
        SET state=$1, last_updated=$2, last_outbound_at=$3, follow_up_count=$4,
            response_received=$5, send_failures=$6, active=$7, closed_reason=$8
        WHERE id=$9
    `
	_, err := r.DB.Exec(query,
		c.State, c.LastUpdated, c.LastOutboundAt, c.FollowUpCount,
		c.ResponseReceived, c.SendFailures, c.Active, c.ClosedReason, c.ID,
	)
	return err
}

// ListActive returns conversations still in the working set, the ones the
// timeout sweep inspects.
func (r *ConversationRepository) ListActive() ([]*model.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE active=TRUE ORDER BY last_updated`
	rows, err := r.DB.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	conversations := []*model.Conversation{}
	for rows.Next() {
		c := &model.Conversation{}
		if err := rows.Scan(
			&c.ID, &c.ProspectID, &c.CampaignID, &c.Channel, &c.State, &c.StartedAt, &c.LastUpdated,
			&c.LastOutboundAt, &c.FollowUpCount, &c.ResponseReceived, &c.SendFailures, &c.Active, &c.ClosedReason,
		); err != nil {
			return nil, err
		}
		conversations = append(conversations, c)
	}
	return conversations, rows.Err()
}

var _ ConversationRepositoryInterface = (*ConversationRepository)(nil)
