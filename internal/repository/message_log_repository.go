package repository

import (
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/affiliatehq/outreach-backend/internal/model"
)

// VariantCounts is the raw material for one A/B variant's aggregate.
type VariantCounts struct {
	Sent     int
	Opened   int
	Clicked  int
	Replied  int
	Positive int
}

// AnalyticsCounts backs the campaign response analytics report.
type AnalyticsCounts struct {
	Total           int
	Opened          int
	Clicked         int
	Replied         int
	Positive        int
	Negative        int
	ResponseSeconds []float64
}

type MessageLogRepositoryInterface interface {
	Create(m *model.MessageLog) error
	GetByID(id uuid.UUID) (*model.MessageLog, error)
	MarkSent(id uuid.UUID, externalID string, at time.Time) error
	MarkFailed(id uuid.UUID, reason string) error

	// Lifecycle stamps. The bool reports whether the stamp was applied;
	// false means it was already set, so replays do not double-count.
	SetOpened(id uuid.UUID, at time.Time) (bool, error)
	SetClicked(id uuid.UUID, at time.Time) (bool, error)
	SetReplied(id uuid.UUID, at time.Time, sentiment float64) (bool, error)

	LastSentStep(prospectID, campaignID uuid.UUID) (int, *time.Time, error)
	HasReply(prospectID, campaignID uuid.UUID) (bool, error)
	ListByConversation(conversationID uuid.UUID) ([]*model.MessageLog, error)
	VariantCounts(campaignID, variantID uuid.UUID) (*VariantCounts, error)
	Analytics(campaignID *uuid.UUID, from, to *time.Time) (*AnalyticsCounts, error)
}

type MessageLogRepository struct {
	DB *sql.DB
}

const messageColumns = `id, conversation_id, prospect_id, campaign_id, template_id, channel,
       message_type, step_number, subject, content, status, external_message_id,
       ab_test_variant, sentiment, last_error, sent_at, opened_at, clicked_at, replied_at, created_at`

func (r *MessageLogRepository) Create(m *model.MessageLog) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	m.CreatedAt = time.Now()
	if m.Status == "" {
		m.Status = model.MessagePending
	}
	query := `
        INSERT INTO message_logs (id, conversation_id, prospect_id, campaign_id, template_id, channel,
            message_type, step_number, subject, content, status, external_message_id,
            ab_test_variant, sentiment, last_error, sent_at, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
    `
	_, err := r.DB.Exec(query,
		m.ID, m.ConversationID, m.ProspectID, m.CampaignID, m.TemplateID, m.Channel,
		m.Type, m.StepNumber, m.Subject, m.Content, m.Status, m.ExternalMessageID,
		m.ABTestVariant, m.Sentiment, m.LastError, m.SentAt, m.CreatedAt,
	)
	return err
}

func (r *MessageLogRepository) GetByID(id uuid.UUID) (*model.MessageLog, error) {
	query := `SELECT ` + messageColumns + ` FROM message_logs WHERE id=$1`
	var m model.MessageLog
	err := r.DB.QueryRow(query, id).Scan(
		&m.ID, &m.ConversationID, &m.ProspectID, &m.CampaignID, &m.TemplateID, &m.Channel,
		&m.Type, &m.StepNumber, &m.Subject, &m.Content, &m.Status, &m.ExternalMessageID,
		&m.ABTestVariant, &m.Sentiment, &m.LastError, &m.SentAt, &m.OpenedAt, &m.ClickedAt, &m.RepliedAt, &m.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

func (r *MessageLogRepository) MarkSent(id uuid.UUID, externalID string, at time.Time) error {
	query := `UPDATE message_logs SET status=$1, external_message_id=$2, sent_at=$3, last_error='' WHERE id=$4`
	_, err := r.DB.Exec(query, model.MessageSent, externalID, at, id)
	return err
}

func (r *MessageLogRepository) MarkFailed(id uuid.UUID, reason string) error {
	query := `UPDATE message_logs SET status=$1, last_error=$2 WHERE id=$3`
	_, err := r.DB.Exec(query, model.MessageFailed, reason, id)
	return err
}

func (r *MessageLogRepository) SetOpened(id uuid.UUID, at time.Time) (bool, error) {
	query := `UPDATE message_logs SET status=$1, opened_at=$2 WHERE id=$3 AND opened_at IS NULL`
	res, err := r.DB.Exec(query, model.MessageOpened, at, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *MessageLogRepository) SetClicked(id uuid.UUID, at time.Time) (bool, error) {
	query := `UPDATE message_logs SET status=$1, clicked_at=$2 WHERE id=$3 AND clicked_at IS NULL`
	res, err := r.DB.Exec(query, model.MessageClicked, at, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *MessageLogRepository) SetReplied(id uuid.UUID, at time.Time, sentiment float64) (bool, error) {
	query := `UPDATE message_logs SET status=$1, replied_at=$2, sentiment=$3 WHERE id=$4 AND replied_at IS NULL`
	res, err := r.DB.Exec(query, model.MessageReplied, at, sentiment, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// LastSentStep returns the highest step number confirmed sent for the
// pair and when it went out. Zero means nothing was sent yet. Only rows
// with a sent_at stamp count: failed attempts retry the same step, and
// so does a pending row orphaned by a crash mid-send.
func (r *MessageLogRepository) LastSentStep(prospectID, campaignID uuid.UUID) (int, *time.Time, error) {
	query := `
        SELECT step_number, sent_at FROM message_logs
        WHERE prospect_id=$1 AND campaign_id=$2 AND sent_at IS NOT NULL AND step_number > 0
        ORDER BY step_number DESC LIMIT 1
    `
	var step int
	var sentAt *time.Time
	err := r.DB.QueryRow(query, prospectID, campaignID).Scan(&step, &sentAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, nil, nil
		}
		return 0, nil, err
	}
	return step, sentAt, nil
}

func (r *MessageLogRepository) HasReply(prospectID, campaignID uuid.UUID) (bool, error) {
	var count int
	query := `SELECT COUNT(*) FROM message_logs WHERE prospect_id=$1 AND campaign_id=$2 AND replied_at IS NOT NULL`
	if err := r.DB.QueryRow(query, prospectID, campaignID).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *MessageLogRepository) ListByConversation(conversationID uuid.UUID) ([]*model.MessageLog, error) {
	query := `SELECT ` + messageColumns + ` FROM message_logs WHERE conversation_id=$1 ORDER BY created_at`
	rows, err := r.DB.Query(query, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []*model.MessageLog{}
	for rows.Next() {
		m := &model.MessageLog{}
		if err := rows.Scan(
			&m.ID, &m.ConversationID, &m.ProspectID, &m.CampaignID, &m.TemplateID, &m.Channel,
			&m.Type, &m.StepNumber, &m.Subject, &m.Content, &m.Status, &m.ExternalMessageID,
			&m.ABTestVariant, &m.Sentiment, &m.LastError, &m.SentAt, &m.OpenedAt, &m.ClickedAt, &m.RepliedAt, &m.CreatedAt,
		); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

func (r *MessageLogRepository) VariantCounts(campaignID, variantID uuid.UUID) (*VariantCounts, error) {
	query := `
        SELECT COUNT(*) FILTER (WHERE sent_at IS NOT NULL),
               COUNT(*) FILTER (WHERE opened_at IS NOT NULL),
               COUNT(*) FILTER (WHERE clicked_at IS NOT NULL),
               COUNT(*) FILTER (WHERE replied_at IS NOT NULL),
               COUNT(*) FILTER (WHERE replied_at IS NOT NULL AND sentiment > 0.3)
        FROM message_logs
        WHERE campaign_id=$1 AND ab_test_variant=$2
    `
	var vc VariantCounts
	err := r.DB.QueryRow(query, campaignID, variantID).Scan(&vc.Sent, &vc.Opened, &vc.Clicked, &vc.Replied, &vc.Positive)
	if err != nil {
		return nil, err
	}
	return &vc, nil
}

func (r *MessageLogRepository) Analytics(campaignID *uuid.UUID, from, to *time.Time) (*AnalyticsCounts, error) {
	query := `
        SELECT COUNT(*),
               COUNT(*) FILTER (WHERE opened_at IS NOT NULL),
               COUNT(*) FILTER (WHERE clicked_at IS NOT NULL),
               COUNT(*) FILTER (WHERE replied_at IS NOT NULL),
               COUNT(*) FILTER (WHERE replied_at IS NOT NULL AND sentiment > 0.3),
               COUNT(*) FILTER (WHERE replied_at IS NOT NULL AND sentiment < -0.3)
        FROM message_logs
        WHERE message_type <> 'response'
          AND ($1::uuid IS NULL OR campaign_id=$1)
          AND ($2::timestamptz IS NULL OR sent_at >= $2)
          AND ($3::timestamptz IS NULL OR sent_at <= $3)
    `
	var ac AnalyticsCounts
	err := r.DB.QueryRow(query, campaignID, from, to).Scan(
		&ac.Total, &ac.Opened, &ac.Clicked, &ac.Replied, &ac.Positive, &ac.Negative,
	)
	if err != nil {
		return nil, err
	}

	timesQuery := `
        SELECT EXTRACT(EPOCH FROM replied_at - sent_at)
        FROM message_logs
        WHERE replied_at IS NOT NULL AND sent_at IS NOT NULL
          AND ($1::uuid IS NULL OR campaign_id=$1)
          AND ($2::timestamptz IS NULL OR sent_at >= $2)
          AND ($3::timestamptz IS NULL OR sent_at <= $3)
    `
	rows, err := r.DB.Query(timesQuery, campaignID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var secs float64
		if err := rows.Scan(&secs); err != nil {
			return nil, err
		}
		ac.ResponseSeconds = append(ac.ResponseSeconds, secs)
	}
	return &ac, rows.Err()
}

var _ MessageLogRepositoryInterface = (*MessageLogRepository)(nil)
