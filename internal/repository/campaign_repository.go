package repository

import (
	"database/sql"
	"time"

	"github.com/google/uuid"

	appErrors "github.com/affiliatehq/outreach-backend/internal/errors"
	"github.com/affiliatehq/outreach-backend/internal/model"
)

type CampaignRepositoryInterface interface {
	// Campaign CRUD
	Create(c *model.Campaign) error
	GetByID(id uuid.UUID) (*model.Campaign, error)
	UpdateStatus(id uuid.UUID, status model.CampaignStatus) error
	ListByStatus(status model.CampaignStatus) ([]*model.Campaign, error)

	// Sequence steps
	CreateStep(s *model.SequenceStep) error
	GetStep(campaignID uuid.UUID, stepNumber int) (*model.SequenceStep, error)
	ListSteps(campaignID uuid.UUID) ([]*model.SequenceStep, error)
	MaxStepNumber(campaignID uuid.UUID) (int, error)

	// Templates
	CreateTemplate(t *model.MessageTemplate) error
	GetTemplate(id uuid.UUID) (*model.MessageTemplate, error)

	// Enrollment and the per (campaign, prospect) advance claim
	EnrollProspect(campaignID, prospectID uuid.UUID) error
	ListEnrollments(campaignID uuid.UUID) ([]*model.Enrollment, error)
	ClaimAdvance(campaignID, prospectID uuid.UUID, ttl time.Duration) (bool, error)
	ReleaseAdvance(campaignID, prospectID uuid.UUID) error
}

type CampaignRepository struct {
	DB *sql.DB
}

// ====================== Campaign CRUD ======================

func (r *CampaignRepository) Create(c *model.Campaign) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	c.CreatedAt = time.Now()
	if c.Status == "" {
		c.Status = model.CampaignDraft
	}
	query := `
        INSERT INTO campaigns (id, name, channel, status, ab_test_id, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)
    `
	_, err := r.DB.Exec(query, c.ID, c.Name, c.Channel, c.Status, c.ABTestID, c.CreatedAt)
	return err
}

func (r *CampaignRepository) GetByID(id uuid.UUID) (*model.Campaign, error) {
	query := `SELECT id, name, channel, status, ab_test_id, created_at, updated_at FROM campaigns WHERE id=$1`
	var c model.Campaign
	err := r.DB.QueryRow(query, id).Scan(&c.ID, &c.Name, &c.Channel, &c.Status, &c.ABTestID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewCampaignNotFound(id)
		}
		return nil, err
	}
	return &c, nil
}

func (r *CampaignRepository) UpdateStatus(id uuid.UUID, status model.CampaignStatus) error {
	query := `UPDATE campaigns SET status=$1, updated_at=NOW() WHERE id=$2`
	_, err := r.DB.Exec(query, status, id)
	return err
}

func (r *CampaignRepository) ListByStatus(status model.CampaignStatus) ([]*model.Campaign, error) {
	query := `SELECT id, name, channel, status, ab_test_id, created_at, updated_at FROM campaigns WHERE status=$1 ORDER BY created_at`
	rows, err := r.DB.Query(query, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	campaigns := []*model.Campaign{}
	for rows.Next() {
		c := &model.Campaign{}
		if err := rows.Scan(&c.ID, &c.Name, &c.Channel, &c.Status, &c.ABTestID, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		campaigns = append(campaigns, c)
	}
	return campaigns, rows.Err()
}

// ====================== Sequence steps ======================

func (r *CampaignRepository) CreateStep(s *model.SequenceStep) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	s.CreatedAt = time.Now()
	query := `
        INSERT INTO sequence_steps (id, campaign_id, step_number, template_id, delay_days, no_response_only, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
    `
	_, err := r.DB.Exec(query, s.ID, s.CampaignID, s.StepNumber, s.TemplateID, s.DelayDays, s.NoResponseOnly, s.CreatedAt)
	return err
}

func (r *CampaignRepository) GetStep(campaignID uuid.UUID, stepNumber int) (*model.SequenceStep, error) {
	query := `
        SELECT id, campaign_id, step_number, template_id, delay_days, no_response_only, created_at
        FROM sequence_steps WHERE campaign_id=$1 AND step_number=$2
    `
	var s model.SequenceStep
	err := r.DB.QueryRow(query, campaignID, stepNumber).Scan(
		&s.ID, &s.CampaignID, &s.StepNumber, &s.TemplateID, &s.DelayDays, &s.NoResponseOnly, &s.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

func (r *CampaignRepository) ListSteps(campaignID uuid.UUID) ([]*model.SequenceStep, error) {
	query := `
        SELECT id, campaign_id, step_number, template_id, delay_days, no_response_only, created_at
        FROM sequence_steps WHERE campaign_id=$1 ORDER BY step_number
    `
	rows, err := r.DB.Query(query, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	steps := []*model.SequenceStep{}
	for rows.Next() {
		s := &model.SequenceStep{}
		if err := rows.Scan(&s.ID, &s.CampaignID, &s.StepNumber, &s.TemplateID, &s.DelayDays, &s.NoResponseOnly, &s.CreatedAt); err != nil {
			return nil, err
		}
		steps = append(steps, s)
	}
	return steps, rows.Err()
}

func (r *CampaignRepository) MaxStepNumber(campaignID uuid.UUID) (int, error) {
	var max int
	err := r.DB.QueryRow(`SELECT COALESCE(MAX(step_number), 0) FROM sequence_steps WHERE campaign_id=$1`, campaignID).Scan(&max)
	return max, err
}

// ====================== Templates ======================

func (r *CampaignRepository) CreateTemplate(t *model.MessageTemplate) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	t.CreatedAt = time.Now()
	query := `INSERT INTO message_templates (id, name, subject, content, created_at) VALUES ($1,$2,$3,$4,$5)`
	_, err := r.DB.Exec(query, t.ID, t.Name, t.Subject, t.Content, t.CreatedAt)
	return err
}

func (r *CampaignRepository) GetTemplate(id uuid.UUID) (*model.MessageTemplate, error) {
	query := `SELECT id, name, subject, content, created_at FROM message_templates WHERE id=$1`
	var t model.MessageTemplate
	err := r.DB.QueryRow(query, id).Scan(&t.ID, &t.Name, &t.Subject, &t.Content, &t.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

// ====================== Enrollment & claims ======================

// EnrollProspect is idempotent: re-enrolling is a no-op.
func (r *CampaignRepository) EnrollProspect(campaignID, prospectID uuid.UUID) error {
	query := `
        INSERT INTO campaign_prospects (campaign_id, prospect_id, enrolled_at)
        VALUES ($1, $2, NOW())
        ON CONFLICT (campaign_id, prospect_id) DO NOTHING
    `
	_, err := r.DB.Exec(query, campaignID, prospectID)
	return err
}

func (r *CampaignRepository) ListEnrollments(campaignID uuid.UUID) ([]*model.Enrollment, error) {
	query := `SELECT campaign_id, prospect_id, enrolled_at FROM campaign_prospects WHERE campaign_id=$1 ORDER BY enrolled_at`
	rows, err := r.DB.Query(query, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	enrollments := []*model.Enrollment{}
	for rows.Next() {
		e := &model.Enrollment{}
		if err := rows.Scan(&e.CampaignID, &e.ProspectID, &e.EnrolledAt); err != nil {
			return nil, err
		}
		enrollments = append(enrollments, e)
	}
	return enrollments, rows.Err()
}

// ClaimAdvance takes the exclusive advance claim on one (campaign,
// prospect) pair. A stale claim older than ttl is treated as abandoned,
// so a crashed cycle cannot wedge the pair forever.
func (r *CampaignRepository) ClaimAdvance(campaignID, prospectID uuid.UUID, ttl time.Duration) (bool, error) {
	query := `
        UPDATE campaign_prospects
        SET claimed_at = NOW()
        WHERE campaign_id=$1 AND prospect_id=$2
          AND (claimed_at IS NULL OR claimed_at < NOW() - $3::interval)
    `
	res, err := r.DB.Exec(query, campaignID, prospectID, ttl.String())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *CampaignRepository) ReleaseAdvance(campaignID, prospectID uuid.UUID) error {
	query := `UPDATE campaign_prospects SET claimed_at = NULL WHERE campaign_id=$1 AND prospect_id=$2`
	_, err := r.DB.Exec(query, campaignID, prospectID)
	return err
}

var _ CampaignRepositoryInterface = (*CampaignRepository)(nil)
