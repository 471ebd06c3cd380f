package repository

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/affiliatehq/outreach-backend/internal/model"
)

type ProspectRepositoryInterface interface {
	Create(p *model.Prospect) error
	GetByID(id uuid.UUID) (*model.Prospect, error)
	UpdateStatus(id uuid.UUID, status model.ProspectStatus) error
	GrantConsent(id uuid.UUID, at time.Time) error
}

type ProspectRepository struct {
	DB *sql.DB
}

const prospectColumns = `id, email, linkedin_handle, twitter_handle, discord_handle,
       first_name, last_name, company, website,
       consent_given, consent_timestamp, qualification_score, status,
       timezone, preferred_days, preferred_hours, created_at, updated_at`

func (r *ProspectRepository) Create(p *model.Prospect) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.CreatedAt = time.Now()
	if p.Status == "" {
		p.Status = model.ProspectNew
	}
	if p.Timezone == "" {
		p.Timezone = "UTC"
	}
	query := `
        INSERT INTO prospects (id, email, linkedin_handle, twitter_handle, discord_handle,
            first_name, last_name, company, website,
            consent_given, consent_timestamp, qualification_score, status,
            timezone, preferred_days, preferred_hours, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
    `
	_, err := r.DB.Exec(query,
		p.ID, p.Email, p.LinkedInHandle, p.TwitterHandle, p.DiscordHandle,
		p.FirstName, p.LastName, p.Company, p.Website,
		p.ConsentGiven, p.ConsentTimestamp, p.QualificationScore, p.Status,
		p.Timezone, pq.Array(p.PreferredDays), pq.Array(p.PreferredHours), p.CreatedAt,
	)
	return err
}

func (r *ProspectRepository) GetByID(id uuid.UUID) (*model.Prospect, error) {
	query := `SELECT ` + prospectColumns + ` FROM prospects WHERE id=$1`
	var p model.Prospect
	err := r.DB.QueryRow(query, id).Scan(
		&p.ID, &p.Email, &p.LinkedInHandle, &p.TwitterHandle, &p.DiscordHandle,
		&p.FirstName, &p.LastName, &p.Company, &p.Website,
		&p.ConsentGiven, &p.ConsentTimestamp, &p.QualificationScore, &p.Status,
		&p.Timezone, pq.Array(&p.PreferredDays), pq.Array(&p.PreferredHours),
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

func (r *ProspectRepository) UpdateStatus(id uuid.UUID, status model.ProspectStatus) error {
	query := `UPDATE prospects SET status=$1, updated_at=NOW() WHERE id=$2`
	_, err := r.DB.Exec(query, status, id)
	return err
}

func (r *ProspectRepository) GrantConsent(id uuid.UUID, at time.Time) error {
	query := `UPDATE prospects SET consent_given=TRUE, consent_timestamp=$1, updated_at=NOW() WHERE id=$2`
	_, err := r.DB.Exec(query, at, id)
	return err
}

var _ ProspectRepositoryInterface = (*ProspectRepository)(nil)
