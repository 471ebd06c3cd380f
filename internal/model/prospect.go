package model

import (
	"time"

	"github.com/google/uuid"
)

type ProspectStatus string

const (
	ProspectNew        ProspectStatus = "new"
	ProspectContacted  ProspectStatus = "contacted"
	ProspectEngaged    ProspectStatus = "engaged"
	ProspectInterested ProspectStatus = "interested"
	ProspectDeclined   ProspectStatus = "declined"
	ProspectInactive   ProspectStatus = "inactive"
)

type Prospect struct {
	ID                 uuid.UUID      `db:"id" json:"id"`
	Email              string         `db:"email" json:"email"`
	LinkedInHandle     string         `db:"linkedin_handle" json:"linkedin_handle"`
	TwitterHandle      string         `db:"twitter_handle" json:"twitter_handle"`
	DiscordHandle      string         `db:"discord_handle" json:"discord_handle"`
	FirstName          string         `db:"first_name" json:"first_name"`
	LastName           string         `db:"last_name" json:"last_name"`
	Company            string         `db:"company" json:"company"`
	Website            string         `db:"website" json:"website"`
	ConsentGiven       bool           `db:"consent_given" json:"consent_given"`
	ConsentTimestamp   *time.Time     `db:"consent_timestamp" json:"consent_timestamp,omitempty"`
	QualificationScore float64        `db:"qualification_score" json:"qualification_score"`
	Status             ProspectStatus `db:"status" json:"status"`
	Timezone           string         `db:"timezone" json:"timezone"`
	PreferredDays      []string       `db:"preferred_days" json:"preferred_days"`
	PreferredHours     []int64        `db:"preferred_hours" json:"preferred_hours"`
	CreatedAt          time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt          *time.Time     `db:"updated_at" json:"updated_at,omitempty"`
}

// Handle returns the prospect's contact handle for the given channel.
// Empty string means the prospect is not reachable on that channel.
func (p *Prospect) Handle(ch Channel) string {
	switch ch {
	case ChannelEmail:
		return p.Email
	case ChannelLinkedIn:
		return p.LinkedInHandle
	case ChannelTwitter:
		return p.TwitterHandle
	case ChannelDiscord:
		return p.DiscordHandle
	}
	return ""
}

// Attributes exposes the fields templates may reference.
func (p *Prospect) Attributes() map[string]string {
	return map[string]string{
		"first_name": p.FirstName,
		"last_name":  p.LastName,
		"company":    p.Company,
		"website":    p.Website,
		"email":      p.Email,
	}
}
