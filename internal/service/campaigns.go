package service

import (
	"go.uber.org/zap"

	"github.com/google/uuid"

	appErrors "github.com/affiliatehq/outreach-backend/internal/errors"
	"github.com/affiliatehq/outreach-backend/internal/model"
	"github.com/affiliatehq/outreach-backend/internal/repository"
)

// CampaignService is the campaign lifecycle surface consumed by the API
// layer.
type CampaignService struct {
	Campaigns repository.CampaignRepositoryInterface
	Prospects repository.ProspectRepositoryInterface
	ABTests   repository.ABTestRepositoryInterface
	Logger    *zap.Logger
}

func (s *CampaignService) CreateCampaign(name, channelName string) (*model.Campaign, error) {
	if name == "" {
		return nil, appErrors.NewValidation("campaign name cannot be empty")
	}
	ch, err := model.ParseChannel(channelName)
	if err != nil {
		return nil, appErrors.NewValidation("%v", err)
	}
	c := &model.Campaign{
		Name:    name,
		Channel: ch,
		Status:  model.CampaignDraft,
	}
	if err := s.Campaigns.Create(c); err != nil {
		return nil, err
	}
	s.Logger.Info("campaign created",
		zap.String("campaign_id", c.ID.String()),
		zap.String("channel", string(ch)))
	return c, nil
}

// StartCampaign activates a draft or paused campaign.
func (s *CampaignService) StartCampaign(id uuid.UUID) error {
	return s.transition(id, model.CampaignActive, model.CampaignDraft, model.CampaignPaused)
}

func (s *CampaignService) PauseCampaign(id uuid.UUID) error {
	return s.transition(id, model.CampaignPaused, model.CampaignActive)
}

func (s *CampaignService) ResumeCampaign(id uuid.UUID) error {
	return s.transition(id, model.CampaignActive, model.CampaignPaused)
}

func (s *CampaignService) CompleteCampaign(id uuid.UUID) error {
	return s.transition(id, model.CampaignCompleted, model.CampaignActive, model.CampaignPaused)
}

func (s *CampaignService) transition(id uuid.UUID, to model.CampaignStatus, from ...model.CampaignStatus) error {
	c, err := s.Campaigns.GetByID(id)
	if err != nil {
		return err
	}
	ok := false
	for _, status := range from {
		if c.Status == status {
			ok = true
			break
		}
	}
	if !ok {
		return appErrors.NewValidation("campaign %s cannot move from %s to %s", id, c.Status, to)
	}
	if err := s.Campaigns.UpdateStatus(id, to); err != nil {
		return err
	}
	s.Logger.Info("campaign status changed",
		zap.String("campaign_id", id.String()),
		zap.String("old_status", string(c.Status)),
		zap.String("new_status", string(to)))
	return nil
}

// CreateSequenceStep appends a step. Step numbers must increase by
// exactly one; that order is the only valid advancement order.
func (s *CampaignService) CreateSequenceStep(campaignID, templateID uuid.UUID, stepNumber, delayDays int, noResponseOnly bool) (*model.SequenceStep, error) {
	if _, err := s.Campaigns.GetByID(campaignID); err != nil {
		return nil, err
	}
	if delayDays < 0 {
		return nil, appErrors.NewValidation("delay_days cannot be negative")
	}
	template, err := s.Campaigns.GetTemplate(templateID)
	if err != nil {
		return nil, err
	}
	if template == nil {
		return nil, appErrors.NewValidation("template %s not found", templateID)
	}

	max, err := s.Campaigns.MaxStepNumber(campaignID)
	if err != nil {
		return nil, err
	}
	if stepNumber != max+1 {
		return nil, appErrors.NewOrderingViolation(max+1, stepNumber)
	}

	step := &model.SequenceStep{
		CampaignID:     campaignID,
		StepNumber:     stepNumber,
		TemplateID:     templateID,
		DelayDays:      delayDays,
		NoResponseOnly: noResponseOnly,
	}
	if err := s.Campaigns.CreateStep(step); err != nil {
		return nil, err
	}
	return step, nil
}

func (s *CampaignService) CreateTemplate(name, subject, content string) (*model.MessageTemplate, error) {
	if content == "" {
		return nil, appErrors.NewValidation("template content cannot be empty")
	}
	t := &model.MessageTemplate{Name: name, Subject: subject, Content: content}
	if err := s.Campaigns.CreateTemplate(t); err != nil {
		return nil, err
	}
	return t, nil
}

// EnrollProspect adds a prospect to a campaign. Consent is not required
// to enroll, only to send.
func (s *CampaignService) EnrollProspect(campaignID, prospectID uuid.UUID) error {
	if _, err := s.Campaigns.GetByID(campaignID); err != nil {
		return err
	}
	p, err := s.Prospects.GetByID(prospectID)
	if err != nil {
		return err
	}
	if p == nil {
		return appErrors.NewValidation("prospect %s not found", prospectID)
	}
	return s.Campaigns.EnrollProspect(campaignID, prospectID)
}
