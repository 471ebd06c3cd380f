package controller

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	appErrors "github.com/affiliatehq/outreach-backend/internal/errors"
	"github.com/affiliatehq/outreach-backend/internal/queue"
	"github.com/affiliatehq/outreach-backend/internal/service"
)

// OutreachController is the thin HTTP surface over the engine. Payload
// validation beyond basic shape belongs to the API gateway in front.
type OutreachController struct {
	CampaignService *service.CampaignService
	Tracker         *service.ResponseTracker
	Events          queue.Queue
	EventTopic      string
	Logger          *zap.Logger
}

func (c *OutreachController) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name    string `json:"name"`
		Channel string `json:"channel"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	campaign, err := c.CampaignService.CreateCampaign(body.Name, body.Channel)
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(campaign)
}

func (c *OutreachController) StartCampaign(w http.ResponseWriter, r *http.Request) {
	c.campaignTransition(w, r, c.CampaignService.StartCampaign)
}

func (c *OutreachController) PauseCampaign(w http.ResponseWriter, r *http.Request) {
	c.campaignTransition(w, r, c.CampaignService.PauseCampaign)
}

func (c *OutreachController) ResumeCampaign(w http.ResponseWriter, r *http.Request) {
	c.campaignTransition(w, r, c.CampaignService.ResumeCampaign)
}

func (c *OutreachController) campaignTransition(w http.ResponseWriter, r *http.Request, fn func(uuid.UUID) error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid campaign id", http.StatusBadRequest)
		return
	}
	if err := fn(id); err != nil {
		writeError(w, err)
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (c *OutreachController) CreateSequenceStep(w http.ResponseWriter, r *http.Request) {
	campaignID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid campaign id", http.StatusBadRequest)
		return
	}

	var body struct {
		StepNumber     int    `json:"step_number"`
		TemplateID     string `json:"template_id"`
		DelayDays      int    `json:"delay_days"`
		NoResponseOnly bool   `json:"no_response_only"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	templateID, err := uuid.Parse(body.TemplateID)
	if err != nil {
		http.Error(w, "invalid template id", http.StatusBadRequest)
		return
	}

	step, err := c.CampaignService.CreateSequenceStep(campaignID, templateID, body.StepNumber, body.DelayDays, body.NoResponseOnly)
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(step)
}

func (c *OutreachController) EnrollProspect(w http.ResponseWriter, r *http.Request) {
	campaignID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid campaign id", http.StatusBadRequest)
		return
	}
	var body struct {
		ProspectID string `json:"prospect_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	prospectID, err := uuid.Parse(body.ProspectID)
	if err != nil {
		http.Error(w, "invalid prospect id", http.StatusBadRequest)
		return
	}
	if err := c.CampaignService.EnrollProspect(campaignID, prospectID); err != nil {
		writeError(w, err)
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"status": "enrolled"})
}

// TrackOpen, TrackClick, and TrackReply publish engagement events onto
// the queue; the worker (or in-memory subscriber) feeds them to the
// tracker. Webhooks get an immediate ack.
func (c *OutreachController) TrackOpen(w http.ResponseWriter, r *http.Request) {
	c.publishEvent(w, r, service.EventOpen)
}

func (c *OutreachController) TrackClick(w http.ResponseWriter, r *http.Request) {
	c.publishEvent(w, r, service.EventClick)
}

func (c *OutreachController) TrackReply(w http.ResponseWriter, r *http.Request) {
	c.publishEvent(w, r, service.EventReply)
}

func (c *OutreachController) publishEvent(w http.ResponseWriter, r *http.Request, event service.EventType) {
	messageID, err := uuid.Parse(chi.URLParam(r, "messageID"))
	if err != nil {
		http.Error(w, "invalid message id", http.StatusBadRequest)
		return
	}
	var payload service.EventPayload
	if r.Body != nil {
		// An empty body is fine for opens.
		_ = json.NewDecoder(r.Body).Decode(&payload)
	}

	err = c.Events.Publish(c.EventTopic, queue.EngagementEvent{
		MessageID: messageID,
		Event:     event,
		Payload:   payload,
	})
	if err != nil {
		c.Logger.Error("event publish failed", zap.Error(err))
		http.Error(w, "event not accepted", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"status": "accepted"})
}

func (c *OutreachController) GetResponseAnalytics(w http.ResponseWriter, r *http.Request) {
	var campaignID *uuid.UUID
	if raw := r.URL.Query().Get("campaign_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			http.Error(w, "invalid campaign id", http.StatusBadRequest)
			return
		}
		campaignID = &id
	}
	from := parseTimeParam(r.URL.Query().Get("from"))
	to := parseTimeParam(r.URL.Query().Get("to"))

	analytics, err := c.Tracker.GetResponseAnalytics(campaignID, from, to)
	if err != nil {
		writeError(w, err)
		return
	}
	json.NewEncoder(w).Encode(analytics)
}

func parseTimeParam(raw string) *time.Time {
	if raw == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil
	}
	return &t
}

func writeError(w http.ResponseWriter, err error) {
	var validation *appErrors.ErrValidation
	var ordering *appErrors.ErrOrderingViolation
	var notFound *appErrors.ErrCampaignNotFound
	switch {
	case errors.As(err, &validation), errors.As(err, &ordering):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.As(err, &notFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
