package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	appErrors "github.com/affiliatehq/outreach-backend/internal/errors"
	"github.com/affiliatehq/outreach-backend/internal/model"
	"github.com/affiliatehq/outreach-backend/internal/repository"
)

type EventType string

const (
	EventOpen  EventType = "open"
	EventClick EventType = "click"
	EventReply EventType = "reply"
)

// EventPayload carries the channel-specific extras of an inbound event.
type EventPayload struct {
	ReplyText         string `json:"reply_text,omitempty"`
	ClickURL          string `json:"click_url,omitempty"`
	ExternalMessageID string `json:"external_message_id,omitempty"`
}

// IngestResult reports what an event changed.
type IngestResult struct {
	Applied   bool                    `json:"applied"`
	Sentiment *float64                `json:"sentiment,omitempty"`
	State     model.ConversationState `json:"state,omitempty"`
}

// ResponseAnalytics is the campaign-level engagement report.
type ResponseAnalytics struct {
	TotalMessages     int     `json:"total_messages"`
	Opens             int     `json:"opens"`
	Clicks            int     `json:"clicks"`
	Replies           int     `json:"replies"`
	OpenRate          float64 `json:"open_rate"`
	ClickRate         float64 `json:"click_rate"`
	ReplyRate         float64 `json:"reply_rate"`
	PositiveResponses int     `json:"positive_responses"`
	NegativeResponses int     `json:"negative_responses"`
	PositiveRate      float64 `json:"positive_rate"`
	AvgResponseSecs   float64 `json:"avg_response_seconds"`
	RepliesUnder1h    int     `json:"replies_under_1h"`
	RepliesUnder24h   int     `json:"replies_under_24h"`
	RepliesOver24h    int     `json:"replies_over_24h"`
}

// ResponseTracker ingests inbound engagement events. Ingestion is
// idempotent per (message, event): replays change nothing.
type ResponseTracker struct {
	Messages      repository.MessageLogRepositoryInterface
	Conversations repository.ConversationRepositoryInterface
	Campaigns     repository.CampaignRepositoryInterface
	ABTests       repository.ABTestRepositoryInterface
	Flow          *ConversationFlowManager
	Classifier    SentimentClassifier
	Logger        *zap.Logger
	Clock         func() time.Time
}

func NewResponseTracker(
	messages repository.MessageLogRepositoryInterface,
	conversations repository.ConversationRepositoryInterface,
	campaigns repository.CampaignRepositoryInterface,
	abTests repository.ABTestRepositoryInterface,
	flow *ConversationFlowManager,
	classifier SentimentClassifier,
	logger *zap.Logger,
) *ResponseTracker {
	if classifier == nil {
		classifier = LexiconClassifier{}
	}
	return &ResponseTracker{
		Messages:      messages,
		Conversations: conversations,
		Campaigns:     campaigns,
		ABTests:       abTests,
		Flow:          flow,
		Classifier:    classifier,
		Logger:        logger,
		Clock:         time.Now,
	}
}

func (t *ResponseTracker) Ingest(ctx context.Context, messageID uuid.UUID, event EventType, payload EventPayload) (*IngestResult, error) {
	msg, err := t.Messages.GetByID(messageID)
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, appErrors.NewValidation("message %s not found", messageID)
	}

	now := t.Clock()
	result := &IngestResult{}

	switch event {
	case EventOpen:
		applied, err := t.Messages.SetOpened(messageID, now)
		if err != nil {
			return nil, err
		}
		result.Applied = applied

	case EventClick:
		applied, err := t.Messages.SetClicked(messageID, now)
		if err != nil {
			return nil, err
		}
		result.Applied = applied
		if applied {
			t.Logger.Info("click tracked",
				zap.String("message_id", messageID.String()),
				zap.String("url", payload.ClickURL))
		}

	case EventReply:
		if msg.RepliedAt != nil {
			// Replay of an already-processed reply.
			break
		}
		cls := t.Classifier.Classify(payload.ReplyText)

		conv, err := t.Conversations.GetByID(msg.ConversationID)
		if err != nil {
			return nil, err
		}
		if conv == nil {
			t.Logger.Warn("reply for message without conversation",
				zap.String("message_id", messageID.String()))
		} else {
			// The reply is stamped only after the flow resolves, so a
			// failed outbound (an unanswered info share) leaves
			// replied_at empty and the queue redelivery retries it.
			res, err := t.Flow.HandleReply(ctx, conv, payload.ReplyText, cls)
			if err != nil {
				return nil, err
			}
			result.State = res.State
		}

		applied, err := t.Messages.SetReplied(messageID, now, cls.Polarity)
		if err != nil {
			return nil, err
		}
		result.Applied = applied
		if applied {
			result.Sentiment = &cls.Polarity
		}

	default:
		return nil, appErrors.NewValidation("unknown event type %q", event)
	}

	if result.Applied && msg.ABTestVariant != nil {
		if err := t.recomputeVariant(msg); err != nil {
			t.Logger.Error("ab test aggregate recompute failed", zap.Error(err))
		}
	}

	t.Logger.Info("engagement event ingested",
		zap.String("message_id", messageID.String()),
		zap.String("event", string(event)),
		zap.Bool("applied", result.Applied))

	return result, nil
}

// recomputeVariant rebuilds the variant's aggregate rates from the
// message log, so the aggregate stays correct across restarts and
// replays.
func (t *ResponseTracker) recomputeVariant(msg *model.MessageLog) error {
	campaign, err := t.Campaigns.GetByID(msg.CampaignID)
	if err != nil {
		return err
	}
	if campaign.ABTestID == nil {
		return nil
	}

	counts, err := t.Messages.VariantCounts(msg.CampaignID, *msg.ABTestVariant)
	if err != nil {
		return err
	}

	result := &model.ABTestResult{
		ABTestID:  *campaign.ABTestID,
		VariantID: *msg.ABTestVariant,
		SentCount: counts.Sent,
	}
	if counts.Sent > 0 {
		result.OpenRate = float64(counts.Opened) / float64(counts.Sent) * 100
		result.ClickRate = float64(counts.Clicked) / float64(counts.Sent) * 100
		result.ReplyRate = float64(counts.Replied) / float64(counts.Sent) * 100
	}
	if counts.Replied > 0 {
		result.PositiveResponseRate = float64(counts.Positive) / float64(counts.Replied) * 100
	}
	return t.ABTests.UpdateRates(result)
}

// GetResponseAnalytics summarizes engagement, optionally filtered by
// campaign and sent-at range.
func (t *ResponseTracker) GetResponseAnalytics(campaignID *uuid.UUID, from, to *time.Time) (*ResponseAnalytics, error) {
	counts, err := t.Messages.Analytics(campaignID, from, to)
	if err != nil {
		return nil, err
	}

	a := &ResponseAnalytics{
		TotalMessages:     counts.Total,
		Opens:             counts.Opened,
		Clicks:            counts.Clicked,
		Replies:           counts.Replied,
		PositiveResponses: counts.Positive,
		NegativeResponses: counts.Negative,
	}
	if counts.Total > 0 {
		a.OpenRate = float64(counts.Opened) / float64(counts.Total) * 100
		a.ClickRate = float64(counts.Clicked) / float64(counts.Total) * 100
		a.ReplyRate = float64(counts.Replied) / float64(counts.Total) * 100
	}
	if counts.Replied > 0 {
		a.PositiveRate = float64(counts.Positive) / float64(counts.Replied) * 100
	}

	var sum float64
	for _, secs := range counts.ResponseSeconds {
		sum += secs
		switch {
		case secs < 3600:
			a.RepliesUnder1h++
			a.RepliesUnder24h++
		case secs < 86400:
			a.RepliesUnder24h++
		default:
			a.RepliesOver24h++
		}
	}
	if len(counts.ResponseSeconds) > 0 {
		a.AvgResponseSecs = sum / float64(len(counts.ResponseSeconds))
	}
	return a, nil
}
