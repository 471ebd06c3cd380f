package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/affiliatehq/outreach-backend/internal/channel"
	appErrors "github.com/affiliatehq/outreach-backend/internal/errors"
	"github.com/affiliatehq/outreach-backend/internal/model"
	"github.com/affiliatehq/outreach-backend/internal/repository"
)

// Response timeouts per state, measured from the last outbound send.
const (
	followUp1After = 3 * 24 * time.Hour
	followUp2After = 7 * 24 * time.Hour
	closeAfter     = 14 * 24 * time.Hour
)

// AdvanceResult reports what a single advancement did.
type AdvanceResult struct {
	Sent      bool
	NoOp      bool
	Closed    bool
	Skipped   bool
	State     model.ConversationState
	MessageID uuid.UUID
}

// ConversationFlowManager owns conversation state. It is the only
// component that mutates conversation rows, and it writes them only
// after the external send has resolved, so a crash mid-send never leaves
// a half-advanced conversation.
type ConversationFlowManager struct {
	Conversations repository.ConversationRepositoryInterface
	Prospects     repository.ProspectRepositoryInterface
	Campaigns     repository.CampaignRepositoryInterface
	Messages      repository.MessageLogRepositoryInterface
	Channels      *channel.Registry
	Limiter       *RateLimiter
	Renderer      PersonalizationSource
	Logger        *zap.Logger

	// MaxSendFailures closes a conversation unresponsive once delivery
	// has failed this many times.
	MaxSendFailures int

	Clock func() time.Time
}

func NewConversationFlowManager(
	conversations repository.ConversationRepositoryInterface,
	prospects repository.ProspectRepositoryInterface,
	campaigns repository.CampaignRepositoryInterface,
	messages repository.MessageLogRepositoryInterface,
	channels *channel.Registry,
	limiter *RateLimiter,
	renderer PersonalizationSource,
	logger *zap.Logger,
) *ConversationFlowManager {
	return &ConversationFlowManager{
		Conversations:   conversations,
		Prospects:       prospects,
		Campaigns:       campaigns,
		Messages:        messages,
		Channels:        channels,
		Limiter:         limiter,
		Renderer:        renderer,
		Logger:          logger,
		MaxSendFailures: 5,
		Clock:           time.Now,
	}
}

// SendStep performs one sequence-step send for a prospect, creating the
// conversation on the first step. Ordering, consent, and campaign status
// are enforced here so no caller can bypass them.
func (f *ConversationFlowManager) SendStep(
	ctx context.Context,
	campaign *model.Campaign,
	prospect *model.Prospect,
	step *model.SequenceStep,
	template *model.MessageTemplate,
	variantID *uuid.UUID,
) (*AdvanceResult, error) {
	if campaign.Status != model.CampaignActive {
		return &AdvanceResult{Skipped: true}, nil
	}
	if template == nil {
		return nil, appErrors.NewValidation("template %s not found", step.TemplateID)
	}

	conv, err := f.Conversations.GetByProspectCampaign(prospect.ID, campaign.ID)
	if err != nil {
		return nil, err
	}
	if conv != nil && conv.State.Terminal() {
		f.Logger.Info("advance on terminal conversation is a no-op",
			zap.String("conversation_id", conv.ID.String()),
			zap.String("state", string(conv.State)))
		return &AdvanceResult{NoOp: true, State: conv.State}, nil
	}

	if !prospect.ConsentGiven {
		f.Logger.Warn("policy violation: send attempted without consent",
			zap.String("prospect_id", prospect.ID.String()),
			zap.String("campaign_id", campaign.ID.String()))
		return nil, appErrors.NewConsentViolation(prospect.ID)
	}

	lastStep, _, err := f.Messages.LastSentStep(prospect.ID, campaign.ID)
	if err != nil {
		return nil, err
	}
	if step.StepNumber != lastStep+1 {
		return nil, appErrors.NewOrderingViolation(lastStep+1, step.StepNumber)
	}

	handle := prospect.Handle(campaign.Channel)
	if handle == "" {
		return nil, appErrors.NewValidation("prospect %s has no %s handle", prospect.ID, campaign.Channel)
	}
	adapter, err := f.Channels.Get(campaign.Channel)
	if err != nil {
		return nil, appErrors.NewValidation("%v", err)
	}

	if !f.Limiter.Allow(campaign.Channel) {
		return nil, appErrors.ErrRateLimited
	}

	if conv == nil {
		conv = &model.Conversation{
			ProspectID: prospect.ID,
			CampaignID: campaign.ID,
			Channel:    campaign.Channel,
			State:      model.StateInitialOutreach,
		}
		if err := f.Conversations.Create(conv); err != nil {
			return nil, err
		}
		f.logTransition(conv, "", model.StateInitialOutreach)
	}

	subject, body := f.Renderer.Render(template, prospect)
	templateID := step.TemplateID
	msg := &model.MessageLog{
		ConversationID: conv.ID,
		ProspectID:     prospect.ID,
		CampaignID:     campaign.ID,
		TemplateID:     &templateID,
		Channel:        campaign.Channel,
		Type:           model.MessageOutreach,
		StepNumber:     step.StepNumber,
		Subject:        subject,
		Content:        body,
		ABTestVariant:  variantID,
	}
	if err := f.Messages.Create(msg); err != nil {
		return nil, err
	}

	res, err := adapter.Send(ctx, handle, subject, body)
	if err != nil || !res.Success {
		return f.recordSendFailure(conv, msg, campaign.Channel, err, res)
	}

	now := f.Clock()
	if err := f.Messages.MarkSent(msg.ID, res.ExternalMessageID, now); err != nil {
		return nil, err
	}
	conv.LastOutboundAt = &now
	conv.SendFailures = 0
	if err := f.Conversations.Update(conv); err != nil {
		return nil, err
	}
	if step.StepNumber == 1 {
		if err := f.Prospects.UpdateStatus(prospect.ID, model.ProspectContacted); err != nil {
			f.Logger.Warn("prospect status update failed", zap.Error(err))
		}
	}

	f.Logger.Info("sequence step sent",
		zap.String("conversation_id", conv.ID.String()),
		zap.String("prospect_id", prospect.ID.String()),
		zap.Int("step_number", step.StepNumber),
		zap.String("channel", string(campaign.Channel)))

	return &AdvanceResult{Sent: true, State: conv.State, MessageID: msg.ID}, nil
}

// AdvanceTimeout applies the timeout rules to one conversation:
// 3 days of silence triggers follow-up 1, 7 more the second follow-up,
// and 14 days after the final attempt the conversation closes.
func (f *ConversationFlowManager) AdvanceTimeout(ctx context.Context, conv *model.Conversation) (*AdvanceResult, error) {
	if conv.State.Terminal() {
		f.Logger.Info("timeout advance on terminal conversation is a no-op",
			zap.String("conversation_id", conv.ID.String()))
		return &AdvanceResult{NoOp: true, State: conv.State}, nil
	}
	if conv.ResponseReceived || conv.LastOutboundAt == nil {
		return &AdvanceResult{NoOp: true, State: conv.State}, nil
	}

	// The initial-outreach state promotes to awaiting as soon as the
	// first send is confirmed; the silence clock keeps running from the
	// send itself.
	if conv.State == model.StateInitialOutreach {
		f.logTransition(conv, conv.State, model.StateAwaitingResponse)
		conv.State = model.StateAwaitingResponse
		if err := f.Conversations.Update(conv); err != nil {
			return nil, err
		}
	}

	elapsed := f.Clock().Sub(*conv.LastOutboundAt)
	switch conv.State {
	case model.StateAwaitingResponse:
		if elapsed < followUp1After {
			return &AdvanceResult{NoOp: true, State: conv.State}, nil
		}
		return f.sendFollowUp(ctx, conv, 1, model.StateFollowUp1, model.StateAwaitingResponse2)

	case model.StateAwaitingResponse2, model.StateFollowUp1:
		if elapsed < followUp2After {
			return &AdvanceResult{NoOp: true, State: conv.State}, nil
		}
		return f.sendFollowUp(ctx, conv, 2, model.StateFollowUp2, model.StateFinalAttempt)

	case model.StateFinalAttempt, model.StateFollowUp2:
		if elapsed < closeAfter {
			return &AdvanceResult{NoOp: true, State: conv.State}, nil
		}
		if err := f.close(conv, model.StateClosedUnresponsive, "no response after final attempt"); err != nil {
			return nil, err
		}
		return &AdvanceResult{Closed: true, State: conv.State}, nil
	}

	return &AdvanceResult{NoOp: true, State: conv.State}, nil
}

func (f *ConversationFlowManager) sendFollowUp(
	ctx context.Context,
	conv *model.Conversation,
	n int,
	via, target model.ConversationState,
) (*AdvanceResult, error) {
	campaign, err := f.Campaigns.GetByID(conv.CampaignID)
	if err != nil {
		return nil, err
	}
	if campaign.Status != model.CampaignActive {
		return &AdvanceResult{Skipped: true, State: conv.State}, nil
	}

	prospect, err := f.Prospects.GetByID(conv.ProspectID)
	if err != nil {
		return nil, err
	}
	if prospect == nil {
		return nil, appErrors.NewValidation("prospect %s not found", conv.ProspectID)
	}
	if !prospect.ConsentGiven {
		f.Logger.Warn("policy violation: follow-up attempted without consent",
			zap.String("prospect_id", prospect.ID.String()))
		return nil, appErrors.NewConsentViolation(prospect.ID)
	}

	adapter, err := f.Channels.Get(conv.Channel)
	if err != nil {
		return nil, appErrors.NewValidation("%v", err)
	}
	if !f.Limiter.Allow(conv.Channel) {
		return nil, appErrors.ErrRateLimited
	}

	subject, body := f.Renderer.RenderFollowUp(prospect, n)
	msg := &model.MessageLog{
		ConversationID: conv.ID,
		ProspectID:     conv.ProspectID,
		CampaignID:     conv.CampaignID,
		Channel:        conv.Channel,
		Type:           model.MessageFollowUp,
		Subject:        subject,
		Content:        body,
	}
	if err := f.Messages.Create(msg); err != nil {
		return nil, err
	}

	res, err := adapter.Send(ctx, prospect.Handle(conv.Channel), subject, body)
	if err != nil || !res.Success {
		return f.recordSendFailure(conv, msg, conv.Channel, err, res)
	}

	now := f.Clock()
	if err := f.Messages.MarkSent(msg.ID, res.ExternalMessageID, now); err != nil {
		return nil, err
	}
	f.logTransition(conv, conv.State, via)
	f.logTransition(conv, via, target)
	conv.State = target
	conv.FollowUpCount++
	conv.LastOutboundAt = &now
	conv.SendFailures = 0
	if err := f.Conversations.Update(conv); err != nil {
		return nil, err
	}

	return &AdvanceResult{Sent: true, State: conv.State, MessageID: msg.ID}, nil
}

// HandleReply routes an inbound reply through the response states. The
// caller stamps the original message's replied_at only after this
// resolves, so an error here means the reply is re-ingested later.
func (f *ConversationFlowManager) HandleReply(
	ctx context.Context,
	conv *model.Conversation,
	replyText string,
	cls Classification,
) (*AdvanceResult, error) {
	if conv.State.Terminal() {
		f.Logger.Warn("late reply on terminal conversation, not reopening",
			zap.String("conversation_id", conv.ID.String()),
			zap.String("state", string(conv.State)))
		return &AdvanceResult{NoOp: true, State: conv.State}, nil
	}

	polarity := cls.Polarity
	if !conv.ResponseReceived {
		reply := &model.MessageLog{
			ConversationID: conv.ID,
			ProspectID:     conv.ProspectID,
			CampaignID:     conv.CampaignID,
			Channel:        conv.Channel,
			Type:           model.MessageResponse,
			Content:        replyText,
			Status:         model.MessageReplied,
			Sentiment:      &polarity,
		}
		if err := f.Messages.Create(reply); err != nil {
			return nil, err
		}
	}
	conv.ResponseReceived = true

	switch {
	case cls.Polarity > 0.3:
		f.logTransition(conv, conv.State, model.StatePositiveResponse)
		conv.State = model.StatePositiveResponse
		if err := f.close(conv, model.StateOnboarding, "positive reply"); err != nil {
			return nil, err
		}
		if err := f.Prospects.UpdateStatus(conv.ProspectID, model.ProspectInterested); err != nil {
			f.Logger.Warn("prospect status update failed", zap.Error(err))
		}
		return &AdvanceResult{Closed: true, State: conv.State}, nil

	case cls.Polarity < -0.3:
		f.logTransition(conv, conv.State, model.StateNegativeResponse)
		conv.State = model.StateNegativeResponse
		if err := f.close(conv, model.StateRespectfulClosure, "negative reply"); err != nil {
			return nil, err
		}
		if err := f.Prospects.UpdateStatus(conv.ProspectID, model.ProspectDeclined); err != nil {
			f.Logger.Warn("prospect status update failed", zap.Error(err))
		}
		return &AdvanceResult{Closed: true, State: conv.State}, nil
	}

	f.logTransition(conv, conv.State, model.StateNeutralResponse)
	conv.State = model.StateNeutralResponse
	if err := f.Prospects.UpdateStatus(conv.ProspectID, model.ProspectEngaged); err != nil {
		f.Logger.Warn("prospect status update failed", zap.Error(err))
	}

	if cls.IsQuestion {
		return f.shareInformation(ctx, conv, replyText)
	}

	f.logTransition(conv, conv.State, model.StateNurturingSequence)
	conv.State = model.StateNurturingSequence
	if err := f.Conversations.Update(conv); err != nil {
		return nil, err
	}
	return &AdvanceResult{State: conv.State}, nil
}

// shareInformation answers a question-bearing neutral reply with an
// informational message. A failed send leaves the conversation in
// neutral_response; the re-ingested reply retries the share.
func (f *ConversationFlowManager) shareInformation(ctx context.Context, conv *model.Conversation, question string) (*AdvanceResult, error) {
	prospect, err := f.Prospects.GetByID(conv.ProspectID)
	if err != nil {
		return nil, err
	}
	if !prospect.ConsentGiven {
		if err := f.Conversations.Update(conv); err != nil {
			return nil, err
		}
		return nil, appErrors.NewConsentViolation(prospect.ID)
	}

	adapter, err := f.Channels.Get(conv.Channel)
	if err != nil {
		return nil, appErrors.NewValidation("%v", err)
	}
	if !f.Limiter.Allow(conv.Channel) {
		if err := f.Conversations.Update(conv); err != nil {
			return nil, err
		}
		return nil, appErrors.ErrRateLimited
	}

	subject, body := f.Renderer.RenderInfoShare(prospect, question)
	msg := &model.MessageLog{
		ConversationID: conv.ID,
		ProspectID:     conv.ProspectID,
		CampaignID:     conv.CampaignID,
		Channel:        conv.Channel,
		Type:           model.MessageInformation,
		Subject:        subject,
		Content:        body,
	}
	if err := f.Messages.Create(msg); err != nil {
		return nil, err
	}

	res, err := adapter.Send(ctx, prospect.Handle(conv.Channel), subject, body)
	if err != nil || !res.Success {
		if _, ferr := f.recordSendFailure(conv, msg, conv.Channel, err, res); ferr != nil {
			return nil, ferr
		}
		return nil, appErrors.NewChannelDelivery(string(conv.Channel), err)
	}

	now := f.Clock()
	if err := f.Messages.MarkSent(msg.ID, res.ExternalMessageID, now); err != nil {
		return nil, err
	}
	f.logTransition(conv, conv.State, model.StateInformationSharing)
	conv.State = model.StateInformationSharing
	conv.LastOutboundAt = &now
	if err := f.Conversations.Update(conv); err != nil {
		return nil, err
	}
	return &AdvanceResult{Sent: true, State: conv.State, MessageID: msg.ID}, nil
}

// recordSendFailure marks the attempt failed without advancing state.
// Repeated failures hit the cap and close the conversation.
func (f *ConversationFlowManager) recordSendFailure(
	conv *model.Conversation,
	msg *model.MessageLog,
	ch model.Channel,
	sendErr error,
	res *channel.SendResult,
) (*AdvanceResult, error) {
	reason := "send failed"
	if sendErr != nil {
		reason = sendErr.Error()
	} else if res != nil && res.Err != nil {
		reason = res.Err.Error()
		sendErr = res.Err
	}
	if err := f.Messages.MarkFailed(msg.ID, reason); err != nil {
		return nil, err
	}

	conv.SendFailures++
	if conv.SendFailures >= f.MaxSendFailures {
		closeReason := fmt.Sprintf("delivery failed %d times: %s", conv.SendFailures, reason)
		if err := f.close(conv, model.StateClosedUnresponsive, closeReason); err != nil {
			return nil, err
		}
	} else if err := f.Conversations.Update(conv); err != nil {
		return nil, err
	}

	f.Logger.Warn("channel delivery failed, conversation not advanced",
		zap.String("conversation_id", conv.ID.String()),
		zap.String("channel", string(ch)),
		zap.Int("send_failures", conv.SendFailures),
		zap.String("reason", reason))

	return nil, appErrors.NewChannelDelivery(string(ch), sendErr)
}

// close moves a conversation to a terminal state and drops it from the
// active working set.
func (f *ConversationFlowManager) close(conv *model.Conversation, state model.ConversationState, reason string) error {
	f.logTransition(conv, conv.State, state)
	conv.State = state
	conv.Active = false
	conv.ClosedReason = reason
	return f.Conversations.Update(conv)
}

func (f *ConversationFlowManager) logTransition(conv *model.Conversation, from, to model.ConversationState) {
	f.Logger.Info("conversation state changed",
		zap.String("conversation_id", conv.ID.String()),
		zap.String("prospect_id", conv.ProspectID.String()),
		zap.String("old_state", string(from)),
		zap.String("new_state", string(to)))
}
