package service

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	appErrors "github.com/affiliatehq/outreach-backend/internal/errors"
	"github.com/affiliatehq/outreach-backend/internal/model"
	"github.com/affiliatehq/outreach-backend/internal/repository"
)

// CycleResult is what one scheduler sweep accomplished.
type CycleResult struct {
	Advanced      int `json:"advanced"`
	Sent          int `json:"sent"`
	Failed        int `json:"failed"`
	Deferred      int `json:"deferred"`
	SkippedPaused int `json:"skipped_paused"`
}

// SequenceScheduler sweeps active campaigns each tick, sends due
// sequence steps, and runs the conversation timeout sweep. Every
// advancement takes the (campaign, prospect) claim first, so overlapping
// cycles cannot double-send.
type SequenceScheduler struct {
	Campaigns     repository.CampaignRepositoryInterface
	Prospects     repository.ProspectRepositoryInterface
	Conversations repository.ConversationRepositoryInterface
	Messages      repository.MessageLogRepositoryInterface
	ABTests       repository.ABTestRepositoryInterface
	Flow          *ConversationFlowManager
	Timing        *TimingOptimizer
	Logger        *zap.Logger

	// MaxInFlight bounds concurrent sends within a cycle.
	MaxInFlight int
	// CycleBudget is the soft time limit for one cycle; work not done in
	// time waits for the next tick.
	CycleBudget time.Duration
	// ClaimTTL is how long an advance claim is honored before being
	// treated as abandoned.
	ClaimTTL time.Duration
	// TimingSlack is how far in the future an optimal send time may lie
	// and still count as "due now".
	TimingSlack time.Duration

	Clock func() time.Time

	// Rand feeds variant selection. pickVariant runs on the errgroup
	// workers, and math/rand sources are not goroutine-safe, so access
	// goes through randMu.
	Rand   *rand.Rand
	randMu sync.Mutex
}

func NewSequenceScheduler(
	campaigns repository.CampaignRepositoryInterface,
	prospects repository.ProspectRepositoryInterface,
	conversations repository.ConversationRepositoryInterface,
	messages repository.MessageLogRepositoryInterface,
	abTests repository.ABTestRepositoryInterface,
	flow *ConversationFlowManager,
	timing *TimingOptimizer,
	logger *zap.Logger,
) *SequenceScheduler {
	return &SequenceScheduler{
		Campaigns:     campaigns,
		Prospects:     prospects,
		Conversations: conversations,
		Messages:      messages,
		ABTests:       abTests,
		Flow:          flow,
		Timing:        timing,
		Logger:        logger,
		MaxInFlight:   8,
		CycleBudget:   4 * time.Minute,
		ClaimTTL:      10 * time.Minute,
		TimingSlack:   30 * time.Minute,
		Clock:         time.Now,
		Rand:          rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// RunCycle performs one sweep. Deferrals (rate limit, timing window) are
// not failures; the same work is retried next cycle.
func (s *SequenceScheduler) RunCycle(ctx context.Context) (*CycleResult, error) {
	if s.CycleBudget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.CycleBudget)
		defer cancel()
	}

	result := &CycleResult{}
	var mu sync.Mutex

	paused, err := s.Campaigns.ListByStatus(model.CampaignPaused)
	if err != nil {
		return nil, err
	}
	for _, c := range paused {
		enrollments, err := s.Campaigns.ListEnrollments(c.ID)
		if err != nil {
			return nil, err
		}
		result.SkippedPaused += len(enrollments)
	}

	active, err := s.Campaigns.ListByStatus(model.CampaignActive)
	if err != nil {
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.MaxInFlight)

	for _, campaign := range active {
		steps, err := s.Campaigns.ListSteps(campaign.ID)
		if err != nil {
			return nil, err
		}
		enrollments, err := s.Campaigns.ListEnrollments(campaign.ID)
		if err != nil {
			return nil, err
		}

		for _, enrollment := range enrollments {
			campaign, enrollment := campaign, enrollment
			g.Go(func() error {
				if gctx.Err() != nil {
					return nil
				}
				outcome := s.advanceProspect(gctx, campaign, steps, enrollment)
				mu.Lock()
				result.Advanced += outcome.Advanced
				result.Sent += outcome.Sent
				result.Failed += outcome.Failed
				result.Deferred += outcome.Deferred
				mu.Unlock()
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return result, err
	}

	sweep := s.sweepTimeouts(ctx)
	result.Advanced += sweep.Advanced
	result.Sent += sweep.Sent
	result.Failed += sweep.Failed
	result.Deferred += sweep.Deferred

	s.Logger.Info("scheduler cycle complete",
		zap.Int("advanced", result.Advanced),
		zap.Int("sent", result.Sent),
		zap.Int("failed", result.Failed),
		zap.Int("deferred", result.Deferred),
		zap.Int("skipped_paused", result.SkippedPaused))

	return result, nil
}

// advanceProspect sends the next due sequence step for one enrollment,
// if any.
func (s *SequenceScheduler) advanceProspect(
	ctx context.Context,
	campaign *model.Campaign,
	steps []*model.SequenceStep,
	enrollment *model.Enrollment,
) CycleResult {
	var out CycleResult

	claimed, err := s.Campaigns.ClaimAdvance(campaign.ID, enrollment.ProspectID, s.ClaimTTL)
	if err != nil {
		s.Logger.Error("claim failed", zap.Error(err))
		out.Failed++
		return out
	}
	if !claimed {
		// Another cycle holds this pair.
		return out
	}
	defer func() {
		if err := s.Campaigns.ReleaseAdvance(campaign.ID, enrollment.ProspectID); err != nil {
			s.Logger.Warn("claim release failed", zap.Error(err))
		}
	}()

	conv, err := s.Conversations.GetByProspectCampaign(enrollment.ProspectID, campaign.ID)
	if err != nil {
		out.Failed++
		return out
	}
	if conv != nil && conv.State.Terminal() {
		return out
	}

	lastStep, lastSentAt, err := s.Messages.LastSentStep(enrollment.ProspectID, campaign.ID)
	if err != nil {
		out.Failed++
		return out
	}

	step := findStep(steps, lastStep+1)
	if step == nil {
		return out
	}

	if step.NoResponseOnly {
		replied, err := s.Messages.HasReply(enrollment.ProspectID, campaign.ID)
		if err != nil {
			out.Failed++
			return out
		}
		if replied {
			return out
		}
	}

	now := s.Clock()
	due := enrollment.EnrolledAt
	if lastSentAt != nil {
		due = *lastSentAt
	}
	due = due.AddDate(0, 0, step.DelayDays)
	if now.Before(due) {
		return out
	}

	prospect, err := s.Prospects.GetByID(enrollment.ProspectID)
	if err != nil || prospect == nil {
		out.Failed++
		return out
	}

	optimal := s.Timing.OptimalSendTime(prospect, campaign.Channel)
	if optimal.After(now.Add(s.TimingSlack)) {
		out.Deferred++
		return out
	}

	templateID := step.TemplateID
	var variantID *uuid.UUID
	if campaign.ABTestID != nil {
		if variant := s.pickVariant(*campaign.ABTestID); variant != nil {
			templateID = variant.TemplateID
			variantID = &variant.ID
		}
	}
	template, err := s.Campaigns.GetTemplate(templateID)
	if err != nil {
		out.Failed++
		return out
	}

	res, err := s.Flow.SendStep(ctx, campaign, prospect, step, template, variantID)
	switch {
	case err == nil:
		if res.Sent {
			out.Advanced++
			out.Sent++
			if variantID != nil {
				if err := s.ABTests.IncrementSent(*campaign.ABTestID, *variantID); err != nil {
					s.Logger.Warn("ab test sent count update failed", zap.Error(err))
				}
			}
		}
	case appErrors.IsDeferral(err):
		out.Deferred++
	default:
		var ord *appErrors.ErrOrderingViolation
		if errors.As(err, &ord) {
			s.Logger.Error("ordering violation, step not sent",
				zap.String("campaign_id", campaign.ID.String()),
				zap.String("prospect_id", enrollment.ProspectID.String()),
				zap.Error(err))
		}
		out.Failed++
	}
	return out
}

// sweepTimeouts runs the conversation timeout rules over the active
// working set, under the same per-pair claim as step sends.
func (s *SequenceScheduler) sweepTimeouts(ctx context.Context) CycleResult {
	var out CycleResult

	conversations, err := s.Conversations.ListActive()
	if err != nil {
		s.Logger.Error("active conversation listing failed", zap.Error(err))
		out.Failed++
		return out
	}

	for _, conv := range conversations {
		if ctx.Err() != nil {
			break
		}
		if conv.ResponseReceived {
			continue
		}
		claimed, err := s.Campaigns.ClaimAdvance(conv.CampaignID, conv.ProspectID, s.ClaimTTL)
		if err != nil {
			s.Logger.Error("claim failed", zap.Error(err))
			out.Failed++
			continue
		}
		if !claimed {
			continue
		}

		res, err := s.Flow.AdvanceTimeout(ctx, conv)
		switch {
		case err == nil:
			if res.Sent || res.Closed {
				out.Advanced++
			}
			if res.Sent {
				out.Sent++
			}
		case appErrors.IsDeferral(err):
			out.Deferred++
		default:
			out.Failed++
		}

		if err := s.Campaigns.ReleaseAdvance(conv.CampaignID, conv.ProspectID); err != nil {
			s.Logger.Warn("claim release failed", zap.Error(err))
		}
	}
	return out
}

// pickVariant selects an A/B variant by weight, uniform when weights are
// absent.
func (s *SequenceScheduler) pickVariant(abTestID uuid.UUID) *model.ABVariant {
	test, err := s.ABTests.GetByID(abTestID)
	if err != nil || test == nil || len(test.Variants) == 0 {
		return nil
	}

	total := 0
	for _, v := range test.Variants {
		total += v.Weight
	}
	if total <= 0 {
		return &test.Variants[s.roll(len(test.Variants))]
	}
	roll := s.roll(total)
	for i := range test.Variants {
		roll -= test.Variants[i].Weight
		if roll < 0 {
			return &test.Variants[i]
		}
	}
	return &test.Variants[len(test.Variants)-1]
}

func (s *SequenceScheduler) roll(n int) int {
	s.randMu.Lock()
	defer s.randMu.Unlock()
	return s.Rand.Intn(n)
}

func findStep(steps []*model.SequenceStep, number int) *model.SequenceStep {
	for _, s := range steps {
		if s.StepNumber == number {
			return s
		}
	}
	return nil
}
