package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	appErrors "github.com/affiliatehq/outreach-backend/internal/errors"
	"github.com/affiliatehq/outreach-backend/internal/model"
)

func newTrackerFixture() (*flowFixture, *ResponseTracker) {
	f := newFlowFixture()
	tr := NewResponseTracker(
		f.messages, f.conversations, f.campaigns, f.abTests,
		f.flow, LexiconClassifier{}, zap.NewNop(),
	)
	tr.Clock = f.clock.Now
	return f, tr
}

func TestIngestOpenIsIdempotent(t *testing.T) {
	f, tr := newTrackerFixture()
	sendFirstStep(t, f)
	msgID := f.messages.messages[0].ID

	res, err := tr.Ingest(context.Background(), msgID, EventOpen, EventPayload{})
	require.NoError(t, err)
	assert.True(t, res.Applied)

	// A replayed webhook changes nothing.
	res, err = tr.Ingest(context.Background(), msgID, EventOpen, EventPayload{})
	require.NoError(t, err)
	assert.False(t, res.Applied)

	msg, _ := f.messages.GetByID(msgID)
	require.NotNil(t, msg.OpenedAt)
}

func TestIngestClick(t *testing.T) {
	f, tr := newTrackerFixture()
	sendFirstStep(t, f)
	msgID := f.messages.messages[0].ID

	res, err := tr.Ingest(context.Background(), msgID, EventClick, EventPayload{ClickURL: "https://example.com/terms"})
	require.NoError(t, err)
	assert.True(t, res.Applied)

	msg, _ := f.messages.GetByID(msgID)
	require.NotNil(t, msg.ClickedAt)
}

func TestIngestPositiveReplyClosesToOnboarding(t *testing.T) {
	f, tr := newTrackerFixture()
	_, _, conv := sendFirstStep(t, f)
	msgID := f.messages.messages[0].ID

	res, err := tr.Ingest(context.Background(), msgID, EventReply, EventPayload{ReplyText: "Yes, definitely interested!"})
	require.NoError(t, err)
	assert.True(t, res.Applied)
	require.NotNil(t, res.Sentiment)
	assert.Greater(t, *res.Sentiment, 0.3)
	assert.Equal(t, model.StateOnboarding, res.State)
	assert.False(t, conv.Active)

	// The inbound text is logged as a response message.
	logged, _ := f.messages.ListByConversation(conv.ID)
	var foundResponse bool
	for _, m := range logged {
		if m.Type == model.MessageResponse {
			foundResponse = true
			assert.Equal(t, "Yes, definitely interested!", m.Content)
		}
	}
	assert.True(t, foundResponse)
}

func TestIngestNegativeReplyClosesRespectfully(t *testing.T) {
	f, tr := newTrackerFixture()
	_, prospect, conv := sendFirstStep(t, f)
	msgID := f.messages.messages[0].ID

	res, err := tr.Ingest(context.Background(), msgID, EventReply, EventPayload{ReplyText: "Not interested, please remove me"})
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, model.StateRespectfulClosure, res.State)
	assert.False(t, conv.Active)
	assert.Equal(t, model.ProspectDeclined, prospect.Status)
}

func TestIngestReplyReplayDoesNotDoubleProcess(t *testing.T) {
	f, tr := newTrackerFixture()
	_, _, conv := sendFirstStep(t, f)
	msgID := f.messages.messages[0].ID

	_, err := tr.Ingest(context.Background(), msgID, EventReply, EventPayload{ReplyText: "sounds good"})
	require.NoError(t, err)
	logged, _ := f.messages.ListByConversation(conv.ID)
	count := len(logged)

	res, err := tr.Ingest(context.Background(), msgID, EventReply, EventPayload{ReplyText: "sounds good"})
	require.NoError(t, err)
	assert.False(t, res.Applied)

	logged, _ = f.messages.ListByConversation(conv.ID)
	assert.Len(t, logged, count)
}

func TestIngestReplyRetriesAfterInfoShareFailure(t *testing.T) {
	f, tr := newTrackerFixture()
	_, _, conv := sendFirstStep(t, f)
	msgID := f.messages.messages[0].ID

	f.adapter.FailNext(1)
	_, err := tr.Ingest(context.Background(), msgID, EventReply, EventPayload{ReplyText: "How does the commission work?"})
	require.Error(t, err)

	// The info share never went out, so the reply stays unstamped and a
	// queue redelivery processes it again instead of dropping it.
	msg, _ := f.messages.GetByID(msgID)
	assert.Nil(t, msg.RepliedAt)
	assert.Equal(t, model.StateNeutralResponse, conv.State)

	res, err := tr.Ingest(context.Background(), msgID, EventReply, EventPayload{ReplyText: "How does the commission work?"})
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, model.StateInformationSharing, res.State)

	// The retry does not log the inbound text twice.
	logged, _ := f.messages.ListByConversation(conv.ID)
	responses := 0
	for _, m := range logged {
		if m.Type == model.MessageResponse {
			responses++
		}
	}
	assert.Equal(t, 1, responses)
}

func TestIngestUnknownMessageRejected(t *testing.T) {
	_, tr := newTrackerFixture()
	_, err := tr.Ingest(context.Background(), uuid.New(), EventOpen, EventPayload{})
	var validation *appErrors.ErrValidation
	require.ErrorAs(t, err, &validation)
}

func TestIngestUnknownEventRejected(t *testing.T) {
	f, tr := newTrackerFixture()
	sendFirstStep(t, f)
	msgID := f.messages.messages[0].ID

	_, err := tr.Ingest(context.Background(), msgID, EventType("bounce-dance"), EventPayload{})
	var validation *appErrors.ErrValidation
	require.ErrorAs(t, err, &validation)
}

func TestIngestRecomputesVariantAggregates(t *testing.T) {
	f, tr := newTrackerFixture()

	template := f.seedTemplate("A", "variant body")
	test := &model.ABTest{
		Name:     "subject test",
		Variants: []model.ABVariant{{TemplateID: template.ID, Weight: 100}},
	}
	require.NoError(t, f.abTests.CreateTest(test))

	campaign := f.seedCampaign(model.ChannelEmail, model.CampaignActive)
	campaign.ABTestID = &test.ID
	prospect := f.seedProspect(true)
	step := f.seedStep(campaign.ID, template.ID, 1, 0, false)

	variantID := test.Variants[0].ID
	sendRes, err := f.flow.SendStep(context.Background(), campaign, prospect, step, template, &variantID)
	require.NoError(t, err)

	_, err = tr.Ingest(context.Background(), sendRes.MessageID, EventOpen, EventPayload{})
	require.NoError(t, err)

	agg, err := f.abTests.GetResult(test.ID, variantID)
	require.NoError(t, err)
	require.NotNil(t, agg)
	assert.Equal(t, float64(100), agg.OpenRate)
	assert.Zero(t, agg.ReplyRate)
}

func TestGetResponseAnalytics(t *testing.T) {
	f, tr := newTrackerFixture()
	campaignID := uuid.New()
	base := f.clock.Now()

	mk := func() *model.MessageLog {
		m := &model.MessageLog{
			ProspectID: uuid.New(),
			CampaignID: campaignID,
			Channel:    model.ChannelEmail,
			Type:       model.MessageOutreach,
			StepNumber: 1,
		}
		require.NoError(t, f.messages.Create(m))
		require.NoError(t, f.messages.MarkSent(m.ID, "x", base))
		return m
	}

	m1, m2, m3, _ := mk(), mk(), mk(), mk()
	_, err := f.messages.SetOpened(m1.ID, base.Add(time.Minute))
	require.NoError(t, err)
	_, err = f.messages.SetOpened(m2.ID, base.Add(time.Minute))
	require.NoError(t, err)
	_, err = f.messages.SetClicked(m1.ID, base.Add(2*time.Minute))
	require.NoError(t, err)
	_, err = f.messages.SetReplied(m1.ID, base.Add(30*time.Minute), 0.8)
	require.NoError(t, err)
	_, err = f.messages.SetReplied(m3.ID, base.Add(48*time.Hour), -0.8)
	require.NoError(t, err)

	a, err := tr.GetResponseAnalytics(&campaignID, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, 4, a.TotalMessages)
	assert.Equal(t, 2, a.Opens)
	assert.Equal(t, 2, a.Replies)
	assert.Equal(t, float64(50), a.OpenRate)
	assert.Equal(t, float64(25), a.ClickRate)
	assert.Equal(t, float64(50), a.ReplyRate)
	assert.Equal(t, 1, a.PositiveResponses)
	assert.Equal(t, 1, a.NegativeResponses)
	assert.Equal(t, float64(50), a.PositiveRate)
	assert.Equal(t, 1, a.RepliesUnder1h)
	assert.Equal(t, 1, a.RepliesUnder24h)
	assert.Equal(t, 1, a.RepliesOver24h)
	assert.InDelta(t, (1800+172800)/2.0, a.AvgResponseSecs, 0.1)
}
