package service

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/affiliatehq/outreach-backend/internal/channel"
	appErrors "github.com/affiliatehq/outreach-backend/internal/errors"
	"github.com/affiliatehq/outreach-backend/internal/model"
	"github.com/affiliatehq/outreach-backend/internal/repository"
)

// In-memory fakes for the repository interfaces. They mirror the SQL
// implementations' contracts: nil for missing rows, defaults applied on
// Create, idempotent lifecycle stamps.

type testClock struct{ t time.Time }

func (c *testClock) Now() time.Time          { return c.t }
func (c *testClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

// ---------- prospects ----------

type fakeProspectRepo struct {
	mu        sync.Mutex
	prospects map[uuid.UUID]*model.Prospect
}

func newFakeProspectRepo() *fakeProspectRepo {
	return &fakeProspectRepo{prospects: make(map[uuid.UUID]*model.Prospect)}
}

func (r *fakeProspectRepo) Create(p *model.Prospect) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.Status == "" {
		p.Status = model.ProspectNew
	}
	if p.Timezone == "" {
		p.Timezone = "UTC"
	}
	r.prospects[p.ID] = p
	return nil
}

func (r *fakeProspectRepo) GetByID(id uuid.UUID) (*model.Prospect, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.prospects[id], nil
}

func (r *fakeProspectRepo) UpdateStatus(id uuid.UUID, status model.ProspectStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.prospects[id]; ok {
		p.Status = status
	}
	return nil
}

func (r *fakeProspectRepo) GrantConsent(id uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.prospects[id]; ok {
		p.ConsentGiven = true
		p.ConsentTimestamp = &at
	}
	return nil
}

var _ repository.ProspectRepositoryInterface = (*fakeProspectRepo)(nil)

// ---------- campaigns, steps, templates, enrollments ----------

type enrollmentRec struct {
	model.Enrollment
	claimedAt *time.Time
}

type fakeCampaignRepo struct {
	mu          sync.Mutex
	campaigns   map[uuid.UUID]*model.Campaign
	steps       []*model.SequenceStep
	templates   map[uuid.UUID]*model.MessageTemplate
	enrollments map[uuid.UUID]map[uuid.UUID]*enrollmentRec
	clock       func() time.Time
}

func newFakeCampaignRepo(clock func() time.Time) *fakeCampaignRepo {
	return &fakeCampaignRepo{
		campaigns:   make(map[uuid.UUID]*model.Campaign),
		templates:   make(map[uuid.UUID]*model.MessageTemplate),
		enrollments: make(map[uuid.UUID]map[uuid.UUID]*enrollmentRec),
		clock:       clock,
	}
}

func (r *fakeCampaignRepo) Create(c *model.Campaign) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.Status == "" {
		c.Status = model.CampaignDraft
	}
	r.campaigns[c.ID] = c
	return nil
}

func (r *fakeCampaignRepo) GetByID(id uuid.UUID) (*model.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	return c, nil
}

func (r *fakeCampaignRepo) UpdateStatus(id uuid.UUID, status model.CampaignStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.campaigns[id]; ok {
		c.Status = status
	}
	return nil
}

func (r *fakeCampaignRepo) ListByStatus(status model.CampaignStatus) ([]*model.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*model.Campaign{}
	for _, c := range r.campaigns {
		if c.Status == status {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *fakeCampaignRepo) CreateStep(s *model.SequenceStep) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	r.steps = append(r.steps, s)
	return nil
}

func (r *fakeCampaignRepo) GetStep(campaignID uuid.UUID, stepNumber int) (*model.SequenceStep, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.steps {
		if s.CampaignID == campaignID && s.StepNumber == stepNumber {
			return s, nil
		}
	}
	return nil, nil
}

func (r *fakeCampaignRepo) ListSteps(campaignID uuid.UUID) ([]*model.SequenceStep, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*model.SequenceStep{}
	for _, s := range r.steps {
		if s.CampaignID == campaignID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *fakeCampaignRepo) MaxStepNumber(campaignID uuid.UUID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	max := 0
	for _, s := range r.steps {
		if s.CampaignID == campaignID && s.StepNumber > max {
			max = s.StepNumber
		}
	}
	return max, nil
}

func (r *fakeCampaignRepo) CreateTemplate(t *model.MessageTemplate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	r.templates[t.ID] = t
	return nil
}

func (r *fakeCampaignRepo) GetTemplate(id uuid.UUID) (*model.MessageTemplate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.templates[id], nil
}

func (r *fakeCampaignRepo) EnrollProspect(campaignID, prospectID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.enrollments[campaignID] == nil {
		r.enrollments[campaignID] = make(map[uuid.UUID]*enrollmentRec)
	}
	if _, exists := r.enrollments[campaignID][prospectID]; exists {
		return nil
	}
	r.enrollments[campaignID][prospectID] = &enrollmentRec{
		Enrollment: model.Enrollment{
			CampaignID: campaignID,
			ProspectID: prospectID,
			EnrolledAt: r.clock(),
		},
	}
	return nil
}

func (r *fakeCampaignRepo) ListEnrollments(campaignID uuid.UUID) ([]*model.Enrollment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*model.Enrollment{}
	for _, rec := range r.enrollments[campaignID] {
		e := rec.Enrollment
		out = append(out, &e)
	}
	return out, nil
}

func (r *fakeCampaignRepo) ClaimAdvance(campaignID, prospectID uuid.UUID, ttl time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.enrollments[campaignID][prospectID]
	if !ok {
		return false, nil
	}
	now := r.clock()
	if rec.claimedAt != nil && rec.claimedAt.After(now.Add(-ttl)) {
		return false, nil
	}
	rec.claimedAt = &now
	return true, nil
}

func (r *fakeCampaignRepo) ReleaseAdvance(campaignID, prospectID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.enrollments[campaignID][prospectID]; ok {
		rec.claimedAt = nil
	}
	return nil
}

var _ repository.CampaignRepositoryInterface = (*fakeCampaignRepo)(nil)

// ---------- conversations ----------

type fakeConversationRepo struct {
	mu            sync.Mutex
	conversations map[uuid.UUID]*model.Conversation
}

func newFakeConversationRepo() *fakeConversationRepo {
	return &fakeConversationRepo{conversations: make(map[uuid.UUID]*model.Conversation)}
}

func (r *fakeConversationRepo) Create(c *model.Conversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.StartedAt.IsZero() {
		c.StartedAt = time.Now()
	}
	c.Active = true
	r.conversations[c.ID] = c
	return nil
}

func (r *fakeConversationRepo) GetByID(id uuid.UUID) (*model.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conversations[id], nil
}

func (r *fakeConversationRepo) GetByProspectCampaign(prospectID, campaignID uuid.UUID) (*model.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.conversations {
		if c.ProspectID == prospectID && c.CampaignID == campaignID {
			return c, nil
		}
	}
	return nil, nil
}

func (r *fakeConversationRepo) Update(c *model.Conversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c.LastUpdated = time.Now()
	r.conversations[c.ID] = c
	return nil
}

func (r *fakeConversationRepo) ListActive() ([]*model.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*model.Conversation{}
	for _, c := range r.conversations {
		if c.Active {
			out = append(out, c)
		}
	}
	return out, nil
}

var _ repository.ConversationRepositoryInterface = (*fakeConversationRepo)(nil)

// ---------- message logs ----------

type fakeMessageRepo struct {
	mu       sync.Mutex
	messages []*model.MessageLog
}

func newFakeMessageRepo() *fakeMessageRepo { return &fakeMessageRepo{} }

func (r *fakeMessageRepo) Create(m *model.MessageLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	m.CreatedAt = time.Now()
	if m.Status == "" {
		m.Status = model.MessagePending
	}
	r.messages = append(r.messages, m)
	return nil
}

func (r *fakeMessageRepo) GetByID(id uuid.UUID) (*model.MessageLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.messages {
		if m.ID == id {
			return m, nil
		}
	}
	return nil, nil
}

func (r *fakeMessageRepo) MarkSent(id uuid.UUID, externalID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.messages {
		if m.ID == id {
			m.Status = model.MessageSent
			m.ExternalMessageID = externalID
			sentAt := at
			m.SentAt = &sentAt
			m.LastError = ""
		}
	}
	return nil
}

func (r *fakeMessageRepo) MarkFailed(id uuid.UUID, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.messages {
		if m.ID == id {
			m.Status = model.MessageFailed
			m.LastError = reason
		}
	}
	return nil
}

func (r *fakeMessageRepo) SetOpened(id uuid.UUID, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.messages {
		if m.ID == id && m.OpenedAt == nil {
			openedAt := at
			m.OpenedAt = &openedAt
			m.Status = model.MessageOpened
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeMessageRepo) SetClicked(id uuid.UUID, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.messages {
		if m.ID == id && m.ClickedAt == nil {
			clickedAt := at
			m.ClickedAt = &clickedAt
			m.Status = model.MessageClicked
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeMessageRepo) SetReplied(id uuid.UUID, at time.Time, sentiment float64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.messages {
		if m.ID == id && m.RepliedAt == nil {
			repliedAt := at
			m.RepliedAt = &repliedAt
			m.Status = model.MessageReplied
			m.Sentiment = &sentiment
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeMessageRepo) LastSentStep(prospectID, campaignID uuid.UUID) (int, *time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	step := 0
	var sentAt *time.Time
	for _, m := range r.messages {
		if m.ProspectID != prospectID || m.CampaignID != campaignID {
			continue
		}
		if m.SentAt == nil || m.StepNumber == 0 {
			continue
		}
		if m.StepNumber > step {
			step = m.StepNumber
			sentAt = m.SentAt
		}
	}
	return step, sentAt, nil
}

func (r *fakeMessageRepo) HasReply(prospectID, campaignID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.messages {
		if m.ProspectID == prospectID && m.CampaignID == campaignID && m.RepliedAt != nil {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeMessageRepo) ListByConversation(conversationID uuid.UUID) ([]*model.MessageLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*model.MessageLog{}
	for _, m := range r.messages {
		if m.ConversationID == conversationID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *fakeMessageRepo) VariantCounts(campaignID, variantID uuid.UUID) (*repository.VariantCounts, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	vc := &repository.VariantCounts{}
	for _, m := range r.messages {
		if m.CampaignID != campaignID || m.ABTestVariant == nil || *m.ABTestVariant != variantID {
			continue
		}
		if m.SentAt != nil {
			vc.Sent++
		}
		if m.OpenedAt != nil {
			vc.Opened++
		}
		if m.ClickedAt != nil {
			vc.Clicked++
		}
		if m.RepliedAt != nil {
			vc.Replied++
			if m.Sentiment != nil && *m.Sentiment > 0.3 {
				vc.Positive++
			}
		}
	}
	return vc, nil
}

func (r *fakeMessageRepo) Analytics(campaignID *uuid.UUID, from, to *time.Time) (*repository.AnalyticsCounts, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ac := &repository.AnalyticsCounts{}
	inRange := func(m *model.MessageLog) bool {
		if campaignID != nil && m.CampaignID != *campaignID {
			return false
		}
		if from != nil && (m.SentAt == nil || m.SentAt.Before(*from)) {
			return false
		}
		if to != nil && (m.SentAt == nil || m.SentAt.After(*to)) {
			return false
		}
		return true
	}
	for _, m := range r.messages {
		if !inRange(m) {
			continue
		}
		if m.Type != model.MessageResponse {
			ac.Total++
			if m.OpenedAt != nil {
				ac.Opened++
			}
			if m.ClickedAt != nil {
				ac.Clicked++
			}
			if m.RepliedAt != nil {
				ac.Replied++
				if m.Sentiment != nil && *m.Sentiment > 0.3 {
					ac.Positive++
				}
				if m.Sentiment != nil && *m.Sentiment < -0.3 {
					ac.Negative++
				}
			}
		}
		if m.RepliedAt != nil && m.SentAt != nil {
			ac.ResponseSeconds = append(ac.ResponseSeconds, m.RepliedAt.Sub(*m.SentAt).Seconds())
		}
	}
	return ac, nil
}

var _ repository.MessageLogRepositoryInterface = (*fakeMessageRepo)(nil)

// ---------- A/B tests ----------

type fakeABTestRepo struct {
	mu      sync.Mutex
	tests   map[uuid.UUID]*model.ABTest
	results map[uuid.UUID]map[uuid.UUID]*model.ABTestResult
}

func newFakeABTestRepo() *fakeABTestRepo {
	return &fakeABTestRepo{
		tests:   make(map[uuid.UUID]*model.ABTest),
		results: make(map[uuid.UUID]map[uuid.UUID]*model.ABTestResult),
	}
}

func (r *fakeABTestRepo) CreateTest(t *model.ABTest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	for i := range t.Variants {
		if t.Variants[i].ID == uuid.Nil {
			t.Variants[i].ID = uuid.New()
		}
		t.Variants[i].ABTestID = t.ID
	}
	r.tests[t.ID] = t
	return nil
}

func (r *fakeABTestRepo) GetByID(id uuid.UUID) (*model.ABTest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tests[id], nil
}

func (r *fakeABTestRepo) GetResult(abTestID, variantID uuid.UUID) (*model.ABTestResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.results[abTestID][variantID], nil
}

func (r *fakeABTestRepo) IncrementSent(abTestID, variantID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.results[abTestID] == nil {
		r.results[abTestID] = make(map[uuid.UUID]*model.ABTestResult)
	}
	res, ok := r.results[abTestID][variantID]
	if !ok {
		res = &model.ABTestResult{ID: uuid.New(), ABTestID: abTestID, VariantID: variantID}
		r.results[abTestID][variantID] = res
	}
	res.SentCount++
	return nil
}

func (r *fakeABTestRepo) UpdateRates(result *model.ABTestResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.results[result.ABTestID] == nil {
		r.results[result.ABTestID] = make(map[uuid.UUID]*model.ABTestResult)
	}
	existing, ok := r.results[result.ABTestID][result.VariantID]
	if !ok {
		r.results[result.ABTestID][result.VariantID] = result
		return nil
	}
	existing.OpenRate = result.OpenRate
	existing.ClickRate = result.ClickRate
	existing.ReplyRate = result.ReplyRate
	existing.PositiveResponseRate = result.PositiveResponseRate
	return nil
}

func (r *fakeABTestRepo) ListResults(abTestID uuid.UUID) ([]*model.ABTestResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*model.ABTestResult{}
	for _, res := range r.results[abTestID] {
		out = append(out, res)
	}
	return out, nil
}

var _ repository.ABTestRepositoryInterface = (*fakeABTestRepo)(nil)

// ---------- fixture ----------

type flowFixture struct {
	prospects     *fakeProspectRepo
	campaigns     *fakeCampaignRepo
	conversations *fakeConversationRepo
	messages      *fakeMessageRepo
	abTests       *fakeABTestRepo
	adapter       *channel.MockAdapter
	limiter       *RateLimiter
	clock         *testClock
	flow          *ConversationFlowManager
}

func newFlowFixture() *flowFixture {
	clock := &testClock{t: time.Date(2026, 3, 3, 10, 0, 0, 0, time.UTC)} // a Tuesday
	adapter := channel.NewMockAdapter()
	registry := channel.NewRegistry()
	for _, ch := range []model.Channel{model.ChannelEmail, model.ChannelLinkedIn, model.ChannelTwitter, model.ChannelDiscord} {
		registry.Register(ch, adapter)
	}

	limiter := NewRateLimiter(time.Hour, 1000)
	limiter.now = clock.Now

	f := &flowFixture{
		prospects:     newFakeProspectRepo(),
		campaigns:     newFakeCampaignRepo(clock.Now),
		conversations: newFakeConversationRepo(),
		messages:      newFakeMessageRepo(),
		abTests:       newFakeABTestRepo(),
		adapter:       adapter,
		limiter:       limiter,
		clock:         clock,
	}
	f.flow = NewConversationFlowManager(
		f.conversations, f.prospects, f.campaigns, f.messages,
		registry, limiter, TemplateRenderer{}, zap.NewNop(),
	)
	f.flow.Clock = clock.Now
	return f
}

func (f *flowFixture) seedProspect(consent bool) *model.Prospect {
	p := &model.Prospect{
		Email:         "amina@modshop.example",
		DiscordHandle: "amina#1234",
		FirstName:     "Amina",
		Company:       "ModShop",
		ConsentGiven:  consent,
		Timezone:      "UTC",
	}
	f.prospects.Create(p)
	return p
}

func (f *flowFixture) seedCampaign(ch model.Channel, status model.CampaignStatus) *model.Campaign {
	c := &model.Campaign{Name: "test campaign", Channel: ch, Status: status}
	f.campaigns.Create(c)
	return c
}

func (f *flowFixture) seedTemplate(subject, content string) *model.MessageTemplate {
	t := &model.MessageTemplate{Name: "t", Subject: subject, Content: content}
	f.campaigns.CreateTemplate(t)
	return t
}

func (f *flowFixture) seedStep(campaignID, templateID uuid.UUID, number, delayDays int, noResponseOnly bool) *model.SequenceStep {
	s := &model.SequenceStep{
		CampaignID:     campaignID,
		StepNumber:     number,
		TemplateID:     templateID,
		DelayDays:      delayDays,
		NoResponseOnly: noResponseOnly,
	}
	f.campaigns.CreateStep(s)
	return s
}
