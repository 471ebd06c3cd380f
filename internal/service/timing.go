package service

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/affiliatehq/outreach-backend/internal/model"
)

// EngagementSource exposes a prospect's historical best-engagement
// windows. Read-only; backed by analytics outside this core.
type EngagementSource interface {
	BestTimes(prospectID uuid.UUID, ch model.Channel) (days []string, hours []int, err error)
}

// NoEngagementData is the default source when no analytics backend is
// wired.
type NoEngagementData struct{}

func (NoEngagementData) BestTimes(uuid.UUID, model.Channel) ([]string, []int, error) {
	return nil, nil, nil
}

type platformWindow struct {
	days  []string
	hours []int
}

// TimingOptimizer computes the next eligible send time for a
// (prospect, channel) pair. Deterministic given identical inputs and
// clock.
type TimingOptimizer struct {
	engagement EngagementSource
	logger     *zap.Logger
	now        func() time.Time

	platformTimes map[model.Channel]platformWindow
}

func NewTimingOptimizer(engagement EngagementSource, logger *zap.Logger) *TimingOptimizer {
	if engagement == nil {
		engagement = NoEngagementData{}
	}
	return &TimingOptimizer{
		engagement: engagement,
		logger:     logger,
		now:        time.Now,
		platformTimes: map[model.Channel]platformWindow{
			model.ChannelLinkedIn: {
				days:  []string{"Tuesday", "Wednesday", "Thursday"},
				hours: []int{9, 10, 11, 14, 15, 16},
			},
			model.ChannelEmail: {
				days:  []string{"Tuesday", "Wednesday", "Thursday"},
				hours: []int{8, 9, 10, 15, 16, 17},
			},
			model.ChannelTwitter: {
				days:  []string{"Monday", "Wednesday", "Friday"},
				hours: []int{12, 13, 14, 15, 16},
			},
		},
	}
}

// OptimalSendTime unions the prospect's preferred windows, the channel's
// platform windows, and historical engagement windows, then scans forward
// hour by hour from now in the prospect's timezone. If nothing matches
// within 24 hours it wraps to the next day at the earliest optimal hour.
func (t *TimingOptimizer) OptimalSendTime(p *model.Prospect, ch model.Channel) time.Time {
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		t.logger.Warn("unknown prospect timezone, using UTC",
			zap.String("prospect_id", p.ID.String()),
			zap.String("timezone", p.Timezone))
		loc = time.UTC
	}
	now := t.now().In(loc)

	histDays, histHours, err := t.engagement.BestTimes(p.ID, ch)
	if err != nil {
		t.logger.Warn("engagement data unavailable", zap.Error(err))
	}

	platform := t.platformTimes[ch]
	days := make(map[string]bool)
	for _, d := range p.PreferredDays {
		days[d] = true
	}
	for _, d := range platform.days {
		days[d] = true
	}
	for _, d := range histDays {
		days[d] = true
	}

	hours := make(map[int]bool)
	for _, h := range p.PreferredHours {
		hours[int(h)] = true
	}
	for _, h := range platform.hours {
		hours[h] = true
	}
	for _, h := range histHours {
		hours[h] = true
	}

	// No constraints known for this pair: send immediately.
	if len(days) == 0 || len(hours) == 0 {
		return now
	}

	candidate := now
	for i := 0; i < 24; i++ {
		if days[candidate.Weekday().String()] && hours[candidate.Hour()] {
			return candidate
		}
		candidate = candidate.Add(time.Hour)
	}

	earliest := 24
	for h := range hours {
		if h < earliest {
			earliest = h
		}
	}
	next := now.AddDate(0, 0, 1)
	return time.Date(next.Year(), next.Month(), next.Day(), earliest, 0, 0, 0, loc)
}
