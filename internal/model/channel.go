package model

import "fmt"

// Channel identifies an outreach medium. Adapters are registered per
// channel, so an unknown value fails at wiring time rather than send time.
type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelLinkedIn Channel = "linkedin"
	ChannelTwitter  Channel = "twitter"
	ChannelDiscord  Channel = "discord"
)

func ParseChannel(s string) (Channel, error) {
	switch Channel(s) {
	case ChannelEmail, ChannelLinkedIn, ChannelTwitter, ChannelDiscord:
		return Channel(s), nil
	}
	return "", fmt.Errorf("unknown channel %q", s)
}

func (c Channel) String() string { return string(c) }
