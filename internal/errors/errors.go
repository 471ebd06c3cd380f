package appErrors

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrValidation is malformed input: unknown campaign, bad UUID, empty
// template. Rejected before any state mutation.
type ErrValidation struct {
	Reason string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation failed: %s", e.Reason)
}

func NewValidation(format string, args ...any) error {
	return &ErrValidation{Reason: fmt.Sprintf(format, args...)}
}

// ErrConsentViolation is an attempted send to a prospect without consent.
// Hard failure, never retried.
type ErrConsentViolation struct {
	ProspectID uuid.UUID
}

func (e *ErrConsentViolation) Error() string {
	return fmt.Sprintf("prospect %s has not given consent", e.ProspectID)
}

func NewConsentViolation(prospectID uuid.UUID) error {
	return &ErrConsentViolation{ProspectID: prospectID}
}

// ErrOrderingViolation is an attempt to advance a sequence out of order.
type ErrOrderingViolation struct {
	Expected int
	Got      int
}

func (e *ErrOrderingViolation) Error() string {
	return fmt.Sprintf("sequence step out of order: expected %d, got %d", e.Expected, e.Got)
}

func NewOrderingViolation(expected, got int) error {
	return &ErrOrderingViolation{Expected: expected, Got: got}
}

// ErrChannelDelivery wraps an external send failure. The conversation is
// not advanced; the scheduler retries next cycle.
type ErrChannelDelivery struct {
	Channel string
	Err     error
}

func (e *ErrChannelDelivery) Error() string {
	return fmt.Sprintf("delivery failed on %s: %v", e.Channel, e.Err)
}

func (e *ErrChannelDelivery) Unwrap() error { return e.Err }

func NewChannelDelivery(channel string, err error) error {
	return &ErrChannelDelivery{Channel: channel, Err: err}
}

// ErrCampaignNotFound is a sentinel error
type ErrCampaignNotFound struct {
	CampaignID uuid.UUID
}

func (e *ErrCampaignNotFound) Error() string {
	return fmt.Sprintf("campaign %s not found", e.CampaignID)
}

func NewCampaignNotFound(id uuid.UUID) error {
	return &ErrCampaignNotFound{CampaignID: id}
}

// ErrRateLimited signals a deferral, not a failure: the caller retries
// the same step on the next scheduling cycle.
var ErrRateLimited = errors.New("rate limit reached, deferred")

// ErrNotOptimalTime defers a send until the timing window opens.
var ErrNotOptimalTime = errors.New("outside optimal send window, deferred")

// IsDeferral reports whether err only postpones work to the next cycle.
func IsDeferral(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrNotOptimalTime)
}
