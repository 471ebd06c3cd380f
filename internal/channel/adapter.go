// Package channel defines the send capability the engine depends on.
// Real adapters (SendGrid, LinkedIn, ...) live outside this core; they
// plug in through the Adapter interface, keyed by model.Channel.
package channel

import (
	"context"
	"fmt"
	"sync"

	"github.com/affiliatehq/outreach-backend/internal/model"
)

type SendResult struct {
	Success           bool
	ExternalMessageID string
	Err               error
}

type Profile struct {
	Handle      string
	DisplayName string
	Bio         string
}

type Adapter interface {
	Send(ctx context.Context, recipientHandle, subject, body string) (*SendResult, error)
	GetProfile(ctx context.Context, handle string) (*Profile, error)
}

// Registry maps channels to their adapters.
type Registry struct {
	mu       sync.RWMutex
	adapters map[model.Channel]Adapter
}

func NewRegistry() *Registry {
	return &Registry{adapters: make(map[model.Channel]Adapter)}
}

func (r *Registry) Register(ch model.Channel, a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[ch] = a
}

func (r *Registry) Get(ch model.Channel) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[ch]
	if !ok {
		return nil, fmt.Errorf("no adapter registered for channel %s", ch)
	}
	return a, nil
}
