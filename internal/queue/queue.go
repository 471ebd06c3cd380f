package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/affiliatehq/outreach-backend/internal/service"
)

// EngagementEvent is the inbound open/click/reply notification carried
// on the queue between the tracking endpoints and the worker.
type EngagementEvent struct {
	MessageID uuid.UUID            `json:"message_id"`
	Event     service.EventType    `json:"event"`
	Payload   service.EventPayload `json:"payload"`
}

// Queue interface
type Queue interface {
	Publish(topic string, event EngagementEvent) error
	Subscribe(topic string, handler func(event EngagementEvent) error) error
}

// InMemoryQueue is the in-process queue used in local/dev mode, with the
// same retry behavior as the AMQP path.
type InMemoryQueue struct {
	mu       sync.Mutex
	handlers map[string][]func(event EngagementEvent) error
	logger   *zap.Logger
}

func NewInMemoryQueue(logger *zap.Logger) *InMemoryQueue {
	return &InMemoryQueue{
		handlers: make(map[string][]func(event EngagementEvent) error),
		logger:   logger,
	}
}

type job struct {
	event      EngagementEvent
	retryCount int
	maxRetries int
}

// Publish sends an event to all subscribers.
func (q *InMemoryQueue) Publish(topic string, event EngagementEvent) error {
	q.mu.Lock()
	handlers := q.handlers[topic]
	q.mu.Unlock()

	if len(handlers) == 0 {
		return fmt.Errorf("no subscribers for topic %s", topic)
	}

	j := job{event: event, maxRetries: 3}
	for _, handler := range handlers {
		go q.processJob(handler, j)
	}
	return nil
}

// processJob handles retries with backoff.
func (q *InMemoryQueue) processJob(handler func(event EngagementEvent) error, j job) {
	for j.retryCount <= j.maxRetries {
		err := handler(j.event)
		if err == nil {
			return
		}

		j.retryCount++
		q.logger.Warn("event handler failed",
			zap.Int("attempt", j.retryCount),
			zap.Int("max_retries", j.maxRetries),
			zap.String("message_id", j.event.MessageID.String()),
			zap.Error(err))

		if j.retryCount > j.maxRetries {
			q.logger.Error("event permanently failed",
				zap.String("message_id", j.event.MessageID.String()),
				zap.String("event", string(j.event.Event)))
			return
		}
		time.Sleep(time.Duration(j.retryCount*500) * time.Millisecond)
	}
}

// Subscribe adds a handler for a topic.
func (q *InMemoryQueue) Subscribe(topic string, handler func(event EngagementEvent) error) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[topic] = append(q.handlers[topic], handler)
	return nil
}

// StartEngagementSubscriber wires queued engagement events into the
// response tracker.
func StartEngagementSubscriber(q Queue, topic string, tracker *service.ResponseTracker, logger *zap.Logger) error {
	return q.Subscribe(topic, func(event EngagementEvent) error {
		_, err := tracker.Ingest(context.Background(), event.MessageID, event.Event, event.Payload)
		if err != nil {
			logger.Warn("event ingestion failed",
				zap.String("message_id", event.MessageID.String()),
				zap.Error(err))
			return err
		}
		return nil
	})
}
