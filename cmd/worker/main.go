package main

import (
	"context"
	"encoding/json"
	"log"

	"github.com/joho/godotenv"
	"github.com/streadway/amqp"
	"go.uber.org/zap"

	"github.com/affiliatehq/outreach-backend/internal/channel"
	"github.com/affiliatehq/outreach-backend/internal/config"
	"github.com/affiliatehq/outreach-backend/internal/db"
	"github.com/affiliatehq/outreach-backend/internal/model"
	"github.com/affiliatehq/outreach-backend/internal/queue"
	"github.com/affiliatehq/outreach-backend/internal/repository"
	"github.com/affiliatehq/outreach-backend/internal/service"
	"github.com/affiliatehq/outreach-backend/pkg/logging"
)

const maxRetries = 3

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, relying on OS environment variables")
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("load config:", err)
	}
	logger, err := logging.New(cfg.Debug)
	if err != nil {
		log.Fatal("init logger:", err)
	}
	defer logger.Sync()

	dbConn, err := db.Open(cfg.DSN())
	if err != nil {
		logger.Fatal("database unavailable", zap.Error(err))
	}

	prospectRepo := &repository.ProspectRepository{DB: dbConn}
	campaignRepo := &repository.CampaignRepository{DB: dbConn}
	conversationRepo := &repository.ConversationRepository{DB: dbConn}
	messageRepo := &repository.MessageLogRepository{DB: dbConn}
	abTestRepo := &repository.ABTestRepository{DB: dbConn}

	registry := channel.NewRegistry()
	mock := channel.NewMockAdapter()
	for _, ch := range []model.Channel{model.ChannelEmail, model.ChannelLinkedIn, model.ChannelTwitter, model.ChannelDiscord} {
		registry.Register(ch, mock)
	}

	limiter := service.NewRateLimiter(cfg.RateLimitWindow, cfg.RateLimitPerHour)
	flow := service.NewConversationFlowManager(
		conversationRepo, prospectRepo, campaignRepo, messageRepo,
		registry, limiter, service.TemplateRenderer{}, logger,
	)
	flow.MaxSendFailures = cfg.MaxSendFailures

	tracker := service.NewResponseTracker(
		messageRepo, conversationRepo, campaignRepo, abTestRepo,
		flow, service.LexiconClassifier{}, logger,
	)

	conn, err := amqp.Dial(cfg.AMQPURL)
	if err != nil {
		logger.Fatal("rabbitmq unavailable", zap.Error(err))
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		logger.Fatal("channel open failed", zap.Error(err))
	}
	defer ch.Close()

	q, err := ch.QueueDeclare(cfg.EngagementQueue, true, false, false, false, nil)
	if err != nil {
		logger.Fatal("queue declare failed", zap.Error(err))
	}

	// autoAck off: an event is acked only after ingestion resolves.
	msgs, err := ch.Consume(q.Name, "", false, false, false, false, nil)
	if err != nil {
		logger.Fatal("consumer registration failed", zap.Error(err))
	}

	logger.Info("worker running, waiting for engagement events",
		zap.String("queue", cfg.EngagementQueue))

	for d := range msgs {
		var event queue.EngagementEvent
		if err := json.Unmarshal(d.Body, &event); err != nil {
			logger.Warn("invalid event payload dropped", zap.Error(err))
			d.Ack(false)
			continue
		}

		_, err := tracker.Ingest(context.Background(), event.MessageID, event.Event, event.Payload)
		if err != nil {
			retryCount := 0
			if raw, ok := d.Headers["x-retry-count"]; ok {
				if n, ok := raw.(int32); ok {
					retryCount = int(n)
				}
			}
			logger.Warn("event ingestion failed",
				zap.String("message_id", event.MessageID.String()),
				zap.Int("retry_count", retryCount),
				zap.Error(err))
			if retryCount < maxRetries {
				republish(ch, q.Name, d.Body, retryCount+1, logger)
			} else {
				logger.Error("event permanently failed",
					zap.String("message_id", event.MessageID.String()),
					zap.String("event", string(event.Event)))
			}
		}
		d.Ack(false)
	}
}

// republish re-enqueues a failed event with a bumped retry header. A
// plain Nack requeue would spin on a persistently failing event.
func republish(ch *amqp.Channel, queueName string, body []byte, retryCount int, logger *zap.Logger) {
	err := ch.Publish("", queueName, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Headers:      amqp.Table{"x-retry-count": int32(retryCount)},
		Body:         body,
	})
	if err != nil {
		logger.Error("event requeue failed", zap.Error(err))
	}
}
