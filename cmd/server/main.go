package main

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/affiliatehq/outreach-backend/internal/channel"
	"github.com/affiliatehq/outreach-backend/internal/config"
	"github.com/affiliatehq/outreach-backend/internal/controller"
	"github.com/affiliatehq/outreach-backend/internal/db"
	"github.com/affiliatehq/outreach-backend/internal/model"
	"github.com/affiliatehq/outreach-backend/internal/queue"
	"github.com/affiliatehq/outreach-backend/internal/repository"
	"github.com/affiliatehq/outreach-backend/internal/service"
	"github.com/affiliatehq/outreach-backend/pkg/logging"
)

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

	conn, err := db.Open(cfg.DSN())
	if err != nil {
		logger.Fatal("database unavailable", zap.Error(err))
	}
	logger.Info("connected to database", zap.String("host", cfg.DBHost), zap.String("db", cfg.DBName))

	prospectRepo := &repository.ProspectRepository{DB: conn}
	campaignRepo := &repository.CampaignRepository{DB: conn}
	conversationRepo := &repository.ConversationRepository{DB: conn}
	messageRepo := &repository.MessageLogRepository{DB: conn}
	abTestRepo := &repository.ABTestRepository{DB: conn}

	registry := channel.NewRegistry()
	// Real adapters (SendGrid, LinkedIn, ...) are registered here in
	// deployments; the mock keeps local runs self-contained.
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
	campaignService := &service.CampaignService{
		Campaigns: campaignRepo,
		Prospects: prospectRepo,
		ABTests:   abTestRepo,
		Logger:    logger,
	}

	// Prefer RabbitMQ for engagement events; fall back to the in-process
	// queue when the broker is unreachable.
	var events queue.Queue
	if amqpQueue, err := queue.NewAMQPQueue(cfg.AMQPURL); err == nil {
		events = amqpQueue
		logger.Info("publishing engagement events to amqp", zap.String("queue", cfg.EngagementQueue))
	} else {
		logger.Warn("amqp unavailable, using in-memory queue", zap.Error(err))
		mem := queue.NewInMemoryQueue(logger)
		if err := queue.StartEngagementSubscriber(mem, cfg.EngagementQueue, tracker, logger); err != nil {
			logger.Fatal("subscriber start failed", zap.Error(err))
		}
		events = mem
	}

	outreachController := &controller.OutreachController{
		CampaignService: campaignService,
		Tracker:         tracker,
		Events:          events,
		EventTopic:      cfg.EngagementQueue,
		Logger:          logger,
	}

	r := chi.NewRouter()
	r.Post("/campaigns", outreachController.CreateCampaign)
	r.Post("/campaigns/{id}/start", outreachController.StartCampaign)
	r.Post("/campaigns/{id}/pause", outreachController.PauseCampaign)
	r.Post("/campaigns/{id}/resume", outreachController.ResumeCampaign)
	r.Post("/campaigns/{id}/steps", outreachController.CreateSequenceStep)
	r.Post("/campaigns/{id}/enroll", outreachController.EnrollProspect)
	r.Post("/messages/{messageID}/open", outreachController.TrackOpen)
	r.Post("/messages/{messageID}/click", outreachController.TrackClick)
	r.Post("/messages/{messageID}/reply", outreachController.TrackReply)
	r.Get("/analytics/responses", outreachController.GetResponseAnalytics)

	logger.Info("server running", zap.String("addr", cfg.HTTPAddr))
	if err := http.ListenAndServe(cfg.HTTPAddr, r); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}
