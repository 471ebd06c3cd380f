package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/affiliatehq/outreach-backend/internal/channel"
	"github.com/affiliatehq/outreach-backend/internal/config"
	"github.com/affiliatehq/outreach-backend/internal/db"
	"github.com/affiliatehq/outreach-backend/internal/model"
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

	prospectRepo := &repository.ProspectRepository{DB: conn}
	campaignRepo := &repository.CampaignRepository{DB: conn}
	conversationRepo := &repository.ConversationRepository{DB: conn}
	messageRepo := &repository.MessageLogRepository{DB: conn}
	abTestRepo := &repository.ABTestRepository{DB: conn}

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

	timing := service.NewTimingOptimizer(nil, logger)
	scheduler := service.NewSequenceScheduler(
		campaignRepo, prospectRepo, conversationRepo, messageRepo, abTestRepo,
		flow, timing, logger,
	)
	scheduler.MaxInFlight = cfg.MaxInFlight
	scheduler.CycleBudget = cfg.CycleBudget

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("scheduler running", zap.Duration("tick", cfg.TickInterval))

	ticker := time.NewTicker(cfg.TickInterval)
	defer ticker.Stop()

	// Run one cycle immediately so a restart does not wait a full tick.
	runCycle(ctx, scheduler, logger)
	for {
		select {
		case <-ctx.Done():
			logger.Info("scheduler stopping")
			return
		case <-ticker.C:
			runCycle(ctx, scheduler, logger)
		}
	}
}

func runCycle(ctx context.Context, scheduler *service.SequenceScheduler, logger *zap.Logger) {
	if _, err := scheduler.RunCycle(ctx); err != nil && ctx.Err() == nil {
		logger.Error("scheduler cycle failed", zap.Error(err))
	}
}
