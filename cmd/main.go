package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"replygate/internal/config"
	"replygate/internal/entities"
	"replygate/internal/infrastructure"
	"replygate/internal/interfaces"
	httpapi "replygate/internal/interfaces/http"
	"replygate/internal/repository"
	"replygate/internal/usecases"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("Failed to load configuration")
	}
	log := infrastructure.NewLogger(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Connect to PostgreSQL
	pgClient, err := infrastructure.NewPostgresClient(ctx, cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer pgClient.Close()

	if err := pgClient.Migrate(ctx, log); err != nil {
		log.Fatal().Err(err).Msg("Failed to run migrations")
	}

	// Initialize Repositories
	businessRepo := repository.NewBusinessRepository(pgClient.Pool)
	userRepo := repository.NewUserRepository(pgClient.Pool)
	conversationRepo := repository.NewConversationRepository(pgClient.Pool)
	ruleRepo := repository.NewWorkflowRuleRepository(pgClient.Pool)
	approvalRepo := repository.NewApprovalRepository(pgClient.Pool)
	actionLogRepo := repository.NewActionLogRepository(pgClient.Pool)
	dashboardRepo := repository.NewDashboardRepository(pgClient.Pool)

	authUsecase := usecases.NewAuthUsecase(userRepo, businessRepo, cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	businessUsecase := usecases.NewBusinessUsecase(businessRepo, log)

	if !cfg.Pipeline.SeedDevBusiness {
		if _, err := businessRepo.GetByID(ctx, cfg.Pipeline.DefaultBusinessID); err != nil {
			log.Warn().Err(err).Str("business_id", cfg.Pipeline.DefaultBusinessID).Msg("default business unavailable, webhook messages will be rejected")
		}
	}
	if cfg.Pipeline.SeedDevBusiness {
		if err := businessUsecase.SeedDevBusiness(ctx, cfg.Pipeline.DefaultBusinessID); err != nil {
			log.Warn().Err(err).Msg("Failed to seed development business")
		} else if created, err := authUsecase.EnsureUser(ctx, cfg.Pipeline.DevAdminEmail, cfg.Pipeline.DevAdminPassword, "Dev Admin", "admin", cfg.Pipeline.DefaultBusinessID); err != nil {
			log.Warn().Err(err).Msg("Failed to ensure development admin")
		} else if created {
			log.Info().Str("email", cfg.Pipeline.DevAdminEmail).Msg("development admin created")
		}
	}

	// AI provider; without a usable key the classifier runs on keywords
	var provider interfaces.CompletionProvider
	if cfg.AI.Enabled() {
		profile, _ := cfg.AI.Profile()
		provider = infrastructure.NewCompletionClient(profile, cfg.AI.APIKey, cfg.AI.Timeout)
		log.Info().Str("provider", profile.Name).Str("model", profile.Model).Msg("AI provider configured")
	} else {
		log.Warn().Msg("AI API key missing or placeholder, classifier in mock mode")
	}

	// Outbound channels
	sendLimiter := infrastructure.NewKeyedRateLimiter(cfg.WhatsApp.SendRate, int(cfg.WhatsApp.SendRate))
	defer sendLimiter.Stop()

	telegramClient := infrastructure.NewTelegramClient(cfg.Telegram.Token, cfg.Pipeline.DefaultBusinessID, log)
	router := infrastructure.NewChannelRouter().
		Register(entities.ChannelWhatsApp, infrastructure.NewWhatsAppBusinessClient(cfg.WhatsApp, log)).
		Register(entities.ChannelTelegram, telegramClient).
		Register(entities.ChannelWeb, infrastructure.NewWebSink(log))

	var deviceManager *infrastructure.DeviceManager
	if cfg.Device.Enabled {
		deviceManager = infrastructure.NewDeviceManager(cfg.Device.Dir, sendLimiter, log.With().Str("component", "devices").Logger())
		router.Register(entities.ChannelWhatsAppDevice, deviceManager)
	}

	// Pipeline
	conversations := usecases.NewConversationService(conversationRepo)
	workflow := usecases.NewApprovalWorkflow(ruleRepo, approvalRepo, log)
	executor := usecases.NewActionExecutor(router, approvalRepo, actionLogRepo, conversationRepo, log)
	pipeline := usecases.NewMessagePipeline(
		businessRepo,
		conversations,
		usecases.NewIntentClassifier(provider, log),
		usecases.NewPolicyEngine(ruleRepo),
		workflow,
		executor,
		usecases.PipelineOptions{DefaultBusinessID: cfg.Pipeline.DefaultBusinessID, HistoryLimit: cfg.Pipeline.HistoryLimit},
		log,
	)

	queue := usecases.NewExecutionQueue(executor, approvalRepo, usecases.QueueOptions{
		Workers:    cfg.Queue.Workers,
		Size:       cfg.Queue.Size,
		MaxRetries: cfg.Queue.MaxRetries,
		BaseDelay:  cfg.Queue.BaseDelay,
		MaxDelay:   cfg.Queue.MaxDelay,
	}, log)
	queue.Start()
	go func() {
		for f := range queue.Failures() {
			log.Error().Err(f.Err).Str("approval_id", f.ApprovalID).Int("attempts", f.Attempts).Msg("approved action abandoned")
		}
	}()
	if n, err := queue.Recover(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to recover unexecuted approvals")
	} else if n > 0 {
		log.Info().Int("count", n).Msg("recovered unexecuted approvals")
	}
	go queue.RunRecovery(ctx, cfg.Queue.RecoverInterval)

	// Inbound events from long-lived channels each get their own deadline
	handleInbound := func(in entities.InboundMessage) {
		go func() {
			ectx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Pipeline.EventTimeout)
			defer cancel()
			if _, err := pipeline.ProcessMessage(ectx, in); err != nil {
				log.Error().Err(err).Str("channel", in.Channel).Str("from", in.SenderID).Msg("inbound message failed")
			}
		}()
	}

	if telegramClient.Bot != nil {
		go telegramClient.Listen(ctx, handleInbound)
	} else {
		log.Info().Msg("Telegram disabled (token missing or invalid)")
	}
	if deviceManager != nil {
		deviceManager.OnInbound = handleInbound
		deviceManager.Restore(ctx)
	}

	// Setup HTTP server
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	deps := httpapi.Deps{
		Pipeline:    pipeline,
		Approvals:   workflow,
		Dispatcher:  queue,
		Auth:        authUsecase,
		Profiles:    businessUsecase,
		Dashboard:   usecases.NewDashboardUsecase(dashboardRepo),
		VerifyToken: cfg.WhatsApp.VerifyToken,
	}
	if deviceManager != nil {
		deps.Devices = deviceManager
	}

	apiLimiter := infrastructure.NewKeyedRateLimiter(cfg.Server.RateLimit, cfg.Server.RateBurst)
	defer apiLimiter.Stop()
	middleware := httpapi.NewMiddleware(authUsecase, apiLimiter, log.With().Str("component", "http").Logger())
	httpapi.SetupRoutes(r, httpapi.NewHandler(deps, log), middleware, cfg.Server.MaxBodyBytes)

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server failed")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("HTTP server shutdown")
	}
	queue.Stop()
	if deviceManager != nil {
		deviceManager.DisconnectAll()
	}
}
