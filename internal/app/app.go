package app

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/slack-go/slack"
	"go.uber.org/zap"

	"supportbot/internal/admin"
	"supportbot/internal/config"
	"supportbot/internal/httpx"
	"supportbot/internal/integrations/llm"
	"supportbot/internal/integrations/mantis"
	slackbot "supportbot/internal/integrations/slack"
	"supportbot/internal/keylock"
	"supportbot/internal/observability"
	"supportbot/internal/status"
	"supportbot/internal/statussync"
	redisstore "supportbot/internal/storage/redis"
	"supportbot/internal/storage/sqlite"
	"supportbot/internal/triage"
)

func Main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("supportbot stopped", zap.Error(err))
	}
	logger.Info("supportbot stopped")
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	appliedHTTPTimeout := httpx.ConfigureExternalHTTPClient(cfg.ExternalHTTPTimeoutSeconds)
	logger.Info("config loaded",
		zap.String("llm_provider", cfg.LLMProvider),
		zap.String("llm_model", cfg.LLMModel),
		zap.String("llm_glossary_path", cfg.LLMGlossaryPath),
		zap.String("mantis_base_url", cfg.MantisBaseURL),
		zap.Int("mantis_project_id", cfg.MantisProjectID),
		zap.Duration("confirmation_window", cfg.ConfirmationWindow()),
		zap.Duration("dedup_window", cfg.DedupWindow()),
		zap.String("status_sync_schedule", cfg.StatusSyncSchedule),
		zap.Bool("redis", cfg.RedisConfigured()),
		zap.Duration("external_http_timeout", appliedHTTPTimeout),
	)

	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()
	logger.Info("database initialized", zap.String("path", cfg.DBPath))

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(reg)

	checks := map[string]admin.Pinger{"sqlite": store}
	var gate status.Gate
	if cfg.RedisConfigured() {
		r := redisstore.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, logger)
		defer r.Close()
		if err := r.Ping(ctx); err != nil {
			logger.Warn("redis unreachable at startup; refreshes are not throttled until it recovers", zap.Error(err))
		}
		gate = redisstore.NewRefreshGate(r, cfg.StatusRefreshTTL(), logger)
		checks["redis"] = r
	}

	classifier, closeClassifier, err := llm.New(ctx, llm.Options{
		Provider:        cfg.LLMProvider,
		Model:           cfg.LLMModel,
		AnthropicAPIKey: cfg.AnthropicAPIKey,
		GeminiAPIKey:    cfg.GeminiAPIKey,
		GlossaryPath:    cfg.LLMGlossaryPath,
		Logger:          logger.Named("llm"),
	})
	if err != nil {
		return err
	}
	defer func() { _ = closeClassifier() }()

	tracker := mantis.New(mantis.Config{
		BaseURL:      cfg.MantisBaseURL,
		APIToken:     cfg.MantisAPIToken,
		ProjectID:    cfg.MantisProjectID,
		CategoryName: cfg.MantisCategory,
	}, httpx.Client(), logger.Named("mantis"))

	// Triage, status and sync share one per-reporter lock map.
	locks := keylock.New()

	coord := triage.New(classifier, tracker, store, triage.Options{
		ConfirmationWindow:    cfg.ConfirmationWindow(),
		DedupWindow:           cfg.DedupWindow(),
		RetryBackoff:          cfg.ClassifierRetryBackoff(),
		CallTimeout:           appliedHTTPTimeout,
		TroubleshootRetention: cfg.TroubleshootRetention(),
		Locks:                 locks,
		Logger:                logger.Named("triage"),
		Metrics:               metrics,
	})
	statusSvc := status.New(store, tracker, status.Options{
		CallTimeout: appliedHTTPTimeout,
		Locks:       locks,
		Gate:        gate,
		Logger:      logger.Named("status"),
		Metrics:     metrics,
	})

	api := slack.New(
		cfg.SlackBotToken,
		slack.OptionAppLevelToken(cfg.SlackAppToken),
	)
	render := slackbot.Renderer{}
	notifier := slackbot.NewNotifier(api, render, logger.Named("notify"))
	coord.SetExpiryHandler(notifier.NotifyExpired)

	syncer := statussync.New(store, tracker, notifier, statussync.Options{
		CallTimeout: appliedHTTPTimeout,
		Locks:       locks,
		Logger:      logger.Named("statussync"),
		Metrics:     metrics,
	})
	if err := syncer.Start(ctx, cfg.StatusSyncSchedule); err != nil {
		return err
	}

	go func() {
		handler := admin.NewRouter(admin.Config{Gatherer: reg, Checks: checks, Logger: logger.Named("admin")})
		if err := admin.Serve(ctx, cfg.MetricsAddr, handler, logger.Named("admin")); err != nil {
			logger.Error("admin server failed", zap.Error(err))
		}
	}()

	bot := slackbot.New(api, coord, statusSvc, slackbot.Options{
		Users:  slackbot.NewUserDirectory(api, nil),
		Logger: logger.Named("slack"),
	})
	logger.Info("starting washing machine support bot")
	return bot.Run(ctx)
}
