package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/finchat/backend/internal/config"
	"github.com/zhouzirui/finchat/backend/internal/handler"
	"github.com/zhouzirui/finchat/backend/internal/handler/chat"
	"github.com/zhouzirui/finchat/backend/internal/handler/webhook"
	"github.com/zhouzirui/finchat/backend/internal/logger"
	model "github.com/zhouzirui/finchat/backend/internal/model/intake"
	"github.com/zhouzirui/finchat/backend/internal/model/ledger"
	"github.com/zhouzirui/finchat/backend/internal/service/extraction"
	"github.com/zhouzirui/finchat/backend/internal/service/intake"
	"github.com/zhouzirui/finchat/backend/internal/service/intent"
	ledgersvc "github.com/zhouzirui/finchat/backend/internal/service/ledger"
	"github.com/zhouzirui/finchat/backend/internal/service/llm"
	"github.com/zhouzirui/finchat/backend/internal/service/plan"
	"github.com/zhouzirui/finchat/backend/internal/service/session"
	"github.com/zhouzirui/finchat/backend/internal/service/speech"
	"github.com/zhouzirui/finchat/backend/internal/service/whatsapp"
	"github.com/zhouzirui/finchat/backend/internal/storage/sqlite"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log := logger.New()
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	log := logger.Configure(cfg.Log.Level, cfg.Log.Format)
	if envErr != nil {
		log.Debug().Err(envErr).Msg("no .env file, using process environment only")
	}
	ctx = logger.WithContext(ctx, log)

	store, err := sqlite.Open(cfg.Storage.Path, log)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.Storage.Path).Msg("failed to open database")
	}
	defer store.Close()

	if err := store.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate database")
	}

	completer, err := llm.New(ctx, cfg.AI)
	switch {
	case err != nil:
		log.Warn().Err(err).Str("provider", cfg.AI.Provider).Msg("language model unavailable, using heuristics only")
		completer = nil
	case completer == nil:
		log.Info().Msg("no language model configured, using heuristics only")
	default:
		log.Info().Str("provider", cfg.AI.Provider).Msg("language model enabled")
	}

	transcriber, err := speech.New(ctx, cfg.Speech)
	switch {
	case err != nil:
		log.Warn().Err(err).Str("provider", cfg.Speech.Provider).Msg("speech unavailable, voice notes will be declined")
		transcriber = nil
	case transcriber == nil:
		log.Info().Msg("speech not configured, voice notes will be declined")
	default:
		log.Info().Str("provider", cfg.Speech.Provider).Msg("speech enabled")
	}

	wa := whatsapp.NewClient(cfg.WhatsApp)

	sessions := session.NewStore(session.Config{
		SessionTTL:   cfg.Intake.SessionTTL,
		PendingTTL:   cfg.Intake.PendingTTL,
		HistoryLimit: cfg.Intake.HistoryLimit,
	})
	if cfg.Intake.SweepInterval > 0 {
		go sessions.RunSweeper(ctx, cfg.Intake.SweepInterval)
	}

	checker := plan.NewChecker(store, plan.Limits{
		FreeMonthlyWhatsApp: cfg.Plan.FreeMonthlyWhatsApp,
		SharedCaps: map[ledger.Plan]int{
			ledger.PlanFree:    cfg.Plan.FreeSharedCap,
			ledger.PlanPro:     cfg.Plan.ProSharedCap,
			ledger.PlanPremium: cfg.Plan.PremiumSharedCap,
		},
		SharedWindow: cfg.Plan.SharedWindow,
	})

	pipeline, err := intake.NewPipeline(intake.Deps{
		Sessions:     sessions,
		Directory:    store,
		Classifier:   intent.NewService(completer, intent.Config{Timeout: cfg.AI.Timeout, HistoryLimit: cfg.Intake.HistoryLimit}),
		Extractor:    extraction.NewService(completer, extraction.Config{Timeout: cfg.AI.Timeout}),
		Materializer: ledgersvc.NewMaterializer(store),
		Limits:       checker,
		Sender:       wa,
	}, intake.Config{
		DirectoryTimeout:   cfg.Intake.DirectoryTimeout,
		PersistenceTimeout: cfg.Intake.PersistenceTimeout,
		DeliveryTimeout:    cfg.WhatsApp.Timeout,
		DefaultLocale:      model.ParseLocale(cfg.Intake.DefaultLocale),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build intake pipeline")
	}

	dispatcher := intake.NewDispatcher(pipeline, wa, transcriber, cfg.Speech.Timeout)
	webhookHandler := webhook.New(dispatcher, webhook.Config{
		VerifyToken: cfg.WhatsApp.VerifyToken,
		AppSecret:   cfg.WhatsApp.AppSecret,
		Timeout:     cfg.Intake.ProcessingTimeout,
	})
	if cfg.WhatsApp.VerifyToken == "" {
		log.Warn().Msg("WHATSAPP_VERIFY_TOKEN not set, webhook verification will fail")
	}

	var chatHandler *chat.Handler
	if cfg.Server.ChatAPI {
		chatHandler = chat.New(dispatcher, sessions, cfg.Intake.ProcessingTimeout)
		log.Warn().Msg("chat sandbox API enabled on /chat")
	}

	router := handler.NewRouter(log, store, webhookHandler, chatHandler)

	startServer(ctx, log, cfg.Server, router, webhookHandler)
}

func startServer(ctx context.Context, log zerolog.Logger, serverCfg config.ServerConfig, router http.Handler, webhookHandler *webhook.Handler) {
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Info().Str("addr", serverCfg.Addr).Msg("finchat intake listening")
	if err := runServer(ctx, srv, serverCfg.ShutdownTimeout, webhookHandler); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
	log.Info().Msg("server stopped")
}

func runServer(ctx context.Context, srv *http.Server, shutdownTimeout time.Duration, webhookHandler *webhook.Handler) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if waitErr := webhookHandler.Wait(shutdownCtx); waitErr != nil {
			log := logger.FromContext(ctx)
			log.Warn().Err(waitErr).Msg("in-flight deliveries abandoned")
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
