// cmd/coach/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"nutrition-coach/config"
	"nutrition-coach/internal/assembler"
	"nutrition-coach/internal/auth"
	"nutrition-coach/internal/bot"
	"nutrition-coach/internal/db"
	"nutrition-coach/internal/feedback"
	"nutrition-coach/internal/gpt"
	"nutrition-coach/internal/notify"
	"nutrition-coach/internal/onboarding"
	"nutrition-coach/internal/planner"
	"nutrition-coach/internal/predictor"
	"nutrition-coach/internal/scheduler"
	"nutrition-coach/internal/server"
	"nutrition-coach/pkg/logger"
)

func main() {
	l := logger.New(os.Getenv("APP_ENV"))
	defer l.Sync()
	l.Info("Starting nutrition coach...")

	cfg, err := config.Load()
	if err != nil {
		l.Fatalw("Failed to load config", "error", err)
	}
	l = logger.New(cfg.Env)

	verifier, err := auth.NewVerifier(cfg.Auth.JWTSecret)
	if err != nil {
		l.Fatalw("JWT secret is not configured", "error", err)
	}

	p, err := newPredictor(cfg, l)
	if err != nil {
		l.Fatalw("Failed to configure predictor", "error", err)
	}

	// Initialize database connection with retry
	var database db.Store
	maxRetries := 5
	for i := 0; i < maxRetries; i++ {
		database, err = db.Open(cfg.DB)
		if err == nil {
			break
		}
		l.Errorw("Failed to connect to database, retrying...", "driver", cfg.DB.Driver, "error", err)
		time.Sleep(time.Duration(i+1) * time.Second)
	}
	if database == nil {
		l.Fatalw("Failed to connect to database after multiple attempts", "error", err)
	}
	defer database.Close()

	migrateCtx, cancelMigrate := context.WithTimeout(context.Background(), 30*time.Second)
	err = database.Migrate(migrateCtx)
	cancelMigrate()
	if err != nil {
		l.Fatalw("Failed to migrate database", "error", err)
	}

	onboardingSvc := onboarding.NewService(database, p, l)
	plannerSvc := planner.NewService(database, assembler.New(database, l), cfg.Planner.FeedbackWindow, l)
	feedbackSvc := feedback.NewService(database, cfg.Planner.FeedbackWindow, l)

	apiCfg := server.Config{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		LinkTokenTTL:   cfg.Auth.LinkTokenTTL,
	}
	var senders []notify.Sender

	var telegramBot *bot.TelegramBot
	if cfg.Telegram.Token != "" {
		var api notify.ChatSender
		telegramBot, api, err = newTelegramBot(cfg, database, verifier, plannerSvc, feedbackSvc, l)
		if err != nil {
			l.Fatalw("Failed to create Telegram bot", "error", err)
		}
		apiCfg.BotUsername = telegramBot.Username()
		senders = append(senders, notify.NewTelegramSender(api))
	} else {
		l.Warn("Telegram token is not configured, bot disabled")
	}

	if cfg.SNS.PlatformARN != "" {
		snsClient, err := notify.NewSNSClient(context.Background(), cfg.SNS.Region)
		if err != nil {
			l.Fatalw("Failed to create SNS client", "error", err)
		}
		apiCfg.Devices = notify.NewRegistrar(snsClient, database, cfg.SNS.PlatformARN, l)
		senders = append(senders, notify.NewSNSSender(snsClient))
	} else {
		l.Warn("SNS platform application is not configured, push disabled")
	}

	dispatcher := notify.NewDispatcher(database, l, senders...)

	var sched *scheduler.Scheduler
	if cfg.Reminder.Enabled {
		sched, err = scheduler.New(cfg.Reminder.Cron, cfg.Reminder.Timezone, dispatcher, l)
		if err != nil {
			l.Fatalw("Failed to create scheduler", "error", err)
		}
		sched.Start()
	}

	if telegramBot != nil {
		if err := telegramBot.Start(context.Background()); err != nil {
			l.Fatalw("Failed to start Telegram bot", "error", err)
		}
		l.Info("Telegram bot started successfully")
	}

	api := server.NewAPI(verifier, onboardingSvc, plannerSvc, feedbackSvc, apiCfg, l)
	httpServer := server.NewServer(cfg.Server.Port, api, l)
	go func() {
		if err := httpServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Fatalw("Failed to start HTTP server", "error", err)
		}
	}()

	// Wait for termination signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	l.Info("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Stop(ctx); err != nil {
		l.Errorw("Error during HTTP server shutdown", "error", err)
	}
	if sched != nil {
		if err := sched.Stop(); err != nil {
			l.Errorw("Error during scheduler shutdown", "error", err)
		}
	}
	if telegramBot != nil {
		if err := telegramBot.Stop(ctx); err != nil {
			l.Errorw("Error during bot shutdown", "error", err)
		}
	}

	l.Info("Stopped successfully")
}

// newPredictor picks the baseline target provider. A misconfigured provider
// is a startup error; there is no fallback between providers.
func newPredictor(cfg *config.Config, l *logger.Logger) (predictor.Predictor, error) {
	switch cfg.Predictor.Provider {
	case predictor.ProviderML:
		return predictor.NewMLClient(cfg.Predictor.MLServiceURL, cfg.Predictor.Timeout, l), nil
	case gpt.Provider:
		if cfg.GPT.APIKey == "" {
			return nil, errors.New("GPT API key is not configured")
		}
		return gpt.NewClient(cfg.GPT.APIKey).WithModel(cfg.GPT.Model), nil
	case predictor.ProviderFormula:
		return predictor.Formula{}, nil
	default:
		return nil, fmt.Errorf("unknown predictor provider %q", cfg.Predictor.Provider)
	}
}

func newTelegramBot(cfg *config.Config, store db.Store, verifier *auth.Verifier, p *planner.Service, f *feedback.Service, l *logger.Logger) (*bot.TelegramBot, notify.ChatSender, error) {
	tb, api, err := bot.NewTelegramBot(cfg.Telegram.Token, bot.Deps{
		Store:    store,
		Linker:   verifier,
		Planner:  p,
		Feedback: f,
	}, l)
	if err != nil {
		return nil, nil, err
	}
	return tb, api, nil
}
