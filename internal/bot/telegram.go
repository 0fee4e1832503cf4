package bot

import (
	"context"
	"fmt"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"

	"nutrition-coach/internal/feedback"
	"nutrition-coach/internal/models"
	"nutrition-coach/internal/planner"
	"nutrition-coach/pkg/logger"
)

// API is the part of *tgbotapi.BotAPI the bot uses.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

type Store interface {
	AddSubscription(ctx context.Context, sub *models.Subscription) error
	DeleteSubscriptionByTarget(ctx context.Context, channel models.Channel, target string) error
	SubscriberOf(ctx context.Context, channel models.Channel, target string) (uuid.UUID, error)
	GetProfile(ctx context.Context, userID uuid.UUID) (*models.Profile, error)
	GetPlanByDate(ctx context.Context, userID uuid.UUID, date time.Time) (*models.Plan, error)
}

type Linker interface {
	ParseLinkToken(token string) (uuid.UUID, error)
}

type Planner interface {
	Generate(ctx context.Context, userID uuid.UUID, req planner.GenerateRequest) (*models.Plan, error)
	SetMealCompletion(ctx context.Context, userID uuid.UUID, planID int64, meal string, done bool) (*planner.CompletionResult, error)
}

type Feedback interface {
	Submit(ctx context.Context, userID uuid.UUID, scores models.Scores) (*feedback.Result, error)
}

type Deps struct {
	Store    Store
	Linker   Linker
	Planner  Planner
	Feedback Feedback
}

type TelegramBot struct {
	bot        API
	username   string
	deps       Deps
	logger     *logger.Logger
	checkins   map[int64]*checkinState
	stateMutex sync.Mutex
	handlers   sync.WaitGroup
	now        func() time.Time
}

// NewTelegramBot authorizes token against the Bot API. The returned bot
// also serves as the notify.ChatSender of the reminder dispatcher.
func NewTelegramBot(token string, deps Deps, logger *logger.Logger) (*TelegramBot, *tgbotapi.BotAPI, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	logger.Infow("Authorized on Telegram", "username", api.Self.UserName)

	return newTelegramBot(api, api.Self.UserName, deps, logger), api, nil
}

func newTelegramBot(api API, username string, deps Deps, logger *logger.Logger) *TelegramBot {
	return &TelegramBot{
		bot:      api,
		username: username,
		deps:     deps,
		logger:   logger,
		checkins: make(map[int64]*checkinState),
		now:      time.Now,
	}
}

func (t *TelegramBot) Username() string { return t.username }

// Start begins receiving updates from Telegram via polling
func (t *TelegramBot) Start(ctx context.Context) error {
	t.logger.Info("Removing any existing webhook")
	_, err := t.bot.Request(tgbotapi.DeleteWebhookConfig{
		DropPendingUpdates: true,
	})
	if err != nil {
		return fmt.Errorf("failed to delete webhook: %w", err)
	}

	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60

	updates := t.bot.GetUpdatesChan(updateConfig)

	t.logger.Info("Started receiving Telegram updates")

	go t.handleUpdates(ctx, updates)

	return nil
}

func (t *TelegramBot) handleUpdates(ctx context.Context, updates tgbotapi.UpdatesChannel) {
	for update := range updates {
		t.handlers.Add(1)
		go func(update tgbotapi.Update) {
			defer t.handlers.Done()
			defer func() {
				if r := recover(); r != nil {
					t.logger.Errorw("Recovered from panic while processing update",
						"update_id", update.UpdateID, "error", r)
				}
			}()

			t.handleUpdate(ctx, update)
		}(update)
	}
}

func (t *TelegramBot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.Message != nil:
		t.logger.Debugw("Received message",
			"chat_id", update.Message.Chat.ID,
			"update_id", update.UpdateID)

		if update.Message.IsCommand() {
			t.handleCommand(ctx, update.Message)
		} else {
			t.handleMessage(ctx, update.Message)
		}
	case update.CallbackQuery != nil:
		t.handleCallbackQuery(ctx, update.CallbackQuery)
	}
}

// Stop stops polling and waits for in-flight handlers until ctx expires.
func (t *TelegramBot) Stop(ctx context.Context) error {
	t.bot.StopReceivingUpdates()

	done := make(chan struct{})
	go func() {
		t.handlers.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (t *TelegramBot) send(c tgbotapi.Chattable) {
	if _, err := t.bot.Send(c); err != nil {
		t.logger.Errorw("Failed to send Telegram message", "error", err)
	}
}

func (t *TelegramBot) reply(chatID int64, text string) {
	t.send(tgbotapi.NewMessage(chatID, text))
}
