package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"

	"nutrition-coach/internal/models"
	"nutrition-coach/internal/planner"
)

const (
	helpText = "I send your daily meal plan and an evening check-in reminder.\n\n" +
		"/plan - today's plan\n" +
		"/checkin - rate today's satiety, energy and adherence\n" +
		"/streak - your streaks\n" +
		"/stop - stop reminders in this chat\n\n" +
		"To connect this chat, open Notifications in the app and send the /link command it shows."
	notLinkedText = "This chat is not linked to an account yet. Open Notifications in the app and send the /link command it shows."
	linkedText    = "✅ This chat is now linked. You will get your evening check-in reminder here."
	stoppedText   = "Reminders stopped. Send a new /link command from the app to turn them back on."
)

// checkinState tracks a chat walking through the three feedback questions.
type checkinState struct {
	step   int
	scores models.Scores
}

var checkinQuestions = []string{
	"How full did you feel today? (1 = always hungry, 5 = very satisfied)",
	"How was your energy today? (1 = drained, 5 = great)",
	"How closely did you follow the plan? (1 = not at all, 5 = fully)",
}

func chatTarget(chatID int64) string { return strconv.FormatInt(chatID, 10) }

func (t *TelegramBot) handleCommand(ctx context.Context, message *tgbotapi.Message) {
	chatID := message.Chat.ID
	command := message.Command()

	t.logger.Infow("Handling command", "command", command, "chat_id", chatID)

	switch command {
	case "start":
		if args := strings.TrimSpace(message.CommandArguments()); args != "" {
			t.link(ctx, chatID, args)
			return
		}
		t.reply(chatID, "👋 Hi! I'm your nutrition coach.\n\n"+helpText)
	case "link":
		t.link(ctx, chatID, strings.TrimSpace(message.CommandArguments()))
	case "plan":
		t.sendPlan(ctx, chatID)
	case "checkin":
		t.beginCheckin(ctx, chatID)
	case "streak":
		t.sendStreak(ctx, chatID)
	case "stop":
		t.unlink(ctx, chatID)
	case "help":
		t.reply(chatID, helpText)
	default:
		t.reply(chatID, "Unknown command. Use /help to see what I can do.")
	}
}

func (t *TelegramBot) link(ctx context.Context, chatID int64, token string) {
	if token == "" {
		t.reply(chatID, notLinkedText)
		return
	}

	userID, err := t.deps.Linker.ParseLinkToken(token)
	if err != nil {
		t.logger.Warnw("Rejected link token", "chat_id", chatID, "error", err)
		t.reply(chatID, "This link is invalid or has expired. Request a new one in the app.")
		return
	}

	sub := &models.Subscription{UserID: userID, Channel: models.ChannelTelegram, Target: chatTarget(chatID)}
	if err := t.deps.Store.AddSubscription(ctx, sub); err != nil {
		t.logger.Errorw("Failed to link chat", "chat_id", chatID, "user_id", userID, "error", err)
		t.reply(chatID, "Sorry, I couldn't link this chat. Please try again later.")
		return
	}

	t.logger.Infow("Linked Telegram chat", "chat_id", chatID, "user_id", userID)
	t.reply(chatID, linkedText)
}

func (t *TelegramBot) unlink(ctx context.Context, chatID int64) {
	t.clearCheckin(chatID)
	err := t.deps.Store.DeleteSubscriptionByTarget(ctx, models.ChannelTelegram, chatTarget(chatID))
	switch {
	case errors.Is(err, models.ErrNotFound):
		t.reply(chatID, notLinkedText)
	case err != nil:
		t.logger.Errorw("Failed to unlink chat", "chat_id", chatID, "error", err)
		t.reply(chatID, "Sorry, something went wrong. Please try again later.")
	default:
		t.logger.Infow("Unlinked Telegram chat", "chat_id", chatID)
		t.reply(chatID, stoppedText)
	}
}

// userFor resolves the account linked to chatID, telling the chat when
// there is none.
func (t *TelegramBot) userFor(ctx context.Context, chatID int64) (uuid.UUID, bool) {
	userID, err := t.deps.Store.SubscriberOf(ctx, models.ChannelTelegram, chatTarget(chatID))
	if errors.Is(err, models.ErrNotFound) {
		t.reply(chatID, notLinkedText)
		return uuid.Nil, false
	}
	if err != nil {
		t.logger.Errorw("Failed to resolve chat", "chat_id", chatID, "error", err)
		t.reply(chatID, "Sorry, something went wrong. Please try again later.")
		return uuid.Nil, false
	}
	return userID, true
}

// ---------- plan ------------------------------------------------------------

func (t *TelegramBot) sendPlan(ctx context.Context, chatID int64) {
	userID, ok := t.userFor(ctx, chatID)
	if !ok {
		return
	}

	today := models.Day(t.now())
	plan, err := t.deps.Store.GetPlanByDate(ctx, userID, today)
	if errors.Is(err, models.ErrNotFound) {
		plan, err = t.deps.Planner.Generate(ctx, userID, planner.GenerateRequest{PlanDate: &today})
	}
	switch {
	case errors.Is(err, models.ErrNotFound), errors.Is(err, models.ErrIncompleteProfile):
		t.reply(chatID, "Finish your profile in the app first, then I can build your plan.")
		return
	case err != nil:
		t.logger.Errorw("Failed to load plan", "chat_id", chatID, "user_id", userID, "error", err)
		t.reply(chatID, "Sorry, I couldn't load your plan. Please try again later.")
		return
	}

	msg := tgbotapi.NewMessage(chatID, formatPlan(plan))
	msg.ReplyMarkup = mealKeyboard(plan)
	t.send(msg)
}

func formatPlan(plan *models.Plan) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🍽 Plan for %s\n", plan.PlanDate.Format(models.DateLayout))

	for _, meal := range plan.Data.Meals {
		fmt.Fprintf(&b, "\n%s (%d kcal)\n", meal.Name, meal.Calories)
		for _, item := range meal.Items {
			fmt.Fprintf(&b, "• %s, %s\n", item.Food, item.Quantity)
		}
	}

	s := plan.Data.Summary
	fmt.Fprintf(&b, "\nTotal: %d kcal, protein %d g, carbs %d g, fat %d g",
		s.ActualCalories, s.ActualProtein, s.ActualCarbs, s.ActualFat)
	if plan.Data.Reason != "" {
		fmt.Fprintf(&b, "\n\n%s", plan.Data.Reason)
	}
	return b.String()
}

func mealKeyboard(plan *models.Plan) tgbotapi.InlineKeyboardMarkup {
	var row []tgbotapi.InlineKeyboardButton
	for _, key := range models.MealKeys {
		done := plan.CompletedMeals[key]
		mark := "⬜"
		if done {
			mark = "✅"
		}
		label := mark + " " + strings.ToUpper(key[:1]) + key[1:]
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(label, mealCallback(plan.ID, key, !done)))
	}
	return tgbotapi.NewInlineKeyboardMarkup(row)
}

func mealCallback(planID int64, meal string, done bool) string {
	flag := "0"
	if done {
		flag = "1"
	}
	return fmt.Sprintf("meal:%d:%s:%s", planID, meal, flag)
}

func parseMealCallback(data string) (planID int64, meal string, done bool, err error) {
	parts := strings.Split(data, ":")
	if len(parts) != 4 || parts[0] != "meal" {
		return 0, "", false, fmt.Errorf("unexpected callback data %q", data)
	}
	planID, err = strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, "", false, fmt.Errorf("invalid plan id in %q: %w", data, err)
	}
	return planID, parts[2], parts[3] == "1", nil
}

func (t *TelegramBot) handleCallbackQuery(ctx context.Context, query *tgbotapi.CallbackQuery) {
	answer := func(text string) {
		if _, err := t.bot.Request(tgbotapi.NewCallback(query.ID, text)); err != nil {
			t.logger.Errorw("Failed to answer callback", "error", err)
		}
	}

	if query.Message == nil {
		answer("")
		return
	}
	chatID := query.Message.Chat.ID

	planID, meal, done, err := parseMealCallback(query.Data)
	if err != nil {
		t.logger.Warnw("Ignoring callback", "chat_id", chatID, "error", err)
		answer("")
		return
	}

	userID, ok := t.userFor(ctx, chatID)
	if !ok {
		answer("")
		return
	}

	res, err := t.deps.Planner.SetMealCompletion(ctx, userID, planID, meal, done)
	if err != nil {
		t.logger.Errorw("Failed to update meal from Telegram",
			"chat_id", chatID, "plan_id", planID, "meal", meal, "error", err)
		answer("Couldn't update this meal.")
		return
	}

	answer(fmt.Sprintf("Streak: %d 🔥", res.Streak))
	edit := tgbotapi.NewEditMessageReplyMarkup(chatID, query.Message.MessageID, mealKeyboard(res.Plan))
	if _, err := t.bot.Request(edit); err != nil {
		t.logger.Errorw("Failed to refresh plan keyboard", "chat_id", chatID, "error", err)
	}
}

// ---------- check-in --------------------------------------------------------

func scoreKeyboard() tgbotapi.ReplyKeyboardMarkup {
	row := make([]tgbotapi.KeyboardButton, 0, 5)
	for i := 1; i <= 5; i++ {
		row = append(row, tgbotapi.NewKeyboardButton(strconv.Itoa(i)))
	}
	kb := tgbotapi.NewReplyKeyboard(row)
	kb.OneTimeKeyboard = true
	return kb
}

func (t *TelegramBot) beginCheckin(ctx context.Context, chatID int64) {
	if _, ok := t.userFor(ctx, chatID); !ok {
		return
	}

	t.stateMutex.Lock()
	t.checkins[chatID] = &checkinState{}
	t.stateMutex.Unlock()

	msg := tgbotapi.NewMessage(chatID, checkinQuestions[0])
	msg.ReplyMarkup = scoreKeyboard()
	t.send(msg)
}

func (t *TelegramBot) clearCheckin(chatID int64) {
	t.stateMutex.Lock()
	delete(t.checkins, chatID)
	t.stateMutex.Unlock()
}

// handleMessage processes plain text, which only means something while a
// check-in is in progress.
func (t *TelegramBot) handleMessage(ctx context.Context, message *tgbotapi.Message) {
	chatID := message.Chat.ID

	t.stateMutex.Lock()
	state, exists := t.checkins[chatID]
	t.stateMutex.Unlock()

	if !exists {
		t.reply(chatID, "Use /help to see what I can do.")
		return
	}

	score, err := strconv.ParseFloat(strings.TrimSpace(message.Text), 64)
	if err != nil || score < models.MinScore || score > models.MaxScore {
		msg := tgbotapi.NewMessage(chatID, "Please answer with a number from 1 to 5.")
		msg.ReplyMarkup = scoreKeyboard()
		t.send(msg)
		return
	}

	t.stateMutex.Lock()
	switch state.step {
	case 0:
		state.scores.Satiety = score
	case 1:
		state.scores.Energy = score
	case 2:
		state.scores.Adherence = score
	}
	state.step++
	step, scores := state.step, state.scores
	t.stateMutex.Unlock()

	if step < len(checkinQuestions) {
		msg := tgbotapi.NewMessage(chatID, checkinQuestions[step])
		msg.ReplyMarkup = scoreKeyboard()
		t.send(msg)
		return
	}

	t.clearCheckin(chatID)
	t.submitCheckin(ctx, chatID, scores)
}

func (t *TelegramBot) submitCheckin(ctx context.Context, chatID int64, scores models.Scores) {
	userID, ok := t.userFor(ctx, chatID)
	if !ok {
		return
	}

	msg := tgbotapi.NewMessage(chatID, "")
	msg.ReplyMarkup = tgbotapi.NewRemoveKeyboard(true)

	res, err := t.deps.Feedback.Submit(ctx, userID, scores)
	switch {
	case errors.Is(err, models.ErrDuplicateFeedback):
		msg.Text = "You've already checked in today. See you tomorrow!"
	case errors.Is(err, models.ErrNotFound):
		msg.Text = "Finish your profile in the app first, then check in here."
	case err != nil:
		t.logger.Errorw("Failed to submit check-in", "chat_id", chatID, "user_id", userID, "error", err)
		msg.Text = "Sorry, I couldn't save your check-in. Please try again later."
	default:
		msg.Text = fmt.Sprintf("Thanks! Check-in streak: %d day(s) 🔥", res.CheckinStreak)
	}
	t.send(msg)
}

// ---------- streak ----------------------------------------------------------

func (t *TelegramBot) sendStreak(ctx context.Context, chatID int64) {
	userID, ok := t.userFor(ctx, chatID)
	if !ok {
		return
	}

	profile, err := t.deps.Store.GetProfile(ctx, userID)
	if errors.Is(err, models.ErrNotFound) {
		t.reply(chatID, "Finish your profile in the app first.")
		return
	}
	if err != nil {
		t.logger.Errorw("Failed to load profile", "chat_id", chatID, "user_id", userID, "error", err)
		t.reply(chatID, "Sorry, something went wrong. Please try again later.")
		return
	}

	t.reply(chatID, fmt.Sprintf("🔥 Completed plans: %d day(s) in a row\n📝 Check-ins: %d day(s) in a row",
		profile.Streak, profile.CheckinStreak))
}
