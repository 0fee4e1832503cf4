package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"nutrition-coach/internal/feedback"
	"nutrition-coach/internal/models"
	"nutrition-coach/internal/notify"
	"nutrition-coach/internal/planner"
	"nutrition-coach/internal/predictor"
	"nutrition-coach/pkg/logger"
)

type TokenService interface {
	UserID(token string) (uuid.UUID, error)
	IssueLinkToken(userID uuid.UUID, ttl time.Duration) (string, error)
}

type Onboarding interface {
	Register(ctx context.Context, userID uuid.UUID, attrs models.ProfileAttributes) (*models.Profile, error)
	Delete(ctx context.Context, userID uuid.UUID) error
}

type Planner interface {
	Generate(ctx context.Context, userID uuid.UUID, req planner.GenerateRequest) (*models.Plan, error)
	History(ctx context.Context, userID uuid.UUID) ([]models.Plan, error)
	Get(ctx context.Context, userID uuid.UUID, planID int64) (*models.Plan, error)
	SetMealCompletion(ctx context.Context, userID uuid.UUID, planID int64, meal string, done bool) (*planner.CompletionResult, error)
}

type Feedback interface {
	Submit(ctx context.Context, userID uuid.UUID, scores models.Scores) (*feedback.Result, error)
	Adjustments(ctx context.Context, userID uuid.UUID) (models.AdjustmentResult, error)
}

type DeviceRegistrar interface {
	RegisterDevice(ctx context.Context, userID uuid.UUID, token string) (*models.Subscription, error)
}

// Config carries the optional parts of the API. A nil Devices or an empty
// BotUsername turns the matching notification route into a 503.
type Config struct {
	AllowedOrigins []string
	Devices        DeviceRegistrar
	BotUsername    string
	LinkTokenTTL   time.Duration
}

type API struct {
	tokens         TokenService
	onboarding     Onboarding
	planner        Planner
	feedback       Feedback
	devices        DeviceRegistrar
	botUsername    string
	linkTTL        time.Duration
	allowedOrigins []string
	logger         *logger.Logger
}

func NewAPI(tokens TokenService, o Onboarding, p Planner, f Feedback, cfg Config, l *logger.Logger) *API {
	ttl := cfg.LinkTokenTTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &API{
		tokens:         tokens,
		onboarding:     o,
		planner:        p,
		feedback:       f,
		devices:        cfg.Devices,
		botUsername:    cfg.BotUsername,
		linkTTL:        ttl,
		allowedOrigins: cfg.AllowedOrigins,
		logger:         l,
	}
}

// fail maps a service error to its status code. Unknown errors are
// reported as 500 without leaking details.
func (a *API) fail(c *gin.Context, err error) {
	var upstream *predictor.UpstreamError
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, models.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, models.ErrDuplicateFeedback):
		status = http.StatusConflict
	case errors.Is(err, models.ErrInvalidFeedback),
		errors.Is(err, models.ErrInvalidProfile),
		errors.Is(err, models.ErrUnknownMeal),
		errors.Is(err, models.ErrIncompleteProfile):
		status = http.StatusBadRequest
	case errors.As(err, &upstream), errors.Is(err, predictor.ErrMissingCalories):
		status = http.StatusBadGateway
	case errors.Is(err, notify.ErrPlatformNotConfigured):
		status = http.StatusServiceUnavailable
	}

	_ = c.Error(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal server error"
	}
	c.JSON(status, gin.H{"error": message})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

// ---------- users -----------------------------------------------------------

func (a *API) register(c *gin.Context) {
	var attrs models.ProfileAttributes
	if err := c.ShouldBindJSON(&attrs); err != nil {
		badRequest(c, err)
		return
	}

	profile, err := a.onboarding.Register(c.Request.Context(), currentUser(c), attrs)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "User profile created successfully.", "profile": profile})
}

func (a *API) deleteAccount(c *gin.Context) {
	if err := a.onboarding.Delete(c.Request.Context(), currentUser(c)); err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "User account deleted successfully."})
}

// ---------- plans -----------------------------------------------------------

type generateRequest struct {
	PlanDate       string `json:"planDate"`
	IsRegeneration bool   `json:"isRegeneration"`
}

// parsePlanDate accepts a bare date or an RFC 3339 timestamp.
func parsePlanDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	if d, err := time.Parse(models.DateLayout, s); err == nil {
		return &d, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, fmt.Errorf("invalid planDate %q", s)
	}
	return &t, nil
}

func (a *API) generatePlan(c *gin.Context) {
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, err)
		return
	}
	planDate, err := parsePlanDate(req.PlanDate)
	if err != nil {
		badRequest(c, err)
		return
	}

	plan, err := a.planner.Generate(c.Request.Context(), currentUser(c), planner.GenerateRequest{
		PlanDate:   planDate,
		Regenerate: req.IsRegeneration,
	})
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Plan generated successfully", "plan": plan})
}

func (a *API) planHistory(c *gin.Context) {
	plans, err := a.planner.History(c.Request.Context(), currentUser(c))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, plans)
}

func (a *API) getPlan(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		badRequest(c, fmt.Errorf("invalid plan id %q", c.Param("id")))
		return
	}

	plan, err := a.planner.Get(c.Request.Context(), currentUser(c), id)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, plan)
}

type completeMealRequest struct {
	PlanID      int64  `json:"planId" binding:"required"`
	MealName    string `json:"mealName" binding:"required"`
	IsCompleted *bool  `json:"isCompleted" binding:"required"`
}

func (a *API) completeMeal(c *gin.Context) {
	var req completeMealRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	res, err := a.planner.SetMealCompletion(c.Request.Context(), currentUser(c), req.PlanID, req.MealName, *req.IsCompleted)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// ---------- feedback --------------------------------------------------------

type feedbackRequest struct {
	Satiety   *float64 `json:"satiety" binding:"required"`
	Energy    *float64 `json:"energy" binding:"required"`
	Adherence *float64 `json:"adherence" binding:"required"`
}

func (a *API) submitFeedback(c *gin.Context) {
	var req feedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, fmt.Errorf("missing required feedback fields: satiety, energy, adherence"))
		return
	}

	res, err := a.feedback.Submit(c.Request.Context(), currentUser(c), models.Scores{
		Satiety:   *req.Satiety,
		Energy:    *req.Energy,
		Adherence: *req.Adherence,
	})
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": feedback.SubmittedMessage, "newStreak": res.CheckinStreak})
}

func (a *API) previewAdjustments(c *gin.Context) {
	adj, err := a.feedback.Adjustments(c.Request.Context(), currentUser(c))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, adj)
}

// ---------- notifications ---------------------------------------------------

type deviceRequest struct {
	Token string `json:"token" binding:"required"`
}

func (a *API) registerDevice(c *gin.Context) {
	if a.devices == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "push notifications are not configured"})
		return
	}

	var req deviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	sub, err := a.devices.RegisterDevice(c.Request.Context(), currentUser(c), req.Token)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"endpoint_arn": sub.Target})
}

func (a *API) telegramLink(c *gin.Context) {
	if a.botUsername == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "telegram bot is not configured"})
		return
	}

	token, err := a.tokens.IssueLinkToken(currentUser(c), a.linkTTL)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"link":      "https://t.me/" + a.botUsername,
		"command":   "/link " + token,
		"expiresAt": time.Now().Add(a.linkTTL).UTC(),
	})
}
