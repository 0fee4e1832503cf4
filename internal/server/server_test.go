package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nutrition-coach/internal/auth"
	"nutrition-coach/internal/feedback"
	"nutrition-coach/internal/models"
	"nutrition-coach/internal/planner"
	"nutrition-coach/internal/predictor"
	"nutrition-coach/pkg/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeOnboarding struct {
	err     error
	deleted uuid.UUID
}

func (f *fakeOnboarding) Register(_ context.Context, userID uuid.UUID, attrs models.ProfileAttributes) (*models.Profile, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.Profile{UserID: userID, ProfileAttributes: attrs, Targets: models.TargetSet{Calories: 2100}}, nil
}

func (f *fakeOnboarding) Delete(_ context.Context, userID uuid.UUID) error {
	f.deleted = userID
	return f.err
}

type fakePlanner struct {
	err     error
	lastReq planner.GenerateRequest
	plans   []models.Plan
}

func (f *fakePlanner) Generate(_ context.Context, userID uuid.UUID, req planner.GenerateRequest) (*models.Plan, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &models.Plan{ID: 1, UserID: userID, CompletedMeals: models.NewCompletedMeals()}, nil
}

func (f *fakePlanner) History(context.Context, uuid.UUID) ([]models.Plan, error) {
	return f.plans, f.err
}

func (f *fakePlanner) Get(_ context.Context, userID uuid.UUID, planID int64) (*models.Plan, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.Plan{ID: planID, UserID: userID}, nil
}

func (f *fakePlanner) SetMealCompletion(_ context.Context, _ uuid.UUID, planID int64, meal string, done bool) (*planner.CompletionResult, error) {
	if !models.KnownMeal(meal) {
		return nil, models.ErrUnknownMeal
	}
	if f.err != nil {
		return nil, f.err
	}
	c := models.NewCompletedMeals()
	c[meal] = done
	return &planner.CompletionResult{Plan: &models.Plan{ID: planID, CompletedMeals: c}, Streak: 3}, nil
}

type fakeFeedback struct {
	err    error
	scores models.Scores
}

func (f *fakeFeedback) Submit(_ context.Context, _ uuid.UUID, scores models.Scores) (*feedback.Result, error) {
	f.scores = scores
	if f.err != nil {
		return nil, f.err
	}
	if err := scores.Validate(); err != nil {
		return nil, err
	}
	return &feedback.Result{CheckinStreak: 4}, nil
}

func (f *fakeFeedback) Adjustments(context.Context, uuid.UUID) (models.AdjustmentResult, error) {
	return models.AdjustmentResult{CalorieAdjustment: -150, Reason: "lighter"}, f.err
}

type fakeDevices struct{}

func (fakeDevices) RegisterDevice(_ context.Context, userID uuid.UUID, token string) (*models.Subscription, error) {
	return &models.Subscription{UserID: userID, Channel: models.ChannelSNS, Target: "arn:endpoint/" + token}, nil
}

type harness struct {
	router     *gin.Engine
	verifier   *auth.Verifier
	onboarding *fakeOnboarding
	planner    *fakePlanner
	feedback   *fakeFeedback
	userID     uuid.UUID
	token      string
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	v, err := auth.NewVerifier("test-secret")
	require.NoError(t, err)

	h := &harness{
		verifier:   v,
		onboarding: &fakeOnboarding{},
		planner:    &fakePlanner{},
		feedback:   &fakeFeedback{},
		userID:     uuid.New(),
	}
	h.token, err = v.IssueAccessToken(h.userID, time.Hour)
	require.NoError(t, err)

	if cfg.AllowedOrigins == nil {
		cfg.AllowedOrigins = []string{"http://localhost:5173"}
	}
	h.router = NewAPI(v, h.onboarding, h.planner, h.feedback, cfg, logger.NewNop()).Router()
	return h
}

func (h *harness) do(method, path, body string) *httptest.ResponseRecorder {
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		r.Header.Set("Content-Type", "application/json")
	}
	r.Header.Set("Authorization", "Bearer "+h.token)
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, r)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestHealth(t *testing.T) {
	h := newHarness(t, Config{})
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthRequired(t *testing.T) {
	h := newHarness(t, Config{})

	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/plans/history", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	link, err := h.verifier.IssueLinkToken(h.userID, time.Hour)
	require.NoError(t, err)
	h.token = link
	assert.Equal(t, http.StatusUnauthorized, h.do(http.MethodGet, "/api/plans/history", "").Code)
}

func TestCORS(t *testing.T) {
	h := newHarness(t, Config{})

	r := httptest.NewRequest(http.MethodOptions, "/api/feedback", nil)
	r.Header.Set("Origin", "http://localhost:5173")
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, r)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "PATCH")

	r = httptest.NewRequest(http.MethodGet, "/health", nil)
	r.Header.Set("Origin", "https://evil.example")
	w = httptest.NewRecorder()
	h.router.ServeHTTP(w, r)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRegister(t *testing.T) {
	h := newHarness(t, Config{})

	w := h.do(http.MethodPost, "/api/users/register",
		`{"age":30,"gender":"Male","height":180,"weight":80,"activity_level":"Sedentary","goal":"Weight Loss"}`)
	require.Equal(t, http.StatusOK, w.Code)
	profile := decode(t, w)["profile"].(map[string]interface{})
	assert.Equal(t, h.userID.String(), profile["user_id"])

	h.onboarding.err = &predictor.UpstreamError{Provider: "ml", Status: 500, Err: errors.New("boom")}
	w = h.do(http.MethodPost, "/api/users/register", `{"age":30}`)
	assert.Equal(t, http.StatusBadGateway, w.Code)

	h.onboarding.err = models.ErrInvalidProfile
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPost, "/api/users/register", `{}`).Code)
}

func TestDeleteAccount(t *testing.T) {
	h := newHarness(t, Config{})

	assert.Equal(t, http.StatusOK, h.do(http.MethodDelete, "/api/users/me", "").Code)
	assert.Equal(t, h.userID, h.onboarding.deleted)

	h.onboarding.err = models.ErrNotFound
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodDelete, "/api/users/me", "").Code)
}

func TestGeneratePlan(t *testing.T) {
	h := newHarness(t, Config{})

	w := h.do(http.MethodPost, "/api/plans/generate", "")
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Nil(t, h.planner.lastReq.PlanDate)
	assert.Equal(t, "Plan generated successfully", decode(t, w)["message"])

	w = h.do(http.MethodPost, "/api/plans/generate", `{"planDate":"2024-05-02","isRegeneration":true}`)
	require.Equal(t, http.StatusCreated, w.Code)
	require.NotNil(t, h.planner.lastReq.PlanDate)
	assert.Equal(t, "2024-05-02", h.planner.lastReq.PlanDate.Format(models.DateLayout))
	assert.True(t, h.planner.lastReq.Regenerate)

	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPost, "/api/plans/generate", `{"planDate":"tomorrow"}`).Code)

	h.planner.err = models.ErrIncompleteProfile
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPost, "/api/plans/generate", `{}`).Code)

	h.planner.err = errors.New("connection reset")
	w = h.do(http.MethodPost, "/api/plans/generate", `{}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "connection reset")
}

func TestPlanHistoryAndGet(t *testing.T) {
	h := newHarness(t, Config{})
	h.planner.plans = []models.Plan{}

	w := h.do(http.MethodGet, "/api/plans/history", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[]", strings.TrimSpace(w.Body.String()))

	w = h.do(http.MethodGet, "/api/plans/42", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 42, decode(t, w)["id"])

	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodGet, "/api/plans/abc", "").Code)

	h.planner.err = models.ErrNotFound
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodGet, "/api/plans/7", "").Code)
}

func TestCompleteMeal(t *testing.T) {
	h := newHarness(t, Config{})

	w := h.do(http.MethodPatch, "/api/plans/complete-meal", `{"planId":5,"mealName":"lunch","isCompleted":true}`)
	require.Equal(t, http.StatusOK, w.Code)
	out := decode(t, w)
	assert.EqualValues(t, 3, out["streak"])

	assert.Equal(t, http.StatusBadRequest,
		h.do(http.MethodPatch, "/api/plans/complete-meal", `{"planId":5,"mealName":"brunch","isCompleted":true}`).Code)
	assert.Equal(t, http.StatusBadRequest,
		h.do(http.MethodPatch, "/api/plans/complete-meal", `{"planId":5,"mealName":"lunch"}`).Code)
}

func TestSubmitFeedback(t *testing.T) {
	h := newHarness(t, Config{})

	w := h.do(http.MethodPost, "/api/feedback", `{"satiety":3,"energy":4,"adherence":5}`)
	require.Equal(t, http.StatusCreated, w.Code)
	out := decode(t, w)
	assert.Equal(t, feedback.SubmittedMessage, out["message"])
	assert.EqualValues(t, 4, out["newStreak"])
	assert.Equal(t, 4.0, h.feedback.scores.Energy)

	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPost, "/api/feedback", `{"satiety":3,"energy":4}`).Code)
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPost, "/api/feedback", `{"satiety":9,"energy":4,"adherence":5}`).Code)

	h.feedback.err = models.ErrDuplicateFeedback
	assert.Equal(t, http.StatusConflict, h.do(http.MethodPost, "/api/feedback", `{"satiety":3,"energy":4,"adherence":5}`).Code)
}

func TestPreviewAdjustments(t *testing.T) {
	h := newHarness(t, Config{})

	w := h.do(http.MethodGet, "/api/feedback/adjustments", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, -150, decode(t, w)["calorie_adjustment"])
}

func TestNotificationRoutes(t *testing.T) {
	h := newHarness(t, Config{})
	assert.Equal(t, http.StatusServiceUnavailable, h.do(http.MethodPost, "/api/notifications/devices", `{"token":"abc"}`).Code)
	assert.Equal(t, http.StatusServiceUnavailable, h.do(http.MethodPost, "/api/notifications/telegram-link", "").Code)

	h = newHarness(t, Config{Devices: fakeDevices{}, BotUsername: "coach_bot", LinkTokenTTL: time.Minute})

	w := h.do(http.MethodPost, "/api/notifications/devices", `{"token":"abc"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "arn:endpoint/abc", decode(t, w)["endpoint_arn"])
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPost, "/api/notifications/devices", `{}`).Code)

	w = h.do(http.MethodPost, "/api/notifications/telegram-link", "")
	require.Equal(t, http.StatusOK, w.Code)
	out := decode(t, w)
	assert.Equal(t, "https://t.me/coach_bot", out["link"])

	command := out["command"].(string)
	require.True(t, strings.HasPrefix(command, "/link "))
	linked, err := h.verifier.ParseLinkToken(strings.TrimPrefix(command, "/link "))
	require.NoError(t, err)
	assert.Equal(t, h.userID, linked)
}
