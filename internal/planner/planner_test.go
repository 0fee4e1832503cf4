package planner

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"nutrition-coach/internal/adaptation"
	"nutrition-coach/internal/models"
	"nutrition-coach/pkg/logger"
)

type memStore struct {
	mu       sync.Mutex
	profiles map[uuid.UUID]*models.Profile
	feedback []models.FeedbackEntry
	plans    []*models.Plan
	nextID   int64

	feedbackLimit int
	upsertErr     error
}

func newMemStore() *memStore {
	return &memStore{profiles: map[uuid.UUID]*models.Profile{}}
}

func (m *memStore) GetProfile(_ context.Context, userID uuid.UUID) (*models.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[userID]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memStore) RecentFeedback(_ context.Context, userID uuid.UUID, limit int) ([]models.FeedbackEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.feedbackLimit = limit
	var out []models.FeedbackEntry
	for _, e := range m.feedback {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day.After(out[j].Day) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) UpsertPlan(_ context.Context, plan *models.Plan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upsertErr != nil {
		return m.upsertErr
	}
	for _, p := range m.plans {
		if p.UserID == plan.UserID && p.PlanDate.Equal(plan.PlanDate) {
			p.Data = plan.Data
			plan.ID = p.ID
			plan.CompletedMeals = p.CompletedMeals.Clone()
			return nil
		}
	}
	m.nextID++
	plan.ID = m.nextID
	plan.CompletedMeals = models.NewCompletedMeals()
	cp := *plan
	cp.CompletedMeals = plan.CompletedMeals.Clone()
	m.plans = append(m.plans, &cp)
	return nil
}

func (m *memStore) ListPlans(_ context.Context, userID uuid.UUID) ([]models.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Plan
	for _, p := range m.plans {
		if p.UserID == userID {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PlanDate.After(out[j].PlanDate) })
	return out, nil
}

func (m *memStore) find(userID uuid.UUID, planID int64) *models.Plan {
	for _, p := range m.plans {
		if p.ID == planID && p.UserID == userID {
			return p
		}
	}
	return nil
}

func (m *memStore) GetPlan(_ context.Context, userID uuid.UUID, planID int64) (*models.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.find(userID, planID)
	if p == nil {
		return nil, models.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memStore) UpdateMealCompletion(_ context.Context, userID uuid.UUID, planID int64, apply func(models.CompletedMeals) (models.CompletedMeals, int)) (*models.Plan, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.find(userID, planID)
	profile, ok := m.profiles[userID]
	if p == nil || !ok {
		return nil, 0, models.ErrNotFound
	}
	after, delta := apply(p.CompletedMeals)
	p.CompletedMeals = after
	profile.Streak += delta
	if profile.Streak < 0 {
		profile.Streak = 0
	}
	cp := *p
	return &cp, profile.Streak, nil
}

type recordingAssembler struct {
	targets []models.TargetSet
	goals   []models.Goal
	err     error
}

func (r *recordingAssembler) Assemble(_ context.Context, targets models.TargetSet, goal models.Goal) (models.PlanData, error) {
	r.targets = append(r.targets, targets)
	r.goals = append(r.goals, goal)
	if r.err != nil {
		return models.PlanData{}, r.err
	}
	return models.PlanData{
		Meals:   []models.Meal{{Key: models.MealBreakfast, Name: "Breakfast", Calories: 500}},
		Summary: models.Summary{ActualCalories: 500},
		Targets: targets,
	}, nil
}

var fixedNow = time.Date(2024, 5, 20, 14, 0, 0, 0, time.UTC)

func setup(t *testing.T) (*Service, *memStore, *recordingAssembler, uuid.UUID) {
	store := newMemStore()
	asm := &recordingAssembler{}
	userID := uuid.New()
	store.profiles[userID] = &models.Profile{
		UserID: userID,
		ProfileAttributes: models.ProfileAttributes{
			Age: 30, Gender: "Female", Height: 165, Weight: 60,
			ActivityLevel: "Lightly active", Goal: models.GoalWeightLoss,
		},
		Targets: models.TargetSet{Calories: 1800, Protein: 90},
	}
	svc := NewService(store, asm, 0, logger.Wrap(zaptest.NewLogger(t)))
	svc.now = func() time.Time { return fixedNow }
	return svc, store, asm, userID
}

func addFeedback(store *memStore, userID uuid.UUID, days int, s models.Scores) {
	for i := 0; i < days; i++ {
		store.feedback = append(store.feedback, models.FeedbackEntry{
			ID:     int64(len(store.feedback) + 1),
			UserID: userID,
			Scores: s,
			Day:    models.Day(fixedNow).AddDate(0, 0, -i),
		})
	}
}

func TestFinalTargets(t *testing.T) {
	tests := []struct {
		name string
		base models.TargetSet
		adj  models.AdjustmentResult
		want models.TargetSet
	}{
		{
			name: "floor applies after a negative adjustment",
			base: models.TargetSet{Calories: 1000, Protein: 80},
			adj:  models.AdjustmentResult{CalorieAdjustment: -500},
			want: models.TargetSet{Calories: MinimumCalories, Protein: 80},
		},
		{
			name: "missing bases use defaults",
			adj:  models.AdjustmentResult{CalorieAdjustment: 60, ProteinAdjustment: 15},
			want: models.TargetSet{Calories: 2060, Protein: 135},
		},
		{
			name: "carbs and fat pass through",
			base: models.TargetSet{Calories: 2500, Protein: 150, Carbs: 300, Fat: 70},
			adj:  models.AdjustmentResult{CalorieAdjustment: 100},
			want: models.TargetSet{Calories: 2600, Protein: 150, Carbs: 300, Fat: 70},
		},
		{
			name: "low base is floored even without adjustment",
			base: models.TargetSet{Calories: 900, Protein: 60},
			want: models.TargetSet{Calories: MinimumCalories, Protein: 60},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FinalTargets(tt.base, tt.adj))
		})
	}
}

func TestGenerate_AppliesFeedbackAdjustment(t *testing.T) {
	svc, store, asm, userID := setup(t)
	addFeedback(store, userID, 3, models.Scores{Adherence: 5, Energy: 1.5, Satiety: 5})

	plan, err := svc.Generate(context.Background(), userID, GenerateRequest{})
	require.NoError(t, err)

	require.Len(t, asm.targets, 1)
	assert.Equal(t, models.TargetSet{Calories: 1900, Protein: 90}, asm.targets[0])
	assert.Equal(t, models.GoalWeightLoss, asm.goals[0])
	assert.Equal(t, adaptation.ReasonLowEnergy, plan.Data.Reason)
	assert.Equal(t, models.Day(fixedNow), plan.PlanDate)
	assert.Equal(t, models.NewCompletedMeals(), plan.CompletedMeals)
	assert.NotZero(t, plan.ID)
	assert.Equal(t, DefaultFeedbackWindow, store.feedbackLimit)
}

func TestGenerate_InsufficientHistory(t *testing.T) {
	svc, store, asm, userID := setup(t)
	addFeedback(store, userID, 2, models.Scores{Adherence: 1, Energy: 1, Satiety: 1})

	plan, err := svc.Generate(context.Background(), userID, GenerateRequest{})
	require.NoError(t, err)

	assert.Equal(t, models.TargetSet{Calories: 1800, Protein: 90}, asm.targets[0])
	assert.Equal(t, adaptation.ReasonInsufficientData, plan.Data.Reason)
}

func TestGenerate_RegenerateSkipsAdaptation(t *testing.T) {
	svc, store, asm, userID := setup(t)
	addFeedback(store, userID, 5, models.Scores{Adherence: 4, Energy: 1, Satiety: 4})

	plan, err := svc.Generate(context.Background(), userID, GenerateRequest{Regenerate: true})
	require.NoError(t, err)

	assert.Equal(t, models.TargetSet{Calories: 1800, Protein: 90}, asm.targets[0])
	assert.Equal(t, ReasonRegenerated, plan.Data.Reason)
	assert.Zero(t, store.feedbackLimit)
}

func TestGenerate_RegenerationKeepsCompletionState(t *testing.T) {
	svc, store, _, userID := setup(t)
	ctx := context.Background()

	first, err := svc.Generate(ctx, userID, GenerateRequest{})
	require.NoError(t, err)
	_, err = svc.SetMealCompletion(ctx, userID, first.ID, models.MealLunch, true)
	require.NoError(t, err)

	second, err := svc.Generate(ctx, userID, GenerateRequest{Regenerate: true})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.True(t, second.CompletedMeals[models.MealLunch])
	assert.Len(t, store.plans, 1)
}

func TestGenerate_ExplicitPlanDate(t *testing.T) {
	svc, _, _, userID := setup(t)
	date := time.Date(2024, 6, 1, 18, 45, 0, 0, time.UTC)

	plan, err := svc.Generate(context.Background(), userID, GenerateRequest{PlanDate: &date})
	require.NoError(t, err)

	assert.Equal(t, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), plan.PlanDate)
}

func TestGenerate_ProfileErrors(t *testing.T) {
	svc, store, asm, userID := setup(t)

	_, err := svc.Generate(context.Background(), uuid.New(), GenerateRequest{})
	assert.ErrorIs(t, err, models.ErrNotFound)

	store.profiles[userID].Age = 0
	_, err = svc.Generate(context.Background(), userID, GenerateRequest{})
	assert.ErrorIs(t, err, models.ErrIncompleteProfile)

	assert.Empty(t, asm.targets)
}

func TestGenerate_StoreFailure(t *testing.T) {
	svc, store, _, userID := setup(t)
	store.upsertErr = errors.New("disk full")

	_, err := svc.Generate(context.Background(), userID, GenerateRequest{})
	assert.ErrorContains(t, err, "disk full")
}

func TestSetMealCompletion_StreakFollowsFullCompletion(t *testing.T) {
	svc, store, _, userID := setup(t)
	ctx := context.Background()
	plan, err := svc.Generate(ctx, userID, GenerateRequest{})
	require.NoError(t, err)

	var res *CompletionResult
	for _, meal := range models.MealKeys {
		res, err = svc.SetMealCompletion(ctx, userID, plan.ID, meal, true)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, res.Streak)
	assert.Equal(t, 1, store.profiles[userID].Streak)

	res, err = svc.SetMealCompletion(ctx, userID, plan.ID, models.MealDinner, true)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Streak)

	res, err = svc.SetMealCompletion(ctx, userID, plan.ID, models.MealDinner, false)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Streak)
	assert.False(t, res.Plan.CompletedMeals[models.MealDinner])
	assert.Zero(t, store.profiles[userID].CheckinStreak)
}

func TestSetMealCompletion_UnknownMeal(t *testing.T) {
	svc, _, _, userID := setup(t)

	_, err := svc.SetMealCompletion(context.Background(), userID, 1, "snack", true)
	assert.ErrorIs(t, err, models.ErrUnknownMeal)
}

func TestSetMealCompletion_ForeignPlan(t *testing.T) {
	svc, store, _, userID := setup(t)
	plan, err := svc.Generate(context.Background(), userID, GenerateRequest{})
	require.NoError(t, err)

	other := uuid.New()
	store.profiles[other] = &models.Profile{UserID: other}

	_, err = svc.SetMealCompletion(context.Background(), other, plan.ID, models.MealLunch, true)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestHistoryAndGet(t *testing.T) {
	svc, _, _, userID := setup(t)
	ctx := context.Background()
	for _, d := range []int{1, 3, 2} {
		date := time.Date(2024, 6, d, 0, 0, 0, 0, time.UTC)
		_, err := svc.Generate(ctx, userID, GenerateRequest{PlanDate: &date})
		require.NoError(t, err)
	}

	plans, err := svc.History(ctx, userID)
	require.NoError(t, err)
	require.Len(t, plans, 3)
	assert.Equal(t, 3, plans[0].PlanDate.Day())
	assert.Equal(t, 1, plans[2].PlanDate.Day())

	got, err := svc.Get(ctx, userID, plans[1].ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.PlanDate.Day())

	_, err = svc.Get(ctx, uuid.New(), plans[1].ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
}
