// Package planner turns a profile and its recent feedback into a stored day
// plan, and tracks which meals of a plan were eaten.
package planner

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"nutrition-coach/internal/adaptation"
	"nutrition-coach/internal/models"
	"nutrition-coach/internal/streak"
	"nutrition-coach/pkg/logger"
)

const (
	DefaultCalories = 2000
	DefaultProtein  = 120
	// MinimumCalories is applied after every adjustment.
	MinimumCalories = 1200

	DefaultFeedbackWindow = 7

	ReasonRegenerated = "Your plan has been re-generated with new meal options."
)

type Store interface {
	GetProfile(ctx context.Context, userID uuid.UUID) (*models.Profile, error)
	// RecentFeedback returns up to limit entries, most recent first.
	RecentFeedback(ctx context.Context, userID uuid.UUID, limit int) ([]models.FeedbackEntry, error)
	// UpsertPlan stores plan by (user, plan date), keeping the completion
	// state of an existing row, and fills in the stored fields.
	UpsertPlan(ctx context.Context, plan *models.Plan) error
	ListPlans(ctx context.Context, userID uuid.UUID) ([]models.Plan, error)
	GetPlan(ctx context.Context, userID uuid.UUID, planID int64) (*models.Plan, error)
	// UpdateMealCompletion runs apply on the stored completion state and
	// persists its result together with the streak delta it returns, in one
	// transaction. It returns the updated plan and the new streak.
	UpdateMealCompletion(ctx context.Context, userID uuid.UUID, planID int64, apply func(models.CompletedMeals) (models.CompletedMeals, int)) (*models.Plan, int, error)
}

type Assembler interface {
	Assemble(ctx context.Context, targets models.TargetSet, goal models.Goal) (models.PlanData, error)
}

type GenerateRequest struct {
	// PlanDate defaults to today (UTC).
	PlanDate   *time.Time
	Regenerate bool
}

type CompletionResult struct {
	Plan   *models.Plan `json:"plan"`
	Streak int          `json:"streak"`
}

type Service struct {
	store     Store
	assembler Assembler
	logger    *logger.Logger
	window    int
	now       func() time.Time
}

func NewService(store Store, assembler Assembler, feedbackWindow int, l *logger.Logger) *Service {
	if feedbackWindow <= 0 {
		feedbackWindow = DefaultFeedbackWindow
	}
	return &Service{
		store:     store,
		assembler: assembler,
		logger:    l,
		window:    feedbackWindow,
		now:       time.Now,
	}
}

// FinalTargets applies adj to the stored base targets. Missing calorie and
// protein bases fall back to defaults; the calorie floor is applied last.
func FinalTargets(base models.TargetSet, adj models.AdjustmentResult) models.TargetSet {
	calories := base.Calories
	if calories == 0 {
		calories = DefaultCalories
	}
	protein := base.Protein
	if protein == 0 {
		protein = DefaultProtein
	}

	out := models.TargetSet{
		Calories: calories + float64(adj.CalorieAdjustment),
		Protein:  protein + float64(adj.ProteinAdjustment),
		Carbs:    base.Carbs + float64(adj.CarbAdjustment),
		Fat:      base.Fat + float64(adj.FatAdjustment),
	}
	if out.Calories < MinimumCalories {
		out.Calories = MinimumCalories
	}
	return out
}

// Generate builds and stores the plan for one day, replacing any plan the
// user already has for that day.
func (s *Service) Generate(ctx context.Context, userID uuid.UUID, req GenerateRequest) (*models.Plan, error) {
	profile, err := s.store.GetProfile(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}
	if !profile.Complete() {
		return nil, models.ErrIncompleteProfile
	}

	planDate := models.Day(s.now())
	if req.PlanDate != nil {
		planDate = models.Day(*req.PlanDate)
	}

	adj := models.AdjustmentResult{Reason: ReasonRegenerated}
	if !req.Regenerate {
		history, err := s.store.RecentFeedback(ctx, userID, s.window)
		if err != nil {
			s.logger.Errorw("Failed to load feedback history",
				"user_id", userID, "plan_date", planDate.Format(models.DateLayout), "error", err)
			return nil, fmt.Errorf("failed to load feedback history: %w", err)
		}
		adj = adaptation.CalculateAdjustments(adaptation.ScoresOf(history))
	}

	targets := FinalTargets(profile.Targets, adj)
	data, err := s.assembler.Assemble(ctx, targets, profile.Goal)
	if err != nil {
		return nil, err
	}
	data.Reason = adj.Reason

	plan := &models.Plan{
		UserID:   userID,
		PlanDate: planDate,
		Data:     data,
	}
	if err := s.store.UpsertPlan(ctx, plan); err != nil {
		s.logger.Errorw("Failed to save plan",
			"user_id", userID, "plan_date", planDate.Format(models.DateLayout), "error", err)
		return nil, fmt.Errorf("failed to save plan: %w", err)
	}

	s.logger.Infow("Generated plan",
		"user_id", userID,
		"plan_id", plan.ID,
		"plan_date", planDate.Format(models.DateLayout),
		"calories", targets.Calories,
		"regenerated", req.Regenerate,
		"reason", adj.Reason)
	return plan, nil
}

// History lists the user's plans, newest plan date first.
func (s *Service) History(ctx context.Context, userID uuid.UUID) ([]models.Plan, error) {
	plans, err := s.store.ListPlans(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	return plans, nil
}

func (s *Service) Get(ctx context.Context, userID uuid.UUID, planID int64) (*models.Plan, error) {
	plan, err := s.store.GetPlan(ctx, userID, planID)
	if err != nil {
		return nil, fmt.Errorf("failed to get plan %d: %w", planID, err)
	}
	return plan, nil
}

// SetMealCompletion marks one meal of a plan as eaten or not and moves the
// completion streak when the plan crosses fully completed.
func (s *Service) SetMealCompletion(ctx context.Context, userID uuid.UUID, planID int64, meal string, done bool) (*CompletionResult, error) {
	if !models.KnownMeal(meal) {
		return nil, fmt.Errorf("%w: %q", models.ErrUnknownMeal, meal)
	}

	var delta streak.Delta
	plan, streakValue, err := s.store.UpdateMealCompletion(ctx, userID, planID,
		func(before models.CompletedMeals) (models.CompletedMeals, int) {
			var after models.CompletedMeals
			after, delta = streak.Toggle(before, meal, done)
			return after, int(delta)
		})
	if err != nil {
		s.logger.Errorw("Failed to update meal completion",
			"user_id", userID, "plan_id", planID, "meal", meal, "error", err)
		return nil, fmt.Errorf("failed to update meal completion: %w", err)
	}

	if delta != streak.NoChange {
		s.logger.Infow("Completion streak changed",
			"user_id", userID, "plan_id", planID, "delta", int(delta), "streak", streakValue)
	}
	return &CompletionResult{Plan: plan, Streak: streakValue}, nil
}
