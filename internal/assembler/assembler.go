// Package assembler builds a three-meal day plan from the food catalog.
//
// Each meal is filled greedily: components are drawn one slot at a time
// until the meal passes 85% of its calorie share or holds three components.
// There is no backtracking; the pick among the best candidates is random so
// that regenerating a plan yields different meals.
package assembler

import (
	"context"
	"fmt"
	"math"
	"strings"

	"golang.org/x/sync/errgroup"

	"nutrition-coach/internal/models"
	"nutrition-coach/pkg/logger"
)

const (
	MaxComponents = 3
	// StopRatio is the share of a meal's calorie target after which no
	// further components are added.
	StopRatio = 0.85
	// CandidateLimit bounds the ranked list a component is drawn from.
	CandidateLimit = 50
)

// Catalog is the read-only food database.
type Catalog interface {
	QueryFoods(ctx context.Context, q models.FoodQuery) ([]models.FoodItem, error)
}

// RandSource picks an index in [0, n).
type RandSource interface {
	IntN(n int) int
}

type Assembler struct {
	catalog Catalog
	rand    RandSource
	logger  *logger.Logger
}

type Option func(*Assembler)

// WithRand replaces the default process-wide random source.
func WithRand(r RandSource) Option {
	return func(a *Assembler) { a.rand = r }
}

func New(catalog Catalog, l *logger.Logger, opts ...Option) *Assembler {
	a := &Assembler{
		catalog: catalog,
		rand:    globalRand{},
		logger:  l,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// MealTargets splits daily calories 30/40/30 across breakfast, lunch and dinner.
func MealTargets(dailyCalories float64) map[string]float64 {
	out := make(map[string]float64, len(mealShares))
	for meal, pct := range mealShares {
		out[meal] = dailyCalories * float64(pct) / 100
	}
	return out
}

// Assemble builds breakfast, lunch and dinner concurrently and sums the
// meals that found at least one component.
func (a *Assembler) Assemble(ctx context.Context, targets models.TargetSet, goal models.Goal) (models.PlanData, error) {
	a.logger.Infow("Assembling meal plan", "calories", targets.Calories, "protein", targets.Protein, "goal", goal)

	split := MealTargets(targets.Calories)
	meals := make([]models.Meal, len(models.MealKeys))

	g, gctx := errgroup.WithContext(ctx)
	for i, key := range models.MealKeys {
		i, key := i, key
		g.Go(func() error {
			meal, err := a.ConstructMeal(gctx, key, split[key], goal)
			if err != nil {
				return err
			}
			meals[i] = meal
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return models.PlanData{}, fmt.Errorf("failed to assemble plan: %w", err)
	}

	plan := models.PlanData{
		Meals:   meals,
		Summary: Summarize(meals),
		Targets: targets,
	}
	a.logger.Infow("Assembled meal plan",
		"actual_calories", plan.Summary.ActualCalories,
		"actual_protein", plan.Summary.ActualProtein)
	return plan, nil
}

// Summarize totals the nutrition of all non-fallback meals.
func Summarize(meals []models.Meal) models.Summary {
	var s models.Summary
	for _, m := range meals {
		if m.Fallback {
			continue
		}
		s.ActualCalories += m.Calories
		s.ActualProtein += m.Protein
		s.ActualCarbs += m.Carbs
		s.ActualFat += m.Fat
	}
	return s
}

// ConstructMeal fills one meal toward targetCalories. Catalog failures are
// logged and skipped; only context cancellation is returned as an error.
func (a *Assembler) ConstructMeal(ctx context.Context, mealKey string, targetCalories float64, goal models.Goal) (models.Meal, error) {
	var (
		items                          []models.MealComponent
		calories, protein, carbs, fats float64
	)

	for _, s := range slotsFor(mealKey, goal) {
		if calories > targetCalories*StopRatio || len(items) >= MaxComponents {
			break
		}
		if err := ctx.Err(); err != nil {
			return models.Meal{}, err
		}

		food, ok := a.pick(ctx, mealKey, s, goal, chosen(items))
		if !ok {
			continue
		}

		scale := float64(s.category.grams) / 100
		items = append(items, models.MealComponent{
			Food:     food.Name,
			Quantity: fmt.Sprintf("~%dg", s.category.grams),
			Grams:    s.category.grams,
		})
		calories += food.CaloricValue * scale
		protein += models.Value(food.Protein) * scale
		carbs += models.Value(food.Carbohydrates) * scale
		fats += models.Value(food.Fats) * scale
	}

	if len(items) == 0 {
		a.logger.Warnw("No catalog match for meal, using fallback", "meal", mealKey, "goal", goal)
		return models.Meal{
			Key:      mealKey,
			Name:     fmt.Sprintf("No suitable %s found.", mealKey),
			Items:    []models.MealComponent{},
			Fallback: true,
		}, nil
	}

	return models.Meal{
		Key:      mealKey,
		Name:     strings.ToUpper(mealKey[:1]) + mealKey[1:],
		Items:    items,
		Calories: int(math.Round(calories)),
		Protein:  int(math.Round(protein)),
		Carbs:    int(math.Round(carbs)),
		Fat:      int(math.Round(fats)),
	}, nil
}

func (a *Assembler) pick(ctx context.Context, mealKey string, s slot, goal models.Goal, exclude []string) (models.FoodItem, bool) {
	candidates, err := a.catalog.QueryFoods(ctx, models.FoodQuery{
		Keywords: s.keywords,
		Exclude:  exclude,
		Sort:     SortFor(goal),
		Limit:    CandidateLimit,
	})
	if err != nil {
		a.logger.Errorw("Failed to fetch meal component",
			"meal", mealKey, "category", s.category.name, "goal", goal, "error", err)
		return models.FoodItem{}, false
	}
	if len(candidates) == 0 {
		return models.FoodItem{}, false
	}
	return candidates[a.rand.IntN(len(candidates))], true
}

func chosen(items []models.MealComponent) []string {
	names := make([]string, len(items))
	for i, it := range items {
		names[i] = it.Food
	}
	return names
}
