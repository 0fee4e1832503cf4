package predictor

import (
	"context"
	"math"

	"nutrition-coach/internal/models"
)

const ProviderFormula = "formula"

var activityMultipliers = map[string]float64{
	"Sedentary":         1.2,
	"Lightly active":    1.375,
	"Moderately active": 1.55,
	"Very active":       1.725,
}

// goalCalorieDelta is added to TDEE per goal.
var goalCalorieDelta = map[models.Goal]float64{
	models.GoalWeightLoss: -400,
	models.GoalMuscleGain: 300,
	models.GoalCarboCut:   -200,
	models.GoalFatCut:     -300,
}

type macroSplit struct{ protein, carbs, fat float64 }

var goalSplits = map[models.Goal]macroSplit{
	models.GoalWeightLoss: {0.40, 0.35, 0.25},
	models.GoalMuscleGain: {0.45, 0.30, 0.25},
	models.GoalCarboCut:   {0.30, 0.10, 0.60},
	models.GoalFatCut:     {0.35, 0.50, 0.15},
}

var defaultSplit = macroSplit{0.30, 0.40, 0.30}

// Formula predicts targets locally: Mifflin-St Jeor BMR, an activity
// multiplier, a per-goal calorie delta and a per-goal macro split.
type Formula struct{}

func (Formula) Predict(_ context.Context, attrs models.ProfileAttributes) (models.TargetSet, error) {
	if err := attrs.Validate(); err != nil {
		return models.TargetSet{}, err
	}

	bmr := 10*attrs.Weight + 6.25*attrs.Height - 5*float64(attrs.Age)
	switch attrs.Gender {
	case "Male":
		bmr += 5
	case "Female":
		bmr -= 161
	default:
		bmr -= 78
	}

	calories := bmr*activityMultipliers[attrs.ActivityLevel] + goalCalorieDelta[attrs.Goal]
	// Never below 110% of BMR or 1200 kcal.
	calories = math.Max(calories, math.Max(bmr*1.1, 1200))

	split, ok := goalSplits[attrs.Goal]
	if !ok {
		split = defaultSplit
	}

	return models.TargetSet{
		Calories: math.Round(calories),
		Protein:  math.Round(calories * split.protein / 4),
		Carbs:    math.Round(calories * split.carbs / 4),
		Fat:      math.Round(calories * split.fat / 9),
	}, nil
}
