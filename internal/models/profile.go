// internal/models/profile.go
package models

import (
	"time"

	"github.com/google/uuid"
)

type Goal string

const (
	GoalWeightLoss   Goal = "Weight Loss"
	GoalMuscleGain   Goal = "Muscle Gain"
	GoalCarboCut     Goal = "Carbo-Cut Diet"
	GoalFatCut       Goal = "Fat Cut Diet"
	GoalBodybuilding Goal = "Bodybuilding"
)

var validGoals = map[Goal]bool{
	GoalWeightLoss:   true,
	GoalMuscleGain:   true,
	GoalCarboCut:     true,
	GoalFatCut:       true,
	GoalBodybuilding: true,
}

func (g Goal) Valid() bool { return validGoals[g] }

var validGenders = map[string]bool{"Male": true, "Female": true, "Other": true}

var validActivityLevels = map[string]bool{
	"Sedentary":         true,
	"Lightly active":    true,
	"Moderately active": true,
	"Very active":       true,
}

// TargetSet holds daily nutrition targets. A zero field means unset.
type TargetSet struct {
	Calories float64 `json:"calories"`
	Protein  float64 `json:"protein"`
	Carbs    float64 `json:"carbs"`
	Fat      float64 `json:"fat"`
}

// ProfileAttributes is what the user submits at onboarding and what the
// nutrition predictor consumes.
type ProfileAttributes struct {
	Age           int     `json:"age"`
	Gender        string  `json:"gender"`
	Height        float64 `json:"height"`
	Weight        float64 `json:"weight"`
	ActivityLevel string  `json:"activity_level"`
	Goal          Goal    `json:"goal"`
}

func (a ProfileAttributes) Validate() error {
	switch {
	case a.Age <= 0:
		return invalidProfile("age must be positive")
	case a.Height <= 0:
		return invalidProfile("height must be positive")
	case a.Weight <= 0:
		return invalidProfile("weight must be positive")
	case !validGenders[a.Gender]:
		return invalidProfile("unknown gender %q", a.Gender)
	case !validActivityLevels[a.ActivityLevel]:
		return invalidProfile("unknown activity level %q", a.ActivityLevel)
	case !a.Goal.Valid():
		return invalidProfile("unknown goal %q", a.Goal)
	}
	return nil
}

type Profile struct {
	UserID uuid.UUID `json:"user_id"`
	ProfileAttributes
	Targets TargetSet `json:"targets"`
	// Streak counts days whose plan was fully completed.
	Streak int `json:"streak"`
	// CheckinStreak counts consecutive days with submitted feedback.
	CheckinStreak int       `json:"checkin_streak"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Complete reports whether the profile carries enough to generate a plan.
func (p *Profile) Complete() bool {
	return p.Age > 0 && p.Goal != ""
}
