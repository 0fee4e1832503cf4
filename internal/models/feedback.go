package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	MinScore = 1.0
	MaxScore = 5.0
)

// Scores is a daily self-report on a 1-5 scale.
type Scores struct {
	Satiety   float64 `json:"satiety"`
	Energy    float64 `json:"energy"`
	Adherence float64 `json:"adherence"`
}

func (s Scores) Validate() error {
	for name, v := range map[string]float64{
		"satiety":   s.Satiety,
		"energy":    s.Energy,
		"adherence": s.Adherence,
	} {
		if v < MinScore || v > MaxScore {
			return fmt.Errorf("%w: %s must be between %.0f and %.0f", ErrInvalidFeedback, name, MinScore, MaxScore)
		}
	}
	return nil
}

type FeedbackEntry struct {
	ID     int64     `json:"id"`
	UserID uuid.UUID `json:"user_id"`
	Scores
	// Day is the UTC calendar day the entry counts for.
	Day       time.Time `json:"feedback_date"`
	CreatedAt time.Time `json:"created_at"`
}

// AdjustmentResult is a single-step nudge to baseline targets.
type AdjustmentResult struct {
	CalorieAdjustment int    `json:"calorie_adjustment"`
	ProteinAdjustment int    `json:"protein_adjustment"`
	CarbAdjustment    int    `json:"carb_adjustment"`
	FatAdjustment     int    `json:"fat_adjustment"`
	Reason            string `json:"reason"`
}

// Day truncates t to its UTC calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

const DateLayout = "2006-01-02"
