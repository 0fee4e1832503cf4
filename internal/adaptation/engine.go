// Package adaptation turns a window of daily feedback into a bounded nudge
// to a user's nutrition targets.
package adaptation

import (
	"fmt"
	"math"

	"nutrition-coach/internal/models"
)

const (
	LowScoreThreshold  = 2.5
	HighScoreThreshold = 4.0

	CalorieAdjustmentAmount = 100
	ProteinAdjustmentAmount = 15

	// kcal per gram of protein
	proteinCalories = 4

	MinimumFeedbackDays = 3
)

const (
	ReasonMaintaining  = "Your plan is working well. We're keeping your targets consistent."
	ReasonLowAdherence = "We've noticed sticking to the plan has been a challenge. To help build consistency, we're keeping your targets the same for now."
	ReasonLowEnergy    = "Your energy levels seem a bit low. We're adding some calories to help fuel your day."
	ReasonHunger       = "To help with recent feelings of hunger, we've increased your protein and overall calories slightly."
	ReasonDoingGreat   = "You're doing great! Your feedback is consistently positive, so we're maintaining your current targets."
	reasonNeedMoreFmt  = "We need at least %d days of feedback to make smart adjustments. Keep up the great work!"
)

// ReasonInsufficientData is returned while fewer than MinimumFeedbackDays
// entries exist.
var ReasonInsufficientData = fmt.Sprintf(reasonNeedMoreFmt, MinimumFeedbackDays)

// Averages are the mean scores over a feedback window.
type Averages struct {
	Satiety   float64
	Energy    float64
	Adherence float64
}

func Average(history []models.Scores) Averages {
	var a Averages
	if len(history) == 0 {
		return a
	}
	for _, s := range history {
		a.Satiety += s.Satiety
		a.Energy += s.Energy
		a.Adherence += s.Adherence
	}
	n := float64(len(history))
	a.Satiety /= n
	a.Energy /= n
	a.Adherence /= n
	return a
}

// CalculateAdjustments applies the first matching rule of the priority chain
// to the mean scores of history. The caller chooses the window; every entry
// supplied is averaged.
func CalculateAdjustments(history []models.Scores) models.AdjustmentResult {
	if len(history) < MinimumFeedbackDays {
		return models.AdjustmentResult{Reason: ReasonInsufficientData}
	}

	avg := Average(history)

	switch {
	case avg.Adherence < LowScoreThreshold:
		return models.AdjustmentResult{Reason: ReasonLowAdherence}
	case avg.Energy < LowScoreThreshold:
		return models.AdjustmentResult{
			CalorieAdjustment: CalorieAdjustmentAmount,
			Reason:            ReasonLowEnergy,
		}
	case avg.Satiety < LowScoreThreshold:
		return models.AdjustmentResult{
			ProteinAdjustment: ProteinAdjustmentAmount,
			CalorieAdjustment: int(math.Round(ProteinAdjustmentAmount * proteinCalories)),
			Reason:            ReasonHunger,
		}
	case avg.Energy > HighScoreThreshold && avg.Satiety > HighScoreThreshold:
		return models.AdjustmentResult{Reason: ReasonDoingGreat}
	default:
		return models.AdjustmentResult{Reason: ReasonMaintaining}
	}
}

// ScoresOf projects feedback entries onto their scores, keeping order.
func ScoresOf(entries []models.FeedbackEntry) []models.Scores {
	out := make([]models.Scores, len(entries))
	for i, e := range entries {
		out[i] = e.Scores
	}
	return out
}
