// Package predictor computes a user's baseline daily targets from their
// onboarding attributes.
package predictor

import (
	"context"
	"errors"
	"fmt"

	"nutrition-coach/internal/models"
)

type Predictor interface {
	Predict(ctx context.Context, attrs models.ProfileAttributes) (models.TargetSet, error)
}

// ErrMissingCalories is returned when a provider answers without a usable
// calorie target.
var ErrMissingCalories = errors.New("prediction has no calories")

// UpstreamError reports a failed or malformed answer from a remote provider.
type UpstreamError struct {
	Provider string
	// Status is the HTTP status, zero when the request never completed.
	Status int
	Err    error
}

func (e *UpstreamError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s predictor: status %d: %v", e.Provider, e.Status, e.Err)
	}
	return fmt.Sprintf("%s predictor: %v", e.Provider, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Prediction is the wire shape shared by the remote providers. Calories is
// a pointer so that an absent field can be told apart from zero.
type Prediction struct {
	Calories *float64 `json:"calories"`
	Protein  float64  `json:"protein"`
	Carbs    float64  `json:"carbs"`
	Fat      float64  `json:"fat"`
}

// Targets validates p and converts it.
func (p Prediction) Targets() (models.TargetSet, error) {
	if p.Calories == nil || *p.Calories <= 0 {
		return models.TargetSet{}, ErrMissingCalories
	}
	return models.TargetSet{
		Calories: *p.Calories,
		Protein:  p.Protein,
		Carbs:    p.Carbs,
		Fat:      p.Fat,
	}, nil
}
