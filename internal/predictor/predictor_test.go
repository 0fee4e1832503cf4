package predictor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"nutrition-coach/internal/models"
	"nutrition-coach/pkg/logger"
)

var sampleAttrs = models.ProfileAttributes{
	Age:           30,
	Gender:        "Male",
	Height:        180,
	Weight:        80,
	ActivityLevel: "Moderately active",
	Goal:          models.GoalWeightLoss,
}

func newML(t *testing.T, h http.HandlerFunc) *MLClient {
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewMLClient(srv.URL+"/", 2*time.Second, logger.Wrap(zaptest.NewLogger(t)))
}

func TestMLClient_Predict(t *testing.T) {
	var got models.ProfileAttributes
	client := newML(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/predict", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"calories": 2350.5, "protein": 180, "carbs": 210, "fat": 65}`))
	})

	targets, err := client.Predict(context.Background(), sampleAttrs)
	require.NoError(t, err)

	assert.Equal(t, sampleAttrs, got)
	assert.Equal(t, models.TargetSet{Calories: 2350.5, Protein: 180, Carbs: 210, Fat: 65}, targets)
}

func TestMLClient_MissingCalories(t *testing.T) {
	client := newML(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"protein": 180}`))
	})

	_, err := client.Predict(context.Background(), sampleAttrs)

	var upstream *UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, ProviderML, upstream.Provider)
	assert.ErrorIs(t, err, ErrMissingCalories)
}

func TestMLClient_ErrorStatus(t *testing.T) {
	client := newML(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"detail": "goal: value is not a valid enumeration member"}`))
	})

	_, err := client.Predict(context.Background(), sampleAttrs)

	var upstream *UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, http.StatusUnprocessableEntity, upstream.Status)
	assert.Contains(t, err.Error(), "not a valid enumeration")
}

func TestMLClient_MalformedBody(t *testing.T) {
	client := newML(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>gateway</html>`))
	})

	_, err := client.Predict(context.Background(), sampleAttrs)

	var upstream *UpstreamError
	assert.ErrorAs(t, err, &upstream)
}

func TestMLClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client := NewMLClient(url, time.Second, logger.NewNop())
	_, err := client.Predict(context.Background(), sampleAttrs)

	var upstream *UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Zero(t, upstream.Status)
}

func TestFormula_Predict(t *testing.T) {
	targets, err := Formula{}.Predict(context.Background(), sampleAttrs)
	require.NoError(t, err)

	// BMR 1780, TDEE 2759, minus 400 for weight loss.
	assert.Equal(t, models.TargetSet{Calories: 2359, Protein: 236, Carbs: 206, Fat: 66}, targets)
}

func TestFormula_CalorieFloor(t *testing.T) {
	attrs := models.ProfileAttributes{
		Age: 80, Gender: "Female", Height: 150, Weight: 40,
		ActivityLevel: "Sedentary", Goal: models.GoalWeightLoss,
	}

	targets, err := Formula{}.Predict(context.Background(), attrs)
	require.NoError(t, err)

	assert.Equal(t, models.TargetSet{Calories: 1200, Protein: 120, Carbs: 105, Fat: 33}, targets)
}

func TestFormula_DefaultSplitForBodybuilding(t *testing.T) {
	attrs := sampleAttrs
	attrs.Goal = models.GoalBodybuilding

	targets, err := Formula{}.Predict(context.Background(), attrs)
	require.NoError(t, err)

	assert.Equal(t, 2759.0, targets.Calories)
	assert.Equal(t, 207.0, targets.Protein)
	assert.Equal(t, 276.0, targets.Carbs)
	assert.Equal(t, 92.0, targets.Fat)
}

func TestFormula_InvalidProfile(t *testing.T) {
	attrs := sampleAttrs
	attrs.ActivityLevel = "Couch"

	_, err := Formula{}.Predict(context.Background(), attrs)
	assert.ErrorIs(t, err, models.ErrInvalidProfile)
}

func TestUpstreamError_Message(t *testing.T) {
	err := &UpstreamError{Provider: "gpt", Err: errors.New("timeout")}
	assert.Equal(t, "gpt predictor: timeout", err.Error())

	err = &UpstreamError{Provider: "ml", Status: 503, Err: errors.New("busy")}
	assert.Equal(t, "ml predictor: status 503: busy", err.Error())
}
