package gpt

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nutrition-coach/internal/models"
	"nutrition-coach/internal/predictor"
)

func fakeOpenAI(t *testing.T, answer string) (*Client, *openai.ChatCompletionRequest) {
	var got openai.ChatCompletionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"id":"chatcmpl-1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":%q},"finish_reason":"stop"}]}`, answer)
	}))
	t.Cleanup(srv.Close)

	return NewClientWithBaseURL("test-key", srv.URL).WithModel("gpt-test"), &got
}

var attrs = models.ProfileAttributes{
	Age: 28, Gender: "Female", Height: 168, Weight: 62,
	ActivityLevel: "Very active", Goal: models.GoalMuscleGain,
}

func TestPredict(t *testing.T) {
	client, req := fakeOpenAI(t, `{"calories": 2400, "protein": 150, "carbs": 260, "fat": 70}`)

	targets, err := client.Predict(context.Background(), attrs)
	require.NoError(t, err)

	assert.Equal(t, models.TargetSet{Calories: 2400, Protein: 150, Carbs: 260, Fat: 70}, targets)
	assert.Equal(t, "gpt-test", req.Model)
	require.Len(t, req.Messages, 2)
	assert.Contains(t, req.Messages[1].Content, "Goal: Muscle Gain")
	require.NotNil(t, req.ResponseFormat)
	assert.Equal(t, openai.ChatCompletionResponseFormatTypeJSONObject, req.ResponseFormat.Type)
}

func TestPredict_MissingCalories(t *testing.T) {
	client, _ := fakeOpenAI(t, `{"protein": 150}`)

	_, err := client.Predict(context.Background(), attrs)

	var upstream *predictor.UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, Provider, upstream.Provider)
	assert.ErrorIs(t, err, predictor.ErrMissingCalories)
}

func TestPredict_NotJSON(t *testing.T) {
	client, _ := fakeOpenAI(t, "About 2000 calories should do.")

	_, err := client.Predict(context.Background(), attrs)

	var upstream *predictor.UpstreamError
	assert.ErrorAs(t, err, &upstream)
}

func TestWithModel_IgnoresEmpty(t *testing.T) {
	c := NewClient("k").WithModel("")
	assert.Equal(t, openai.GPT4oMini, c.model)
}
