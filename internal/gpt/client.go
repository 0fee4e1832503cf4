// internal/gpt/client.go
package gpt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	"nutrition-coach/internal/models"
	"nutrition-coach/internal/predictor"
)

const Provider = "gpt"

type Client struct {
	client *openai.Client
	model  string
}

func NewClient(apiKey string) *Client {
	return &Client{
		client: openai.NewClient(apiKey),
		model:  openai.GPT4oMini,
	}
}

// NewClientWithBaseURL points the client at an OpenAI-compatible endpoint.
func NewClientWithBaseURL(apiKey, baseURL string) *Client {
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL
	return &Client{
		client: openai.NewClientWithConfig(cfg),
		model:  openai.GPT4oMini,
	}
}

func (c *Client) WithModel(model string) *Client {
	if model != "" {
		c.model = model
	}
	return c
}

const systemPrompt = "You are an experienced dietitian. Estimate daily nutrition targets for the user " +
	"and answer with a single JSON object with numeric fields calories (kcal), protein, carbs and fat (grams)."

// Predict asks the model for baseline daily targets.
func (c *Client) Predict(ctx context.Context, attrs models.ProfileAttributes) (models.TargetSet, error) {
	prompt := fmt.Sprintf(
		"Profile:\n"+
			"- Age: %d\n"+
			"- Gender: %s\n"+
			"- Height: %.0f cm\n"+
			"- Weight: %.1f kg\n"+
			"- Activity level: %s\n"+
			"- Goal: %s\n\n"+
			"Never go below 1200 kcal.",
		attrs.Age, attrs.Gender, attrs.Height, attrs.Weight, attrs.ActivityLevel, attrs.Goal,
	)

	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: systemPrompt,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		MaxTokens:   200,
		Temperature: 0.2,
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return models.TargetSet{}, &predictor.UpstreamError{Provider: Provider, Err: err}
	}

	if len(resp.Choices) == 0 {
		return models.TargetSet{}, &predictor.UpstreamError{Provider: Provider, Err: fmt.Errorf("no response from GPT API")}
	}

	var p predictor.Prediction
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(content), &p); err != nil {
		return models.TargetSet{}, &predictor.UpstreamError{Provider: Provider, Err: fmt.Errorf("decode answer: %w", err)}
	}

	targets, err := p.Targets()
	if err != nil {
		return models.TargetSet{}, &predictor.UpstreamError{Provider: Provider, Err: err}
	}
	return targets, nil
}
