package predictor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"nutrition-coach/internal/models"
	"nutrition-coach/pkg/logger"
)

const ProviderML = "ml"

// MLClient calls the prediction service's POST /predict endpoint.
type MLClient struct {
	client  *http.Client
	baseURL string
	logger  *logger.Logger
}

func NewMLClient(baseURL string, timeout time.Duration, l *logger.Logger) *MLClient {
	return &MLClient{
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  l,
	}
}

func (c *MLClient) Predict(ctx context.Context, attrs models.ProfileAttributes) (models.TargetSet, error) {
	body, err := json.Marshal(attrs)
	if err != nil {
		return models.TargetSet{}, fmt.Errorf("failed to encode profile: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/predict", bytes.NewReader(body))
	if err != nil {
		return models.TargetSet{}, fmt.Errorf("failed to build predict request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Errorw("Error calling ML service", "url", req.URL.String(), "error", err)
		return models.TargetSet{}, &UpstreamError{Provider: ProviderML, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.TargetSet{}, &UpstreamError{Provider: ProviderML, Status: resp.StatusCode, Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Errorw("ML service returned an error", "status", resp.StatusCode, "body", preview(raw))
		return models.TargetSet{}, &UpstreamError{
			Provider: ProviderML,
			Status:   resp.StatusCode,
			Err:      fmt.Errorf("unexpected response: %s", preview(raw)),
		}
	}

	var p Prediction
	if err := json.Unmarshal(raw, &p); err != nil {
		return models.TargetSet{}, &UpstreamError{Provider: ProviderML, Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	targets, err := p.Targets()
	if err != nil {
		c.logger.Errorw("ML service returned an unexpected response format", "body", preview(raw))
		return models.TargetSet{}, &UpstreamError{Provider: ProviderML, Status: resp.StatusCode, Err: err}
	}

	c.logger.Infow("Received targets from ML service", "calories", targets.Calories, "protein", targets.Protein)
	return targets, nil
}

func preview(b []byte) string {
	s := string(b)
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}
