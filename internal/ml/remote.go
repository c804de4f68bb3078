package ml

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultRemoteTimeout bounds a single remote inference call
const DefaultRemoteTimeout = 5 * time.Second

// RemoteModel calls a model served over HTTP. The request body is
// {"instances": [[x...]]} and the response {"predictions": [y]}.
// Inference is never retried: a failed call fails that prediction only.
type RemoteModel struct {
	endpoint string
	client   *http.Client
}

// NewRemoteModel creates a client for the inference endpoint
func NewRemoteModel(endpoint string, timeout time.Duration) *RemoteModel {
	if timeout <= 0 {
		timeout = DefaultRemoteTimeout
	}
	return &RemoteModel{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

type predictRequest struct {
	Instances [][]float64 `json:"instances"`
}

type predictResponse struct {
	Predictions []float64 `json:"predictions"`
	Error       string    `json:"error,omitempty"`
}

// Predict implements Predictor
func (m *RemoteModel) Predict(ctx context.Context, x []float64) (float64, error) {
	body, err := json.Marshal(predictRequest{Instances: [][]float64{x}})
	if err != nil {
		return 0, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("inference request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, fmt.Errorf("read response: %w", err)
	}

	var out predictResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return 0, fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("inference endpoint returned %d: %s", resp.StatusCode, out.Error)
	}
	if len(out.Predictions) != 1 {
		return 0, fmt.Errorf("inference endpoint returned %d predictions, want 1", len(out.Predictions))
	}
	return out.Predictions[0], nil
}

// Ping checks that a health URL answers with a 2xx status
func (m *RemoteModel) Ping(ctx context.Context, healthURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, healthURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("health check: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("health check returned %d", resp.StatusCode)
	}
	return nil
}
