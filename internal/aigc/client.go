// Package aigc is the client for the external rewrite provider. The provider
// is consumed strictly through its submit/status/download REST contract.
package aigc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/writepro/writepro/internal/apperrors"
	"go.uber.org/zap"
)

// Task status values reported by the rewrite provider
const (
	TaskStatusSubmitted  = "submitted"
	TaskStatusProcessing = "processing"
	TaskStatusCompleted  = "completed"
	TaskStatusFailed     = "failed"
)

// TaskStatus is the provider's report for one rewrite task
type TaskStatus struct {
	Status          string   `json:"status"`
	AIDetectionRate *float64 `json:"ai_detection_rate,omitempty"`
	Message         string   `json:"message,omitempty"`
}

// Client is the submit/poll/download contract against the rewrite provider
type Client interface {
	// Submit sends text for rewriting and returns the provider task id
	Submit(ctx context.Context, text, rewriteType, language string) (string, error)

	// Status reports the current state of a task. Transport errors are
	// transient: callers keep polling within their budget.
	Status(ctx context.Context, taskID string) (*TaskStatus, error)

	// Download fetches the rewritten artifact bytes of a completed task
	Download(ctx context.Context, taskID string) ([]byte, error)
}

// Config holds rewrite client configuration
type Config struct {
	BaseURL         string
	SubmitTimeout   time.Duration
	StatusTimeout   time.Duration
	DownloadTimeout time.Duration
}

// HTTPClient implements Client over the provider's REST API
type HTTPClient struct {
	cfg        Config
	httpClient *http.Client
	logger     *zap.Logger
}

// NewHTTPClient creates a new rewrite service client
func NewHTTPClient(cfg Config, logger *zap.Logger) *HTTPClient {
	return &HTTPClient{
		cfg:        cfg,
		httpClient: &http.Client{},
		logger:     logger,
	}
}

type submitRequest struct {
	Text        string `json:"text"`
	RewriteType string `json:"rewrite_type"`
	Language    string `json:"language"`
}

type submitResponse struct {
	TaskID string `json:"task_id"`
}

// Submit sends text for rewriting and returns the provider task id
func (c *HTTPClient) Submit(ctx context.Context, text, rewriteType, language string) (string, error) {
	body, err := json.Marshal(submitRequest{
		Text:        text,
		RewriteType: rewriteType,
		Language:    language,
	})
	if err != nil {
		return "", fmt.Errorf("%w: failed to encode request: %v", apperrors.ErrSubmission, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.SubmitTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/api/rewrite/submit", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: %v", apperrors.ErrSubmission, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("Rewrite submission failed", zap.Error(err))
		return "", fmt.Errorf("%w: %v", apperrors.ErrSubmission, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: provider returned HTTP %d", apperrors.ErrSubmission, resp.StatusCode)
	}

	var result submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("%w: failed to decode response: %v", apperrors.ErrSubmission, err)
	}
	if result.TaskID == "" {
		return "", fmt.Errorf("%w: provider returned no task id", apperrors.ErrSubmission)
	}

	return result.TaskID, nil
}

// Status reports the current state of a task
func (c *HTTPClient) Status(ctx context.Context, taskID string) (*TaskStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.StatusTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.cfg.BaseURL+"/api/rewrite/status/"+taskID, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Unreachable provider is transient; the caller keeps polling
		c.logger.Warn("Rewrite status check failed", zap.String("task_id", taskID), zap.Error(err))
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status check returned HTTP %d", resp.StatusCode)
	}

	var status TaskStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("failed to decode status response: %w", err)
	}

	return &status, nil
}

// Download fetches the rewritten artifact bytes of a completed task
func (c *HTTPClient) Download(ctx context.Context, taskID string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.DownloadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.cfg.BaseURL+"/api/rewrite/download/"+taskID, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrRemoteProcessing, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("Rewrite result download failed", zap.String("task_id", taskID), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", apperrors.ErrRemoteProcessing, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: download returned HTTP %d", apperrors.ErrRemoteProcessing, resp.StatusCode)
	}

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrRemoteProcessing, err)
	}

	return content, nil
}
