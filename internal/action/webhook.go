package action

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/jonathan/video-refinery/internal/types"
)

// WebhookPayload is the JSON body POSTed to webhook targets.
type WebhookPayload struct {
	Event     string                `json:"event"`
	JobID     string                `json:"jobId"`
	SourceURL string                `json:"sourceUrl"`
	TaskType  types.TaskType        `json:"taskType"`
	Result    *types.AnalysisResult `json:"result"`
	SentAt    time.Time             `json:"sentAt"`
}

// Webhook posts analysis results to HTTP endpoints.
type Webhook struct {
	client *http.Client
	now    func() time.Time
}

// NewWebhook creates a Webhook notifier.
func NewWebhook(client *http.Client) *Webhook {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Webhook{client: client, now: time.Now}
}

// Notify POSTs the analysis to url. Any non-2xx response is an error.
func (w *Webhook) Notify(ctx context.Context, url string, req Request) error {
	body, err := json.Marshal(WebhookPayload{
		Event:     "analysis.completed",
		JobID:     req.JobID,
		SourceURL: req.SourceURL,
		TaskType:  req.TaskType,
		Result:    req.Result,
		SentAt:    w.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", "VideoRefinery-Webhook/1.0")

	resp, err := w.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("webhook delivery failed: %w", err)
	}
	_ = resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
	return nil
}
