// Package notify delivers failure notifications to an external hook.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"site-orchestrator/internal/fetchx"
)

// Webhook posts failure payloads to a configured URL. The caller treats
// delivery as fire-and-forget; errors returned here are logged and discarded.
type Webhook struct {
	url    string
	client *http.Client
	policy fetchx.Policy
}

// NewWebhook builds a notifier for the given endpoint.
func NewWebhook(url string) *Webhook {
	policy := fetchx.DefaultPolicy()
	policy.MaxRetries = 1
	return &Webhook{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		policy: policy,
	}
}

// NotifyFailure implements runlog.Notifier.
func (w *Webhook) NotifyFailure(ctx context.Context, job string, jobErr error) error {
	body, err := json.Marshal(map[string]string{
		"jobName": job,
		"error":   jobErr.Error(),
	})
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	resp, err := fetchx.Do(ctx, w.client, fetchx.Request{
		Method: http.MethodPost,
		URL:    w.url,
		Header: http.Header{"Content-Type": []string{"application/json"}},
		Body:   body,
	}, w.policy)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("notification hook returned %d", resp.StatusCode)
	}
	return nil
}
