package effector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	// TypeWebhook — effector, сообщающий о переходах по HTTP.
	TypeWebhook = "webhook"

	defaultWebhookTimeout = 30 * time.Second
	maxErrorBody          = 4 * 1024
)

// Webhook отправляет каждый переход POST-запросом с JSON-телом Transition.
//
// Ответ 2xx означает, что переход выполнен. Остальные статусы
// возвращаются как *HTTPError.
type Webhook struct {
	url    string
	client *http.Client
}

// NewWebhook создаёт Webhook. timeout 0 означает значение по умолчанию (30s).
func NewWebhook(url string, timeout time.Duration) (*Webhook, error) {
	if url == "" {
		return nil, fmt.Errorf("%w: %s: url is required", ErrInvalidConfig, TypeWebhook)
	}
	if timeout <= 0 {
		timeout = defaultWebhookTimeout
	}

	return &Webhook{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}, nil
}

// Type возвращает тип effector'а.
func (w *Webhook) Type() string {
	return TypeWebhook
}

// Apply отправляет переход.
func (w *Webhook) Apply(ctx context.Context, t Transition) error {
	body, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal transition: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %v", ErrCancelled, ctx.Err())
		}
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &HTTPError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(respBody),
		}
	}

	return nil
}

// HTTPError — webhook ответил не 2xx.
type HTTPError struct {
	StatusCode int
	Status     string
	Body       string
}

// Error реализует интерфейс error.
func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Status)
}
