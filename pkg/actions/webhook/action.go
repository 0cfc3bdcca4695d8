// Package webhook provides the call_webhook action handler. It posts a
// record snapshot to an external URL with optional headers and retry logic.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gestia/gestia/pkg/protocol"
)

const defaultTimeoutSeconds = 30

var (
	// ErrWebhookURLInvalid is returned when the webhook URL is missing.
	ErrWebhookURLInvalid = errors.New("invalid webhook url")
	// ErrWebhookServerError is returned when the endpoint answers with a 5xx status.
	ErrWebhookServerError = errors.New("server error during webhook call")
)

// Action performs an HTTP call to a configured URL with retry logic.
type Action struct {
	URL     string
	Method  string
	Headers map[string]string
	Timeout time.Duration
	Retry   RetryConfig
}

// RetryConfig defines retry behavior for webhook calls.
type RetryConfig struct {
	Attempts int
	Delay    int
}

// NewAction creates a webhook action from configuration.
func NewAction(config map[string]any) (*Action, error) {
	url, ok := config["url"].(string)
	if !ok || url == "" {
		return nil, fmt.Errorf("missing or invalid 'url' in configuration: %w", ErrWebhookURLInvalid)
	}

	method, _ := config["method"].(string)
	if method == "" {
		method = http.MethodPost
	}

	headers := make(map[string]string)

	if headersConfig, exists := config["headers"]; exists {
		if headersMap, ok := headersConfig.(map[string]any); ok {
			for k, v := range headersMap {
				if strVal, ok := v.(string); ok {
					headers[k] = strVal
				}
			}
		}
	}

	retry := RetryConfig{Attempts: 1, Delay: 0}

	if retryConfig, exists := config["retry"]; exists {
		retry = parseRetryConfig(retryConfig)
	}

	return &Action{
		URL:     url,
		Method:  strings.ToUpper(method),
		Headers: headers,
		Timeout: defaultTimeoutSeconds * time.Second,
		Retry:   retry,
	}, nil
}

func parseRetryConfig(retryConfig any) RetryConfig {
	retry := RetryConfig{Attempts: 1, Delay: 0}

	retryMap, ok := retryConfig.(map[string]any)
	if !ok {
		return retry
	}

	if attempts, ok := retryMap["attempts"].(float64); ok {
		retry.Attempts = int(attempts)
	}

	if delay, ok := retryMap["delay"].(float64); ok {
		retry.Delay = int(delay)
	}

	return retry
}

// Execute posts the record payload with retry logic and returns the response.
func (a *Action) Execute(ctx context.Context, actionCtx protocol.ActionContext, logger *slog.Logger) (any, error) {
	logger = logger.With("module", "webhook_action")
	logger.InfoContext(ctx, "Executing webhook action", "url", a.URL, "method", a.Method)

	payload, err := a.buildPayload(actionCtx)
	if err != nil {
		return nil, err
	}

	var (
		lastErr error
		resp    *http.Response
	)

	for attempt := 1; attempt <= a.Retry.Attempts; attempt++ {
		if attempt > 1 {
			logger.InfoContext(ctx, fmt.Sprintf("Webhook retry attempt %d/%d", attempt, a.Retry.Attempts))
			time.Sleep(time.Duration(a.Retry.Delay) * time.Second)
		}

		req, err := a.buildRequest(ctx, payload)
		if err != nil {
			lastErr = err

			continue
		}

		client := &http.Client{Timeout: a.Timeout}

		resp, err = client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("webhook call failed: %w", err)

			continue
		}

		if resp.StatusCode >= 500 && attempt < a.Retry.Attempts {
			if err := resp.Body.Close(); err != nil {
				logger.ErrorContext(ctx, "failed to close response body", "error", err)
			}

			lastErr = fmt.Errorf("server error (status %d), retrying: %w", resp.StatusCode, ErrWebhookServerError)

			continue
		}

		break
	}

	if resp == nil {
		return nil, fmt.Errorf("all retry attempts failed, last error: %w", lastErr)
	}

	return a.processResponse(ctx, resp, logger)
}

// buildPayload renders the record snapshot sent to the endpoint. Endpoints
// receive enough to correlate the call without a follow-up read.
func (a *Action) buildPayload(actionCtx protocol.ActionContext) ([]byte, error) {
	body := map[string]any{
		"trigger":  actionCtx.Trigger,
		"state_id": actionCtx.StateID,
	}

	if actionCtx.Record != nil {
		body["record"] = map[string]any{
			"id":          actionCtx.Record.ID,
			"code":        actionCtx.Record.Code,
			"state_id":    actionCtx.Record.CurrentState.StateID,
			"version":     actionCtx.Record.Version,
			"responsible": actionCtx.Record.Responsible,
			"datos":       actionCtx.Record.Datos,
		}
	}

	if actionCtx.Template != nil {
		body["template"] = map[string]any{
			"id":   actionCtx.Template.ID,
			"code": actionCtx.Template.Code,
		}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode webhook payload: %w", err)
	}

	return payload, nil
}

func (a *Action) buildRequest(ctx context.Context, payload []byte) (*http.Request, error) {
	var body io.Reader
	if a.Method != http.MethodGet && a.Method != http.MethodHead {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, a.Method, a.URL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create webhook request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	for key, value := range a.Headers {
		req.Header.Set(key, value)
	}

	return req, nil
}

func (a *Action) processResponse(ctx context.Context, resp *http.Response, logger *slog.Logger) (any, error) {
	defer func() {
		_ = resp.Body.Close()
	}()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var body any

	if err := json.Unmarshal(bodyBytes, &body); err != nil {
		body = string(bodyBytes)
	}

	result := map[string]any{
		"status_code": resp.StatusCode,
		"body":        body,
		"headers":     resp.Header,
	}

	logger.InfoContext(ctx, fmt.Sprintf("Webhook call completed with status %d, body length: %d",
		resp.StatusCode, len(bodyBytes)))

	return result, nil
}
