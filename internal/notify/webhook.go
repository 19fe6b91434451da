package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// WebhookSink posts notification payloads to an HTTP endpoint, optionally
// signed with HMAC-SHA256.
type WebhookSink struct {
	url        string
	secret     string
	headers    map[string]string
	maxRetries int
	retryDelay time.Duration
	httpClient *http.Client
}

// NewWebhookSink creates a webhook sink with a bounded request timeout.
func NewWebhookSink(url, secret string, headers map[string]string) *WebhookSink {
	return &WebhookSink{
		url:        url,
		secret:     secret,
		headers:    headers,
		maxRetries: 2,
		retryDelay: time.Second,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (s *WebhookSink) Name() string { return "webhook:" + s.url }

// Send delivers the payload with one retry. Errors are returned for logging;
// the dispatcher swallows them.
func (s *WebhookSink) Send(ctx context.Context, payload Payload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		statusCode, err := s.post(ctx, body, payload, attempt)
		if err == nil && statusCode >= 200 && statusCode < 300 {
			return nil
		}

		if err != nil {
			lastErr = err
		} else {
			lastErr = fmt.Errorf("webhook returned status %d", statusCode)
		}

		if attempt < s.maxRetries {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.retryDelay):
			}
		}
	}

	return lastErr
}

func (s *WebhookSink) post(ctx context.Context, body []byte, payload Payload, attempt int) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Failsafe-Notifications/1.0")
	req.Header.Set("X-Event-Type", payload.EventType)
	req.Header.Set("X-Event-ID", payload.ID)
	req.Header.Set("X-Delivery-Attempt", fmt.Sprintf("%d", attempt))

	if s.secret != "" {
		req.Header.Set("X-Failsafe-Signature", Signature(body, s.secret))
	}

	for key, value := range s.headers {
		req.Header.Set(key, value)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	return resp.StatusCode, nil
}

// Signature generates the HMAC-SHA256 signature for a payload body.
func Signature(payload []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return "sha256=" + hex.EncodeToString(h.Sum(nil))
}

// VerifySignature checks a payload signature; exported for sink consumers.
func VerifySignature(payload []byte, signature, secret string) bool {
	expected := Signature(payload, secret)
	return hmac.Equal([]byte(expected), []byte(signature))
}
