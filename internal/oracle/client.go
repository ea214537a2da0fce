// Package oracle implements the optional text classification collaborator.
// The oracle is best-effort: every call is bounded by a timeout and any
// failure surfaces as common.ErrOracleUnavailable so the pipeline can keep
// the rule engine's verdict.
package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/PL7092/MyMoney-sub001/internal/common"
	"github.com/PL7092/MyMoney-sub001/internal/service"
)

// Config holds configuration for the oracle client.
type Config struct {
	Endpoint  string
	APIKey    string
	Timeout   time.Duration
	RateLimit int
}

// HTTPClient talks JSON to a remote classification endpoint.
type HTTPClient struct {
	httpClient  *http.Client
	rateLimiter *rateLimiter
	endpoint    string
	apiKey      string
	timeout     time.Duration
}

// NewHTTPClient creates an oracle client for the given endpoint.
func NewHTTPClient(cfg Config) (*HTTPClient, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("oracle endpoint is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	return &HTTPClient{
		endpoint:    cfg.Endpoint,
		apiKey:      cfg.APIKey,
		timeout:     cfg.Timeout,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		rateLimiter: newRateLimiter(cfg.RateLimit),
	}, nil
}

type classifyRequest struct {
	Description string   `json:"description"`
	Direction   string   `json:"direction"`
	Categories  []string `json:"categories"`
	Amount      float64  `json:"amount"`
}

type classifyResponse struct {
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
}

// Classify asks the remote endpoint for a ranked suggestion. Timeouts, rate
// limit exhaustion, transport errors, and bad responses all come back as
// ErrOracleUnavailable; callers never fail a session on them.
func (c *HTTPClient) Classify(ctx context.Context, req service.OracleRequest) (service.OracleSuggestion, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.rateLimiter.wait(ctx); err != nil {
		return service.OracleSuggestion{}, fmt.Errorf("%w: %v", common.ErrOracleUnavailable, err)
	}

	body, err := json.Marshal(classifyRequest{
		Description: req.Description,
		Amount:      req.Amount,
		Direction:   string(req.Direction),
		Categories:  req.Categories,
	})
	if err != nil {
		return service.OracleSuggestion{}, fmt.Errorf("%w: %v", common.ErrOracleUnavailable, err)
	}

	var parsed classifyResponse
	// Transient transport faults and 5xx answers get a short second chance
	// inside the same timeout budget; anything else fails immediately.
	retryErr := common.WithRetry(ctx, func() error {
		exchangeErr := c.exchange(ctx, body, &parsed)
		if exchangeErr != nil {
			return &common.RetryableError{Err: exchangeErr, Retryable: isTransient(exchangeErr)}
		}
		return nil
	}, common.RetryOptions{
		MaxAttempts:  2,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     time.Second,
	})
	if retryErr != nil {
		return service.OracleSuggestion{}, fmt.Errorf("%w: %v", common.ErrOracleUnavailable, retryErr)
	}
	if parsed.Confidence < 0 || parsed.Confidence > 1 {
		return service.OracleSuggestion{}, fmt.Errorf("%w: confidence %v outside [0,1]", common.ErrOracleUnavailable, parsed.Confidence)
	}

	return service.OracleSuggestion{
		Category:   parsed.Category,
		Confidence: parsed.Confidence,
	}, nil
}

// statusError marks an HTTP answer outside 200.
type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.code)
}

// exchange performs one HTTP round trip and decodes the answer into out.
func (c *HTTPClient) exchange(ctx context.Context, body []byte, out *classifyResponse) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return &statusError{code: resp.StatusCode}
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// isTransient reports whether the exchange failure is worth one more try:
// server-side errors and transport faults are, client errors are not.
func isTransient(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.code >= 500
	}
	return !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled)
}
