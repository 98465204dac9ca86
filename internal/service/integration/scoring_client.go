package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/aryasetiap/protextify-backendv2-sub000/internal/models"
)

// ScoringClient calls the third-party content-scoring API. Failures come
// back as typed errors so callers never have to inspect the shape of the
// underlying HTTP client's errors.
type ScoringClient interface {
	Score(ctx context.Context, req ScoreRequest) (*models.CheckResult, error)
}

type ScoreRequest struct {
	Text            string   `json:"text"`
	Language        string   `json:"language,omitempty"`
	Country         string   `json:"country,omitempty"`
	ExcludedSources []string `json:"excludedSources,omitempty"`
}

// ScoringTimeoutError: the provider did not answer within the deadline.
type ScoringTimeoutError struct {
	Elapsed time.Duration
}

func (e *ScoringTimeoutError) Error() string {
	return fmt.Sprintf("scoring request timed out after %s", e.Elapsed)
}

// ScoringHTTPError: the provider answered with a non-2xx status.
type ScoringHTTPError struct {
	StatusCode int
	Body       string
}

func (e *ScoringHTTPError) Error() string {
	return fmt.Sprintf("scoring provider returned status %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether the status suggests a transient condition.
func (e *ScoringHTTPError) Retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// ScoringNetworkError: the request never produced an HTTP response.
type ScoringNetworkError struct {
	Err error
}

func (e *ScoringNetworkError) Error() string {
	return fmt.Sprintf("scoring provider unreachable: %v", e.Err)
}

func (e *ScoringNetworkError) Unwrap() error { return e.Err }

type scoringClient struct {
	baseURL string
	apiKey  string
	timeout time.Duration
	client  *http.Client
	logger  zerolog.Logger
}

func NewScoringClient(baseURL, apiKey string, timeout time.Duration, logger zerolog.Logger) ScoringClient {
	return &scoringClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		timeout: timeout,
		client: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

func (c *scoringClient) Score(ctx context.Context, req ScoreRequest) (*models.CheckResult, error) {
	url := fmt.Sprintf("%s/api/v1/score", c.baseURL)

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal score request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create score request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isClientTimeout(err) {
			return nil, &ScoringTimeoutError{Elapsed: time.Since(start)}
		}
		return nil, &ScoringNetworkError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &ScoringHTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	var payload struct {
		Score       float64         `json:"score"`
		WordCount   int             `json:"wordCount"`
		SourceCount int             `json:"sourceCount"`
		CreditsUsed int             `json:"creditsUsed"`
		Raw         json.RawMessage `json:"raw"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode score response: %w", err)
	}

	c.logger.Debug().
		Float64("score", payload.Score).
		Int("word_count", payload.WordCount).
		Dur("elapsed", time.Since(start)).
		Msg("Scoring request completed")

	return &models.CheckResult{
		Score:       payload.Score,
		WordCount:   payload.WordCount,
		SourceCount: payload.SourceCount,
		CreditsUsed: payload.CreditsUsed,
		Raw:         payload.Raw,
	}, nil
}

func isClientTimeout(err error) bool {
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}

// RetryableScoringError reports whether the worker should hand the failure
// to the queue's backoff policy instead of failing the job terminally.
func RetryableScoringError(err error) bool {
	var timeoutErr *ScoringTimeoutError
	if errors.As(err, &timeoutErr) {
		return true
	}
	var netErr *ScoringNetworkError
	if errors.As(err, &netErr) {
		return true
	}
	var httpErr *ScoringHTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Retryable()
	}
	return false
}
