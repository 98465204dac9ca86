package integration

import (
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

// ErrInvalidToken is returned for tokens the auth service rejects.
var ErrInvalidToken = errors.New("invalid or expired token")

// IdentityClient verifies gateway handshake tokens against the auth
// service. Credential issuance lives entirely on the auth side.
type IdentityClient interface {
	Verify(ctx context.Context, token string) (*models.Identity, error)
}

type identityClient struct {
	baseURL    string
	timeout    time.Duration
	retryCount int
	retryDelay time.Duration
	client     *http.Client
	logger     zerolog.Logger
}

func NewIdentityClient(baseURL string, timeout time.Duration, retryCount int, retryDelay time.Duration, logger zerolog.Logger) IdentityClient {
	return &identityClient{
		baseURL:    baseURL,
		timeout:    timeout,
		retryCount: retryCount,
		retryDelay: retryDelay,
		client: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

func (c *identityClient) Verify(ctx context.Context, token string) (*models.Identity, error) {
	url := fmt.Sprintf("%s/api/v1/auth/verify", c.baseURL)

	var lastErr error

	for i := 0; i <= c.retryCount; i++ {
		if i > 0 {
			c.logger.Warn().Int("attempt", i).Msg("Retrying token verification")
			time.Sleep(c.retryDelay * time.Duration(i))
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			lastErr = fmt.Errorf("failed to create request: %w", err)
			continue
		}
		req.Header.Set("Authorization", "Bearer "+token)

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("failed to verify token: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusOK {
			var identity models.Identity
			if err := json.NewDecoder(resp.Body).Decode(&identity); err != nil {
				resp.Body.Close()
				lastErr = fmt.Errorf("failed to decode identity: %w", err)
				continue
			}
			resp.Body.Close()
			return &identity, nil
		}

		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			resp.Body.Close()
			return nil, ErrInvalidToken
		}

		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		lastErr = fmt.Errorf("auth service returned status %d: %s", resp.StatusCode, string(body))
	}

	return nil, fmt.Errorf("failed to verify token after %d attempts: %w", c.retryCount+1, lastErr)
}
