package terminology

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kaicode/barts-cohort-tool/cmd/cohort/types"
)

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type,omitempty"`
	ExpiresIn   int    `json:"expires_in,omitempty"`
}

const (
	// Lifetime assumed when the auth server omits expires_in.
	defaultTokenLifetime = time.Hour
	// Subtracted from the advertised lifetime so the token is refreshed
	// before the server-side expiry, not at it.
	tokenExpiryBuffer = 60 * time.Second
)

// token returns the current bearer token, running the client-credentials
// exchange when no token is held or the held one has reached its refresh
// deadline. There is no request-time retry on 401: expiry is tracked
// proactively instead.
func (c *Client) token(ctx context.Context) (string, error) {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()

	if c.bearerToken != "" && time.Now().Before(c.tokenDeadline) {
		return c.bearerToken, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.authServer,
		strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &types.TransportError{Op: "token request", Err: err}
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", &types.TransportError{
			Op:  "token request",
			Err: fmt.Errorf("auth server returned status %d: %s", resp.StatusCode, string(bodyBytes)),
		}
	}

	var token tokenResponse
	if err := json.Unmarshal(bodyBytes, &token); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}
	if token.AccessToken == "" {
		return "", &types.TransportError{
			Op:  "token request",
			Err: errors.New("auth server response contained no access_token"),
		}
	}

	lifetime := defaultTokenLifetime
	if token.ExpiresIn > 0 {
		lifetime = time.Duration(token.ExpiresIn) * time.Second
	}

	c.bearerToken = token.AccessToken
	c.tokenDeadline = time.Now().Add(lifetime - tokenExpiryBuffer)

	c.log.Debug().
		Time("refreshDeadline", c.tokenDeadline).
		Msg("Acquired terminology access token")

	return c.bearerToken, nil
}
