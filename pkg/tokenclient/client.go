// Package tokenclient talks to an external token service. It implements the
// same port as the local jwtutil service, so deployments choose one by
// setting TOKEN_SERVICE_URL.
package tokenclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"crm-service/internal/apperr"
	"crm-service/internal/model"
)

// Client is a client of the token service
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// verifyResponse is the body returned by the verification endpoint
type verifyResponse struct {
	Active bool `json:"active"`
	UserID uint `json:"user_id"`
}

// ErrorResponse represents a token service error response
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// New creates a client for the token service at baseURL
func New(baseURL string) *Client {
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Issue asks the token service for a pair bound to p.
func (c *Client) Issue(ctx context.Context, p *model.Principal) (*model.TokenPair, error) {
	var pair model.TokenPair
	if err := c.post(ctx, "tokenclient.Issue", "/tokens/", p, &pair); err != nil {
		return nil, err
	}
	return &pair, nil
}

// Refresh exchanges a refresh token for a new pair.
func (c *Client) Refresh(ctx context.Context, refresh string) (*model.TokenPair, error) {
	var pair model.TokenPair
	body := map[string]string{"refresh": refresh}
	if err := c.post(ctx, "tokenclient.Refresh", "/tokens/refresh/", body, &pair); err != nil {
		return nil, err
	}
	return &pair, nil
}

// Verify introspects an access token.
func (c *Client) Verify(ctx context.Context, access string) (uint, error) {
	const op = "tokenclient.Verify"
	var resp verifyResponse
	if err := c.post(ctx, op, "/tokens/verify/", map[string]string{"token": access}, &resp); err != nil {
		return 0, err
	}
	if !resp.Active || resp.UserID == 0 {
		return 0, apperr.AuthFailed(op)
	}
	return resp.UserID, nil
}

// post sends in as JSON and decodes a 200 response into out. 400 and 401
// answers mean the presented credentials are bad; anything else, including
// transport failures, means the service is unavailable.
func (c *Client) post(ctx context.Context, op, path string, in, out interface{}) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return apperr.Internal(op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return apperr.Internal(op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return apperr.Unavailable(op, "token service unavailable", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return apperr.Unavailable(op, "token service unavailable", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized:
		return apperr.AuthFailed(op)
	default:
		var errorResp ErrorResponse
		if err := json.Unmarshal(body, &errorResp); err == nil && errorResp.Error != "" {
			return apperr.Unavailable(op, "token service unavailable",
				fmt.Errorf("%d %s - %s", resp.StatusCode, errorResp.Error, errorResp.ErrorDescription))
		}
		return apperr.Unavailable(op, "token service unavailable", fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return apperr.Unavailable(op, "token service returned an invalid response", err)
	}
	return nil
}
