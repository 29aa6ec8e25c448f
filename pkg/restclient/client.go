// Package restclient is the shared HTTP client for the remote
// storefront backend. It attaches the bearer token, propagates trace
// context, decodes JSON bodies and performs a single refresh-and-retry
// when the backend answers 401.
package restclient

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

	"github.com/adfinitum/storefront/pkg/authtoken"
	"github.com/adfinitum/storefront/pkg/tracing"
)

// APIError carries a non-2xx backend response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status %d: %s", e.Status, e.Message)
}

type Client struct {
	log         *slog.Logger
	base        string
	refreshPath string
	tokens      *authtoken.Store
	http        *http.Client
}

func New(log *slog.Logger, base, refreshPath string, tokens *authtoken.Store) *Client {
	return &Client{
		log:         log,
		base:        strings.TrimRight(base, "/"),
		refreshPath: refreshPath,
		tokens:      tokens,
		http:        &http.Client{Timeout: 15 * time.Second},
	}
}

// Do issues one JSON request. body and out may be nil. A 401 triggers
// one token refresh followed by a single retry of the original call.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	status, err := c.do(ctx, method, path, body, out)
	if err == nil {
		return nil
	}
	if status != http.StatusUnauthorized {
		return err
	}
	if refreshErr := c.refreshAccessToken(ctx); refreshErr != nil {
		c.log.Warn("token refresh failed", "err", refreshErr)
		return err
	}
	_, err = c.do(ctx, method, path, body, out)
	return err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token, tokErr := c.tokens.Access(ctx); tokErr == nil && token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	tracing.InjectHTTPHeaders(ctx, req.Header)

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, &APIError{Status: resp.StatusCode, Message: readErrorMessage(resp.Body)}
	}
	if out == nil {
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("decode response %s %s: %w", method, path, err)
	}
	return resp.StatusCode, nil
}

func (c *Client) refreshAccessToken(ctx context.Context) error {
	refresh, err := c.tokens.Refresh(ctx)
	if err != nil {
		return err
	}

	var res struct {
		Access string `json:"access"`
	}
	if _, err := c.do(ctx, http.MethodPost, c.refreshPath, map[string]string{"refresh": refresh}, &res); err != nil {
		return err
	}
	if res.Access == "" {
		return errors.New("refresh response missing access token")
	}
	return c.tokens.SetAccess(ctx, res.Access)
}

// readErrorMessage pulls a human message out of the backend's error
// body, which uses either {"error": ...} or {"detail": ...}.
func readErrorMessage(r io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil || len(raw) == 0 {
		return "request failed"
	}
	var body struct {
		Error  string `json:"error"`
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(raw, &body); err == nil {
		if body.Error != "" {
			return body.Error
		}
		if body.Detail != "" {
			return body.Detail
		}
	}
	return strings.TrimSpace(string(raw))
}
