// Package strapi is the REST client for the CMS backing the archive:
// authentication, whatsapp-groups, messages, and tags.
package strapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/starford/ansuz/internal/apperr"
)

// PageSize caps every listing call. Callers that need to drain a larger
// collection re-run until nothing remains.
const PageSize = 500

// Client talks to one Strapi instance. Authenticate must succeed before
// any other call; all authenticated calls carry the JWT as a Bearer token.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger

	token     string
	expiresAt time.Time
}

// New creates a Client for the CMS at baseURL.
func New(baseURL string, logger *slog.Logger) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

type authRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

type authResponse struct {
	JWT string `json:"jwt"`
}

// Authenticate exchanges service credentials for a JWT. Failure is
// terminal for the run: there is no retry loop, the caller reports and
// stops. The token's expiry claim is decoded so a stale client refuses to
// issue requests instead of collecting 401s.
func (c *Client) Authenticate(ctx context.Context, identifier, password string) error {
	body, _ := json.Marshal(authRequest{Identifier: identifier, Password: password})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/local", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrAuthFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrAuthFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%w: status %d: %s", apperr.ErrAuthFailed, resp.StatusCode, respBody)
	}

	var ar authResponse
	if err := json.NewDecoder(resp.Body).Decode(&ar); err != nil || ar.JWT == "" {
		return fmt.Errorf("%w: malformed auth response", apperr.ErrAuthFailed)
	}

	c.token = ar.JWT
	c.expiresAt = tokenExpiry(ar.JWT)
	if !c.expiresAt.IsZero() {
		c.logger.Info("authenticated against CMS", slog.Time("token_expires", c.expiresAt))
	} else {
		c.logger.Info("authenticated against CMS")
	}
	return nil
}

// tokenExpiry decodes the JWT expiry claim without verifying the
// signature; the CMS signed it, we only log and self-check against it.
func tokenExpiry(token string) time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}

// Groups fetches one page of remote groups.
func (c *Client) Groups(ctx context.Context) ([]Group, error) {
	var out []Group
	path := fmt.Sprintf("/whatsapp-groups?_start=0&_limit=%d", PageSize)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateGroup creates a remote group.
func (c *Client) CreateGroup(ctx context.Context, name string) (*Group, error) {
	var out Group
	if err := c.do(ctx, http.MethodPost, "/whatsapp-groups", GroupPayload{Name: name}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteGroup deletes a remote group by id.
func (c *Client) DeleteGroup(ctx context.Context, id int) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/whatsapp-groups/%d", id), nil, nil)
}

// Messages fetches one page of remote messages.
func (c *Client) Messages(ctx context.Context) ([]RemoteMessage, error) {
	var out []RemoteMessage
	path := fmt.Sprintf("/messages?_start=0&_limit=%d", PageSize)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateMessage creates one remote message.
func (c *Client) CreateMessage(ctx context.Context, payload MessagePayload) (*RemoteMessage, error) {
	var out RemoteMessage
	if err := c.do(ctx, http.MethodPost, "/messages", payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteMessage deletes a remote message by id.
func (c *Client) DeleteMessage(ctx context.Context, id int) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/messages/%d", id), nil, nil)
}

// Tags fetches one page of tags.
func (c *Client) Tags(ctx context.Context) ([]Tag, error) {
	var out []Tag
	path := fmt.Sprintf("/tags?_start=0&_limit=%d", PageSize)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateTag creates a tag by name.
func (c *Client) CreateTag(ctx context.Context, name string) (*Tag, error) {
	var out Tag
	if err := c.do(ctx, http.MethodPost, "/tags", TagPayload{Name: name}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// do issues one authenticated request. 404 maps to apperr.ErrNotFound,
// transport failures and non-2xx responses to *apperr.RequestError.
func (c *Client) do(ctx context.Context, method, path string, payload, out any) error {
	if c.token == "" {
		return apperr.ErrAuthFailed
	}
	if !c.expiresAt.IsZero() && time.Now().After(c.expiresAt) {
		return apperr.ErrTokenExpired
	}

	op := method + " " + path

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("strapi: marshal %s: %w", op, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return &apperr.RequestError{Op: op, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &apperr.RequestError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return apperr.ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &apperr.RequestError{Op: op, Status: resp.StatusCode, Body: string(respBody)}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("strapi: decode %s: %w", op, err)
		}
	}
	return nil
}
