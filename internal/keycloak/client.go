// Package keycloak is a small client for the Keycloak admin REST API: the
// admin password grant and the create endpoints used to bootstrap a realm.
package keycloak

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/time/rate"
)

// Option configures the admin Client.
type Option func(*Client)

// WithToken sets the bearer token sent on every request.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithRateLimit paces requests to at most rps per second. A non-positive rps
// leaves the client unthrottled.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithRequestID sets the X-Request-ID header sent on every request.
func WithRequestID(id string) Option {
	return func(c *Client) {
		c.requestID = id
	}
}

// Client talks to the Keycloak admin API with a fixed bearer token.
// It issues one request at a time and never retries.
type Client struct {
	baseURL    string
	token      string
	requestID  string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates an admin API client for the server at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the server base URL without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Create POSTs payload as JSON to path and returns the response status code.
// Anything other than 201 Created is returned as an *APIError carrying the
// server's errorMessage. Transport failures return a zero status code.
func (c *Client) Create(ctx context.Context, path string, payload any) (int, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("marshal request: %w", err)
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return 0, fmt.Errorf("wait for rate limiter: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.requestID != "" {
		req.Header.Set("X-Request-ID", c.requestID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("http request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, readErr := io.ReadAll(resp.Body)
	if resp.StatusCode == http.StatusCreated {
		return resp.StatusCode, nil
	}

	apiErr := &APIError{StatusCode: resp.StatusCode, Path: path}
	if readErr == nil {
		apiErr.Message = errorMessage(respBody)
	}
	if apiErr.Message == "" {
		apiErr.Message = fmt.Sprintf("unexpected status %d", resp.StatusCode)
	}
	return resp.StatusCode, apiErr
}

// errorMessage extracts the human readable error from a Keycloak error body.
// The admin API uses errorMessage; the token and auth filters use the OAuth
// error / error_description pair.
func errorMessage(body []byte) string {
	var errBody struct {
		ErrorMessage     string `json:"errorMessage"`
		ErrorDescription string `json:"error_description"`
		Error            string `json:"error"`
	}
	if len(body) == 0 || json.Unmarshal(body, &errBody) != nil {
		return ""
	}
	switch {
	case errBody.ErrorMessage != "":
		return errBody.ErrorMessage
	case errBody.ErrorDescription != "":
		return errBody.ErrorDescription
	default:
		return errBody.Error
	}
}

// RealmsPath is the realms collection endpoint.
func RealmsPath() string {
	return "/admin/realms"
}

// IdentityProvidersPath is the identity provider collection of realm.
func IdentityProvidersPath(realm string) string {
	return "/admin/realms/" + url.PathEscape(realm) + "/identity-provider/instances"
}

// IdentityProviderMappersPath is the mapper collection of the identity provider alias in realm.
func IdentityProviderMappersPath(realm, alias string) string {
	return IdentityProvidersPath(realm) + "/" + url.PathEscape(alias) + "/mappers"
}

// TokenPath is the OpenID Connect token endpoint of realm.
func TokenPath(realm string) string {
	return "/realms/" + url.PathEscape(realm) + "/protocol/openid-connect/token"
}
