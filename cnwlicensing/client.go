package cnwlicensing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultTimeout   = 10 * time.Second
	maxResponseBytes = 1 << 20 // 1 MB
)

// OnlineClient communicates with the CNW Licensing Server HTTP API.
type OnlineClient struct {
	serverURL  string
	apiKey     string
	httpClient *http.Client
	timeout    time.Duration // applied after all options
	userAgent  string
}

// ClientOption configures an OnlineClient.
type ClientOption func(*OnlineClient)

// WithHTTPClient sets a custom HTTP client for the OnlineClient.
// The client's Timeout will be overridden by WithTimeout (or the default 10s).
func WithHTTPClient(c *http.Client) ClientOption {
	return func(o *OnlineClient) {
		o.httpClient = c
	}
}

// WithTimeout sets the HTTP client timeout. Default is 10 seconds.
// Option ordering does not matter: timeout is always applied after all options.
func WithTimeout(d time.Duration) ClientOption {
	return func(o *OnlineClient) {
		o.timeout = d
	}
}

// WithUserAgent sets the User-Agent header sent with requests.
func WithUserAgent(ua string) ClientOption {
	return func(o *OnlineClient) {
		o.userAgent = ua
	}
}

// NewOnlineClient creates a new client for the CNW Licensing Server.
// serverURL is the base URL (e.g. "https://licensing.example.com").
// apiKey is the X-API-Key used for authentication.
func NewOnlineClient(serverURL, apiKey string, opts ...ClientOption) *OnlineClient {
	c := &OnlineClient{
		serverURL: strings.TrimRight(serverURL, "/"),
		apiKey:    apiKey,
		timeout:   defaultTimeout,
		userAgent: "cnw-licensing-core-go/1.0",
	}
	for _, opt := range opts {
		opt(c)
	}
	// If no custom HTTP client was provided, create one.
	// Apply timeout after all options so ordering doesn't matter.
	if c.httpClient == nil {
		c.httpClient = &http.Client{}
	}
	c.httpClient.Timeout = c.timeout
	return c
}

// Activate asks the server to sign and record a machine activation.
// The server wraps the response in {data: ...}.
func (c *OnlineClient) Activate(ctx context.Context, req ActivationRequest) (*ActivationResponse, error) {
	var wrapper struct {
		Data ActivationResponse `json:"data"`
	}
	if err := c.doJSON(ctx, "/v1/activations", req, &wrapper); err != nil {
		return nil, err
	}
	return &wrapper.Data, nil
}

// Deactivate revokes this machine's activations for a license key.
// The server wraps the response in {data: ...}.
func (c *OnlineClient) Deactivate(ctx context.Context, req DeactivationRequest) (*DeactivationResponse, error) {
	var wrapper struct {
		Data DeactivationResponse `json:"data"`
	}
	if err := c.doJSON(ctx, "/v1/activations/deactivate", req, &wrapper); err != nil {
		return nil, err
	}
	return &wrapper.Data, nil
}

// Validate checks an activation key with the server.
// The server returns the response directly (not wrapped in {data: ...}).
func (c *OnlineClient) Validate(ctx context.Context, req ValidationRequest) (*ValidationResponse, error) {
	var resp ValidationResponse
	if err := c.doJSON(ctx, "/v1/validate", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// doJSON performs a POST request with JSON body and decodes the response into dest.
// On non-2xx responses, it parses the server error format and returns a mapped error.
func (c *OnlineClient) doJSON(ctx context.Context, path string, body, dest interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.serverURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.apiKey)
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return c.parseError(resp.StatusCode, respBody)
	}

	if err := json.Unmarshal(respBody, dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// parseError parses the server error response format:
// {"error": {"code": "...", "message": "..."}}
func (c *OnlineClient) parseError(statusCode int, body []byte) error {
	var errResp struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &errResp); err != nil {
		return &ServerError{
			StatusCode: statusCode,
			Code:       "UNKNOWN",
			Message:    string(body),
		}
	}
	se := &ServerError{
		StatusCode: statusCode,
		Code:       errResp.Error.Code,
		Message:    errResp.Error.Message,
	}
	return mapServerError(se)
}
