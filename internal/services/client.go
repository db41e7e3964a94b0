package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/desertthunder/spotlabel/internal/metrics"
	"github.com/desertthunder/spotlabel/internal/shared"
	"github.com/desertthunder/spotlabel/internal/telemetry"
)

// DefaultBaseURL is the Spotify Web API root.
const DefaultBaseURL = "https://api.spotify.com/v1"

// Validator is implemented by response bodies that can check their own shape.
type Validator interface {
	Validate() error
}

// TokenProvider yields a valid access token for a session.
type TokenProvider interface {
	EnsureValidToken(ctx context.Context, sess *Session) (string, error)
}

// Request describes one API call. Endpoint names the call in logs and metrics.
type Request struct {
	Endpoint string
	Method   string
	Path     string
	Query    url.Values
	Body     any
}

// RequestFunc produces the request to send. It is invoked after the token is known to be valid.
type RequestFunc func() (*Request, error)

// APIError is a non-2xx response from the API.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       []byte
}

func (e *APIError) Error() string {
	body := strings.TrimSpace(string(e.Body))
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	return fmt.Sprintf("%s: %s %s returned %d: %s", shared.ErrAPIRequest, e.Method, e.Path, e.StatusCode, body)
}

func (e *APIError) Unwrap() error {
	return shared.ErrAPIRequest
}

// ClientOptions tunes a [Client]. Zero values select defaults.
type ClientOptions struct {
	BaseURL           string
	HTTPClient        *http.Client
	RequestsPerSecond float64
	Logger            *log.Logger
	Metrics           *metrics.Metrics
}

// Client sends authenticated, rate-limited requests to the Spotify Web API.
type Client struct {
	baseURL    string
	tokens     TokenProvider
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *log.Logger
	metrics    *metrics.Metrics
}

// NewClient creates a Client that obtains tokens from tokens.
// The HTTP transport is wrapped with OpenTelemetry client spans.
func NewClient(tokens TokenProvider, opts ClientOptions) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(opts.BaseURL, "/"),
		tokens:  tokens,
		logger:  opts.Logger,
		metrics: opts.Metrics,
	}

	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}

	base := opts.HTTPClient
	if base == nil {
		base = &http.Client{}
	}
	instrumented := *base
	instrumented.Transport = telemetry.Transport(base.Transport)
	c.httpClient = &instrumented

	if opts.RequestsPerSecond > 0 {
		burst := int(opts.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	} else {
		c.limiter = rate.NewLimiter(rate.Inf, 1)
	}

	if c.logger == nil {
		c.logger = log.Default()
	}
	if c.metrics == nil {
		c.metrics = metrics.New()
	}
	return c
}

// Call ensures the session's token is valid, sends the request built by build, and decodes
// the response into out before validating it. out may be nil when the body is not needed.
//
// A non-2xx status returns an [*APIError]; a body that cannot be decoded or fails validation
// returns an error wrapping [shared.ErrValidation]. Nothing is retried.
func (c *Client) Call(ctx context.Context, sess *Session, build RequestFunc, out Validator) error {
	token, err := c.tokens.EnsureValidToken(ctx, sess)
	if err != nil {
		return err
	}

	call, err := build()
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	req, err := c.newRequest(ctx, call)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.APIRequests.WithLabelValues(call.Endpoint, "error").Inc()
		return fmt.Errorf("%w: %s %s: %v", shared.ErrAPIRequest, call.Method, call.Path, err)
	}
	defer resp.Body.Close()

	c.metrics.APIRequests.WithLabelValues(call.Endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: failed to read response: %v", shared.ErrAPIRequest, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("spotify request failed",
			"endpoint", call.Endpoint,
			"method", call.Method,
			"path", call.Path,
			"status", resp.StatusCode,
			"body", string(body),
		)
		return &APIError{Method: call.Method, Path: call.Path, StatusCode: resp.StatusCode, Body: body}
	}

	if out == nil {
		return nil
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: %s: failed to decode response: %v", shared.ErrValidation, call.Endpoint, err)
	}
	if err := out.Validate(); err != nil {
		return fmt.Errorf("%w: %s: %v", shared.ErrValidation, call.Endpoint, err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, call *Request) (*http.Request, error) {
	target := c.baseURL + call.Path
	if len(call.Query) > 0 {
		target += "?" + call.Query.Encode()
	}

	var body io.Reader
	if call.Body != nil {
		data, err := json.Marshal(call.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, call.Method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if call.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}
