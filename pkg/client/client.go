// Package client provides the HTTP transport shared by the token provider and
// the paginated fetcher: URI construction, header sets, per-call timeouts,
// fixed-count retries and error classification.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/apipager/pkg/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

// Prometheus metrics for client operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "apipager_requests_total",
		Help: "Total API requests by stage and status",
	}, []string{"stage", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "apipager_request_duration_seconds",
		Help:    "API request duration in seconds by stage, retries included",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 20},
	}, []string{"stage"})
)

// maxErrorBody bounds the response body copied into a RequestError.
const maxErrorBody = 500

// Client executes JSON requests against a single base URI.
// It is not safe for concurrent use while SetHeaders is being called.
type Client struct {
	httpClient *http.Client
	headers    Headers
	config     Config
	logger     zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// BaseURI is the scheme and host (and optional path prefix) of the API.
	BaseURI string

	// UserAgent is sent with every request when set.
	UserAgent string

	// Timeout bounds each HTTP call. A timeout counts as a connection failure.
	Timeout time.Duration

	// Retry controls how transport failures are retried.
	Retry RetryConfig

	// Headers is the static header set. Nil means DefaultHeaders.
	Headers Headers
}

// DefaultConfig returns a default configuration for baseURI.
func DefaultConfig(baseURI string) Config {
	return Config{
		BaseURI:   baseURI,
		UserAgent: "apipager/0.1.0",
		Timeout:   20 * time.Second,
		Retry:     DefaultRetryConfig(),
		Headers:   DefaultHeaders(),
	}
}

// New creates a new client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURI == "" {
		return nil, fmt.Errorf("%w: base uri is required", ErrInvalidArgument)
	}
	if err := validateURI(cfg.BaseURI); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURI, cfg.BaseURI)
	}
	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("%w: timeout must be > 0 (got %s)", ErrInvalidArgument, cfg.Timeout)
	}
	if cfg.Retry.MaxAttempts < 1 {
		return nil, fmt.Errorf("%w: retry attempts must be >= 1 (got %d)", ErrInvalidArgument, cfg.Retry.MaxAttempts)
	}

	headers := cfg.Headers
	if headers == nil {
		headers = DefaultHeaders()
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		headers: headers.Clone(),
		config:  cfg,
		logger:  logging.NewLogger(logging.ComponentClient),
	}, nil
}

// Request describes one API call.
type Request struct {
	// Stage labels errors and metrics. Empty means StageFetch.
	Stage Stage

	// Method defaults to GET.
	Method string

	// Endpoint is appended to the base URI after trimming.
	Endpoint string

	// Query is encoded into the URI.
	Query url.Values

	// Headers are merged over the client's static header set.
	Headers Headers

	// Token is sent as a bearer Authorization header when set.
	Token string

	// Body is JSON-encoded when non-nil.
	Body any
}

// Response is a fully read 200 response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// BuildURI joins the base URI, the trimmed endpoint and the encoded query,
// then validates the result.
func (c *Client) BuildURI(endpoint string, query url.Values) (string, error) {
	uri := strings.TrimRight(c.config.BaseURI, "/")
	if ep := strings.Trim(strings.TrimSpace(endpoint), "/"); ep != "" {
		uri += "/" + ep
	}
	if len(query) > 0 {
		uri += "?" + query.Encode()
	}

	if err := validateURI(uri); err != nil {
		return "", &RequestError{
			Kind:     KindInvalidArgument,
			Endpoint: endpoint,
			Message:  uri,
			Err:      ErrInvalidURI,
		}
	}
	return uri, nil
}

// validateURI performs basic absolute-URL validation.
func validateURI(raw string) error {
	u, err := url.ParseRequestURI(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("missing host")
	}
	return nil
}

// Do performs a request with the retry policy. Transport failures are retried
// up to Retry.MaxAttempts and then reported as ErrConnection; any status other
// than 200 is reported as ErrAPI without retrying.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	stage := req.Stage
	if stage == "" {
		stage = StageFetch
	}
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	// Step 1: Build and validate the URI
	uri, err := c.BuildURI(req.Endpoint, req.Query)
	if err != nil {
		return nil, WithStage(err, stage)
	}

	// Step 2: Encode the body once; each attempt gets a fresh reader
	var payload []byte
	if req.Body != nil {
		payload, err = json.Marshal(req.Body)
		if err != nil {
			return nil, &RequestError{
				Stage:    stage,
				Kind:     KindInvalidArgument,
				Endpoint: req.Endpoint,
				Message:  "encode request body",
				Err:      err,
			}
		}
	}

	headers := c.headers.Merge(req.Headers)

	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(string(stage)).Observe(time.Since(startTime).Seconds())
	}()

	c.logger.Debug().
		Str("stage", string(stage)).
		Str("method", method).
		Str("endpoint", req.Endpoint).
		Bool("has_token", req.Token != "").
		Msg("Executing request")

	// Step 3: Execute with retry on transport failure
	var resp *Response
	retryErr := retryFixed(ctx, c.config.Retry, stage, c.logger, func(attempt int) error {
		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}

		httpReq, reqErr := http.NewRequestWithContext(ctx, method, uri, body)
		if reqErr != nil {
			return &RequestError{
				Stage:    stage,
				Kind:     KindInvalidArgument,
				Endpoint: req.Endpoint,
				Message:  reqErr.Error(),
				Err:      ErrInvalidURI,
			}
		}

		headers.Apply(httpReq.Header)
		if c.config.UserAgent != "" {
			httpReq.Header.Set("User-Agent", c.config.UserAgent)
		}
		if req.Token != "" {
			(&oauth2.Token{AccessToken: req.Token, TokenType: "Bearer"}).SetAuthHeader(httpReq)
		}

		httpResp, doErr := c.httpClient.Do(httpReq)
		if doErr != nil {
			c.logger.Debug().
				Err(doErr).
				Str("stage", string(stage)).
				Str("endpoint", req.Endpoint).
				Int("attempt", attempt).
				Msg("HTTP request failed")
			requestsTotal.WithLabelValues(string(stage), "network_error").Inc()
			return doErr
		}
		defer httpResp.Body.Close()

		data, readErr := io.ReadAll(httpResp.Body)
		if readErr != nil {
			requestsTotal.WithLabelValues(string(stage), "network_error").Inc()
			return fmt.Errorf("read response body: %w", readErr)
		}

		resp = &Response{
			StatusCode: httpResp.StatusCode,
			Header:     httpResp.Header,
			Body:       data,
		}
		return nil
	})

	if retryErr != nil {
		var reqErr *RequestError
		if errors.As(retryErr, &reqErr) {
			return nil, WithStage(retryErr, stage)
		}
		return nil, &RequestError{
			Stage:    stage,
			Kind:     KindConnection,
			Endpoint: req.Endpoint,
			Err:      retryErr,
		}
	}

	requestsTotal.WithLabelValues(string(stage), strconv.Itoa(resp.StatusCode)).Inc()

	// Step 4: Anything but 200 is an API error
	if resp.StatusCode != http.StatusOK {
		c.logger.Warn().
			Str("stage", string(stage)).
			Str("endpoint", req.Endpoint).
			Int("status", resp.StatusCode).
			Msg("API request error")

		return nil, &RequestError{
			Stage:      stage,
			Kind:       KindAPI,
			StatusCode: resp.StatusCode,
			Endpoint:   req.Endpoint,
			Message:    snippet(resp.Body),
		}
	}

	return resp, nil
}

// snippet truncates a response body for error messages.
func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxErrorBody {
		return s[:maxErrorBody] + "..."
	}
	return s
}

// Headers returns a copy of the static header set.
func (c *Client) Headers() Headers {
	return c.headers.Clone()
}

// SetHeaders merges h into the static header set, or replaces the set
// wholesale when merge is false. Replacing keeps an existing Authorization
// header unless h sets one.
func (c *Client) SetHeaders(h Headers, merge bool) {
	if merge {
		c.headers = c.headers.Merge(h)
		return
	}
	c.headers = c.headers.Replace(h)
}

// BaseURI returns the configured base URI.
func (c *Client) BaseURI() string {
	return c.config.BaseURI
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}
