// Package hcm is the HTTP execution layer for Oracle HCM's REST API.
//
// A single pooled client carries every outbound call through a fixed
// middleware chain: retry with exponential backoff, bearer-credential
// attachment per attempt, and a client span per attempt. Request and
// response bodies are never logged, only method, path, status and latency.
package hcm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/bobmcallan/hcm-mcp/internal/common"
	"github.com/bobmcallan/hcm-mcp/internal/config"
)

// maxResponseSize caps how much of a response body is read (8MB).
const maxResponseSize = 8 << 20

// adfContentType is Oracle ADF's action payload content type, required on
// HCM action endpoints.
const adfContentType = "application/vnd.oracle.adf.action+json"

// RequestSpec describes one outbound HCM call.
type RequestSpec struct {
	Method string
	// Path is relative to the versioned API root and may carry a query
	// string, e.g. "/planBalances?onlyData=true".
	Path string
	Body []byte
	// FrameworkVersion attaches the REST-Framework-Version header. Most
	// endpoints require it; planBalances rejects it without Effective-Of.
	FrameworkVersion bool
	// Timeout overrides the per-attempt timeout for slow operations.
	Timeout time.Duration
}

// Response is the outcome of a successful call.
type Response struct {
	StatusCode int
	Body       []byte
}

// Client executes requests against the HCM REST API.
type Client struct {
	baseURL          string
	apiVersion       string
	frameworkVersion string
	requestTimeout   time.Duration
	totalTimeout     time.Duration
	httpClient       *http.Client
	logger           *common.Logger
}

// NewClient builds the execution layer: pooled transport with the given
// trust roots, wrapped by the middleware chain.
func NewClient(cfg config.HCMConfig, retry config.RetryConfig, base http.RoundTripper, tokens TokenSource, logger *common.Logger) *Client {
	requestTimeout := time.Duration(cfg.RequestTimeoutSeconds) * time.Second
	if requestTimeout <= 0 {
		requestTimeout = 30 * time.Second
	}
	totalTimeout := time.Duration(cfg.TotalTimeoutSeconds) * time.Second
	if totalTimeout <= 0 {
		totalTimeout = 120 * time.Second
	}

	policy := retryPolicy{
		maxAttempts:           retry.MaxAttempts,
		initialInterval:       time.Duration(retry.InitialIntervalMS) * time.Millisecond,
		maxElapsed:            time.Duration(retry.MaxElapsedSeconds) * time.Second,
		retryNonIdempotent5xx: retry.RetryNonIdempotent5xx,
	}
	if policy.maxAttempts < 1 {
		policy.maxAttempts = 1
	}
	if policy.initialInterval <= 0 {
		policy.initialInterval = 250 * time.Millisecond
	}
	if policy.maxElapsed <= 0 {
		policy.maxElapsed = time.Minute
	}

	// Chain, outermost first: retry -> bearer auth -> otel client span ->
	// pooled transport. Auth inside retry keeps every attempt's credential
	// fresh.
	var rt http.RoundTripper = otelhttp.NewTransport(base)
	rt = &authTransport{next: rt, tokens: tokens}
	rt = newRetryTransport(rt, policy, requestTimeout)

	return &Client{
		baseURL:          cfg.BaseURL,
		apiVersion:       cfg.APIVersion,
		frameworkVersion: cfg.FrameworkVersion,
		requestTimeout:   requestTimeout,
		totalTimeout:     totalTimeout,
		httpClient:       &http.Client{Transport: rt},
		logger:           logger,
	}
}

// Execute performs one call described by spec. Non-2xx statuses return
// *StatusError; network failures and timeouts return *TransportError.
func (c *Client) Execute(ctx context.Context, spec RequestSpec) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.totalTimeout)
	defer cancel()

	if spec.Timeout > 0 {
		ctx = withAttemptTimeout(ctx, spec.Timeout)
	}

	u := fmt.Sprintf("%s/hcmRestApi/resources/%s%s", c.baseURL, c.apiVersion, spec.Path)

	var bodyReader io.Reader
	if len(spec.Body) > 0 {
		bodyReader = bytes.NewReader(spec.Body)
	}

	req, err := http.NewRequestWithContext(ctx, spec.Method, u, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if spec.FrameworkVersion {
		req.Header.Set("REST-Framework-Version", c.frameworkVersion)
	}
	if spec.Method != http.MethodGet && len(spec.Body) > 0 {
		req.Header.Set("Content-Type", adfContentType)
	}

	c.logger.Debug().
		Str("method", spec.Method).
		Str("path", spec.Path).
		Msg("HCM request")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)

	if err != nil {
		err = unwrapClientError(err, ctx)
		c.logger.Warn().
			Str("method", spec.Method).
			Str("path", spec.Path).
			Dur("duration", duration).
			Str("error", common.Redact(err.Error())).
			Msg("HCM request failed")
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, &TransportError{Err: fmt.Errorf("failed to read response: %w", err)}
	}

	c.logger.Debug().
		Str("method", spec.Method).
		Str("path", spec.Path).
		Int("status", resp.StatusCode).
		Dur("duration", duration).
		Msg("HCM response")

	if resp.StatusCode >= 400 {
		return nil, &StatusError{
			StatusCode: resp.StatusCode,
			Body:       common.Redact(truncate(string(body), 512)),
		}
	}

	return &Response{StatusCode: resp.StatusCode, Body: body}, nil
}

// unwrapClientError strips the *url.Error wrapper http.Client adds and
// classifies whatever is left. The wrapper must go first: url.Error itself
// satisfies net.Error, which would misclassify auth failures as transport
// failures.
func unwrapClientError(err error, ctx context.Context) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		err = ue.Err
	}
	var te *TransportError
	if errors.As(err, &te) {
		return te
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &TransportError{Timeout: true, Err: err}
	}
	if isNetworkError(err) {
		return wrapTransportError(err)
	}
	// Auth and other pre-flight errors pass through unchanged.
	return err
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
