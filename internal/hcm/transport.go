package hcm

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TokenSource supplies the bearer credential for outbound requests.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

type attemptTimeoutKey struct{}

// withAttemptTimeout carries a per-attempt timeout override (some HCM
// operations, like projected-balance calculations, run far longer than the
// default) from the client down to the retry transport.
func withAttemptTimeout(ctx context.Context, d time.Duration) context.Context {
	return context.WithValue(ctx, attemptTimeoutKey{}, d)
}

func attemptTimeoutFrom(ctx context.Context, fallback time.Duration) time.Duration {
	if d, ok := ctx.Value(attemptTimeoutKey{}).(time.Duration); ok && d > 0 {
		return d
	}
	return fallback
}

// authTransport attaches the bearer credential to every attempt. Sitting
// inside the retry transport means a token that expires mid-retry is
// refreshed before the next attempt; an expired credential never goes on
// the wire.
type authTransport struct {
	next   http.RoundTripper
	tokens TokenSource
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	token, err := t.tokens.Token(req.Context())
	if err != nil {
		return nil, err
	}
	r := req.Clone(req.Context())
	r.Header.Set("Authorization", "Bearer "+token)
	return t.next.RoundTrip(r)
}

// retryPolicy is the retry configuration resolved from config.
type retryPolicy struct {
	maxAttempts           int
	initialInterval       time.Duration
	maxElapsed            time.Duration
	retryNonIdempotent5xx bool
}

// retryTransport retries failed attempts with exponential backoff.
//
// GET requests are retried on transient transport errors and 5xx responses.
// Non-idempotent methods are retried only on connection-level failures where
// no bytes reached the remote (dial errors); an ambiguous mid-request
// failure is surfaced rather than risking a duplicate write. 5xx retries for
// non-idempotent methods are policy-controlled for remotes that deduplicate.
type retryTransport struct {
	next           http.RoundTripper
	policy         retryPolicy
	defaultTimeout time.Duration
	tracer         trace.Tracer
}

func newRetryTransport(next http.RoundTripper, policy retryPolicy, defaultTimeout time.Duration) *retryTransport {
	return &retryTransport{
		next:           next,
		policy:         policy,
		defaultTimeout: defaultTimeout,
		tracer:         otel.Tracer("hcm-mcp/hcm"),
	}
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	ctx, span := t.tracer.Start(ctx, "hcm.call",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", req.Method),
			attribute.String("url.path", req.URL.Path),
		))
	defer span.End()

	idempotent := req.Method == http.MethodGet || req.Method == http.MethodHead

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = t.policy.initialInterval
	bo.MaxElapsedTime = t.policy.maxElapsed

	attemptTimeout := attemptTimeoutFrom(ctx, t.defaultTimeout)

	var resp *http.Response
	var err error
	for attempt := 1; ; attempt++ {
		resp, err = t.attempt(ctx, req, attempt, attemptTimeout)

		if err == nil && resp.StatusCode < 500 {
			span.SetAttributes(
				attribute.Int("http.response.status_code", resp.StatusCode),
				attribute.Int("hcm.attempts", attempt),
			)
			return resp, nil
		}

		retryable := false
		if err != nil {
			retryable = t.retryableError(idempotent, err)
		} else {
			retryable = idempotent || t.policy.retryNonIdempotent5xx
		}

		wait := bo.NextBackOff()
		if !retryable || attempt >= t.policy.maxAttempts || wait == backoff.Stop {
			break
		}

		if resp != nil {
			io.Copy(io.Discard, resp.Body) //nolint:errcheck
			resp.Body.Close()
		}

		select {
		case <-ctx.Done():
			span.SetStatus(codes.Error, "deadline exceeded during backoff")
			span.SetAttributes(attribute.Int("hcm.attempts", attempt))
			return nil, &TransportError{Timeout: errors.Is(ctx.Err(), context.DeadlineExceeded), Err: ctx.Err()}
		case <-time.After(wait):
		}
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "all attempts failed")
		return nil, err
	}
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	return resp, nil
}

// attempt issues one try with its own timeout and span. The attempt context
// stays alive until the response body is closed.
func (t *retryTransport) attempt(ctx context.Context, req *http.Request, n int, timeout time.Duration) (*http.Response, error) {
	actx, cancel := context.WithTimeout(ctx, timeout)

	actx, span := t.tracer.Start(actx, "hcm.attempt",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", req.Method),
			attribute.String("url.path", req.URL.Path),
			attribute.Int("hcm.attempt", n),
		))

	r := req.Clone(actx)
	if n > 1 && req.Body != nil && req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			span.End()
			cancel()
			return nil, &TransportError{Err: err}
		}
		r.Body = body
	}

	start := time.Now()
	resp, err := t.next.RoundTrip(r)
	span.SetAttributes(attribute.Int64("http.client.request.duration_ms", time.Since(start).Milliseconds()))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "attempt failed")
		span.End()
		cancel()
		if errors.Is(actx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
			return nil, &TransportError{Timeout: true, Err: err}
		}
		return nil, wrapTransportError(err)
	}

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	span.End()

	// The body read happens after RoundTrip returns; keep the attempt
	// context alive until the caller closes the body.
	resp.Body = &bodyWithCancel{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

// retryableError decides whether a failed attempt may be reissued.
func (t *retryTransport) retryableError(idempotent bool, err error) bool {
	var te *TransportError
	if errors.As(err, &te) && te.Timeout {
		// A timed-out attempt may have reached the remote; only safe to
		// reissue when the method is idempotent.
		return idempotent
	}
	if idempotent {
		return isNetworkError(err)
	}
	return failedBeforeBytesSent(err)
}

// failedBeforeBytesSent reports whether the error happened at connection
// establishment, before any request bytes could reach the remote.
func failedBeforeBytesSent(err error) bool {
	var op *net.OpError
	if errors.As(err, &op) {
		return op.Op == "dial"
	}
	return false
}

// isNetworkError reports whether the error is a transport-level failure, as
// opposed to a programmatic or auth error that retrying cannot fix.
func isNetworkError(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	var op *net.OpError
	if errors.As(err, &op) {
		return true
	}
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}

// wrapTransportError normalizes round-trip failures into TransportError,
// leaving already-classified errors (auth failures) untouched.
func wrapTransportError(err error) error {
	var te *TransportError
	if errors.As(err, &te) {
		return err
	}
	if isNetworkError(err) {
		var ne net.Error
		timeout := errors.As(err, &ne) && ne.Timeout()
		return &TransportError{Timeout: timeout, Err: err}
	}
	return err
}

// bodyWithCancel releases the attempt context when the body is closed.
type bodyWithCancel struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *bodyWithCancel) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}
