// Package auth manages the bearer credential used against Oracle HCM.
//
// The provider performs a client-credentials grant against the identity
// endpoint, caches the resulting token, and refreshes it before expiry.
// Concurrent callers never trigger duplicate exchanges: refreshes run
// through a single-flight group and all waiters share the one result.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/singleflight"

	"github.com/bobmcallan/hcm-mcp/internal/common"
	"github.com/bobmcallan/hcm-mcp/internal/config"
)

// exchangeTimeout bounds a single token-endpoint round trip. The exchange
// runs detached from any caller's context so one caller cancelling cannot
// fail a refresh other callers are waiting on.
const exchangeTimeout = 30 * time.Second

// Credential is a bearer token with its expiry. The token value never leaves
// this package except as the opaque string attached to outbound requests.
type Credential struct {
	AccessToken string
	ExpiresAt   time.Time
}

// AuthError reports a failed credential exchange. Fatal means the identity
// endpoint rejected the client credentials; retrying cannot help.
type AuthError struct {
	Fatal bool
	Msg   string
	Err   error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth: %s: %v", e.Msg, e.Err)
	}
	return "auth: " + e.Msg
}

func (e *AuthError) Unwrap() error { return e.Err }

// Provider obtains and refreshes the HCM access token.
type Provider struct {
	tokenURL     string
	clientID     string
	clientSecret string
	scope        string
	margin       time.Duration
	maxAttempts  uint64
	initialWait  time.Duration

	httpClient *http.Client
	logger     *common.Logger

	mu    sync.RWMutex
	cred  *Credential
	group singleflight.Group

	// now is swappable for expiry tests.
	now func() time.Time
}

// NewProvider creates a provider from config. The HTTP client should carry
// the same TLS trust as the execution layer but no auth middleware.
func NewProvider(cfg config.AuthConfig, retry config.RetryConfig, httpClient *http.Client, logger *common.Logger) *Provider {
	margin := time.Duration(cfg.RefreshMarginSeconds) * time.Second
	if margin <= 0 {
		margin = time.Minute
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: exchangeTimeout}
	}
	maxAttempts := uint64(retry.MaxAttempts)
	if maxAttempts == 0 {
		maxAttempts = 4
	}
	initialWait := time.Duration(retry.InitialIntervalMS) * time.Millisecond
	if initialWait <= 0 {
		initialWait = 250 * time.Millisecond
	}
	return &Provider{
		tokenURL:     cfg.TokenURL,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		scope:        cfg.Scope,
		margin:       margin,
		maxAttempts:  maxAttempts,
		initialWait:  initialWait,
		httpClient:   httpClient,
		logger:       logger,
		now:          time.Now,
	}
}

// Token returns a valid access token, exchanging or refreshing as needed.
// A credential is never returned within the refresh margin of its expiry.
func (p *Provider) Token(ctx context.Context) (string, error) {
	if cred := p.cached(); cred != nil {
		return cred.AccessToken, nil
	}

	ch := p.group.DoChan("token", func() (interface{}, error) {
		// Another caller may have completed the refresh while this one
		// queued behind the flight.
		if cred := p.cached(); cred != nil {
			return cred, nil
		}
		return p.exchange()
	})

	select {
	case <-ctx.Done():
		// The flight keeps running for the other waiters.
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(*Credential).AccessToken, nil
	}
}

// cached returns the credential only while it is comfortably inside its
// lifetime.
func (p *Provider) cached() *Credential {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.cred == nil {
		return nil
	}
	if !p.now().Before(p.cred.ExpiresAt.Add(-p.margin)) {
		return nil
	}
	return p.cred
}

// exchange performs the token request with bounded retries. Network and 5xx
// failures are retried with exponential backoff; a credential rejection is
// permanent.
func (p *Provider) exchange() (*Credential, error) {
	var cred *Credential

	op := func() error {
		ctx, cancel := context.WithTimeout(context.Background(), exchangeTimeout)
		defer cancel()

		c, err := p.requestToken(ctx)
		if err != nil {
			var ae *AuthError
			if errors.As(err, &ae) && ae.Fatal {
				return backoff.Permanent(err)
			}
			p.logger.Warn().Str("error", common.Redact(err.Error())).Msg("token exchange failed, will retry")
			return err
		}
		cred = c
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.initialWait
	bo.MaxElapsedTime = exchangeTimeout * 2

	if err := backoff.Retry(op, backoff.WithMaxRetries(bo, p.maxAttempts-1)); err != nil {
		var ae *AuthError
		if errors.As(err, &ae) {
			return nil, err
		}
		return nil, &AuthError{Msg: "token exchange failed after retries", Err: err}
	}

	p.mu.Lock()
	p.cred = cred
	p.mu.Unlock()

	p.logger.Info().
		Str("token_url", p.tokenURL).
		Str("expires_at", cred.ExpiresAt.Format(time.RFC3339)).
		Msg("credential refreshed")

	return cred, nil
}

// requestToken performs one client-credentials exchange.
func (p *Provider) requestToken(ctx context.Context) (*Credential, error) {
	form := url.Values{"grant_type": {"client_credentials"}}
	if p.scope != "" {
		form.Set("scope", p.scope)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, &AuthError{Fatal: true, Msg: "invalid token endpoint", Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(p.clientID, p.clientSecret)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("identity endpoint unreachable: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read token response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		// parsed below
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("identity endpoint returned %d", resp.StatusCode)
	default:
		// 400/401/403: the credentials themselves are bad. The response
		// body is deliberately not included; it may echo the client id.
		return nil, &AuthError{Fatal: true, Msg: fmt.Sprintf("identity endpoint rejected client credentials (status %d)", resp.StatusCode)}
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &AuthError{Fatal: true, Msg: "malformed token response", Err: err}
	}
	if payload.AccessToken == "" {
		return nil, &AuthError{Fatal: true, Msg: "token response missing access_token"}
	}

	expiresIn := payload.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = 3600
	}

	return &Credential{
		AccessToken: payload.AccessToken,
		ExpiresAt:   p.now().Add(time.Duration(expiresIn) * time.Second),
	}, nil
}
