package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bobmcallan/hcm-mcp/internal/common"
	"github.com/bobmcallan/hcm-mcp/internal/config"
)

func testProvider(t *testing.T, tokenURL string) *Provider {
	t.Helper()
	return NewProvider(
		config.AuthConfig{
			TokenURL:             tokenURL,
			ClientID:             "client",
			ClientSecret:         "secret",
			RefreshMarginSeconds: 60,
		},
		config.RetryConfig{MaxAttempts: 3, InitialIntervalMS: 1},
		nil,
		common.NewSilentLogger(),
	)
}

func tokenHandler(exchanges *int32, expiresIn int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(exchanges, 1)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "tok-1",
			"token_type":   "Bearer",
			"expires_in":   expiresIn,
		})
	}
}

func TestToken_ExchangeAndCache(t *testing.T) {
	var exchanges int32
	srv := httptest.NewServer(tokenHandler(&exchanges, 3600))
	defer srv.Close()

	p := testProvider(t, srv.URL)

	for i := 0; i < 3; i++ {
		tok, err := p.Token(context.Background())
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if tok != "tok-1" {
			t.Errorf("Expected tok-1, got %s", tok)
		}
	}
	if n := atomic.LoadInt32(&exchanges); n != 1 {
		t.Errorf("Expected 1 exchange for 3 sequential calls, got %d", n)
	}
}

func TestToken_SendsClientCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "client" || pass != "secret" {
			t.Errorf("Expected basic auth with client credentials, got %s/%s", user, pass)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatal(err)
		}
		if g := r.PostForm.Get("grant_type"); g != "client_credentials" {
			t.Errorf("Expected grant_type=client_credentials, got %s", g)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"access_token": "tok-1", "expires_in": 3600})
	}))
	defer srv.Close()

	if _, err := testProvider(t, srv.URL).Token(context.Background()); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
}

func TestToken_ConcurrentCallersShareOneExchange(t *testing.T) {
	var exchanges int32
	gate := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&exchanges, 1)
		<-gate
		json.NewEncoder(w).Encode(map[string]interface{}{"access_token": "tok-1", "expires_in": 3600})
	}))
	defer srv.Close()

	p := testProvider(t, srv.URL)

	const callers = 20
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.Token(context.Background())
			errs <- err
		}()
	}

	// Give all goroutines time to pile onto the flight, then release it.
	time.Sleep(50 * time.Millisecond)
	close(gate)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("Unexpected caller error: %v", err)
		}
	}
	if n := atomic.LoadInt32(&exchanges); n != 1 {
		t.Errorf("Expected exactly 1 exchange for %d concurrent callers, got %d", callers, n)
	}
}

func TestToken_RefreshesInsideMargin(t *testing.T) {
	var exchanges int32
	srv := httptest.NewServer(tokenHandler(&exchanges, 120))
	defer srv.Close()

	p := testProvider(t, srv.URL)

	now := time.Now()
	p.now = func() time.Time { return now }

	if _, err := p.Token(context.Background()); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	// Within the margin of the 120s lifetime: the cached credential no
	// longer qualifies and a new exchange runs.
	now = now.Add(70 * time.Second)
	if _, err := p.Token(context.Background()); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if n := atomic.LoadInt32(&exchanges); n != 2 {
		t.Errorf("Expected refresh inside margin, got %d exchanges", n)
	}
}

func TestToken_RejectedCredentialsAreFatal(t *testing.T) {
	var exchanges int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&exchanges, 1)
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"invalid_client"}`))
	}))
	defer srv.Close()

	p := testProvider(t, srv.URL)
	_, err := p.Token(context.Background())
	if err == nil {
		t.Fatal("Expected error for rejected credentials")
	}
	ae, ok := err.(*AuthError)
	if !ok {
		t.Fatalf("Expected *AuthError, got %T", err)
	}
	if !ae.Fatal {
		t.Error("Expected rejection to be fatal")
	}
	if n := atomic.LoadInt32(&exchanges); n != 1 {
		t.Errorf("Fatal rejection must not be retried, got %d exchanges", n)
	}
	if strings.Contains(err.Error(), "invalid_client") {
		t.Errorf("Identity endpoint body must not be echoed: %q", err.Error())
	}
}

func TestToken_TransientFailureIsRetried(t *testing.T) {
	var exchanges int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&exchanges, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"access_token": "tok-2", "expires_in": 3600})
	}))
	defer srv.Close()

	tok, err := testProvider(t, srv.URL).Token(context.Background())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if tok != "tok-2" {
		t.Errorf("Expected tok-2 after retry, got %s", tok)
	}
	if n := atomic.LoadInt32(&exchanges); n != 2 {
		t.Errorf("Expected 2 exchanges, got %d", n)
	}
}

func TestToken_MissingAccessTokenIsFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"token_type": "Bearer"})
	}))
	defer srv.Close()

	_, err := testProvider(t, srv.URL).Token(context.Background())
	if err == nil {
		t.Fatal("Expected error for missing access_token")
	}
	ae, ok := err.(*AuthError)
	if !ok || !ae.Fatal {
		t.Errorf("Expected fatal *AuthError, got %v", err)
	}
}

func TestToken_CancelledCallerDoesNotFailFlight(t *testing.T) {
	gate := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-gate
		json.NewEncoder(w).Encode(map[string]interface{}{"access_token": "tok-1", "expires_in": 3600})
	}))
	defer srv.Close()

	p := testProvider(t, srv.URL)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := p.Token(ctx)
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	if err := <-done; err != context.Canceled {
		t.Errorf("Expected context.Canceled, got %v", err)
	}

	// The in-flight exchange still completes for the next caller.
	close(gate)
	tok, err := p.Token(context.Background())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if tok != "tok-1" {
		t.Errorf("Expected tok-1, got %s", tok)
	}
}
