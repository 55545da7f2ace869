package hcm

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"
)

// NewCertPool builds the TLS trust roots for outbound connections.
//
// With no bundle path the system roots are used unchanged (nil pool). When a
// path is configured it must be readable and contain at least one PEM
// certificate: a configured-but-broken bundle is a startup error, never a
// silent fallback to an unexpected trust set. replaceSystem controls whether
// the bundle extends or replaces the system roots.
func NewCertPool(path string, replaceSystem bool) (*x509.CertPool, error) {
	if path == "" {
		return nil, nil
	}

	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA bundle %s: %w", path, err)
	}
	if len(pem) == 0 {
		return nil, fmt.Errorf("CA bundle %s is empty", path)
	}

	var pool *x509.CertPool
	if replaceSystem {
		pool = x509.NewCertPool()
	} else {
		pool, err = x509.SystemCertPool()
		if err != nil {
			return nil, fmt.Errorf("failed to load system trust roots: %w", err)
		}
	}

	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("CA bundle %s contains no valid PEM certificates", path)
	}

	return pool, nil
}

// NewHTTPTransport returns a pooled transport with the given trust roots.
// Shared by the execution layer and the credential provider.
func NewHTTPTransport(pool *x509.CertPool) *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSClientConfig: &tls.Config{
			RootCAs:    pool,
			MinVersion: tls.VersionTLS12,
		},
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}
