package hcm

import (
	"crypto/x509"
	"encoding/pem"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

// serverCertPEM grabs a PEM-encoded certificate from an httptest TLS server,
// giving the tests a real certificate without fixtures.
func serverCertPEM(t *testing.T) []byte {
	t.Helper()
	srv := httptest.NewTLSServer(nil)
	defer srv.Close()
	cert := srv.Certificate()
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw})
}

func writeBundle(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bundle.pem")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestNewCertPool_NoBundle(t *testing.T) {
	pool, err := NewCertPool("", false)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if pool != nil {
		t.Error("Expected nil pool for system trust")
	}
}

func TestNewCertPool_MissingFile(t *testing.T) {
	if _, err := NewCertPool("/nonexistent/bundle.pem", false); err == nil {
		t.Fatal("Expected error for missing bundle")
	}
}

func TestNewCertPool_EmptyFile(t *testing.T) {
	path := writeBundle(t, nil)
	if _, err := NewCertPool(path, false); err == nil {
		t.Fatal("Expected error for empty bundle")
	}
}

func TestNewCertPool_InvalidPEM(t *testing.T) {
	path := writeBundle(t, []byte("not a certificate"))
	if _, err := NewCertPool(path, false); err == nil {
		t.Fatal("Expected error for bundle with no PEM certificates")
	}
}

func TestNewCertPool_ValidBundle(t *testing.T) {
	path := writeBundle(t, serverCertPEM(t))
	pool, err := NewCertPool(path, false)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if pool == nil {
		t.Fatal("Expected a populated pool")
	}
}

func TestNewCertPool_ReplaceSystem(t *testing.T) {
	path := writeBundle(t, serverCertPEM(t))
	pool, err := NewCertPool(path, true)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	// A replacement pool contains exactly the bundled certificate.
	fresh := x509.NewCertPool()
	if pool.Equal(fresh) {
		t.Error("Expected the bundle certificate in the pool")
	}
}
