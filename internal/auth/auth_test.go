package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate test key: %v", err)
	}
	return privateKey
}

func TestCredentials_Sign(t *testing.T) {
	creds := &Credentials{
		KeyID:      "test-key-id",
		PrivateKey: newTestKey(t),
	}

	headers, err := creds.Sign("GET", HostPath)
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}

	if got := headers.Get(HeaderKey); got != "test-key-id" {
		t.Errorf("%s = %q, want %q", HeaderKey, got, "test-key-id")
	}

	if headers.Get(HeaderTimestamp) == "" {
		t.Errorf("%s is empty", HeaderTimestamp)
	}

	sig := headers.Get(HeaderSignature)
	if !isValidBase64(sig) {
		t.Errorf("%s is not valid base64: %q", HeaderSignature, sig)
	}
}

func signedRequest(t *testing.T, creds *Credentials, at time.Time, method, path string) *http.Request {
	t.Helper()
	headers, err := creds.signAt(at, method, path)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header[k] = v
	}
	return req
}

func TestVerifier_Verify(t *testing.T) {
	key := newTestKey(t)
	other := newTestKey(t)
	creds := &Credentials{KeyID: "shell", PrivateKey: key}
	now := time.Now()

	tests := []struct {
		name    string
		req     func() *http.Request
		wantErr error
	}{
		{
			name: "valid",
			req:  func() *http.Request { return signedRequest(t, creds, now, "GET", HostPath) },
		},
		{
			name:    "missing headers",
			req:     func() *http.Request { return httptest.NewRequest("GET", HostPath, nil) },
			wantErr: ErrMissingHeaders,
		},
		{
			name: "unknown key",
			req: func() *http.Request {
				return signedRequest(t, &Credentials{KeyID: "stranger", PrivateKey: key}, now, "GET", HostPath)
			},
			wantErr: ErrUnknownKey,
		},
		{
			name:    "expired",
			req:     func() *http.Request { return signedRequest(t, creds, now.Add(-time.Minute), "GET", HostPath) },
			wantErr: ErrExpired,
		},
		{
			name: "wrong key",
			req: func() *http.Request {
				return signedRequest(t, &Credentials{KeyID: "shell", PrivateKey: other}, now, "GET", HostPath)
			},
			wantErr: ErrBadSignature,
		},
		{
			name: "path mismatch",
			req: func() *http.Request {
				r := signedRequest(t, creds, now, "GET", HostPath)
				r.URL.Path = "/elsewhere"
				return r
			},
			wantErr: ErrBadSignature,
		},
	}

	v := NewVerifier(map[string]*rsa.PublicKey{"shell": &key.PublicKey})
	v.now = func() time.Time { return now }

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			keyID, err := v.Verify(tt.req())
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Verify() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Verify() error = %v", err)
			}
			if keyID != "shell" {
				t.Errorf("Verify() key = %q, want %q", keyID, "shell")
			}
		})
	}
}

func writeKey(t *testing.T, block *pem.Block) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "host-key.pem")
	if err := os.WriteFile(path, pem.EncodeToMemory(block), 0600); err != nil {
		t.Fatalf("failed to write key file: %v", err)
	}
	return path
}

func TestLoadPrivateKey_Formats(t *testing.T) {
	privateKey := newTestKey(t)
	pkcs8, err := x509.MarshalPKCS8PrivateKey(privateKey)
	if err != nil {
		t.Fatalf("failed to marshal PKCS#8: %v", err)
	}

	tests := []struct {
		name  string
		block *pem.Block
	}{
		{name: "pkcs8", block: &pem.Block{Type: "PRIVATE KEY", Bytes: pkcs8}},
		{name: "pkcs1", block: &pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(privateKey)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loaded, err := LoadPrivateKey(writeKey(t, tt.block))
			if err != nil {
				t.Fatalf("LoadPrivateKey failed: %v", err)
			}
			if loaded.N.Cmp(privateKey.N) != 0 {
				t.Error("loaded key does not match original")
			}
		})
	}
}

func TestLoadPrivateKey_FileNotFound(t *testing.T) {
	_, err := LoadPrivateKey("/nonexistent/path/to/key.pem")
	if err == nil {
		t.Error("expected error for nonexistent file")
	}
}

func TestLoadPrivateKey_InvalidPEM(t *testing.T) {
	tmpFile := filepath.Join(t.TempDir(), "invalid.pem")
	if err := os.WriteFile(tmpFile, []byte("not a pem file"), 0600); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}

	_, err := LoadPrivateKey(tmpFile)
	if err == nil {
		t.Error("expected error for invalid PEM")
	}
}

func TestLoadCredentials(t *testing.T) {
	privateKey := newTestKey(t)

	pkcs8Bytes, _ := x509.MarshalPKCS8PrivateKey(privateKey)
	path := writeKey(t, &pem.Block{Type: "PRIVATE KEY", Bytes: pkcs8Bytes})

	creds, err := LoadCredentials("my-key-id", path)
	if err != nil {
		t.Fatalf("LoadCredentials failed: %v", err)
	}

	if creds.KeyID != "my-key-id" {
		t.Errorf("KeyID = %q, want %q", creds.KeyID, "my-key-id")
	}

	if creds.PrivateKey == nil {
		t.Error("PrivateKey is nil")
	}
}

func TestLoadCredentials_MissingKeyID(t *testing.T) {
	_, err := LoadCredentials("", "/some/path")
	if err == nil {
		t.Error("expected error for missing key ID")
	}
}

func TestLoadCredentials_MissingPath(t *testing.T) {
	_, err := LoadCredentials("key-id", "")
	if err == nil {
		t.Error("expected error for missing path")
	}
}

func isValidBase64(s string) bool {
	// Base64 encoded string should only contain valid characters
	for _, c := range s {
		if !strings.ContainsRune("ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/=", c) {
			return false
		}
	}
	return len(s) > 0
}
