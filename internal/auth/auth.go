// Package auth signs and verifies the host handshake with RSA-PSS signatures.
//
// The router signs the websocket upgrade request to the remote host shell;
// the shell verifies it with the matching public key.
package auth

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"
)

// Handshake header names.
const (
	HeaderKey       = "ROUTERX-ACCESS-KEY"
	HeaderTimestamp = "ROUTERX-ACCESS-TIMESTAMP"
	HeaderSignature = "ROUTERX-ACCESS-SIGNATURE"
)

// HostPath is the path used for host handshake signatures.
const HostPath = "/routerx/host"

// DefaultMaxSkew bounds the age of a signature accepted by Verify.
const DefaultMaxSkew = 30 * time.Second

var (
	ErrMissingHeaders = errors.New("missing authentication headers")
	ErrUnknownKey     = errors.New("unknown key id")
	ErrExpired        = errors.New("signature timestamp out of range")
	ErrBadSignature   = errors.New("signature verification failed")
)

// Credentials holds the key ID and private key for signing requests.
type Credentials struct {
	KeyID      string          // key ID registered with the host shell
	PrivateKey *rsa.PrivateKey // RSA private key for signing
}

// LoadCredentials loads credentials from key ID and private key file path.
func LoadCredentials(keyID, privateKeyPath string) (*Credentials, error) {
	if keyID == "" {
		return nil, fmt.Errorf("key ID is required")
	}
	if privateKeyPath == "" {
		return nil, fmt.Errorf("private key path is required")
	}

	privateKey, err := LoadPrivateKey(privateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("load private key: %w", err)
	}

	return &Credentials{
		KeyID:      keyID,
		PrivateKey: privateKey,
	}, nil
}

// LoadPrivateKey loads an RSA private key from a PEM file.
func LoadPrivateKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block")
	}

	// Try PKCS#8 first (newer format)
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err == nil {
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("key is not an RSA private key")
		}
		return rsaKey, nil
	}

	// Fall back to PKCS#1 (older format)
	rsaKey, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	return rsaKey, nil
}

// Sign generates authentication headers for a request.
func (c *Credentials) Sign(method, path string) (http.Header, error) {
	return c.signAt(time.Now(), method, path)
}

func (c *Credentials) signAt(now time.Time, method, path string) (http.Header, error) {
	timestampMs := now.UnixMilli()

	signature, err := c.generateSignature(timestampMs, method, path)
	if err != nil {
		return nil, err
	}

	h := http.Header{}
	h.Set(HeaderKey, c.KeyID)
	h.Set(HeaderTimestamp, strconv.FormatInt(timestampMs, 10))
	h.Set(HeaderSignature, signature)
	return h, nil
}

// SignHost generates the headers for the host websocket handshake.
func (c *Credentials) SignHost() (http.Header, error) {
	return c.Sign(http.MethodGet, HostPath)
}

// generateSignature creates an RSA-PSS signature.
// Message format: timestamp_ms + method + path
func (c *Credentials) generateSignature(timestampMs int64, method, path string) (string, error) {
	hashed := sha256.Sum256([]byte(message(timestampMs, method, path)))

	signature, err := rsa.SignPSS(
		rand.Reader,
		c.PrivateKey,
		crypto.SHA256,
		hashed[:],
		&rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash},
	)
	if err != nil {
		return "", fmt.Errorf("sign message: %w", err)
	}

	return base64.StdEncoding.EncodeToString(signature), nil
}

func message(timestampMs int64, method, path string) string {
	return strconv.FormatInt(timestampMs, 10) + method + path
}

// Verifier checks signed requests against known public keys.
type Verifier struct {
	Keys    map[string]*rsa.PublicKey
	MaxSkew time.Duration
	now     func() time.Time
}

// NewVerifier creates a Verifier with DefaultMaxSkew.
func NewVerifier(keys map[string]*rsa.PublicKey) *Verifier {
	return &Verifier{Keys: keys, MaxSkew: DefaultMaxSkew, now: time.Now}
}

// Verify checks the headers of r and returns the key ID that signed it.
func (v *Verifier) Verify(r *http.Request) (string, error) {
	keyID := r.Header.Get(HeaderKey)
	ts := r.Header.Get(HeaderTimestamp)
	sig := r.Header.Get(HeaderSignature)
	if keyID == "" || ts == "" || sig == "" {
		return "", ErrMissingHeaders
	}

	pub, ok := v.Keys[keyID]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownKey, keyID)
	}

	timestampMs, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrExpired, ts)
	}
	now := time.Now
	if v.now != nil {
		now = v.now
	}
	age := now().Sub(time.UnixMilli(timestampMs))
	if age < -v.MaxSkew || age > v.MaxSkew {
		return "", fmt.Errorf("%w: %s old", ErrExpired, age)
	}

	raw, err := base64.StdEncoding.DecodeString(sig)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrBadSignature, err)
	}
	hashed := sha256.Sum256([]byte(message(timestampMs, r.Method, r.URL.Path)))
	opts := &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash}
	if err := rsa.VerifyPSS(pub, crypto.SHA256, hashed[:], raw, opts); err != nil {
		return "", fmt.Errorf("%w: %w", ErrBadSignature, err)
	}
	return keyID, nil
}
