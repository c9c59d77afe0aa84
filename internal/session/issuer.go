// Package session issues and verifies stateless signed session tokens.
package session

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MinSecretLen is the minimum signing secret size. Shorter secrets are a
// configuration error surfaced at startup, not at runtime.
const MinSecretLen = 32

// claims is the signed payload. The nonce only prevents two tokens for the
// same identity and expiry from being byte-identical.
type claims struct {
	Identity  string `json:"identity"`
	IssuedAt  int64  `json:"issued_at"`
	ExpiresAt int64  `json:"expires_at"`
	Nonce     string `json:"nonce"`
}

// Issuer converts a verified identity into a time-bounded, tamper-evident
// token: base64url(payload) + "." + base64url(HMAC-SHA256(secret, payload)).
// Tokens are not persisted; validity is signature plus expiry. Revocation
// before natural expiry is out of scope.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewIssuer(secret []byte, ttl time.Duration) (*Issuer, error) {
	if len(secret) < MinSecretLen {
		return nil, errors.New("session secret must be at least 32 bytes")
	}
	if ttl <= 0 {
		return nil, errors.New("session ttl must be positive")
	}
	return &Issuer{secret: secret, ttl: ttl, now: time.Now}, nil
}

// WithClock overrides the time source (tests).
func (i *Issuer) WithClock(now func() time.Time) *Issuer {
	i.now = now
	return i
}

// TTL returns the validity window, used to size the session cookie.
func (i *Issuer) TTL() time.Duration { return i.ttl }

// Issue signs a token for the identity, valid for the configured TTL.
func (i *Issuer) Issue(identity string) (string, error) {
	if identity == "" {
		return "", errors.New("identity is required")
	}

	now := i.now()
	payload, err := json.Marshal(claims{
		Identity:  identity,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(i.ttl).Unix(),
		Nonce:     uuid.NewString(),
	})
	if err != nil {
		return "", err
	}

	encoded := base64.RawURLEncoding.EncodeToString(payload)
	return encoded + "." + i.sign(payload), nil
}

// Verify recomputes the signature over the decoded payload and compares in
// constant time. Any malformed structure, signature mismatch, or expiry
// yields not-ok; there is no partial validity.
func (i *Issuer) Verify(token string) (string, bool) {
	encoded, sig, found := strings.Cut(token, ".")
	if !found || encoded == "" || sig == "" {
		return "", false
	}

	payload, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return "", false
	}
	if !hmac.Equal([]byte(sig), []byte(i.sign(payload))) {
		return "", false
	}

	var c claims
	if err := json.Unmarshal(payload, &c); err != nil {
		return "", false
	}
	if c.Identity == "" || i.now().Unix() >= c.ExpiresAt {
		return "", false
	}
	return c.Identity, true
}

func (i *Issuer) sign(payload []byte) string {
	mac := hmac.New(sha256.New, i.secret)
	mac.Write(payload)
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
