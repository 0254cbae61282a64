package webhook

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Signer produces request bodies and the tokens bound to them.
type Signer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// SignerOption customizes a Signer.
type SignerOption func(*Signer)

// WithSignerClock sets the clock used to compute token expiry.
func WithSignerClock(now func() time.Time) SignerOption {
	return func(s *Signer) {
		s.now = now
	}
}

// WithTTL overrides TokenTTL.
func WithTTL(ttl time.Duration) SignerOption {
	return func(s *Signer) {
		s.ttl = ttl
	}
}

// NewSigner creates a signer for the shared secret.
func NewSigner(secret string, opts ...SignerOption) *Signer {
	s := &Signer{
		secret: []byte(secret),
		ttl:    TokenTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sign encodes req and returns the body together with a token bound to it.
// The caller must send body unmodified.
func (s *Signer) Sign(req *DeployRequest) ([]byte, string, error) {
	body, err := req.Encode()
	if err != nil {
		return nil, "", err
	}

	token, err := s.SignBody(body)
	if err != nil {
		return nil, "", err
	}

	return body, token, nil
}

// SignBody returns a token bound to the exact bytes of body.
func (s *Signer) SignBody(body []byte) (string, error) {
	claims := Claims{
		BodyHash: BodyDigest(body),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(s.now().Add(s.ttl)),
		},
	}

	token, err := jwt.NewWithClaims(signingMethod, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return token, nil
}
