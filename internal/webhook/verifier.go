package webhook

import (
	"crypto/hmac"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// BearerPrefix precedes the token in the Authorization header.
const BearerPrefix = "Bearer "

// Verifier authenticates incoming deploy requests.
type Verifier struct {
	secret []byte
	modes  []Command
	now    func() time.Time
}

// VerifierOption customizes a Verifier.
type VerifierOption func(*Verifier)

// WithModes restricts the commands the verifier accepts.
func WithModes(modes ...Command) VerifierOption {
	return func(v *Verifier) {
		v.modes = modes
	}
}

// WithVerifierClock sets the clock used for expiry checks.
func WithVerifierClock(now func() time.Time) VerifierOption {
	return func(v *Verifier) {
		v.now = now
	}
}

// NewVerifier creates a verifier for the shared secret. By default every
// command is accepted.
func NewVerifier(secret string, opts ...VerifierOption) *Verifier {
	v := &Verifier{
		secret: []byte(secret),
		modes:  AllCommands,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Modes returns the commands this verifier accepts.
func (v *Verifier) Modes() []Command {
	return v.modes
}

// Verify checks the Authorization header value against body and decodes the
// request. Authentication failures wrap ErrUnauthorized and decoding failures
// wrap ErrMalformedRequest.
func (v *Verifier) Verify(authorization string, body []byte) (*DeployRequest, error) {
	claims, err := v.authenticate(authorization)
	if err != nil {
		return nil, err
	}

	if !hmac.Equal([]byte(BodyDigest(body)), []byte(claims.BodyHash)) {
		return nil, fmt.Errorf("%w: body digest mismatch", ErrUnauthorized)
	}

	return DecodeRequest(body, v.modes)
}

func (v *Verifier) authenticate(authorization string) (*Claims, error) {
	tokenString, ok := strings.CutPrefix(authorization, BearerPrefix)
	if !ok || strings.TrimSpace(tokenString) == "" {
		return nil, fmt.Errorf("%w: missing bearer token", ErrUnauthorized)
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}

	if claims.BodyHash == "" {
		return nil, fmt.Errorf("%w: missing body_hash claim", ErrUnauthorized)
	}

	return claims, nil
}
