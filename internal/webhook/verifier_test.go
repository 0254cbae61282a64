package webhook

import (
	"bytes"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "kJ8mN2pQ5tR7vX1zB4cE6gH9jL3nP8qS2uW5yA7bD0fG3hK6"

func testRequest() *DeployRequest {
	return &DeployRequest{
		Command: CommandCompose,
		File:    "version: '3'\nservices: {}",
		Name:    "demo",
		Env:     map[string]string{},
	}
}

func TestSignVerify_RoundTrip(t *testing.T) {
	requests := []*DeployRequest{
		testRequest(),
		{
			Command: CommandStack,
			File:    "services:\n  web:\n    image: nginx:${TAG}\n",
			Name:    "web.prod",
			Env:     map[string]string{"TAG": "1.27", "REPLICAS": "3", "EMPTY": ""},
		},
		{
			Command: CommandCompose,
			File:    "x-unicode: \"héllo wörld ✓\"\n",
			Name:    "unicode",
			Env:     map[string]string{"GREETING": "¡hola!"},
		},
	}

	signer := NewSigner(testSecret)
	verifier := NewVerifier(testSecret)

	for _, req := range requests {
		t.Run(req.Name, func(t *testing.T) {
			body, token, err := signer.Sign(req)
			if err != nil {
				t.Fatalf("Sign() error = %v", err)
			}

			got, err := verifier.Verify(BearerPrefix+token, body)
			if err != nil {
				t.Fatalf("Verify() error = %v", err)
			}
			if !reflect.DeepEqual(got, req) {
				t.Errorf("Verify() = %+v, want %+v", got, req)
			}
		})
	}
}

func TestSign_TokenClaims(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	signer := NewSigner(testSecret, WithSignerClock(func() time.Time { return now }))

	body, token, err := signer.Sign(testRequest())
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}

	claims := &Claims{}
	_, _, err = jwt.NewParser().ParseUnverified(token, claims)
	if err != nil {
		t.Fatalf("ParseUnverified() error = %v", err)
	}

	if claims.BodyHash != BodyDigest(body) {
		t.Errorf("body_hash = %q, want digest of body", claims.BodyHash)
	}
	if len(claims.BodyHash) != 128 {
		t.Errorf("body_hash length = %d, want 128 hex chars", len(claims.BodyHash))
	}
	if claims.ExpiresAt == nil || !claims.ExpiresAt.Time.Equal(now.Add(TokenTTL)) {
		t.Errorf("exp = %v, want %v", claims.ExpiresAt, now.Add(TokenTTL))
	}
}

func TestVerify_ExpiredToken(t *testing.T) {
	past := time.Now().Add(-2 * TokenTTL)
	signer := NewSigner(testSecret, WithSignerClock(func() time.Time { return past }))

	body, token, err := signer.Sign(testRequest())
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}

	_, err = NewVerifier(testSecret).Verify(BearerPrefix+token, body)
	if !errors.Is(err, ErrUnauthorized) {
		t.Errorf("Verify() error = %v, want ErrUnauthorized", err)
	}
}

func TestVerify_TokenValidWithinTTL(t *testing.T) {
	signed := time.Unix(1_700_000_000, 0)
	signer := NewSigner(testSecret, WithSignerClock(func() time.Time { return signed }))

	body, token, err := signer.Sign(testRequest())
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}

	tests := []struct {
		name    string
		at      time.Time
		wantErr bool
	}{
		{"immediately", signed, false},
		{"just before expiry", signed.Add(TokenTTL - time.Second), false},
		{"after expiry", signed.Add(TokenTTL + time.Second), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verifier := NewVerifier(testSecret, WithVerifierClock(func() time.Time { return tt.at }))
			_, err := verifier.Verify(BearerPrefix+token, body)
			if (err != nil) != tt.wantErr {
				t.Errorf("Verify() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestVerify_WrongSecret(t *testing.T) {
	body, token, err := NewSigner("wrong-secret-kJ8mN2pQ5tR7vX1zB4cE6gH9jL3nP8qS").Sign(testRequest())
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}

	_, err = NewVerifier(testSecret).Verify(BearerPrefix+token, body)
	if !errors.Is(err, ErrUnauthorized) {
		t.Errorf("Verify() error = %v, want ErrUnauthorized", err)
	}
}

func TestVerify_DigestBinding(t *testing.T) {
	signer := NewSigner(testSecret)
	verifier := NewVerifier(testSecret)

	body1, token1, err := signer.Sign(testRequest())
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}

	other := testRequest()
	other.Name = "other"
	body2, _, err := signer.Sign(other)
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}

	if bytes.Equal(body1, body2) {
		t.Fatal("test bodies must differ")
	}

	_, err = verifier.Verify(BearerPrefix+token1, body2)
	if !errors.Is(err, ErrUnauthorized) {
		t.Errorf("Verify() with foreign body error = %v, want ErrUnauthorized", err)
	}
}

func TestVerify_TamperedBody(t *testing.T) {
	body, token, err := NewSigner(testSecret).Sign(testRequest())
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}

	verifier := NewVerifier(testSecret)
	for i := range body {
		tampered := bytes.Clone(body)
		tampered[i] ^= 0x01

		if _, err := verifier.Verify(BearerPrefix+token, tampered); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("Verify() with byte %d flipped error = %v, want ErrUnauthorized", i, err)
		}
	}
}

func TestVerify_MalformedCredential(t *testing.T) {
	body, token, err := NewSigner(testSecret).Sign(testRequest())
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}

	tests := []struct {
		name          string
		authorization string
	}{
		{"empty header", ""},
		{"no bearer prefix", token},
		{"wrong scheme", "Basic " + token},
		{"lowercase scheme", "bearer " + token},
		{"empty token", BearerPrefix},
		{"blank token", BearerPrefix + "   "},
		{"garbage token", BearerPrefix + "not.a.jwt"},
		{"truncated token", BearerPrefix + token[:len(token)-4]},
	}

	verifier := NewVerifier(testSecret)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := verifier.Verify(tt.authorization, body)
			if !errors.Is(err, ErrUnauthorized) {
				t.Errorf("Verify() error = %v, want ErrUnauthorized", err)
			}
		})
	}
}

func TestVerify_MissingExpiry(t *testing.T) {
	body, err := testRequest().Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"body_hash": BodyDigest(body),
	}).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}

	_, err = NewVerifier(testSecret).Verify(BearerPrefix+token, body)
	if !errors.Is(err, ErrUnauthorized) {
		t.Errorf("Verify() error = %v, want ErrUnauthorized", err)
	}
}

func TestVerify_MissingBodyHash(t *testing.T) {
	body, err := testRequest().Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": time.Now().Add(time.Minute).Unix(),
	}).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}

	_, err = NewVerifier(testSecret).Verify(BearerPrefix+token, body)
	if !errors.Is(err, ErrUnauthorized) {
		t.Errorf("Verify() error = %v, want ErrUnauthorized", err)
	}
}

func TestVerify_RejectsOtherAlgorithms(t *testing.T) {
	body, err := testRequest().Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	claims := jwt.MapClaims{
		"exp":       time.Now().Add(time.Minute).Unix(),
		"body_hash": BodyDigest(body),
	}

	noneToken, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("SignedString(none) error = %v", err)
	}
	hs512Token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("SignedString(HS512) error = %v", err)
	}

	verifier := NewVerifier(testSecret)
	for name, token := range map[string]string{"none": noneToken, "HS512": hs512Token} {
		t.Run(name, func(t *testing.T) {
			_, err := verifier.Verify(BearerPrefix+token, body)
			if !errors.Is(err, ErrUnauthorized) {
				t.Errorf("Verify() error = %v, want ErrUnauthorized", err)
			}
		})
	}
}

func TestVerify_MalformedBodyWithValidToken(t *testing.T) {
	signer := NewSigner(testSecret)
	verifier := NewVerifier(testSecret)

	bodies := map[string][]byte{
		"invalid json":  []byte(`{"file":`),
		"missing name":  []byte(`{"command":"stack","file":"x","env":{}}`),
		"missing env":   []byte(`{"command":"stack","file":"x","name":"web"}`),
		"missing file":  []byte(`{"command":"stack","name":"web","env":{}}`),
		"no command":    []byte(`{"file":"x","name":"web","env":{}}`),
		"invalid utf-8": {0xff, 0xfe},
	}

	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			token, err := signer.SignBody(body)
			if err != nil {
				t.Fatalf("SignBody() error = %v", err)
			}

			_, err = verifier.Verify(BearerPrefix+token, body)
			if !errors.Is(err, ErrMalformedRequest) {
				t.Errorf("Verify() error = %v, want ErrMalformedRequest", err)
			}
		})
	}
}

func TestVerify_SingleMode(t *testing.T) {
	signer := NewSigner(testSecret)
	verifier := NewVerifier(testSecret, WithModes(CommandStack))

	body := []byte(`{"file":"services: {}","name":"web","env":{}}`)
	token, err := signer.SignBody(body)
	if err != nil {
		t.Fatalf("SignBody() error = %v", err)
	}

	req, err := verifier.Verify(BearerPrefix+token, body)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if req.Command != CommandStack {
		t.Errorf("Command = %q, want %q", req.Command, CommandStack)
	}
}

func TestVerify_AuthenticationBeforeDecoding(t *testing.T) {
	// An unauthenticated caller must not learn whether a body parses.
	_, err := NewVerifier(testSecret).Verify("", []byte(`not json`))
	if !errors.Is(err, ErrUnauthorized) {
		t.Errorf("Verify() error = %v, want ErrUnauthorized", err)
	}
}

func TestBodyDigest(t *testing.T) {
	// sha512("")
	want := "cf83e1357eefb8bdf1542850d66d8007d620e4050b5715dc83f4a921d36ce9ce47d0d13c5d85f2b0ff8318d2877eec2f63b931bd47417a81a538327af927da3e"
	if got := BodyDigest(nil); got != want {
		t.Errorf("BodyDigest(nil) = %s, want %s", got, want)
	}
}

func BenchmarkVerify(b *testing.B) {
	body, token, err := NewSigner(testSecret).Sign(testRequest())
	if err != nil {
		b.Fatalf("Sign() error = %v", err)
	}
	verifier := NewVerifier(testSecret)
	authorization := BearerPrefix + token

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = verifier.Verify(authorization, body)
	}
}
