package webhook

import (
	"crypto/sha512"
	"encoding/hex"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenTTL is how long a signed token stays valid after signing.
const TokenTTL = 5 * time.Minute

// signingMethod is the only algorithm accepted for deploy tokens.
var signingMethod = jwt.SigningMethodHS256

// Claims binds a token to one request body.
type Claims struct {
	BodyHash string `json:"body_hash"`
	jwt.RegisteredClaims
}

// BodyDigest returns the lowercase hex SHA-512 digest of body.
func BodyDigest(body []byte) string {
	sum := sha512.Sum512(body)
	return hex.EncodeToString(sum[:])
}
