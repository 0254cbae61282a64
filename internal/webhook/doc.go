// Package webhook implements the signed deploy request protocol shared by the
// rollout client and server.
//
// A request body is the JSON encoding of a DeployRequest. The client signs it
// with a short-lived HS256 JWT whose body_hash claim is the hex SHA-512 digest
// of the exact body bytes, and sends the token as a bearer credential:
//
//	Authorization: Bearer <token>
//
// The server accepts the request only when the token signature is valid, the
// token has not expired, and the digest of the received body matches the
// claim. The token alone is useless without its body, and the body is useless
// without a fresh token.
package webhook
