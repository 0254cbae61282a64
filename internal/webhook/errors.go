package webhook

import "errors"

var (
	// ErrUnauthorized covers every authentication failure: a missing or
	// malformed credential, a bad signature, an expired token and a body
	// digest mismatch. Callers must not reveal which check failed.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrMalformedRequest means the body is not a valid deploy request.
	ErrMalformedRequest = errors.New("malformed request")

	// ErrMalformedEnv means a client env entry is not in KEY=VALUE form.
	ErrMalformedEnv = errors.New(`malformed env option, must be "NAME=VALUE"`)
)
