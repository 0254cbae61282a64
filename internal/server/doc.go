// Package server implements the HTTP side of the rollout deploy daemon.
//
// This package provides:
//   - A deploy endpoint accepting signed requests on any POST path
//   - Mapping of verification and command outcomes to HTTP responses
//   - A health endpoint listing the enabled deploy modes
//   - Optional per-IP rate limiting and structured request logging
//
// The server integrates with other packages:
//   - internal/webhook: bearer token and body digest verification
//   - internal/deployment: running docker for the verified request
//
// Response codes:
//   - 200: the command succeeded, body is {"stdout","stderr"}
//   - 400: the body is not a valid deploy request
//   - 401: the token is missing, invalid, expired or bound to another body
//   - 413: the body exceeds MaxPayloadBytes
//   - 444: the command exited non-zero, body is {"code","stdout","stderr"}
//   - 500: docker could not be run
//   - 504: the command was killed by the command timeout
package server
