package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"rollout/internal/deployment"
	"rollout/internal/webhook"
	"rollout/pkg/cmdutil"

	"github.com/google/uuid"
)

const (
	MaxPayloadBytes = 1_000_000 // 1 MB

	// StatusCommandFailed is returned when the deploy command exits non-zero.
	StatusCommandFailed = 444

	// DeployIDHeader carries the ID assigned to each verified deploy.
	DeployIDHeader = "X-Deploy-ID"
)

// Plain-text response bodies.
const (
	msgUnauthorized    = "Unauthorized"
	msgMalformed       = "Malformed json"
	msgTooLarge        = "Payload too large"
	msgTimeout         = "Command timed out"
	msgInternalFailure = "Internal server error"
)

// HandleDeploy verifies a signed deploy request and runs it.
func (s *Server) HandleDeploy(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxPayloadBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.Logger.Warn("Request body too large", "limit", maxErr.Limit)
			respondText(w, http.StatusRequestEntityTooLarge, msgTooLarge)
			return
		}
		s.Logger.Warn("Failed to read request body", "error", err)
		respondText(w, http.StatusBadRequest, msgMalformed)
		return
	}

	req, err := s.Verifier.Verify(r.Header.Get("Authorization"), body)
	switch {
	case errors.Is(err, webhook.ErrUnauthorized):
		s.Logger.Warn("Rejected unauthorized deploy request", "error", err)
		respondText(w, http.StatusUnauthorized, msgUnauthorized)
		return
	case errors.Is(err, webhook.ErrMalformedRequest):
		s.Logger.Warn("Rejected malformed deploy request", "error", err)
		respondText(w, http.StatusBadRequest, msgMalformed)
		return
	case err != nil:
		s.Logger.Error("Failed to verify deploy request", "error", err)
		respondText(w, http.StatusInternalServerError, msgInternalFailure)
		return
	}

	// A client that disconnects must not abort a half-applied deploy.
	ctx := context.WithoutCancel(r.Context())

	deployID := uuid.NewString()
	w.Header().Set(DeployIDHeader, deployID)
	logger := s.Logger.With("deploy_id", deployID)

	logger.Info("deployment started",
		"name", req.Name,
		"command", req.Command,
		"env_keys", len(req.Env))

	start := time.Now()
	result, err := deployment.Run(ctx, s.Executor, req)
	duration := time.Since(start).Milliseconds()

	var cmdErr *deployment.CommandError
	switch {
	case err == nil:
		logger.Info("deployment completed", "name", req.Name, "command", req.Command, "duration_ms", duration)
		s.respondJSON(w, http.StatusOK, result)
	case errors.As(err, &cmdErr):
		logger.Error("deployment failed",
			"name", req.Name,
			"command", req.Command,
			"code", cmdErr.Code,
			"duration_ms", duration)
		s.respondJSON(w, StatusCommandFailed, cmdErr)
	case errors.Is(err, cmdutil.ErrTimeout):
		logger.Error("deployment timed out", "name", req.Name, "command", req.Command, "duration_ms", duration, "error", err)
		respondText(w, http.StatusGatewayTimeout, msgTimeout)
	default:
		logger.Error("deployment could not run", "name", req.Name, "command", req.Command, "error", err)
		respondText(w, http.StatusInternalServerError, msgInternalFailure)
	}
}

// HandleHealth handles health check requests
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status": "ok",
		"modes":  s.Verifier.Modes(),
	}

	s.respondJSON(w, http.StatusOK, response)
}

// respondJSON sends a JSON response
func (s *Server) respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.Logger.Error("Failed to encode JSON response", "error", err)
	}
}

// respondText sends a plain-text response without a trailing newline.
func respondText(w http.ResponseWriter, statusCode int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(statusCode)
	_, _ = io.WriteString(w, msg)
}
