package webhook

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"rollout/internal/security"
)

// Command selects the orchestration command a request runs.
type Command string

const (
	// CommandStack runs docker stack deploy.
	CommandStack Command = "stack"

	// CommandCompose runs docker compose up.
	CommandCompose Command = "compose"
)

// AllCommands lists every supported command in a stable order.
var AllCommands = []Command{CommandStack, CommandCompose}

// ParseCommand converts a string into a known Command.
func ParseCommand(s string) (Command, error) {
	c := Command(s)
	if !slices.Contains(AllCommands, c) {
		return "", fmt.Errorf("unknown command %q (must be one of: stack, compose)", s)
	}
	return c, nil
}

// DeployRequest is the signed payload sent from the client to the server.
type DeployRequest struct {
	Command Command           `json:"command"`
	File    string            `json:"file"`
	Name    string            `json:"name"`
	Env     map[string]string `json:"env"`
}

// Encode returns the canonical body bytes for the request. encoding/json
// sorts map keys, so equal requests always encode to equal bytes.
func (r *DeployRequest) Encode() ([]byte, error) {
	out := *r
	if out.Env == nil {
		out.Env = map[string]string{}
	}
	body, err := json.Marshal(&out)
	if err != nil {
		return nil, fmt.Errorf("failed to encode deploy request: %w", err)
	}
	return body, nil
}

// wireRequest distinguishes absent fields from zero values.
type wireRequest struct {
	Command *string           `json:"command"`
	File    *string           `json:"file"`
	Name    *string           `json:"name"`
	Env     map[string]string `json:"env"`
}

// DecodeRequest parses a request body. modes lists the commands the server
// accepts. With a single mode the command field is optional and defaults to
// that mode; with several it is required. Every failure wraps
// ErrMalformedRequest.
func DecodeRequest(body []byte, modes []Command) (*DeployRequest, error) {
	if len(modes) == 0 {
		modes = AllCommands
	}

	var wire wireRequest
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}

	if wire.File == nil {
		return nil, fmt.Errorf("%w: missing field 'file'", ErrMalformedRequest)
	}
	if wire.Name == nil {
		return nil, fmt.Errorf("%w: missing field 'name'", ErrMalformedRequest)
	}
	if wire.Env == nil {
		return nil, fmt.Errorf("%w: missing field 'env'", ErrMalformedRequest)
	}

	var command Command
	switch {
	case wire.Command != nil:
		command = Command(*wire.Command)
		if !slices.Contains(modes, command) {
			return nil, fmt.Errorf("%w: command %q is not enabled", ErrMalformedRequest, *wire.Command)
		}
	case len(modes) == 1:
		command = modes[0]
	default:
		return nil, fmt.Errorf("%w: missing field 'command'", ErrMalformedRequest)
	}

	if err := security.ValidateDeploymentName(*wire.Name); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}
	for key, value := range wire.Env {
		if err := security.ValidateEnvKey(key); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedRequest, err)
		}
		if err := security.ValidateEnvValue(key, value); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedRequest, err)
		}
	}

	return &DeployRequest{
		Command: command,
		File:    *wire.File,
		Name:    *wire.Name,
		Env:     wire.Env,
	}, nil
}

// ParseEnv converts KEY=VALUE entries into a map. The value is everything
// after the first '='; a later entry for the same key replaces an earlier one.
func ParseEnv(entries []string) (map[string]string, error) {
	env := make(map[string]string, len(entries))
	for _, entry := range entries {
		key, value, ok := strings.Cut(entry, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("%w: %q", ErrMalformedEnv, entry)
		}
		if err := security.ValidateEnvKey(key); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedEnv, err)
		}
		env[key] = value
	}
	return env, nil
}
