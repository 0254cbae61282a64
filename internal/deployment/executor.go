package deployment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"slices"
	"strings"
	"time"

	"rollout/pkg/cmdutil"
)

// DefaultDockerCommand is the orchestration binary used when none is configured.
const DefaultDockerCommand = "docker"

// Executor runs the orchestration tool for each supported mode.
type Executor interface {
	// DeployStack deploys a swarm stack from the file contents.
	DeployStack(ctx context.Context, file, name string, env map[string]string) (*CommandResult, error)

	// ComposeUp brings a compose project up from the file contents.
	ComposeUp(ctx context.Context, file, name string, env map[string]string) (*CommandResult, error)
}

// StackDeployArgs returns the docker arguments for a stack deploy. The flags
// are fixed so callers cannot widen what a webhook can trigger.
func StackDeployArgs(name string) []string {
	return []string{"stack", "deploy", "--compose-file", "-", "--prune", "--with-registry-auth", name}
}

// ComposeUpArgs returns the docker arguments for a compose up.
func ComposeUpArgs(name string) []string {
	return []string{"compose", "--file", "-", "--project-name", name, "up", "--detach", "--no-build", "--remove-orphans"}
}

// DockerOptions configures a DockerExecutor.
type DockerOptions struct {
	// Command is the docker binary and any prefix arguments, e.g.
	// ["sudo", "docker"] or ["docker", "--context", "prod"].
	// Defaults to ["docker"].
	Command []string

	// Timeout bounds each invocation. Zero means no timeout.
	Timeout time.Duration

	// BaseEnv is the environment request variables are merged into.
	// Defaults to the daemon's own environment.
	BaseEnv []string

	// Secrets are redacted from command output before it is logged.
	Secrets []string

	Logger *slog.Logger
}

// DockerExecutor runs docker as a subprocess, feeding the file on stdin.
type DockerExecutor struct {
	command []string
	timeout time.Duration
	baseEnv []string
	secrets []string
	logger  *slog.Logger
}

// NewDockerExecutor creates an executor from opts.
func NewDockerExecutor(opts DockerOptions) *DockerExecutor {
	command := opts.Command
	if len(command) == 0 {
		command = []string{DefaultDockerCommand}
	}

	baseEnv := opts.BaseEnv
	if baseEnv == nil {
		baseEnv = os.Environ()
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &DockerExecutor{
		command: slices.Clone(command),
		timeout: opts.Timeout,
		baseEnv: baseEnv,
		secrets: opts.Secrets,
		logger:  logger,
	}
}

// DeployStack runs docker stack deploy.
func (e *DockerExecutor) DeployStack(ctx context.Context, file, name string, env map[string]string) (*CommandResult, error) {
	return e.run(ctx, StackDeployArgs(name), file, env)
}

// ComposeUp runs docker compose up.
func (e *DockerExecutor) ComposeUp(ctx context.Context, file, name string, env map[string]string) (*CommandResult, error) {
	return e.run(ctx, ComposeUpArgs(name), file, env)
}

func (e *DockerExecutor) run(ctx context.Context, args []string, file string, env map[string]string) (*CommandResult, error) {
	cmdParts := append(slices.Clone(e.command), args...)
	formatted := cmdutil.FormatCommand(cmdParts)

	e.logger.Debug("running docker command", "cmd", formatted, "env_count", len(env))

	result, err := cmdutil.Run(ctx, cmdutil.ExecOptions{
		Timeout: e.timeout,
		Env:     cmdutil.MergeEnv(e.baseEnv, env, slices.Sorted(maps.Keys(env))),
		Stdin:   strings.NewReader(file),
	}, cmdParts)

	var exitErr *cmdutil.ExitError
	switch {
	case err == nil:
		e.logger.Debug("docker command succeeded", "cmd", formatted, "duration_ms", result.Duration.Milliseconds())
		return &CommandResult{
			Stdout: string(result.Stdout),
			Stderr: string(result.Stderr),
		}, nil
	case errors.As(err, &exitErr):
		e.logger.Debug("docker command failed",
			"cmd", formatted,
			"code", exitErr.Code,
			"stderr", string(cmdutil.SanitizeOutput(result.Stderr, e.secrets)))
		return nil, &CommandError{
			Code:   exitErr.Code,
			Stdout: string(result.Stdout),
			Stderr: string(result.Stderr),
		}
	default:
		return nil, fmt.Errorf("failed to run %s: %w", formatted, err)
	}
}
