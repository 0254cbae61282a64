package cmdutil

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/kballard/go-shellquote"
)

// ErrTimeout is returned when a command is killed because its timeout expired.
var ErrTimeout = errors.New("command timed out")

// waitDelay bounds how long Run waits for output pipes after the process is killed.
const waitDelay = 5 * time.Second

// ExecOptions configures command execution.
type ExecOptions struct {
	// Dir is the working directory for the command.
	Dir string

	// Timeout is the maximum execution time.
	// If zero, no timeout is applied.
	Timeout time.Duration

	// Env contains environment variables for the command.
	// Each entry should be in the form "KEY=value". A nil Env inherits the
	// current process environment.
	Env []string

	// Stdin is fed to the command's standard input when non-nil.
	Stdin io.Reader
}

// Result contains the result of a command execution.
type Result struct {
	// Stdout is the captured standard output.
	Stdout []byte

	// Stderr is the captured standard error.
	Stderr []byte

	// ExitCode is the exit code of the command, the negated signal number if
	// it was killed by a signal, or -1 if it never ran.
	ExitCode int

	// Duration is how long the command took to execute.
	Duration time.Duration
}

// ExitError reports a command that exited with a non-zero status. A command
// killed by a signal has Code set to the negated signal number.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// Run executes a command with the given options.
// The command is provided as a slice of arguments (command and its arguments).
//
// A command that exits non-zero or is killed by a signal returns its result
// together with an *ExitError.
// A command killed by the timeout returns an error wrapping ErrTimeout. Any other
// error means the command could not be started or waited on.
func Run(ctx context.Context, opts ExecOptions, cmdParts []string) (*Result, error) {
	if len(cmdParts) == 0 {
		return nil, fmt.Errorf("empty command")
	}

	// Apply timeout if specified
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, cmdParts[0], cmdParts[1:]...)
	cmd.Dir = opts.Dir
	cmd.Env = opts.Env
	cmd.Stdin = opts.Stdin
	cmd.WaitDelay = waitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()

	result := &Result{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		ExitCode: -1,
		Duration: time.Since(start),
	}
	if cmd.ProcessState != nil {
		result.ExitCode = cmd.ProcessState.ExitCode()
	}

	if err == nil {
		return result, nil
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return result, fmt.Errorf("%w after %s", ErrTimeout, opts.Timeout)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if result.ExitCode > 0 {
			return result, &ExitError{Code: result.ExitCode}
		}
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			result.ExitCode = -int(ws.Signal())
			return result, &ExitError{Code: result.ExitCode}
		}
	}

	return result, fmt.Errorf("command failed: %w", err)
}

// MergeEnv returns base with overrides applied. Keys present in overrides
// replace the matching "KEY=value" entries in base; new keys are appended in
// the order given by keys, so the result is deterministic for a sorted key list.
func MergeEnv(base []string, overrides map[string]string, keys []string) []string {
	merged := make([]string, 0, len(base)+len(overrides))
	for _, entry := range base {
		key, _, _ := strings.Cut(entry, "=")
		if _, replaced := overrides[key]; replaced {
			continue
		}
		merged = append(merged, entry)
	}
	for _, key := range keys {
		if value, ok := overrides[key]; ok {
			merged = append(merged, key+"="+value)
		}
	}
	return merged
}

// ParseCommandString parses a shell-quoted command string into parts.
// This is useful when commands are stored as strings with proper quoting.
//
// Example:
//
//	"sudo -u deploy docker" -> ["sudo", "-u", "deploy", "docker"]
func ParseCommandString(cmdStr string) ([]string, error) {
	parts, err := shellquote.Split(cmdStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse command string: %w", err)
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("empty command string")
	}
	return parts, nil
}

// FormatCommand formats command parts into a readable string for logging.
// Example: ["docker", "stack", "deploy", "my stack"] -> "docker stack deploy 'my stack'"
func FormatCommand(cmdParts []string) string {
	if len(cmdParts) == 0 {
		return "<empty command>"
	}

	// Quote arguments that contain spaces or special characters
	quoted := make([]string, len(cmdParts))
	for i, part := range cmdParts {
		if strings.ContainsAny(part, " \t\n\"'") {
			quoted[i] = shellquote.Join(part)
		} else {
			quoted[i] = part
		}
	}

	return strings.Join(quoted, " ")
}

// SanitizeOutput removes sensitive information from command output.
// This is useful for logging command output without exposing secrets.
func SanitizeOutput(output []byte, secrets []string) []byte {
	sanitized := string(output)
	for _, secret := range secrets {
		if secret != "" {
			sanitized = strings.ReplaceAll(sanitized, secret, "***REDACTED***")
		}
	}
	return []byte(sanitized)
}
