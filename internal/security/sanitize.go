package security

import (
	"fmt"
	"regexp"
	"strings"
)

// MaxDeploymentNameLength caps stack and compose project names.
const MaxDeploymentNameLength = 128

var (
	// Docker accepts letters, digits, '_', '.' and '-' in stack and project names
	deploymentNamePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]*$`)
	envKeyPattern         = regexp.MustCompile(`^[^=\x00]+$`)
)

// ValidateDeploymentName ensures a stack or compose project name is safe to pass
// as a positional argument to docker. Names starting with '-' would be parsed
// as flags, so they are rejected along with whitespace and shell metacharacters.
func ValidateDeploymentName(name string) error {
	if name == "" {
		return fmt.Errorf("deployment name cannot be empty")
	}
	if len(name) > MaxDeploymentNameLength {
		return fmt.Errorf("deployment name too long (maximum %d characters, got %d)", MaxDeploymentNameLength, len(name))
	}
	if strings.HasPrefix(name, "-") || strings.HasPrefix(name, ".") {
		return fmt.Errorf("deployment name cannot start with '-' or '.'")
	}
	if !deploymentNamePattern.MatchString(name) {
		return fmt.Errorf("deployment name contains invalid characters (only a-z, A-Z, 0-9, _, ., - allowed)")
	}
	return nil
}

// ValidateEnvKey ensures a variable name can be placed in a process environment.
// The kernel splits entries on the first '=' and terminates them at NUL, so
// neither may appear in the key.
func ValidateEnvKey(key string) error {
	if key == "" {
		return fmt.Errorf("environment variable name cannot be empty")
	}
	if !envKeyPattern.MatchString(key) {
		return fmt.Errorf("environment variable name %q contains '=' or NUL", key)
	}
	return nil
}

// ValidateEnvValue rejects values the process environment cannot carry.
func ValidateEnvValue(key, value string) error {
	if strings.ContainsRune(value, 0) {
		return fmt.Errorf("environment variable %q value contains NUL", key)
	}
	return nil
}
