package deployment

import "fmt"

// CommandResult is the captured output of a command that exited successfully.
type CommandResult struct {
	Stdout string `json:"stdout"`
	Stderr string `json:"stderr"`
}

// CommandError reports a command that ran and exited with a non-zero status.
// It is a normal outcome (for example a broken stack file), distinct from
// failures to start or supervise the command.
type CommandError struct {
	Code   int    `json:"code"`
	Stdout string `json:"stdout"`
	Stderr string `json:"stderr"`
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command exited with code %d", e.Code)
}
