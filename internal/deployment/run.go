package deployment

import (
	"context"
	"fmt"

	"rollout/internal/webhook"
)

// Run dispatches a verified request to the executor method for its command.
func Run(ctx context.Context, executor Executor, req *webhook.DeployRequest) (*CommandResult, error) {
	switch req.Command {
	case webhook.CommandStack:
		return executor.DeployStack(ctx, req.File, req.Name, req.Env)
	case webhook.CommandCompose:
		return executor.ComposeUp(ctx, req.File, req.Name, req.Env)
	default:
		return nil, fmt.Errorf("unsupported command %q", req.Command)
	}
}
