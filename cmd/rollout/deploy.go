package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"rollout/internal/client"
	"rollout/internal/config"
	"rollout/internal/deployment"
	"rollout/internal/webhook"
	"rollout/pkg/fileutil"

	"github.com/spf13/cobra"
)

var (
	deployCommand string
	deploySecret  string
	deployURL     string
	deployName    string
	deployFile    string
	deployEnv     []string
	deployTimeout time.Duration
)

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Send a signed deploy request to a rollout daemon",
	Long: `Send a signed deploy request to a rollout daemon.

The compose or stack file is read from --file, or from stdin when the file
is "-". Environment variables given with --env are set for the docker
command on the daemon. The secret defaults to ROLLOUT_SECRET.`,
	Example: `  rollout deploy -c stack -u https://deploy.example.com/ -n web -f stack.yml -e TAG=1.4.2
  cat compose.yml | rollout deploy -c compose -u https://deploy.example.com/ -n web`,
	Args: cobra.NoArgs,
	RunE: runDeploy,
}

func init() {
	deployCmd.Flags().StringVarP(&deployCommand, "command", "c", "", "Work mode (stack or compose)")
	deployCmd.Flags().StringVarP(&deploySecret, "secret", "s", "", "Webhook deploy secret (default $ROLLOUT_SECRET)")
	deployCmd.Flags().StringVarP(&deployURL, "url", "u", "", "Webhook url")
	deployCmd.Flags().StringVarP(&deployName, "name", "n", "", "Deployment name")
	deployCmd.Flags().StringVarP(&deployFile, "file", "f", fileutil.StdinPath, "Stack file, - for stdin")
	deployCmd.Flags().StringArrayVarP(&deployEnv, "env", "e", nil, "Environment variable NAME=VALUE (repeatable)")
	deployCmd.Flags().DurationVar(&deployTimeout, "timeout", client.DefaultTimeout, "Maximum time to wait for the deploy")

	_ = deployCmd.MarkFlagRequired("command")
	_ = deployCmd.MarkFlagRequired("url")
	_ = deployCmd.MarkFlagRequired("name")
}

func runDeploy(cmd *cobra.Command, args []string) error {
	command, err := webhook.ParseCommand(deployCommand)
	if err != nil {
		return err
	}

	// Malformed env is rejected before anything is read or sent.
	env, err := webhook.ParseEnv(deployEnv)
	if err != nil {
		return err
	}

	secret := deploySecret
	if secret == "" {
		if err := config.LoadDotEnv(); err != nil {
			return err
		}
		secret, _ = config.SecretFromEnv(os.LookupEnv)
	}
	if secret == "" {
		return fmt.Errorf("deploy secret is required (use --secret or ROLLOUT_SECRET)")
	}

	file, err := fileutil.ReadFileOrStdin(deployFile, cmd.InOrStdin())
	if err != nil {
		return err
	}

	req := &webhook.DeployRequest{
		Command: command,
		File:    string(file),
		Name:    deployName,
		Env:     env,
	}

	c := client.New(deployURL, secret, client.WithHTTPClient(&http.Client{Timeout: deployTimeout}))
	result, err := c.Deploy(commandContext(cmd), req)
	return reportDeploy(cmd, result, err)
}

// reportDeploy prints the outcome and converts it to the command's exit
// status: 1 when the request was rejected or the command failed.
func reportDeploy(cmd *cobra.Command, result *deployment.CommandResult, err error) error {
	out := cmd.OutOrStdout()

	var failed *client.CommandFailedError
	switch {
	case err == nil:
		printOutcome(out, result, nil)
		return nil
	case errors.As(err, &failed):
		printOutcome(out, result, failed)
		return &exitError{code: 1}
	case errors.Is(err, client.ErrUnauthorized):
		printUnauthorized(out)
		return &exitError{code: 1}
	default:
		return err
	}
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
