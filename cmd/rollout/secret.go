package main

import (
	"fmt"

	"rollout/internal/security"

	"github.com/spf13/cobra"
)

var secretCmd = &cobra.Command{
	Use:   "secret",
	Short: "Generate a random deploy secret",
	Long: `Generate a random deploy secret suitable for ROLLOUT_SECRET.

Set the same value on the daemon and on every client that deploys to it.`,
	Args: cobra.NoArgs,
	RunE: runSecret,
}

func runSecret(cmd *cobra.Command, args []string) error {
	secret, err := security.GenerateSecret()
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), secret)
	return nil
}
