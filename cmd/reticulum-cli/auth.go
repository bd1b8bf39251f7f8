package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newAuthCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "auth",
		Short: "Authenticate with the bridge",
		Long: `Authenticate with the bridge using your client ID.
The returned JWT can be passed to later commands with --token or RETICULUM_TOKEN.`,
		Args: cobra.NoArgs,
		RunE: runAuth,
	}
}

func runAuth(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Authenticating with server %s as client %s...\n", serverURL, clientID)

	if err := client.Authenticate(ctx); err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}

	token := client.GetToken()
	fmt.Fprintf(out, "✅ Authentication successful!\n")
	fmt.Fprintf(out, "Token: %s\n", token)
	fmt.Fprintf(out, "\nSave it for later commands:\n")
	fmt.Fprintf(out, "  export RETICULUM_TOKEN=\"%s\"\n", token)
	return nil
}
