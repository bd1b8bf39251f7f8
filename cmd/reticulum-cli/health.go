package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newHealthCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check server health",
		Long:  "Check the health of the bridge, its event poller and its subscribers",
		Args:  cobra.NoArgs,
		RunE:  runHealth,
	}
}

func runHealth(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Checking health of %s...\n", serverURL)

	health, err := client.GetHealth(ctx)
	if err != nil {
		return fmt.Errorf("failed to check health: %w", err)
	}

	if health.Healthy {
		fmt.Fprintf(out, "✅ Server is healthy!\n")
	} else {
		fmt.Fprintf(out, "❌ Server is not healthy!\n")
	}
	fmt.Fprintf(out, "Node: %s\n", health.State)
	fmt.Fprintf(out, "Poller: running=%t dispatched=%d dropped=%d failed=%d\n",
		health.PollerRunning, health.Poller.Dispatched, health.Poller.Dropped, health.Poller.Failed)
	fmt.Fprintf(out, "Stream subscribers: %d\n", health.Observers)
	if len(health.HistoryEvents) > 0 {
		fmt.Fprintf(out, "History: %s\n", strings.Join(health.HistoryEvents, ", "))
	}
	if health.Message != "" {
		fmt.Fprintf(out, "Message: %s\n", health.Message)
	}
	return nil
}
