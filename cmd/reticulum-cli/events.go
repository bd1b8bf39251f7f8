package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newEventsCommand() *cobra.Command {
	var (
		offset       int64
		limit        int
		prettyFormat bool
	)

	cmd := &cobra.Command{
		Use:   "events EVENT",
		Short: "Show recent events of one name",
		Long: `Show recent events of one name from the bridge's bounded history,
for example "reticulum-cli events packetReceived --offset 10".
Unlike 'stream', this fetches one page and exits.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvents(cmd, args[0], offset, limit, prettyFormat)
		},
	}

	cmd.Flags().Int64Var(&offset, "offset", 0, "First offset to return")
	cmd.Flags().IntVar(&limit, "limit", 100, "Maximum number of events to return")
	cmd.Flags().BoolVar(&prettyFormat, "pretty", false, "Pretty print JSON payloads")
	return cmd
}

func runEvents(cmd *cobra.Command, event string, offset int64, limit int, prettyFormat bool) error {
	if err := requireAuthentication(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	resp, err := client.ReadEvents(ctx, event, offset, limit)
	if err != nil {
		return fmt.Errorf("failed to read events: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "📋 %d %s events (start %d, next %d)\n", resp.Count, event, resp.StartOffset, resp.EndOffset)
	if len(resp.Records) == 0 {
		fmt.Fprintf(out, "🔍 No %s events retained from offset %d\n", event, offset)
		return nil
	}
	for _, record := range resp.Records {
		fmt.Fprintf(out, "#%d ", record.Offset)
		printEvent(out, event, record.Timestamp, record.Payload, prettyFormat)
	}
	return nil
}
