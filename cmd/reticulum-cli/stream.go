package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/FreeTAKTeam/reticulum-mobile-emergency-management/pkg/httpclient"
)

func newStreamCommand() *cobra.Command {
	var (
		event        string
		bufferSize   int
		prettyFormat bool
	)

	cmd := &cobra.Command{
		Use:   "stream",
		Short: "Stream node events in real-time",
		Long: `Stream node events in real-time using Server-Sent Events.
The stream reconnects after failures. Press Ctrl+C to stop streaming.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStream(cmd, event, bufferSize, prettyFormat)
		},
	}

	cmd.Flags().StringVar(&event, "event", "", "Event name to stream, e.g. peerChanged (default: all events)")
	cmd.Flags().IntVar(&bufferSize, "buffer-size", 100, "Event buffer size")
	cmd.Flags().BoolVar(&prettyFormat, "pretty", false, "Pretty print JSON payloads")
	return cmd
}

func runStream(cmd *cobra.Command, event string, bufferSize int, prettyFormat bool) error {
	if err := requireAuthentication(); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "🌊 Starting event stream from %s", serverURL)
	if event != "" {
		fmt.Fprintf(out, " (event: %s)", event)
	} else {
		fmt.Fprintf(out, " (all events)")
	}
	fmt.Fprintln(out, "...")

	streamClient, err := client.Stream(ctx, httpclient.StreamConfig{
		Event:      event,
		BufferSize: bufferSize,
	})
	if err != nil {
		return fmt.Errorf("failed to start streaming: %w", err)
	}
	defer streamClient.Close()

	eventCount := 0
	for {
		select {
		case <-ctx.Done():
			fmt.Fprintf(out, "\n✅ Stream stopped. Received %d events.\n", eventCount)
			return nil

		case msg, ok := <-streamClient.Events():
			if !ok {
				fmt.Fprintf(out, "\n🔌 Event stream closed. Received %d events.\n", eventCount)
				return nil
			}
			eventCount++
			printEvent(out, msg.Event, msg.ReceivedAt, msg.Payload, prettyFormat)

		case err, ok := <-streamClient.Errors():
			if !ok {
				fmt.Fprintf(out, "\n🔌 Stream finished. Received %d events.\n", eventCount)
				return nil
			}
			// non-fatal, the client reconnects
			fmt.Fprintf(out, "❌ Stream error: %v\n", err)
		}
	}
}

func printEvent(out io.Writer, name string, at time.Time, payload json.RawMessage, pretty bool) {
	fmt.Fprintf(out, "📨 %s %s", at.Format("15:04:05.000"), name)

	if len(payload) == 0 {
		fmt.Fprintln(out, " null")
		return
	}
	if !pretty {
		fmt.Fprintf(out, " %s\n", payload)
		return
	}

	var buf bytes.Buffer
	if err := json.Indent(&buf, payload, "   ", "  "); err != nil {
		fmt.Fprintf(out, " %s\n", payload)
		return
	}
	fmt.Fprintf(out, "\n   %s\n", buf.String())
}
