package main

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/FreeTAKTeam/reticulum-mobile-emergency-management/pkg/httpclient"
)

func newPeerCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "peer",
		Short: "Manage peer links",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "connect DESTINATION",
		Short: "Open a link to a peer destination (32 hex characters)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOperation(cmd, "connect", func(ctx context.Context) (*httpclient.OperationResponse, error) {
				return client.ConnectPeer(ctx, args[0])
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "disconnect DESTINATION",
		Short: "Close the link to a peer destination",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOperation(cmd, "disconnect", func(ctx context.Context) (*httpclient.OperationResponse, error) {
				return client.DisconnectPeer(ctx, args[0])
			})
		},
	})
	return cmd
}

// payloadFlags selects a packet payload given either as text or as base64.
type payloadFlags struct {
	text   string
	base64 string
}

func (p *payloadFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&p.text, "text", "", "Payload as UTF-8 text")
	cmd.Flags().StringVar(&p.base64, "base64", "", "Payload as base64")
	cmd.MarkFlagsMutuallyExclusive("text", "base64")
	cmd.MarkFlagsOneRequired("text", "base64")
}

func (p *payloadFlags) encoded() string {
	if p.base64 != "" {
		return p.base64
	}
	return base64.StdEncoding.EncodeToString([]byte(p.text))
}

func newSendCommand() *cobra.Command {
	payload := &payloadFlags{}
	cmd := &cobra.Command{
		Use:   "send DESTINATION",
		Short: "Send a packet to one destination",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOperation(cmd, "send", func(ctx context.Context) (*httpclient.OperationResponse, error) {
				return client.Send(ctx, args[0], payload.encoded())
			})
		},
	}
	payload.register(cmd)
	return cmd
}

func newBroadcastCommand() *cobra.Command {
	payload := &payloadFlags{}
	cmd := &cobra.Command{
		Use:   "broadcast",
		Short: "Send a packet to every connected peer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOperation(cmd, "broadcast", func(ctx context.Context) (*httpclient.OperationResponse, error) {
				return client.Broadcast(ctx, payload.encoded())
			})
		},
	}
	payload.register(cmd)
	return cmd
}

func newCapabilitiesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "capabilities CAPABILITIES",
		Short: "Replace the capability string carried by announces",
		Long: `Replace the capability string carried by announces, for example "R3AKT,EMergencyMessages".
An empty argument clears it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOperation(cmd, "capabilities", func(ctx context.Context) (*httpclient.OperationResponse, error) {
				return client.SetAnnounceCapabilities(ctx, args[0])
			})
		},
	}
}

func newLogLevelCommand() *cobra.Command {
	return &cobra.Command{
		Use:       "log-level LEVEL",
		Short:     "Set the node log level (unknown names fall back to Info)",
		ValidArgs: []string{"Trace", "Debug", "Info", "Warn", "Error"},
		Args:      cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOperation(cmd, "log-level", func(ctx context.Context) (*httpclient.OperationResponse, error) {
				return client.SetLogLevel(ctx, args[0])
			})
		},
	}
}

func newHubsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hubs",
		Short: "Hub directory commands",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "refresh",
		Short: "Ask the node to refresh its hub directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOperation(cmd, "refresh", func(ctx context.Context) (*httpclient.OperationResponse, error) {
				return client.RefreshHubDirectory(ctx)
			})
		},
	})
	return cmd
}

func newListenersCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "listeners",
		Short: "Event listener commands",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "remove-all",
		Short: "Drop every event stream subscription on the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireAuthentication(); err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			resp, err := client.RemoveListeners(ctx)
			if err != nil {
				return fmt.Errorf("failed to remove listeners: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✅ Removed %d listeners\n", resp.Removed)
			return nil
		},
	})
	return cmd
}
