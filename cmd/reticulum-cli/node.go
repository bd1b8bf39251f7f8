package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/FreeTAKTeam/reticulum-mobile-emergency-management/pkg/httpclient"
	"github.com/FreeTAKTeam/reticulum-mobile-emergency-management/pkg/nativenode"
)

// nodeFlags collects a node config from a YAML file plus individual flags.
type nodeFlags struct {
	file             string
	name             string
	storageDir       string
	tcpClients       []string
	noBroadcast      bool
	announceInterval int
	capabilities     string
	hubMode          string
	hubIdentity      string
	hubURL           string
	hubKey           string
	hubRefresh       int
}

func (f *nodeFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.file, "config", "", "YAML file with the node configuration")
	fs.StringVar(&f.name, "name", "", "Node display name")
	fs.StringVar(&f.storageDir, "storage-dir", "", "Storage directory, relative to the bridge base directory unless absolute")
	fs.StringSliceVar(&f.tcpClients, "tcp-client", nil, "TCP interface endpoint host:port (repeatable)")
	fs.BoolVar(&f.noBroadcast, "no-broadcast", false, "Disable broadcast")
	fs.IntVar(&f.announceInterval, "announce-interval", 0, "Announce interval in seconds")
	fs.StringVar(&f.capabilities, "capabilities", "", "Announce capability string")
	fs.StringVar(&f.hubMode, "hub-mode", "", "Hub mode: Disabled, RchLxmf or RchHttp")
	fs.StringVar(&f.hubIdentity, "hub-identity", "", "Hub identity hash (RchLxmf)")
	fs.StringVar(&f.hubURL, "hub-url", "", "Hub API base URL (RchHttp)")
	fs.StringVar(&f.hubKey, "hub-key", "", "Hub API key (RchHttp)")
	fs.IntVar(&f.hubRefresh, "hub-refresh", 0, "Hub directory refresh interval in seconds")
}

// build returns nil when neither a file nor any node flag was given, so the
// server applies its own defaults.
func (f *nodeFlags) build(fs *pflag.FlagSet) (*nativenode.NodeConfig, error) {
	var cfg nativenode.NodeConfig
	set := false

	if f.file != "" {
		data, err := os.ReadFile(f.file)
		if err != nil {
			return nil, fmt.Errorf("failed to read node config: %w", err)
		}
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("invalid node config %s: %w", f.file, err)
		}
		set = true
	}

	if fs.Changed("name") {
		cfg.Name, set = f.name, true
	}
	if fs.Changed("storage-dir") {
		cfg.StorageDir, set = f.storageDir, true
	}
	if fs.Changed("tcp-client") {
		cfg.TCPClients, set = f.tcpClients, true
	}
	if fs.Changed("no-broadcast") {
		broadcast := !f.noBroadcast
		cfg.Broadcast, set = &broadcast, true
	}
	if fs.Changed("announce-interval") {
		interval := f.announceInterval
		cfg.AnnounceIntervalSeconds, set = &interval, true
	}
	if fs.Changed("capabilities") {
		capabilities := f.capabilities
		cfg.AnnounceCapabilities, set = &capabilities, true
	}
	if fs.Changed("hub-mode") {
		cfg.HubMode, set = f.hubMode, true
	}
	if fs.Changed("hub-identity") {
		cfg.HubIdentityHash, set = f.hubIdentity, true
	}
	if fs.Changed("hub-url") {
		cfg.HubAPIBaseURL, set = f.hubURL, true
	}
	if fs.Changed("hub-key") {
		cfg.HubAPIKey, set = f.hubKey, true
	}
	if fs.Changed("hub-refresh") {
		refresh := f.hubRefresh
		cfg.HubRefreshIntervalSeconds, set = &refresh, true
	}

	if !set {
		return nil, nil
	}
	return &cfg, nil
}

func newNodeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "node",
		Short: "Node lifecycle commands",
		Long:  "Start, stop, restart and inspect the node behind the bridge",
	}

	cmd.AddCommand(newLifecycleCommand("start", "Start the node", func(ctx context.Context, cfg *nativenode.NodeConfig) (*httpclient.OperationResponse, error) {
		return client.Start(ctx, cfg)
	}))
	cmd.AddCommand(newLifecycleCommand("restart", "Restart the node, replacing its configuration", func(ctx context.Context, cfg *nativenode.NodeConfig) (*httpclient.OperationResponse, error) {
		return client.Restart(ctx, cfg)
	}))
	cmd.AddCommand(&cobra.Command{
		Use:   "stop",
		Short: "Stop the node",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOperation(cmd, "stop", func(ctx context.Context) (*httpclient.OperationResponse, error) {
				return client.Stop(ctx)
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show node status",
		Args:  cobra.NoArgs,
		RunE:  runStatus,
	})
	return cmd
}

type lifecycleFunc func(ctx context.Context, cfg *nativenode.NodeConfig) (*httpclient.OperationResponse, error)

func newLifecycleCommand(use, short string, call lifecycleFunc) *cobra.Command {
	flags := &nodeFlags{}
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Long: short + `.
Without --config or node flags the server's default node configuration is used.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.build(cmd.Flags())
			if err != nil {
				return err
			}
			return runOperation(cmd, use, func(ctx context.Context) (*httpclient.OperationResponse, error) {
				return call(ctx, cfg)
			})
		},
	}
	flags.register(cmd.Flags())
	return cmd
}

// runOperation performs one control call and prints its acknowledgement.
func runOperation(cmd *cobra.Command, what string, call func(ctx context.Context) (*httpclient.OperationResponse, error)) error {
	if err := requireAuthentication(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	resp, err := call(ctx)
	if err != nil {
		return fmt.Errorf("%s failed: %w", what, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✅ %s ok (node %s)\n", resp.Operation, resp.State)
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	if err := requireAuthentication(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	status, err := client.Status(ctx)
	if err != nil {
		return fmt.Errorf("failed to get status: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Running: %t\n", status.Running)
	fmt.Fprintf(out, "Name: %s\n", status.Name)
	fmt.Fprintf(out, "Identity: %s\n", status.IdentityHex)
	fmt.Fprintf(out, "App destination: %s\n", status.AppDestinationHex)
	fmt.Fprintf(out, "LXMF destination: %s\n", status.LXMFDestinationHex)
	return nil
}
