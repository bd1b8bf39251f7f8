package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/FreeTAKTeam/reticulum-mobile-emergency-management/pkg/httpclient"
)

var (
	// Global flags
	serverURL string
	clientID  string
	token     string
	timeout   time.Duration
	noAuth    bool

	// Global client instance
	client *httpclient.Client
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "reticulum-cli",
		Short: "Reticulum node bridge command line interface",
		Long: `reticulum-cli drives a reticulum-bridge daemon over its HTTP API.
It starts and stops the node, connects peers, sends packets and follows the
node's event stream.`,
		PersistentPreRunE: initializeClient,
		SilenceUsage:      true,
		SilenceErrors:     true,
	}

	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "Bridge server URL")
	rootCmd.PersistentFlags().StringVar(&clientID, "client-id", "", "Client ID for authentication")
	rootCmd.PersistentFlags().StringVar(&token, "token", os.Getenv("RETICULUM_TOKEN"), "JWT token (if already authenticated)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "Request timeout")
	rootCmd.PersistentFlags().BoolVar(&noAuth, "no-auth", false, "Skip authentication (for servers started with -no-auth)")

	rootCmd.AddCommand(newAuthCommand())
	rootCmd.AddCommand(newNodeCommand())
	rootCmd.AddCommand(newPeerCommand())
	rootCmd.AddCommand(newSendCommand())
	rootCmd.AddCommand(newBroadcastCommand())
	rootCmd.AddCommand(newCapabilitiesCommand())
	rootCmd.AddCommand(newLogLevelCommand())
	rootCmd.AddCommand(newHubsCommand())
	rootCmd.AddCommand(newListenersCommand())
	rootCmd.AddCommand(newStreamCommand())
	rootCmd.AddCommand(newEventsCommand())
	rootCmd.AddCommand(newHealthCommand())
	return rootCmd
}

// initializeClient sets up the HTTP client with global configuration
func initializeClient(cmd *cobra.Command, args []string) error {
	if cmd.Name() == "help" || cmd.Parent() == nil {
		return nil
	}

	// client-id is only needed to log in
	effectiveClientID := clientID
	if effectiveClientID == "" {
		if cmd.Name() == "auth" && !noAuth {
			return fmt.Errorf("client-id is required to authenticate")
		}
		effectiveClientID = "dev-client"
	}

	var err error
	client, err = httpclient.NewClient(httpclient.Config{
		ServerURL: serverURL,
		ClientID:  effectiveClientID,
		Timeout:   timeout,
	})
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}

	if token != "" {
		client.SetToken(token)
	} else if noAuth {
		// the server ignores it, the client only checks it is set
		client.SetToken("no-auth-mode")
	}
	return nil
}

// requireAuthentication checks if the client is authenticated
func requireAuthentication() error {
	if client == nil {
		return fmt.Errorf("client not initialized")
	}
	if noAuth {
		return nil
	}
	if !client.IsAuthenticated() {
		return fmt.Errorf("not authenticated - run 'reticulum-cli auth' first or provide --token")
	}
	return nil
}
