package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/FreeTAKTeam/reticulum-mobile-emergency-management/internal/config"
)

const (
	appName    = "reticulum-bridge"
	appVersion = "0.1.0"
)

// options are the command-line flags. Set flags override the config file.
type options struct {
	configPath  string
	listenAddr  string
	grpcAddr    string
	baseDir     string
	noAuth      bool
	autoStart   bool
	showVersion bool
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	opts := &options{}
	fs := flag.NewFlagSet(appName, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.configPath, "config", "", "Path to a YAML config file")
	fs.StringVar(&opts.listenAddr, "listen", "", "HTTP API listen address (overrides config)")
	fs.StringVar(&opts.grpcAddr, "grpc-listen", "", "gRPC health listen address (overrides config)")
	fs.StringVar(&opts.baseDir, "base-dir", "", "Base directory for relative node storage (overrides config)")
	fs.BoolVar(&opts.noAuth, "no-auth", false, "Disable API authentication (development only)")
	fs.BoolVar(&opts.autoStart, "auto-start", false, "Start the node with the configured node settings")
	fs.BoolVar(&opts.showVersion, "version", false, "Show version and exit")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return opts, nil
}

// loadConfig reads the config file, if any, and applies flag overrides.
func loadConfig(opts *options) (*config.Config, error) {
	var cfg *config.Config
	if opts.configPath != "" {
		loaded, err := config.ReadFile(opts.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		cfg = config.Default()
	}

	if opts.listenAddr != "" {
		cfg.ListenAddress = opts.listenAddr
	}
	if opts.grpcAddr != "" {
		cfg.GRPCAddress = opts.grpcAddr
	}
	if opts.baseDir != "" {
		cfg.BaseDir = opts.baseDir
	}
	if opts.noAuth {
		cfg.NoAuth = true
	}
	if opts.autoStart {
		cfg.AutoStart = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}
	if opts.showVersion {
		fmt.Fprintf(stdout, "%s v%s\n", appName, appVersion)
		return nil
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	d, err := newDaemon(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()
	return d.Run(ctx)
}
