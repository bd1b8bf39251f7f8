package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"
	"google.golang.org/grpc"

	"github.com/FreeTAKTeam/reticulum-mobile-emergency-management/internal/bridge"
	"github.com/FreeTAKTeam/reticulum-mobile-emergency-management/internal/config"
	"github.com/FreeTAKTeam/reticulum-mobile-emergency-management/internal/eventlog"
	"github.com/FreeTAKTeam/reticulum-mobile-emergency-management/internal/healthsvc"
	"github.com/FreeTAKTeam/reticulum-mobile-emergency-management/internal/httpapi"
	"github.com/FreeTAKTeam/reticulum-mobile-emergency-management/internal/logging"
	"github.com/FreeTAKTeam/reticulum-mobile-emergency-management/internal/loopback"
	"github.com/FreeTAKTeam/reticulum-mobile-emergency-management/internal/observers"
)

const shutdownTimeout = 30 * time.Second

// daemon owns every long-lived component of the process.
type daemon struct {
	cfg       *config.Config
	log       *logrus.Logger
	logCloser io.Closer

	history  *eventlog.History
	registry *observers.Registry
	bridge   *bridge.Bridge
	api      *httpapi.Server
	health   *healthsvc.Reporter
	grpc     *grpc.Server
}

func newDaemon(cfg *config.Config) (*daemon, error) {
	logger, logCloser, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to configure logging: %w", err)
	}
	d, err := assemble(cfg, logger)
	if err != nil {
		logCloser.Close()
		return nil, err
	}
	d.logCloser = logCloser
	return d, nil
}

// assemble builds the component graph around a loopback node.
func assemble(cfg *config.Config, logger *logrus.Logger) (*daemon, error) {
	d := &daemon{
		cfg:      cfg,
		log:      logger,
		history:  eventlog.NewHistory(cfg.HistoryCapacity),
		registry: observers.NewRegistry(logger),
	}

	node := loopback.New(loopback.Options{Logger: logger})
	b, err := bridge.New(node, observers.Chain(d.history, d.registry), &bridge.Config{
		BaseDir:     cfg.BaseDir,
		PollTimeout: cfg.PollTimeout,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create bridge: %w", err)
	}
	d.bridge = b

	d.api, err = httpapi.NewServer(b, d.registry, d.history, httpapi.Config{
		Addr:         cfg.ListenAddress,
		SecretKey:    cfg.SecretKey,
		NoAuth:       cfg.NoAuth,
		NodeDefaults: cfg.Node,
		Logger:       logger,
	})
	if err != nil {
		return nil, multierr.Append(fmt.Errorf("failed to create HTTP API: %w", err), b.Close())
	}

	d.health = healthsvc.NewReporter(b, logger)
	d.grpc = grpc.NewServer()
	d.health.Register(d.grpc)
	return d, nil
}

// Run listens on the configured addresses and serves until ctx ends.
func (d *daemon) Run(ctx context.Context) error {
	httpL, err := net.Listen("tcp", d.cfg.ListenAddress)
	if err != nil {
		return multierr.Append(fmt.Errorf("failed to listen on %s: %w", d.cfg.ListenAddress, err), d.teardown())
	}
	var grpcL net.Listener
	if d.cfg.GRPCAddress != "" {
		grpcL, err = net.Listen("tcp", d.cfg.GRPCAddress)
		if err != nil {
			httpL.Close()
			return multierr.Append(fmt.Errorf("failed to listen on %s: %w", d.cfg.GRPCAddress, err), d.teardown())
		}
	}
	return d.Serve(ctx, httpL, grpcL)
}

// Serve runs the API on httpL and the health service on grpcL (which may be
// nil) until ctx ends or a server fails, then tears everything down.
func (d *daemon) Serve(ctx context.Context, httpL, grpcL net.Listener) error {
	d.log.WithFields(logrus.Fields{
		"version": appVersion,
		"baseDir": d.cfg.BaseDir,
		"noAuth":  d.cfg.NoAuth,
	}).Infof("starting %s", appName)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	serveErr := make(chan error, 2)
	go func() {
		if err := d.api.Serve(httpL); err != nil {
			serveErr <- fmt.Errorf("HTTP API: %w", err)
		}
		cancel()
	}()
	if grpcL != nil {
		d.log.WithField("addr", grpcL.Addr().String()).Info("gRPC health listening")
		go func() {
			if err := d.grpc.Serve(grpcL); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				serveErr <- fmt.Errorf("gRPC health: %w", err)
			}
			cancel()
		}()
	}

	if d.cfg.AutoStart {
		if err := d.bridge.Start(d.cfg.Node); err != nil {
			d.log.WithError(err).Error("auto-start failed; the node can still be started over the API")
		} else {
			d.log.Info("node auto-started")
		}
	}

	<-ctx.Done()
	d.log.Info("shutting down")

	var err error
	select {
	case err = <-serveErr:
	default:
	}
	return multierr.Append(err, d.teardown())
}

// teardown stops the servers before the bridge. Observers are removed first
// so open event streams end and the HTTP shutdown does not wait on them.
func (d *daemon) teardown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	d.health.Shutdown()
	d.registry.RemoveAll()
	err := d.api.Stop(ctx)
	d.grpc.GracefulStop()
	err = multierr.Combine(err, d.bridge.Close(), d.history.Close())
	if err != nil {
		d.log.WithError(err).Warn("shutdown finished with errors")
	} else {
		d.log.Infof("%s stopped", appName)
	}
	if d.logCloser != nil {
		err = multierr.Append(err, d.logCloser.Close())
	}
	return err
}
