// Package healthsvc publishes the bridge lifecycle through the standard gRPC
// health checking protocol.
package healthsvc

import (
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/FreeTAKTeam/reticulum-mobile-emergency-management/internal/bridge"
)

// ServiceName is the health service name reported for the node.
const ServiceName = "reticulum.Node"

// Lifecycle is the part of the bridge the reporter observes.
type Lifecycle interface {
	State() bridge.State
	OnStateChange(fn func(bridge.State))
}

// Reporter mirrors the bridge state into a grpc health server.
type Reporter struct {
	server *health.Server
	log    logrus.FieldLogger
}

// NewReporter creates a reporter that starts out NOT_SERVING and follows
// every subsequent transition of lc.
func NewReporter(lc Lifecycle, log logrus.FieldLogger) *Reporter {
	if log == nil {
		log = logrus.StandardLogger()
	}
	r := &Reporter{
		server: health.NewServer(),
		log:    log.WithField("component", "health"),
	}
	r.update(lc.State())
	lc.OnStateChange(r.update)
	return r
}

// Register attaches the health service to s.
func (r *Reporter) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, r.server)
}

// Server returns the underlying health server.
func (r *Reporter) Server() healthpb.HealthServer {
	return r.server
}

// Shutdown marks every service NOT_SERVING and ignores later updates.
func (r *Reporter) Shutdown() {
	r.server.Shutdown()
}

func (r *Reporter) update(s bridge.State) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if s == bridge.StateRunning {
		status = healthpb.HealthCheckResponse_SERVING
	}
	r.server.SetServingStatus(ServiceName, status)
	r.log.WithField("status", status.String()).Debug("health status updated")
}
