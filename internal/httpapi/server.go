package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/FreeTAKTeam/reticulum-mobile-emergency-management/internal/bridge"
	"github.com/FreeTAKTeam/reticulum-mobile-emergency-management/internal/eventlog"
	"github.com/FreeTAKTeam/reticulum-mobile-emergency-management/internal/observers"
	"github.com/FreeTAKTeam/reticulum-mobile-emergency-management/pkg/nativenode"
)

const eventsPrefix = "/api/v1/events/"

var (
	// ErrMissingSecret is returned when authentication is enabled without a secret key
	ErrMissingSecret = errors.New("secret key is required unless auth is disabled")
	// ErrMissingDependency is returned when the bridge, registry or history is nil
	ErrMissingDependency = errors.New("bridge, registry and history are required")
)

// Config holds server configuration
type Config struct {
	// Addr is the listen address, e.g. ":8080"
	Addr      string
	SecretKey string
	// NoAuth disables bearer token checks. Development only.
	NoAuth   bool
	TokenTTL time.Duration

	// NodeDefaults is used by start and restart requests that carry no config
	NodeDefaults nativenode.NodeConfig

	// KeepAlive is the interval between SSE ping comments
	KeepAlive time.Duration
	// StreamBuffer bounds the per-stream event buffer
	StreamBuffer int

	Logger logrus.FieldLogger
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.KeepAlive <= 0 {
		c.KeepAlive = 15 * time.Second
	}
	if c.StreamBuffer <= 0 {
		c.StreamBuffer = 100
	}
	if c.Logger == nil {
		c.Logger = logrus.StandardLogger()
	}
}

// Server represents the HTTP API server
type Server struct {
	jwtAuth    *JWTAuth
	handlers   *Handlers
	middleware *Middleware
	server     *http.Server
	log        logrus.FieldLogger
}

// NewServer creates the HTTP API in front of b. Events reach stream clients
// through registry and history requests are served from history; both must
// already be wired as the bridge's notifier.
func NewServer(b *bridge.Bridge, registry *observers.Registry, history *eventlog.History, config Config) (*Server, error) {
	if b == nil || registry == nil || history == nil {
		return nil, ErrMissingDependency
	}
	config.SetDefaults()
	if !config.NoAuth && config.SecretKey == "" {
		return nil, ErrMissingSecret
	}

	log := config.Logger.WithField("component", "httpapi")
	jwtAuth := NewJWTAuth(config.SecretKey, config.TokenTTL)
	s := &Server{
		jwtAuth: jwtAuth,
		handlers: &Handlers{
			bridge:       b,
			registry:     registry,
			history:      history,
			jwtAuth:      jwtAuth,
			nodeDefaults: config.NodeDefaults,
			keepAlive:    config.KeepAlive,
			streamBuffer: config.StreamBuffer,
			log:          log,
		},
		middleware: NewMiddleware(jwtAuth, config.NoAuth, log),
		log:        log,
	}
	if config.NoAuth {
		log.Warn("authentication disabled")
	}

	s.server = &http.Server{
		Addr:              config.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
	return s, nil
}

// Start serves until Stop is called. It returns nil after a graceful stop.
func (s *Server) Start() error {
	s.log.WithField("addr", s.server.Addr).Info("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Serve accepts connections on l until Stop is called.
func (s *Server) Serve(l net.Listener) error {
	s.log.WithField("addr", l.Addr().String()).Info("HTTP API listening")
	if err := s.server.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Handler returns the routed and middleware-wrapped API.
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() http.Handler {
	mux := http.NewServeMux()
	h := s.handlers

	withMiddleware := func(handler http.HandlerFunc) http.Handler {
		return s.middleware.Recovery(
			s.middleware.Logging(
				s.middleware.CORS(
					s.middleware.ContentType(handler))))
	}
	authed := func(method string, handler http.HandlerFunc) http.Handler {
		return withMiddleware(s.middleware.AuthRequired(allow(method, handler)))
	}

	// Authentication and health (no auth required)
	mux.Handle("/api/v1/auth/login", withMiddleware(allow(http.MethodPost, h.Login)))
	mux.Handle("/api/v1/health", withMiddleware(allow(http.MethodGet, h.Health)))

	// Lifecycle
	mux.Handle("/api/v1/node/start", authed(http.MethodPost, h.StartNode))
	mux.Handle("/api/v1/node/stop", authed(http.MethodPost, h.StopNode))
	mux.Handle("/api/v1/node/restart", authed(http.MethodPost, h.RestartNode))
	mux.Handle("/api/v1/node/status", authed(http.MethodGet, h.Status))

	// Node control
	mux.Handle("/api/v1/peers/connect", authed(http.MethodPost, h.ConnectPeer))
	mux.Handle("/api/v1/peers/disconnect", authed(http.MethodPost, h.DisconnectPeer))
	mux.Handle("/api/v1/messages/send", authed(http.MethodPost, h.Send))
	mux.Handle("/api/v1/messages/broadcast", authed(http.MethodPost, h.Broadcast))
	mux.Handle("/api/v1/node/announce-capabilities", authed(http.MethodPut, h.SetAnnounceCapabilities))
	mux.Handle("/api/v1/node/log-level", authed(http.MethodPut, h.SetLogLevel))
	mux.Handle("/api/v1/hub-directory/refresh", authed(http.MethodPost, h.RefreshHubDirectory))
	mux.Handle("/api/v1/listeners", authed(http.MethodDelete, h.RemoveListeners))

	// Events
	mux.Handle("/api/v1/events/stream", authed(http.MethodGet, h.StreamEvents))
	mux.Handle(eventsPrefix, authed(http.MethodGet, s.handleEventHistory))

	// Root endpoint with API info
	mux.Handle("/", withMiddleware(s.handleRoot))

	return mux
}

// allow rejects every method but method with a JSON 405.
func allow(method string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			w.Header().Set("Allow", method)
			writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		next(w, r)
	}
}

// handleEventHistory extracts {name} from /api/v1/events/{name}
func (s *Server) handleEventHistory(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, eventsPrefix)
	if name == "" || strings.Contains(name, "/") {
		writeError(w, "Event name required", http.StatusNotFound)
		return
	}
	ctx := context.WithValue(r.Context(), EventNameKey, name)
	s.handlers.ReadEvents(w, r.WithContext(ctx))
}

// handleRoot provides API information
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeError(w, "Not found", http.StatusNotFound)
		return
	}

	info := map[string]any{
		"service":     "Reticulum node bridge HTTP API",
		"version":     "1.0.0",
		"description": "Lifecycle, control and event access for the Reticulum node",
		"endpoints": map[string]any{
			"auth": map[string]string{
				"login": "POST /api/v1/auth/login",
			},
			"node": map[string]string{
				"start":                "POST /api/v1/node/start",
				"stop":                 "POST /api/v1/node/stop",
				"restart":              "POST /api/v1/node/restart",
				"status":               "GET /api/v1/node/status",
				"announceCapabilities": "PUT /api/v1/node/announce-capabilities",
				"logLevel":             "PUT /api/v1/node/log-level",
			},
			"peers": map[string]string{
				"connect":    "POST /api/v1/peers/connect",
				"disconnect": "POST /api/v1/peers/disconnect",
			},
			"messages": map[string]string{
				"send":      "POST /api/v1/messages/send",
				"broadcast": "POST /api/v1/messages/broadcast",
			},
			"hubDirectory": map[string]string{
				"refresh": "POST /api/v1/hub-directory/refresh",
			},
			"events": map[string]string{
				"stream":          "GET /api/v1/events/stream?event={name}",
				"history":         "GET /api/v1/events/{name}?offset={offset}&limit={limit}",
				"removeListeners": "DELETE /api/v1/listeners",
			},
			"health": "GET /api/v1/health",
		},
		"authentication": "Bearer JWT token required for most endpoints",
	}
	writeJSON(w, info, http.StatusOK)
}
