package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/FreeTAKTeam/reticulum-mobile-emergency-management/internal/bridge"
	"github.com/FreeTAKTeam/reticulum-mobile-emergency-management/internal/eventlog"
	"github.com/FreeTAKTeam/reticulum-mobile-emergency-management/internal/observers"
	"github.com/FreeTAKTeam/reticulum-mobile-emergency-management/pkg/nativenode"
)

const (
	maxBodyBytes        = 1 << 20
	defaultHistoryLimit = 100
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	bridge       *bridge.Bridge
	registry     *observers.Registry
	history      *eventlog.History
	jwtAuth      *JWTAuth
	nodeDefaults nativenode.NodeConfig
	keepAlive    time.Duration
	streamBuffer int
	log          logrus.FieldLogger
}

// Auth endpoints

// Login handles POST /api/v1/auth/login
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req AuthRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := validateAuthRequest(&req); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	token, expiresAt, err := h.jwtAuth.GenerateToken(req.ClientID)
	if err != nil {
		writeError(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}
	writeJSON(w, AuthResponse{Token: token, ClientID: req.ClientID, ExpiresAt: expiresAt}, http.StatusOK)
}

// Lifecycle endpoints

// StartNode handles POST /api/v1/node/start
func (h *Handlers) StartNode(w http.ResponseWriter, r *http.Request) {
	cfg, ok := h.nodeConfig(w, r)
	if !ok {
		return
	}
	h.respond(w, "start", h.bridge.Start(cfg))
}

// RestartNode handles POST /api/v1/node/restart
func (h *Handlers) RestartNode(w http.ResponseWriter, r *http.Request) {
	cfg, ok := h.nodeConfig(w, r)
	if !ok {
		return
	}
	h.respond(w, "restart", h.bridge.Restart(cfg))
}

// StopNode handles POST /api/v1/node/stop
func (h *Handlers) StopNode(w http.ResponseWriter, r *http.Request) {
	h.respond(w, "stop", h.bridge.Stop())
}

// Status handles GET /api/v1/node/status
func (h *Handlers) Status(w http.ResponseWriter, r *http.Request) {
	status, err := h.bridge.Status()
	if err != nil {
		h.writeBridgeError(w, err)
		return
	}
	writeJSON(w, status, http.StatusOK)
}

// Control endpoints

// ConnectPeer handles POST /api/v1/peers/connect
func (h *Handlers) ConnectPeer(w http.ResponseWriter, r *http.Request) {
	var req PeerRequest
	if h.decode(w, r, &req) {
		h.respond(w, "connectPeer", h.bridge.ConnectPeer(req))
	}
}

// DisconnectPeer handles POST /api/v1/peers/disconnect
func (h *Handlers) DisconnectPeer(w http.ResponseWriter, r *http.Request) {
	var req PeerRequest
	if h.decode(w, r, &req) {
		h.respond(w, "disconnectPeer", h.bridge.DisconnectPeer(req))
	}
}

// Send handles POST /api/v1/messages/send
func (h *Handlers) Send(w http.ResponseWriter, r *http.Request) {
	var req SendRequest
	if h.decode(w, r, &req) {
		h.respond(w, "send", h.bridge.Send(req))
	}
}

// Broadcast handles POST /api/v1/messages/broadcast
func (h *Handlers) Broadcast(w http.ResponseWriter, r *http.Request) {
	var req BroadcastRequest
	if h.decode(w, r, &req) {
		h.respond(w, "broadcast", h.bridge.Broadcast(req))
	}
}

// SetAnnounceCapabilities handles PUT /api/v1/node/announce-capabilities
func (h *Handlers) SetAnnounceCapabilities(w http.ResponseWriter, r *http.Request) {
	var req CapabilitiesRequest
	if h.decode(w, r, &req) {
		h.respond(w, "setAnnounceCapabilities", h.bridge.SetAnnounceCapabilities(req))
	}
}

// SetLogLevel handles PUT /api/v1/node/log-level
func (h *Handlers) SetLogLevel(w http.ResponseWriter, r *http.Request) {
	var req LogLevelRequest
	if h.decode(w, r, &req) {
		h.respond(w, "setLogLevel", h.bridge.SetLogLevel(req))
	}
}

// RefreshHubDirectory handles POST /api/v1/hub-directory/refresh
func (h *Handlers) RefreshHubDirectory(w http.ResponseWriter, r *http.Request) {
	h.respond(w, "refreshHubDirectory", h.bridge.RefreshHubDirectory())
}

// RemoveListeners handles DELETE /api/v1/listeners. Open event streams are
// closed; the event history is kept.
func (h *Handlers) RemoveListeners(w http.ResponseWriter, r *http.Request) {
	if err := h.bridge.RemoveAllListeners(); err != nil {
		h.writeBridgeError(w, err)
		return
	}
	removed := h.registry.RemoveAll()
	h.log.WithField("removed", removed).Info("removed all event listeners")
	writeJSON(w, RemoveListenersResponse{Removed: removed}, http.StatusOK)
}

// Event endpoints

// StreamEvents handles GET /api/v1/events/stream?event={name}. Without an
// event filter every event is streamed.
func (h *Handlers) StreamEvents(w http.ResponseWriter, r *http.Request) {
	event := strings.TrimSpace(r.URL.Query().Get("event"))
	if event == "" {
		event = observers.Wildcard
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	obs := observers.NewChannelObserver(h.streamBuffer)
	if err := h.registry.Subscribe(event, obs); err != nil {
		writeError(w, fmt.Sprintf("Failed to subscribe: %v", err), http.StatusInternalServerError)
		return
	}
	defer func() {
		h.registry.UnsubscribeAll(obs.ID())
		obs.Close()
	}()

	log := h.log.WithFields(logrus.Fields{"observer": obs.ID(), "event": event, "client": GetClientID(r)})
	log.Debug("event stream opened")

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if event == observers.Wildcard {
		fmt.Fprint(w, ": SSE connection established for all events\n\n")
	} else {
		fmt.Fprintf(w, ": SSE connection established for event: %s\n\n", event)
	}
	flusher.Flush()

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			log.Debug("event stream closed by client")
			return

		case <-obs.Done():
			log.Debug("event stream closed by listener removal")
			return

		case <-ticker.C:
			if _, err := w.Write([]byte(": ping\n\n")); err != nil {
				return
			}
			flusher.Flush()

		case ev := <-obs.Events():
			msg := EventStreamMessage{Event: ev.Name, Payload: ev.Payload, ReceivedAt: ev.ReceivedAt}
			if err := writeSSEMessage(w, msg); err != nil {
				log.WithError(err).Debug("event stream write failed")
				return
			}
			flusher.Flush()
		}
	}
}

// ReadEvents handles GET /api/v1/events/{name}?offset={offset}&limit={limit}
func (h *Handlers) ReadEvents(w http.ResponseWriter, r *http.Request) {
	event := GetEventName(r)
	if event == "" {
		writeError(w, "Event name required", http.StatusBadRequest)
		return
	}

	offset, err := queryInt(r, "offset", 0)
	if err != nil || offset < 0 {
		writeError(w, "offset must be a non-negative integer", http.StatusBadRequest)
		return
	}
	limit, err := queryInt(r, "limit", defaultHistoryLimit)
	if err != nil || limit < 0 {
		writeError(w, "limit must be a non-negative integer", http.StatusBadRequest)
		return
	}

	records, err := h.history.Read(r.Context(), event, int64(offset), limit)
	if err != nil {
		writeError(w, fmt.Sprintf("Failed to read events: %v", err), http.StatusInternalServerError)
		return
	}
	end, err := h.history.EndOffset(r.Context(), event)
	if err != nil {
		writeError(w, fmt.Sprintf("Failed to read events: %v", err), http.StatusInternalServerError)
		return
	}

	resp := ReadEventsResponse{
		Event:       event,
		StartOffset: int64(offset),
		EndOffset:   end,
		Count:       len(records),
		Records:     make([]HistoryRecord, 0, len(records)),
	}
	for _, rec := range records {
		resp.Records = append(resp.Records, HistoryRecord{
			Offset:    rec.Offset,
			Payload:   rec.Payload,
			Timestamp: rec.Timestamp,
		})
	}
	writeJSON(w, resp, http.StatusOK)
}

// Health endpoint

// Health handles GET /api/v1/health. A running node whose poller has stopped
// is reported unhealthy.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	state := h.bridge.State()
	poller := h.bridge.Poller()

	resp := HealthResponse{
		Healthy:       true,
		State:         state.String(),
		PollerRunning: poller.Running(),
		Poller:        poller.Stats(),
		Observers:     h.registry.ObserverCount(),
		HistoryEvents: h.history.Events(),
		Message:       "ok",
	}
	if state == bridge.StateRunning && !resp.PollerRunning {
		resp.Healthy = false
		resp.Message = "node is running but the event poller is not"
	}

	statusCode := http.StatusOK
	if !resp.Healthy {
		statusCode = http.StatusServiceUnavailable
	}
	writeJSON(w, resp, statusCode)
}

// Helper methods

func (h *Handlers) respond(w http.ResponseWriter, op string, err error) {
	if err != nil {
		h.writeBridgeError(w, err)
		return
	}
	writeJSON(w, OperationResponse{Operation: op, State: h.bridge.State().String()}, http.StatusOK)
}

// writeBridgeError maps a bridge failure to a status code: rejected input is
// 400, anything the node reported or returned malformed is 502.
func (h *Handlers) writeBridgeError(w http.ResponseWriter, err error) {
	berr, ok := bridge.AsError(err)
	if !ok {
		h.log.WithError(err).Error("unexpected bridge failure")
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	statusCode := http.StatusBadGateway
	if berr.Kind == bridge.KindValidation {
		statusCode = http.StatusBadRequest
	}
	writeJSON(w, ErrorResponse{
		Error:     http.StatusText(statusCode),
		Message:   berr.Message,
		Code:      statusCode,
		ErrorCode: berr.Code,
		Kind:      berr.Kind.String(),
		CallID:    berr.CallID,
	}, statusCode)
}

// nodeConfig reads an optional StartRequest. An empty body or a request
// without config uses the server defaults.
func (h *Handlers) nodeConfig(w http.ResponseWriter, r *http.Request) (nativenode.NodeConfig, bool) {
	if r.ContentLength == 0 {
		return h.nodeDefaults, true
	}
	var req StartRequest
	if !h.decode(w, r, &req) {
		return nativenode.NodeConfig{}, false
	}
	if req.Config == nil {
		return h.nodeDefaults, true
	}
	return *req.Config, true
}

// decode validates the content type and decodes the JSON body into dst,
// writing a 400 on failure.
func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := validateJSON(r); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return false
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			writeError(w, "Request body required", http.StatusBadRequest)
		} else {
			writeError(w, "Invalid request body", http.StatusBadRequest)
		}
		return false
	}
	return true
}

// validateJSON validates that the request has valid JSON content-type
func validateJSON(r *http.Request) error {
	contentType := r.Header.Get("Content-Type")
	if contentType != "application/json" && !strings.HasPrefix(contentType, "application/json;") {
		return errors.New("Content-Type must be application/json")
	}
	return nil
}

// validateAuthRequest validates authentication request fields
func validateAuthRequest(req *AuthRequest) error {
	if req.ClientID == "" {
		return errors.New("clientId is required")
	}
	if len(req.ClientID) < 2 {
		return errors.New("clientId must be at least 2 characters")
	}
	return nil
}

func queryInt(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}

// writeSSEMessage writes an EventStreamMessage as a properly formatted SSE data message
func writeSSEMessage(w io.Writer, message EventStreamMessage) error {
	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal SSE message: %w", err)
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}
