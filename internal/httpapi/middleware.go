package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// ContextKey type for context keys to avoid collisions
type ContextKey string

const (
	// ClientIDKey is the context key for the authenticated client ID
	ClientIDKey ContextKey = "client_id"
	// EventNameKey is the context key for the event name taken from the URL path
	EventNameKey ContextKey = "event_name"
)

const devClientID = "dev-client"

// Middleware provides HTTP middleware functions
type Middleware struct {
	jwtAuth *JWTAuth
	noAuth  bool // Development mode: bypass authentication
	log     logrus.FieldLogger
}

// NewMiddleware creates a new middleware instance
func NewMiddleware(jwtAuth *JWTAuth, noAuth bool, log logrus.FieldLogger) *Middleware {
	return &Middleware{
		jwtAuth: jwtAuth,
		noAuth:  noAuth,
		log:     log,
	}
}

// AuthRequired middleware requires valid JWT authentication
func (m *Middleware) AuthRequired(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if m.noAuth {
			next(w, r.WithContext(context.WithValue(r.Context(), ClientIDKey, devClientID)))
			return
		}

		token := extractToken(r)
		if token == "" {
			writeError(w, "Authorization header required", http.StatusUnauthorized)
			return
		}

		claims, err := m.jwtAuth.ValidateToken(token)
		if err != nil {
			writeError(w, "Invalid token: "+err.Error(), http.StatusUnauthorized)
			return
		}

		// subject and client_id are both set on issue; prefer the claim
		clientID := claims.ClientID
		if clientID == "" {
			clientID = claims.Subject
		}
		next(w, r.WithContext(context.WithValue(r.Context(), ClientIDKey, clientID)))
	}
}

// CORS middleware adds CORS headers for browser compatibility
func (m *Middleware) CORS(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next(w, r)
	}
}

// ContentType middleware sets the content type to JSON
func (m *Middleware) ContentType(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next(w, r)
	}
}

// Logging middleware logs every request once it completes
func (m *Middleware) Logging(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)

		entry := m.log.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   rec.status,
			"duration": time.Since(start),
		})
		if rec.status >= http.StatusInternalServerError {
			entry.Warn("request failed")
		} else {
			entry.Debug("request served")
		}
	}
}

// Recovery middleware recovers from panics and returns 500 error
func (m *Middleware) Recovery(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				m.log.WithField("panic", err).WithField("path", r.URL.Path).Error("handler panicked")
				writeError(w, "Internal server error", http.StatusInternalServerError)
			}
		}()
		next(w, r)
	}
}

// statusRecorder remembers the status code and keeps streaming responses flushable.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// extractToken extracts the JWT token from the Authorization header
func extractToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}
	// Support both "Bearer token" and "token" formats
	return strings.TrimPrefix(authHeader, "Bearer ")
}

// writeError writes an error response as JSON
func writeError(w http.ResponseWriter, message string, statusCode int) {
	writeJSON(w, ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	}, statusCode)
}

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

// GetClientID extracts the client ID from the request context
func GetClientID(r *http.Request) string {
	if clientID, ok := r.Context().Value(ClientIDKey).(string); ok {
		return clientID
	}
	return ""
}

// GetEventName extracts the event name taken from the URL path
func GetEventName(r *http.Request) string {
	if name, ok := r.Context().Value(EventNameKey).(string); ok {
		return name
	}
	return ""
}
