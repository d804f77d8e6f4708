package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/payhuk02/payhula-sub024/internal/auth"
	"github.com/payhuk02/payhula-sub024/internal/logging"
	"github.com/payhuk02/payhula-sub024/internal/tracing"
	"github.com/payhuk02/payhula-sub024/internal/webhook"
)

// Server exposes the trigger API to business-event collaborators and the
// delivery-status lookup that dashboards read.
type Server struct {
	orchestrator *webhook.Orchestrator
	logs         webhook.DeliveryLogStore
	validator    *auth.JWTValidator
	logger       *logging.Logger
}

// NewServer wires the HTTP surface over the orchestrator and the log store
func NewServer(orchestrator *webhook.Orchestrator, logs webhook.DeliveryLogStore, validator *auth.JWTValidator, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.New("webhook-api")
	}
	return &Server{
		orchestrator: orchestrator,
		logs:         logs,
		validator:    validator,
		logger:       logger,
	}
}

// Register mounts the API routes on mux
func (s *Server) Register(mux *http.ServeMux) {
	mux.Handle("/v1/trigger", s.authenticated(http.HandlerFunc(s.handleTrigger)))
	mux.Handle("/v1/deliveries/", s.authenticated(http.HandlerFunc(s.handleDeliveries)))
}

func (s *Server) authenticated(next http.Handler) http.Handler {
	if s.validator == nil {
		return next
	}
	return s.validator.Middleware(next)
}

// triggerRequest is the JSON body accepted by POST /v1/trigger
type triggerRequest struct {
	EventType string         `json:"event_type"`
	EventID   string         `json:"event_id,omitempty"`
	Data      map[string]any `json:"data"`
}

type triggerResponse struct {
	EventID string                `json:"event_id"`
	Result  webhook.TriggerResult `json:"result"`
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	storeID, ok := auth.StoreIDFromContext(r.Context())
	if !ok {
		// No validator configured: trust the header used by internal callers
		storeID = r.Header.Get("X-Store-Id")
	}
	if storeID == "" {
		writeError(w, http.StatusBadRequest, "store id is required")
		return
	}

	var req triggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	event := webhook.Event{
		ID:      req.EventID,
		StoreID: storeID,
		Type:    webhook.EventType(req.EventType),
		Data:    req.Data,
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if err := event.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, span := tracing.StartSpan(r.Context(), "api.trigger",
		attribute.String("store_id", storeID),
		attribute.String("event_type", req.EventType),
		attribute.String("event_id", event.ID),
	)
	defer span.End()

	result, err := s.orchestrator.Trigger(ctx, storeID, event.Type, event.Data, event.ID)
	if err != nil {
		s.logger.WithContext(ctx).WithStore(storeID).WithEvent(event.ID).WithError(err).Error("trigger failed")
		tracing.SetSpanError(ctx, err)
		writeError(w, http.StatusInternalServerError, "trigger failed")
		return
	}

	writeJSON(w, http.StatusOK, triggerResponse{EventID: event.ID, Result: result})
}

// handleDeliveries serves GET /v1/deliveries/{event_id}
func (s *Server) handleDeliveries(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	eventID := strings.TrimPrefix(r.URL.Path, "/v1/deliveries/")
	if eventID == "" || strings.Contains(eventID, "/") {
		writeError(w, http.StatusBadRequest, "event id is required")
		return
	}

	logs, err := s.logs.DeliveriesByEvent(r.Context(), eventID)
	if err != nil {
		s.logger.WithContext(r.Context()).WithEvent(eventID).WithError(err).Error("delivery lookup failed")
		writeError(w, http.StatusInternalServerError, "delivery lookup failed")
		return
	}
	if logs == nil {
		logs = []webhook.DeliveryLog{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"event_id": eventID, "deliveries": logs})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
