package http

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chi_middleware "github.com/go-chi/chi/v5/middleware"

	"github.com/zapflow/wagateway/internal/gateway_service/app"
	"github.com/zapflow/wagateway/internal/gateway_service/domain"
	"github.com/zapflow/wagateway/internal/gateway_service/provider"
)

// TransportFactory builds the chat-network transport for a newly registered
// session. The protocol implementation lives entirely behind this hook.
type TransportFactory func(sessionID string) provider.ChatTransport

// GatewayHandler marshals HTTP requests into the core session registry,
// dispatch engine, and conversation merger.
type GatewayHandler struct {
	registry         *app.SessionRegistry
	engine           *app.DispatchEngine
	merger           *app.ConversationMerger
	transportFactory TransportFactory
	logger           *slog.Logger
}

func NewGatewayHandler(
	registry *app.SessionRegistry,
	engine *app.DispatchEngine,
	merger *app.ConversationMerger,
	transportFactory TransportFactory,
	logger *slog.Logger,
) *GatewayHandler {
	return &GatewayHandler{
		registry:         registry,
		engine:           engine,
		merger:           merger,
		transportFactory: transportFactory,
		logger:           logger.With("handler", "gateway"),
	}
}

// RegisterRoutes registers gateway routes with the given router.
func (h *GatewayHandler) RegisterRoutes(r chi.Router) {
	r.Post("/sessions", h.handleRegisterSession)
	r.Get("/sessions", h.handleListSessions)
	r.Post("/sessions/{sessionID}/activate", h.handleActivateSession)
	r.Post("/sessions/{sessionID}/reconnect", h.handleReconnectSession)
	r.Delete("/sessions/{sessionID}", h.handleRemoveSession)

	r.Post("/contacts/validate", h.handleValidateContacts)

	r.Post("/dispatch", h.handleStartDispatch)
	r.Get("/dispatch/{runID}", h.handleGetDispatchRun)
	r.Post("/dispatch/{runID}/cancel", h.handleCancelDispatchRun)

	r.Post("/maintenance/merge-conversations", h.handleMergeConversations)
}

func (h *GatewayHandler) handleRegisterSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx))

	var req RegisterSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, logger, "Invalid request payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.ID == "" {
		h.jsonError(w, logger, "Session id is required", http.StatusBadRequest)
		return
	}

	session, err := h.registry.Register(ctx, req.ID, req.DisplayName, h.transportFactory(req.ID))
	if err != nil {
		h.writeCoreError(w, logger, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, SessionResponse{Session: session})
}

func (h *GatewayHandler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, ListSessionsResponse{Sessions: h.registry.List()})
}

func (h *GatewayHandler) handleActivateSession(w http.ResponseWriter, r *http.Request) {
	logger := h.logger.With("request_id", chi_middleware.GetReqID(r.Context()))
	sessionID := chi.URLParam(r, "sessionID")
	if err := h.registry.SetCurrent(sessionID); err != nil {
		h.writeCoreError(w, logger, err)
		return
	}
	session, _ := h.registry.Current()
	h.writeJSON(w, http.StatusOK, SessionResponse{Session: session})
}

func (h *GatewayHandler) handleReconnectSession(w http.ResponseWriter, r *http.Request) {
	logger := h.logger.With("request_id", chi_middleware.GetReqID(r.Context()))
	sessionID := chi.URLParam(r, "sessionID")
	if err := h.registry.Reconnect(sessionID); err != nil {
		h.writeCoreError(w, logger, err)
		return
	}
	session, err := h.registry.Get(sessionID)
	if err != nil {
		h.writeCoreError(w, logger, err)
		return
	}
	h.writeJSON(w, http.StatusAccepted, SessionResponse{Session: session})
}

func (h *GatewayHandler) handleRemoveSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx))
	sessionID := chi.URLParam(r, "sessionID")
	if err := h.registry.Remove(ctx, sessionID); err != nil {
		h.writeCoreError(w, logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *GatewayHandler) handleValidateContacts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx))

	var req ValidateContactsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, logger, "Invalid request payload: "+err.Error(), http.StatusBadRequest)
		return
	}

	results := make([]domain.ValidatedContact, 0, len(req.RawPhones))
	for _, raw := range req.RawPhones {
		results = append(results, h.engine.ValidateContact(ctx, raw))
	}
	h.writeJSON(w, http.StatusOK, ValidateContactsResponse{Results: results})
}

func (h *GatewayHandler) handleStartDispatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx))

	var req DispatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, logger, "Invalid request payload: "+err.Error(), http.StatusBadRequest)
		return
	}

	var attachment []byte
	if req.Attachment != "" {
		var err error
		attachment, err = base64.StdEncoding.DecodeString(req.Attachment)
		if err != nil {
			h.jsonError(w, logger, "Invalid attachment encoding", http.StatusBadRequest)
			return
		}
	}

	contacts := make([]domain.Contact, 0, len(req.Contacts))
	for _, c := range req.Contacts {
		contacts = append(contacts, domain.Contact{Name: c.Name, RawPhone: c.RawPhone})
	}

	runID, err := h.engine.StartDispatch(contacts, req.Template, attachment)
	if err != nil {
		h.writeCoreError(w, logger, err)
		return
	}
	logger.InfoContext(ctx, "Dispatch run started", "run_id", runID, "contacts", len(contacts))
	h.writeJSON(w, http.StatusAccepted, DispatchStartedResponse{RunID: runID})
}

func (h *GatewayHandler) handleGetDispatchRun(w http.ResponseWriter, r *http.Request) {
	logger := h.logger.With("request_id", chi_middleware.GetReqID(r.Context()))
	run, err := h.engine.GetRun(chi.URLParam(r, "runID"))
	if err != nil {
		h.writeCoreError(w, logger, err)
		return
	}
	h.writeJSON(w, http.StatusOK, DispatchRunResponse{Run: run})
}

func (h *GatewayHandler) handleCancelDispatchRun(w http.ResponseWriter, r *http.Request) {
	logger := h.logger.With("request_id", chi_middleware.GetReqID(r.Context()))
	runID := chi.URLParam(r, "runID")
	if err := h.engine.CancelRun(runID); err != nil {
		h.writeCoreError(w, logger, err)
		return
	}
	run, err := h.engine.GetRun(runID)
	if err != nil {
		h.writeCoreError(w, logger, err)
		return
	}
	h.writeJSON(w, http.StatusAccepted, DispatchRunResponse{Run: run})
}

func (h *GatewayHandler) handleMergeConversations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx))

	report, err := h.merger.FindAndMergeDuplicates(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "Merge pass failed", "error", err)
		h.jsonError(w, logger, "Merge pass failed", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, MergeResponse{
		MergedGroups: report.MergedGroups,
		FailedGroups: report.FailedGroups,
	})
}

// writeCoreError maps domain sentinel errors onto HTTP statuses.
func (h *GatewayHandler) writeCoreError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrDuplicateSessionID), errors.Is(err, domain.ErrSessionBusy):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrUnknownSession), errors.Is(err, domain.ErrRunNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrNoActiveSession):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrEmptyMessage), errors.Is(err, domain.ErrEmptyContactList):
		status = http.StatusBadRequest
	}
	h.jsonError(w, logger, err.Error(), status)
}

func (h *GatewayHandler) jsonError(w http.ResponseWriter, logger *slog.Logger, message string, status int) {
	if status >= http.StatusInternalServerError {
		logger.Error(message)
	}
	h.writeJSON(w, status, ErrorResponse{Error: message})
}

func (h *GatewayHandler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("Failed to encode response payload", "error", err)
	}
}
