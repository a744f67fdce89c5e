package ussd

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-ussd-credit/internal/session/entity"
	"github.com/ovaphlow/pitchfork/service-ussd-credit/internal/validate"
)

// Handler exposes the USSD gateway endpoints.
type Handler struct {
	svc    *Service
	logger *zap.SugaredLogger
}

func NewHandler(svc *Service, logger *zap.SugaredLogger) *Handler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Handler{svc: svc, logger: logger}
}

// StartRequest opens a session. Flow is optional.
type StartRequest struct {
	PhoneNumber string      `json:"phoneNumber"`
	Flow        entity.Flow `json:"flow,omitempty"`
}

type StartResponse struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
}

// ContinueRequest carries one keystroke. RequestID is the gateway's retry
// key when it has one.
type ContinueRequest struct {
	SessionID string `json:"sessionId"`
	UserInput string `json:"userInput"`
	RequestID string `json:"requestId,omitempty"`
}

type ContinueResponse struct {
	Message string `json:"message"`
}

func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Debugw("invalid session payload", "err", err)
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	rep, err := h.svc.Start(r.Context(), req.PhoneNumber, req.Flow)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, StartResponse{SessionID: rep.SessionID, Message: rep.Message})
}

func (h *Handler) Continue(w http.ResponseWriter, r *http.Request) {
	var req ContinueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SessionID == "" {
		h.logger.Debugw("invalid continue payload", "err", err)
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	requestID := req.RequestID
	if requestID == "" {
		requestID = r.Header.Get("X-Request-Id")
	}
	rep, err := h.svc.Continue(r.Context(), req.SessionID, req.UserInput, requestID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, ContinueResponse{Message: rep.Message})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var ve *validate.Error
	switch {
	case errors.As(err, &ve):
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": ve.Message})
	case errors.Is(err, ErrSessionNotFound):
		h.writeJSON(w, http.StatusNotFound, map[string]string{"error": "session not found"})
	case errors.Is(err, ErrSessionExpired):
		h.writeJSON(w, http.StatusGone, map[string]string{"error": "session expired"})
	case errors.Is(err, ErrBusy):
		h.writeJSON(w, http.StatusConflict, map[string]string{"error": "session busy, retry"})
	default:
		h.logger.Errorw("ussd request failed", "err", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
