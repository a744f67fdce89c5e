package partner

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// Handler exposes partner health to operators.
type Handler struct {
	gw     *Gateway
	logger *zap.SugaredLogger
}

// NewHandler constructs a new Handler.
func NewHandler(gw *Gateway, logger *zap.SugaredLogger) *Handler {
	return &Handler{gw: gw, logger: logger}
}

// Health lists success/failure counters per partner.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.gw.Health()); err != nil {
		h.logger.Debugw("write partner health", "err", err)
	}
}
