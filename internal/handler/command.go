package handler

import (
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/shoplens-ai/catalog-assistant/internal/middleware"
	"github.com/shoplens-ai/catalog-assistant/internal/model"
	"github.com/shoplens-ai/catalog-assistant/internal/orchestrator"
	"github.com/shoplens-ai/catalog-assistant/pkg/logger"
	"github.com/shoplens-ai/catalog-assistant/pkg/metrics"
)

// CommandHandler handles the command processing endpoints.
type CommandHandler struct {
	orch   *orchestrator.Orchestrator
	logger *logger.Logger
}

// NewCommandHandler creates a new command handler.
func NewCommandHandler(orch *orchestrator.Orchestrator, log *logger.Logger) *CommandHandler {
	return &CommandHandler{
		orch:   orch,
		logger: log,
	}
}

// ConfirmRequest is the payload for POST /api/v1/confirm.
type ConfirmRequest struct {
	ShopID    string `json:"shop_id"`
	SessionID string `json:"session_id"`
	Confirm   bool   `json:"confirm"`
}

func (h *CommandHandler) decodeCommand(w http.ResponseWriter, r *http.Request) (*model.CommandRequest, bool) {
	var req model.CommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return nil, false
	}

	// The authenticated shop always wins over the payload.
	if shopID := middleware.GetShopID(r.Context()); shopID != "" {
		req.ShopID = shopID
	}
	if req.SessionID == "" {
		req.SessionID = middleware.GetUserID(r.Context())
	}
	if err := middleware.ValidateShopID(req.ShopID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	if err := middleware.ValidateSessionID(req.SessionID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	if err := middleware.ValidateCommandText(req.Text); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	return &req, true
}

// Process handles POST /api/v1/command
func (h *CommandHandler) Process(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeCommand(w, r)
	if !ok {
		return
	}

	result := h.orch.ProcessCommand(r.Context(), req)
	writeJSON(w, http.StatusOK, result)
}

// ProcessStream handles POST /api/v1/command/stream with SSE output. Free
// text streams as delta events; the terminal result arrives as a done event.
func (h *CommandHandler) ProcessStream(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeCommand(w, r)
	if !ok {
		return
	}

	flusher, okFlush := w.(http.Flusher)
	if !okFlush {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	metrics.IncrementSSEConnections()
	defer metrics.DecrementSSEConnections()

	sendSSEEvent(w, flusher, "accepted", map[string]string{
		"session_id": req.SessionID,
	})

	em := orchestrator.NewEmitter(func(chunk string) error {
		return sendSSEEvent(w, flusher, "delta", map[string]string{"text": chunk})
	})

	result := h.orch.ProcessCommandStream(r.Context(), req, em)
	if err := sendSSEEvent(w, flusher, "done", result); err != nil {
		h.logger.Warn("failed to send terminal SSE event", zap.Error(err))
	}
}

// Confirm handles POST /api/v1/confirm
func (h *CommandHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	var body ConfirmRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.SessionID == "" {
		body.SessionID = middleware.GetUserID(r.Context())
	}
	if err := middleware.ValidateSessionID(body.SessionID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	shopID := middleware.GetShopID(r.Context())
	if shopID == "" {
		shopID = body.ShopID
	}
	if err := middleware.ValidateShopID(shopID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result := h.orch.ConfirmPending(r.Context(), &model.CommandRequest{
		ShopID:    shopID,
		SessionID: body.SessionID,
	}, body.Confirm)
	writeJSON(w, http.StatusOK, result)
}

func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, data interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "event: %s\n", event)
	fmt.Fprintf(w, "data: %s\n\n", jsonData)
	flusher.Flush()

	return nil
}
