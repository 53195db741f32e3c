package extraction

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/aiox-platform/usermemory/internal/api"
	"github.com/aiox-platform/usermemory/internal/auth"
	mw "github.com/aiox-platform/usermemory/internal/middleware"
	"github.com/aiox-platform/usermemory/internal/orchestrator"
)

// Handler handles extraction HTTP endpoints.
type Handler struct {
	dispatcher *Dispatcher
}

// NewHandler creates a new extraction handler.
func NewHandler(dispatcher *Dispatcher) *Handler {
	return &Handler{dispatcher: dispatcher}
}

// Enqueue queues extraction of the caller's topics. The user is always the
// token's subject, whatever the body says.
func (h *Handler) Enqueue(w http.ResponseWriter, r *http.Request) {
	uid := auth.GetUserID(r.Context())
	if uid == "" {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	var req orchestrator.ExtractionPayload
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			api.HandleError(w, api.ErrBadRequest)
			return
		}
	}
	req.UserID = uid
	req.UserIDs = nil

	payload, err := orchestrator.NormalizePayload(req)
	if err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	res, err := h.dispatcher.Dispatch(r.Context(), payload, mw.GetRequestID(r.Context()))
	if errors.Is(err, ErrUnsupportedSource) {
		api.HandleError(w, api.NewBadRequestError(err.Error()))
		return
	}
	if err != nil {
		slog.Error("extraction: dispatching jobs", "user_id", uid, "error", err)
		api.HandleError(w, api.ErrServiceUnavailable)
		return
	}

	api.JSON(w, http.StatusAccepted, res)
}
