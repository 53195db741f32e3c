package history

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/aiox-platform/usermemory/internal/api"
	"github.com/aiox-platform/usermemory/internal/auth"
)

// Lister reads runs. *Repository implements it.
type Lister interface {
	ListByUser(ctx context.Context, userID string, params ListParams) ([]Run, int64, error)
}

// Handler provides HTTP handlers for extraction history.
type Handler struct {
	runs Lister
}

// NewHandler creates a new history Handler.
func NewHandler(runs Lister) *Handler {
	return &Handler{runs: runs}
}

// List returns paginated extraction runs for the authenticated user.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID := auth.GetUserID(r.Context())
	if userID == "" {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	params := parseListParams(r)

	runs, total, err := h.runs.ListByUser(r.Context(), userID, params)
	if err != nil {
		slog.Error("listing extraction runs", "error", err, "user_id", userID)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSONPaginated(w, http.StatusOK, runs, total, params.Page, params.PageSize)
}

func parseListParams(r *http.Request) ListParams {
	params := DefaultListParams()
	q := r.URL.Query()

	params.Status = q.Get("status")
	params.Source = q.Get("source")
	params.SourceID = q.Get("source_id")
	if p := q.Get("page"); p != "" {
		if page, err := strconv.Atoi(p); err == nil && page > 0 {
			params.Page = page
		}
	}
	if ps := q.Get("page_size"); ps != "" {
		if pageSize, err := strconv.Atoi(ps); err == nil && pageSize > 0 && pageSize <= 100 {
			params.PageSize = pageSize
		}
	}
	if from := q.Get("from"); from != "" {
		if t, err := time.Parse(time.RFC3339, from); err == nil {
			params.From = &t
		}
	}
	if to := q.Get("to"); to != "" {
		if t, err := time.Parse(time.RFC3339, to); err == nil {
			params.To = &t
		}
	}

	return params
}
