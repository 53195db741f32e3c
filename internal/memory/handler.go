package memory

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/aiox-platform/usermemory/internal/api"
	"github.com/aiox-platform/usermemory/internal/auth"
)

// Handler handles memory HTTP endpoints.
type Handler struct {
	svc        *Service
	reembedder *Reembedder
	validate   *validator.Validate
}

// NewHandler creates a new memory handler.
func NewHandler(svc *Service, reembedder *Reembedder) *Handler {
	return &Handler{
		svc:        svc,
		reembedder: reembedder,
		validate:   validator.New(),
	}
}

// decode reads the JSON body into dst and validates it. It writes the error
// response and returns false on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return false
	}
	return true
}

func userID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := auth.GetUserID(r.Context())
	if id == "" {
		api.HandleError(w, api.ErrUnauthorized)
		return "", false
	}
	return id, true
}

func writeMutation(w http.ResponseWriter, res MutationResult, okStatus int) {
	switch {
	case res.Success:
		api.JSON(w, okStatus, res)
	case res.NotFound():
		api.JSON(w, http.StatusNotFound, res)
	default:
		api.JSON(w, http.StatusUnprocessableEntity, res)
	}
}

// AddContext stores a context memory.
func (h *Handler) AddContext(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	var req ContextMemory
	if !h.decode(w, r, &req) {
		return
	}
	writeMutation(w, h.svc.AddContextMemory(r.Context(), uid, req), http.StatusCreated)
}

// AddExperience stores an experience memory.
func (h *Handler) AddExperience(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	var req ExperienceMemory
	if !h.decode(w, r, &req) {
		return
	}
	writeMutation(w, h.svc.AddExperienceMemory(r.Context(), uid, req), http.StatusCreated)
}

// AddPreference stores a preference memory.
func (h *Handler) AddPreference(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	var req PreferenceMemory
	if !h.decode(w, r, &req) {
		return
	}
	writeMutation(w, h.svc.AddPreferenceMemory(r.Context(), uid, req), http.StatusCreated)
}

// AddIdentity stores an identity entry.
func (h *Handler) AddIdentity(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	var req IdentityMemory
	if !h.decode(w, r, &req) {
		return
	}
	writeMutation(w, h.svc.AddIdentityMemory(r.Context(), uid, req), http.StatusCreated)
}

// UpdateIdentity applies a patch to the identity named in the URL.
func (h *Handler) UpdateIdentity(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	var req UpdateIdentityInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}
	req.ID = chi.URLParam(r, "identityID")
	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}
	writeMutation(w, h.svc.UpdateIdentityMemory(r.Context(), uid, req), http.StatusOK)
}

// RemoveIdentity deletes the identity named in the URL. An optional reason is
// read from the query string.
func (h *Handler) RemoveIdentity(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	req := RemoveIdentityInput{
		ID:     chi.URLParam(r, "identityID"),
		Reason: r.URL.Query().Get("reason"),
	}
	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}
	writeMutation(w, h.svc.RemoveIdentityMemory(r.Context(), uid, req), http.StatusOK)
}

// ListIdentities returns every identity of the caller.
func (h *Handler) ListIdentities(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	identities, err := h.svc.ListIdentities(r.Context(), uid)
	if err != nil {
		slog.Error("listing identities", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	api.JSON(w, http.StatusOK, identities)
}

// Search performs a similarity search across contexts, experiences and preferences.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	var req SearchMemoryInput
	if !h.decode(w, r, &req) {
		return
	}
	api.JSON(w, http.StatusOK, h.svc.SearchMemory(r.Context(), uid, req))
}

// Reembed regenerates the caller's stored vectors. An empty body re-embeds everything.
func (h *Handler) Reembed(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	var req ReembedInput
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			api.HandleError(w, api.ErrBadRequest)
			return
		}
	}
	if err := h.reembedder.Validate(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	res := h.reembedder.Run(r.Context(), uid, req)
	status := http.StatusOK
	if !res.Success {
		status = http.StatusInternalServerError
	}
	api.JSON(w, status, res)
}
