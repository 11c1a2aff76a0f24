package users

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/wolfman30/clinic-booking/internal/apperrors"
	"github.com/wolfman30/clinic-booking/internal/auth"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

// Handler exposes staff user management.
type Handler struct {
	store  *Store
	logger *logging.Logger
}

func NewHandler(store *Store, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{store: store, logger: logger}
}

// RegisterRoutes mounts the user endpoints. Expected behind RequireAdmin.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/users", h.list)
	r.Post("/users/manual", h.addManual)
	r.Get("/users/merge-suggestions", h.mergeSuggestions)
	r.Post("/users/{id}/toggle-admin", h.toggleAdmin)
	r.Delete("/users/{id}", h.delete)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	all, err := h.store.List(r.Context())
	if err != nil {
		h.respondError(w, "list users", err)
		return
	}
	if all == nil {
		all = []User{}
	}
	actor, _ := auth.FromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"users": all, "current_admin_id": actor.UserID})
}

func (h *Handler) addManual(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, "add manual user", apperrors.Validation("invalid request body"))
		return
	}
	u, err := h.store.AddManual(r.Context(), req.Name)
	if err != nil {
		h.respondError(w, "add manual user", err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

func (h *Handler) mergeSuggestions(w http.ResponseWriter, r *http.Request) {
	all, err := h.store.List(r.Context())
	if err != nil {
		h.respondError(w, "merge suggestions", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"suggestions": SuggestMerges(all)})
}

func (h *Handler) toggleAdmin(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if actor, _ := auth.FromContext(r.Context()); actor.UserID == id {
		h.respondError(w, "toggle admin", apperrors.ErrForbidden)
		return
	}
	admin, err := h.store.ToggleAdmin(r.Context(), id)
	if err != nil {
		h.respondError(w, "toggle admin", err)
		return
	}
	h.logger.Info("admin flag changed", "user_id", id, "is_admin", admin)
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "is_admin": admin})
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if actor, _ := auth.FromContext(r.Context()); actor.UserID == id {
		h.respondError(w, "delete user", apperrors.ErrForbidden)
		return
	}
	if err := h.store.Delete(r.Context(), nil, id); err != nil {
		h.respondError(w, "delete user", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	if !apperrors.IsBusiness(err) {
		h.logger.Error("users handler: "+op, "error", err)
	}
	apperrors.WriteJSON(w, err)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
