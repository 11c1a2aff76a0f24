package settings

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/wolfman30/clinic-booking/internal/apperrors"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

// Handler exposes reminder settings to staff.
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

// RegisterRoutes mounts GET and PUT /settings/reminders.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/settings/reminders", h.get)
	r.Put("/settings/reminders", h.put)
}

type remindersResponse struct {
	Reminders
	EffectiveTemplate string `json:"effective_template"`
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	rem, err := h.store.Reminders(r.Context())
	if err != nil {
		h.logger.Error("settings handler: get reminders", "error", err)
		apperrors.WriteJSON(w, err)
		return
	}
	writeJSON(w, http.StatusOK, remindersResponse{Reminders: *rem, EffectiveTemplate: rem.TemplateOrDefault()})
}

func (h *Handler) put(w http.ResponseWriter, r *http.Request) {
	var req Reminders
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperrors.WriteJSON(w, apperrors.Validation("invalid request body"))
		return
	}
	if err := h.store.SetReminders(r.Context(), req); err != nil {
		if !apperrors.IsBusiness(err) {
			h.logger.Error("settings handler: set reminders", "error", err)
		}
		apperrors.WriteJSON(w, err)
		return
	}
	rem, err := h.store.Reminders(r.Context())
	if err != nil {
		apperrors.WriteJSON(w, err)
		return
	}
	writeJSON(w, http.StatusOK, remindersResponse{Reminders: *rem, EffectiveTemplate: rem.TemplateOrDefault()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
