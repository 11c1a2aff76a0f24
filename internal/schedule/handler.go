package schedule

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/wolfman30/clinic-booking/internal/apperrors"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

// Handler exposes template administration over HTTP.
type Handler struct {
	store  *Store
	logger *logging.Logger
}

// NewHandler creates a template HTTP handler.
func NewHandler(store *Store, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{store: store, logger: logger}
}

// RegisterRoutes mounts template endpoints. Expected under the admin group.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/templates", h.list)
	r.Post("/templates", h.create)
	r.Post("/templates/copy", h.copyDay)
	r.Put("/templates/{id}", h.update)
	r.Delete("/templates/{id}", h.delete)
}

type templateRequest struct {
	Weekday     int    `json:"weekday"`
	ServiceType string `json:"service_type"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	Active      *bool  `json:"active"`
	Note        string `json:"note"`
}

func (req templateRequest) template() Template {
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	return Template{
		Weekday:     Weekday(req.Weekday),
		ServiceType: ServiceType(req.ServiceType),
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		Active:      active,
		Note:        req.Note,
	}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	var f Filter
	if v := r.URL.Query().Get("weekday"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			apperrors.WriteJSON(w, apperrors.Validation("weekday must be a number"))
			return
		}
		f.Weekday = Weekday(n)
	}
	f.ServiceType = ServiceType(r.URL.Query().Get("service_type"))

	templates, err := h.store.List(r.Context(), f)
	if err != nil {
		h.logger.Error("schedule handler: list templates", "error", err)
		apperrors.WriteJSON(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"templates": templates, "count": len(templates)})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req templateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperrors.WriteJSON(w, apperrors.Validation("invalid JSON body"))
		return
	}
	t := req.template()
	if err := h.store.Create(r.Context(), &t); err != nil {
		h.respondError(w, "create template", err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		apperrors.WriteJSON(w, apperrors.Validation("invalid template id"))
		return
	}
	var req templateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperrors.WriteJSON(w, apperrors.Validation("invalid JSON body"))
		return
	}
	t := req.template()
	t.ID = id
	if err := h.store.Update(r.Context(), &t); err != nil {
		h.respondError(w, "update template", err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		apperrors.WriteJSON(w, apperrors.Validation("invalid template id"))
		return
	}
	if err := h.store.Delete(r.Context(), id); err != nil {
		h.respondError(w, "delete template", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) copyDay(w http.ResponseWriter, r *http.Request) {
	var req struct {
		From        int    `json:"from_weekday"`
		To          int    `json:"to_weekday"`
		ServiceType string `json:"service_type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperrors.WriteJSON(w, apperrors.Validation("invalid JSON body"))
		return
	}
	n, err := h.store.CopyDay(r.Context(), Weekday(req.From), Weekday(req.To), ServiceType(req.ServiceType))
	if err != nil {
		h.respondError(w, "copy day", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"copied": n})
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	if !apperrors.IsBusiness(err) {
		h.logger.Error("schedule handler: "+op, "error", err)
	}
	apperrors.WriteJSON(w, err)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
