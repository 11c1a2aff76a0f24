package booking

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wolfman30/clinic-booking/internal/apperrors"
	"github.com/wolfman30/clinic-booking/internal/auth"
	"github.com/wolfman30/clinic-booking/internal/schedule"
	"github.com/wolfman30/clinic-booking/internal/waitlist"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

// Handler exposes the orchestrator over HTTP.
type Handler struct {
	svc    *Service
	logger *logging.Logger
}

func NewHandler(svc *Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{svc: svc, logger: logger}
}

// RegisterPublicRoutes mounts the unauthenticated read endpoints.
func (h *Handler) RegisterPublicRoutes(r chi.Router) {
	r.Get("/availability", h.availability)
	r.Get("/dates", h.dates)
}

// RegisterPatientRoutes mounts endpoints that need an authenticated actor.
func (h *Handler) RegisterPatientRoutes(r chi.Router) {
	r.Post("/appointments", h.book)
	r.Delete("/appointments/{id}", h.cancel)
	r.Get("/me/appointments", h.myAppointments)
	r.Get("/me/appointments.ics", h.myCalendar)
	r.Post("/waitlist", h.addWaiting)
}

// RegisterAdminRoutes mounts staff endpoints. Expected behind RequireAdmin.
func (h *Handler) RegisterAdminRoutes(r chi.Router) {
	r.Get("/board", h.board)
	r.Put("/board/slot", h.reassign)
	r.Post("/reminders", h.bulkReminder)
	r.Post("/appointments", h.book)
	r.Delete("/appointments/{id}", h.cancel)
	r.Post("/appointments/{id}/confirm", h.confirmReply)
	r.Post("/appointments/{id}/reset-reply", h.resetReply)
	r.Post("/users/{id}/confirm-day", h.confirmUserDay)
	r.Put("/users/{id}/name", h.renameUser)
	r.Post("/users/merge", h.mergeUsers)
	r.Get("/closed-days", h.listClosed)
	r.Put("/closed-days/{date}", h.closeDay)
	r.Delete("/closed-days/{date}", h.reopenDay)
	r.Post("/waitlist", h.addWaiting)
	r.Delete("/waitlist/{id}", h.removeWaiting)
}

func (h *Handler) availability(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	service, err := schedule.ParseServiceType(q.Get("service_type"))
	if err != nil {
		h.respondError(w, "availability", err)
		return
	}
	date := q.Get("date")
	times, err := h.svc.Available(r.Context(), date, service)
	if err != nil {
		h.respondError(w, "availability", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"date": date, "service_type": service, "times": times})
}

func (h *Handler) dates(w http.ResponseWriter, r *http.Request) {
	offset, err := intParam(r, "week", 0)
	if err != nil {
		h.respondError(w, "dates", err)
		return
	}
	dates, err := h.svc.Dates(r.Context(), offset)
	if err != nil {
		h.respondError(w, "dates", err)
		return
	}
	writeJSON(w, http.StatusOK, dates)
}

func (h *Handler) book(w http.ResponseWriter, r *http.Request) {
	var req BookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, "book", apperrors.Validation("invalid request body"))
		return
	}
	req.Notify = true
	appt, err := h.svc.Book(r.Context(), actorOf(r), req)
	if err != nil {
		h.respondError(w, "book", err)
		return
	}
	writeJSON(w, http.StatusCreated, appt)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		h.respondError(w, "cancel", err)
		return
	}
	appt, err := h.svc.CancelOwn(r.Context(), actorOf(r), id)
	if err != nil {
		h.respondError(w, "cancel", err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

func (h *Handler) myAppointments(w http.ResponseWriter, r *http.Request) {
	appts, err := h.svc.Upcoming(r.Context(), actorOf(r), "")
	if err != nil {
		h.respondError(w, "my appointments", err)
		return
	}
	if appts == nil {
		writeJSON(w, http.StatusOK, []struct{}{})
		return
	}
	writeJSON(w, http.StatusOK, appts)
}

func (h *Handler) myCalendar(w http.ResponseWriter, r *http.Request) {
	appts, err := h.svc.Upcoming(r.Context(), actorOf(r), "")
	if err != nil {
		h.respondError(w, "my calendar", err)
		return
	}
	body, err := CalendarFeed(h.svc.ClinicName, appts, h.svc.Location(), time.Now())
	if err != nil {
		h.respondError(w, "my calendar", err)
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="appointments.ics"`)
	_, _ = w.Write([]byte(body))
}

type waitingRequest struct {
	Date     string `json:"date"`
	UserID   string `json:"user_id"`
	UserName string `json:"user_name"`
	Note     string `json:"note"`
}

func (h *Handler) addWaiting(w http.ResponseWriter, r *http.Request) {
	var req waitingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, "add waiting", apperrors.Validation("invalid request body"))
		return
	}
	e := &waitlist.Entry{Date: req.Date, UserID: req.UserID, UserName: req.UserName, Note: req.Note}
	if err := h.svc.AddToWaitlist(r.Context(), actorOf(r), e); err != nil {
		h.respondError(w, "add waiting", err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

func (h *Handler) removeWaiting(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		h.respondError(w, "remove waiting", err)
		return
	}
	if err := h.svc.RemoveFromWaitlist(r.Context(), actorOf(r), id); err != nil {
		h.respondError(w, "remove waiting", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) board(w http.ResponseWriter, r *http.Request) {
	offset, err := intParam(r, "week", 0)
	if err != nil {
		h.respondError(w, "board", err)
		return
	}
	b, err := h.svc.WeekBoard(r.Context(), actorOf(r), offset)
	if err != nil {
		h.respondError(w, "board", err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *Handler) reassign(w http.ResponseWriter, r *http.Request) {
	var req ReassignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, "reassign", apperrors.Validation("invalid request body"))
		return
	}
	res, err := h.svc.AdminReassign(r.Context(), actorOf(r), req)
	if err != nil {
		h.respondError(w, "reassign", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type reminderRequest struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Cadence string `json:"cadence"`
}

func (h *Handler) bulkReminder(w http.ResponseWriter, r *http.Request) {
	var req reminderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, "bulk reminder", apperrors.Validation("invalid request body"))
		return
	}
	if req.Cadence == "" {
		req.Cadence = "all"
	}
	res, err := h.svc.BulkReminder(r.Context(), actorOf(r), req.From, req.To, req.Cadence)
	if err != nil {
		h.respondError(w, "bulk reminder", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) confirmReply(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err == nil {
		err = h.svc.ConfirmReply(r.Context(), actorOf(r), id)
	}
	if err != nil {
		h.respondError(w, "confirm reply", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) resetReply(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err == nil {
		err = h.svc.ResetReply(r.Context(), actorOf(r), id)
	}
	if err != nil {
		h.respondError(w, "reset reply", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) confirmUserDay(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Date string `json:"date"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, "confirm day", apperrors.Validation("invalid request body"))
		return
	}
	n, err := h.svc.ConfirmUserDay(r.Context(), actorOf(r), chi.URLParam(r, "id"), req.Date)
	if err != nil {
		h.respondError(w, "confirm day", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"confirmed": n})
}

func (h *Handler) renameUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, "rename user", apperrors.Validation("invalid request body"))
		return
	}
	n, err := h.svc.RenameUser(r.Context(), actorOf(r), chi.URLParam(r, "id"), req.Name)
	if err != nil {
		h.respondError(w, "rename user", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"appointments_updated": n})
}

func (h *Handler) mergeUsers(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SourceUserID string `json:"source_user_id"`
		TargetUserID string `json:"target_user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, "merge users", apperrors.Validation("invalid request body"))
		return
	}
	res, err := h.svc.MergeUsers(r.Context(), actorOf(r), req.SourceUserID, req.TargetUserID)
	if err != nil {
		h.respondError(w, "merge users", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) listClosed(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	days, err := h.svc.ClosedDays(r.Context(), q.Get("from"), q.Get("to"))
	if err != nil {
		h.respondError(w, "list closed days", err)
		return
	}
	if days == nil {
		writeJSON(w, http.StatusOK, []struct{}{})
		return
	}
	writeJSON(w, http.StatusOK, days)
}

func (h *Handler) closeDay(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason string `json:"reason"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.respondError(w, "close day", apperrors.Validation("invalid request body"))
			return
		}
	}
	res, err := h.svc.CloseDay(r.Context(), actorOf(r), chi.URLParam(r, "date"), req.Reason)
	if err != nil {
		h.respondError(w, "close day", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) reopenDay(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.ReopenDay(r.Context(), actorOf(r), chi.URLParam(r, "date")); err != nil {
		h.respondError(w, "reopen day", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func actorOf(r *http.Request) auth.Actor {
	a, _ := auth.FromContext(r.Context())
	return a
}

func uuidParam(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, apperrors.Validation("invalid %s", name)
	}
	return id, nil
}

func intParam(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperrors.Validation("%s must be a number", name)
	}
	return n, nil
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	if !apperrors.IsBusiness(err) {
		h.logger.Error("booking handler: "+op, "error", err)
	}
	apperrors.WriteJSON(w, err)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
