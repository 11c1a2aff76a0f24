package messaging

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/wolfman30/clinic-booking/internal/apperrors"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

// LogReader is the read side of the message log.
type LogReader interface {
	Recent(ctx context.Context, f LogFilter) ([]LogEntry, error)
}

// ScheduleAdmin manages queued custom messages.
type ScheduleAdmin interface {
	Create(ctx context.Context, m *ScheduledMessage) error
	List(ctx context.Context, limit int) ([]ScheduledMessage, error)
	Cancel(ctx context.Context, id uuid.UUID) error
}

// Handler exposes message history, scheduling and direct sends to staff.
type Handler struct {
	logs      LogReader
	scheduled ScheduleAdmin
	out       Deliverer
	logger    *logging.Logger
}

// NewHandler creates the admin messaging handler.
func NewHandler(logs LogReader, scheduled ScheduleAdmin, out Deliverer, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{logs: logs, scheduled: scheduled, out: out, logger: logger}
}

// RegisterRoutes mounts messaging endpoints. Expected under the admin group.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/messages/logs", h.recent)
	r.Post("/messages/send", h.send)
	r.Get("/messages/scheduled", h.listScheduled)
	r.Post("/messages/scheduled", h.createScheduled)
	r.Delete("/messages/scheduled/{id}", h.cancelScheduled)
}

func (h *Handler) recent(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := LogFilter{Status: q.Get("status")}
	if raw := q.Get("type"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			f.Types = append(f.Types, MessageType(strings.TrimSpace(t)))
		}
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			apperrors.WriteJSON(w, apperrors.Validation("limit must be a number"))
			return
		}
		f.Limit = n
	}
	entries, err := h.logs.Recent(r.Context(), f)
	if err != nil {
		h.respondError(w, "recent logs", err)
		return
	}
	if entries == nil {
		entries = []LogEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

type sendRequest struct {
	UserIDs []string `json:"user_ids"`
	Text    string   `json:"text"`
}

type sendResult struct {
	Sent   int      `json:"sent"`
	Failed []string `json:"failed"`
}

func (h *Handler) send(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperrors.WriteJSON(w, apperrors.Validation("invalid request body"))
		return
	}
	if strings.TrimSpace(req.Text) == "" || len(req.UserIDs) == 0 {
		apperrors.WriteJSON(w, apperrors.Validation("user_ids and text are required"))
		return
	}
	res := sendResult{Failed: []string{}}
	for _, id := range req.UserIDs {
		if err := h.out.Deliver(r.Context(), Outbound{UserID: id, Type: TypeCustom, Text: req.Text}); err != nil {
			res.Failed = append(res.Failed, id)
			continue
		}
		res.Sent++
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) listScheduled(w http.ResponseWriter, r *http.Request) {
	msgs, err := h.scheduled.List(r.Context(), 0)
	if err != nil {
		h.respondError(w, "list scheduled", err)
		return
	}
	if msgs == nil {
		msgs = []ScheduledMessage{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

type scheduleRequest struct {
	UserID string    `json:"user_id"`
	Body   string    `json:"body"`
	SendAt time.Time `json:"send_at"`
}

func (h *Handler) createScheduled(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperrors.WriteJSON(w, apperrors.Validation("invalid request body"))
		return
	}
	m := &ScheduledMessage{UserID: req.UserID, Body: req.Body, SendAt: req.SendAt}
	if err := h.scheduled.Create(r.Context(), m); err != nil {
		h.respondError(w, "create scheduled", err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (h *Handler) cancelScheduled(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		apperrors.WriteJSON(w, apperrors.Validation("invalid id"))
		return
	}
	if err := h.scheduled.Cancel(r.Context(), id); err != nil {
		h.respondError(w, "cancel scheduled", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	if !apperrors.IsBusiness(err) {
		h.logger.Error("messaging handler: "+op, "error", err)
	}
	apperrors.WriteJSON(w, err)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
