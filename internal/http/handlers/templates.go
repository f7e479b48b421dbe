package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/medspa-capacity/internal/audit"
	"github.com/wolfman30/medspa-capacity/internal/schedule"
	"github.com/wolfman30/medspa-capacity/internal/tenancy"
	"github.com/wolfman30/medspa-capacity/pkg/logging"
)

// TemplatesHandler manages a tenant's weekly slot templates.
type TemplatesHandler struct {
	schedules schedule.Store
	audit     audit.Recorder
	logger    *logging.Logger
}

func NewTemplatesHandler(schedules schedule.Store, rec audit.Recorder, logger *logging.Logger) *TemplatesHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &TemplatesHandler{schedules: schedules, audit: rec, logger: logger}
}

type templateRequest struct {
	DayOfWeek int    `json:"dayOfWeek"`
	Start     string `json:"start"`
	End       string `json:"end"`
	Seats     int    `json:"seats"`
}

func (t templateRequest) toTemplate(id string) schedule.SlotTemplate {
	return schedule.SlotTemplate{ID: id, DayOfWeek: t.DayOfWeek, Start: t.Start, End: t.End, Seats: t.Seats}
}

func (h *TemplatesHandler) List(w http.ResponseWriter, r *http.Request) {
	scope, ok := requireScope(w, r)
	if !ok {
		return
	}
	list, err := h.schedules.ListTemplates(r.Context(), scope)
	if err != nil {
		h.logger.Error("list templates failed", "tenant_id", scope.TenantID(), "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "templates unavailable")
		return
	}
	if list == nil {
		list = []schedule.SlotTemplate{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"templates": list})
}

func (h *TemplatesHandler) Create(w http.ResponseWriter, r *http.Request) {
	scope, ok := requireScope(w, r)
	if !ok {
		return
	}
	var body templateRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_INPUT", "invalid JSON body")
		return
	}
	created, err := h.schedules.CreateTemplate(r.Context(), scope, body.toTemplate(""))
	if h.fail(w, scope, err) {
		return
	}
	h.log(r, scope, audit.EventTemplateCreated, created.ID, created)
	writeJSON(w, http.StatusCreated, created)
}

// Update replaces the template in place; no history is kept.
func (h *TemplatesHandler) Update(w http.ResponseWriter, r *http.Request) {
	scope, ok := requireScope(w, r)
	if !ok {
		return
	}
	var body templateRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_INPUT", "invalid JSON body")
		return
	}
	updated, err := h.schedules.UpdateTemplate(r.Context(), scope, body.toTemplate(chi.URLParam(r, "id")))
	if h.fail(w, scope, err) {
		return
	}
	h.log(r, scope, audit.EventTemplateUpdated, updated.ID, updated)
	writeJSON(w, http.StatusOK, updated)
}

func (h *TemplatesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	scope, ok := requireScope(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	if h.fail(w, scope, h.schedules.DeleteTemplate(r.Context(), scope, id)) {
		return
	}
	h.log(r, scope, audit.EventTemplateDeleted, id, nil)
	w.WriteHeader(http.StatusNoContent)
}

func (h *TemplatesHandler) fail(w http.ResponseWriter, scope tenancy.Scope, err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, schedule.ErrInvalidTemplate):
		writeError(w, http.StatusBadRequest, "INVALID_INPUT", err.Error())
	case errors.Is(err, schedule.ErrTemplateNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", "template not found")
	default:
		h.logger.Error("template store failed", "tenant_id", scope.TenantID(), "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "template could not be saved")
	}
	return true
}

func (h *TemplatesHandler) log(r *http.Request, scope tenancy.Scope, kind audit.EventType, subject string, details any) {
	if h.audit == nil {
		return
	}
	if err := h.audit.LogEvent(r.Context(), scope, audit.Event{
		EventType: kind,
		Actor:     actor(r),
		Subject:   subject,
		Details:   audit.Details(details),
	}); err != nil {
		h.logger.Warn("audit log failed", "tenant_id", scope.TenantID(), "error", err)
	}
}
