package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/wolfman30/medspa-capacity/internal/audit"
	"github.com/wolfman30/medspa-capacity/internal/capacity"
	"github.com/wolfman30/medspa-capacity/internal/events"
	"github.com/wolfman30/medspa-capacity/internal/schedule"
	"github.com/wolfman30/medspa-capacity/internal/tenancy"
	"github.com/wolfman30/medspa-capacity/pkg/logging"
)

type CapacityConfig struct {
	Aggregator *capacity.Aggregator
	Schedules  schedule.Store
	Events     events.Recorder
	Audit      audit.Recorder
	Logger     *logging.Logger
}

// CapacityHandler serves the capacity calendar and per-day overrides.
type CapacityHandler struct {
	aggregator *capacity.Aggregator
	schedules  schedule.Store
	events     events.Recorder
	audit      audit.Recorder
	logger     *logging.Logger
	now        func() time.Time
}

func NewCapacityHandler(cfg CapacityConfig) *CapacityHandler {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &CapacityHandler{
		aggregator: cfg.Aggregator,
		schedules:  cfg.Schedules,
		events:     cfg.Events,
		audit:      cfg.Audit,
		logger:     cfg.Logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

type monthResponse struct {
	Days map[string]capacity.Snapshot `json:"days"`
}

// Month handles GET /tenants/{tenant}/capacity?month=YYYY-MM. Calendars
// must keep rendering, so an unknown tenant yields an empty month.
func (h *CapacityHandler) Month(w http.ResponseWriter, r *http.Request) {
	scope, err := tenancy.ScopeFromContext(r.Context())
	if err != nil {
		writeJSON(w, http.StatusOK, monthResponse{Days: map[string]capacity.Snapshot{}})
		return
	}
	month := r.URL.Query().Get("month")
	if month == "" {
		month = h.now().Format("2006-01")
	}
	days, err := h.aggregator.ForMonth(r.Context(), scope, month)
	if errors.Is(err, capacity.ErrInvalidMonth) {
		writeError(w, http.StatusBadRequest, "INVALID_INPUT", "month must be YYYY-MM")
		return
	}
	if err != nil {
		h.logger.Error("capacity month failed", "tenant_id", scope.TenantID(), "month", month, "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "capacity unavailable")
		return
	}
	writeJSON(w, http.StatusOK, monthResponse{Days: days})
}

type dayResponse struct {
	Date string `json:"date"`
	capacity.Snapshot
}

// Day handles GET /tenants/{tenant}/capacity/day?date=YYYY-MM-DD.
func (h *CapacityHandler) Day(w http.ResponseWriter, r *http.Request) {
	scope, ok := requireScope(w, r)
	if !ok {
		return
	}
	date := r.URL.Query().Get("date")
	snap, err := h.aggregator.ForDate(r.Context(), scope, date)
	if errors.Is(err, capacity.ErrInvalidRange) {
		writeError(w, http.StatusBadRequest, "INVALID_INPUT", "date must be YYYY-MM-DD")
		return
	}
	if err != nil {
		h.logger.Error("capacity day failed", "tenant_id", scope.TenantID(), "date", date, "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "capacity unavailable")
		return
	}
	writeJSON(w, http.StatusOK, dayResponse{Date: date, Snapshot: snap})
}

type overrideRequest struct {
	Date            string `json:"date"`
	Resource        string `json:"resource"`
	Close           bool   `json:"close"`
	PlannedCapacity *int   `json:"plannedCapacity"`
}

// PutDay handles PUT /tenants/{tenant}/capacity/day.
func (h *CapacityHandler) PutDay(w http.ResponseWriter, r *http.Request) {
	scope, ok := requireScope(w, r)
	if !ok {
		return
	}
	var body overrideRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_INPUT", "invalid JSON body")
		return
	}
	tier, err := schedule.ParseTier(body.Resource)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_INPUT", err.Error())
		return
	}

	saved, err := h.schedules.UpsertOverride(r.Context(), scope, schedule.ClosureOverride{
		Date:            body.Date,
		Tier:            tier,
		Closed:          body.Close,
		PlannedCapacity: body.PlannedCapacity,
	})
	if errors.Is(err, schedule.ErrInvalidOverride) {
		writeError(w, http.StatusBadRequest, "INVALID_INPUT", err.Error())
		return
	}
	if err != nil {
		h.logger.Error("upsert override failed", "tenant_id", scope.TenantID(), "date", body.Date, "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "override could not be saved")
		return
	}

	h.record(r, scope, audit.EventOverrideUpserted, events.OverrideChangedV1{
		TenantID:        scope.TenantID(),
		Date:            saved.Date,
		Tier:            string(saved.Tier),
		Closed:          saved.Closed,
		PlannedCapacity: saved.PlannedCapacity,
		ChangedAt:       saved.UpdatedAt,
	})
	writeJSON(w, http.StatusOK, saved)
}

// DeleteDay handles DELETE /tenants/{tenant}/capacity/day?date=&resource=.
// Removing an override reopens the tier with template defaults.
func (h *CapacityHandler) DeleteDay(w http.ResponseWriter, r *http.Request) {
	scope, ok := requireScope(w, r)
	if !ok {
		return
	}
	date := r.URL.Query().Get("date")
	tier, err := schedule.ParseTier(r.URL.Query().Get("resource"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_INPUT", err.Error())
		return
	}
	err = h.schedules.DeleteOverride(r.Context(), scope, date, tier)
	if errors.Is(err, schedule.ErrInvalidOverride) {
		writeError(w, http.StatusBadRequest, "INVALID_INPUT", err.Error())
		return
	}
	if err != nil {
		h.logger.Error("delete override failed", "tenant_id", scope.TenantID(), "date", date, "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "override could not be deleted")
		return
	}

	h.record(r, scope, audit.EventOverrideDeleted, events.OverrideChangedV1{
		TenantID:  scope.TenantID(),
		Date:      date,
		Tier:      string(tier),
		Deleted:   true,
		ChangedAt: h.now(),
	})
	w.WriteHeader(http.StatusNoContent)
}

// record writes the audit entry and outbox event for an override change.
// Both are best effort; the override itself is already saved.
func (h *CapacityHandler) record(r *http.Request, scope tenancy.Scope, kind audit.EventType, change events.OverrideChangedV1) {
	if h.audit != nil {
		if err := h.audit.LogEvent(r.Context(), scope, audit.Event{
			EventType: kind,
			Actor:     actor(r),
			Subject:   change.Date + "/" + change.Tier,
			Details:   audit.Details(change),
		}); err != nil {
			h.logger.Warn("audit log failed", "tenant_id", scope.TenantID(), "error", err)
		}
	}
	if h.events != nil {
		if _, err := h.events.Insert(r.Context(), scope, events.TypeOverrideChanged, change); err != nil {
			h.logger.Warn("override event not recorded", "tenant_id", scope.TenantID(), "error", err)
		}
	}
}
