package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/medspa-capacity/internal/admission"
	"github.com/wolfman30/medspa-capacity/internal/audit"
	"github.com/wolfman30/medspa-capacity/internal/bookings"
	"github.com/wolfman30/medspa-capacity/internal/http/middleware"
	"github.com/wolfman30/medspa-capacity/internal/schedule"
	"github.com/wolfman30/medspa-capacity/pkg/logging"
)

type BookingsConfig struct {
	Admission *admission.Controller
	Lifecycle *bookings.Service
	Ledger    bookings.Repository
	Audit     audit.Recorder
	Logger    *logging.Logger
}

// BookingsHandler serves booking admission and staff lifecycle actions.
type BookingsHandler struct {
	admission *admission.Controller
	lifecycle *bookings.Service
	ledger    bookings.Repository
	audit     audit.Recorder
	logger    *logging.Logger
}

func NewBookingsHandler(cfg BookingsConfig) *BookingsHandler {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &BookingsHandler{
		admission: cfg.Admission,
		lifecycle: cfg.Lifecycle,
		ledger:    cfg.Ledger,
		audit:     cfg.Audit,
		logger:    cfg.Logger,
	}
}

type admitRequest struct {
	PackageID string `json:"packageId"`
	Date      string `json:"date"`
	Time      string `json:"time"`
	Name      string `json:"name"`
	Phone     string `json:"phone"`
	Email     string `json:"email"`
	Note      string `json:"note"`
}

type admitResponse struct {
	ID            string          `json:"id"`
	Code          admission.Code  `json:"code"`
	Status        bookings.Status `json:"status"`
	Date          string          `json:"date"`
	Time          string          `json:"time"`
	Seat          int             `json:"seat"`
	EffectiveDate string          `json:"effectiveDate"`
}

// Admit handles POST /tenants/{tenant}/bookings.
func (h *BookingsHandler) Admit(w http.ResponseWriter, r *http.Request) {
	var body admitRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, string(admission.CodeInvalidInput), "invalid JSON body")
		return
	}

	b, err := h.admission.Admit(r.Context(), admission.Request{
		PackageID: body.PackageID,
		Date:      body.Date,
		Time:      body.Time,
		Name:      body.Name,
		Phone:     body.Phone,
		Email:     body.Email,
		Note:      body.Note,
		Staff:     middleware.IsStaff(r.Context()),
	})
	if err != nil {
		writeAdmissionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, admitResponse{
		ID:            b.ID,
		Code:          admission.CodeAdmitted,
		Status:        b.Status,
		Date:          b.Date,
		Time:          b.Time,
		Seat:          b.Seat,
		EffectiveDate: b.EffectiveDate,
	})
}

func writeAdmissionError(w http.ResponseWriter, err error) {
	code := admission.CodeOf(err)
	msg := "booking could not be recorded"
	var ae *admission.Error
	if errors.As(err, &ae) && code != admission.CodeInternal {
		msg = ae.Message
	}
	writeError(w, admissionStatus(code), string(code), msg)
}

func admissionStatus(code admission.Code) int {
	switch code {
	case admission.CodeTenantNotFound, admission.CodePackageNotFound:
		return http.StatusNotFound
	case admission.CodeClosed, admission.CodeFull:
		return http.StatusConflict
	case admission.CodeInvalidInput:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

var actionStatus = map[string]bookings.Status{
	"reserve":  bookings.StatusReserved,
	"confirm":  bookings.StatusConfirmed,
	"complete": bookings.StatusCompleted,
	"cancel":   bookings.StatusCanceled,
	"no-show":  bookings.StatusNoShow,
}

// Transition handles POST /tenants/{tenant}/bookings/{id}/{action}.
func (h *BookingsHandler) Transition(w http.ResponseWriter, r *http.Request) {
	scope, ok := requireScope(w, r)
	if !ok {
		return
	}
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	action := strings.ToLower(chi.URLParam(r, "action"))
	to, ok := actionStatus[action]
	if !ok || id == "" {
		writeError(w, http.StatusBadRequest, "INVALID_INPUT", "unknown booking action")
		return
	}

	updated, err := h.lifecycle.Transition(r.Context(), scope, id, to)
	switch {
	case errors.Is(err, bookings.ErrNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", "booking not found")
		return
	case errors.Is(err, bookings.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "INVALID_TRANSITION", err.Error())
		return
	case err != nil:
		h.logger.Error("booking transition failed", "tenant_id", scope.TenantID(), "booking_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "booking could not be updated")
		return
	}

	if h.audit != nil {
		if err := h.audit.LogEvent(r.Context(), scope, audit.Event{
			EventType: audit.EventBookingStatusChange,
			Actor:     actor(r),
			Subject:   updated.ID,
			Details:   audit.Details(map[string]string{"action": action, "status": string(updated.Status)}),
		}); err != nil {
			h.logger.Warn("audit log failed", "tenant_id", scope.TenantID(), "error", err)
		}
	}
	writeJSON(w, http.StatusOK, updated)
}

// List handles GET /tenants/{tenant}/bookings?from=&to=.
func (h *BookingsHandler) List(w http.ResponseWriter, r *http.Request) {
	scope, ok := requireScope(w, r)
	if !ok {
		return
	}
	from := r.URL.Query().Get("from")
	to := r.URL.Query().Get("to")
	if to == "" {
		to = from
	}
	if _, err := schedule.ParseDate(from); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_INPUT", "from must be YYYY-MM-DD")
		return
	}
	if _, err := schedule.ParseDate(to); err != nil || to < from {
		writeError(w, http.StatusBadRequest, "INVALID_INPUT", "to must be a date on or after from")
		return
	}
	list, err := h.ledger.List(r.Context(), scope, from, to)
	if err != nil {
		h.logger.Error("list bookings failed", "tenant_id", scope.TenantID(), "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "bookings unavailable")
		return
	}
	if list == nil {
		list = []bookings.Booking{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": list})
}
