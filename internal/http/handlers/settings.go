package handlers

import (
	"net/http"

	"github.com/wolfman30/medspa-capacity/internal/settings"
	"github.com/wolfman30/medspa-capacity/pkg/logging"
)

// SettingsHandler reads and writes a tenant's capacity settings.
type SettingsHandler struct {
	store  settings.Store
	logger *logging.Logger
}

func NewSettingsHandler(store settings.Store, logger *logging.Logger) *SettingsHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &SettingsHandler{store: store, logger: logger}
}

func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	scope, ok := requireScope(w, r)
	if !ok {
		return
	}
	s, err := h.store.Get(r.Context(), scope)
	if err != nil {
		h.logger.Error("get settings failed", "tenant_id", scope.TenantID(), "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "settings unavailable")
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *SettingsHandler) Put(w http.ResponseWriter, r *http.Request) {
	scope, ok := requireScope(w, r)
	if !ok {
		return
	}
	var body settings.Settings
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_INPUT", "invalid JSON body")
		return
	}
	if err := body.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_INPUT", err.Error())
		return
	}
	if err := h.store.Set(r.Context(), scope, body); err != nil {
		h.logger.Error("save settings failed", "tenant_id", scope.TenantID(), "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "settings could not be saved")
		return
	}
	body.TenantID = scope.TenantID()
	writeJSON(w, http.StatusOK, body)
}
