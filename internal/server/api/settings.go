package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/ayusman/gaitpose/internal/pose"
)

// SettingsService reads and changes the detection settings.
type SettingsService interface {
	Settings() pose.Config
	UpdateSettings(cfg pose.Config) error
	StepThreshold(name string, raise bool) (pose.Config, error)
}

// SettingsHandler handles /api/settings and the threshold step endpoints
// /api/settings/{name}/raise and /api/settings/{name}/lower.
type SettingsHandler struct {
	service SettingsService
}

// NewSettingsHandler creates a new SettingsHandler.
func NewSettingsHandler(s SettingsService) *SettingsHandler {
	return &SettingsHandler{service: s}
}

// ServeHTTP implements the http.Handler interface.
func (h *SettingsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/settings")
	path = strings.Trim(path, "/")

	if path == "" {
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, http.StatusOK, h.service.Settings())
		case http.MethodPut:
			h.update(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
		return
	}

	name, action, ok := strings.Cut(path, "/")
	if !ok || (action != "raise" && action != "lower") {
		writeError(w, http.StatusNotFound, "Not found")
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	cfg, err := h.service.StepThreshold(name, action == "raise")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// update handles PUT /api/settings. Fields missing from the body keep their
// current values.
func (h *SettingsHandler) update(w http.ResponseWriter, r *http.Request) {
	cfg := h.service.Settings()
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	if err := h.service.UpdateSettings(cfg); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, h.service.Settings())
}
