package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/nextlevelbuilder/autoreply/internal/bus"
	"github.com/nextlevelbuilder/autoreply/internal/rules"
	"github.com/nextlevelbuilder/autoreply/internal/store"
)

// Automation toggles the automation tier at runtime.
type Automation interface {
	AutomationEnabled() bool
	SetAutomationEnabled(ctx context.Context, enabled bool) error
}

// SettingsHandler manages the settings bundle, the override lists and the
// automation switch.
type SettingsHandler struct {
	adminBase
	settings   store.SettingsStore
	overrides  store.OverrideStore
	automation Automation
}

func NewSettingsHandler(stores *store.Stores, automation Automation, token string, reloader Reloader, msgBus bus.EventPublisher) *SettingsHandler {
	return &SettingsHandler{
		adminBase:  adminBase{token: token, reloader: reloader, msgBus: msgBus},
		settings:   stores.Settings,
		overrides:  stores.Overrides,
		automation: automation,
	}
}

func (h *SettingsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/settings", h.auth(h.handleGetSettings))
	mux.HandleFunc("PUT /v1/settings", h.auth(h.handlePutSettings))
	mux.HandleFunc("GET /v1/overrides/ignored", h.auth(h.handleGetIgnored))
	mux.HandleFunc("PUT /v1/overrides/ignored", h.auth(h.handlePutIgnored))
	mux.HandleFunc("GET /v1/overrides/specific", h.auth(h.handleGetSpecific))
	mux.HandleFunc("PUT /v1/overrides/specific", h.auth(h.handlePutSpecific))
	mux.HandleFunc("GET /v1/automation", h.auth(h.handleGetAutomation))
	mux.HandleFunc("PUT /v1/automation", h.auth(h.handlePutAutomation))
}

func (h *SettingsHandler) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	s, err := h.settings.GetSettings(r.Context())
	if errors.Is(err, store.ErrNotFound) {
		def := store.DefaultSettings()
		s, err = &def, nil
	}
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if h.automation != nil {
		s.AutomationEnabled = h.automation.AutomationEnabled()
	}
	writeJSON(w, http.StatusOK, s)
}

func validTrigger(t store.TriggerSettings) bool {
	switch t.MatchType {
	case "", rules.TypeExact, rules.TypePattern, rules.TypeExpert:
		return true
	}
	return false
}

func (h *SettingsHandler) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	s := store.DefaultSettings()
	if !decodeJSON(w, r, &s) {
		return
	}
	for _, t := range []store.TriggerSettings{s.MasterStop, s.Hide, s.Unhide} {
		if !validTrigger(t) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "trigger match_type must be EXACT, PATTERN or EXPERT"})
			return
		}
	}
	if s.PreventRepeating.CooldownSeconds < 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "prevent_repeating.cooldown_seconds must be >= 0"})
		return
	}
	// The automation switch is owned by PUT /v1/automation and the master stop.
	enabled, err := h.currentAutomation(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	s.AutomationEnabled = enabled
	if err := h.settings.SaveSettings(r.Context(), &s); err != nil {
		writeStoreError(w, err)
		return
	}
	if !h.applied(w, r, bus.CacheKindSettings, "") {
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *SettingsHandler) currentAutomation(ctx context.Context) (bool, error) {
	if h.automation != nil {
		return h.automation.AutomationEnabled(), nil
	}
	saved, err := h.settings.GetSettings(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return store.DefaultSettings().AutomationEnabled, nil
	}
	if err != nil {
		return false, err
	}
	return saved.AutomationEnabled, nil
}

func (h *SettingsHandler) handleGetIgnored(w http.ResponseWriter, r *http.Request) {
	list, err := h.overrides.ListIgnored(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if list == nil {
		list = []store.IgnoredUser{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ignored": list})
}

func (h *SettingsHandler) handlePutIgnored(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Ignored []store.IgnoredUser `json:"ignored"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	for _, u := range body.Ignored {
		if u.Name == "" || u.Context == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "ignored entries need name and context"})
			return
		}
	}
	if err := h.overrides.SaveIgnored(r.Context(), body.Ignored); err != nil {
		writeStoreError(w, err)
		return
	}
	if !h.applied(w, r, bus.CacheKindOverrides, "ignored") {
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ignored": body.Ignored})
}

func (h *SettingsHandler) handleGetSpecific(w http.ResponseWriter, r *http.Request) {
	list, err := h.overrides.ListSpecific(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if list == nil {
		list = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"specific": list})
}

func (h *SettingsHandler) handlePutSpecific(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Specific []string `json:"specific"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	if err := h.overrides.SaveSpecific(r.Context(), body.Specific); err != nil {
		writeStoreError(w, err)
		return
	}
	if !h.applied(w, r, bus.CacheKindOverrides, "specific") {
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"specific": body.Specific})
}

func (h *SettingsHandler) handleGetAutomation(w http.ResponseWriter, r *http.Request) {
	if h.automation == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "engine not available"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"enabled": h.automation.AutomationEnabled()})
}

func (h *SettingsHandler) handlePutAutomation(w http.ResponseWriter, r *http.Request) {
	if h.automation == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "engine not available"})
		return
	}
	var body struct {
		Enabled *bool `json:"enabled"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	if body.Enabled == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "enabled is required"})
		return
	}
	if err := h.automation.SetAutomationEnabled(r.Context(), *body.Enabled); err != nil {
		writeStoreError(w, err)
		return
	}
	h.emitCacheInvalidate(bus.CacheKindSettings, "automation")
	writeJSON(w, http.StatusOK, map[string]bool{"enabled": *body.Enabled})
}
