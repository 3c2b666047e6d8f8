package http

import (
	"net/http"
	"strconv"

	"github.com/nextlevelbuilder/autoreply/internal/bus"
	"github.com/nextlevelbuilder/autoreply/internal/rules"
	"github.com/nextlevelbuilder/autoreply/internal/store"
)

// RulesHandler handles CRUD for the three rule flavors.
type RulesHandler struct {
	adminBase
	rules store.RuleStore
}

// NewRulesHandler creates a handler for rule management endpoints.
func NewRulesHandler(rs store.RuleStore, token string, reloader Reloader, msgBus bus.EventPublisher) *RulesHandler {
	return &RulesHandler{adminBase: adminBase{token: token, reloader: reloader, msgBus: msgBus}, rules: rs}
}

// RegisterRoutes registers all rule routes on the given mux.
func (h *RulesHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/rules/{flavor}", h.auth(h.handleList))
	mux.HandleFunc("POST /v1/rules/{flavor}", h.auth(h.handleCreate))
	mux.HandleFunc("GET /v1/rules/{flavor}/{number}", h.auth(h.handleGet))
	mux.HandleFunc("PUT /v1/rules/{flavor}/{number}", h.auth(h.handleUpdate))
	mux.HandleFunc("DELETE /v1/rules/{flavor}/{number}", h.auth(h.handleDelete))
}

func pathFlavor(w http.ResponseWriter, r *http.Request) (rules.Flavor, bool) {
	f, err := rules.ParseFlavor(r.PathValue("flavor"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return "", false
	}
	return f, true
}

func pathNumber(w http.ResponseWriter, r *http.Request) (int, bool) {
	n, err := strconv.Atoi(r.PathValue("number"))
	if err != nil || n <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "rule number must be a positive integer"})
		return 0, false
	}
	return n, true
}

func (h *RulesHandler) handleList(w http.ResponseWriter, r *http.Request) {
	flavor, ok := pathFlavor(w, r)
	if !ok {
		return
	}
	list, err := h.rules.List(r.Context(), flavor)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if list == nil {
		list = []rules.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"rules": list})
}

func (h *RulesHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	flavor, ok := pathFlavor(w, r)
	if !ok {
		return
	}
	number, ok := pathNumber(w, r)
	if !ok {
		return
	}
	rec, err := h.rules.Get(r.Context(), flavor, number)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleCreate inserts at body.number (shifting later rules) or appends when it is 0.
func (h *RulesHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	flavor, ok := pathFlavor(w, r)
	if !ok {
		return
	}
	var rec rules.Record
	if !decodeJSON(w, r, &rec) {
		return
	}
	rec.Flavor = flavor
	if err := rec.Normalize(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := h.rules.Create(r.Context(), &rec); err != nil {
		writeStoreError(w, err)
		return
	}
	if !h.applied(w, r, bus.CacheKindRules, string(flavor)) {
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (h *RulesHandler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	flavor, ok := pathFlavor(w, r)
	if !ok {
		return
	}
	number, ok := pathNumber(w, r)
	if !ok {
		return
	}
	var rec rules.Record
	if !decodeJSON(w, r, &rec) {
		return
	}
	rec.Flavor = flavor
	rec.Number = number
	if err := rec.Normalize(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := h.rules.Update(r.Context(), &rec); err != nil {
		writeStoreError(w, err)
		return
	}
	if !h.applied(w, r, bus.CacheKindRules, string(flavor)) {
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *RulesHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	flavor, ok := pathFlavor(w, r)
	if !ok {
		return
	}
	number, ok := pathNumber(w, r)
	if !ok {
		return
	}
	if err := h.rules.Delete(r.Context(), flavor, number); err != nil {
		writeStoreError(w, err)
		return
	}
	if !h.applied(w, r, bus.CacheKindRules, string(flavor)) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"ok": "true"})
}
