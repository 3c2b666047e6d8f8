package http

import (
	"net/http"
	"strings"

	"github.com/nextlevelbuilder/autoreply/internal/bus"
	"github.com/nextlevelbuilder/autoreply/internal/store"
)

// VariablesHandler manages static template variables.
type VariablesHandler struct {
	adminBase
	vars store.VariableStore
}

func NewVariablesHandler(vs store.VariableStore, token string, reloader Reloader, msgBus bus.EventPublisher) *VariablesHandler {
	return &VariablesHandler{adminBase: adminBase{token: token, reloader: reloader, msgBus: msgBus}, vars: vs}
}

func (h *VariablesHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/variables", h.auth(h.handleList))
	mux.HandleFunc("PUT /v1/variables/{name}", h.auth(h.handleSet))
	mux.HandleFunc("DELETE /v1/variables/{name}", h.auth(h.handleDelete))
}

func (h *VariablesHandler) handleList(w http.ResponseWriter, r *http.Request) {
	list, err := h.vars.ListVariables(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if list == nil {
		list = []store.Variable{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"variables": list})
}

// validVariableName rejects names that could never be referenced as %name%.
func validVariableName(name string) bool {
	return name != "" && !strings.ContainsAny(name, "% \t\r\n")
}

func (h *VariablesHandler) handleSet(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if !validVariableName(name) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "variable name must not be empty or contain '%' or whitespace"})
		return
	}
	var body struct {
		Value string `json:"value"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	v := store.Variable{Name: name, Value: body.Value}
	if err := h.vars.SetVariable(r.Context(), v); err != nil {
		writeStoreError(w, err)
		return
	}
	if !h.applied(w, r, bus.CacheKindVariables, name) {
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *VariablesHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := h.vars.DeleteVariable(r.Context(), name); err != nil {
		writeStoreError(w, err)
		return
	}
	if !h.applied(w, r, bus.CacheKindVariables, name) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"ok": "true"})
}
