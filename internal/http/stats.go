package http

import (
	"net/http"
	"strconv"

	"github.com/nextlevelbuilder/autoreply/internal/store"
)

// StatsSource exposes the engine's live counters and history.
type StatsSource interface {
	GlobalStats() store.GlobalStats
	History() []store.HistoryEntry
}

// StatsHandler serves read-only usage statistics and message history.
type StatsHandler struct {
	adminBase
	stats  store.StatsStore
	source StatsSource
}

func NewStatsHandler(ss store.StatsStore, source StatsSource, token string) *StatsHandler {
	return &StatsHandler{adminBase: adminBase{token: token}, stats: ss, source: source}
}

func (h *StatsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/stats", h.auth(h.handleGlobal))
	mux.HandleFunc("GET /v1/stats/sessions", h.auth(h.handleSessions))
	mux.HandleFunc("GET /v1/stats/sessions/{id}", h.auth(h.handleSession))
	mux.HandleFunc("GET /v1/history", h.auth(h.handleHistory))
}

func queryInt(r *http.Request, key string, def int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
	}
	return def
}

func (h *StatsHandler) handleGlobal(w http.ResponseWriter, r *http.Request) {
	g := h.source.GlobalStats()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"total_users":     len(g.TotalUsers),
		"today_users":     len(g.TodayUsers),
		"total_msgs":      g.TotalMsgs,
		"today_msgs":      g.TodayMsgs,
		"last_reset_date": g.LastResetDate,
	})
}

func (h *StatsHandler) handleSessions(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	if limit > 500 {
		limit = 500
	}
	list, err := h.stats.ListMessageStats(r.Context(), limit, queryInt(r, "offset", 0))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if list == nil {
		list = []store.MessageStats{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": list})
}

func (h *StatsHandler) handleSession(w http.ResponseWriter, r *http.Request) {
	st, err := h.stats.GetMessageStats(r.Context(), r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// handleHistory returns the history newest first, optionally filtered by rule_id
// and session_id.
func (h *StatsHandler) handleHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ruleID, sessionID := q.Get("rule_id"), q.Get("session_id")
	limit := queryInt(r, "limit", 0)

	out := []store.HistoryEntry{}
	for _, e := range h.source.History() {
		if ruleID != "" && e.RuleID != ruleID {
			continue
		}
		if sessionID != "" && e.SessionID != sessionID {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"history": out})
}
