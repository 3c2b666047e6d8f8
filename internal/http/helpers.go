// Package http holds the REST handlers of the gateway: the inbound webhook and the
// admin API for rules, variables, settings, overrides and statistics.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/nextlevelbuilder/autoreply/internal/bus"
	"github.com/nextlevelbuilder/autoreply/internal/store"
	"github.com/nextlevelbuilder/autoreply/pkg/protocol"
)

// maxBodyBytes caps admin and webhook request bodies.
const maxBodyBytes = 1 << 20

// Reloader rebuilds the engine's in-memory snapshot after a store mutation.
type Reloader interface {
	Reload(ctx context.Context) error
}

// adminBase carries what every admin handler needs.
type adminBase struct {
	token    string
	reloader Reloader
	msgBus   bus.EventPublisher // for cache invalidation events (nil = no events)
}

func (h *adminBase) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.token != "" {
			if extractBearerToken(r) != h.token {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
				return
			}
		}
		next(w, r)
	}
}

// applied reloads the engine and emits a cache invalidation event. It writes an
// error response and returns false when the reload fails.
func (h *adminBase) applied(w http.ResponseWriter, r *http.Request, kind, key string) bool {
	if h.reloader != nil {
		if err := h.reloader.Reload(r.Context()); err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "reload: " + err.Error()})
			return false
		}
	}
	h.emitCacheInvalidate(kind, key)
	return true
}

// emitCacheInvalidate broadcasts a cache invalidation event if msgBus is set.
func (h *adminBase) emitCacheInvalidate(kind, key string) {
	if h.msgBus == nil {
		return
	}
	h.msgBus.Broadcast(bus.Event{
		Name:    protocol.EventCacheInvalidate,
		Payload: bus.CacheInvalidatePayload{Kind: kind, Key: key},
	})
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return false
	}
	return true
}

// writeStoreError maps store errors to HTTP statuses.
func writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
