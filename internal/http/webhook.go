package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"unicode/utf8"

	"github.com/nextlevelbuilder/autoreply/internal/bus"
	"github.com/nextlevelbuilder/autoreply/internal/engine"
)

// Processor runs the decision pipeline.
type Processor interface {
	Process(ctx context.Context, in engine.Inbound) (*engine.Decision, error)
}

// WebhookHandler receives inbound chat messages from the upstream provider and
// answers with the reply to send, if any.
type WebhookHandler struct {
	engine      Processor
	token       string
	maxChars    int
	rateLimiter func(key string) bool
}

// webhookResponse carries reply as a string for one reply, an array for several
// and null for none.
type webhookResponse struct {
	Reply  interface{} `json:"reply"`
	RuleID *string     `json:"rule_id"`
}

func NewWebhookHandler(p Processor, token string, maxChars int) *WebhookHandler {
	return &WebhookHandler{engine: p, token: token, maxChars: maxChars}
}

// SetRateLimiter installs a per-session admission check.
func (h *WebhookHandler) SetRateLimiter(fn func(key string) bool) { h.rateLimiter = fn }

func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	if h.token != "" && extractBearerToken(r) != h.token {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	var in bus.InboundMessage
	if !decodeJSON(w, r, &in) {
		return
	}
	if in.SessionID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "session_id is required"})
		return
	}
	if h.maxChars > 0 && utf8.RuneCountInString(in.Message) > h.maxChars {
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "message too long"})
		return
	}
	if h.rateLimiter != nil && !h.rateLimiter(in.SessionID) {
		slog.Warn("security.webhook_rate_limited", "session_id", in.SessionID)
		writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded"})
		return
	}

	d, err := h.engine.Process(r.Context(), engine.Inbound{
		SessionID: in.SessionID,
		Message:   in.Message,
		Sender:    in.Sender,
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			slog.Debug("webhook.cancelled", "session_id", in.SessionID)
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, toWebhookResponse(d))
}

func toWebhookResponse(d *engine.Decision) webhookResponse {
	if d == nil {
		return webhookResponse{}
	}
	resp := webhookResponse{RuleID: &d.RuleID}
	switch len(d.Replies) {
	case 0:
	case 1:
		resp.Reply = d.Replies[0]
	default:
		resp.Reply = d.Replies
	}
	return resp
}
