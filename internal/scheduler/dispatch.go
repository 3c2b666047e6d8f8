package scheduler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/nextlevelbuilder/autoreply/internal/bus"
	"github.com/nextlevelbuilder/autoreply/internal/config"
)

// Deliverer sends one reply to the chat provider.
type Deliverer interface {
	Deliver(ctx context.Context, msg bus.OutboundMessage) error
}

// DelivererFunc adapts a function to Deliverer.
type DelivererFunc func(ctx context.Context, msg bus.OutboundMessage) error

func (f DelivererFunc) Deliver(ctx context.Context, msg bus.OutboundMessage) error { return f(ctx, msg) }

// LogDeliverer only logs replies. Used when no callback URL is configured and the
// provider reads replies from the dashboard feed instead.
var LogDeliverer = DelivererFunc(func(_ context.Context, msg bus.OutboundMessage) error {
	slog.Info("delivery.outbound", "session_id", msg.SessionID, "rule_id", msg.RuleID)
	return nil
})

// WithRateLimit paces calls to next through lim.
func WithRateLimit(lim *rate.Limiter, next Deliverer) Deliverer {
	return DelivererFunc(func(ctx context.Context, msg bus.OutboundMessage) error {
		if err := lim.Wait(ctx); err != nil {
			return err
		}
		return next.Deliver(ctx, msg)
	})
}

// WithRetry retries next up to attempts times, doubling delay between tries.
func WithRetry(attempts int, delay time.Duration, next Deliverer) Deliverer {
	return DelivererFunc(func(ctx context.Context, msg bus.OutboundMessage) error {
		var err error
		d := delay
		for i := 0; i < attempts; i++ {
			if err = next.Deliver(ctx, msg); err == nil {
				return nil
			}
			if i == attempts-1 {
				break
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d):
			}
			d *= 2
		}
		return err
	})
}

// CallbackDeliverer POSTs replies as JSON to the provider's callback URL.
type CallbackDeliverer struct {
	url    string
	token  string
	client *http.Client
}

// NewCallbackDeliverer creates a deliverer for url with an optional bearer token.
func NewCallbackDeliverer(url, token string, timeout time.Duration) *CallbackDeliverer {
	return &CallbackDeliverer{url: url, token: token, client: &http.Client{Timeout: timeout}}
}

func (c *CallbackDeliverer) Deliver(ctx context.Context, msg bus.OutboundMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode >= 300 {
		return fmt.Errorf("callback returned %s", resp.Status)
	}
	return nil
}

// NewDeliverer builds the delivery chain from config: callback POSTs paced by
// rate_per_second and retried, or LogDeliverer without a callback URL.
func NewDeliverer(cfg config.DeliveryConfig) Deliverer {
	if cfg.CallbackURL == "" {
		return LogDeliverer
	}
	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	var d Deliverer = WithRetry(3, 500*time.Millisecond,
		NewCallbackDeliverer(cfg.CallbackURL, cfg.CallbackToken, timeout))
	if cfg.RatePerSecond > 0 {
		d = WithRateLimit(rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1), d)
	}
	return d
}

// Dispatcher drains the bus outbound queue into a Deliverer.
type Dispatcher struct {
	out     bus.OutboundRouter
	deliver Deliverer
}

func NewDispatcher(out bus.OutboundRouter, d Deliverer) *Dispatcher {
	return &Dispatcher{out: out, deliver: d}
}

// Run delivers replies one at a time, in queue order, until ctx is done.
// Failed deliveries are logged and dropped.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		msg, ok := d.out.SubscribeOutbound(ctx)
		if !ok {
			return nil
		}
		if err := d.deliver.Deliver(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.Warn("delivery.failed", "session_id", msg.SessionID, "rule_id", msg.RuleID, "error", err)
		}
	}
}
