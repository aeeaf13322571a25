// Package events consumes the worker event stream from NATS and maintains
// the shared fleet state.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/marigold-hq/marigold/internal/state"
)

// Default wire subjects.
const (
	DefaultSubject     = "marigold.events.>"
	DefaultPingSubject = "marigold.control.ping"
)

// refreshWindow bounds how long RefreshWorkers collects ping replies.
const refreshWindow = 2 * time.Second

type Config struct {
	Subject     string
	PingSubject string
}

// Consumer subscribes to the worker event stream and folds each event into
// the state. It is also the worker-list refresher used by the dashboard's
// refresh parameter.
type Consumer struct {
	nc     *nats.Conn
	st     *state.State
	cfg    Config
	logger *slog.Logger
	sub    *nats.Subscription
}

func New(nc *nats.Conn, st *state.State, cfg Config, logger *slog.Logger) *Consumer {
	if cfg.Subject == "" {
		cfg.Subject = DefaultSubject
	}
	if cfg.PingSubject == "" {
		cfg.PingSubject = DefaultPingSubject
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{nc: nc, st: st, cfg: cfg, logger: logger}
}

// Start subscribes to the event subject.
func (c *Consumer) Start() error {
	sub, err := c.nc.Subscribe(c.cfg.Subject, c.handle)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", c.cfg.Subject, err)
	}
	c.sub = sub
	c.logger.Info("consuming worker events", "subject", c.cfg.Subject)
	return nil
}

// Stop drops the event subscription.
func (c *Consumer) Stop() error {
	if c.sub == nil {
		return nil
	}
	return c.sub.Unsubscribe()
}

func (c *Consumer) handle(msg *nats.Msg) {
	var ev state.Event
	if err := json.Unmarshal(msg.Data, &ev); err != nil {
		c.logger.Debug("dropping undecodable event", "subject", msg.Subject, "error", err)
		return
	}
	if ev.Type == "" || ev.Hostname == "" {
		c.logger.Debug("dropping incomplete event", "subject", msg.Subject)
		return
	}
	c.st.Apply(ev)
}

// RefreshWorkers pings the fleet over request-reply and records replies for
// workers the event stream has not described yet. Each reply is a loose
// JSON object keyed by the usual worker attribute names.
func (c *Consumer) RefreshWorkers(ctx context.Context) error {
	inbox := nats.NewInbox()
	sub, err := c.nc.SubscribeSync(inbox)
	if err != nil {
		return fmt.Errorf("subscribe reply inbox: %w", err)
	}
	defer sub.Unsubscribe()

	if err := c.nc.PublishRequest(c.cfg.PingSubject, inbox, nil); err != nil {
		return fmt.Errorf("publish worker ping: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, refreshWindow)
	defer cancel()
	for {
		msg, err := sub.NextMsgWithContext(ctx)
		if err != nil {
			if ctx.Err() != nil {
				// Window elapsed; whatever arrived has been recorded.
				return nil
			}
			return fmt.Errorf("collect ping replies: %w", err)
		}
		c.recordReply(msg.Data)
	}
}

func (c *Consumer) recordReply(data []byte) {
	var attrs map[string]any
	if err := json.Unmarshal(data, &attrs); err != nil {
		c.logger.Debug("dropping undecodable ping reply", "error", err)
		return
	}
	name, _ := attrs["hostname"].(string)
	if name == "" {
		return
	}
	// A worker that answers a ping is alive unless it says otherwise.
	if _, ok := attrs["alive"]; !ok {
		attrs["alive"] = true
	}
	c.st.UpsertLoose(name, attrs)
}
