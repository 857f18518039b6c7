// Package notify forwards daemon events to NATS so other machines or tools
// can react to completed syncs.
package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"git.home.luguber.info/inful/ghsync/internal/daemon/events"
	ferrors "git.home.luguber.info/inful/ghsync/internal/foundation/errors"
	"git.home.luguber.info/inful/ghsync/internal/logfields"
)

// Publisher is the subset of *nats.Conn the notifier uses.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Notifier publishes each event as JSON on "<subject>.<event name>".
type Notifier struct {
	pub     Publisher
	subject string
	log     *slog.Logger
	conn    *nats.Conn
}

// New wraps an existing publisher.
func New(pub Publisher, subject string, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{pub: pub, subject: subject, log: logger}
}

// Connect dials url. The connection keeps retrying in the background, so an
// unreachable server does not stop the daemon from starting.
func Connect(url, subject string, logger *slog.Logger) (*Notifier, error) {
	if url == "" {
		return nil, ferrors.ConfigError("nats url is empty").Build()
	}
	if subject == "" {
		return nil, ferrors.ConfigError("nats subject is empty").Build()
	}
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := nats.Connect(url,
		nats.Name("ghsync"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", logfields.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("NATS reconnected", slog.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryNetwork, "failed to connect to NATS").
			WithContext("url", url).Build()
	}

	n := New(conn, subject, logger)
	n.conn = conn
	logger.Info("NATS notifier initialized", slog.String("url", url), slog.String("subject", subject))
	return n, nil
}

// Subject returns the subject evt is published on.
func (n *Notifier) Subject(evt events.Event) string {
	return n.subject + "." + evt.EventName()
}

// Notify publishes a single event.
func (n *Notifier) Notify(evt events.Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryInternal, "failed to marshal event").
			WithContext("event", evt.EventName()).Build()
	}
	if err := n.pub.Publish(n.Subject(evt), data); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryNetwork, "failed to publish event").
			WithContext("subject", n.Subject(evt)).Build()
	}
	return nil
}

// Run publishes events from ch until it is closed or ctx is done. Publish
// failures are logged and do not stop the loop.
func (n *Notifier) Run(ctx context.Context, ch <-chan events.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			if err := n.Notify(evt); err != nil {
				n.log.Warn("Failed to publish sync event", slog.String("event", evt.EventName()), logfields.Error(err))
				continue
			}
			n.log.Debug("Published sync event", slog.String("subject", n.Subject(evt)))
		}
	}
}

// Close flushes pending messages and closes the connection it owns.
func (n *Notifier) Close() error {
	if n.conn == nil {
		return nil
	}
	if err := n.conn.Drain(); err != nil {
		n.conn.Close()
		return ferrors.WrapError(err, ferrors.CategoryNetwork, "failed to drain NATS connection").Build()
	}
	return nil
}
