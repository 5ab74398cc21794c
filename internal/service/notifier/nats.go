package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"landslidewatch/internal/logger"

	"github.com/nats-io/nats.go"
)

// publisher is the part of *nats.Conn used to publish alerts.
type publisher interface {
	PublishMsg(m *nats.Msg) error
	FlushWithContext(ctx context.Context) error
}

// AlertMessage is the payload published on the alert subject.
type AlertMessage struct {
	Message string    `json:"message"`
	SentAt  time.Time `json:"sent_at"`
}

// NATS publishes alerts on a subject and waits for the server to acknowledge
// the flush, so a dead connection is reported as a failed send.
type NATS struct {
	subject string
	conn    publisher
	now     func() time.Time
}

func NewNATS(conn *nats.Conn, subject string) *NATS {
	return &NATS{subject: subject, conn: conn, now: time.Now}
}

func (n *NATS) Send(ctx context.Context, message string) error {
	if n.subject == "" {
		return errors.New("nats subject is required")
	}

	payload, err := json.Marshal(AlertMessage{Message: message, SentAt: n.now().UTC()})
	if err != nil {
		return fmt.Errorf("failed to encode alert: %w", err)
	}

	header := nats.Header{}
	if deadline, ok := ctx.Deadline(); ok {
		header.Set("Deadline", deadline.UTC().Format(time.RFC3339Nano))
	}
	if err := n.conn.PublishMsg(&nats.Msg{Subject: n.subject, Data: payload, Header: header}); err != nil {
		return fmt.Errorf("nats publish failed: %w", err)
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
	}
	if err := n.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("nats flush failed: %w", err)
	}
	return nil
}

// Connect dials url, retrying with backoff until it succeeds or ctx is done.
// Once connected the client reconnects on its own.
func Connect(ctx context.Context, url string, log *logger.Logger) (*nats.Conn, error) {
	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		nc, err := nats.Connect(
			url,
			nats.Name("landslidewatch"),
			nats.MaxReconnects(-1),
			nats.ReconnectWait(2*time.Second),
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				if err != nil {
					log.Warning("NATS disconnected: %v", err)
					return
				}
				log.Warning("NATS disconnected")
			}),
			nats.ReconnectHandler(func(c *nats.Conn) {
				log.Info("NATS reconnected to %s", c.ConnectedUrl())
			}),
			nats.ClosedHandler(func(_ *nats.Conn) {
				log.Info("NATS connection closed")
			}),
		)
		if err == nil {
			log.Info("Connected to NATS at %s", nc.ConnectedUrl())
			return nc, nil
		}

		log.Error("Connect to NATS failed: %v (retry in %s)", err, backoff)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}

		if backoff < maxBackoff {
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}
	}
}
