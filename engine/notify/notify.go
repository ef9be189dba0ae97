// Package notify announces committed resource changes on NATS.
package notify

import (
	"context"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/phisdata/phis-dal/engine/domain"
	"github.com/phisdata/phis-dal/pkg/natsutil"
)

// Op names the kind of change.
type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
)

// Change is the message body published for one resource.
type Change struct {
	URI     domain.ResourceURI `json:"uri"`
	Type    domain.ResourceURI `json:"rdfType"`
	Graph   string             `json:"graph"`
	Op      Op                 `json:"op"`
	Triples int                `json:"triples"`
}

// Publisher sends Change messages. A Publisher with a nil connection drops
// every message.
type Publisher struct {
	conn    natsutil.MsgPublisher
	subject string
	log     *slog.Logger
}

// NewPublisher creates a new Publisher sending on subject.
func NewPublisher(conn natsutil.MsgPublisher, subject string, log *slog.Logger) *Publisher {
	if log == nil {
		log = slog.Default()
	}
	return &Publisher{conn: conn, subject: subject, log: log}
}

// Enabled reports whether messages are sent.
func (p *Publisher) Enabled() bool { return p != nil && p.conn != nil }

// Publish announces changes that are already committed. Failures are logged
// and never reach the caller since the write has succeeded.
func (p *Publisher) Publish(ctx context.Context, changes ...Change) {
	if !p.Enabled() {
		return
	}
	for _, c := range changes {
		if err := natsutil.Publish(ctx, p.conn, p.subject, c); err != nil {
			p.log.Warn("change notification failed", "uri", c.URI, "op", c.Op, "err", err)
		}
	}
}

// Subscribe delivers every Change published on subject to handle, with the
// publisher's trace context restored.
func Subscribe(nc *nats.Conn, subject string, handle func(context.Context, Change)) (*nats.Subscription, error) {
	return natsutil.Subscribe(nc, subject, handle)
}
