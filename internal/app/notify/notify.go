// Package notify delivers fire-and-forget notifications about materialized
// actions to local subscribers.
package notify

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/bazaar-mp/project/internal/platform/logging"
	"github.com/bazaar-mp/project/internal/platform/metrics"
	"github.com/bazaar-mp/project/internal/platform/natsutil"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const SubjectPrefix = "mp.notify."

// Events emitted after an action is processed.
const (
	EventListing  = "listing.received"
	EventMarket   = "market.received"
	EventImage    = "image.received"
	EventBid      = "bid.updated"
	EventProposal = "proposal.received"
	EventVote     = "vote.received"
	EventComment  = "comment.received"
)

type Notification struct {
	ID      string `json:"id"`
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}

func New(event string, payload any) Notification {
	return Notification{ID: uuid.NewString(), Event: event, Payload: payload}
}

func Subject(event string) string {
	return SubjectPrefix + strings.TrimSpace(event)
}

// Deliverer is what the action pipeline hands notifications to.
type Deliverer interface {
	Deliver(ctx context.Context, n Notification)
}

type Publisher struct {
	Conn   natsutil.Publisher
	Logger *zap.Logger
}

func NewPublisher(conn natsutil.Publisher, logger *zap.Logger) *Publisher {
	return &Publisher{Conn: conn, Logger: logging.OrNop(logger)}
}

// Deliver never fails the caller; a dropped notification is logged and
// counted.
func (p *Publisher) Deliver(_ context.Context, n Notification) {
	payload, err := json.Marshal(n)
	if err == nil {
		err = p.Conn.Publish(Subject(n.Event), payload)
	}
	if err != nil {
		metrics.RecordNotificationDropped()
		p.Logger.Warn("notification dropped", zap.String("event", n.Event), zap.String("id", n.ID), zap.Error(err))
	}
}

// Discard drops every notification.
type Discard struct{}

func (Discard) Deliver(context.Context, Notification) {}
