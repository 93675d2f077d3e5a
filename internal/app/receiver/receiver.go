// Package receiver feeds delivered stream messages into the action pipeline
// and settles them on the stream according to the outcome.
package receiver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bazaar-mp/project/internal/actionerr"
	"github.com/bazaar-mp/project/internal/app/actionsvc"
	"github.com/bazaar-mp/project/internal/contracts"
	"github.com/bazaar-mp/project/internal/messaging"
	"github.com/bazaar-mp/project/internal/platform/logging"
	"github.com/bazaar-mp/project/internal/sharding"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Disposition is how a delivered message is settled on the stream.
type Disposition int

const (
	Ack Disposition = iota
	// NakWithDelay redelivers later, for actions whose predecessor has not
	// arrived yet.
	NakWithDelay
	Nak
	Term
)

func (d Disposition) String() string {
	switch d {
	case Ack:
		return "ack"
	case NakWithDelay:
		return "nak-delay"
	case Nak:
		return "nak"
	case Term:
		return "term"
	default:
		return fmt.Sprintf("disposition(%d)", int(d))
	}
}

// Classify maps a pipeline outcome onto a disposition.
func Classify(err error) Disposition {
	switch {
	case err == nil:
		return Ack
	case errors.Is(err, actionerr.ErrPreconditionNotMet):
		return NakWithDelay
	case actionerr.Retryable(err):
		return Nak
	default:
		return Term
	}
}

type Receiver interface {
	Receive(ctx context.Context, tm contracts.TransportMessage) (actionsvc.ReceiveResult, error)
}

// Acker is the settling surface of *nats.Msg.
type Acker interface {
	Ack(opts ...nats.AckOpt) error
	Nak(opts ...nats.AckOpt) error
	NakWithDelay(delay time.Duration, opts ...nats.AckOpt) error
	Term(opts ...nats.AckOpt) error
}

// Subscriber is satisfied by nats.JetStreamContext.
type Subscriber interface {
	QueueSubscribe(subj, queue string, cb nats.MsgHandler, opts ...nats.SubOpt) (*nats.Subscription, error)
}

// Handler settles delivered messages. MaxDeliver bounds how often one
// message is handed to the pipeline: a retry disposition on the last allowed
// delivery is turned into Term, and the consumer is created with the same cap.
type Handler struct {
	Service    Receiver
	Logger     *zap.Logger
	Timeout    time.Duration
	RetryDelay time.Duration
	MaxDeliver int
	Now        func() time.Time
}

func NewHandler(service Receiver, logger *zap.Logger) *Handler {
	return &Handler{
		Service:    service,
		Logger:     logging.OrNop(logger),
		Timeout:    10 * time.Second,
		RetryDelay: 30 * time.Second,
		MaxDeliver: 20,
		Now:        func() time.Time { return time.Now().UTC() },
	}
}

func (h *Handler) Handle(ctx context.Context, tm contracts.TransportMessage) Disposition {
	if h.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.Timeout)
		defer cancel()
	}
	res, err := h.Service.Receive(ctx, tm)
	d := Classify(err)
	if err != nil {
		h.Logger.Info("message not processed",
			zap.String("msgid", tm.MsgID),
			zap.String("type", string(res.Type)),
			zap.String("status", string(res.Status)),
			zap.Stringer("disposition", d),
			zap.Error(err))
	}
	return d
}

// HandleMsg decodes and handles one stream message, then settles it.
func (h *Handler) HandleMsg(ctx context.Context, msg *nats.Msg) {
	tm, err := messaging.DecodeMsg(msg, h.Now())
	if err != nil {
		h.Logger.Warn("discarding message without transport headers", zap.String("subject", msg.Subject), zap.Error(err))
		h.settle(msg, Term)
		return
	}
	var delivered uint64
	if meta, err := msg.Metadata(); err == nil {
		delivered = meta.NumDelivered
	}
	h.settle(msg, h.HandleDelivery(ctx, tm, delivered))
}

// HandleDelivery handles the delivered-th delivery of tm. A message that
// would be retried past MaxDeliver is terminated; zero means the count is
// unknown.
func (h *Handler) HandleDelivery(ctx context.Context, tm contracts.TransportMessage, delivered uint64) Disposition {
	d := h.Handle(ctx, tm)
	if d != Nak && d != NakWithDelay {
		return d
	}
	if h.MaxDeliver <= 0 || delivered < uint64(h.MaxDeliver) {
		return d
	}
	h.Logger.Warn("giving up on message",
		zap.String("msgid", tm.MsgID),
		zap.Uint64("delivered", delivered),
		zap.Stringer("disposition", d))
	return Term
}

func (h *Handler) settle(a Acker, d Disposition) {
	var err error
	switch d {
	case Ack:
		err = a.Ack()
	case NakWithDelay:
		err = a.NakWithDelay(h.RetryDelay)
	case Nak:
		err = a.Nak()
	default:
		err = a.Term()
	}
	if err != nil {
		h.Logger.Warn("settle message", zap.Stringer("disposition", d), zap.Error(err))
	}
}

// Subscribe starts one queue subscription per receive address. The durable
// name is derived from queue and address so that each address keeps its own
// consumer.
func (h *Handler) Subscribe(ctx context.Context, js Subscriber, queue string, addresses []string) ([]*nats.Subscription, error) {
	subs := make([]*nats.Subscription, 0, len(addresses))
	for _, addr := range addresses {
		durable := queue + "-" + addr
		sub, err := js.QueueSubscribe(sharding.MessageSubject(addr), durable, func(msg *nats.Msg) {
			h.HandleMsg(ctx, msg)
		}, h.subOpts(durable)...)
		if err != nil {
			for _, s := range subs {
				_ = s.Unsubscribe()
			}
			return nil, fmt.Errorf("subscribe %s: %w", addr, err)
		}
		h.Logger.Info("listening", zap.String("address", addr), zap.String("subject", sharding.MessageSubject(addr)))
		subs = append(subs, sub)
	}
	return subs, nil
}

func (h *Handler) subOpts(durable string) []nats.SubOpt {
	opts := []nats.SubOpt{nats.ManualAck(), nats.Durable(durable), nats.DeliverAll()}
	if h.MaxDeliver > 0 {
		opts = append(opts, nats.MaxDeliver(h.MaxDeliver))
	}
	return opts
}
