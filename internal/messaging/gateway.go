package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bazaar-mp/project/internal/contracts"
	"github.com/bazaar-mp/project/internal/sharding"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nuid"
	"go.uber.org/zap"
)

// Transport headers carried on every market message.
const (
	HeaderFrom       = "Mp-From"
	HeaderTo         = "Mp-To"
	HeaderPaid       = "Mp-Paid"
	HeaderDays       = "Mp-Days-Retention"
	HeaderSent       = "Mp-Sent"
	HeaderExpiration = "Mp-Expiration"
)

var (
	ErrInvalidSend  = errors.New("invalid send request")
	ErrMissingMsgID = errors.New("message without id")
)

type SendRequest struct {
	Wallet        string
	From          string
	To            string
	Payload       []byte
	Paid          bool
	DaysRetention int
}

type SendResult struct {
	MsgID string `json:"msgid"`
	Fee   int64  `json:"fee"`
}

// Gateway is the store-and-forward transport as the action pipeline uses it.
type Gateway interface {
	Send(ctx context.Context, req SendRequest) (SendResult, error)
	EstimateFee(ctx context.Context, req SendRequest) (int64, error)
	FetchByMsgID(ctx context.Context, msgID string) (contracts.TransportMessage, bool, error)
}

// MsgPublisher is satisfied by nats.JetStreamContext.
type MsgPublisher interface {
	PublishMsg(m *nats.Msg, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// MessageLog is satisfied by nats.KeyValue.
type MessageLog interface {
	Put(key string, value []byte) (uint64, error)
	Get(key string) (nats.KeyValueEntry, error)
}

type JetStreamGateway struct {
	JS          MsgPublisher
	Log         MessageLog
	FeePerKBDay int64
	Logger      *zap.Logger
	Now         func() time.Time
	NewID       func() string
}

func NewJetStreamGateway(js MsgPublisher, log MessageLog, feePerKBDay int64, logger *zap.Logger) *JetStreamGateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JetStreamGateway{
		JS:          js,
		Log:         log,
		FeePerKBDay: feePerKBDay,
		Logger:      logger,
		Now:         func() time.Time { return time.Now().UTC() },
		NewID:       nuid.Next,
	}
}

// Fee is the transport charge for a message: free messages cost nothing,
// paid ones are billed per started kilobyte per day of retention.
func Fee(size int, paid bool, days int, perKBDay int64) int64 {
	if !paid || size <= 0 || days <= 0 {
		return 0
	}
	kb := int64((size + 1023) / 1024)
	return kb * perKBDay * int64(days)
}

func (g *JetStreamGateway) EstimateFee(_ context.Context, req SendRequest) (int64, error) {
	if req.DaysRetention <= 0 {
		return 0, fmt.Errorf("%w: retention must be positive", ErrInvalidSend)
	}
	return Fee(len(req.Payload), req.Paid, req.DaysRetention, g.FeePerKBDay), nil
}

func (g *JetStreamGateway) Send(ctx context.Context, req SendRequest) (SendResult, error) {
	if strings.TrimSpace(req.From) == "" || strings.TrimSpace(req.To) == "" {
		return SendResult{}, fmt.Errorf("%w: from and to are required", ErrInvalidSend)
	}
	if len(req.Payload) == 0 {
		return SendResult{}, fmt.Errorf("%w: empty payload", ErrInvalidSend)
	}
	fee, err := g.EstimateFee(ctx, req)
	if err != nil {
		return SendResult{}, err
	}

	sent := g.Now()
	tm := contracts.TransportMessage{
		MsgID:         g.NewID(),
		From:          req.From,
		To:            req.To,
		Paid:          req.Paid,
		DaysRetention: req.DaysRetention,
		Sent:          sent,
		Expiration:    sent.Add(time.Duration(req.DaysRetention) * 24 * time.Hour),
		Payload:       req.Payload,
	}

	msg := nats.NewMsg(sharding.MessageSubject(req.To))
	msg.Data = req.Payload
	msg.Header.Set(nats.MsgIdHdr, tm.MsgID)
	msg.Header.Set(HeaderFrom, tm.From)
	msg.Header.Set(HeaderTo, tm.To)
	msg.Header.Set(HeaderPaid, strconv.FormatBool(tm.Paid))
	msg.Header.Set(HeaderDays, strconv.Itoa(tm.DaysRetention))
	msg.Header.Set(HeaderSent, tm.Sent.Format(time.RFC3339Nano))
	msg.Header.Set(HeaderExpiration, tm.Expiration.Format(time.RFC3339Nano))

	if _, err := g.JS.PublishMsg(msg, nats.Context(ctx)); err != nil {
		return SendResult{}, fmt.Errorf("publish %s: %w", msg.Subject, err)
	}

	if g.Log != nil {
		record, err := json.Marshal(tm)
		if err == nil {
			_, err = g.Log.Put(tm.MsgID, record)
		}
		if err != nil && g.Logger != nil {
			// already on the wire, history is best effort
			g.Logger.Warn("record message history", zap.String("msgid", tm.MsgID), zap.Error(err))
		}
	}
	return SendResult{MsgID: tm.MsgID, Fee: fee}, nil
}

func (g *JetStreamGateway) FetchByMsgID(_ context.Context, msgID string) (contracts.TransportMessage, bool, error) {
	if g.Log == nil {
		return contracts.TransportMessage{}, false, nil
	}
	entry, err := g.Log.Get(msgID)
	if err != nil {
		if errors.Is(err, nats.ErrKeyNotFound) {
			return contracts.TransportMessage{}, false, nil
		}
		return contracts.TransportMessage{}, false, err
	}
	var tm contracts.TransportMessage
	if err := json.Unmarshal(entry.Value(), &tm); err != nil {
		return contracts.TransportMessage{}, false, fmt.Errorf("decode message %s: %w", msgID, err)
	}
	return tm, true, nil
}

// DecodeMsg converts a delivered stream message into a TransportMessage.
func DecodeMsg(msg *nats.Msg, now time.Time) (contracts.TransportMessage, error) {
	if msg == nil || msg.Header == nil {
		return contracts.TransportMessage{}, ErrMissingMsgID
	}
	tm := contracts.TransportMessage{
		MsgID:    msg.Header.Get(nats.MsgIdHdr),
		From:     msg.Header.Get(HeaderFrom),
		To:       msg.Header.Get(HeaderTo),
		Received: now,
		Payload:  msg.Data,
	}
	if tm.MsgID == "" {
		return contracts.TransportMessage{}, ErrMissingMsgID
	}
	if tm.To == "" {
		if addr, ok := sharding.AddressFromSubject(msg.Subject); ok {
			tm.To = addr
		}
	}
	tm.Paid, _ = strconv.ParseBool(msg.Header.Get(HeaderPaid))
	tm.DaysRetention, _ = strconv.Atoi(msg.Header.Get(HeaderDays))
	if sent, err := time.Parse(time.RFC3339Nano, msg.Header.Get(HeaderSent)); err == nil {
		tm.Sent = sent
	}
	if exp, err := time.Parse(time.RFC3339Nano, msg.Header.Get(HeaderExpiration)); err == nil {
		tm.Expiration = exp
	}
	if meta, err := msg.Metadata(); err == nil && !meta.Timestamp.IsZero() {
		tm.Received = meta.Timestamp.UTC()
	}
	return tm, nil
}
