package actionsvc

import (
	"context"
	"errors"
	"time"

	"github.com/bazaar-mp/project/internal/actionerr"
	"github.com/bazaar-mp/project/internal/app/factory"
	"github.com/bazaar-mp/project/internal/contracts"
	"github.com/bazaar-mp/project/internal/messaging"
	"github.com/bazaar-mp/project/internal/platform/metrics"
	"go.uber.org/zap"
)

type PostRequest struct {
	Wallet      string          `json:"wallet"`
	From        string          `json:"from"`
	To          string          `json:"to"`
	Days        int             `json:"days,omitempty"`
	EstimateFee bool            `json:"estimate_fee,omitempty"`
	Objects     []contracts.KVS `json:"objects,omitempty"`
}

// Part is the outcome for one sent (or estimated) message.
type Part struct {
	Type  contracts.ActionType `json:"type"`
	Hash  string               `json:"hash"`
	MsgID string               `json:"msgid,omitempty"`
	Fee   int64                `json:"fee"`
	Size  int                  `json:"size"`
	Error string               `json:"error,omitempty"`
}

type PostResponse struct {
	Part
	Estimated bool `json:"estimated,omitempty"`
	// TotalFee covers the primary message and every follow-up.
	TotalFee  int64  `json:"total_fee"`
	FollowUps []Part `json:"follow_ups,omitempty"`
}

// Post builds the action described by p and runs it through the outgoing
// pipeline. Image bytes of listings and markets travel in follow-up messages
// sent after the primary one; a failing follow-up does not fail the post.
func (s *Service) Post(ctx context.Context, req PostRequest, p factory.Params) (PostResponse, error) {
	if p == nil {
		return PostResponse{}, actionerr.MissingParam("", "params")
	}
	t := p.Kind()
	e, ok := s.entries[t]
	if !ok {
		return PostResponse{}, actionerr.NotImplemented(t, "action type")
	}
	a, err := e.build(ctx, req.Wallet, p)
	if err != nil {
		metrics.RecordPosted(string(t), resultOf(err))
		return PostResponse{}, err
	}

	primary, err := s.post(ctx, req, e, a)
	if err != nil {
		return PostResponse{}, err
	}
	resp := PostResponse{Part: primary, Estimated: req.EstimateFee, TotalFee: primary.Fee}

	for _, fp := range s.followUps(p, a) {
		part := s.postFollowUp(ctx, req, fp)
		resp.TotalFee += part.Fee
		resp.FollowUps = append(resp.FollowUps, part)
	}
	return resp, nil
}

func (s *Service) postFollowUp(ctx context.Context, req PostRequest, p factory.Params) Part {
	t := p.Kind()
	part := Part{Type: t}
	e := s.entries[t]
	a, err := e.build(ctx, req.Wallet, p)
	if err != nil {
		metrics.RecordPosted(string(t), resultOf(err))
	} else {
		part, err = s.post(ctx, req, e, a)
	}
	if err != nil {
		s.logger.Warn("follow-up not sent", zap.String("type", string(t)), zap.Error(err))
		part.Type = t
		part.Error = err.Error()
	}
	return part
}

// post runs an already built action from the size check onwards.
func (s *Service) post(ctx context.Context, req PostRequest, e entry, a contracts.Action) (Part, error) {
	t := a.Kind()
	h := a.Header()
	part := Part{Type: t, Hash: h.Hash}
	result := "error"
	defer func() { metrics.RecordPosted(string(t), result) }()

	size, err := s.checkSize(e, a)
	part.Size = size
	if err != nil {
		result = resultOf(err)
		return part, err
	}

	contracts.MergeObjects(a, req.Objects)

	if err := e.validate.ValidateContent(ctx, a); err != nil {
		result = resultOf(err)
		return part, err
	}

	paid := e.class == contracts.SizePaid
	days := s.retention(e.class, req.Days)
	payload, err := s.envelope(a).Marshal()
	if err != nil {
		return part, actionerr.InvalidParam(t, "envelope", "%v", err)
	}
	sendReq := messaging.SendRequest{
		Wallet:        req.Wallet,
		From:          req.From,
		To:            req.To,
		Payload:       payload,
		Paid:          paid,
		DaysRetention: days,
	}

	var fee int64
	if paid {
		fee, err = s.gateway.EstimateFee(ctx, sendReq)
		if err != nil {
			result = "send_failed"
			return part, actionerr.Transport(t, "estimate fee", err)
		}
	}
	if req.EstimateFee {
		part.Fee = fee
		result = "estimated"
		return part, nil
	}
	if paid {
		balance, err := s.wallet.Balance(ctx, req.Wallet)
		if err != nil {
			result = "send_failed"
			return part, actionerr.Transport(t, "balance", err)
		}
		if balance < fee {
			result = "insufficient_balance"
			return part, actionerr.InsufficientBalance(t, fee, balance)
		}
	}

	if e.preSend != nil {
		if err := e.preSend(ctx, a); err != nil {
			result = resultOf(err)
			return part, err
		}
	}
	contracts.StripLocalObjects(a)
	// the pre-send hook may have changed the wire form
	if part.Size, err = s.checkSize(e, a); err != nil {
		result = resultOf(err)
		return part, err
	}
	if sendReq.Payload, err = s.envelope(a).Marshal(); err != nil {
		return part, actionerr.InvalidParam(t, "envelope", "%v", err)
	}

	sent, err := s.gateway.Send(ctx, sendReq)
	if err != nil {
		result = "send_failed"
		return part, actionerr.Transport(t, "send", err)
	}
	result = "sent"
	part.MsgID = sent.MsgID
	part.Fee = sent.Fee
	metrics.ObserveSize(string(t), part.Size)

	// the message is on the wire, nothing below may fail the post or be cut
	// short by the caller going away
	ctx = context.WithoutCancel(ctx)
	now := s.Now()
	m := meta{
		MsgID:      sent.MsgID,
		Direction:  contracts.DirectionOutgoing,
		From:       req.From,
		To:         req.To,
		Expiration: now.Add(time.Duration(days) * 24 * time.Hour),
	}
	s.recordOutgoing(ctx, m, a, paid, days, now)
	entity, changed, err := e.process(ctx, m, a)
	if err != nil {
		s.logger.Error("process outgoing action", zap.String("type", string(t)), zap.String("msgid", sent.MsgID), zap.Error(err))
		return part, nil
	}
	if changed {
		s.deliver(ctx, e, entity)
	}
	return part, nil
}

func (s *Service) envelope(a contracts.Action) contracts.Envelope {
	return contracts.Envelope{Version: s.cfg.ProtocolVersion, Action: a}
}

func (s *Service) checkSize(e entry, a contracts.Action) (int, error) {
	size, err := s.envelope(a).Size()
	if err != nil {
		return 0, actionerr.InvalidParam(a.Kind(), "envelope", "%v", err)
	}
	if limit := s.budget(e.class); size > limit {
		return size, actionerr.TooLarge(a.Kind(), e.class, size, limit)
	}
	return size, nil
}

func (s *Service) recordOutgoing(ctx context.Context, m meta, a contracts.Action, paid bool, days int, now time.Time) {
	_, err := s.store.CreateRecord(ctx, contracts.TransportRecord{
		MsgID:         m.MsgID,
		Direction:     contracts.DirectionOutgoing,
		Status:        contracts.StatusSent,
		Type:          a.Kind(),
		Hash:          a.Header().Hash,
		Version:       s.cfg.ProtocolVersion,
		From:          m.From,
		To:            m.To,
		Paid:          paid,
		DaysRetention: days,
		Sent:          now,
		Expiration:    m.Expiration,
	})
	if err != nil {
		s.logger.Error("record outgoing message", zap.String("msgid", m.MsgID), zap.Error(err))
	}
}

// resultOf names a pipeline failure for the posted-actions counter.
func resultOf(err error) string {
	switch {
	case err == nil:
		return "sent"
	case errors.Is(err, actionerr.ErrMessageTooLarge):
		return "too_large"
	case errors.Is(err, actionerr.ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, actionerr.ErrTransport):
		return "send_failed"
	case errors.Is(err, actionerr.ErrNotImplemented):
		return "not_implemented"
	default:
		return "invalid"
	}
}
