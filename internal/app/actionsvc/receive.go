package actionsvc

import (
	"context"
	"errors"

	"github.com/bazaar-mp/project/internal/actionerr"
	"github.com/bazaar-mp/project/internal/contracts"
	"github.com/bazaar-mp/project/internal/platform/metrics"
	"go.uber.org/zap"
)

type ReceiveResult struct {
	MsgID  string                  `json:"msgid"`
	Type   contracts.ActionType    `json:"type,omitempty"`
	Hash   string                  `json:"hash,omitempty"`
	Status contracts.MessageStatus `json:"status"`
	// Duplicate is set when the message was already handled to a final
	// outcome and nothing was done.
	Duplicate bool `json:"duplicate,omitempty"`
}

// Receive materializes one incoming transport message. The transport record
// is created once per message id; a redelivered message that is not yet
// settled is processed again.
func (s *Service) Receive(ctx context.Context, tm contracts.TransportMessage) (ReceiveResult, error) {
	res := ReceiveResult{MsgID: tm.MsgID}
	rec := contracts.TransportRecord{
		MsgID:         tm.MsgID,
		Direction:     contracts.DirectionIncoming,
		Status:        contracts.StatusProcessing,
		From:          tm.From,
		To:            tm.To,
		Paid:          tm.Paid,
		DaysRetention: tm.DaysRetention,
		Sent:          tm.Sent,
		Received:      tm.Received,
		Expiration:    tm.Expiration,
	}
	if rec.Received.IsZero() {
		rec.Received = s.Now()
	}

	env, decodeErr := contracts.DecodeEnvelope(tm.Payload)
	if decodeErr == nil {
		rec.Type = env.Action.Kind()
		rec.Hash = env.Action.Header().Hash
		rec.Version = env.Version
		res.Type, res.Hash = rec.Type, rec.Hash
	} else {
		rec.Status = contracts.StatusValidationFailed
	}

	created, err := s.store.CreateRecord(ctx, rec)
	if err != nil {
		return res, actionerr.Transport(rec.Type, "record message", err)
	}
	if !created {
		existing, found, err := s.store.FindRecord(ctx, tm.MsgID, contracts.DirectionIncoming)
		if err != nil {
			return res, actionerr.Transport(rec.Type, "find message", err)
		}
		if found && settled(existing.Status) {
			res.Status = existing.Status
			res.Duplicate = true
			return res, nil
		}
	}

	if decodeErr != nil {
		res.Status = contracts.StatusValidationFailed
		metrics.RecordReceived("", string(res.Status))
		return res, actionerr.Validation("", "envelope", "%v", decodeErr)
	}

	a := env.Action
	t := a.Kind()
	e, ok := s.entries[t]
	if !ok {
		return s.settle(ctx, res, actionerr.NotImplemented(t, "action type"))
	}
	if err := e.validate.ValidateContent(ctx, a); err != nil {
		return s.settle(ctx, res, err)
	}
	if err := e.validate.ValidateSequence(ctx, a, contracts.DirectionIncoming); err != nil {
		return s.settle(ctx, res, err)
	}

	m := meta{
		MsgID:      tm.MsgID,
		Direction:  contracts.DirectionIncoming,
		From:       tm.From,
		To:         tm.To,
		Expiration: tm.Expiration,
	}
	entity, changed, err := e.process(ctx, m, a)
	if err != nil {
		var ae *actionerr.Error
		if !errors.As(err, &ae) {
			// storage failures are worth a redelivery
			err = actionerr.Transport(t, "process", err)
		}
		return s.settle(ctx, res, err)
	}
	res, err = s.settle(ctx, res, nil)
	if err == nil && changed {
		s.deliver(ctx, e, entity)
	}
	return res, err
}

// settled reports whether a redelivered message must be skipped.
func settled(status contracts.MessageStatus) bool {
	switch status {
	case contracts.StatusProcessed, contracts.StatusValidationFailed, contracts.StatusIgnored:
		return true
	default:
		return false
	}
}

// statusFor maps a pipeline outcome onto the transport record status.
func statusFor(err error) contracts.MessageStatus {
	switch {
	case err == nil:
		return contracts.StatusProcessed
	case errors.Is(err, actionerr.ErrPreconditionNotMet):
		return contracts.StatusWaiting
	case errors.Is(err, actionerr.ErrTransport), errors.Is(err, actionerr.ErrNotImplemented):
		return contracts.StatusProcessingFailed
	case errors.Is(err, actionerr.ErrValidation),
		errors.Is(err, actionerr.ErrMissingParam),
		errors.Is(err, actionerr.ErrInvalidParam),
		errors.Is(err, actionerr.ErrHashMismatch):
		return contracts.StatusValidationFailed
	default:
		return contracts.StatusProcessingFailed
	}
}

func (s *Service) settle(ctx context.Context, res ReceiveResult, cause error) (ReceiveResult, error) {
	res.Status = statusFor(cause)
	metrics.RecordReceived(string(res.Type), string(res.Status))
	if err := s.store.UpdateStatus(ctx, res.MsgID, contracts.DirectionIncoming, res.Status); err != nil {
		s.logger.Error("update message status", zap.String("msgid", res.MsgID), zap.String("status", string(res.Status)), zap.Error(err))
		if cause == nil {
			cause = actionerr.Transport(res.Type, "update status", err)
		}
	}
	if cause != nil {
		s.logger.Info("incoming action not processed",
			zap.String("msgid", res.MsgID),
			zap.String("type", string(res.Type)),
			zap.String("status", string(res.Status)),
			zap.Error(cause))
	}
	return res, cause
}
