// Package validator checks actions before they are sent or materialized.
//
// Content validation covers the discriminant, required fields, the
// self-describing hash and any signature the action carries. Sequence
// validation applies to incoming bid-chain steps only and asserts that the
// predecessor steps the action builds on have already been recorded.
package validator

import (
	"context"
	"errors"

	"github.com/bazaar-mp/project/internal/actionerr"
	"github.com/bazaar-mp/project/internal/app/store"
	"github.com/bazaar-mp/project/internal/contracts"
	"github.com/bazaar-mp/project/internal/hashing"
	"github.com/bazaar-mp/project/internal/platform/wallet"
)

type Validator interface {
	ValidateContent(ctx context.Context, a contracts.Action) error
	ValidateSequence(ctx context.Context, a contracts.Action, dir contracts.Direction) error
}

type Deps struct {
	Wallet wallet.Wallet
	Bids   store.Bids
	// Monotonic rejects chain steps generated before the step they extend.
	Monotonic bool
}

type contentFunc func(ctx context.Context, a contracts.Action) error

type sequenceFunc func(ctx context.Context, a contracts.Action) error

type validator struct {
	t        contracts.ActionType
	content  contentFunc
	sequence sequenceFunc
}

func (v validator) ValidateContent(ctx context.Context, a contracts.Action) error {
	if a == nil {
		return actionerr.MissingParam(v.t, "action")
	}
	if a.Kind() != v.t || a.Header().Type != v.t {
		return actionerr.WrongType(v.t, a.Header().Type)
	}
	h := a.Header()
	c := actionerr.NewCollector(v.t)
	c.Require("hash", h.Hash)
	if h.Generated < 0 {
		c.Invalid("generated", "negative timestamp %d", h.Generated)
	}
	if err := c.Err(); err != nil {
		return err
	}
	if v.content != nil {
		if err := v.content(ctx, a); err != nil {
			return err
		}
	}
	// the hash is checked last so that missing fields report as such
	computed, err := hashing.HashAction(a)
	if err != nil {
		return actionerr.InvalidParam(v.t, "hash", "%v", err)
	}
	if computed != h.Hash {
		return actionerr.HashMismatch(v.t, "hash", computed, h.Hash)
	}
	return nil
}

func (v validator) ValidateSequence(ctx context.Context, a contracts.Action, dir contracts.Direction) error {
	if dir != contracts.DirectionIncoming || v.sequence == nil {
		return nil
	}
	if a.Kind() != v.t {
		return actionerr.WrongType(v.t, a.Kind())
	}
	return v.sequence(ctx, a)
}

// Set holds one validator per action type.
type Set struct {
	deps       Deps
	validators map[contracts.ActionType]Validator
}

func New(deps Deps) *Set {
	s := &Set{deps: deps}
	s.validators = map[contracts.ActionType]Validator{
		contracts.ActionListingAdd:      validator{t: contracts.ActionListingAdd, content: s.listingAdd},
		contracts.ActionListingImageAdd: validator{t: contracts.ActionListingImageAdd, content: s.imageAdd},
		contracts.ActionMarketAdd:       validator{t: contracts.ActionMarketAdd, content: s.marketAdd},
		contracts.ActionMarketImageAdd:  validator{t: contracts.ActionMarketImageAdd, content: s.imageAdd},
		contracts.ActionBid:             validator{t: contracts.ActionBid, content: s.bid},
		contracts.ActionBidAccept:       validator{t: contracts.ActionBidAccept, content: s.bidAccept, sequence: s.chain()},
		contracts.ActionBidReject:       validator{t: contracts.ActionBidReject, content: s.bidChild, sequence: s.chain()},
		contracts.ActionBidCancel:       validator{t: contracts.ActionBidCancel, content: s.bidChild, sequence: s.chain()},
		contracts.ActionEscrowLock:      validator{t: contracts.ActionEscrowLock, content: s.escrow, sequence: s.chain(requireBid)},
		contracts.ActionEscrowComplete:  validator{t: contracts.ActionEscrowComplete, content: s.escrow, sequence: s.chain(requireBid, requireStep(contracts.ActionEscrowLock))},
		contracts.ActionOrderShip:       validator{t: contracts.ActionOrderShip, content: s.bidChild, sequence: s.chain(requireBid, requireStep(contracts.ActionEscrowComplete), requireStatus(contracts.OrderEscrowCompleted))},
		contracts.ActionEscrowRelease:   validator{t: contracts.ActionEscrowRelease, content: s.escrow, sequence: s.chain(requireBid, requireStep(contracts.ActionEscrowComplete), requireStep(contracts.ActionOrderShip))},
		contracts.ActionEscrowRefund:    validator{t: contracts.ActionEscrowRefund, content: s.escrow, sequence: s.chain(requireBid, requireStep(contracts.ActionEscrowLock))},
		contracts.ActionProposalAdd:     validator{t: contracts.ActionProposalAdd, content: s.proposalAdd},
		contracts.ActionVote:            validator{t: contracts.ActionVote, content: s.vote},
		contracts.ActionCommentAdd:      validator{t: contracts.ActionCommentAdd, content: s.commentAdd},
	}
	return s
}

func (s *Set) For(t contracts.ActionType) (Validator, bool) {
	v, ok := s.validators[t]
	return v, ok
}

// verify maps a wallet answer onto the error taxonomy. A malformed address
// or ticket comes from the sender and is invalid content; any other wallet
// failure is a transport error. A mismatch is an invalid signature.
func (s *Set) verify(ctx context.Context, t contracts.ActionType, field, addr, signature string, ticket wallet.Ticket) error {
	if signature == "" {
		return actionerr.MissingParam(t, field)
	}
	if s.deps.Wallet == nil {
		return actionerr.NotImplemented(t, "wallet")
	}
	ok, err := s.deps.Wallet.Verify(ctx, addr, signature, ticket)
	switch {
	case errors.Is(err, wallet.ErrInvalidAddress), errors.Is(err, wallet.ErrMalformedTicket):
		return actionerr.InvalidParam(t, field, "%w", err)
	case err != nil:
		return actionerr.Transport(t, "verify", err)
	}
	if !ok {
		return actionerr.InvalidSignature(t, field)
	}
	return nil
}
