// Package factory builds fully populated actions from request parameters.
// Each action type has one factory; New wires them into a Registry.
package factory

import (
	"context"
	"time"

	"github.com/bazaar-mp/project/internal/actionerr"
	"github.com/bazaar-mp/project/internal/contracts"
	"github.com/bazaar-mp/project/internal/hashing"
	"github.com/bazaar-mp/project/internal/platform/wallet"
)

// Func builds one action. walletName selects the identity that signs.
type Func func(ctx context.Context, walletName string, p Params) (contracts.Action, error)

type Deps struct {
	Wallet wallet.Wallet
	Now    func() time.Time
}

type Registry struct {
	deps      Deps
	factories map[contracts.ActionType]Func
}

func New(deps Deps) *Registry {
	if deps.Now == nil {
		deps.Now = func() time.Time { return time.Now().UTC() }
	}
	r := &Registry{deps: deps}
	r.factories = map[contracts.ActionType]Func{
		contracts.ActionListingAdd:      r.listingAdd,
		contracts.ActionListingImageAdd: r.listingImageAdd,
		contracts.ActionMarketAdd:       r.marketAdd,
		contracts.ActionMarketImageAdd:  r.marketImageAdd,
		contracts.ActionBid:             r.bid,
		contracts.ActionBidAccept:       r.bidAccept,
		contracts.ActionBidReject:       r.bidReject,
		contracts.ActionBidCancel:       r.bidCancel,
		contracts.ActionEscrowLock:      r.escrowLock,
		contracts.ActionEscrowComplete:  r.escrowComplete,
		contracts.ActionOrderShip:       r.orderShip,
		contracts.ActionEscrowRelease:   r.escrowRelease,
		contracts.ActionEscrowRefund:    r.escrowRefund,
		contracts.ActionProposalAdd:     r.proposalAdd,
		contracts.ActionVote:            r.vote,
		contracts.ActionCommentAdd:      r.commentAdd,
	}
	return r
}

// For returns the factory registered for t.
func (r *Registry) For(t contracts.ActionType) (Func, bool) {
	f, ok := r.factories[t]
	return f, ok
}

func (r *Registry) Build(ctx context.Context, walletName string, p Params) (contracts.Action, error) {
	if p == nil {
		return nil, actionerr.MissingParam("", "params")
	}
	f, ok := r.For(p.Kind())
	if !ok {
		return nil, actionerr.NotImplemented(p.Kind(), "factory")
	}
	return f(ctx, walletName, p)
}

func (r *Registry) generated() int64 {
	return r.deps.Now().UnixMilli()
}

func (r *Registry) sign(ctx context.Context, t contracts.ActionType, walletName, addr string, ticket wallet.Ticket) (string, error) {
	if r.deps.Wallet == nil {
		return "", actionerr.NotImplemented(t, "wallet")
	}
	sig, err := r.deps.Wallet.Sign(ctx, walletName, addr, ticket)
	if err != nil {
		return "", actionerr.Transport(t, "sign", err)
	}
	return sig, nil
}

// stamp sets the action's self-describing hash.
// stamped stamps a and returns it, or nil when hashing fails.
func stamped(a contracts.Action) (contracts.Action, error) {
	if err := stamp(a); err != nil {
		return nil, err
	}
	return a, nil
}

func stamp(a contracts.Action) error {
	h, err := hashing.HashAction(a)
	if err != nil {
		return actionerr.InvalidParam(a.Kind(), "hash", "%v", err)
	}
	a.Header().Hash = h
	return nil
}

// paramsAs accepts both T and *T.
func paramsAs[T Params](expected contracts.ActionType, p Params) (T, error) {
	switch v := any(p).(type) {
	case T:
		return v, nil
	case *T:
		if v != nil {
			return *v, nil
		}
	}
	var zero T
	return zero, actionerr.InvalidParam(expected, "params", "got %T", p)
}
