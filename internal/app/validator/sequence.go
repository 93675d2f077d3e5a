package validator

import (
	"context"

	"github.com/bazaar-mp/project/internal/actionerr"
	"github.com/bazaar-mp/project/internal/app/store"
	"github.com/bazaar-mp/project/internal/contracts"
)

// chainState is what a step's preconditions are checked against.
type chainState struct {
	bid   store.BidRecord
	found bool
	steps map[contracts.ActionType][]store.BidRecord
}

type precondition func(ctx context.Context, s *Set, a contracts.Chained, st *chainState) error

func requireBid(_ context.Context, _ *Set, a contracts.Chained, st *chainState) error {
	if !st.found {
		return actionerr.PreconditionNotMet(a.Kind(), "bid", "bid %s not received yet", a.ParentBid())
	}
	return nil
}

func requireStep(step contracts.ActionType) precondition {
	return func(ctx context.Context, s *Set, a contracts.Chained, st *chainState) error {
		children, err := s.deps.Bids.FindChildren(ctx, a.ParentBid(), step)
		if err != nil {
			return actionerr.Transport(a.Kind(), "find "+string(step), err)
		}
		if len(children) == 0 {
			return actionerr.PreconditionNotMet(a.Kind(), "bid", "no %s recorded for bid %s", step, a.ParentBid())
		}
		st.steps[step] = children
		return nil
	}
}

func requireStatus(status contracts.OrderStatus) precondition {
	return func(_ context.Context, _ *Set, a contracts.Chained, st *chainState) error {
		if st.bid.OrderStatus != status {
			return actionerr.PreconditionNotMet(a.Kind(), "bid", "order is %s, want %s", st.bid.OrderStatus, status)
		}
		return nil
	}
}

// chain builds the sequence check for a bid-chain step. The predecessor set
// is the bid itself plus every step named by a precondition.
func (s *Set) chain(pre ...precondition) sequenceFunc {
	return func(ctx context.Context, a contracts.Action) error {
		ch, ok := a.(contracts.Chained)
		if !ok {
			return actionerr.WrongType(contracts.ActionBidAccept, a.Kind())
		}
		if s.deps.Bids == nil {
			return actionerr.NotImplemented(a.Kind(), "bid store")
		}
		bid, found, err := s.deps.Bids.FindBid(ctx, ch.ParentBid())
		if err != nil {
			return actionerr.Transport(a.Kind(), "find bid", err)
		}
		if found && bid.Type != contracts.ActionBid {
			return actionerr.Validation(a.Kind(), "bid", "%s is a %s, not a bid", ch.ParentBid(), bid.Type)
		}
		st := &chainState{bid: bid, found: found, steps: map[contracts.ActionType][]store.BidRecord{}}
		for _, check := range pre {
			if err := check(ctx, s, ch, st); err != nil {
				return err
			}
		}
		if s.deps.Monotonic {
			return monotonic(ch, st)
		}
		return nil
	}
}

// monotonic rejects a step generated before any predecessor it builds on.
func monotonic(a contracts.Chained, st *chainState) error {
	generated := a.Header().Generated
	if st.found && generated < st.bid.Generated {
		return actionerr.Validation(a.Kind(), "generated", "%d precedes bid generated at %d", generated, st.bid.Generated)
	}
	for step, records := range st.steps {
		earliest := records[0].Generated
		for _, r := range records[1:] {
			if r.Generated < earliest {
				earliest = r.Generated
			}
		}
		if generated < earliest {
			return actionerr.Validation(a.Kind(), "generated", "%d precedes %s generated at %d", generated, step, earliest)
		}
	}
	return nil
}
