// Package actionsvc runs the action pipeline: outgoing actions are built,
// checked, sent and materialized locally; incoming ones are decoded,
// validated and materialized.
package actionsvc

import (
	"context"
	"fmt"
	"time"

	"github.com/bazaar-mp/project/internal/app/factory"
	"github.com/bazaar-mp/project/internal/app/notify"
	"github.com/bazaar-mp/project/internal/app/store"
	"github.com/bazaar-mp/project/internal/app/validator"
	"github.com/bazaar-mp/project/internal/contracts"
	"github.com/bazaar-mp/project/internal/messaging"
	"github.com/bazaar-mp/project/internal/platform/config"
	"github.com/bazaar-mp/project/internal/platform/logging"
	"github.com/bazaar-mp/project/internal/platform/wallet"
	"go.uber.org/zap"
)

type Deps struct {
	Config   config.Config
	Wallet   wallet.Wallet
	Gateway  messaging.Gateway
	Store    store.Store
	Notifier notify.Deliverer
	Logger   *zap.Logger
}

// meta describes the transport message an action travelled in.
type meta struct {
	MsgID      string
	Direction  contracts.Direction
	From       string
	To         string
	Expiration time.Time
}

type (
	preSendFunc func(ctx context.Context, a contracts.Action) error
	// processFunc materializes a and returns the stored entity. changed is
	// false when the action was already applied.
	processFunc func(ctx context.Context, m meta, a contracts.Action) (entity any, changed bool, err error)
)

type entry struct {
	class    contracts.SizeClass
	build    factory.Func
	validate validator.Validator
	preSend  preSendFunc
	process  processFunc
	event    string
}

type Service struct {
	cfg      config.Config
	wallet   wallet.Wallet
	gateway  messaging.Gateway
	store    store.Store
	notifier notify.Deliverer
	logger   *zap.Logger
	entries  map[contracts.ActionType]entry

	Now func() time.Time
}

// New wires one registry entry per action type. A type without a factory or
// validator is a build defect and panics.
func New(deps Deps) *Service {
	s := &Service{
		cfg:      deps.Config,
		wallet:   deps.Wallet,
		gateway:  deps.Gateway,
		store:    deps.Store,
		notifier: deps.Notifier,
		logger:   logging.OrNop(deps.Logger),
		Now:      func() time.Time { return time.Now().UTC() },
	}
	if s.notifier == nil {
		s.notifier = notify.Discard{}
	}
	factories := factory.New(factory.Deps{Wallet: deps.Wallet, Now: func() time.Time { return s.Now() }})
	validators := validator.New(validator.Deps{Wallet: deps.Wallet, Bids: deps.Store, Monotonic: deps.Config.SequenceMonotonic})

	hooks := s.hooks()
	s.entries = make(map[contracts.ActionType]entry, len(contracts.ActionTypes))
	for _, t := range contracts.ActionTypes {
		build, ok := factories.For(t)
		if !ok {
			panic(fmt.Sprintf("actionsvc: no factory for %s", t))
		}
		v, ok := validators.For(t)
		if !ok {
			panic(fmt.Sprintf("actionsvc: no validator for %s", t))
		}
		h, ok := hooks[t]
		if !ok {
			panic(fmt.Sprintf("actionsvc: no processor for %s", t))
		}
		s.entries[t] = entry{
			class:    contracts.SizeClassOf(t),
			build:    build,
			validate: v,
			preSend:  h.preSend,
			process:  h.process,
			event:    h.event,
		}
	}
	return s
}

type hook struct {
	preSend preSendFunc
	process processFunc
	event   string
}

func (s *Service) hooks() map[contracts.ActionType]hook {
	return map[contracts.ActionType]hook{
		contracts.ActionListingAdd:      {process: s.processListing, event: notify.EventListing},
		contracts.ActionListingImageAdd: {process: s.processListingImage, event: notify.EventImage},
		contracts.ActionMarketAdd:       {preSend: s.marketPreSend, process: s.processMarket, event: notify.EventMarket},
		contracts.ActionMarketImageAdd:  {process: s.processMarketImage, event: notify.EventImage},
		contracts.ActionBid:             {process: s.processBid, event: notify.EventBid},
		contracts.ActionBidAccept:       {process: s.processChainStep, event: notify.EventBid},
		contracts.ActionBidReject:       {process: s.processChainStep, event: notify.EventBid},
		contracts.ActionBidCancel:       {process: s.processChainStep, event: notify.EventBid},
		contracts.ActionEscrowLock:      {process: s.processChainStep, event: notify.EventBid},
		contracts.ActionEscrowComplete:  {process: s.processChainStep, event: notify.EventBid},
		contracts.ActionOrderShip:       {process: s.processChainStep, event: notify.EventBid},
		contracts.ActionEscrowRelease:   {process: s.processChainStep, event: notify.EventBid},
		contracts.ActionEscrowRefund:    {process: s.processChainStep, event: notify.EventBid},
		contracts.ActionProposalAdd:     {process: s.processProposal, event: notify.EventProposal},
		contracts.ActionVote:            {process: s.processVote, event: notify.EventVote},
		contracts.ActionCommentAdd:      {process: s.processComment, event: notify.EventComment},
	}
}

// budget is the byte limit for a size class.
func (s *Service) budget(class contracts.SizeClass) int {
	if class == contracts.SizePaid {
		return s.cfg.MessageSizePaid
	}
	return s.cfg.MessageSizeFree
}

// retention picks the requested retention, or the default, capped at the
// class maximum.
func (s *Service) retention(class contracts.SizeClass, requested int) int {
	days := requested
	if days <= 0 {
		days = s.cfg.DefaultRetentionDays
	}
	limit := s.cfg.MaxRetentionDaysFree
	if class == contracts.SizePaid {
		limit = s.cfg.MaxRetentionDaysPaid
	}
	if limit > 0 && days > limit {
		days = limit
	}
	return days
}

func (s *Service) deliver(ctx context.Context, e entry, entity any) {
	if e.event == "" || entity == nil {
		return
	}
	s.notifier.Deliver(ctx, notify.New(e.event, entity))
}
