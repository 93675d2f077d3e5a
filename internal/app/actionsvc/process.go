package actionsvc

import (
	"context"
	"encoding/json"

	"github.com/bazaar-mp/project/internal/actionerr"
	"github.com/bazaar-mp/project/internal/app/store"
	"github.com/bazaar-mp/project/internal/contracts"
	"github.com/bazaar-mp/project/internal/hashing"
	"github.com/bazaar-mp/project/internal/platform/wallet"
	"go.uber.org/zap"
)

// checkEntityHash recomputes the hash over the materialized form. A mismatch
// means the entity would not be addressable by the hash the sender used.
func checkEntityHash(t contracts.ActionType, entity any, p hashing.Projection, want string) error {
	got, err := hashing.Hash(entity, p)
	if err != nil {
		return actionerr.InvalidParam(t, "hash", "%v", err)
	}
	if got != want {
		return actionerr.HashMismatch(t, "hash", want, got)
	}
	return nil
}

func (s *Service) processListing(ctx context.Context, m meta, a contracts.Action) (any, bool, error) {
	const t = contracts.ActionListingAdd
	l := a.(*contracts.ListingAdd)
	info := l.Item.Information
	listing := store.Listing{
		Hash:                 l.Hash,
		Seller:               l.Item.Seller.Address,
		Signature:            l.Item.Seller.Signature,
		Title:                info.Title,
		ShortDescription:     info.ShortDescription,
		LongDescription:      info.LongDescription,
		Category:             info.Category,
		Location:             info.Location,
		ShippingDestinations: info.ShippingDestinations,
		Images:               info.Images,
		Payment:              l.Item.Payment,
		Market:               m.To,
		MsgID:                m.MsgID,
		Generated:            l.Generated,
		ExpiredAt:            m.Expiration,
	}
	if err := checkEntityHash(t, listing, hashing.ListingEntity, l.Hash); err != nil {
		return nil, false, err
	}
	created, err := s.store.SaveListing(ctx, listing)
	if err != nil {
		return nil, false, err
	}
	return listing, created, nil
}

func (s *Service) processMarket(ctx context.Context, m meta, a contracts.Action) (any, bool, error) {
	const t = contracts.ActionMarketAdd
	ma := a.(*contracts.MarketAdd)
	addrs, err := wallet.DeriveMarketAddresses(ma.MarketType, ma.ReceiveKey, ma.PublishKey)
	if err != nil {
		return nil, false, actionerr.InvalidParam(t, "keys", "%w", err)
	}
	market := store.Market{
		Hash:           ma.Hash,
		Name:           ma.Name,
		Description:    ma.Description,
		Type:           ma.MarketType,
		Region:         ma.Region,
		ReceiveKey:     ma.ReceiveKey,
		ReceiveAddress: addrs.ReceiveAddress,
		PublishKey:     ma.PublishKey,
		PublishAddress: addrs.PublishAddress,
		Image:          ma.Image,
		Publisher:      m.From,
		MsgID:          m.MsgID,
		Generated:      ma.Generated,
		ExpiredAt:      m.Expiration,
	}
	if ma.Image != nil {
		market.ImageHash = ma.Image.Hash
	}
	if err := checkEntityHash(t, market, hashing.MarketEntity, ma.Hash); err != nil {
		return nil, false, err
	}
	created, err := s.store.SaveMarket(ctx, market)
	if err != nil {
		return nil, false, err
	}
	return market, created, nil
}

type imageAttached struct {
	Target string                     `json:"target"`
	Image  contracts.ContentReference `json:"image"`
}

// processListingImage attaches image bytes to a listing that references the
// image and is owned by the signer.
func (s *Service) processListingImage(ctx context.Context, _ meta, a contracts.Action) (any, bool, error) {
	const t = contracts.ActionListingImageAdd
	img := a.(*contracts.ListingImageAdd)
	listing, found, err := s.store.FindListing(ctx, img.Target)
	if err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, actionerr.PreconditionNotMet(t, "target", "listing %s not received yet", img.Target)
	}
	if listing.Seller != img.Signer {
		return nil, false, actionerr.Validation(t, "signer", "%s does not own listing %s", img.Signer, img.Target)
	}
	attached, err := s.store.AttachListingImage(ctx, img.Target, img.Image)
	if err != nil {
		return nil, false, err
	}
	if !attached {
		return nil, false, actionerr.Validation(t, "image", "listing %s does not reference image %s", img.Target, img.Image.Hash)
	}
	return imageAttached{Target: img.Target, Image: contracts.ContentReference{Hash: img.Image.Hash, Featured: img.Image.Featured}}, true, nil
}

func (s *Service) processMarketImage(ctx context.Context, _ meta, a contracts.Action) (any, bool, error) {
	const t = contracts.ActionMarketImageAdd
	img := a.(*contracts.MarketImageAdd)
	market, found, err := s.store.FindMarket(ctx, img.Target)
	if err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, actionerr.PreconditionNotMet(t, "target", "market %s not received yet", img.Target)
	}
	if market.PublishAddress != img.Signer {
		return nil, false, actionerr.Validation(t, "signer", "%s does not publish market %s", img.Signer, img.Target)
	}
	attached, err := s.store.AttachMarketImage(ctx, img.Target, img.Image)
	if err != nil {
		return nil, false, err
	}
	if !attached {
		return nil, false, actionerr.Validation(t, "image", "market %s does not reference image %s", img.Target, img.Image.Hash)
	}
	return imageAttached{Target: img.Target, Image: contracts.ContentReference{Hash: img.Image.Hash, Featured: img.Image.Featured}}, true, nil
}

func (s *Service) processBid(ctx context.Context, m meta, a contracts.Action) (any, bool, error) {
	b := a.(*contracts.Bid)
	raw, err := json.Marshal(b)
	if err != nil {
		return nil, false, err
	}
	rec := store.BidRecord{
		Hash:        b.Hash,
		Type:        contracts.ActionBid,
		ListingHash: b.Item,
		Actor:       b.Buyer.Address,
		OrderStatus: contracts.OrderBidded,
		Generated:   b.Generated,
		Action:      raw,
		MsgID:       m.MsgID,
	}
	created, err := s.store.SaveBid(ctx, rec)
	if err != nil {
		return nil, false, err
	}
	return rec, created, nil
}

// orderStatusAfter is the order status a chain step moves its bid to.
var orderStatusAfter = map[contracts.ActionType]contracts.OrderStatus{
	contracts.ActionBidAccept:      contracts.OrderAccepted,
	contracts.ActionBidReject:      contracts.OrderRejected,
	contracts.ActionBidCancel:      contracts.OrderCancelled,
	contracts.ActionEscrowLock:     contracts.OrderEscrowLocked,
	contracts.ActionEscrowComplete: contracts.OrderEscrowCompleted,
	contracts.ActionOrderShip:      contracts.OrderShipped,
	contracts.ActionEscrowRelease:  contracts.OrderComplete,
	contracts.ActionEscrowRefund:   contracts.OrderRefunded,
}

func (s *Service) processChainStep(ctx context.Context, m meta, a contracts.Action) (any, bool, error) {
	ch := a.(contracts.Chained)
	raw, err := json.Marshal(a)
	if err != nil {
		return nil, false, err
	}
	rec := store.BidRecord{
		Hash:      a.Header().Hash,
		Type:      a.Kind(),
		Parent:    ch.ParentBid(),
		Actor:     m.From,
		Generated: a.Header().Generated,
		Action:    raw,
		MsgID:     m.MsgID,
	}
	created, err := s.store.SaveBid(ctx, rec)
	if err != nil || !created {
		return nil, false, err
	}
	bid, found, err := s.store.FindBid(ctx, ch.ParentBid())
	if err != nil {
		return nil, false, err
	}
	if !found {
		s.logger.Debug("chain step without local bid", zap.String("type", string(a.Kind())), zap.String("bid", ch.ParentBid()))
		return rec, true, nil
	}
	next := orderStatusAfter[a.Kind()]
	applied, err := s.store.SetOrderStatus(ctx, bid.Hash, next)
	if err != nil {
		return nil, false, err
	}
	if !applied {
		s.logger.Info("order status kept",
			zap.String("type", string(a.Kind())),
			zap.String("bid", bid.Hash),
			zap.String("status", string(bid.OrderStatus)),
			zap.String("ignored", string(next)))
		return rec, true, nil
	}
	bid.OrderStatus = next
	return bid, true, nil
}

func (s *Service) processProposal(ctx context.Context, m meta, a contracts.Action) (any, bool, error) {
	const t = contracts.ActionProposalAdd
	p := a.(*contracts.ProposalAdd)
	proposal := store.Proposal{
		Hash:        p.Hash,
		Submitter:   p.Submitter,
		Title:       p.Title,
		Description: p.Description,
		Category:    p.Category,
		Target:      p.Target,
		Options:     p.Options,
		Generated:   p.Generated,
		MsgID:       m.MsgID,
		ExpiredAt:   m.Expiration,
	}
	if err := checkEntityHash(t, proposal, hashing.ProposalEntity, p.Hash); err != nil {
		return nil, false, err
	}
	created, err := s.store.SaveProposal(ctx, proposal)
	if err != nil {
		return nil, false, err
	}
	return proposal, created, nil
}

func (s *Service) processVote(ctx context.Context, m meta, a contracts.Action) (any, bool, error) {
	v := a.(*contracts.Vote)
	vote := store.Vote{
		Hash:               v.Hash,
		ProposalHash:       v.ProposalHash,
		ProposalOptionHash: v.ProposalOptionHash,
		Voter:              v.Voter,
		Signature:          v.Signature,
		Generated:          v.Generated,
		MsgID:              m.MsgID,
	}
	applied, err := s.store.SaveVote(ctx, vote)
	if err != nil {
		return nil, false, err
	}
	return vote, applied, nil
}

func (s *Service) processComment(ctx context.Context, m meta, a contracts.Action) (any, bool, error) {
	c := a.(*contracts.CommentAdd)
	comment := store.Comment{
		Hash:              c.Hash,
		Sender:            c.Sender,
		Receiver:          c.Receiver,
		Type:              c.CommentType,
		Target:            c.Target,
		ParentCommentHash: c.ParentCommentHash,
		Message:           c.Message,
		Signature:         c.Signature,
		Generated:         c.Generated,
		MsgID:             m.MsgID,
		ExpiredAt:         m.Expiration,
	}
	created, err := s.store.SaveComment(ctx, comment)
	if err != nil {
		return nil, false, err
	}
	return comment, created, nil
}
