package validator

import (
	"context"
	"unicode/utf8"

	"github.com/bazaar-mp/project/internal/actionerr"
	"github.com/bazaar-mp/project/internal/app/factory"
	"github.com/bazaar-mp/project/internal/contracts"
	"github.com/bazaar-mp/project/internal/hashing"
	"github.com/bazaar-mp/project/internal/platform/wallet"
)

func (s *Set) listingAdd(ctx context.Context, a contracts.Action) error {
	const t = contracts.ActionListingAdd
	l := a.(*contracts.ListingAdd)
	info := l.Item.Information

	c := actionerr.NewCollector(t)
	c.Require("item.seller.address", l.Item.Seller.Address)
	c.Require("item.information.title", info.Title)
	c.Require("item.information.shortDescription", info.ShortDescription)
	c.Require("item.information.longDescription", info.LongDescription)
	c.RequireLen("item.information.category", len(info.Category))
	c.Require("item.payment.type", l.Item.Payment.Type)
	c.RequireLen("item.payment.options", len(l.Item.Payment.Options))
	for _, img := range info.Images {
		if img.Hash == "" {
			c.Add(actionerr.MissingParam(t, "item.information.images.hash"))
			continue
		}
		if len(img.Data) > 0 {
			c.Add(checkImageData(t, "item.information.images", img))
		}
	}
	if err := c.Err(); err != nil {
		return err
	}
	return s.verify(ctx, t, "item.seller.signature", l.Item.Seller.Address, l.Item.Seller.Signature,
		factory.ListingTicket(l.Item.Seller.Address, l.Hash))
}

// imageAdd serves both image follow-ups; they share their shape.
func (s *Set) imageAdd(ctx context.Context, a contracts.Action) error {
	var (
		t              = a.Kind()
		target, signer string
		signature      string
		image          contracts.ContentReference
	)
	switch img := a.(type) {
	case *contracts.ListingImageAdd:
		target, signer, signature, image = img.Target, img.Signer, img.Signature, img.Image
	case *contracts.MarketImageAdd:
		target, signer, signature, image = img.Target, img.Signer, img.Signature, img.Image
	default:
		return actionerr.WrongType(contracts.ActionListingImageAdd, a.Kind())
	}

	c := actionerr.NewCollector(t)
	c.Require("target", target)
	c.Require("signer", signer)
	c.Require("image.hash", image.Hash)
	c.RequireLen("image.data", len(image.Data))
	if err := c.Err(); err != nil {
		return err
	}
	if err := checkImageData(t, "image", image); err != nil {
		return err
	}
	return s.verify(ctx, t, "signature", signer, signature, factory.ImageTicket(signer, image.Hash, target))
}

func checkImageData(t contracts.ActionType, field string, image contracts.ContentReference) error {
	computed, err := hashing.HashImageData(image.Data)
	if err != nil {
		return actionerr.InvalidParam(t, field+".data", "%v", err)
	}
	if computed != image.Hash {
		return actionerr.HashMismatch(t, field+".hash", computed, image.Hash)
	}
	return nil
}

func (s *Set) marketAdd(_ context.Context, a contracts.Action) error {
	const t = contracts.ActionMarketAdd
	m := a.(*contracts.MarketAdd)
	c := actionerr.NewCollector(t)
	c.Require("name", m.Name)
	c.Require("marketType", string(m.MarketType))
	c.Require("receiveKey", m.ReceiveKey)
	c.Require("publishAddress", m.PublishAddress)
	if m.MarketType != contracts.MarketTypeMarketplace {
		c.Require("publishKey", m.PublishKey)
	}
	if m.Image != nil && m.Image.Hash == "" {
		c.Add(actionerr.MissingParam(t, "image.hash"))
	}
	if err := c.Err(); err != nil {
		return err
	}
	if m.Image != nil && len(m.Image.Data) > 0 {
		if err := checkImageData(t, "image", *m.Image); err != nil {
			return err
		}
	}
	addrs, err := wallet.DeriveMarketAddresses(m.MarketType, m.ReceiveKey, m.PublishKey)
	if err != nil {
		return actionerr.InvalidParam(t, "keys", "%w", err)
	}
	if addrs.PublishAddress != m.PublishAddress {
		return actionerr.Validation(t, "publishAddress", "keys derive %s, action names %s", addrs.PublishAddress, m.PublishAddress)
	}
	return nil
}

func (s *Set) bid(_ context.Context, a contracts.Action) error {
	const t = contracts.ActionBid
	b := a.(*contracts.Bid)
	ship := b.Buyer.ShippingAddress
	c := actionerr.NewCollector(t)
	c.Require("item", b.Item)
	c.Require("buyer.address", b.Buyer.Address)
	c.Require("buyer.shippingAddress.firstName", ship.FirstName)
	c.Require("buyer.shippingAddress.lastName", ship.LastName)
	c.Require("buyer.shippingAddress.addressLine1", ship.AddressLine1)
	c.Require("buyer.shippingAddress.city", ship.City)
	c.Require("buyer.shippingAddress.zipCode", ship.ZipCode)
	c.Require("buyer.shippingAddress.country", ship.Country)
	return c.Err()
}

func (s *Set) bidAccept(_ context.Context, a contracts.Action) error {
	b := a.(*contracts.BidAccept)
	c := actionerr.NewCollector(b.Kind())
	c.Require("bid", b.Bid)
	c.Require("seller.address", b.Seller.Address)
	return c.Err()
}

// bidChild covers steps whose only required field is the parent bid.
func (s *Set) bidChild(_ context.Context, a contracts.Action) error {
	ch, ok := a.(contracts.Chained)
	if !ok {
		return actionerr.WrongType(contracts.ActionBidReject, a.Kind())
	}
	c := actionerr.NewCollector(a.Kind())
	c.Require("bid", ch.ParentBid())
	return c.Err()
}

func (s *Set) escrow(_ context.Context, a contracts.Action) error {
	var (
		bid    string
		escrow contracts.EscrowData
	)
	switch e := a.(type) {
	case *contracts.EscrowLock:
		bid, escrow = e.Bid, e.Escrow
	case *contracts.EscrowComplete:
		bid, escrow = e.Bid, e.Escrow
	case *contracts.EscrowRelease:
		bid, escrow = e.Bid, e.Escrow
	case *contracts.EscrowRefund:
		bid, escrow = e.Bid, e.Escrow
	default:
		return actionerr.WrongType(contracts.ActionEscrowLock, a.Kind())
	}
	c := actionerr.NewCollector(a.Kind())
	c.Require("bid", bid)
	c.Require("escrow.txid", escrow.TxID)
	return c.Err()
}

func (s *Set) proposalAdd(_ context.Context, a contracts.Action) error {
	const t = contracts.ActionProposalAdd
	p := a.(*contracts.ProposalAdd)
	c := actionerr.NewCollector(t)
	c.Require("submitter", p.Submitter)
	c.Require("title", p.Title)
	if !p.Category.Valid() {
		c.Invalid("category", "unknown proposal category %q", p.Category)
	}
	if (p.Category == contracts.ProposalItemVote || p.Category == contracts.ProposalMarketVote) && p.Target == "" {
		c.Add(actionerr.MissingParam(t, "target"))
	}
	if len(p.Options) < 2 {
		c.Invalid("options", "need at least 2 options, got %d", len(p.Options))
	}
	if err := c.Err(); err != nil {
		return err
	}
	for _, o := range p.Options {
		want, err := factory.OptionHash(p.Hash, o)
		if err != nil {
			return actionerr.InvalidParam(t, "options", "%v", err)
		}
		if want != o.Hash {
			return actionerr.HashMismatch(t, "options.hash", want, o.Hash)
		}
	}
	return nil
}

func (s *Set) vote(ctx context.Context, a contracts.Action) error {
	const t = contracts.ActionVote
	v := a.(*contracts.Vote)
	c := actionerr.NewCollector(t)
	c.Require("proposalHash", v.ProposalHash)
	c.Require("proposalOptionHash", v.ProposalOptionHash)
	c.Require("voter", v.Voter)
	if err := c.Err(); err != nil {
		return err
	}
	return s.verify(ctx, t, "signature", v.Voter, v.Signature, factory.VoteTicket(v))
}

func (s *Set) commentAdd(ctx context.Context, a contracts.Action) error {
	const t = contracts.ActionCommentAdd
	cm := a.(*contracts.CommentAdd)
	c := actionerr.NewCollector(t)
	c.Require("sender", cm.Sender)
	c.Require("receiver", cm.Receiver)
	c.Require("target", cm.Target)
	c.Require("message", cm.Message)
	if !cm.CommentType.Valid() {
		c.Invalid("commentType", "unknown comment type %q", cm.CommentType)
	}
	if n := utf8.RuneCountInString(cm.Message); n > factory.MaxCommentLength {
		c.Invalid("message", "%d characters exceeds %d", n, factory.MaxCommentLength)
	}
	if err := c.Err(); err != nil {
		return err
	}
	return s.verify(ctx, t, "signature", cm.Sender, cm.Signature, factory.CommentTicket(cm))
}
