package factory

import (
	"context"

	"github.com/bazaar-mp/project/internal/actionerr"
	"github.com/bazaar-mp/project/internal/contracts"
)

func (r *Registry) bid(_ context.Context, _ string, p Params) (contracts.Action, error) {
	const t = contracts.ActionBid
	params, err := paramsAs[BidParams](t, p)
	if err != nil {
		return nil, err
	}
	c := actionerr.NewCollector(t)
	c.Require("listingHash", params.ListingHash)
	c.Require("buyer.address", params.Buyer.Address)
	ship := params.Buyer.ShippingAddress
	c.Require("buyer.shippingAddress.firstName", ship.FirstName)
	c.Require("buyer.shippingAddress.lastName", ship.LastName)
	c.Require("buyer.shippingAddress.addressLine1", ship.AddressLine1)
	c.Require("buyer.shippingAddress.city", ship.City)
	c.Require("buyer.shippingAddress.zipCode", ship.ZipCode)
	c.Require("buyer.shippingAddress.country", ship.Country)
	if err := c.Err(); err != nil {
		return nil, err
	}
	a := &contracts.Bid{
		Base:  contracts.Base{Type: t, Generated: r.generated()},
		Item:  params.ListingHash,
		Buyer: params.Buyer,
	}
	return stamped(a)
}

func (r *Registry) bidAccept(_ context.Context, _ string, p Params) (contracts.Action, error) {
	const t = contracts.ActionBidAccept
	params, err := paramsAs[BidAcceptParams](t, p)
	if err != nil {
		return nil, err
	}
	c := actionerr.NewCollector(t)
	c.Require("bid", params.Bid)
	c.Require("seller.address", params.Seller.Address)
	if err := c.Err(); err != nil {
		return nil, err
	}
	a := &contracts.BidAccept{
		Base:   contracts.Base{Type: t, Generated: r.generated()},
		Bid:    params.Bid,
		Seller: params.Seller,
	}
	return stamped(a)
}

func (r *Registry) bidReject(_ context.Context, _ string, p Params) (contracts.Action, error) {
	const t = contracts.ActionBidReject
	params, err := paramsAs[BidRejectParams](t, p)
	if err != nil {
		return nil, err
	}
	if params.Bid == "" {
		return nil, actionerr.MissingParam(t, "bid")
	}
	a := &contracts.BidReject{
		Base:   contracts.Base{Type: t, Generated: r.generated()},
		Bid:    params.Bid,
		Reason: params.Reason,
	}
	return stamped(a)
}

func (r *Registry) bidCancel(_ context.Context, _ string, p Params) (contracts.Action, error) {
	const t = contracts.ActionBidCancel
	params, err := paramsAs[BidCancelParams](t, p)
	if err != nil {
		return nil, err
	}
	if params.Bid == "" {
		return nil, actionerr.MissingParam(t, "bid")
	}
	a := &contracts.BidCancel{
		Base: contracts.Base{Type: t, Generated: r.generated()},
		Bid:  params.Bid,
	}
	return stamped(a)
}

func requireEscrow(t contracts.ActionType, bid string, escrow contracts.EscrowData) error {
	c := actionerr.NewCollector(t)
	c.Require("bid", bid)
	c.Require("escrow.txid", escrow.TxID)
	return c.Err()
}

func (r *Registry) escrowLock(_ context.Context, _ string, p Params) (contracts.Action, error) {
	const t = contracts.ActionEscrowLock
	params, err := paramsAs[EscrowLockParams](t, p)
	if err != nil {
		return nil, err
	}
	if err := requireEscrow(t, params.Bid, params.Escrow); err != nil {
		return nil, err
	}
	a := &contracts.EscrowLock{
		Base:   contracts.Base{Type: t, Generated: r.generated()},
		Bid:    params.Bid,
		Escrow: params.Escrow,
	}
	return stamped(a)
}

func (r *Registry) escrowComplete(_ context.Context, _ string, p Params) (contracts.Action, error) {
	const t = contracts.ActionEscrowComplete
	params, err := paramsAs[EscrowCompleteParams](t, p)
	if err != nil {
		return nil, err
	}
	if err := requireEscrow(t, params.Bid, params.Escrow); err != nil {
		return nil, err
	}
	a := &contracts.EscrowComplete{
		Base:   contracts.Base{Type: t, Generated: r.generated()},
		Bid:    params.Bid,
		Escrow: params.Escrow,
	}
	return stamped(a)
}

func (r *Registry) escrowRelease(_ context.Context, _ string, p Params) (contracts.Action, error) {
	const t = contracts.ActionEscrowRelease
	params, err := paramsAs[EscrowReleaseParams](t, p)
	if err != nil {
		return nil, err
	}
	if err := requireEscrow(t, params.Bid, params.Escrow); err != nil {
		return nil, err
	}
	a := &contracts.EscrowRelease{
		Base:   contracts.Base{Type: t, Generated: r.generated()},
		Bid:    params.Bid,
		Escrow: params.Escrow,
	}
	return stamped(a)
}

func (r *Registry) escrowRefund(_ context.Context, _ string, p Params) (contracts.Action, error) {
	const t = contracts.ActionEscrowRefund
	params, err := paramsAs[EscrowRefundParams](t, p)
	if err != nil {
		return nil, err
	}
	if err := requireEscrow(t, params.Bid, params.Escrow); err != nil {
		return nil, err
	}
	a := &contracts.EscrowRefund{
		Base:   contracts.Base{Type: t, Generated: r.generated()},
		Bid:    params.Bid,
		Escrow: params.Escrow,
	}
	return stamped(a)
}

func (r *Registry) orderShip(_ context.Context, _ string, p Params) (contracts.Action, error) {
	const t = contracts.ActionOrderShip
	params, err := paramsAs[OrderShipParams](t, p)
	if err != nil {
		return nil, err
	}
	if params.Bid == "" {
		return nil, actionerr.MissingParam(t, "bid")
	}
	a := &contracts.OrderShip{
		Base:         contracts.Base{Type: t, Generated: r.generated()},
		Bid:          params.Bid,
		TrackingCode: params.TrackingCode,
		Memo:         params.Memo,
	}
	return stamped(a)
}
