// Package store persists transport records and the domain entities that
// actions materialize into. Every create is keyed by content hash so a
// repeated delivery never produces a second entity.
package store

import (
	"context"
	"errors"

	"github.com/bazaar-mp/project/internal/contracts"
)

var ErrNotFound = errors.New("not found")

type TransportRecords interface {
	// CreateRecord stores r unless a record for the same message id and
	// direction exists; created reports which happened.
	CreateRecord(ctx context.Context, r contracts.TransportRecord) (created bool, err error)
	FindRecord(ctx context.Context, msgID string, dir contracts.Direction) (contracts.TransportRecord, bool, error)
	// UpdateStatus moves a record to status. A PROCESSED record is left as is.
	UpdateStatus(ctx context.Context, msgID string, dir contracts.Direction, status contracts.MessageStatus) error
}

type Listings interface {
	// SaveListing creates the listing, or refreshes timing metadata when a
	// listing with the same hash exists.
	SaveListing(ctx context.Context, l Listing) (created bool, err error)
	FindListing(ctx context.Context, hash string) (Listing, bool, error)
	// AttachListingImage stores image data on the listing image with the same
	// hash. attached is false when the listing does not reference the image.
	AttachListingImage(ctx context.Context, listingHash string, image contracts.ContentReference) (attached bool, err error)
}

type Markets interface {
	SaveMarket(ctx context.Context, m Market) (created bool, err error)
	FindMarket(ctx context.Context, hash string) (Market, bool, error)
	FindMarketByReceiveAddress(ctx context.Context, addr string) (Market, bool, error)
	AttachMarketImage(ctx context.Context, marketHash string, image contracts.ContentReference) (attached bool, err error)
}

type Bids interface {
	SaveBid(ctx context.Context, b BidRecord) (created bool, err error)
	FindBid(ctx context.Context, hash string) (BidRecord, bool, error)
	// FindChildren lists steps of the chain rooted at parent with the given
	// type, oldest first.
	FindChildren(ctx context.Context, parent string, t contracts.ActionType) ([]BidRecord, error)
	// SetOrderStatus moves a bid to status if that advances the order, and
	// reports whether it did.
	SetOrderStatus(ctx context.Context, bidHash string, status contracts.OrderStatus) (applied bool, err error)
}

type Proposals interface {
	SaveProposal(ctx context.Context, p Proposal) (created bool, err error)
	FindProposal(ctx context.Context, hash string) (Proposal, bool, error)
}

type Votes interface {
	// SaveVote keeps the newest vote per voter and proposal. applied is false
	// when an equal or newer vote is already stored.
	SaveVote(ctx context.Context, v Vote) (applied bool, err error)
	FindVote(ctx context.Context, proposalHash, voter string) (Vote, bool, error)
	CountVotes(ctx context.Context, proposalHash string) (map[string]int, error)
}

type Comments interface {
	SaveComment(ctx context.Context, c Comment) (created bool, err error)
	FindComment(ctx context.Context, hash string) (Comment, bool, error)
}

type Store interface {
	TransportRecords
	Listings
	Markets
	Bids
	Proposals
	Votes
	Comments
}

func attachImage(images []contracts.ContentReference, image contracts.ContentReference) bool {
	for i := range images {
		if images[i].Hash == image.Hash {
			images[i].Data = image.Data
			images[i].Featured = image.Featured
			return true
		}
	}
	return false
}
