package hashing

import "github.com/bazaar-mp/project/internal/contracts"

// Listing and market projections omit "type" so that the same keys can be
// produced from templates and stored entities.
var listingKeys = []string{
	"seller", "title", "shortDescription", "longDescription", "category", "location",
	"shippingDestinations", "images", "paymentType", "escrow", "paymentOptions",
}

func listingProjection(name string, paths []string) Projection {
	fields := make([]Field, len(listingKeys))
	for i, key := range listingKeys {
		fields[i] = Field{Key: key, Path: paths[i]}
	}
	return Projection{Name: name, Fields: fields}
}

var (
	ListingAdd = listingProjection("listing-add", []string{
		"item.seller.address",
		"item.information.title",
		"item.information.shortDescription",
		"item.information.longDescription",
		"item.information.category",
		"item.information.location",
		"item.information.shippingDestinations",
		"item.information.images[].hash",
		"item.payment.type",
		"item.payment.escrow",
		"item.payment.options",
	})

	// ListingTemplate is computed over the factory's template input.
	ListingTemplate = listingProjection("listing-template", []string{
		"sellerAddress",
		"title",
		"shortDescription",
		"longDescription",
		"category",
		"location",
		"shippingDestinations",
		"images[].hash",
		"payment.type",
		"payment.escrow",
		"payment.options",
	})

	// ListingEntity is computed over the materialized listing.
	ListingEntity = listingProjection("listing-entity", []string{
		"seller",
		"title",
		"shortDescription",
		"longDescription",
		"category",
		"location",
		"shippingDestinations",
		"images[].hash",
		"payment.type",
		"payment.escrow",
		"payment.options",
	})

	MarketAdd = Projection{Name: "market-add", Fields: []Field{
		{Key: "name", Path: "name"},
		{Key: "description", Path: "description"},
		{Key: "region", Path: "region"},
		{Key: "receiveKey", Path: "receiveKey"},
		{Key: "publishAddress", Path: "publishAddress"},
		{Key: "image", Path: "image.hash"},
	}}

	MarketEntity = Projection{Name: "market-entity", Fields: []Field{
		{Key: "name", Path: "name"},
		{Key: "description", Path: "description"},
		{Key: "region", Path: "region"},
		{Key: "receiveKey", Path: "receiveKey"},
		{Key: "publishAddress", Path: "publishAddress"},
		{Key: "image", Path: "imageHash"},
	}}

	// ImageData identifies image bytes regardless of where they are attached.
	ImageData = Projection{Name: "image-data", Fields: []Field{
		{Key: "data", Path: "data[].data"},
	}}

	imageAdd = []Field{
		{Key: "type", Path: "type"},
		{Key: "image", Path: "image.hash"},
		{Key: "featured", Path: "image.featured"},
		{Key: "target", Path: "target"},
		{Key: "signer", Path: "signer"},
	}
	ListingImageAdd = Projection{Name: "listing-image-add", Fields: imageAdd}
	MarketImageAdd  = Projection{Name: "market-image-add", Fields: imageAdd}

	Bid = Projection{Name: "bid", Fields: []Field{
		{Key: "type", Path: "type"},
		{Key: "item", Path: "item"},
		{Key: "buyer", Path: "buyer"},
		{Key: "generated", Path: "generated"},
	}}

	BidAccept = Projection{Name: "bid-accept", Fields: []Field{
		{Key: "type", Path: "type"},
		{Key: "bid", Path: "bid"},
		{Key: "seller", Path: "seller"},
		{Key: "generated", Path: "generated"},
	}}

	BidReject = Projection{Name: "bid-reject", Fields: []Field{
		{Key: "type", Path: "type"},
		{Key: "bid", Path: "bid"},
		{Key: "reason", Path: "reason"},
		{Key: "generated", Path: "generated"},
	}}

	BidCancel = Projection{Name: "bid-cancel", Fields: []Field{
		{Key: "type", Path: "type"},
		{Key: "bid", Path: "bid"},
		{Key: "generated", Path: "generated"},
	}}

	escrowStep = []Field{
		{Key: "type", Path: "type"},
		{Key: "bid", Path: "bid"},
		{Key: "escrow", Path: "escrow"},
		{Key: "generated", Path: "generated"},
	}
	EscrowLock     = Projection{Name: "escrow-lock", Fields: escrowStep}
	EscrowComplete = Projection{Name: "escrow-complete", Fields: escrowStep}
	EscrowRelease  = Projection{Name: "escrow-release", Fields: escrowStep}
	EscrowRefund   = Projection{Name: "escrow-refund", Fields: escrowStep}

	OrderShip = Projection{Name: "order-ship", Fields: []Field{
		{Key: "type", Path: "type"},
		{Key: "bid", Path: "bid"},
		{Key: "trackingCode", Path: "trackingCode"},
		{Key: "memo", Path: "memo"},
		{Key: "generated", Path: "generated"},
	}}

	proposalKeys = []Field{
		{Key: "submitter", Path: "submitter"},
		{Key: "title", Path: "title"},
		{Key: "description", Path: "description"},
		{Key: "category", Path: "category"},
		{Key: "target", Path: "target"},
		{Key: "options", Path: "options[].description"},
		{Key: "generated", Path: "generated"},
	}
	ProposalAdd    = Projection{Name: "proposal-add", Fields: proposalKeys}
	ProposalEntity = Projection{Name: "proposal-entity", Fields: proposalKeys}

	ProposalOption = Projection{Name: "proposal-option", Fields: []Field{
		{Key: "proposalHash", Path: "proposalHash"},
		{Key: "optionId", Path: "optionId"},
		{Key: "description", Path: "description"},
	}}

	Vote = Projection{Name: "vote", Fields: []Field{
		{Key: "type", Path: "type"},
		{Key: "proposalHash", Path: "proposalHash"},
		{Key: "proposalOptionHash", Path: "proposalOptionHash"},
		{Key: "voter", Path: "voter"},
		{Key: "generated", Path: "generated"},
	}}

	CommentAdd = Projection{Name: "comment-add", Fields: []Field{
		{Key: "type", Path: "type"},
		{Key: "sender", Path: "sender"},
		{Key: "receiver", Path: "receiver"},
		{Key: "commentType", Path: "commentType"},
		{Key: "target", Path: "target"},
		{Key: "parentCommentHash", Path: "parentCommentHash"},
		{Key: "message", Path: "message"},
		{Key: "generated", Path: "generated"},
	}}
)

// ForAction returns the projection that defines an action's own hash.
func ForAction(t contracts.ActionType) (Projection, bool) {
	p, ok := actionProjections[t]
	return p, ok
}

var actionProjections = map[contracts.ActionType]Projection{
	contracts.ActionListingAdd:      ListingAdd,
	contracts.ActionListingImageAdd: ListingImageAdd,
	contracts.ActionMarketAdd:       MarketAdd,
	contracts.ActionMarketImageAdd:  MarketImageAdd,
	contracts.ActionBid:             Bid,
	contracts.ActionBidAccept:       BidAccept,
	contracts.ActionBidReject:       BidReject,
	contracts.ActionBidCancel:       BidCancel,
	contracts.ActionEscrowLock:      EscrowLock,
	contracts.ActionEscrowComplete:  EscrowComplete,
	contracts.ActionOrderShip:       OrderShip,
	contracts.ActionEscrowRelease:   EscrowRelease,
	contracts.ActionEscrowRefund:    EscrowRefund,
	contracts.ActionProposalAdd:     ProposalAdd,
	contracts.ActionVote:            Vote,
	contracts.ActionCommentAdd:      CommentAdd,
}

// HashAction computes the self-describing hash of a.
func HashAction(a contracts.Action) (string, error) {
	p, ok := ForAction(a.Kind())
	if !ok {
		return "", ErrEmptyProjection
	}
	return Hash(a, p)
}

// HashImageData returns the content hash of image bytes carried in refs.
func HashImageData(data []contracts.DSN) (string, error) {
	return Hash(contracts.ContentReference{Data: data}, ImageData)
}
