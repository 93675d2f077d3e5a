package factory

import "github.com/bazaar-mp/project/internal/contracts"

// Params is the closed set of request parameter types, one per action type.
type Params interface {
	Kind() contracts.ActionType
	params()
}

// ListingTemplate is the seller's draft of a listing. Its JSON form feeds the
// listing-template hash projection, which yields the same hash as the built
// LISTING_ADD.
type ListingTemplate struct {
	Hash                 string                       `json:"hash,omitempty"`
	SellerAddress        string                       `json:"sellerAddress"`
	Title                string                       `json:"title"`
	ShortDescription     string                       `json:"shortDescription"`
	LongDescription      string                       `json:"longDescription"`
	Category             []string                     `json:"category"`
	Location             *contracts.Location          `json:"location,omitempty"`
	ShippingDestinations []string                     `json:"shippingDestinations,omitempty"`
	Images               []contracts.ContentReference `json:"images,omitempty"`
	Payment              contracts.PaymentInformation `json:"payment"`
}

type ListingAddParams struct {
	Template ListingTemplate `json:"template"`
	// WithData embeds image bytes in the listing instead of deferring them
	// to LISTING_IMAGE_ADD follow-ups.
	WithData bool `json:"withData,omitempty"`
}

type ListingImageAddParams struct {
	Target string                     `json:"target"`
	Signer string                     `json:"signer"`
	Image  contracts.ContentReference `json:"image"`
}

type MarketAddParams struct {
	Hash        string                      `json:"hash,omitempty"`
	Name        string                      `json:"name"`
	Description string                      `json:"description,omitempty"`
	MarketType  contracts.MarketType        `json:"marketType"`
	Region      string                      `json:"region,omitempty"`
	ReceiveKey  string                      `json:"receiveKey"`
	PublishKey  string                      `json:"publishKey,omitempty"`
	Image       *contracts.ContentReference `json:"image,omitempty"`
	WithData    bool                        `json:"withData,omitempty"`
}

type MarketImageAddParams struct {
	Target string                     `json:"target"`
	Signer string                     `json:"signer"`
	Image  contracts.ContentReference `json:"image"`
}

type BidParams struct {
	ListingHash string              `json:"listingHash"`
	Buyer       contracts.BuyerData `json:"buyer"`
}

type BidAcceptParams struct {
	Bid    string               `json:"bid"`
	Seller contracts.SellerData `json:"seller"`
}

type BidRejectParams struct {
	Bid    string `json:"bid"`
	Reason string `json:"reason,omitempty"`
}

type BidCancelParams struct {
	Bid string `json:"bid"`
}

type EscrowLockParams struct {
	Bid    string               `json:"bid"`
	Escrow contracts.EscrowData `json:"escrow"`
}

type EscrowCompleteParams struct {
	Bid    string               `json:"bid"`
	Escrow contracts.EscrowData `json:"escrow"`
}

type EscrowReleaseParams struct {
	Bid    string               `json:"bid"`
	Escrow contracts.EscrowData `json:"escrow"`
}

type EscrowRefundParams struct {
	Bid    string               `json:"bid"`
	Escrow contracts.EscrowData `json:"escrow"`
}

type OrderShipParams struct {
	Bid          string `json:"bid"`
	TrackingCode string `json:"trackingCode,omitempty"`
	Memo         string `json:"memo,omitempty"`
}

type ProposalAddParams struct {
	Submitter   string                     `json:"submitter"`
	Title       string                     `json:"title"`
	Description string                     `json:"description"`
	Category    contracts.ProposalCategory `json:"category"`
	Target      string                     `json:"target,omitempty"`
	Options     []string                   `json:"options"`
}

type VoteParams struct {
	ProposalHash       string `json:"proposalHash"`
	ProposalOptionHash string `json:"proposalOptionHash"`
	Voter              string `json:"voter"`
}

type CommentAddParams struct {
	Sender            string                `json:"sender"`
	Receiver          string                `json:"receiver"`
	Type              contracts.CommentType `json:"commentType"`
	Target            string                `json:"target"`
	ParentCommentHash string                `json:"parentCommentHash,omitempty"`
	Message           string                `json:"message"`
}

func (ListingAddParams) Kind() contracts.ActionType      { return contracts.ActionListingAdd }
func (ListingImageAddParams) Kind() contracts.ActionType { return contracts.ActionListingImageAdd }
func (MarketAddParams) Kind() contracts.ActionType       { return contracts.ActionMarketAdd }
func (MarketImageAddParams) Kind() contracts.ActionType  { return contracts.ActionMarketImageAdd }
func (BidParams) Kind() contracts.ActionType             { return contracts.ActionBid }
func (BidAcceptParams) Kind() contracts.ActionType       { return contracts.ActionBidAccept }
func (BidRejectParams) Kind() contracts.ActionType       { return contracts.ActionBidReject }
func (BidCancelParams) Kind() contracts.ActionType       { return contracts.ActionBidCancel }
func (EscrowLockParams) Kind() contracts.ActionType      { return contracts.ActionEscrowLock }
func (EscrowCompleteParams) Kind() contracts.ActionType  { return contracts.ActionEscrowComplete }
func (EscrowReleaseParams) Kind() contracts.ActionType   { return contracts.ActionEscrowRelease }
func (EscrowRefundParams) Kind() contracts.ActionType    { return contracts.ActionEscrowRefund }
func (OrderShipParams) Kind() contracts.ActionType       { return contracts.ActionOrderShip }
func (ProposalAddParams) Kind() contracts.ActionType     { return contracts.ActionProposalAdd }
func (VoteParams) Kind() contracts.ActionType            { return contracts.ActionVote }
func (CommentAddParams) Kind() contracts.ActionType      { return contracts.ActionCommentAdd }

func (ListingAddParams) params()      {}
func (ListingImageAddParams) params() {}
func (MarketAddParams) params()       {}
func (MarketImageAddParams) params()  {}
func (BidParams) params()             {}
func (BidAcceptParams) params()       {}
func (BidRejectParams) params()       {}
func (BidCancelParams) params()       {}
func (EscrowLockParams) params()      {}
func (EscrowCompleteParams) params()  {}
func (EscrowReleaseParams) params()   {}
func (EscrowRefundParams) params()    {}
func (OrderShipParams) params()       {}
func (ProposalAddParams) params()     {}
func (VoteParams) params()            {}
func (CommentAddParams) params()      {}

// NewParams returns an empty params value for t, ready for decoding.
func NewParams(t contracts.ActionType) (Params, bool) {
	switch t {
	case contracts.ActionListingAdd:
		return &ListingAddParams{}, true
	case contracts.ActionListingImageAdd:
		return &ListingImageAddParams{}, true
	case contracts.ActionMarketAdd:
		return &MarketAddParams{}, true
	case contracts.ActionMarketImageAdd:
		return &MarketImageAddParams{}, true
	case contracts.ActionBid:
		return &BidParams{}, true
	case contracts.ActionBidAccept:
		return &BidAcceptParams{}, true
	case contracts.ActionBidReject:
		return &BidRejectParams{}, true
	case contracts.ActionBidCancel:
		return &BidCancelParams{}, true
	case contracts.ActionEscrowLock:
		return &EscrowLockParams{}, true
	case contracts.ActionEscrowComplete:
		return &EscrowCompleteParams{}, true
	case contracts.ActionEscrowRelease:
		return &EscrowReleaseParams{}, true
	case contracts.ActionEscrowRefund:
		return &EscrowRefundParams{}, true
	case contracts.ActionOrderShip:
		return &OrderShipParams{}, true
	case contracts.ActionProposalAdd:
		return &ProposalAddParams{}, true
	case contracts.ActionVote:
		return &VoteParams{}, true
	case contracts.ActionCommentAdd:
		return &CommentAddParams{}, true
	}
	return nil, false
}
