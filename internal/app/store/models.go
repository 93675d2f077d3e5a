package store

import (
	"encoding/json"
	"time"

	"github.com/bazaar-mp/project/internal/contracts"
)

// Listing is a materialized LISTING_ADD. Its JSON form feeds the
// listing-entity hash projection.
type Listing struct {
	Hash                 string                       `json:"hash"`
	Seller               string                       `json:"seller"`
	Signature            string                       `json:"signature"`
	Title                string                       `json:"title"`
	ShortDescription     string                       `json:"shortDescription"`
	LongDescription      string                       `json:"longDescription"`
	Category             []string                     `json:"category"`
	Location             *contracts.Location          `json:"location,omitempty"`
	ShippingDestinations []string                     `json:"shippingDestinations,omitempty"`
	Images               []contracts.ContentReference `json:"images,omitempty"`
	Payment              contracts.PaymentInformation `json:"payment"`
	Market               string                       `json:"market"`
	MsgID                string                       `json:"msgid"`
	Generated            int64                        `json:"generated"`
	ExpiredAt            time.Time                    `json:"expiredAt"`
	CreatedAt            time.Time                    `json:"createdAt"`
	UpdatedAt            time.Time                    `json:"updatedAt"`
}

// Market is a materialized MARKET_ADD. Its JSON form feeds the market-entity
// hash projection.
type Market struct {
	Hash           string                      `json:"hash"`
	Name           string                      `json:"name"`
	Description    string                      `json:"description,omitempty"`
	Type           contracts.MarketType        `json:"marketType"`
	Region         string                      `json:"region,omitempty"`
	ReceiveKey     string                      `json:"receiveKey"`
	ReceiveAddress string                      `json:"receiveAddress"`
	PublishKey     string                      `json:"publishKey"`
	PublishAddress string                      `json:"publishAddress"`
	ImageHash      string                      `json:"imageHash,omitempty"`
	Image          *contracts.ContentReference `json:"image,omitempty"`
	Publisher      string                      `json:"publisher"`
	MsgID          string                      `json:"msgid"`
	Generated      int64                       `json:"generated"`
	ExpiredAt      time.Time                   `json:"expiredAt"`
	CreatedAt      time.Time                   `json:"createdAt"`
	UpdatedAt      time.Time                   `json:"updatedAt"`
}

// BidRecord is one step of a bid chain. The root BID has an empty Parent and
// carries the order status; children point at the root's hash.
type BidRecord struct {
	Hash        string                `json:"hash"`
	Type        contracts.ActionType  `json:"type"`
	Parent      string                `json:"parent,omitempty"`
	ListingHash string                `json:"listingHash,omitempty"`
	Actor       string                `json:"actor"`
	OrderStatus contracts.OrderStatus `json:"orderStatus,omitempty"`
	Generated   int64                 `json:"generated"`
	Action      json.RawMessage       `json:"action"`
	MsgID       string                `json:"msgid"`
	CreatedAt   time.Time             `json:"createdAt"`
}

// Proposal is a materialized PROPOSAL_ADD. Its JSON form feeds the
// proposal-entity hash projection.
type Proposal struct {
	Hash        string                     `json:"hash"`
	Submitter   string                     `json:"submitter"`
	Title       string                     `json:"title"`
	Description string                     `json:"description"`
	Category    contracts.ProposalCategory `json:"category"`
	Target      string                     `json:"target,omitempty"`
	Options     []contracts.ProposalOption `json:"options"`
	Generated   int64                      `json:"generated"`
	MsgID       string                     `json:"msgid"`
	ExpiredAt   time.Time                  `json:"expiredAt"`
	CreatedAt   time.Time                  `json:"createdAt"`
}

type Vote struct {
	Hash               string    `json:"hash"`
	ProposalHash       string    `json:"proposalHash"`
	ProposalOptionHash string    `json:"proposalOptionHash"`
	Voter              string    `json:"voter"`
	Signature          string    `json:"signature"`
	Generated          int64     `json:"generated"`
	MsgID              string    `json:"msgid"`
	CreatedAt          time.Time `json:"createdAt"`
}

type Comment struct {
	Hash              string                `json:"hash"`
	Sender            string                `json:"sender"`
	Receiver          string                `json:"receiver"`
	Type              contracts.CommentType `json:"commentType"`
	Target            string                `json:"target"`
	ParentCommentHash string                `json:"parentCommentHash,omitempty"`
	Message           string                `json:"message"`
	Signature         string                `json:"signature"`
	Generated         int64                 `json:"generated"`
	MsgID             string                `json:"msgid"`
	ExpiredAt         time.Time             `json:"expiredAt"`
	CreatedAt         time.Time             `json:"createdAt"`
}
