package contracts

import "strings"

// KVS is a free-form key/value pair carried in Base.Objects.
type KVS struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// LocalObjectPrefix marks Objects entries that are local bookkeeping and must
// never leave the process.
const LocalObjectPrefix = "_"

// Base holds the fields shared by every action variant.
type Base struct {
	Type      ActionType `json:"type"`
	Hash      string     `json:"hash"`
	Generated int64      `json:"generated"`
	Objects   []KVS      `json:"objects,omitempty"`
}

func (b *Base) Header() *Base { return b }

func (b *Base) sealed() {}

// Action is the closed union of action variants. Kind returns the type the
// concrete struct represents, independently of the decoded Type tag.
type Action interface {
	Kind() ActionType
	Header() *Base
	sealed()
}

// Chained is implemented by actions that extend a bid.
type Chained interface {
	Action
	ParentBid() string
}

// MergeObjects appends extension pairs, replacing values of existing keys.
func MergeObjects(a Action, extra []KVS) {
	h := a.Header()
	for _, kv := range extra {
		replaced := false
		for i := range h.Objects {
			if h.Objects[i].Key == kv.Key {
				h.Objects[i].Value = kv.Value
				replaced = true
				break
			}
		}
		if !replaced {
			h.Objects = append(h.Objects, kv)
		}
	}
}

// StripLocalObjects removes local bookkeeping entries before transmission.
func StripLocalObjects(a Action) {
	h := a.Header()
	if len(h.Objects) == 0 {
		return
	}
	kept := h.Objects[:0]
	for _, kv := range h.Objects {
		if strings.HasPrefix(kv.Key, LocalObjectPrefix) {
			continue
		}
		kept = append(kept, kv)
	}
	if len(kept) == 0 {
		kept = nil
	}
	h.Objects = kept
}

// ContentReference points at a piece of content by hash. Data is only present
// when the bytes travel with the reference.
type ContentReference struct {
	Hash     string `json:"hash"`
	Featured bool   `json:"featured"`
	Data     []DSN  `json:"data,omitempty"`
}

// DSN describes where and how the referenced bytes are encoded.
type DSN struct {
	Protocol string `json:"protocol"`
	Encoding string `json:"encoding"`
	DataID   string `json:"dataId,omitempty"`
	Data     string `json:"data,omitempty"`
}

const (
	ProtocolLocal  = "LOCAL"
	EncodingBase64 = "BASE64"
)

type ListingAdd struct {
	Base
	Item ListingItem `json:"item"`
}

func (*ListingAdd) Kind() ActionType { return ActionListingAdd }

type ListingItem struct {
	Seller      Seller             `json:"seller"`
	Information ItemInformation    `json:"information"`
	Payment     PaymentInformation `json:"payment"`
}

type Seller struct {
	Address   string `json:"address"`
	Signature string `json:"signature"`
}

type ItemInformation struct {
	Title                string             `json:"title"`
	ShortDescription     string             `json:"shortDescription"`
	LongDescription      string             `json:"longDescription"`
	Category             []string           `json:"category"`
	Location             *Location          `json:"location,omitempty"`
	ShippingDestinations []string           `json:"shippingDestinations,omitempty"`
	Images               []ContentReference `json:"images,omitempty"`
}

type Location struct {
	Country string `json:"country"`
	Address string `json:"address,omitempty"`
}

type PaymentInformation struct {
	Type    string          `json:"type"`
	Escrow  *EscrowConfig   `json:"escrow,omitempty"`
	Options []PaymentOption `json:"options"`
}

type EscrowConfig struct {
	Type          string      `json:"type"`
	Ratio         EscrowRatio `json:"ratio"`
	SecondsToLock int64       `json:"secondsToLock,omitempty"`
}

type EscrowRatio struct {
	Buyer  int `json:"buyer"`
	Seller int `json:"seller"`
}

type PaymentOption struct {
	Address       string        `json:"address,omitempty"`
	Currency      string        `json:"currency"`
	BasePrice     int64         `json:"basePrice"`
	ShippingPrice ShippingPrice `json:"shippingPrice"`
}

type ShippingPrice struct {
	Domestic      int64 `json:"domestic"`
	International int64 `json:"international"`
}

type ListingImageAdd struct {
	Base
	Target    string           `json:"target"`
	Signer    string           `json:"signer"`
	Signature string           `json:"signature"`
	Image     ContentReference `json:"image"`
}

func (*ListingImageAdd) Kind() ActionType { return ActionListingImageAdd }

// MarketAdd announces a market. PublishAddress is derived from the keys and
// is part of the hash; the admin publish key is replaced by its public key
// before sending, which leaves the derived address unchanged.
type MarketAdd struct {
	Base
	Name           string            `json:"name"`
	Description    string            `json:"description,omitempty"`
	MarketType     MarketType        `json:"marketType"`
	Region         string            `json:"region,omitempty"`
	ReceiveKey     string            `json:"receiveKey"`
	PublishKey     string            `json:"publishKey"`
	PublishAddress string            `json:"publishAddress"`
	Image          *ContentReference `json:"image,omitempty"`
}

func (*MarketAdd) Kind() ActionType { return ActionMarketAdd }

type MarketImageAdd struct {
	Base
	Target    string           `json:"target"`
	Signer    string           `json:"signer"`
	Signature string           `json:"signature"`
	Image     ContentReference `json:"image"`
}

func (*MarketImageAdd) Kind() ActionType { return ActionMarketImageAdd }

type Bid struct {
	Base
	Item  string    `json:"item"`
	Buyer BuyerData `json:"buyer"`
}

func (*Bid) Kind() ActionType { return ActionBid }

type BuyerData struct {
	Address         string          `json:"address"`
	PubKey          string          `json:"pubKey,omitempty"`
	ChangeAddress   string          `json:"changeAddress,omitempty"`
	ShippingAddress ShippingAddress `json:"shippingAddress"`
}

type ShippingAddress struct {
	FirstName    string `json:"firstName"`
	LastName     string `json:"lastName"`
	AddressLine1 string `json:"addressLine1"`
	AddressLine2 string `json:"addressLine2,omitempty"`
	City         string `json:"city"`
	State        string `json:"state,omitempty"`
	ZipCode      string `json:"zipCode"`
	Country      string `json:"country"`
}

type SellerData struct {
	Address       string `json:"address"`
	PubKey        string `json:"pubKey,omitempty"`
	ChangeAddress string `json:"changeAddress,omitempty"`
}

type BidAccept struct {
	Base
	Bid    string     `json:"bid"`
	Seller SellerData `json:"seller"`
}

func (*BidAccept) Kind() ActionType { return ActionBidAccept }
func (a *BidAccept) ParentBid() string { return a.Bid }

type BidReject struct {
	Base
	Bid    string `json:"bid"`
	Reason string `json:"reason,omitempty"`
}

func (*BidReject) Kind() ActionType { return ActionBidReject }
func (a *BidReject) ParentBid() string { return a.Bid }

type BidCancel struct {
	Base
	Bid string `json:"bid"`
}

func (*BidCancel) Kind() ActionType { return ActionBidCancel }
func (a *BidCancel) ParentBid() string { return a.Bid }

// EscrowData carries the escrow transaction material for a flow step.
type EscrowData struct {
	TxID       string   `json:"txid,omitempty"`
	Signatures []string `json:"signatures,omitempty"`
	Memo       string   `json:"memo,omitempty"`
}

type EscrowLock struct {
	Base
	Bid    string     `json:"bid"`
	Escrow EscrowData `json:"escrow"`
}

func (*EscrowLock) Kind() ActionType { return ActionEscrowLock }
func (a *EscrowLock) ParentBid() string { return a.Bid }

type EscrowComplete struct {
	Base
	Bid    string     `json:"bid"`
	Escrow EscrowData `json:"escrow"`
}

func (*EscrowComplete) Kind() ActionType { return ActionEscrowComplete }
func (a *EscrowComplete) ParentBid() string { return a.Bid }

type OrderShip struct {
	Base
	Bid          string `json:"bid"`
	TrackingCode string `json:"trackingCode,omitempty"`
	Memo         string `json:"memo,omitempty"`
}

func (*OrderShip) Kind() ActionType { return ActionOrderShip }
func (a *OrderShip) ParentBid() string { return a.Bid }

type EscrowRelease struct {
	Base
	Bid    string     `json:"bid"`
	Escrow EscrowData `json:"escrow"`
}

func (*EscrowRelease) Kind() ActionType { return ActionEscrowRelease }
func (a *EscrowRelease) ParentBid() string { return a.Bid }

type EscrowRefund struct {
	Base
	Bid    string     `json:"bid"`
	Escrow EscrowData `json:"escrow"`
}

func (*EscrowRefund) Kind() ActionType { return ActionEscrowRefund }
func (a *EscrowRefund) ParentBid() string { return a.Bid }

type ProposalAdd struct {
	Base
	Submitter   string           `json:"submitter"`
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Category    ProposalCategory `json:"category"`
	Target      string           `json:"target,omitempty"`
	Options     []ProposalOption `json:"options"`
}

func (*ProposalAdd) Kind() ActionType { return ActionProposalAdd }

type ProposalOption struct {
	OptionID    int    `json:"optionId"`
	Description string `json:"description"`
	Hash        string `json:"hash"`
}

type Vote struct {
	Base
	ProposalHash       string `json:"proposalHash"`
	ProposalOptionHash string `json:"proposalOptionHash"`
	Voter              string `json:"voter"`
	Signature          string `json:"signature"`
}

func (*Vote) Kind() ActionType { return ActionVote }

type CommentAdd struct {
	Base
	Sender            string      `json:"sender"`
	Receiver          string      `json:"receiver"`
	CommentType       CommentType `json:"commentType"`
	Target            string      `json:"target"`
	ParentCommentHash string      `json:"parentCommentHash,omitempty"`
	Message           string      `json:"message"`
	Signature         string      `json:"signature"`
}

func (*CommentAdd) Kind() ActionType { return ActionCommentAdd }
