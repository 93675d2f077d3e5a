package contracts

import "time"

// ActionType is the discriminant carried in every action's "type" field.
type ActionType string

const (
	ActionListingAdd      ActionType = "LISTING_ADD"
	ActionListingImageAdd ActionType = "LISTING_IMAGE_ADD"
	ActionMarketAdd       ActionType = "MARKET_ADD"
	ActionMarketImageAdd  ActionType = "MARKET_IMAGE_ADD"
	ActionBid             ActionType = "BID"
	ActionBidAccept       ActionType = "BID_ACCEPT"
	ActionBidReject       ActionType = "BID_REJECT"
	ActionBidCancel       ActionType = "BID_CANCEL"
	ActionEscrowLock      ActionType = "ESCROW_LOCK"
	ActionEscrowComplete  ActionType = "ESCROW_COMPLETE"
	ActionOrderShip       ActionType = "ORDER_SHIP"
	ActionEscrowRelease   ActionType = "ESCROW_RELEASE"
	ActionEscrowRefund    ActionType = "ESCROW_REFUND"
	ActionProposalAdd     ActionType = "PROPOSAL_ADD"
	ActionVote            ActionType = "VOTE"
	ActionCommentAdd      ActionType = "COMMENT_ADD"
)

// ActionTypes is the closed set of supported action kinds.
var ActionTypes = []ActionType{
	ActionListingAdd,
	ActionListingImageAdd,
	ActionMarketAdd,
	ActionMarketImageAdd,
	ActionBid,
	ActionBidAccept,
	ActionBidReject,
	ActionBidCancel,
	ActionEscrowLock,
	ActionEscrowComplete,
	ActionOrderShip,
	ActionEscrowRelease,
	ActionEscrowRefund,
	ActionProposalAdd,
	ActionVote,
	ActionCommentAdd,
}

func (t ActionType) Valid() bool {
	for _, known := range ActionTypes {
		if t == known {
			return true
		}
	}
	return false
}

// SizeClass selects the byte budget and fee rules applied to a message.
type SizeClass string

const (
	SizeFree SizeClass = "FREE"
	SizePaid SizeClass = "PAID"
)

// SizeClassOf is the static per-type size classification.
func SizeClassOf(t ActionType) SizeClass {
	switch t {
	case ActionListingAdd, ActionMarketAdd:
		return SizePaid
	default:
		return SizeFree
	}
}

type Direction string

const (
	DirectionOutgoing Direction = "OUTGOING"
	DirectionIncoming Direction = "INCOMING"
)

type MessageStatus string

const (
	StatusNew              MessageStatus = "NEW"
	StatusSent             MessageStatus = "SENT"
	StatusProcessing       MessageStatus = "PROCESSING"
	StatusWaiting          MessageStatus = "WAITING"
	StatusProcessed        MessageStatus = "PROCESSED"
	StatusProcessingFailed MessageStatus = "PROCESSING_FAILED"
	StatusValidationFailed MessageStatus = "VALIDATION_FAILED"
	StatusIgnored          MessageStatus = "IGNORED"
)

// Final reports whether no further status transition is allowed.
func (s MessageStatus) Final() bool {
	return s == StatusProcessed
}

type MarketType string

const (
	MarketTypeMarketplace     MarketType = "MARKETPLACE"
	MarketTypeStorefront      MarketType = "STOREFRONT"
	MarketTypeStorefrontAdmin MarketType = "STOREFRONT_ADMIN"
)

type CommentType string

const (
	CommentListingQuestion CommentType = "LISTINGITEM_QUESTION_AND_ANSWERS"
	CommentMarketplace     CommentType = "MARKETPLACE_COMMENT"
	CommentPrivateMessage  CommentType = "PRIVATE_MESSAGE"
)

func (c CommentType) Valid() bool {
	switch c {
	case CommentListingQuestion, CommentMarketplace, CommentPrivateMessage:
		return true
	default:
		return false
	}
}

type ProposalCategory string

const (
	ProposalPublicVote ProposalCategory = "PUBLIC_VOTE"
	ProposalItemVote   ProposalCategory = "ITEM_VOTE"
	ProposalMarketVote ProposalCategory = "MARKET_VOTE"
)

func (c ProposalCategory) Valid() bool {
	switch c {
	case ProposalPublicVote, ProposalItemVote, ProposalMarketVote:
		return true
	default:
		return false
	}
}

// OrderStatus tracks where a bid chain currently stands.
type OrderStatus string

const (
	OrderBidded          OrderStatus = "BIDDED"
	OrderAccepted        OrderStatus = "ACCEPTED"
	OrderRejected        OrderStatus = "REJECTED"
	OrderCancelled       OrderStatus = "CANCELLED"
	OrderEscrowLocked    OrderStatus = "ESCROW_LOCKED"
	OrderEscrowCompleted OrderStatus = "ESCROW_COMPLETED"
	OrderShipped         OrderStatus = "SHIPPED"
	OrderComplete        OrderStatus = "COMPLETE"
	OrderRefunded        OrderStatus = "REFUNDED"
)

var orderStatuses = []OrderStatus{
	"", OrderBidded, OrderAccepted, OrderRejected, OrderCancelled,
	OrderEscrowLocked, OrderEscrowCompleted, OrderShipped, OrderComplete, OrderRefunded,
}

// orderRank orders the statuses an order passes through on its way to
// COMPLETE. The empty status ranks lowest.
var orderRank = map[OrderStatus]int{
	OrderBidded:          1,
	OrderAccepted:        2,
	OrderEscrowLocked:    3,
	OrderEscrowCompleted: 4,
	OrderShipped:         5,
	OrderComplete:        6,
}

// Final reports whether no step can move the order any further.
func (s OrderStatus) Final() bool {
	switch s {
	case OrderRejected, OrderCancelled, OrderComplete, OrderRefunded:
		return true
	default:
		return false
	}
}

// Advances reports whether an order in status s may move to next. Orders
// only move forward; REJECTED and CANCELLED are reachable only before escrow
// is locked and REFUNDED only after.
func (s OrderStatus) Advances(next OrderStatus) bool {
	if s == next || s.Final() {
		return false
	}
	cur := orderRank[s]
	switch next {
	case OrderRejected, OrderCancelled:
		return cur < orderRank[OrderEscrowLocked]
	case OrderRefunded:
		return cur >= orderRank[OrderEscrowLocked]
	}
	rank, ok := orderRank[next]
	return ok && rank > cur
}

// OrderStatusesBefore lists every status that may advance to next.
func OrderStatusesBefore(next OrderStatus) []OrderStatus {
	var out []OrderStatus
	for _, s := range orderStatuses {
		if s.Advances(next) {
			out = append(out, s)
		}
	}
	return out
}

// TransportMessage is one physical message as the transport layer sees it.
type TransportMessage struct {
	MsgID         string    `json:"msgid"`
	From          string    `json:"from"`
	To            string    `json:"to"`
	Paid          bool      `json:"paid"`
	DaysRetention int       `json:"days_retention"`
	Sent          time.Time `json:"sent"`
	Received      time.Time `json:"received"`
	Expiration    time.Time `json:"expiration"`
	Payload       []byte    `json:"payload,omitempty"`
}

// TransportRecord is the persisted log entry for one sent or received message.
type TransportRecord struct {
	MsgID         string        `json:"msgid"`
	Direction     Direction     `json:"direction"`
	Status        MessageStatus `json:"status"`
	Type          ActionType    `json:"type"`
	Hash          string        `json:"hash"`
	Version       string        `json:"version"`
	From          string        `json:"from"`
	To            string        `json:"to"`
	Paid          bool          `json:"paid"`
	DaysRetention int           `json:"days_retention"`
	Sent          time.Time     `json:"sent"`
	Received      time.Time     `json:"received"`
	Expiration    time.Time     `json:"expiration"`
}
