package actionsvc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bazaar-mp/project/internal/actionerr"
	"github.com/bazaar-mp/project/internal/app/factory"
	"github.com/bazaar-mp/project/internal/app/notify"
	"github.com/bazaar-mp/project/internal/app/store"
	"github.com/bazaar-mp/project/internal/contracts"
	"github.com/bazaar-mp/project/internal/messaging"
	"github.com/bazaar-mp/project/internal/platform/config"
	"github.com/bazaar-mp/project/internal/platform/wallet"
	"github.com/nspcc-dev/neo-go/pkg/crypto/keys"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGateway struct {
	mu        sync.Mutex
	sent      []messaging.SendRequest
	ids       []string
	estimate  int
	err       error
	afterSend func()
}

func (g *fakeGateway) Send(_ context.Context, req messaging.SendRequest) (messaging.SendResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return messaging.SendResult{}, g.err
	}
	id := fmt.Sprintf("msg-%d", len(g.sent)+1)
	g.sent = append(g.sent, req)
	g.ids = append(g.ids, id)
	if g.afterSend != nil {
		g.afterSend()
	}
	return messaging.SendResult{MsgID: id, Fee: messaging.Fee(len(req.Payload), req.Paid, req.DaysRetention, 100)}, nil
}

func (g *fakeGateway) EstimateFee(_ context.Context, req messaging.SendRequest) (int64, error) {
	g.mu.Lock()
	g.estimate++
	g.mu.Unlock()
	return messaging.Fee(len(req.Payload), req.Paid, req.DaysRetention, 100), nil
}

func (g *fakeGateway) FetchByMsgID(context.Context, string) (contracts.TransportMessage, bool, error) {
	return contracts.TransportMessage{}, false, nil
}

// delivered turns the i-th sent message into what the receiving side sees.
func (g *fakeGateway) delivered(i int, msgID string) contracts.TransportMessage {
	g.mu.Lock()
	defer g.mu.Unlock()
	req := g.sent[i]
	if msgID == "" {
		msgID = g.ids[i]
	}
	now := time.UnixMilli(1700000000000).UTC()
	return contracts.TransportMessage{
		MsgID:         msgID,
		From:          req.From,
		To:            req.To,
		Paid:          req.Paid,
		DaysRetention: req.DaysRetention,
		Sent:          now,
		Received:      now,
		Expiration:    now.Add(time.Duration(req.DaysRetention) * 24 * time.Hour),
		Payload:       req.Payload,
	}
}

type recordingNotifier struct {
	mu    sync.Mutex
	notes []notify.Notification
}

func (r *recordingNotifier) Deliver(_ context.Context, n notify.Notification) {
	r.mu.Lock()
	r.notes = append(r.notes, n)
	r.mu.Unlock()
}

func (r *recordingNotifier) count(event string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, note := range r.notes {
		if note.Event == event {
			n++
		}
	}
	return n
}

type node struct {
	svc      *Service
	gateway  *fakeGateway
	store    *store.Memory
	notes    *recordingNotifier
	keystore *wallet.Keystore
	address  string
}

func newNode(t *testing.T, cfg config.Config) *node {
	t.Helper()
	priv, err := keys.NewPrivateKey()
	require.NoError(t, err)
	ks := wallet.NewKeystore()
	addr, err := ks.ImportWIF("main", priv.WIF())
	require.NoError(t, err)
	ks.SetBalance("main", 1_000_000)

	n := &node{gateway: &fakeGateway{}, store: store.NewMemory(), notes: &recordingNotifier{}, keystore: ks, address: addr}
	n.svc = New(Deps{Config: cfg, Wallet: ks, Gateway: n.gateway, Store: n.store, Notifier: n.notes})
	clock := time.UnixMilli(1700000000000).UTC()
	n.svc.Now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return n
}

func (n *node) request() PostRequest {
	return PostRequest{Wallet: "main", From: n.address, To: "NMarketAddress"}
}

func imageData(b string) []contracts.DSN {
	return []contracts.DSN{{Protocol: contracts.ProtocolLocal, Encoding: contracts.EncodingBase64, Data: b}}
}

func sampleListing(seller string) *factory.ListingAddParams {
	return &factory.ListingAddParams{Template: factory.ListingTemplate{
		SellerAddress:    seller,
		Title:            "Oak chair",
		ShortDescription: "A chair",
		LongDescription:  "A solid oak chair",
		Category:         []string{"furniture"},
		Images:           []contracts.ContentReference{{Featured: true, Data: imageData("iVBORw0KGgo=")}},
		Payment: contracts.PaymentInformation{
			Type:    "SALE",
			Options: []contracts.PaymentOption{{Currency: "PART", BasePrice: 1000}},
		},
	}}
}

func bidParams(buyer, listing string) *factory.BidParams {
	return &factory.BidParams{
		ListingHash: listing,
		Buyer: contracts.BuyerData{
			Address: buyer,
			ShippingAddress: contracts.ShippingAddress{
				FirstName: "Ada", LastName: "Lovelace", AddressLine1: "1 Main St",
				City: "Helsinki", ZipCode: "00100", Country: "FI",
			},
		},
	}
}

func TestNew_RegistersEveryType(t *testing.T) {
	svc := New(Deps{Config: config.Defaults()})
	for _, at := range contracts.ActionTypes {
		e, ok := svc.entries[at]
		require.True(t, ok, at)
		assert.NotNil(t, e.build, at)
		assert.NotNil(t, e.validate, at)
		assert.NotNil(t, e.process, at)
		assert.Equal(t, contracts.SizeClassOf(at), e.class, at)
	}
}

func TestPost_SizeBudgetRejectsBeforeSend(t *testing.T) {
	cfg := config.Defaults()
	cfg.MessageSizeFree = 400
	n := newNode(t, cfg)

	_, err := n.svc.Post(context.Background(), n.request(), &factory.CommentAddParams{
		Sender: n.address, Receiver: "NMarketAddress", Type: contracts.CommentMarketplace,
		Target: "listing-hash", Message: strings.Repeat("x", 600),
	})
	require.ErrorIs(t, err, actionerr.ErrMessageTooLarge)
	assert.Contains(t, err.Error(), string(contracts.ActionCommentAdd))
	assert.Empty(t, n.gateway.sent)
	assert.Empty(t, n.store.Records())
}

func TestPost_EstimateFeeNeverSends(t *testing.T) {
	n := newNode(t, config.Defaults())
	n.keystore.SetBalance("main", 0)

	req := n.request()
	req.EstimateFee = true
	resp, err := n.svc.Post(context.Background(), req, sampleListing(n.address))
	require.NoError(t, err)
	assert.True(t, resp.Estimated)
	assert.Positive(t, resp.Fee)
	assert.GreaterOrEqual(t, resp.TotalFee, resp.Fee)
	require.Len(t, resp.FollowUps, 1)
	assert.Equal(t, contracts.ActionListingImageAdd, resp.FollowUps[0].Type)
	assert.Empty(t, resp.FollowUps[0].Error)
	assert.Empty(t, n.gateway.sent)
	assert.Empty(t, n.store.Records())
}

func TestPost_InsufficientBalance(t *testing.T) {
	n := newNode(t, config.Defaults())
	n.keystore.SetBalance("main", 1)

	_, err := n.svc.Post(context.Background(), n.request(), sampleListing(n.address))
	require.ErrorIs(t, err, actionerr.ErrInsufficientBalance)
	assert.False(t, actionerr.Retryable(err))
	assert.Empty(t, n.gateway.sent)
}

func TestPost_SendFailureIsRetryableAndNotRecorded(t *testing.T) {
	n := newNode(t, config.Defaults())
	n.gateway.err = errors.New("connection refused")

	_, err := n.svc.Post(context.Background(), n.request(), bidParams(n.address, "listing-hash"))
	require.ErrorIs(t, err, actionerr.ErrTransport)
	assert.True(t, actionerr.Retryable(err))
	assert.Empty(t, n.store.Records())
}

func TestPost_ListingSendsImageAsFollowUp(t *testing.T) {
	ctx := context.Background()
	n := newNode(t, config.Defaults())

	resp, err := n.svc.Post(ctx, n.request(), sampleListing(n.address))
	require.NoError(t, err)
	require.Len(t, n.gateway.sent, 2)
	require.Len(t, resp.FollowUps, 1)
	assert.Equal(t, resp.MsgID, n.gateway.ids[0])
	assert.Equal(t, n.gateway.ids[1], resp.FollowUps[0].MsgID)

	primary, err := contracts.DecodeEnvelope(n.gateway.sent[0].Payload)
	require.NoError(t, err)
	listing := primary.Action.(*contracts.ListingAdd)
	require.Len(t, listing.Item.Information.Images, 1)
	assert.Empty(t, listing.Item.Information.Images[0].Data)
	assert.True(t, n.gateway.sent[0].Paid)

	follow, err := contracts.DecodeEnvelope(n.gateway.sent[1].Payload)
	require.NoError(t, err)
	img := follow.Action.(*contracts.ListingImageAdd)
	assert.Equal(t, listing.Hash, img.Target)
	assert.Equal(t, listing.Item.Information.Images[0].Hash, img.Image.Hash)
	assert.NotEmpty(t, img.Image.Data)
	assert.False(t, n.gateway.sent[1].Paid)

	stored, found, err := n.store.FindListing(ctx, listing.Hash)
	require.NoError(t, err)
	require.True(t, found)
	require.Len(t, stored.Images, 1)
	assert.NotEmpty(t, stored.Images[0].Data, "outgoing image follow-up is attached locally")

	rec, found, err := n.store.FindRecord(ctx, resp.MsgID, contracts.DirectionOutgoing)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, contracts.StatusSent, rec.Status)
	assert.Equal(t, listing.Hash, rec.Hash)
	assert.Equal(t, 1, n.notes.count(notify.EventListing))
}

// ctxStore fails writes made with a finished context, as a database would.
type ctxStore struct {
	*store.Memory
}

func (c ctxStore) CreateRecord(ctx context.Context, r contracts.TransportRecord) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return c.Memory.CreateRecord(ctx, r)
}

func (c ctxStore) SaveComment(ctx context.Context, cm store.Comment) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return c.Memory.SaveComment(ctx, cm)
}

func TestPost_CallerCancelAfterSendStillRecords(t *testing.T) {
	n := newNode(t, config.Defaults())
	n.svc = New(Deps{Config: config.Defaults(), Wallet: n.keystore, Gateway: n.gateway, Store: ctxStore{n.store}, Notifier: n.notes})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	n.gateway.afterSend = cancel

	resp, err := n.svc.Post(ctx, n.request(), &factory.CommentAddParams{
		Sender: n.address, Receiver: "NMarketAddress", Type: contracts.CommentMarketplace,
		Target: "listing-hash", Message: "still available?",
	})
	require.NoError(t, err)

	rec, found, err := n.store.FindRecord(context.Background(), resp.MsgID, contracts.DirectionOutgoing)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, contracts.StatusSent, rec.Status)
	assert.Equal(t, 1, n.notes.count(notify.EventComment))
}

func TestPost_RetentionIsClampedPerClass(t *testing.T) {
	n := newNode(t, config.Defaults())
	req := n.request()
	req.Days = 365
	_, err := n.svc.Post(context.Background(), req, bidParams(n.address, "listing-hash"))
	require.NoError(t, err)
	require.Len(t, n.gateway.sent, 1)
	assert.Equal(t, config.Defaults().MaxRetentionDaysFree, n.gateway.sent[0].DaysRetention)
}

func TestPost_LocalObjectsNeverLeave(t *testing.T) {
	n := newNode(t, config.Defaults())
	req := n.request()
	req.Objects = []contracts.KVS{{Key: "_draft", Value: "1"}, {Key: "client", Value: "web"}}
	_, err := n.svc.Post(context.Background(), req, bidParams(n.address, "listing-hash"))
	require.NoError(t, err)

	env, err := contracts.DecodeEnvelope(n.gateway.sent[0].Payload)
	require.NoError(t, err)
	assert.Equal(t, []contracts.KVS{{Key: "client", Value: "web"}}, env.Action.Header().Objects)
}

func TestPost_StorefrontAdminPublishesPublicKey(t *testing.T) {
	ctx := context.Background()
	n := newNode(t, config.Defaults())
	receive, err := keys.NewPrivateKey()
	require.NoError(t, err)
	publish, err := keys.NewPrivateKey()
	require.NoError(t, err)

	_, err = n.svc.Post(ctx, n.request(), &factory.MarketAddParams{
		Name: "Shop", MarketType: contracts.MarketTypeStorefrontAdmin,
		ReceiveKey: receive.WIF(), PublishKey: publish.WIF(),
	})
	require.NoError(t, err)
	require.Len(t, n.gateway.sent, 1)
	assert.NotContains(t, string(n.gateway.sent[0].Payload), publish.WIF())

	env, err := contracts.DecodeEnvelope(n.gateway.sent[0].Payload)
	require.NoError(t, err)
	m := env.Action.(*contracts.MarketAdd)
	assert.Equal(t, contracts.MarketTypeStorefront, m.MarketType)
	assert.Equal(t, publish.PublicKey().StringCompressed(), m.PublishKey)

	stored, found, err := n.store.FindMarket(ctx, m.Hash)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, publish.Address(), stored.PublishAddress)
	assert.Equal(t, receive.Address(), stored.ReceiveAddress)

	// the receiving side derives the same identity from the wire form
	peer := newNode(t, config.Defaults())
	res, err := peer.svc.Receive(ctx, n.gateway.delivered(0, ""))
	require.NoError(t, err)
	assert.Equal(t, contracts.StatusProcessed, res.Status)
	got, found, err := peer.store.FindMarket(ctx, m.Hash)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, stored.PublishAddress, got.PublishAddress)
}

func TestReceive_IdempotentByHash(t *testing.T) {
	ctx := context.Background()
	sender := newNode(t, config.Defaults())
	_, err := sender.svc.Post(ctx, sender.request(), sampleListing(sender.address))
	require.NoError(t, err)

	peer := newNode(t, config.Defaults())
	first, err := peer.svc.Receive(ctx, sender.gateway.delivered(0, "a"))
	require.NoError(t, err)
	assert.Equal(t, contracts.StatusProcessed, first.Status)

	second, err := peer.svc.Receive(ctx, sender.gateway.delivered(0, "b"))
	require.NoError(t, err)
	assert.Equal(t, contracts.StatusProcessed, second.Status)
	assert.False(t, second.Duplicate)

	again, err := peer.svc.Receive(ctx, sender.gateway.delivered(0, "a"))
	require.NoError(t, err)
	assert.True(t, again.Duplicate)

	stored, found, err := peer.store.FindListing(ctx, first.Hash)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "b", stored.MsgID)
	assert.Equal(t, 1, peer.notes.count(notify.EventListing))
	assert.Len(t, peer.store.Records(), 2)

	img, err := peer.svc.Receive(ctx, sender.gateway.delivered(1, ""))
	require.NoError(t, err)
	assert.Equal(t, contracts.StatusProcessed, img.Status)
	stored, _, err = peer.store.FindListing(ctx, first.Hash)
	require.NoError(t, err)
	assert.NotEmpty(t, stored.Images[0].Data)
}

func TestReceive_ImageBeforeListingWaits(t *testing.T) {
	ctx := context.Background()
	sender := newNode(t, config.Defaults())
	_, err := sender.svc.Post(ctx, sender.request(), sampleListing(sender.address))
	require.NoError(t, err)

	peer := newNode(t, config.Defaults())
	res, err := peer.svc.Receive(ctx, sender.gateway.delivered(1, ""))
	require.ErrorIs(t, err, actionerr.ErrPreconditionNotMet)
	assert.Equal(t, contracts.StatusWaiting, res.Status)

	_, err = peer.svc.Receive(ctx, sender.gateway.delivered(0, ""))
	require.NoError(t, err)
	res, err = peer.svc.Receive(ctx, sender.gateway.delivered(1, ""))
	require.NoError(t, err)
	assert.Equal(t, contracts.StatusProcessed, res.Status)
}

func TestReceive_ImageFromNonOwnerIsRejected(t *testing.T) {
	ctx := context.Background()
	sender := newNode(t, config.Defaults())
	resp, err := sender.svc.Post(ctx, sender.request(), sampleListing(sender.address))
	require.NoError(t, err)

	intruder := newNode(t, config.Defaults())
	_, err = intruder.svc.Post(ctx, intruder.request(), &factory.ListingImageAddParams{
		Target: resp.Hash, Signer: intruder.address,
		Image: contracts.ContentReference{Data: imageData("iVBORw0KGgo=")},
	})
	require.NoError(t, err, "an outgoing image is sent even though the local side cannot attach it")

	peer := newNode(t, config.Defaults())
	_, err = peer.svc.Receive(ctx, sender.gateway.delivered(0, ""))
	require.NoError(t, err)
	res, err := peer.svc.Receive(ctx, intruder.gateway.delivered(0, ""))
	require.ErrorIs(t, err, actionerr.ErrValidation)
	assert.Equal(t, contracts.StatusValidationFailed, res.Status)
}

func TestReceive_EscrowCompleteWaitsForLock(t *testing.T) {
	ctx := context.Background()
	buyer := newNode(t, config.Defaults())
	bidResp, err := buyer.svc.Post(ctx, buyer.request(), bidParams(buyer.address, "listing-hash"))
	require.NoError(t, err)
	_, err = buyer.svc.Post(ctx, buyer.request(), &factory.EscrowLockParams{Bid: bidResp.Hash, Escrow: contracts.EscrowData{TxID: "lock"}})
	require.NoError(t, err)
	_, err = buyer.svc.Post(ctx, buyer.request(), &factory.EscrowCompleteParams{Bid: bidResp.Hash, Escrow: contracts.EscrowData{TxID: "complete"}})
	require.NoError(t, err)
	require.Len(t, buyer.gateway.sent, 3)

	seller := newNode(t, config.Defaults())
	_, err = seller.svc.Receive(ctx, buyer.gateway.delivered(0, ""))
	require.NoError(t, err)

	res, err := seller.svc.Receive(ctx, buyer.gateway.delivered(2, ""))
	require.ErrorIs(t, err, actionerr.ErrPreconditionNotMet)
	assert.Equal(t, contracts.StatusWaiting, res.Status)

	_, err = seller.svc.Receive(ctx, buyer.gateway.delivered(1, ""))
	require.NoError(t, err)

	res, err = seller.svc.Receive(ctx, buyer.gateway.delivered(2, ""))
	require.NoError(t, err)
	assert.Equal(t, contracts.StatusProcessed, res.Status)

	bid, found, err := seller.store.FindBid(ctx, bidResp.Hash)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, contracts.OrderEscrowCompleted, bid.OrderStatus)
}

func TestReceive_LateBidAcceptKeepsOrderStatus(t *testing.T) {
	ctx := context.Background()
	buyer := newNode(t, config.Defaults())
	bidResp, err := buyer.svc.Post(ctx, buyer.request(), bidParams(buyer.address, "listing-hash"))
	require.NoError(t, err)
	_, err = buyer.svc.Post(ctx, buyer.request(), &factory.EscrowLockParams{Bid: bidResp.Hash, Escrow: contracts.EscrowData{TxID: "lock"}})
	require.NoError(t, err)
	_, err = buyer.svc.Post(ctx, buyer.request(), &factory.EscrowCompleteParams{Bid: bidResp.Hash, Escrow: contracts.EscrowData{TxID: "complete"}})
	require.NoError(t, err)
	_, err = buyer.svc.Post(ctx, buyer.request(), &factory.BidAcceptParams{Bid: bidResp.Hash, Seller: contracts.SellerData{Address: buyer.address}})
	require.NoError(t, err)
	require.Len(t, buyer.gateway.sent, 4)

	seller := newNode(t, config.Defaults())
	for i := range buyer.gateway.sent {
		res, err := seller.svc.Receive(ctx, buyer.gateway.delivered(i, ""))
		require.NoError(t, err)
		assert.Equal(t, contracts.StatusProcessed, res.Status)
	}

	for _, n := range []*node{buyer, seller} {
		bid, found, err := n.store.FindBid(ctx, bidResp.Hash)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, contracts.OrderEscrowCompleted, bid.OrderStatus)
	}

	_, err = buyer.svc.Post(ctx, buyer.request(), &factory.OrderShipParams{Bid: bidResp.Hash, TrackingCode: "TRACK"})
	require.NoError(t, err)
	res, err := seller.svc.Receive(ctx, buyer.gateway.delivered(4, ""))
	require.NoError(t, err)
	assert.Equal(t, contracts.StatusProcessed, res.Status)
}

func TestReceive_MalformedEnvelope(t *testing.T) {
	ctx := context.Background()
	n := newNode(t, config.Defaults())
	tm := contracts.TransportMessage{MsgID: "bad", From: "a", To: "b", Payload: []byte(`{"version":"0.3.0"}`)}

	res, err := n.svc.Receive(ctx, tm)
	require.ErrorIs(t, err, actionerr.ErrValidation)
	assert.Equal(t, contracts.StatusValidationFailed, res.Status)

	res, err = n.svc.Receive(ctx, tm)
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
}

func TestReceive_TamperedPayloadIsRejected(t *testing.T) {
	ctx := context.Background()
	sender := newNode(t, config.Defaults())
	_, err := sender.svc.Post(ctx, sender.request(), sampleListing(sender.address))
	require.NoError(t, err)

	tm := sender.gateway.delivered(0, "")
	var doc map[string]any
	require.NoError(t, json.Unmarshal(tm.Payload, &doc))
	item := doc["action"].(map[string]any)["item"].(map[string]any)
	item["information"].(map[string]any)["title"] = "Plastic chair"
	tm.Payload, err = json.Marshal(doc)
	require.NoError(t, err)

	peer := newNode(t, config.Defaults())
	res, err := peer.svc.Receive(ctx, tm)
	require.ErrorIs(t, err, actionerr.ErrHashMismatch)
	assert.Equal(t, contracts.StatusValidationFailed, res.Status)
	assert.Zero(t, peer.notes.count(notify.EventListing))
}
