//go:build integration

package integration_test

import (
	"context"
	"net"
	"net/url"
	"os"
	"testing"
	"time"

	"github.com/bazaar-mp/project/internal/app/actionsvc"
	"github.com/bazaar-mp/project/internal/app/factory"
	"github.com/bazaar-mp/project/internal/app/notify"
	"github.com/bazaar-mp/project/internal/app/receiver"
	"github.com/bazaar-mp/project/internal/app/store"
	"github.com/bazaar-mp/project/internal/contracts"
	"github.com/bazaar-mp/project/internal/messaging"
	"github.com/bazaar-mp/project/internal/platform/config"
	"github.com/bazaar-mp/project/internal/platform/dbpool"
	"github.com/bazaar-mp/project/internal/platform/natsutil"
	"github.com/bazaar-mp/project/internal/platform/wallet"
	"github.com/nspcc-dev/neo-go/pkg/crypto/keys"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type marketNode struct {
	address string
	service *actionsvc.Service
	gateway *messaging.JetStreamGateway
	store   store.Store
	hub     *notify.Hub
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func waitForTCP(t *testing.T, addr string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, 500*time.Millisecond)
		if err == nil {
			_ = conn.Close()
			return
		}
		time.Sleep(200 * time.Millisecond)
	}
	t.Skipf("no service at %s", addr)
}

func connectNATS(t *testing.T) *natsutil.Client {
	t.Helper()
	natsURL := envOr("MP_NATS_URL", "nats://127.0.0.1:4222")
	u, err := url.Parse(natsURL)
	require.NoError(t, err)
	waitForTCP(t, u.Host, 5*time.Second)

	client, err := natsutil.ConnectJetStreamWithRetry(context.Background(), natsURL, 20*time.Second, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(client.Close)
	return client
}

// nodeStore uses Postgres when MP_DATABASE_URL is set.
func nodeStore(t *testing.T, ctx context.Context) store.Store {
	t.Helper()
	databaseURL := os.Getenv("MP_DATABASE_URL")
	if databaseURL == "" {
		return store.NewMemory()
	}
	pool, err := dbpool.NewWithRetry(ctx, databaseURL, config.Defaults().DB, 30*time.Second)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	pg := store.NewPostgres(pool)
	require.NoError(t, pg.EnsureSchema(ctx))
	return pg
}

func startNode(t *testing.T, ctx context.Context, client *natsutil.Client, name string) *marketNode {
	t.Helper()
	priv, err := keys.NewPrivateKey()
	require.NoError(t, err)
	ks := wallet.NewKeystore()
	addr, err := ks.ImportWIF("main", priv.WIF())
	require.NoError(t, err)
	ks.SetBalance("main", 10_000_000)

	logger := zaptest.NewLogger(t).Named(name)
	n := &marketNode{
		address: addr,
		gateway: messaging.NewJetStreamGateway(client.JS, client.KV, config.Defaults().FeePerKBDay, logger),
		store:   nodeStore(t, ctx),
		hub:     notify.NewHub(),
	}
	n.service = actionsvc.New(actionsvc.Deps{
		Config:   config.Defaults(),
		Wallet:   ks,
		Gateway:  n.gateway,
		Store:    n.store,
		Notifier: n.hub,
		Logger:   logger,
	})

	handler := receiver.NewHandler(n.service, logger)
	handler.RetryDelay = time.Second
	subs, err := handler.Subscribe(ctx, client.JS, "it-"+name, []string{addr})
	require.NoError(t, err)
	t.Cleanup(func() {
		for _, s := range subs {
			_ = s.Unsubscribe()
		}
	})
	return n
}

func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %s", what)
}

func TestListingWithImageReachesMarket(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	client := connectNATS(t)
	seller := startNode(t, ctx, client, "seller")
	market := startNode(t, ctx, client, "market")

	events, release := market.hub.Subscribe(notify.EventImage)
	defer release()

	params := &factory.ListingAddParams{Template: factory.ListingTemplate{
		SellerAddress:    seller.address,
		Title:            "Walnut desk",
		ShortDescription: "A desk",
		LongDescription:  "A walnut writing desk",
		Category:         []string{"furniture"},
		Images: []contracts.ContentReference{{
			Featured: true,
			Data:     []contracts.DSN{{Protocol: contracts.ProtocolLocal, Encoding: contracts.EncodingBase64, Data: "iVBORw0KGgo="}},
		}},
		Payment: contracts.PaymentInformation{
			Type:    "SALE",
			Options: []contracts.PaymentOption{{Currency: "PART", BasePrice: 2500}},
		},
	}}
	resp, err := seller.service.Post(ctx, actionsvc.PostRequest{
		Wallet: "main", From: seller.address, To: market.address, Days: 3,
	}, params)
	require.NoError(t, err)
	require.NotEmpty(t, resp.MsgID)
	require.Len(t, resp.FollowUps, 1)
	require.Empty(t, resp.FollowUps[0].Error)

	waitFor(t, 30*time.Second, "listing on market node", func() bool {
		l, found, err := market.store.FindListing(ctx, resp.Hash)
		return err == nil && found && len(l.Images) == 1 && len(l.Images[0].Data) == 1
	})

	rec, found, err := market.store.FindRecord(ctx, resp.MsgID, contracts.DirectionIncoming)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, contracts.StatusProcessed, rec.Status)
	require.Equal(t, 3, rec.DaysRetention)

	select {
	case <-events:
	case <-time.After(10 * time.Second):
		t.Fatal("no image notification")
	}
}

func TestCommentReachesReceiver(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	client := connectNATS(t)
	alice := startNode(t, ctx, client, "alice")
	bob := startNode(t, ctx, client, "bob")

	resp, err := alice.service.Post(ctx, actionsvc.PostRequest{Wallet: "main", From: alice.address, To: bob.address},
		&factory.CommentAddParams{
			Sender:   alice.address,
			Receiver: bob.address,
			Type:     contracts.CommentPrivateMessage,
			Target:   bob.address,
			Message:  "hello over jetstream",
		})
	require.NoError(t, err)

	waitFor(t, 30*time.Second, "comment on receiving node", func() bool {
		c, found, err := bob.store.FindComment(ctx, resp.Hash)
		return err == nil && found && c.Message == "hello over jetstream"
	})

	tm, found, err := alice.gateway.FetchByMsgID(ctx, resp.MsgID)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, bob.address, tm.To)
}
