package receiver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bazaar-mp/project/internal/actionerr"
	"github.com/bazaar-mp/project/internal/app/actionsvc"
	"github.com/bazaar-mp/project/internal/app/factory"
	"github.com/bazaar-mp/project/internal/app/validator"
	"github.com/bazaar-mp/project/internal/contracts"
	"github.com/bazaar-mp/project/internal/messaging"
	"github.com/bazaar-mp/project/internal/platform/wallet"
	"github.com/bazaar-mp/project/internal/sharding"
	"github.com/nats-io/nats.go"
	"github.com/nspcc-dev/neo-go/pkg/crypto/keys"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReceiver struct {
	got []contracts.TransportMessage
	err error
}

func (f *fakeReceiver) Receive(_ context.Context, tm contracts.TransportMessage) (actionsvc.ReceiveResult, error) {
	f.got = append(f.got, tm)
	return actionsvc.ReceiveResult{MsgID: tm.MsgID}, f.err
}

type fakeAcker struct {
	calls []string
	delay time.Duration
}

func (f *fakeAcker) Ack(...nats.AckOpt) error { f.calls = append(f.calls, "ack"); return nil }
func (f *fakeAcker) Nak(...nats.AckOpt) error { f.calls = append(f.calls, "nak"); return nil }
func (f *fakeAcker) Term(...nats.AckOpt) error { f.calls = append(f.calls, "term"); return nil }
func (f *fakeAcker) NakWithDelay(d time.Duration, _ ...nats.AckOpt) error {
	f.calls = append(f.calls, "nak-delay")
	f.delay = d
	return nil
}

type fakeSubscriber struct {
	subjects []string
	queues   []string
	handlers []nats.MsgHandler
	failOn   int
}

func (f *fakeSubscriber) QueueSubscribe(subj, queue string, cb nats.MsgHandler, _ ...nats.SubOpt) (*nats.Subscription, error) {
	if f.failOn > 0 && len(f.subjects)+1 == f.failOn {
		return nil, errors.New("stream not found")
	}
	f.subjects = append(f.subjects, subj)
	f.queues = append(f.queues, queue)
	f.handlers = append(f.handlers, cb)
	return &nats.Subscription{Subject: subj, Queue: queue}, nil
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Disposition
	}{
		{"success", nil, Ack},
		{"predecessor missing", actionerr.PreconditionNotMet(contracts.ActionEscrowComplete, "bid", "no lock"), NakWithDelay},
		{"transport", actionerr.Transport(contracts.ActionBid, "find bid", errors.New("timeout")), Nak},
		{"bad signature", actionerr.InvalidSignature(contracts.ActionVote, "signature"), Term},
		{"malformed signer", actionerr.InvalidParam(contracts.ActionVote, "signature", "%w", wallet.ErrInvalidAddress), Term},
		{"hash mismatch", actionerr.HashMismatch(contracts.ActionListingAdd, "hash", "a", "b"), Term},
		{"unexpected", errors.New("boom"), Term},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.err))
		})
	}
}

func TestHandler_Settle(t *testing.T) {
	h := NewHandler(&fakeReceiver{}, nil)
	h.RetryDelay = time.Minute
	for _, d := range []Disposition{Ack, NakWithDelay, Nak, Term} {
		a := &fakeAcker{}
		h.settle(a, d)
		assert.Equal(t, []string{d.String()}, a.calls)
		if d == NakWithDelay {
			assert.Equal(t, time.Minute, a.delay)
		}
	}
}

func TestHandler_Handle(t *testing.T) {
	svc := &fakeReceiver{err: actionerr.PreconditionNotMet(contracts.ActionOrderShip, "bid", "not completed")}
	h := NewHandler(svc, nil)
	d := h.Handle(context.Background(), contracts.TransportMessage{MsgID: "m1"})
	assert.Equal(t, NakWithDelay, d)
	require.Len(t, svc.got, 1)
	assert.Equal(t, "m1", svc.got[0].MsgID)
}

func TestHandler_SubscribeRoutesByAddress(t *testing.T) {
	svc := &fakeReceiver{}
	h := NewHandler(svc, nil)
	js := &fakeSubscriber{}

	subs, err := h.Subscribe(context.Background(), js, "market-node", []string{"NAddrOne", "NAddrTwo"})
	require.NoError(t, err)
	require.Len(t, subs, 2)
	assert.Equal(t, []string{sharding.MessageSubject("NAddrOne"), sharding.MessageSubject("NAddrTwo")}, js.subjects)
	assert.Equal(t, "market-node-NAddrOne", js.queues[0])

	msg := nats.NewMsg(sharding.MessageSubject("NAddrTwo"))
	msg.Header.Set(nats.MsgIdHdr, "m-7")
	msg.Header.Set(messaging.HeaderFrom, "NSender")
	msg.Data = []byte(`{}`)
	js.handlers[1](msg)

	require.Len(t, svc.got, 1)
	assert.Equal(t, "m-7", svc.got[0].MsgID)
	assert.Equal(t, "NAddrTwo", svc.got[0].To)
}

func TestHandler_SubscribeFailure(t *testing.T) {
	h := NewHandler(&fakeReceiver{}, nil)
	_, err := h.Subscribe(context.Background(), &fakeSubscriber{failOn: 1}, "market-node", []string{"NAddrOne"})
	assert.ErrorContains(t, err, "NAddrOne")
}

func TestHandler_HandleMsgWithoutID(t *testing.T) {
	svc := &fakeReceiver{}
	h := NewHandler(svc, nil)
	h.HandleMsg(context.Background(), nats.NewMsg("mp.msg.1.NAddr"))
	assert.Empty(t, svc.got)
}

func TestClassify_ForgedVoterAddressIsTerminated(t *testing.T) {
	ctx := context.Background()
	priv, err := keys.NewPrivateKey()
	require.NoError(t, err)
	ks := wallet.NewKeystore()
	addr, err := ks.ImportWIF("main", priv.WIF())
	require.NoError(t, err)

	build := factory.New(factory.Deps{Wallet: ks, Now: func() time.Time { return time.UnixMilli(1700000000000) }})
	a, err := build.Build(ctx, "main", &factory.VoteParams{ProposalHash: "p", ProposalOptionHash: "o", Voter: addr})
	require.NoError(t, err)
	vote := a.(*contracts.Vote)
	vote.Voter = "not-an-address"

	v, ok := validator.New(validator.Deps{Wallet: ks}).For(contracts.ActionVote)
	require.True(t, ok)
	err = v.ValidateContent(ctx, vote)
	require.ErrorIs(t, err, wallet.ErrInvalidAddress)
	assert.False(t, actionerr.Retryable(err))
	assert.Equal(t, Term, Classify(err))
}

func TestHandler_HandleDeliveryGivesUpAtMaxDeliver(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		maxDeliver int
		delivered  uint64
		want       Disposition
	}{
		{"waiting below the cap", actionerr.PreconditionNotMet(contracts.ActionOrderShip, "bid", "not completed"), 5, 4, NakWithDelay},
		{"waiting at the cap", actionerr.PreconditionNotMet(contracts.ActionOrderShip, "bid", "not completed"), 5, 5, Term},
		{"transport at the cap", actionerr.Transport(contracts.ActionBid, "find bid", errors.New("timeout")), 5, 5, Term},
		{"unknown delivery count", actionerr.Transport(contracts.ActionBid, "find bid", errors.New("timeout")), 5, 0, Nak},
		{"uncapped", actionerr.Transport(contracts.ActionBid, "find bid", errors.New("timeout")), 0, 100, Nak},
		{"success at the cap", nil, 5, 5, Ack},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewHandler(&fakeReceiver{err: tc.err}, nil)
			h.MaxDeliver = tc.maxDeliver
			got := h.HandleDelivery(context.Background(), contracts.TransportMessage{MsgID: "m1"}, tc.delivered)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestHandler_SubscribeCapsDeliveries(t *testing.T) {
	h := NewHandler(&fakeReceiver{}, nil)
	assert.Len(t, h.subOpts("durable"), 4)
	h.MaxDeliver = 0
	assert.Len(t, h.subOpts("durable"), 3)
}
