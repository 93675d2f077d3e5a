package messaging

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bazaar-mp/project/internal/sharding"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	msgs []*nats.Msg
	err  error
}

func (f *fakePublisher) PublishMsg(m *nats.Msg, _ ...nats.PubOpt) (*nats.PubAck, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.msgs = append(f.msgs, m)
	return &nats.PubAck{Stream: MarketStream, Sequence: uint64(len(f.msgs))}, nil
}

type fakeEntry struct {
	key   string
	value []byte
}

func (e fakeEntry) Bucket() string { return MessageBucket }
func (e fakeEntry) Key() string { return e.key }
func (e fakeEntry) Value() []byte { return e.value }
func (e fakeEntry) Revision() uint64 { return 1 }
func (e fakeEntry) Created() time.Time { return time.Time{} }
func (e fakeEntry) Delta() uint64 { return 0 }
func (e fakeEntry) Operation() nats.KeyValueOp { return nats.KeyValuePut }

type fakeLog struct {
	values map[string][]byte
}

func (f *fakeLog) Put(key string, value []byte) (uint64, error) {
	if f.values == nil {
		f.values = map[string][]byte{}
	}
	f.values[key] = value
	return uint64(len(f.values)), nil
}

func (f *fakeLog) Get(key string) (nats.KeyValueEntry, error) {
	v, ok := f.values[key]
	if !ok {
		return nil, nats.ErrKeyNotFound
	}
	return fakeEntry{key: key, value: v}, nil
}

func newTestGateway(pub *fakePublisher, log *fakeLog) *JetStreamGateway {
	g := NewJetStreamGateway(pub, log, 100, nil)
	g.Now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	g.NewID = func() string { return "msg-1" }
	return g
}

func TestFee(t *testing.T) {
	assert.Equal(t, int64(0), Fee(5000, false, 7, 100))
	assert.Equal(t, int64(100), Fee(1, true, 1, 100))
	assert.Equal(t, int64(100), Fee(1024, true, 1, 100))
	assert.Equal(t, int64(200*3), Fee(1025, true, 3, 100))
	assert.Equal(t, int64(0), Fee(1025, true, 0, 100))
}

func TestSend_PublishesAndRecordsHistory(t *testing.T) {
	pub := &fakePublisher{}
	log := &fakeLog{}
	g := newTestGateway(pub, log)

	res, err := g.Send(context.Background(), SendRequest{
		From: "NFrom", To: "NTo", Payload: []byte(`{"version":"0.3.0"}`), Paid: true, DaysRetention: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, "msg-1", res.MsgID)
	assert.Equal(t, int64(200), res.Fee)

	require.Len(t, pub.msgs, 1)
	msg := pub.msgs[0]
	assert.Equal(t, sharding.MessageSubject("NTo"), msg.Subject)
	assert.Equal(t, "msg-1", msg.Header.Get(nats.MsgIdHdr))

	tm, found, err := g.FetchByMsgID(context.Background(), "msg-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "NFrom", tm.From)
	assert.Equal(t, g.Now().Add(48*time.Hour), tm.Expiration)

	_, found, err = g.FetchByMsgID(context.Background(), "other")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSend_PublishFailure(t *testing.T) {
	pub := &fakePublisher{err: errors.New("no responders")}
	log := &fakeLog{}
	g := newTestGateway(pub, log)

	_, err := g.Send(context.Background(), SendRequest{From: "a", To: "b", Payload: []byte("x"), DaysRetention: 1})
	require.Error(t, err)
	assert.Empty(t, log.values)
}

func TestSend_RejectsIncompleteRequest(t *testing.T) {
	g := newTestGateway(&fakePublisher{}, &fakeLog{})
	_, err := g.Send(context.Background(), SendRequest{To: "b", Payload: []byte("x"), DaysRetention: 1})
	assert.ErrorIs(t, err, ErrInvalidSend)
	_, err = g.Send(context.Background(), SendRequest{From: "a", To: "b", Payload: []byte("x")})
	assert.ErrorIs(t, err, ErrInvalidSend)
}

func TestDecodeMsg(t *testing.T) {
	pub := &fakePublisher{}
	g := newTestGateway(pub, &fakeLog{})
	_, err := g.Send(context.Background(), SendRequest{From: "NFrom", To: "NTo", Payload: []byte("{}"), DaysRetention: 3})
	require.NoError(t, err)

	now := time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC)
	tm, err := DecodeMsg(pub.msgs[0], now)
	require.NoError(t, err)
	assert.Equal(t, "msg-1", tm.MsgID)
	assert.Equal(t, "NFrom", tm.From)
	assert.Equal(t, "NTo", tm.To)
	assert.Equal(t, 3, tm.DaysRetention)
	assert.False(t, tm.Paid)
	assert.Equal(t, now, tm.Received)
	assert.Equal(t, g.Now(), tm.Sent)

	_, err = DecodeMsg(nats.NewMsg("mp.msg.1.NTo"), now)
	assert.ErrorIs(t, err, ErrMissingMsgID)
}
