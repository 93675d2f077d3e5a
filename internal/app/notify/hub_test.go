package notify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_FiltersByEvent(t *testing.T) {
	hub := NewHub()
	all, releaseAll := hub.Subscribe()
	defer releaseAll()
	votes, releaseVotes := hub.Subscribe(EventVote)
	defer releaseVotes()

	hub.Deliver(context.Background(), New(EventComment, nil))
	hub.Deliver(context.Background(), New(EventVote, nil))

	require.Len(t, all, 2)
	require.Len(t, votes, 1)
	assert.Equal(t, EventVote, (<-votes).Event)
}

func TestHub_ReleaseAndSlowSubscriber(t *testing.T) {
	hub := NewHub()
	ch, release := hub.Subscribe()
	assert.Equal(t, 1, hub.Len())

	for i := 0; i < subscriberBuffer+10; i++ {
		hub.Deliver(context.Background(), New(EventBid, nil))
	}
	assert.Len(t, ch, subscriberBuffer)

	release()
	release()
	assert.Equal(t, 0, hub.Len())
}

func TestFanout(t *testing.T) {
	conn := &fakeConn{}
	hub := NewHub()
	ch, release := hub.Subscribe()
	defer release()

	Fanout{NewPublisher(conn, nil), hub}.Deliver(context.Background(), New(EventListing, nil))

	assert.Len(t, conn.subjects, 1)
	assert.Len(t, ch, 1)
}
