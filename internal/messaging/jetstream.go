package messaging

import (
	"errors"
	"time"

	"github.com/bazaar-mp/project/internal/sharding"
	"github.com/nats-io/nats.go"
)

const (
	MarketStream  = "MARKET"
	MessageBucket = "mp-messages"

	// messageBucketTTL covers the longest paid retention.
	messageBucketTTL = 31 * 24 * time.Hour
)

// EnsureStreams creates (or validates) the market message stream and the
// message history bucket:
// - mp.msg.>
// - KV mp-messages
func EnsureStreams(js nats.JetStreamContext) error {
	if _, err := js.StreamInfo(MarketStream); err != nil {
		if !errors.Is(err, nats.ErrStreamNotFound) {
			return err
		}
		if _, addErr := js.AddStream(&nats.StreamConfig{
			Name:       MarketStream,
			Subjects:   []string{sharding.MessagePrefix + ".>"},
			Retention:  nats.LimitsPolicy,
			Storage:    nats.FileStorage,
			Replicas:   1,
			MaxAge:     messageBucketTTL,
			Duplicates: 2 * time.Minute,
		}); addErr != nil {
			return addErr
		}
	}

	if _, err := js.KeyValue(MessageBucket); err != nil {
		if !errors.Is(err, nats.ErrBucketNotFound) {
			return err
		}
		if _, addErr := js.CreateKeyValue(&nats.KeyValueConfig{
			Bucket:  MessageBucket,
			TTL:     messageBucketTTL,
			Storage: nats.FileStorage,
		}); addErr != nil {
			return addErr
		}
	}

	return nil
}
