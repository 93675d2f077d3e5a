package natsutil

import (
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReady_WithoutConnection(t *testing.T) {
	var c *Client
	assert.Error(t, c.Ready())
	assert.Error(t, (&Client{}).Ready())
	assert.NotPanics(t, c.Close)
}

func TestOptions_NameAndReconnect(t *testing.T) {
	opts := nats.GetDefaultOptions()
	for _, o := range options(nil) {
		require.NoError(t, o(&opts))
	}
	assert.Equal(t, clientName, opts.Name)
	assert.Equal(t, -1, opts.MaxReconnect)
	assert.NotNil(t, opts.DisconnectedErrCB)
	assert.NotNil(t, opts.ReconnectedCB)
	assert.NotNil(t, opts.AsyncErrorCB)
}
