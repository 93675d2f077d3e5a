package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 24000, cfg.MessageSizeFree)
	assert.Equal(t, 524288, cfg.MessageSizePaid)
	assert.Equal(t, "0.3.0", cfg.ProtocolVersion)
	assert.True(t, cfg.SequenceMonotonic)
}

func TestLoad_DefaultsMatchTags(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	want := Defaults()
	want.ReceiveAddresses = []string{}
	cfg.ReceiveAddresses = []string{}
	assert.Equal(t, want, cfg)
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("MESSAGE_SIZE_FREE", "1000")
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("RECEIVE_ADDRESSES", " NAddrOne , NAddrTwo,")
	t.Setenv("SEQUENCE_MONOTONIC", "false")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 1000, cfg.MessageSizeFree)
	assert.Equal(t, DriverMemory, cfg.StoreDriver)
	assert.Equal(t, []string{"NAddrOne", "NAddrTwo"}, cfg.ReceiveAddresses)
	assert.False(t, cfg.SequenceMonotonic)
}

func TestLoad_EnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("HTTP_ADDR=:9999\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("HTTP_ADDR") })

	cfg, err := Load(path, filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.HTTPAddr)
}

func TestValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())

	cfg.MessageSizeFree = cfg.MessageSizePaid + 1
	cfg.StoreDriver = "sqlite"
	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), "MESSAGE_SIZE_FREE exceeds")
	assert.Contains(t, err.Error(), "sqlite")
}

func TestValidate_ReceiveRedelivery(t *testing.T) {
	cfg := Defaults()
	cfg.ReceiveMaxDeliver = 0
	err := cfg.Validate()
	require.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), "RECEIVE_MAX_DELIVER")
}
