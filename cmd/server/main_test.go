package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/allocation-engine/booking"
	"github.com/warp/allocation-engine/config"
)

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestOpenQuoteStore_MemoryWithoutAddr(t *testing.T) {
	quotes, closer := openQuoteStore(context.Background(), config.RedisConfig{}, discardLogger())

	assert.IsType(t, &booking.MemoryQuoteStore{}, quotes)
	assert.Nil(t, closer)
}

func TestOpenQuoteStore_UnreachableFallsBack(t *testing.T) {
	quotes, closer := openQuoteStore(context.Background(), config.RedisConfig{Addr: "127.0.0.1:1"}, discardLogger())

	assert.IsType(t, &booking.MemoryQuoteStore{}, quotes)
	assert.Nil(t, closer)
}

// TestOpenQuoteStore_Redis runs only when REDIS_ADDR points at a Redis.
func TestOpenQuoteStore_Redis(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	quotes, closer := openQuoteStore(context.Background(), config.RedisConfig{Addr: addr}, discardLogger())

	assert.IsType(t, &booking.RedisQuoteStore{}, quotes)
	require.NotNil(t, closer)
	require.NoError(t, closer.Close())
	assert.Error(t, closer.Close(), "client already closed")
}

func TestOpenBackend_Memory(t *testing.T) {
	be, err := openBackend(context.Background(), config.StorageConfig{Driver: config.DriverMemory})

	require.NoError(t, err)
	assert.NotNil(t, be.repo)
	assert.NotNil(t, be.capacity)
	assert.Empty(t, be.closers)
}

func TestOpenBackend_UnknownDriver(t *testing.T) {
	_, err := openBackend(context.Background(), config.StorageConfig{Driver: "oracle"})
	assert.Error(t, err)
}
