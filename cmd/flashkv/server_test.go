package main

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/KevoDB/flashkv/pkg/client"
	"github.com/KevoDB/flashkv/pkg/common/log"
	"github.com/KevoDB/flashkv/pkg/flash"
	"github.com/KevoDB/flashkv/pkg/store"
	"github.com/KevoDB/flashkv/pkg/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServerStore(t *testing.T) *store.Store {
	t.Helper()
	ctrl, err := flash.NewMemoryController(flash.Geometry{PageSize: 1024, PageCount: flash.DefaultPageCount},
		flash.WithLogger(log.NewDiscardLogger()))
	require.NoError(t, err)
	st, err := store.Open(context.Background(), ctrl, store.WithLogger(log.NewDiscardLogger()))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestServeRequiresStart(t *testing.T) {
	server := NewServer(newServerStore(t), telemetry.NewNoop(), Config{})
	assert.Error(t, server.Serve())
	assert.Nil(t, server.Addr())
	assert.NoError(t, server.Shutdown(context.Background()))
}

func TestServerRejectsBadTLS(t *testing.T) {
	server := NewServer(newServerStore(t), telemetry.NewNoop(), Config{
		ListenAddr: "localhost:0",
		TLSEnabled: true,
	})
	assert.Error(t, server.Start())
}

func TestServerStartup(t *testing.T) {
	// Skip if not running in an environment where we can bind to ports
	if os.Getenv("ENABLE_NETWORK_TESTS") != "1" {
		t.Skip("Skipping network test (set ENABLE_NETWORK_TESTS=1 to run)")
	}

	st := newServerStore(t)
	server := NewServer(st, telemetry.NewNoop(), Config{
		ServerMode: true,
		ListenAddr: "localhost:0", // Let the OS assign a port
	})
	require.NoError(t, server.Start())
	require.NotNil(t, server.Addr())

	served := make(chan error, 1)
	go func() { served <- server.Serve() }()

	options := client.DefaultClientOptions()
	options.Endpoint = server.Addr().String()
	c, err := client.NewClient(options)
	require.NoError(t, err)
	require.NoError(t, c.Connect(context.Background()))
	defer c.Close()

	ctx := context.Background()
	_, err = c.Put(ctx, "mode", []byte("rainbow"))
	require.NoError(t, err)
	value, found, err := c.Get(ctx, "mode")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("rainbow"), value)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, server.Shutdown(shutdownCtx))
	assert.NoError(t, <-served)

	// the store outlives the server
	payload, err := st.Get("mode")
	require.NoError(t, err)
	assert.Equal(t, []byte("rainbow"), payload)
}
