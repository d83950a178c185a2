package client

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/matheus3301/roombook/internal/api"
	"github.com/matheus3301/roombook/internal/status"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
)

func shortTempDir(t *testing.T) string {
	t.Helper()
	// Unix socket paths are limited to about 104 bytes on macOS.
	dir, err := os.MkdirTemp("/tmp", "rb-client-*")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	return dir
}

func TestClientOverUnixSocket(t *testing.T) {
	socketPath := filepath.Join(shortTempDir(t), "d.sock")
	lis, err := net.Listen("unix", socketPath)
	require.NoError(t, err)

	srv := grpc.NewServer()
	api.RegisterSyncServer(srv, api.NewSyncService("cli", nil, nil, nil, status.NewMachine(nil), nil))
	go func() { _ = srv.Serve(lis) }()
	defer srv.Stop()

	c, err := New(socketPath)
	require.NoError(t, err)
	defer func() { _ = c.Close() }()

	require.NoError(t, c.Ping(context.Background(), 2*time.Second))

	resp, err := c.Sync.GetStatus(context.Background(), &api.GetStatusRequest{})
	require.NoError(t, err)
	assert.Equal(t, "cli", resp.Profile)
	assert.Equal(t, string(status.Booting), resp.State)
}

func TestPingWithoutDaemon(t *testing.T) {
	c, err := New(filepath.Join(shortTempDir(t), "missing.sock"))
	require.NoError(t, err)
	defer func() { _ = c.Close() }()

	assert.Error(t, c.Ping(context.Background(), 200*time.Millisecond))
}
