package client

import (
	"context"
	"fmt"
	"time"

	"github.com/matheus3301/roombook/internal/api"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Client wraps the gRPC connection to a profile's daemon.
type Client struct {
	conn    *grpc.ClientConn
	Sync    *api.SyncClient
	Booking *api.BookingClient
}

// New dials the daemon's Unix domain socket and returns typed service clients.
// The connection is lazy; the first call fails if no daemon is listening.
func New(socketPath string) (*Client, error) {
	conn, err := grpc.NewClient(
		"unix://"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(api.CodecName)),
	)
	if err != nil {
		return nil, fmt.Errorf("dial daemon: %w", err)
	}

	return &Client{
		conn:    conn,
		Sync:    api.NewSyncClient(conn),
		Booking: api.NewBookingClient(conn),
	}, nil
}

// Ping reports whether the daemon answers within timeout.
func (c *Client) Ping(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	_, err := c.Sync.GetStatus(ctx, &api.GetStatusRequest{})
	return err
}

// Close closes the gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
