package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/matheus3301/roombook/internal/bus"
	"github.com/matheus3301/roombook/internal/domain"
	"go.uber.org/zap"
)

// ChangeType is the kind of row change announced by the realtime feed.
type ChangeType string

const (
	ChangeInsert ChangeType = "INSERT"
	ChangeUpdate ChangeType = "UPDATE"
	ChangeDelete ChangeType = "DELETE"
)

// Change is a single row change pushed by the backend.
type Change struct {
	Table  string          `json:"table"`
	Type   ChangeType      `json:"type"`
	Record json.RawMessage `json:"record,omitempty"`
	OldID  string          `json:"old_id,omitempty"`
}

// EntityID returns the id of the changed row.
func (c Change) EntityID() string {
	if c.Type == ChangeDelete {
		return c.OldID
	}
	var rec struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(c.Record, &rec)
	return rec.ID
}

// Booking decodes the record of a bookings change.
func (c Change) Booking() (domain.Booking, error) {
	var b domain.Booking
	if err := json.Unmarshal(c.Record, &b); err != nil {
		return b, fmt.Errorf("decode booking change: %w", err)
	}
	return b, nil
}

// Room decodes the record of a rooms change.
func (c Change) Room() (domain.Room, error) {
	var r domain.Room
	if err := json.Unmarshal(c.Record, &r); err != nil {
		return r, fmt.Errorf("decode room change: %w", err)
	}
	return r, nil
}

func (c Change) validate() error {
	if err := ValidateTable(c.Table); err != nil {
		return err
	}
	switch c.Type {
	case ChangeInsert, ChangeUpdate, ChangeDelete:
	default:
		return fmt.Errorf("%w: unknown change type %q", ErrPermanent, c.Type)
	}
	if c.EntityID() == "" {
		return fmt.Errorf("%w: change without id", ErrPermanent)
	}
	return nil
}

type subscribeMessage struct {
	Type   string   `json:"type"`
	Tables []string `json:"tables"`
}

// Feed keeps a websocket subscription to the backend's change stream and
// republishes every change on the bus as remote.change.
type Feed struct {
	url    string
	header http.Header
	bus    *bus.Bus
	logger *zap.Logger
	dialer *websocket.Dialer

	minBackoff time.Duration
	maxBackoff time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewFeed creates a feed for the websocket endpoint at url.
func NewFeed(url, apiKey string, b *bus.Bus, logger *zap.Logger) *Feed {
	if logger == nil {
		logger = zap.NewNop()
	}
	header := http.Header{}
	if apiKey != "" {
		header.Set("apikey", apiKey)
		header.Set("Authorization", "Bearer "+apiKey)
	}
	return &Feed{
		url:        url,
		header:     header,
		bus:        b,
		logger:     logger,
		dialer:     &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		minBackoff: time.Second,
		maxBackoff: time.Minute,
	}
}

// Start runs the feed in the background until Stop is called.
func (f *Feed) Start(ctx context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancel != nil {
		return
	}
	ctx, f.cancel = context.WithCancel(ctx)
	f.done = make(chan struct{})
	go func() {
		defer close(f.done)
		f.Run(ctx)
	}()
}

// Stop cancels the feed and waits for it to exit.
func (f *Feed) Stop() {
	f.mu.Lock()
	cancel, done := f.cancel, f.done
	f.cancel = nil
	f.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Run connects and reconnects with exponential backoff until ctx is done.
func (f *Feed) Run(ctx context.Context) {
	backoff := f.minBackoff
	for ctx.Err() == nil {
		conn, _, err := f.dialer.DialContext(ctx, f.url, f.header)
		if err != nil {
			f.logger.Debug("realtime dial failed", zap.String("url", f.url), zap.Error(err))
		} else {
			f.logger.Info("realtime feed connected", zap.String("url", f.url))
			backoff = f.minBackoff
			if err := f.consume(ctx, conn); err != nil && ctx.Err() == nil {
				f.logger.Warn("realtime feed disconnected", zap.Error(err))
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, f.maxBackoff)
	}
}

func (f *Feed) consume(ctx context.Context, conn *websocket.Conn) error {
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	defer func() { _ = conn.Close() }()

	sub := subscribeMessage{Type: "subscribe", Tables: []string{domain.TableRooms, domain.TableBookings}}
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var change Change
		if err := json.Unmarshal(msg, &change); err != nil {
			f.logger.Warn("invalid realtime message", zap.Error(err))
			continue
		}
		if err := change.validate(); err != nil {
			f.logger.Warn("ignoring realtime change", zap.String("table", change.Table), zap.Error(err))
			continue
		}
		f.bus.Emit(bus.KindRemoteChange, change)
	}
}
