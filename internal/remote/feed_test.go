package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/matheus3301/roombook/internal/bus"
	"github.com/matheus3301/roombook/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func feedServer(t *testing.T, messages ...string) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "anon", r.Header.Get("apikey"))
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer func() { _ = conn.Close() }()

		var sub subscribeMessage
		if err := conn.ReadJSON(&sub); err != nil {
			return
		}
		assert.Equal(t, "subscribe", sub.Type)
		assert.ElementsMatch(t, []string{domain.TableRooms, domain.TableBookings}, sub.Tables)

		for _, m := range messages {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(m)); err != nil {
				return
			}
		}
		// Hold the connection open until the client goes away.
		_, _, _ = conn.ReadMessage()
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestFeedPublishesChanges(t *testing.T) {
	url := feedServer(t,
		`not json`,
		`{"table":"users","type":"INSERT","record":{"id":"u1"}}`,
		`{"table":"bookings","type":"UPDATE","record":{"id":"b1","room_id":"R","status":"confirmed"}}`,
		`{"table":"rooms","type":"DELETE","old_id":"R"}`,
	)
	b := bus.New()
	ch, unsub := b.Subscribe("remote.", 10)
	defer unsub()

	f := NewFeed(url, "anon", b, nil)
	f.Start(context.Background())
	defer f.Stop()

	var got []Change
	for len(got) < 2 {
		select {
		case evt := <-ch:
			require.Equal(t, bus.KindRemoteChange, evt.Kind)
			got = append(got, evt.Payload.(Change))
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out, got %d changes", len(got))
		}
	}

	assert.Equal(t, domain.TableBookings, got[0].Table)
	assert.Equal(t, "b1", got[0].EntityID())
	booking, err := got[0].Booking()
	require.NoError(t, err)
	assert.Equal(t, "R", booking.RoomID)

	assert.Equal(t, ChangeDelete, got[1].Type)
	assert.Equal(t, "R", got[1].EntityID())
}

func TestFeedStopWithoutServer(t *testing.T) {
	f := NewFeed("ws://127.0.0.1:1/realtime", "", bus.New(), nil)
	f.minBackoff = 10 * time.Millisecond
	f.Start(context.Background())

	done := make(chan struct{})
	go func() {
		f.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return")
	}
}

func TestChangeValidate(t *testing.T) {
	rec, _ := json.Marshal(map[string]any{"id": "b1"})
	assert.NoError(t, Change{Table: domain.TableBookings, Type: ChangeInsert, Record: rec}.validate())
	assert.Error(t, Change{Table: domain.TableBookings, Type: "TRUNCATE", Record: rec}.validate())
	assert.Error(t, Change{Table: domain.TableBookings, Type: ChangeDelete}.validate())
}
