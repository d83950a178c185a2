package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/matheus3301/roombook/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestREST(t *testing.T, h http.HandlerFunc) *RESTClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewRESTClient(RESTConfig{BaseURL: srv.URL + "/", APIKey: "anon", AccessToken: "tok"}, nil)
}

func TestRESTUpsert(t *testing.T) {
	var got map[string]any
	c := newTestREST(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/rest/v1/bookings", r.URL.Path)
		assert.Equal(t, "id", r.URL.Query().Get("on_conflict"))
		assert.Equal(t, "anon", r.Header.Get("apikey"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Contains(t, r.Header.Get("Prefer"), "resolution=merge-duplicates")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
	})

	err := c.Upsert(context.Background(), domain.TableBookings, map[string]any{"id": "b1", "title": "Standup"})
	require.NoError(t, err)
	assert.Equal(t, "b1", got["id"])
	assert.Equal(t, "Standup", got["title"])
}

func TestRESTStatusClassification(t *testing.T) {
	tests := []struct {
		code      int
		transient bool
	}{
		{http.StatusInternalServerError, true},
		{http.StatusServiceUnavailable, true},
		{http.StatusTooManyRequests, true},
		{http.StatusBadRequest, false},
		{http.StatusConflict, false},
		{http.StatusUnauthorized, false},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.code), func(t *testing.T) {
			c := newTestREST(t, func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.code)
			})
			err := c.Upsert(context.Background(), domain.TableRooms, map[string]any{"id": "r1"})
			require.Error(t, err)
			assert.Equal(t, tt.transient, errors.Is(err, ErrTransient))
			assert.Equal(t, !tt.transient, IsPermanent(err))
		})
	}
}

func TestRESTRejectsUnknownTableWithoutRequest(t *testing.T) {
	called := false
	c := newTestREST(t, func(w http.ResponseWriter, r *http.Request) { called = true })

	err := c.Upsert(context.Background(), "users", map[string]any{"id": "u1"})
	assert.True(t, IsPermanent(err))
	err = c.Upsert(context.Background(), domain.TableBookings, map[string]any{"id": "b1", "secret": 1})
	assert.True(t, IsPermanent(err))
	err = c.Delete(context.Background(), "users", "u1")
	assert.True(t, IsPermanent(err))
	assert.False(t, called)
}

func TestRESTDelete(t *testing.T) {
	c := newTestREST(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/rest/v1/bookings", r.URL.Path)
		assert.Equal(t, "eq.b1", r.URL.Query().Get("id"))
		w.WriteHeader(http.StatusNoContent)
	})
	require.NoError(t, c.Delete(context.Background(), domain.TableBookings, "b1"))
}

func TestRESTDeleteMissingRowSucceeds(t *testing.T) {
	c := newTestREST(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	require.NoError(t, c.Delete(context.Background(), domain.TableBookings, "gone"))
}

func TestRESTListBookingsSince(t *testing.T) {
	since := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	c := newTestREST(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/v1/bookings", r.URL.Path)
		assert.Equal(t, "gt."+since.Format(time.RFC3339Nano), r.URL.Query().Get("updated_at"))
		assert.Equal(t, "updated_at.asc", r.URL.Query().Get("order"))
		_, _ = w.Write([]byte(`[{"id":"b1","room_id":"R","user_id":"u","title":"t",
			"start_time":"2026-10-19T10:00:00Z","end_time":"2026-10-19T11:00:00Z",
			"status":"confirmed","priority":"high","updated_at":"2026-10-19T09:30:00Z"}]`))
	})

	got, err := c.ListBookingsSince(context.Background(), since)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "b1", got[0].ID)
	assert.Equal(t, domain.PriorityHigh, got[0].Priority)
	assert.Equal(t, time.Hour, got[0].Duration())
}

func TestRESTListRooms(t *testing.T) {
	c := newTestREST(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/v1/rooms", r.URL.Path)
		_, _ = w.Write([]byte(`[{"id":"R","name":"Red","capacity":6,"features":["tv"],"status":"active"}]`))
	})
	got, err := c.ListRooms(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, []string{"tv"}, got[0].Features)
}

func TestRESTNetworkFailureIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	c := NewRESTClient(RESTConfig{BaseURL: srv.URL, Timeout: time.Second}, nil)

	err := c.Upsert(context.Background(), domain.TableRooms, map[string]any{"id": "r1"})
	assert.ErrorIs(t, err, ErrTransient)
	assert.ErrorIs(t, c.Ping(context.Background()), ErrTransient)
}
