package apiclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/park285/chess-room-server/internal/chess"
	"github.com/park285/chess-room-server/internal/gameroom"
	"github.com/park285/chess-room-server/internal/server"
	"github.com/park285/chess-room-server/pkg/chessdto"
)

func startServer(t *testing.T) string {
	t.Helper()
	queue := chess.NewQueue(chess.NewFallbackEngine(2, nil), nil, chess.QueueConfig{}, nil)
	hub := server.NewHub(nil)
	m := gameroom.NewManager(queue, hub, gameroom.Config{})
	srv := server.New(server.Deps{Manager: m, Hub: hub, Evaluator: queue})
	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(func() {
		ts.Close()
		m.Close()
		queue.Close()
	})
	return ts.URL
}

func TestClientAgainstServer(t *testing.T) {
	base := startServer(t)
	c := NewClient(base)
	ctx := context.Background()

	h, err := c.Health(ctx)
	require.NoError(t, err)
	assert.True(t, h.OK)
	assert.Equal(t, "fallback", h.Engine)

	bots, err := c.Bots(ctx)
	require.NoError(t, err)
	assert.Len(t, bots, 12)

	id, err := c.CreateRoom(ctx, "pvp", "")
	require.NoError(t, err)
	st, err := c.RoomState(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, st.ID)
	assert.Equal(t, "w", st.Turn)

	_, err = c.RoomState(ctx, "nope")
	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusNotFound))

	_, err = c.Eval(ctx, "", "")
	assert.True(t, IsStatus(err, http.StatusBadRequest))

	cp, err := c.Eval(ctx, "6k1/5ppp/8/8/8/8/5PPP/3Q2K1 w - - 0 1", id)
	require.NoError(t, err)
	assert.Greater(t, cp, 500)
}

func TestSocketJoinAndMove(t *testing.T) {
	base := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	id, err := NewClient(base).CreateRoom(ctx, "pvp", "")
	require.NoError(t, err)

	s, err := Dial(ctx, WebSocketURL(base), nil)
	require.NoError(t, err)
	defer s.Close(context.Background())

	var seen atomic.Int32
	s.OnMessage(func(chessdto.Envelope) { seen.Add(1) })

	require.NoError(t, s.Join(ctx, id))
	_, err = s.Expect(ctx, chessdto.EventJoined)
	require.NoError(t, err)

	require.NoError(t, s.Move(ctx, id, "g1f3"))
	env, err := s.Expect(ctx, chessdto.EventState)
	require.NoError(t, err)
	var st chessdto.RoomState
	require.NoError(t, json.Unmarshal(env.Data, &st))
	assert.Equal(t, []string{"g1f3"}, st.Moves)
	require.NotNil(t, st.LastMove)
	assert.Equal(t, "g1f3", *st.LastMove)
	assert.GreaterOrEqual(t, seen.Load(), int32(3))
}

func TestRetryOnServerError(t *testing.T) {
	var hits atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer ts.Close()

	h, err := NewClient(ts.URL, WithRetry(3)).Health(context.Background())
	require.NoError(t, err)
	assert.True(t, h.OK)
	assert.EqualValues(t, 3, hits.Load())
}

func TestNoRetryOnClientError(t *testing.T) {
	var hits atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"code":"room_not_found","message":"Room not found"}`))
	}))
	defer ts.Close()

	_, err := NewClient(ts.URL).RoomState(context.Background(), "x")
	require.Error(t, err)
	assert.EqualValues(t, 1, hits.Load())
	assert.Contains(t, err.Error(), "room_not_found")
}

func TestWebSocketURL(t *testing.T) {
	assert.Equal(t, "ws://localhost:8080/ws", WebSocketURL("http://localhost:8080/"))
	assert.Equal(t, "wss://chess.example.com/ws", WebSocketURL("https://chess.example.com"))
}
