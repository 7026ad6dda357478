package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/chess-room-server/internal/chess"
	"github.com/park285/chess-room-server/internal/domain"
	"github.com/park285/chess-room-server/internal/gameroom"
	"github.com/park285/chess-room-server/pkg/chessdto"
)

type stubEval struct {
	cp    int
	calls atomic.Int32
}

func (s *stubEval) Request(context.Context, string, chess.SearchOptions) chess.SearchResult {
	s.calls.Add(1)
	return chess.SearchResult{EvalCP: s.cp}
}

func (s *stubEval) EngineName() string { return "stub" }

func newTestServer(t *testing.T) (*httptest.Server, *gameroom.Manager, *stubEval) {
	t.Helper()
	queue := chess.NewQueue(chess.NewFallbackEngine(2, nil), nil, chess.QueueConfig{}, nil)
	hub := NewHub(nil)
	m := gameroom.NewManager(queue, hub, gameroom.Config{})
	eval := &stubEval{cp: 42}
	srv := New(Deps{Manager: m, Hub: hub, Evaluator: eval, EvalThrottle: time.Hour})
	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(func() {
		ts.Close()
		m.Close()
		queue.Close()
	})
	return ts, m, eval
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func createRoom(t *testing.T, base, body string) string {
	t.Helper()
	resp, err := http.Post(base+"/api/rooms", "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out chessdto.CreateRoomResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.NotEmpty(t, out.RoomID)
	return out.RoomID
}

func TestHealthAndBots(t *testing.T) {
	ts, _, _ := newTestServer(t)

	var health chessdto.HealthResponse
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/health", &health))
	assert.True(t, health.OK)
	assert.Equal(t, "stub", health.Engine)

	var bots []domain.BotLevel
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/bots", &bots))
	require.Len(t, bots, 12)
	assert.Equal(t, "bot400", bots[0].ID)
	assert.Equal(t, 750, bots[11].MoveTimeMillis)
}

func TestCreateRoomAndState(t *testing.T) {
	ts, _, _ := newTestServer(t)

	id := createRoom(t, ts.URL, `{"mode":"bot","botId":"nope"}`)
	var st chessdto.RoomState
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/rooms/"+id, &st))
	assert.Equal(t, "bot", st.Mode)
	assert.Equal(t, chess.DefaultBotID, st.BotID)
	assert.Nil(t, st.LastMove)

	// empty body is allowed
	createRoom(t, ts.URL, "")

	var de chessdto.DomainError
	require.Equal(t, http.StatusNotFound, getJSON(t, ts.URL+"/api/rooms/missing", &de))
	assert.Equal(t, chessdto.CodeRoomNotFound, de.Code)

	resp, err := http.Post(ts.URL+"/api/rooms", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestEvalValidationAndThrottle(t *testing.T) {
	ts, _, eval := newTestServer(t)

	var de chessdto.DomainError
	require.Equal(t, http.StatusBadRequest, getJSON(t, ts.URL+"/api/eval", &de))
	assert.Equal(t, "fen is required", de.Message)
	require.Equal(t, http.StatusBadRequest, getJSON(t, ts.URL+"/api/eval?fen=garbage", &de))
	assert.Equal(t, "Invalid fen", de.Message)

	fen := "rnbqkbnr%2Fpppppppp%2F8%2F8%2F8%2F8%2FPPPPPPPP%2FRNBQKBNR+w+KQkq+-+0+1"
	var out chessdto.EvalResponse
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/eval?roomId=a&fen="+fen, &out))
	assert.Equal(t, 42, out.EvalCP)

	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/eval?roomId=a&fen="+fen, &out))
	assert.Equal(t, 0, out.EvalCP, "second call inside the window is throttled")

	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/eval?roomId=b&fen="+fen, &out))
	assert.Equal(t, 42, out.EvalCP)

	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/eval?fen="+fen, &out))
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/eval?fen="+fen, &out))
	assert.Equal(t, 0, out.EvalCP)
	assert.EqualValues(t, 3, eval.calls.Load())
}

func TestEvalThrottleWindow(t *testing.T) {
	now := time.Unix(0, 0)
	th := newEvalThrottle(180 * time.Millisecond)
	th.now = func() time.Time { return now }

	assert.True(t, th.Allow("r"))
	now = now.Add(100 * time.Millisecond)
	assert.False(t, th.Allow("r"))
	assert.True(t, th.Allow("other"))
	now = now.Add(81 * time.Millisecond)
	assert.True(t, th.Allow("r"))
	assert.False(t, th.Allow("r"))
}

func TestEvalThrottleDropsIdleKeys(t *testing.T) {
	th := newEvalThrottle(10 * time.Millisecond)
	th.limiters = ttlcache.New(ttlcache.WithTTL[string, *rate.Limiter](30 * time.Millisecond))
	for i := 0; i < 2000; i++ {
		require.True(t, th.Allow(strconv.Itoa(i)))
	}
	require.Equal(t, 2000, th.Len())

	time.Sleep(60 * time.Millisecond)
	require.True(t, th.Allow("fresh"))
	require.Equal(t, 1, th.Len())
}

func TestEvalThrottleDisabled(t *testing.T) {
	th := newEvalThrottle(0)
	for i := 0; i < 3; i++ {
		assert.True(t, th.Allow("r"))
	}
}

func dial(t *testing.T, base string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(base, "http")+"/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, kind string, payload any) {
	t.Helper()
	env, err := chessdto.NewEnvelope(kind, payload)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, wsjson.Write(ctx, conn, env))
}

func expect(t *testing.T, conn *websocket.Conn, kind string) chessdto.Envelope {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var env chessdto.Envelope
	require.NoError(t, wsjson.Read(ctx, conn, &env))
	require.Equal(t, kind, env.Type, "payload: %s", env.Data)
	return env
}

func TestWebSocketPvPFlow(t *testing.T) {
	ts, _, _ := newTestServer(t)
	id := createRoom(t, ts.URL, `{"mode":"pvp"}`)

	white := dial(t, ts.URL)
	send(t, white, chessdto.EventJoin, chessdto.RoomRef{RoomID: id})
	expect(t, white, chessdto.EventState)
	joined := expect(t, white, chessdto.EventJoined)
	var ref chessdto.RoomRef
	require.NoError(t, json.Unmarshal(joined.Data, &ref))
	assert.Equal(t, id, ref.RoomID)

	black := dial(t, ts.URL)
	send(t, black, chessdto.EventJoin, chessdto.RoomRef{RoomID: id})
	expect(t, white, chessdto.EventState)
	expect(t, black, chessdto.EventState)
	expect(t, black, chessdto.EventJoined)

	send(t, white, chessdto.EventMove, chessdto.MoveRequest{RoomID: id, UCI: "e2e4"})
	for _, c := range []*websocket.Conn{white, black} {
		env := expect(t, c, chessdto.EventState)
		var st chessdto.RoomState
		require.NoError(t, json.Unmarshal(env.Data, &st))
		assert.Equal(t, []string{"e2e4"}, st.Moves)
		assert.Equal(t, "b", st.Turn)
	}

	send(t, white, chessdto.EventMove, chessdto.MoveRequest{RoomID: id, UCI: "e7e5"})
	env := expect(t, white, chessdto.EventErrorMessage)
	var msg chessdto.ErrorMessage
	require.NoError(t, json.Unmarshal(env.Data, &msg))
	assert.Equal(t, "Not your turn", msg.Reason)

	send(t, black, chessdto.EventMove, chessdto.MoveRequest{RoomID: id, UCI: "e7e4"})
	env = expect(t, black, chessdto.EventErrorMessage)
	require.NoError(t, json.Unmarshal(env.Data, &msg))
	assert.Equal(t, "Illegal move", msg.Reason)
}

func TestWebSocketRejections(t *testing.T) {
	ts, _, _ := newTestServer(t)
	conn := dial(t, ts.URL)

	var msg chessdto.ErrorMessage
	send(t, conn, chessdto.EventJoin, chessdto.RoomRef{RoomID: "missing"})
	env := expect(t, conn, chessdto.EventErrorMessage)
	require.NoError(t, json.Unmarshal(env.Data, &msg))
	assert.Equal(t, "Room not found", msg.Reason)

	send(t, conn, chessdto.EventMove, chessdto.MoveRequest{RoomID: "missing", UCI: "e2e4"})
	env = expect(t, conn, chessdto.EventErrorMessage)
	require.NoError(t, json.Unmarshal(env.Data, &msg))
	assert.Equal(t, "Room gone", msg.Reason)

	send(t, conn, "dance", nil)
	env = expect(t, conn, chessdto.EventErrorMessage)
	require.NoError(t, json.Unmarshal(env.Data, &msg))
	assert.Equal(t, "Unknown event dance", msg.Reason)

	send(t, conn, chessdto.EventUndo, nil)
	env = expect(t, conn, chessdto.EventErrorMessage)
	require.NoError(t, json.Unmarshal(env.Data, &msg))
	assert.True(t, strings.HasPrefix(msg.Reason, "Invalid request"))
}

func TestWebSocketBotReply(t *testing.T) {
	ts, m, _ := newTestServer(t)
	id := createRoom(t, ts.URL, `{"mode":"pvp"}`)

	conn := dial(t, ts.URL)
	send(t, conn, chessdto.EventJoin, chessdto.RoomRef{RoomID: id})
	expect(t, conn, chessdto.EventState)
	expect(t, conn, chessdto.EventJoined)

	send(t, conn, chessdto.EventSetBot, chessdto.SetBotRequest{RoomID: id, BotID: "bot400"})
	env := expect(t, conn, chessdto.EventState)
	var st chessdto.RoomState
	require.NoError(t, json.Unmarshal(env.Data, &st))
	assert.Equal(t, "bot", st.Mode)
	assert.Equal(t, "bot400", st.BotID)

	send(t, conn, chessdto.EventMove, chessdto.MoveRequest{RoomID: id, UCI: "e2e4"})
	expect(t, conn, chessdto.EventState)
	env = expect(t, conn, chessdto.EventState)
	require.NoError(t, json.Unmarshal(env.Data, &st))
	require.Len(t, st.Moves, 2)
	assert.Equal(t, "w", st.Turn)
	m.Wait()

	send(t, conn, chessdto.EventReset, chessdto.RoomRef{RoomID: id})
	env = expect(t, conn, chessdto.EventState)
	require.NoError(t, json.Unmarshal(env.Data, &st))
	assert.Empty(t, st.Moves)
}

func TestHubDropsSlowClient(t *testing.T) {
	h := NewHub(nil)
	c := newClient("slow")
	h.Subscribe("r", c)
	for i := 0; i < clientQueueSize; i++ {
		h.RoomState("r", chessdto.RoomState{ID: "r"})
	}
	select {
	case <-c.done:
		t.Fatal("client kicked before its queue filled")
	default:
	}
	h.RoomState("r", chessdto.RoomState{ID: "r"})
	<-c.done

	h.Remove(c)
	assert.Equal(t, 0, h.Subscribers("r"))
}

func TestOriginPatterns(t *testing.T) {
	got := originPatterns([]string{"https://chess.example.com", "localhost:5173", " ", "*", "https://chess.example.com"})
	assert.Equal(t, []string{"chess.example.com", "localhost:5173", "*"}, got)
}

func TestCORS(t *testing.T) {
	h := cors([]string{"https://a.example"})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodOptions, "/api/rooms", nil)
	req.Header.Set("Origin", "https://a.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://a.example", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))

	req = httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("Origin", "https://b.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
