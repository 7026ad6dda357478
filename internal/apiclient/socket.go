package apiclient

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/chess-room-server/pkg/chessdto"
)

// MessageCallback receives every envelope read from the server.
type MessageCallback func(chessdto.Envelope)

// Socket is a websocket session with the room server. Incoming envelopes are
// delivered both to callbacks and to the Events channel.
type Socket struct {
	conn   *websocket.Conn
	events chan chessdto.Envelope

	cbM    sync.RWMutex
	msgCbs []MessageCallback

	pingInterval time.Duration

	rootCtx    context.Context
	rootCancel context.CancelFunc
	wg         sync.WaitGroup

	errM sync.Mutex
	err  error
}

// WebSocketURL turns an http(s) base url into the server's websocket url.
func WebSocketURL(baseURL string) string {
	base := strings.TrimRight(baseURL, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/ws"
}

func Dial(ctx context.Context, wsURL string, headers HeaderProvider) (*Socket, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, wsURL, &websocket.DialOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
		HTTPHeader:      buildHeaders(headers),
	})
	if err != nil {
		return nil, err
	}

	s := &Socket{
		conn:         conn,
		events:       make(chan chessdto.Envelope, 64),
		pingInterval: 30 * time.Second,
	}
	s.rootCtx, s.rootCancel = context.WithCancel(context.Background())
	s.wg.Add(2)
	go s.listen()
	go s.pingLoop()
	return s, nil
}

// Events is closed when the connection ends; Err then reports why.
func (s *Socket) Events() <-chan chessdto.Envelope { return s.events }

func (s *Socket) Err() error {
	s.errM.Lock()
	defer s.errM.Unlock()
	return s.err
}

func (s *Socket) OnMessage(cb MessageCallback) {
	s.cbM.Lock()
	defer s.cbM.Unlock()
	s.msgCbs = append(s.msgCbs, cb)
}

func (s *Socket) Send(ctx context.Context, kind string, payload any) error {
	env, err := chessdto.NewEnvelope(kind, payload)
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return wsjson.Write(wctx, s.conn, env)
}

func (s *Socket) Join(ctx context.Context, roomID string) error {
	return s.Send(ctx, chessdto.EventJoin, chessdto.RoomRef{RoomID: roomID})
}

func (s *Socket) Move(ctx context.Context, roomID, uci string) error {
	return s.Send(ctx, chessdto.EventMove, chessdto.MoveRequest{RoomID: roomID, UCI: uci})
}

// Expect waits for the next envelope of the given type, skipping others.
func (s *Socket) Expect(ctx context.Context, kind string) (chessdto.Envelope, error) {
	for {
		select {
		case <-ctx.Done():
			return chessdto.Envelope{}, ctx.Err()
		case env, ok := <-s.events:
			if !ok {
				if err := s.Err(); err != nil {
					return chessdto.Envelope{}, err
				}
				return chessdto.Envelope{}, errors.New("websocket closed")
			}
			if env.Type == kind {
				return env, nil
			}
		}
	}
}

func (s *Socket) listen() {
	defer s.wg.Done()
	defer close(s.events)
	for {
		var env chessdto.Envelope
		if err := wsjson.Read(s.rootCtx, s.conn, &env); err != nil {
			s.setErr(err)
			return
		}

		s.cbM.RLock()
		callbacks := append([]MessageCallback(nil), s.msgCbs...)
		s.cbM.RUnlock()
		for _, cb := range callbacks {
			cb(env)
		}

		select {
		case s.events <- env:
		default:
			// nobody is draining; callbacks already saw it
		}
	}
}

func (s *Socket) pingLoop() {
	defer s.wg.Done()
	t := time.NewTicker(s.pingInterval)
	defer t.Stop()
	failures := 0
	for {
		select {
		case <-s.rootCtx.Done():
			return
		case <-t.C:
			ctx, cancel := context.WithTimeout(s.rootCtx, 3*time.Second)
			err := s.conn.Ping(ctx)
			cancel()
			if err == nil {
				failures = 0
				continue
			}
			failures++
			if failures >= 2 {
				s.setErr(err)
				_ = s.conn.Close(websocket.StatusGoingAway, "ping failure")
				return
			}
		}
	}
}

func (s *Socket) setErr(err error) {
	s.errM.Lock()
	defer s.errM.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *Socket) Close(ctx context.Context) error {
	_ = s.conn.Close(websocket.StatusNormalClosure, "close")
	s.rootCancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func buildHeaders(h HeaderProvider) http.Header {
	hdr := http.Header{}
	if h == nil {
		return hdr
	}
	for k, v := range h() {
		if strings.TrimSpace(k) == "" || strings.TrimSpace(v) == "" {
			continue
		}
		hdr.Set(k, v)
	}
	return hdr
}
