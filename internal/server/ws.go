package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/chess-room-server/pkg/chessdto"
)

const (
	writeTimeout = 5 * time.Second
	pingInterval = 30 * time.Second
	pingTimeout  = 5 * time.Second
	readLimit    = 64 << 10
)

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:  s.originPatterns,
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		s.logger.Warn("ws_accept_failed", zap.Error(err))
		return
	}
	conn.SetReadLimit(readLimit)

	c := newClient(uuid.NewString())
	s.logger.Info("ws_connected", zap.String("client_id", c.id), zap.String("remote", r.RemoteAddr))
	defer func() {
		s.hub.Remove(c)
		c.kick()
		s.logger.Info("ws_disconnected", zap.String("client_id", c.id))
	}()

	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error { return s.readLoop(ctx, conn, c) })
	g.Go(func() error { return s.writeLoop(ctx, conn, c) })
	err = g.Wait()

	status := websocket.CloseStatus(err)
	switch {
	case status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway:
		_ = conn.Close(websocket.StatusNormalClosure, "")
	case errors.Is(err, errSlowClient):
		_ = conn.Close(websocket.StatusPolicyViolation, "slow client")
	default:
		_ = conn.Close(websocket.StatusInternalError, "")
	}
}

var errSlowClient = errors.New("client send queue overflow")

func (s *Server) readLoop(ctx context.Context, conn *websocket.Conn, c *Client) error {
	for {
		var env chessdto.Envelope
		if err := wsjson.Read(ctx, conn, &env); err != nil {
			return err
		}
		s.dispatch(ctx, c, env)
	}
}

func (s *Server) writeLoop(ctx context.Context, conn *websocket.Conn, c *Client) error {
	ping := time.NewTicker(pingInterval)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.done:
			return errSlowClient
		case env := <-c.send:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(wctx, conn, env)
			cancel()
			if err != nil {
				return err
			}
		case <-ping.C:
			pctx, cancel := context.WithTimeout(ctx, pingTimeout)
			err := conn.Ping(pctx)
			cancel()
			if err != nil {
				return err
			}
		}
	}
}

// reply queues a message for this client only.
func (s *Server) reply(c *Client, kind string, payload any) {
	env, err := chessdto.NewEnvelope(kind, payload)
	if err != nil {
		s.logger.Error("reply_encode_failed", zap.String("type", kind), zap.Error(err))
		return
	}
	c.enqueue(env)
}

func (s *Server) replyError(c *Client, de chessdto.DomainError) {
	s.reply(c, chessdto.EventErrorMessage, chessdto.ErrorMessage{Reason: de.Message})
}

func decode[T any](env chessdto.Envelope) (T, error) {
	var v T
	if len(env.Data) == 0 {
		return v, errors.New("missing data")
	}
	err := json.Unmarshal(env.Data, &v)
	return v, err
}

func (s *Server) dispatch(ctx context.Context, c *Client, env chessdto.Envelope) {
	invalid := func(err error) {
		s.replyError(c, s.badRequest("request.invalid", map[string]string{"Detail": err.Error()}, "Invalid request"))
	}
	switch env.Type {
	case chessdto.EventJoin:
		req, err := decode[chessdto.RoomRef](env)
		if err != nil {
			invalid(err)
			return
		}
		s.hub.Subscribe(req.RoomID, c)
		if _, err := s.manager.Join(ctx, req.RoomID, c.id); err != nil {
			s.hub.Unsubscribe(req.RoomID, c)
			s.replyError(c, s.domainError(err))
			return
		}
		s.reply(c, chessdto.EventJoined, chessdto.RoomRef{RoomID: req.RoomID})

	case chessdto.EventSetBot:
		req, err := decode[chessdto.SetBotRequest](env)
		if err != nil {
			invalid(err)
			return
		}
		s.manager.SetBot(ctx, req.RoomID, req.BotID)

	case chessdto.EventMove:
		req, err := decode[chessdto.MoveRequest](env)
		if err != nil {
			invalid(err)
			return
		}
		if err := s.manager.MakeMove(ctx, req.RoomID, c.id, req.UCI); err != nil {
			s.replyError(c, s.domainError(err))
		}

	case chessdto.EventUndo:
		req, err := decode[chessdto.RoomRef](env)
		if err != nil {
			invalid(err)
			return
		}
		if err := s.manager.Undo(ctx, req.RoomID, c.id); err != nil {
			s.replyError(c, s.domainError(err))
		}

	case chessdto.EventReset:
		req, err := decode[chessdto.RoomRef](env)
		if err != nil {
			invalid(err)
			return
		}
		if err := s.manager.Reset(ctx, req.RoomID); err != nil {
			s.replyError(c, s.domainError(err))
		}

	default:
		s.replyError(c, s.badRequest("request.unknown_event", map[string]string{"Type": env.Type}, "Unknown event"))
	}
}
