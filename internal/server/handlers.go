package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/park285/chess-room-server/internal/chess"
	"github.com/park285/chess-room-server/internal/chess/rules"
	"github.com/park285/chess-room-server/pkg/chessdto"
)

const maxBodyBytes = 1 << 20

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("write_response_failed", zap.Error(err))
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := chessdto.HealthResponse{OK: true}
	if s.eval != nil {
		resp.Engine = s.eval.EngineName()
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleBots(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.bots.List())
}

func (s *Server) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	var req chessdto.CreateRoomRequest
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.writeJSON(w, http.StatusBadRequest, s.badRequest("request.invalid", map[string]string{"Detail": "malformed json"}, "Invalid request"))
		return
	}
	id, err := s.manager.CreateRoom(r.Context(), req.Mode, req.BotID)
	if err != nil {
		s.logger.Error("create_room_failed", zap.Error(err))
		s.writeJSON(w, http.StatusInternalServerError, s.domainError(err))
		return
	}
	s.writeJSON(w, http.StatusOK, chessdto.CreateRoomResponse{RoomID: id})
}

func (s *Server) handleRoomState(w http.ResponseWriter, r *http.Request) {
	st, err := s.manager.State(r.Context(), chi.URLParam(r, "roomID"))
	if err != nil {
		s.writeJSON(w, http.StatusNotFound, s.domainError(err))
		return
	}
	s.writeJSON(w, http.StatusOK, st)
}

// handleEval returns a quick evaluation of fen. Callers polling faster than
// the throttle window for the same room get 0.
func (s *Server) handleEval(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	fen := strings.TrimSpace(q.Get("fen"))
	if fen == "" {
		s.writeJSON(w, http.StatusBadRequest, s.badRequest("request.missing_fen", nil, "fen is required"))
		return
	}
	if _, err := rules.FromFEN(fen); err != nil {
		s.writeJSON(w, http.StatusBadRequest, s.badRequest("request.invalid_fen", nil, "Invalid fen"))
		return
	}
	key := strings.TrimSpace(q.Get("roomId"))
	if key == "" {
		key = defaultEvalKey
	}
	if !s.throttle.Allow(key) {
		s.writeJSON(w, http.StatusOK, chessdto.EvalResponse{EvalCP: 0})
		return
	}
	res := s.eval.Request(r.Context(), fen, chess.SearchOptions{MoveTimeMillis: evalMoveTimeMillis, Depth: evalDepth})
	s.writeJSON(w, http.StatusOK, chessdto.EvalResponse{EvalCP: res.EvalCP})
}
