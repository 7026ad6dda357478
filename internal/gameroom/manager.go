package gameroom

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/park285/chess-room-server/internal/chess"
	"github.com/park285/chess-room-server/internal/chess/rules"
	"github.com/park285/chess-room-server/internal/domain"
	"github.com/park285/chess-room-server/pkg/chessdto"
)

const (
	idAttempts   = 5
	storeTimeout = 2 * time.Second
)

type Config struct {
	Bots   *chess.BotTable
	Store  Store
	Logger *zap.Logger
	// Now and NewID are replaced in tests.
	Now   func() time.Time
	NewID func() string
}

// Manager owns every live room of the process. Mutations of one room are
// serialized by the room's mutex; bot replies run on their own goroutine and
// re-check the room generation before applying.
type Manager struct {
	queue    Requester
	notifier Notifier
	bots     *chess.BotTable
	store    Store
	logger   *zap.Logger
	now      func() time.Time
	newID    func() string

	mu    sync.RWMutex
	rooms map[string]*Room

	baseCtx context.Context
	cancel  context.CancelFunc
	replies sync.WaitGroup
}

func NewManager(queue Requester, notifier Notifier, cfg Config) *Manager {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if cfg.Bots == nil {
		cfg.Bots = chess.DefaultBotTable()
	}
	if cfg.Store == nil {
		cfg.Store = NewMemoryStore(DefaultRoomTTL)
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = shortID
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		queue:    queue,
		notifier: notifier,
		bots:     cfg.Bots,
		store:    cfg.Store,
		logger:   cfg.Logger,
		now:      cfg.Now,
		newID:    cfg.NewID,
		rooms:    make(map[string]*Room),
		baseCtx:  ctx,
		cancel:   cancel,
	}
}

// shortID is the first group of a random UUID.
func shortID() string {
	id := uuid.NewString()
	return id[:strings.IndexByte(id, '-')]
}

// SetNotifier swaps the event sink. Call before serving traffic.
func (m *Manager) SetNotifier(n Notifier) {
	if n == nil {
		n = nopNotifier{}
	}
	m.notifier = n
}

func (m *Manager) Bots() *chess.BotTable { return m.bots }

func (m *Manager) CreateRoom(ctx context.Context, mode, botID string) (string, error) {
	now := m.now()
	r := &Room{
		mode:      domain.ParseMode(mode),
		botID:     m.bots.Resolve(strings.TrimSpace(botID)),
		board:     rules.NewBoard(),
		createdAt: now,
		touched:   now,
		gen:       1,
	}

	m.mu.Lock()
	for i := 0; i < idAttempts; i++ {
		id := m.newID()
		if _, taken := m.rooms[id]; taken {
			continue
		}
		r.id = id
		m.rooms[id] = r
		break
	}
	m.mu.Unlock()
	if r.id == "" {
		return "", fmt.Errorf("failed to allocate room id")
	}

	r.mu.Lock()
	m.persist(ctx, r)
	r.mu.Unlock()
	m.logger.Info("room_created",
		zap.String("room_id", r.id),
		zap.String("mode", string(r.mode)),
		zap.String("bot_id", r.botID),
	)
	return r.id, nil
}

// Join seats participantID in the first open seat. A full room still admits
// the caller as an observer.
func (m *Manager) Join(ctx context.Context, roomID, participantID string) (chessdto.RoomState, error) {
	r, ok := m.lookup(ctx, roomID)
	if !ok {
		return chessdto.RoomState{}, ErrRoomNotFound
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, seated := r.seatOf(participantID); !seated && participantID != "" {
		switch {
		case r.white == "":
			r.white = participantID
		case r.black == "":
			r.black = participantID
		}
	}
	r.touched = m.now()
	m.persist(ctx, r)
	st := r.state()
	m.notifier.RoomState(r.id, st)
	return st, nil
}

// SetBot switches the room to bot mode. Unknown rooms are ignored.
func (m *Manager) SetBot(ctx context.Context, roomID, botID string) {
	r, ok := m.lookup(ctx, roomID)
	if !ok {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mode = domain.ModeBot
	r.botID = m.bots.Resolve(strings.TrimSpace(botID))
	r.touched = m.now()
	m.persist(ctx, r)
	m.notifier.RoomState(r.id, r.state())
}

func (m *Manager) MakeMove(ctx context.Context, roomID, requesterID, uci string) error {
	r, ok := m.lookup(ctx, roomID)
	if !ok {
		return ErrRoomGone
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	uci = rules.NormalizeUCI(uci)
	if !r.board.IsLegal(uci) {
		return ErrIllegalMove
	}
	switch r.mode {
	case domain.ModePvP:
		if seat, ok := r.seatOf(requesterID); !ok || seat != r.board.Turn() {
			return ErrWrongTurn
		}
	case domain.ModeBot:
		if r.replyPending() {
			return ErrWrongTurn
		}
	}

	if err := m.apply(ctx, r, uci); err != nil {
		return err
	}
	if r.board.IsGameOver() {
		return nil
	}
	if r.mode == domain.ModeBot {
		m.scheduleReply(r)
	}
	return nil
}

// apply plays a legal move and emits the resulting events. r.mu is held.
func (m *Manager) apply(ctx context.Context, r *Room, uci string) error {
	if err := r.board.Apply(uci); err != nil {
		return ErrIllegalMove
	}
	r.syncHistory()
	r.gen++
	r.touched = m.now()
	m.persist(ctx, r)
	m.notifier.RoomState(r.id, r.state())
	if r.board.IsGameOver() {
		out := rules.Outcome(r.board)
		m.logger.Info("game_over",
			zap.String("room_id", r.id),
			zap.String("result", out.Result),
			zap.String("reason", out.Reason),
			zap.Int("plies", len(r.moves)),
		)
		m.notifier.GameOver(r.id, chessdto.GameOver{Result: out.Result, Reason: out.Reason})
	}
	return nil
}

// scheduleReply starts the single bot reply owed for the current
// generation. r.mu is held.
func (m *Manager) scheduleReply(r *Room) {
	gen := r.gen
	r.replyGen = gen
	m.replies.Add(1)
	go func() {
		defer m.replies.Done()
		m.runReply(m.baseCtx, r, gen)
	}()
}

// BotReply asks the engine for a move in the room's current position and
// plays it if the position has not changed meanwhile.
func (m *Manager) BotReply(ctx context.Context, roomID string) {
	r, ok := m.lookup(ctx, roomID)
	if !ok {
		return
	}
	r.mu.Lock()
	gen := r.gen
	r.replyGen = gen
	r.mu.Unlock()
	m.runReply(ctx, r, gen)
}

func (m *Manager) runReply(ctx context.Context, r *Room, gen uint64) {
	r.mu.Lock()
	if r.gen != gen || r.board.IsGameOver() {
		m.clearReply(r, gen)
		r.mu.Unlock()
		return
	}
	level := m.bots.Lookup(r.botID)
	fen := r.board.FEN()
	r.mu.Unlock()

	res := m.queue.Request(ctx, fen, chess.BotSearchOptions(level))

	r.mu.Lock()
	defer r.mu.Unlock()
	m.clearReply(r, gen)
	if r.gen != gen {
		m.logger.Debug("bot_reply_stale", zap.String("room_id", r.id), zap.String("move", res.BestMove))
		return
	}
	if res.BestMove == "" || !r.board.IsLegal(res.BestMove) {
		m.logger.Debug("bot_reply_dropped", zap.String("room_id", r.id), zap.String("move", res.BestMove))
		return
	}
	if err := m.apply(ctx, r, res.BestMove); err != nil {
		return
	}
	code, title := chess.OpeningLabel(r.board)
	m.logger.Info("bot_move",
		zap.String("room_id", r.id),
		zap.String("bot_id", level.ID),
		zap.String("move", res.BestMove),
		zap.Int("eval_cp", res.EvalCP),
		zap.String("eco", code),
		zap.String("opening", title),
	)
}

func (m *Manager) clearReply(r *Room, gen uint64) {
	if r.replyGen == gen {
		r.replyGen = 0
	}
}

// Undo takes back one ply in pvp and a full move pair in bot mode.
func (m *Manager) Undo(ctx context.Context, roomID, requesterID string) error {
	r, ok := m.lookup(ctx, roomID)
	if !ok {
		return ErrRoomGone
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	plies := 1
	switch r.mode {
	case domain.ModePvP:
		if _, ok := r.seatOf(requesterID); !ok {
			return ErrNotAllowed
		}
	case domain.ModeBot:
		plies = 2
	}
	for i := 0; i < plies; i++ {
		if !r.board.Undo() {
			break
		}
	}
	r.syncHistory()
	r.gen++
	r.touched = m.now()
	m.persist(ctx, r)
	m.notifier.RoomState(r.id, r.state())
	return nil
}

func (m *Manager) Reset(ctx context.Context, roomID string) error {
	r, ok := m.lookup(ctx, roomID)
	if !ok {
		return ErrRoomGone
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.board.Reset()
	r.syncHistory()
	r.gen++
	r.touched = m.now()
	m.persist(ctx, r)
	m.notifier.RoomState(r.id, r.state())
	return nil
}

// State returns the current snapshot of a room.
func (m *Manager) State(ctx context.Context, roomID string) (chessdto.RoomState, error) {
	r, ok := m.lookup(ctx, roomID)
	if !ok {
		return chessdto.RoomState{}, ErrRoomNotFound
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state(), nil
}

func (m *Manager) Seats(ctx context.Context, roomID string) (Seats, error) {
	r, ok := m.lookup(ctx, roomID)
	if !ok {
		return Seats{}, ErrRoomNotFound
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return Seats{White: r.white, Black: r.black}, nil
}

func (m *Manager) Exists(ctx context.Context, roomID string) bool {
	_, ok := m.lookup(ctx, roomID)
	return ok
}

func (m *Manager) RoomCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms)
}

// lookup finds a live room or restores it from the store.
func (m *Manager) lookup(ctx context.Context, roomID string) (*Room, bool) {
	roomID = strings.TrimSpace(roomID)
	if roomID == "" {
		return nil, false
	}
	m.mu.RLock()
	r, ok := m.rooms[roomID]
	m.mu.RUnlock()
	if ok {
		return r, true
	}

	loadCtx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	snap, err := m.store.Load(loadCtx, roomID)
	if err != nil {
		m.logger.Warn("room_restore_failed", zap.String("room_id", roomID), zap.Error(err))
		return nil, false
	}
	if snap == nil {
		return nil, false
	}
	restored, err := m.restore(*snap)
	if err != nil {
		m.logger.Warn("room_restore_failed", zap.String("room_id", roomID), zap.Error(err))
		return nil, false
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.rooms[roomID]; ok {
		return existing, true
	}
	m.rooms[roomID] = restored
	m.logger.Info("room_restored", zap.String("room_id", roomID), zap.Int("plies", len(restored.moves)))
	return restored, true
}

func (m *Manager) restore(snap Snapshot) (*Room, error) {
	board, err := rules.Replay(snap.StartFEN, snap.Moves)
	if err != nil {
		return nil, err
	}
	r := &Room{
		id:        snap.ID,
		mode:      domain.ParseMode(snap.Mode),
		botID:     m.bots.Resolve(snap.BotID),
		board:     board,
		white:     snap.White,
		black:     snap.Black,
		createdAt: snap.CreatedAt,
		touched:   m.now(),
		gen:       1,
	}
	r.syncHistory()
	return r, nil
}

// persist saves the room snapshot. r.mu is held. Store failures are logged
// and never fail the operation.
func (m *Manager) persist(ctx context.Context, r *Room) {
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeTimeout)
	defer cancel()
	if err := m.store.Save(saveCtx, r.snapshot()); err != nil {
		m.logger.Warn("room_save_failed", zap.String("room_id", r.id), zap.Error(err))
	}
}

// Evict drops rooms untouched for longer than idle from memory. Their
// snapshots stay in the store until it expires them.
func (m *Manager) Evict(idle time.Duration) int {
	cutoff := m.now().Add(-idle)
	m.mu.Lock()
	defer m.mu.Unlock()
	evicted := 0
	for id, r := range m.rooms {
		r.mu.Lock()
		stale := r.touched.Before(cutoff) && !r.replyPending()
		r.mu.Unlock()
		if stale {
			delete(m.rooms, id)
			evicted++
		}
	}
	if evicted > 0 {
		m.logger.Info("rooms_evicted", zap.Int("count", evicted), zap.Int("live", len(m.rooms)))
	}
	return evicted
}

// Wait blocks until every scheduled bot reply has finished.
func (m *Manager) Wait() { m.replies.Wait() }

// Close cancels pending bot replies and waits for them to return.
func (m *Manager) Close() {
	m.cancel()
	m.replies.Wait()
}
