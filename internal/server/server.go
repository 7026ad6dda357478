package server

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/park285/chess-room-server/internal/chess"
	"github.com/park285/chess-room-server/internal/gameroom"
	"github.com/park285/chess-room-server/internal/msgcat"
)

const (
	evalMoveTimeMillis = 120
	evalDepth          = 12
	defaultEvalKey     = "global"
)

// Evaluator is the engine queue as seen by the HTTP layer.
type Evaluator interface {
	Request(ctx context.Context, fen string, opts chess.SearchOptions) chess.SearchResult
	EngineName() string
}

type Deps struct {
	Manager   *gameroom.Manager
	Hub       *Hub
	Evaluator Evaluator
	Bots      *chess.BotTable
	Catalog   *msgcat.Catalog
	Logger    *zap.Logger

	AllowedOrigins []string
	EvalThrottle   time.Duration
}

type Server struct {
	manager  *gameroom.Manager
	hub      *Hub
	eval     Evaluator
	bots     *chess.BotTable
	catalog  *msgcat.Catalog
	logger   *zap.Logger
	throttle *evalThrottle

	origins        []string
	originPatterns []string
}

func New(d Deps) *Server {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Hub == nil {
		d.Hub = NewHub(d.Logger)
	}
	if d.Bots == nil {
		d.Bots = d.Manager.Bots()
	}
	if d.Catalog == nil {
		d.Catalog = msgcat.MustDefault()
	}
	if len(d.AllowedOrigins) == 0 {
		d.AllowedOrigins = []string{"*"}
	}
	return &Server{
		manager:        d.Manager,
		hub:            d.Hub,
		eval:           d.Evaluator,
		bots:           d.Bots,
		catalog:        d.Catalog,
		logger:         d.Logger,
		throttle:       newEvalThrottle(d.EvalThrottle),
		origins:        d.AllowedOrigins,
		originPatterns: originPatterns(d.AllowedOrigins),
	}
}

// originPatterns turns allowed origins into host patterns for the
// websocket handshake.
func originPatterns(origins []string) []string {
	return lo.Uniq(lo.FilterMap(origins, func(o string, _ int) (string, bool) {
		o = strings.TrimSpace(o)
		if o == "" {
			return "", false
		}
		if o == "*" || !strings.Contains(o, "://") {
			return o, true
		}
		u, err := url.Parse(o)
		if err != nil || u.Host == "" {
			return "", false
		}
		return u.Host, true
	}))
}

// Routes builds the HTTP handler: REST under /api and the websocket at /ws.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors(s.origins))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/bots", s.handleBots)
		r.Post("/rooms", s.handleCreateRoom)
		r.Get("/rooms/{roomID}", s.handleRoomState)
		r.Get("/eval", s.handleEval)
	})
	r.Get("/ws", s.handleWS)
	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("http_request",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("took", time.Since(start)),
		)
	})
}

// cors echoes allowed origins. Credentials are only allowed for explicitly
// listed origins.
func cors(allowed []string) func(http.Handler) http.Handler {
	wildcard := lo.Contains(allowed, "*")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			explicit := origin != "" && lo.Contains(allowed, origin)
			if origin != "" && (wildcard || explicit) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
				w.Header().Add("Vary", "Origin")
				if explicit {
					w.Header().Set("Access-Control-Allow-Credentials", "true")
				}
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
