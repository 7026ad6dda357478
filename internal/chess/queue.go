package chess

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const DefaultQueueDelay = 10 * time.Millisecond

type QueueConfig struct {
	// Delay separates consecutive searches when more work is waiting.
	Delay time.Duration
}

// Queue serializes every engine request of the process through a single
// worker. Requests that fail resolve to an empty result.
type Queue struct {
	engine Engine
	cache  EvalCache
	delay  time.Duration
	logger *zap.Logger

	mu      sync.Mutex
	pending []*queueJob
	closed  bool

	wake     chan struct{}
	stop     chan struct{}
	done     chan struct{}
	searches atomic.Int64
}

type queueJob struct {
	ctx    context.Context
	fen    string
	opts   SearchOptions
	result chan SearchResult
}

func NewQueue(engine Engine, cache EvalCache, cfg QueueConfig, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cache == nil {
		cache = NewMemoryEvalCache(DefaultEvalTTL)
	}
	if cfg.Delay < 0 {
		cfg.Delay = 0
	}
	q := &Queue{
		engine: engine,
		cache:  cache,
		delay:  cfg.Delay,
		logger: logger,
		wake:   make(chan struct{}, 1),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go q.loop()
	return q
}

func (q *Queue) EngineName() string { return q.engine.Name() }

// Searches reports how many searches reached the engine.
func (q *Queue) Searches() int64 { return q.searches.Load() }

// Submit enqueues a request and returns a handle resolved exactly once.
func (q *Queue) Submit(ctx context.Context, fen string, opts SearchOptions) <-chan SearchResult {
	out := make(chan SearchResult, 1)
	if !opts.RequireMove {
		if cp, ok := q.cache.Get(ctx, fen); ok {
			out <- SearchResult{EvalCP: cp}
			return out
		}
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		out <- SearchResult{}
		return out
	}
	q.pending = append(q.pending, &queueJob{ctx: ctx, fen: fen, opts: opts, result: out})
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return out
}

// Request waits for the result of Submit. A cancelled ctx yields an empty
// result.
func (q *Queue) Request(ctx context.Context, fen string, opts SearchOptions) SearchResult {
	select {
	case res := <-q.Submit(ctx, fen, opts):
		return res
	case <-ctx.Done():
		return SearchResult{}
	}
}

func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

func (q *Queue) next() (*queueJob, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed || len(q.pending) == 0 {
		return nil, false
	}
	j := q.pending[0]
	q.pending[0] = nil
	q.pending = q.pending[1:]
	return j, true
}

func (q *Queue) loop() {
	defer close(q.done)
	for {
		j, ok := q.next()
		if !ok {
			select {
			case <-q.wake:
				continue
			case <-q.stop:
				return
			}
		}

		j.result <- q.run(j)

		if q.Pending() > 0 && q.delay > 0 {
			t := time.NewTimer(q.delay)
			select {
			case <-t.C:
			case <-q.stop:
				t.Stop()
				return
			}
		}
	}
}

func (q *Queue) run(j *queueJob) SearchResult {
	if err := j.ctx.Err(); err != nil {
		return SearchResult{}
	}
	q.searches.Add(1)
	start := time.Now()
	res, err := q.engine.Search(j.ctx, j.fen, j.opts)
	if err != nil {
		q.logger.Warn("engine_search_failed",
			zap.String("engine", q.engine.Name()),
			zap.String("fen", j.fen),
			zap.Error(err),
		)
		return SearchResult{}
	}
	if !res.Book {
		q.cache.Set(j.ctx, j.fen, res.EvalCP)
	}
	q.logger.Debug("engine_search",
		zap.String("engine", q.engine.Name()),
		zap.String("best", res.BestMove),
		zap.Int("eval_cp", res.EvalCP),
		zap.Duration("took", time.Since(start)),
	)
	return res
}

// Close stops the worker and resolves anything still waiting with an empty
// result. The engine itself is not closed.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()

	close(q.stop)
	<-q.done

	q.mu.Lock()
	rest := q.pending
	q.pending = nil
	q.mu.Unlock()
	for _, j := range rest {
		j.result <- SearchResult{}
	}
}
