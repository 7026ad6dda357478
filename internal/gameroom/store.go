package gameroom

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// Snapshot is everything needed to rebuild a room: the board is replayed
// from StartFEN through Moves.
type Snapshot struct {
	ID        string    `json:"id"`
	Mode      string    `json:"mode"`
	BotID     string    `json:"botId"`
	StartFEN  string    `json:"startFen"`
	Moves     []string  `json:"moves"`
	White     string    `json:"white,omitempty"`
	Black     string    `json:"black,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Store keeps room snapshots. Load returns (nil, nil) for unknown ids.
type Store interface {
	Save(ctx context.Context, snap Snapshot) error
	Load(ctx context.Context, id string) (*Snapshot, error)
}

type MemoryStore struct {
	entries *ttlcache.Cache[string, Snapshot]
}

// NewMemoryStore keeps snapshots for ttl after their last save; ttl <= 0
// keeps them forever. Expired snapshots are released on the next save.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl < 0 {
		ttl = ttlcache.NoTTL
	}
	return &MemoryStore{entries: ttlcache.New(
		ttlcache.WithTTL[string, Snapshot](ttl),
		ttlcache.WithDisableTouchOnHit[string, Snapshot](),
	)}
}

func (s *MemoryStore) Save(_ context.Context, snap Snapshot) error {
	s.entries.DeleteExpired()
	snap.Moves = append([]string(nil), snap.Moves...)
	s.entries.Set(snap.ID, snap, ttlcache.DefaultTTL)
	return nil
}

func (s *MemoryStore) Load(_ context.Context, id string) (*Snapshot, error) {
	item := s.entries.Get(id)
	if item == nil {
		return nil, nil
	}
	snap := item.Value()
	snap.Moves = append([]string(nil), snap.Moves...)
	return &snap, nil
}

// Len counts held snapshots, expired ones not yet released included.
func (s *MemoryStore) Len() int { return s.entries.Len() }
