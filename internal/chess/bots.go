package chess

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/samber/lo"
	"gopkg.in/yaml.v3"

	"github.com/park285/chess-room-server/internal/domain"
)

const DefaultBotID = "bot1200"

var defaultBotLevels = []domain.BotLevel{
	{ID: "bot400", Name: "Bot 400", Elo: 400, Skill: 0, Depth: 4, MoveTimeMillis: 80},
	{ID: "bot600", Name: "Bot 600", Elo: 600, Skill: 2, Depth: 5, MoveTimeMillis: 100},
	{ID: "bot800", Name: "Bot 800", Elo: 800, Skill: 4, Depth: 6, MoveTimeMillis: 130},
	{ID: "bot1000", Name: "Bot 1000", Elo: 1000, Skill: 6, Depth: 7, MoveTimeMillis: 160},
	{ID: "bot1200", Name: "Bot 1200", Elo: 1200, Skill: 8, Depth: 8, MoveTimeMillis: 200},
	{ID: "bot1400", Name: "Bot 1400", Elo: 1400, Skill: 10, Depth: 9, MoveTimeMillis: 240},
	{ID: "bot1600", Name: "Bot 1600", Elo: 1600, Skill: 12, Depth: 10, MoveTimeMillis: 300},
	{ID: "bot1800", Name: "Bot 1800", Elo: 1800, Skill: 14, Depth: 11, MoveTimeMillis: 360},
	{ID: "bot2000", Name: "Bot 2000", Elo: 2000, Skill: 16, Depth: 12, MoveTimeMillis: 420},
	{ID: "bot2200", Name: "Bot 2200", Elo: 2200, Skill: 18, Depth: 13, MoveTimeMillis: 520},
	{ID: "bot2350", Name: "Bot 2350", Elo: 2350, Skill: 19, Depth: 14, MoveTimeMillis: 620},
	{ID: "bot2500", Name: "Bot 2500", Elo: 2500, Skill: 20, Depth: 15, MoveTimeMillis: 750},
}

// BotTable is the ordered strength table. Unknown ids resolve to the default
// level.
type BotTable struct {
	mu        sync.RWMutex
	levels    []domain.BotLevel
	defaultID string
}

func DefaultBotTable() *BotTable {
	return &BotTable{levels: cloneLevels(defaultBotLevels), defaultID: DefaultBotID}
}

type botFile struct {
	Default string            `yaml:"default"`
	Bots    []domain.BotLevel `yaml:"bots"`
}

// LoadBotTable reads a yaml table from path. An empty path yields the
// built-in table.
func LoadBotTable(path string) (*BotTable, error) {
	t := DefaultBotTable()
	path = strings.TrimSpace(path)
	if path == "" {
		return t, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read bot table: %w", err)
	}
	var f botFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse bot table %s: %w", path, err)
	}
	if len(f.Bots) > 0 {
		if err := t.Replace(f.Bots); err != nil {
			return nil, err
		}
	}
	if f.Default != "" {
		if err := t.SetDefault(f.Default); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func (t *BotTable) List() []domain.BotLevel {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return cloneLevels(t.levels)
}

func (t *BotTable) Has(id string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := lo.Find(t.levels, func(b domain.BotLevel) bool { return b.ID == id })
	return ok
}

// Lookup resolves id, falling back to the default level.
func (t *BotTable) Lookup(id string) domain.BotLevel {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if b, ok := lo.Find(t.levels, func(b domain.BotLevel) bool { return b.ID == id }); ok {
		return b
	}
	b, _ := lo.Find(t.levels, func(b domain.BotLevel) bool { return b.ID == t.defaultID })
	return b
}

// Resolve returns id if it names a level and the default id otherwise.
func (t *BotTable) Resolve(id string) string {
	if t.Has(id) {
		return id
	}
	return t.DefaultID()
}

func (t *BotTable) DefaultID() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.defaultID
}

func (t *BotTable) SetDefault(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !lo.ContainsBy(t.levels, func(b domain.BotLevel) bool { return b.ID == id }) {
		return fmt.Errorf("unknown bot level: %s", id)
	}
	t.defaultID = id
	return nil
}

func (t *BotTable) Replace(levels []domain.BotLevel) error {
	if len(levels) == 0 {
		return fmt.Errorf("bot table must not be empty")
	}
	seen := make(map[string]struct{}, len(levels))
	for _, b := range levels {
		if err := ValidateBotLevel(b); err != nil {
			return err
		}
		if _, dup := seen[b.ID]; dup {
			return fmt.Errorf("duplicate bot level: %s", b.ID)
		}
		seen[b.ID] = struct{}{}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.levels = cloneLevels(levels)
	if _, ok := seen[t.defaultID]; !ok {
		t.defaultID = levels[0].ID
	}
	return nil
}

func ValidateBotLevel(b domain.BotLevel) error {
	switch {
	case strings.TrimSpace(b.ID) == "":
		return fmt.Errorf("bot id must not be empty")
	case b.Skill < 0 || b.Skill > 20:
		return fmt.Errorf("bot %s: skill level %d out of range 0-20", b.ID, b.Skill)
	case b.Depth <= 0:
		return fmt.Errorf("bot %s: depth must be > 0: %d", b.ID, b.Depth)
	case b.MoveTimeMillis < 0:
		return fmt.Errorf("bot %s: move time must be >= 0: %d", b.ID, b.MoveTimeMillis)
	}
	return nil
}

// BotSearchOptions converts a level into queue options for a bot move.
func BotSearchOptions(b domain.BotLevel) SearchOptions {
	return SearchOptions{
		MoveTimeMillis: b.MoveTimeMillis,
		Depth:          b.Depth,
		Skill:          SkillLevel(b.Skill),
		RequireMove:    true,
	}
}

func cloneLevels(in []domain.BotLevel) []domain.BotLevel {
	return append([]domain.BotLevel(nil), in...)
}
