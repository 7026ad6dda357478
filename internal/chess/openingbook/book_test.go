package openingbook

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	chesslib "github.com/corentings/chess/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/park285/chess-room-server/internal/chess/rules"
)

type rawEntry struct {
	Key    uint64
	Move   uint16
	Weight uint16
	Learn  uint32
}

// polyglot move bits: to file, to rank, from file, from rank.
func encode(fromFile, fromRank, toFile, toRank uint16) uint16 {
	return toFile | toRank<<3 | fromFile<<6 | fromRank<<9
}

func startKey(t *testing.T) uint64 {
	t.Helper()
	h, err := chesslib.NewZobristHasher().HashPosition(rules.StartFEN)
	require.NoError(t, err)
	return chesslib.ZobristHashToUint64(h)
}

func bookBytes(t *testing.T, entries ...rawEntry) []byte {
	t.Helper()
	var buf bytes.Buffer
	for _, e := range entries {
		require.NoError(t, binary.Write(&buf, binary.BigEndian, e))
	}
	return buf.Bytes()
}

func TestBestPrefersHeaviestLegalMove(t *testing.T) {
	key := startKey(t)
	data := bookBytes(t,
		rawEntry{Key: key, Move: encode(4, 1, 4, 3), Weight: 10},  // e2e4
		rawEntry{Key: key, Move: encode(3, 1, 3, 3), Weight: 20},  // d2d4
		rawEntry{Key: key, Move: encode(4, 1, 4, 4), Weight: 300}, // e2e5, illegal
	)
	book, err := Read(bytes.NewReader(data))
	require.NoError(t, err)

	moves, err := book.Moves(rules.StartFEN)
	require.NoError(t, err)
	require.Len(t, moves, 2)
	assert.Equal(t, "d2d4", moves[0].Move)
	assert.Equal(t, "e2e4", moves[1].Move)

	best, ok := book.Best(rules.StartFEN)
	require.True(t, ok)
	assert.Equal(t, "d2d4", best.Move)

	_, ok = book.Best("rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq e3 0 1")
	assert.False(t, ok, "position not in book")
}

func TestLoad(t *testing.T) {
	b, err := Load("")
	require.NoError(t, err)
	assert.Nil(t, b)
	_, ok := b.Best(rules.StartFEN)
	assert.False(t, ok)

	_, err = Load(filepath.Join(t.TempDir(), "missing.bin"))
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "book.bin")
	require.NoError(t, os.WriteFile(path, bookBytes(t, rawEntry{Key: startKey(t), Move: encode(6, 0, 5, 2), Weight: 1}), 0o644))
	b, err = Load(path)
	require.NoError(t, err)
	best, ok := b.Best(rules.StartFEN)
	require.True(t, ok)
	assert.Equal(t, "g1f3", best.Move)
}
