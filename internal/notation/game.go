// Package notation reads and writes games in PGN. Tokenizing (tag pairs,
// comments, variations, NAGs) happens here; SAN resolution, legality and
// position keys come from the pgn library.
package notation

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/Shonas301/only-moves/internal/graph"
)

// ErrNotation is wrapped by every error caused by malformed game text.
var ErrNotation = errors.New("notation error")

// ParseError reports a game that could not be read. The reader has already
// consumed the game, so reading can continue with the next one.
type ParseError struct {
	Game int // 1-based index in the source
	Ply  int // 0-based ply of the offending move, -1 when not move related
	Err  error
}

func (e *ParseError) Error() string {
	if e.Ply >= 0 {
		return fmt.Sprintf("game %d, ply %d: %v", e.Game, e.Ply, e.Err)
	}
	return fmt.Sprintf("game %d: %v", e.Game, e.Err)
}

func (e *ParseError) Unwrap() []error {
	return []error{ErrNotation, e.Err}
}

// Tag is one header pair.
type Tag struct {
	Name  string
	Value string
}

// Move is one mainline move.
type Move struct {
	SAN     string // as written, without !/? suffixes
	UCI     string
	Comment string
	Key     graph.PositionKey // position after the move
}

// Game is a parsed game: headers in source order and the mainline. Side lines
// in the source are dropped.
type Game struct {
	Index    int // 1-based position in the source, 0 for games built in code
	Tags     []Tag
	Comment  string // comment before the first move
	Moves    []*Move
	Result   string
	StartFEN string // empty for the standard starting position
}

// Tag returns the value of a header and whether it was present.
func (g *Game) Tag(name string) (string, bool) {
	for _, t := range g.Tags {
		if t.Name == name {
			return t.Value, true
		}
	}
	return "", false
}

// StartSide returns the side to move in the start position.
func (g *Game) StartSide() graph.Side {
	fields := strings.Fields(g.StartFEN)
	if len(fields) > 1 && fields[1] == "b" {
		return graph.Black
	}
	return graph.White
}

// StartMoveNumber returns the full move number of the start position.
func (g *Game) StartMoveNumber() int {
	fields := strings.Fields(g.StartFEN)
	if len(fields) > 5 {
		if n, err := strconv.Atoi(fields[5]); err == nil && n > 0 {
			return n
		}
	}
	return 1
}

// NewAnnotated returns an empty game sharing g's headers, start position and
// result, ready to receive annotated copies of g's moves.
func (g *Game) NewAnnotated() *Game {
	tags := make([]Tag, len(g.Tags))
	copy(tags, g.Tags)
	return &Game{
		Index:    g.Index,
		Tags:     tags,
		Comment:  g.Comment,
		Moves:    make([]*Move, 0, len(g.Moves)),
		Result:   g.Result,
		StartFEN: g.StartFEN,
	}
}

// Copy returns a new move with the same identifier, comment and key.
func (m *Move) Copy() *Move {
	c := *m
	return &c
}

func isResult(tok string) bool {
	switch tok {
	case "1-0", "0-1", "1/2-1/2", "*":
		return true
	}
	return false
}
