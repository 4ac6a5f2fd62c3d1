// Package eval wraps the engine that scores candidate moves and the per-worker
// cache that sits in front of it.
package eval

import (
	"errors"
	"fmt"

	"github.com/Shonas301/only-moves/internal/graph"
)

// ErrEngine is wrapped by every failure that comes from the engine process.
var ErrEngine = errors.New("engine error")

// StartFEN is the standard starting position.
const StartFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

// Engine is a stateful evaluator: position it, then ask for its best lines.
// An Engine serves one query at a time.
type Engine interface {
	// SetStartPosition sets the position that moves are replayed from.
	// An empty fen means the standard starting position.
	SetStartPosition(fen string) error
	// SetPositionByMoves replays UCI moves from the start position.
	SetPositionByMoves(moves []string) error
	// TopCandidates returns up to k lines, best first, scored from White's
	// point of view.
	TopCandidates(k int) ([]graph.Candidate, error)
	Configure(s Settings) error
	Close() error
}

// Factory creates a fresh engine. Each worker calls it for its own handle.
type Factory func() (Engine, error)

// Settings configures the engine search.
type Settings struct {
	Threads    int // search threads per engine
	HashMB     int // hash table size per engine
	Depth      int // search depth
	Elo        int // playing strength limit, 0 = unlimited
	Candidates int // lines to report (MultiPV)
}

// Search defaults.
const (
	DefaultThreads    = 6
	DefaultHashMB     = 4096
	DefaultDepth      = 20
	DefaultElo        = 2400
	DefaultCandidates = 5
)

// WithDefaults fills zero fields. Elo stays 0 (unlimited) unless set.
func (s Settings) WithDefaults() Settings {
	if s.Threads == 0 {
		s.Threads = DefaultThreads
	}
	if s.HashMB == 0 {
		s.HashMB = DefaultHashMB
	}
	if s.Depth == 0 {
		s.Depth = DefaultDepth
	}
	if s.Candidates == 0 {
		s.Candidates = DefaultCandidates
	}
	return s
}

func engineErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrEngine, op, err)
}
