// Package evaltest provides a scripted in-memory engine for tests.
package evaltest

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/Shonas301/only-moves/internal/eval"
	"github.com/Shonas301/only-moves/internal/graph"
)

// ErrCrashed is returned by queries after a scripted failure.
var ErrCrashed = errors.New("engine crashed")

// Engine answers TopCandidates from a table keyed by the space separated move
// history. Histories not in Lines get Default.
type Engine struct {
	mu sync.Mutex

	Lines   map[string][]graph.Candidate
	Default []graph.Candidate
	// FailOn makes the query for these histories fail with ErrCrashed.
	FailOn map[string]bool
	// Delay is slept before every answer.
	Delay time.Duration

	Queries  []string
	Settings eval.Settings
	Closed   bool

	startFEN string
	moves    []string
}

var _ eval.Engine = (*Engine)(nil)

// Scores builds candidates with defined scores and placeholder moves.
func Scores(scores ...int) []graph.Candidate {
	out := make([]graph.Candidate, len(scores))
	for i, s := range scores {
		out[i] = graph.Candidate{Move: fakeMove(i), Score: graph.Score(s), HasScore: true}
	}
	return out
}

// Mate returns a candidate without a centipawn score.
func Mate(move string) graph.Candidate {
	return graph.Candidate{Move: move}
}

func fakeMove(i int) string {
	return string([]byte{'a' + byte(i%8), '2', 'a' + byte(i%8), '3'})
}

func (e *Engine) SetStartPosition(fen string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.startFEN = fen
	e.moves = nil
	return nil
}

func (e *Engine) SetPositionByMoves(moves []string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.moves = append([]string(nil), moves...)
	return nil
}

func (e *Engine) TopCandidates(k int) ([]graph.Candidate, error) {
	time.Sleep(e.Delay)
	e.mu.Lock()
	defer e.mu.Unlock()
	hist := strings.Join(e.moves, " ")
	e.Queries = append(e.Queries, hist)
	if e.FailOn[hist] {
		return nil, ErrCrashed
	}
	cands, ok := e.Lines[hist]
	if !ok {
		cands = e.Default
	}
	if len(cands) > k {
		cands = cands[:k]
	}
	return append([]graph.Candidate(nil), cands...), nil
}

func (e *Engine) Configure(s eval.Settings) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Settings = s
	return nil
}

func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Closed = true
	return nil
}

// QueryCount returns the number of TopCandidates calls so far.
func (e *Engine) QueryCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.Queries)
}
