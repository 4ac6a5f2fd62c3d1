package eval

import (
	"errors"
	"testing"

	"github.com/freeeve/uci"

	"github.com/Shonas301/only-moves/internal/graph"
)

func TestCandidatesFromResults(t *testing.T) {
	results := &uci.Results{
		BestMove: "e2e4",
		Results: []uci.ScoreResult{
			{Depth: 20, MultiPV: 2, Score: 25, BestMoves: []string{"d2d4", "d7d5"}},
			{Depth: 19, MultiPV: 1, Score: 10, BestMoves: []string{"g1f3"}},
			{Depth: 20, MultiPV: 1, Score: 31, BestMoves: []string{"e2e4", "e7e5"}},
			{Depth: 20, MultiPV: 3, Score: 4, Mate: true, BestMoves: []string{"f2f3"}},
		},
	}

	got, err := candidatesFromResults(results, false, 5)
	if err != nil {
		t.Fatalf("candidatesFromResults: %v", err)
	}
	want := []graph.Candidate{
		{Move: "e2e4", Score: 31, HasScore: true},
		{Move: "d2d4", Score: 25, HasScore: true},
		{Move: "f2f3"},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d candidates, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("candidate %d = %v, want %v", i, got[i], want[i])
		}
	}

	// Black to move: scores flip to White's point of view.
	got, err = candidatesFromResults(results, true, 2)
	if err != nil {
		t.Fatalf("candidatesFromResults: %v", err)
	}
	if len(got) != 2 || got[0].Score != -31 || got[1].Score != -25 {
		t.Errorf("black to move candidates = %v", got)
	}
}

func TestCandidatesFromResultsMalformed(t *testing.T) {
	results := &uci.Results{Results: []uci.ScoreResult{
		{Depth: 20, MultiPV: 1, Score: 10, BestMoves: []string{"garbage"}},
	}}
	_, err := candidatesFromResults(results, false, 5)
	if !errors.Is(err, ErrEngine) {
		t.Errorf("expected ErrEngine, got %v", err)
	}

	if _, err := candidatesFromResults(nil, false, 5); !errors.Is(err, ErrEngine) {
		t.Errorf("nil results should be an engine error, got %v", err)
	}
}

func TestCandidatesFromResultsTerminalPosition(t *testing.T) {
	// Checkmate on the board: the engine reports a score but no move.
	results := &uci.Results{Results: []uci.ScoreResult{{Depth: 0, Score: 0, Mate: true}}}
	got, err := candidatesFromResults(results, false, 5)
	if err != nil {
		t.Fatalf("candidatesFromResults: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no candidates, got %v", got)
	}
}

func TestClampHash(t *testing.T) {
	const gb = 1024 * 1024 * 1024

	s, changed := clampHashTo(Settings{HashMB: 4096}, 8, 16*gb)
	if !changed || s.HashMB != 1024 {
		t.Errorf("clamp 8 workers on 16GB = %d (changed %v), want 1024", s.HashMB, changed)
	}

	s, changed = clampHashTo(Settings{HashMB: 512}, 2, 16*gb)
	if changed || s.HashMB != 512 {
		t.Errorf("hash within budget should be kept, got %d", s.HashMB)
	}

	s, changed = clampHashTo(Settings{}, 4, 0)
	if changed || s.HashMB != DefaultHashMB {
		t.Errorf("unknown memory should leave defaults, got %d", s.HashMB)
	}
}

func TestSettingsDefaults(t *testing.T) {
	s := Settings{Depth: 12}.WithDefaults()
	if s.Depth != 12 || s.Threads != DefaultThreads || s.HashMB != DefaultHashMB || s.Candidates != DefaultCandidates {
		t.Errorf("WithDefaults = %+v", s)
	}
	if s.Elo != 0 {
		t.Errorf("Elo should stay unlimited, got %d", s.Elo)
	}
}

func TestUCIEngineSideToMove(t *testing.T) {
	e := &UCIEngine{}
	e.SetStartPosition("")
	if e.blackToMove() {
		t.Errorf("start position should be white to move")
	}
	if err := e.SetPositionByMoves([]string{"e2e4"}); err != nil {
		t.Fatalf("SetPositionByMoves: %v", err)
	}
	if !e.blackToMove() {
		t.Errorf("after one move black should be to move")
	}
	e.SetStartPosition("4k3/8/8/8/8/8/4P3/4K3 b - - 0 30")
	if !e.blackToMove() {
		t.Errorf("FEN start with black to move")
	}
	if err := e.SetPositionByMoves([]string{"bad"}); err == nil {
		t.Errorf("malformed move should be rejected")
	}
}

func TestNewUCIEngineRequiresPath(t *testing.T) {
	if _, err := NewUCIEngine("", Settings{}); err == nil {
		t.Errorf("expected error for empty path")
	}
}
