package eval

import (
	"fmt"
	"sort"
	"strings"

	"github.com/freeeve/uci"
	"github.com/pbnjay/memory"

	"github.com/Shonas301/only-moves/internal/graph"
)

// UCIEngine drives a UCI engine process (Stockfish) through the uci package.
type UCIEngine struct {
	eng      *uci.Engine
	path     string
	settings Settings
	multiPV  int

	startFEN string
	moves    []string
}

// NewUCIEngine starts the engine at path and applies s.
func NewUCIEngine(path string, s Settings) (*UCIEngine, error) {
	if path == "" {
		return nil, fmt.Errorf("stockfish path required")
	}
	eng, err := uci.NewEngine(path)
	if err != nil {
		return nil, engineErr("create engine", err)
	}
	e := &UCIEngine{eng: eng, path: path, startFEN: StartFEN}
	if err := e.Configure(s); err != nil {
		eng.Close()
		return nil, err
	}
	return e, nil
}

// UCIFactory returns a Factory starting a new engine process per call.
func UCIFactory(path string, s Settings) Factory {
	return func() (Engine, error) {
		return NewUCIEngine(path, s)
	}
}

// Configure sends search options. Strength limiting uses the standard
// UCI_LimitStrength/UCI_Elo options.
func (e *UCIEngine) Configure(s Settings) error {
	s = s.WithDefaults()
	opts := uci.Options{
		Hash:    s.HashMB,
		Threads: s.Threads,
		MultiPV: s.Candidates,
		Ponder:  false,
		OwnBook: false,
	}
	if err := e.eng.SetOptions(opts); err != nil {
		return engineErr("set options", err)
	}
	if s.Elo > 0 {
		if err := e.eng.SendOption("UCI_LimitStrength", true); err != nil {
			return engineErr("limit strength", err)
		}
		if err := e.eng.SendOption("UCI_Elo", s.Elo); err != nil {
			return engineErr("set elo", err)
		}
	}
	e.settings = s
	e.multiPV = s.Candidates
	return nil
}

func (e *UCIEngine) SetStartPosition(fen string) error {
	if fen == "" {
		fen = StartFEN
	}
	e.startFEN = fen
	e.moves = nil
	return nil
}

func (e *UCIEngine) SetPositionByMoves(moves []string) error {
	for _, m := range moves {
		if err := graph.ValidateUCI(m); err != nil {
			return fmt.Errorf("position by moves: %w", err)
		}
	}
	e.moves = append(e.moves[:0], moves...)
	return nil
}

// TopCandidates searches the current position to the configured depth.
func (e *UCIEngine) TopCandidates(k int) ([]graph.Candidate, error) {
	if k <= 0 {
		return nil, fmt.Errorf("candidate count must be positive, got %d", k)
	}
	if k != e.multiPV {
		if err := e.eng.SendOption("MultiPV", k); err != nil {
			return nil, engineErr("set multipv", err)
		}
		e.multiPV = k
	}

	position := e.startFEN
	if len(e.moves) > 0 {
		position += " moves " + strings.Join(e.moves, " ")
	}
	if err := e.eng.SetFEN(position); err != nil {
		return nil, engineErr("set position", err)
	}

	results, err := e.eng.GoDepth(e.settings.Depth, uci.HighestDepthOnly)
	if err != nil {
		return nil, engineErr("search", err)
	}
	return candidatesFromResults(results, e.blackToMove(), k)
}

// blackToMove derives the side to move from the start FEN and move count.
func (e *UCIEngine) blackToMove() bool {
	black := strings.Contains(e.startFEN, " b ")
	if len(e.moves)%2 == 1 {
		black = !black
	}
	return black
}

func (e *UCIEngine) Close() error {
	if e.eng != nil {
		e.eng.Close()
		e.eng = nil
	}
	return nil
}

// candidatesFromResults keeps the deepest report of each MultiPV line, orders
// the lines by rank and converts scores to White's point of view. Lines
// without a move (mate or stalemate on the board) are dropped.
func candidatesFromResults(results *uci.Results, blackToMove bool, k int) ([]graph.Candidate, error) {
	if results == nil {
		return nil, engineErr("search", fmt.Errorf("no results from engine"))
	}

	deepest := make(map[int]uci.ScoreResult)
	for _, r := range results.Results {
		if len(r.BestMoves) == 0 {
			continue
		}
		line := r.MultiPV
		if line == 0 {
			line = 1
		}
		if prev, ok := deepest[line]; !ok || r.Depth >= prev.Depth {
			deepest[line] = r
		}
	}

	lines := make([]int, 0, len(deepest))
	for line := range deepest {
		lines = append(lines, line)
	}
	sort.Ints(lines)
	if len(lines) > k {
		lines = lines[:k]
	}

	cands := make([]graph.Candidate, 0, len(lines))
	for _, line := range lines {
		r := deepest[line]
		mv := r.BestMoves[0]
		if err := graph.ValidateUCI(mv); err != nil {
			return nil, engineErr("malformed response", err)
		}
		c := graph.Candidate{Move: mv}
		if !r.Mate {
			score := r.Score
			// Engine scores are from the side to move.
			if blackToMove {
				score = -score
			}
			c.Score = graph.Score(score)
			c.HasScore = true
		}
		cands = append(cands, c)
	}
	return cands, nil
}

// ClampHash lowers s.HashMB so that workers engines together use at most half
// of system memory. It reports whether the value changed.
func ClampHash(s Settings, workers int) (Settings, bool) {
	return clampHashTo(s, workers, memory.TotalMemory())
}

func clampHashTo(s Settings, workers int, totalBytes uint64) (Settings, bool) {
	s = s.WithDefaults()
	if workers <= 0 || totalBytes == 0 {
		return s, false
	}
	perWorkerMB := int(totalBytes / 2 / uint64(workers) / (1024 * 1024))
	if perWorkerMB < 1 {
		perWorkerMB = 1
	}
	if s.HashMB <= perWorkerMB {
		return s, false
	}
	s.HashMB = perWorkerMB
	return s, true
}
