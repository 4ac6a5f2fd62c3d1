// Package walker replays one game's mainline, evaluates the position after
// every move and marks the moves whose replies contain a lone outlier.
package walker

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/Shonas301/only-moves/internal/eval"
	"github.com/Shonas301/only-moves/internal/graph"
	"github.com/Shonas301/only-moves/internal/notation"
	"github.com/Shonas301/only-moves/internal/outlier"
)

// AnnotationPrefix starts every only-move comment.
const AnnotationPrefix = "ONLY MOVE:"

// Evaluator returns ranked candidates for a position.
type Evaluator interface {
	GetOrCompute(ctx context.Context, key graph.PositionKey, h eval.History) ([]graph.Candidate, error)
}

// Config configures a Walker.
type Config struct {
	Table  outlier.Table // critical values, default Q90
	Logger zerolog.Logger
}

// Walker annotates games using one evaluator. It is not safe for concurrent
// use; each worker has its own.
type Walker struct {
	eval  Evaluator
	table outlier.Table
	log   zerolog.Logger
}

// New creates a Walker.
func New(cfg Config, ev Evaluator) *Walker {
	if cfg.Table == nil {
		cfg.Table = outlier.Q90
	}
	return &Walker{eval: ev, table: cfg.Table, log: cfg.Logger}
}

// Stats counts what happened during one walk.
type Stats struct {
	Plies       int
	Evaluated   int // plies that went through the outlier test
	Skipped     int // plies with fewer than 3 scored candidates
	Annotations int
}

// scoredMove is one entry of the score to move association list.
type scoredMove struct {
	score graph.Score
	move  string
}

// Walk returns an annotated copy of game. The copy has the same headers and
// one move per source move, in order. Errors abort the walk.
func (w *Walker) Walk(ctx context.Context, game *notation.Game) (*notation.Game, Stats, error) {
	out := game.NewAnnotated()
	side := game.StartSide()
	history := eval.History{StartFEN: game.StartFEN, Moves: make([]string, 0, len(game.Moves))}
	var stats Stats

	for ply, src := range game.Moves {
		node := src.Copy()
		out.Moves = append(out.Moves, node)
		history.Moves = append(history.Moves, src.UCI)
		stats.Plies++

		cands, err := w.eval.GetOrCompute(ctx, src.Key, history)
		if err != nil {
			return nil, stats, fmt.Errorf("ply %d (%s): %w", ply, src.SAN, err)
		}

		scores := lo.FilterMap(cands, func(c graph.Candidate, _ int) (float64, bool) {
			return float64(c.Score), c.HasScore
		})
		if len(scores) < outlier.MinSamples {
			stats.Skipped++
			w.log.Debug().Int("ply", ply).Str("move", src.SAN).Int("scored", len(scores)).Msg("too few scored candidates, skipping")
			side = side.Other()
			continue
		}

		verdict, err := outlier.Detect(scores, w.table, true, true)
		if err != nil {
			return nil, stats, fmt.Errorf("ply %d (%s): %w", ply, src.SAN, err)
		}
		stats.Evaluated++

		if score, ok := flagged(verdict, side); ok {
			node.Comment = annotation(score, src.Comment)
			stats.Annotations++
			w.log.Debug().
				Int("ply", ply).
				Str("move", src.SAN).
				Str("side", side.String()).
				Int("score", int(score)).
				Str("reply", replyFor(scoreMoves(cands), score)).
				Msg("only move")
		}
		side = side.Other()
	}
	return out, stats, nil
}

// flagged returns the outlier belonging to the side that just moved. Scores
// are from White's point of view, so White owns the high side and Black the
// low side.
func flagged(v outlier.Verdict, mover graph.Side) (graph.Score, bool) {
	if mover == graph.White && v.High != nil {
		return graph.Score(*v.High), true
	}
	if mover == graph.Black && v.Low != nil {
		return graph.Score(*v.Low), true
	}
	return 0, false
}

func annotation(score graph.Score, comment string) string {
	return strings.TrimSpace(fmt.Sprintf("%s %dcn %s", AnnotationPrefix, score, comment))
}

// scoreMoves lists scored candidates in rank order. Duplicate scores keep the
// first (best ranked) move.
func scoreMoves(cands []graph.Candidate) []scoredMove {
	var out []scoredMove
	for _, c := range cands {
		if !c.HasScore {
			continue
		}
		if lo.ContainsBy(out, func(sm scoredMove) bool { return sm.score == c.Score }) {
			continue
		}
		out = append(out, scoredMove{score: c.Score, move: c.Move})
	}
	return out
}

func replyFor(list []scoredMove, score graph.Score) string {
	for _, sm := range list {
		if sm.score == score {
			return sm.move
		}
	}
	return ""
}
