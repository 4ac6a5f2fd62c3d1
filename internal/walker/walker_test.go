package walker

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/Shonas301/only-moves/internal/eval"
	"github.com/Shonas301/only-moves/internal/eval/evaltest"
	"github.com/Shonas301/only-moves/internal/graph"
	"github.com/Shonas301/only-moves/internal/notation"
	"github.com/Shonas301/only-moves/internal/outlier"
)

func parseGame(t *testing.T, pgn string) *notation.Game {
	t.Helper()
	g, err := notation.NewReader(strings.NewReader(pgn), notation.UTF8).ReadGame()
	if err != nil {
		t.Fatalf("ReadGame: %v", err)
	}
	return g
}

func newWalker(eng eval.Engine) *Walker {
	cache := eval.NewCache(eng, eval.CacheConfig{})
	return New(Config{Logger: zerolog.Nop()}, cache)
}

const threePly = `[Event "Synthetic"]
[White "A"]
[Black "B"]
[Result "*"]

1. e4 {King pawn} e5 2. Nf3 *
`

func TestWalkAnnotatesWhiteOnlyMove(t *testing.T) {
	eng := &evaltest.Engine{
		Lines: map[string][]graph.Candidate{
			"e2e4": evaltest.Scores(10, 12, 90),
		},
		Default: evaltest.Scores(20, 25, 30),
	}
	game := parseGame(t, threePly)

	out, stats, err := newWalker(eng).Walk(context.Background(), game)
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}

	if got := out.Moves[0].Comment; got != "ONLY MOVE: 90cn King pawn" {
		t.Errorf("first move comment = %q", got)
	}
	for i := 1; i < len(out.Moves); i++ {
		if strings.Contains(out.Moves[i].Comment, AnnotationPrefix) {
			t.Errorf("ply %d unexpectedly annotated: %q", i, out.Moves[i].Comment)
		}
	}
	if stats.Annotations != 1 || stats.Plies != 3 || stats.Evaluated != 3 {
		t.Errorf("stats = %+v", stats)
	}
	if game.Moves[0].Comment != "King pawn" {
		t.Errorf("source game was modified: %q", game.Moves[0].Comment)
	}
}

func TestWalkPreservesMovesAndHeaders(t *testing.T) {
	eng := &evaltest.Engine{Default: evaltest.Scores(10, 12, 90)}
	game := parseGame(t, threePly)

	out, _, err := newWalker(eng).Walk(context.Background(), game)
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	if len(out.Moves) != len(game.Moves) {
		t.Fatalf("annotated game has %d moves, source %d", len(out.Moves), len(game.Moves))
	}
	for i := range game.Moves {
		if out.Moves[i].SAN != game.Moves[i].SAN || out.Moves[i].UCI != game.Moves[i].UCI {
			t.Errorf("ply %d: %s/%s, want %s/%s", i, out.Moves[i].SAN, out.Moves[i].UCI, game.Moves[i].SAN, game.Moves[i].UCI)
		}
	}
	if len(out.Tags) != len(game.Tags) {
		t.Fatalf("tags = %v", out.Tags)
	}
	for i := range game.Tags {
		if out.Tags[i] != game.Tags[i] {
			t.Errorf("tag %d = %v, want %v", i, out.Tags[i], game.Tags[i])
		}
	}
	if out.Result != game.Result {
		t.Errorf("result = %q", out.Result)
	}

	wantHistories := []string{"e2e4", "e2e4 e7e5", "e2e4 e7e5 g1f3"}
	if len(eng.Queries) != len(wantHistories) {
		t.Fatalf("queries = %v", eng.Queries)
	}
	for i, h := range wantHistories {
		if eng.Queries[i] != h {
			t.Errorf("query %d = %q, want %q", i, eng.Queries[i], h)
		}
	}
}

func TestWalkSideParity(t *testing.T) {
	game := parseGame(t, "1. d4 d5 2. c4 e6 3. Nc3 Nf6 *\n")

	tests := []struct {
		name    string
		scores  []graph.Candidate
		wantPly func(int) bool
	}{
		{"high outliers belong to white", evaltest.Scores(10, 12, 90), func(p int) bool { return p%2 == 0 }},
		{"low outliers belong to black", evaltest.Scores(-90, -12, -10), func(p int) bool { return p%2 == 1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng := &evaltest.Engine{Default: tt.scores}
			out, _, err := newWalker(eng).Walk(context.Background(), game)
			if err != nil {
				t.Fatalf("Walk: %v", err)
			}
			for ply, m := range out.Moves {
				annotated := strings.HasPrefix(m.Comment, AnnotationPrefix)
				if annotated != tt.wantPly(ply) {
					t.Errorf("ply %d annotated=%v comment=%q", ply, annotated, m.Comment)
				}
			}
		})
	}
}

func TestWalkNarrowBandHasNoAnnotations(t *testing.T) {
	eng := &evaltest.Engine{Default: evaltest.Scores(31, 30, 28, 27, 25)}
	out, stats, err := newWalker(eng).Walk(context.Background(), parseGame(t, threePly))
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	if stats.Annotations != 0 {
		t.Errorf("annotations = %d", stats.Annotations)
	}
	for _, m := range out.Moves {
		if strings.Contains(m.Comment, AnnotationPrefix) {
			t.Errorf("unexpected annotation %q", m.Comment)
		}
	}
}

func TestWalkSkipsPliesWithTooFewScores(t *testing.T) {
	eng := &evaltest.Engine{
		Lines: map[string][]graph.Candidate{
			"e2e4":      {evaltest.Mate("d8h4"), evaltest.Mate("d8g5"), {Move: "e7e5", Score: 10, HasScore: true}},
			"e2e4 e7e5": evaltest.Scores(5, 7),
		},
		Default: evaltest.Scores(10, 12, 90),
	}
	out, stats, err := newWalker(eng).Walk(context.Background(), parseGame(t, threePly))
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	if stats.Skipped != 2 || stats.Evaluated != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if out.Moves[0].Comment != "King pawn" {
		t.Errorf("skipped ply should keep its comment, got %q", out.Moves[0].Comment)
	}
	if out.Moves[2].Comment != "ONLY MOVE: 90cn" {
		t.Errorf("third ply comment = %q", out.Moves[2].Comment)
	}
}

func TestWalkEngineFailureAborts(t *testing.T) {
	eng := &evaltest.Engine{
		Default: evaltest.Scores(1, 2, 3),
		FailOn:  map[string]bool{"e2e4 e7e5": true},
	}
	_, stats, err := newWalker(eng).Walk(context.Background(), parseGame(t, threePly))
	if !errors.Is(err, evaltest.ErrCrashed) {
		t.Fatalf("expected engine crash, got %v", err)
	}
	if stats.Plies != 2 {
		t.Errorf("walk should stop at the failing ply, stats = %+v", stats)
	}
}

type fixedEvaluator []graph.Candidate

func (f fixedEvaluator) GetOrCompute(context.Context, graph.PositionKey, eval.History) ([]graph.Candidate, error) {
	return f, nil
}

func TestWalkPreconditionAborts(t *testing.T) {
	w := New(Config{Table: outlier.Table{3: 0.9}, Logger: zerolog.Nop()}, fixedEvaluator(evaltest.Scores(1, 2, 3, 4)))
	_, _, err := w.Walk(context.Background(), parseGame(t, threePly))
	if !errors.Is(err, outlier.ErrSampleTooLarge) {
		t.Errorf("expected sample size precondition, got %v", err)
	}
}

func TestScoreMovesKeepsFirstOnDuplicates(t *testing.T) {
	cands := []graph.Candidate{
		{Move: "e2e4", Score: 30, HasScore: true},
		{Move: "d2d4", Score: 30, HasScore: true},
		{Move: "c2c4"},
		{Move: "g1f3", Score: 12, HasScore: true},
	}
	list := scoreMoves(cands)
	if len(list) != 2 {
		t.Fatalf("list = %v", list)
	}
	if got := replyFor(list, 30); got != "e2e4" {
		t.Errorf("reply for 30 = %s, want e2e4", got)
	}
	if got := replyFor(list, 12); got != "g1f3" {
		t.Errorf("reply for 12 = %s, want g1f3", got)
	}
}
