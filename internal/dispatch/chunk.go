package dispatch

import (
	"errors"
	"io"
	"iter"

	"github.com/rs/zerolog"

	"github.com/Shonas301/only-moves/internal/notation"
)

// GameSource yields games one at a time. It returns io.EOF at the end of the
// stream and an error wrapping notation.ErrNotation for a malformed game that
// has been consumed.
type GameSource interface {
	ReadGame() (*notation.Game, error)
}

// NextChunk reads up to size games from src. Malformed games are skipped.
// It returns io.EOF when no game is left. On a read error the games read so
// far are returned along with it.
func NextChunk(src GameSource, size int) ([]*notation.Game, error) {
	if size <= 0 {
		size = 1
	}
	chunk := make([]*notation.Game, 0, size)
	for len(chunk) < size {
		g, err := src.ReadGame()
		if errors.Is(err, io.EOF) {
			break
		}
		if errors.Is(err, notation.ErrNotation) {
			continue
		}
		if err != nil {
			return chunk, err
		}
		chunk = append(chunk, g)
	}
	if len(chunk) == 0 {
		return nil, io.EOF
	}
	return chunk, nil
}

// Chunks yields every chunk of src in order. A read error is yielded once,
// after any games read before it, and ends the sequence.
func Chunks(src GameSource, size int) iter.Seq2[[]*notation.Game, error] {
	return func(yield func([]*notation.Game, error) bool) {
		for {
			chunk, err := NextChunk(src, size)
			if errors.Is(err, io.EOF) {
				return
			}
			if len(chunk) > 0 && !yield(chunk, nil) {
				return
			}
			if err != nil {
				yield(nil, err)
				return
			}
		}
	}
}

// skipLogger logs and counts malformed games before NextChunk drops them.
type skipLogger struct {
	src     GameSource
	log     zerolog.Logger
	skipped func()
}

func (s *skipLogger) ReadGame() (*notation.Game, error) {
	g, err := s.src.ReadGame()
	if errors.Is(err, notation.ErrNotation) {
		s.log.Warn().Err(err).Msg("skipping malformed game")
		s.skipped()
	}
	return g, err
}
