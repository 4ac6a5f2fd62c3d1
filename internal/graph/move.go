package graph

import (
	"fmt"

	"github.com/freeeve/pgn/v3"
)

// Squares are indexed A1=0, B1=1, ..., H8=63.

// SquareName returns the algebraic name of a square index ("e4").
func SquareName(sq int) string {
	return string([]byte{byte('a' + sq%8), byte('1' + sq/8)})
}

// ParseSquare parses an algebraic square name into its index.
func ParseSquare(s string) (int, error) {
	if len(s) != 2 {
		return 0, fmt.Errorf("bad square %q", s)
	}
	file := int(s[0]) - 'a'
	rank := int(s[1]) - '1'
	if file < 0 || file > 7 || rank < 0 || rank > 7 {
		return 0, fmt.Errorf("bad square %q", s)
	}
	return rank*8 + file, nil
}

// UCI converts a pgn move into UCI notation (e.g., "e2e4", "e7e8q").
func UCI(mv pgn.Mv) string {
	uci := SquareName(int(mv.From)) + SquareName(int(mv.To))
	switch mv.Promo {
	case pgn.PromoQueen:
		uci += "q"
	case pgn.PromoRook:
		uci += "r"
	case pgn.PromoBishop:
		uci += "b"
	case pgn.PromoKnight:
		uci += "n"
	}
	return uci
}

// ValidateUCI checks that s is a well formed UCI move ("e2e4", "a7a8q").
// It says nothing about legality.
func ValidateUCI(s string) error {
	if len(s) != 4 && len(s) != 5 {
		return fmt.Errorf("UCI move has bad length: %q", s)
	}
	if _, err := ParseSquare(s[0:2]); err != nil {
		return fmt.Errorf("invalid from square in UCI %q: %w", s, err)
	}
	if _, err := ParseSquare(s[2:4]); err != nil {
		return fmt.Errorf("invalid to square in UCI %q: %w", s, err)
	}
	if len(s) == 5 {
		switch s[4] {
		case 'q', 'r', 'b', 'n':
		default:
			return fmt.Errorf("invalid promotion piece: %c", s[4])
		}
	}
	return nil
}
