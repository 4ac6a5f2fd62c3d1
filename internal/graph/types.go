package graph

import (
	"fmt"

	"github.com/freeeve/pgn/v3"
)

// PositionKey is a 34-byte packed position from the pgn library. It covers
// placement, side to move, castling rights and en-passant square, so two move
// orders reaching the same position share a key.
type PositionKey = pgn.PackedPosition

// Side is the player to move.
type Side uint8

const (
	White Side = iota
	Black
)

// Other returns the opposing side.
func (s Side) Other() Side {
	return s ^ 1
}

func (s Side) String() string {
	if s == White {
		return "white"
	}
	return "black"
}

// Score is an evaluation in centipawns from White's point of view.
type Score int

// Candidate is one engine line for a position: the first move of the line and
// its score. HasScore is false for lines the engine reports as mate, which
// have no centipawn value.
type Candidate struct {
	Move     string // UCI
	Score    Score
	HasScore bool
}

func (c Candidate) String() string {
	if !c.HasScore {
		return c.Move + " (no cp)"
	}
	return fmt.Sprintf("%s %+dcp", c.Move, c.Score)
}

// CloneCandidates returns a copy of cs that shares no storage with it.
func CloneCandidates(cs []Candidate) []Candidate {
	if cs == nil {
		return nil
	}
	out := make([]Candidate, len(cs))
	copy(out, cs)
	return out
}
