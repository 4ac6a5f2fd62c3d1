package notation

import (
	"io"
	"strconv"
	"strings"

	"github.com/Shonas301/only-moves/internal/graph"
)

// lineWidth is the column at which movetext wraps.
const lineWidth = 80

var tagEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

// Serialize renders g as PGN: tag pairs in order, a blank line, then the
// wrapped movetext ending with the result. There is no trailing newline.
func Serialize(g *Game) string {
	var sb strings.Builder
	for _, t := range g.Tags {
		sb.WriteString("[")
		sb.WriteString(t.Name)
		sb.WriteString(` "`)
		sb.WriteString(tagEscaper.Replace(t.Value))
		sb.WriteString("\"]\n")
	}
	if len(g.Tags) > 0 {
		sb.WriteString("\n")
	}
	writeWrapped(&sb, movetext(g))
	return sb.String()
}

// WriteGame writes g followed by a blank line, the separator between games.
func WriteGame(w io.Writer, g *Game) error {
	_, err := io.WriteString(w, Serialize(g)+"\n\n")
	return err
}

func movetext(g *Game) []string {
	var toks []string
	if g.Comment != "" {
		toks = append(toks, commentTokens(g.Comment)...)
	}

	side := g.StartSide()
	number := g.StartMoveNumber()
	needNumber := true
	for _, m := range g.Moves {
		switch {
		case side == graph.White:
			toks = append(toks, strconv.Itoa(number)+".")
		case needNumber:
			toks = append(toks, strconv.Itoa(number)+"...")
		}
		toks = append(toks, m.SAN)
		needNumber = false
		if m.Comment != "" {
			toks = append(toks, commentTokens(m.Comment)...)
			needNumber = true
		}
		if side == graph.Black {
			number++
		}
		side = side.Other()
	}

	result := g.Result
	if result == "" {
		result = "*"
	}
	return append(toks, result)
}

// commentTokens splits a comment into words so long comments wrap too.
func commentTokens(c string) []string {
	words := strings.Fields(c)
	toks := make([]string, 0, len(words)+2)
	toks = append(toks, "{")
	toks = append(toks, words...)
	return append(toks, "}")
}

func writeWrapped(sb *strings.Builder, toks []string) {
	col := 0
	for _, t := range toks {
		if col > 0 && col+1+len(t) > lineWidth {
			sb.WriteString("\n")
			col = 0
		}
		if col > 0 {
			sb.WriteString(" ")
			col++
		}
		sb.WriteString(t)
		col += len(t)
	}
}
