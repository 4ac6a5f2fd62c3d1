package notation

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/freeeve/pgn/v3"
	"github.com/klauspost/compress/zstd"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"github.com/Shonas301/only-moves/internal/graph"
)

// Encoding names the character set of PGN input.
type Encoding string

const (
	UTF8   Encoding = "utf-8"
	Latin1 Encoding = "latin1" // the PGN standard's ISO 8859-1
)

// ParseEncoding maps a user supplied name onto an Encoding.
func ParseEncoding(s string) (Encoding, error) {
	switch strings.ToLower(s) {
	case "", "utf8", "utf-8":
		return UTF8, nil
	case "latin1", "latin-1", "iso-8859-1", "iso8859-1":
		return Latin1, nil
	}
	return "", fmt.Errorf("unhandled character encoding %q", s)
}

// moveNumberRegex matches move numbers like "1." or "12..."
var moveNumberRegex = regexp.MustCompile(`^\d+\.+`)

// Reader reads games one at a time from a PGN stream.
type Reader struct {
	br    *bufio.Reader
	games int
	err   error // sticky read error
}

// NewReader returns a reader over r decoded from enc.
func NewReader(r io.Reader, enc Encoding) *Reader {
	if enc == Latin1 {
		r = transform.NewReader(r, charmap.ISO8859_1.NewDecoder())
	}
	return &Reader{br: bufio.NewReaderSize(r, 64*1024)}
}

// File is a Reader over a PGN file on disk.
type File struct {
	*Reader
	Path string

	f  *os.File
	zr *zstd.Decoder
}

// Open opens a .pgn or .pgn.zst file.
func Open(path string, enc Encoding) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	pf := &File{f: f, Path: path}

	var src io.Reader = f
	if strings.HasSuffix(path, ".zst") {
		zr, err := zstd.NewReader(f, zstd.WithDecoderConcurrency(1))
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("open zstd stream %s: %w", path, err)
		}
		pf.zr = zr
		src = zr
	}
	pf.Reader = NewReader(src, enc)
	return pf, nil
}

// Close releases the file and any decompressor.
func (f *File) Close() error {
	if f.zr != nil {
		f.zr.Close()
	}
	return f.f.Close()
}

// IsPGNFile reports whether name looks like a PGN file this package can open.
func IsPGNFile(name string) bool {
	return strings.HasSuffix(name, ".pgn") || strings.HasSuffix(name, ".pgn.zst")
}

// ExpandPaths replaces each directory in paths with the PGN files it
// contains, sorted by name. Other paths are kept as given.
func ExpandPaths(paths []string) ([]string, error) {
	var out []string
	for _, p := range paths {
		fi, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !fi.IsDir() {
			out = append(out, p)
			continue
		}
		entries, err := os.ReadDir(p)
		if err != nil {
			return nil, err
		}
		var files []string
		for _, e := range entries {
			if !e.IsDir() && IsPGNFile(e.Name()) {
				files = append(files, filepath.Join(p, e.Name()))
			}
		}
		sort.Strings(files)
		out = append(out, files...)
	}
	return out, nil
}

// SourceName strips directories and the .pgn/.pgn.zst extension.
func SourceName(path string) string {
	name := path
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	name = strings.TrimSuffix(name, ".zst")
	return strings.TrimSuffix(name, ".pgn")
}

type rawMove struct {
	san     string
	comment string
}

// ReadGame returns the next game, or io.EOF when the stream is exhausted.
// A *ParseError means the game was malformed; it has been consumed and the
// next call continues with the following game. Any other error is fatal.
func (r *Reader) ReadGame() (*Game, error) {
	if r.err != nil {
		return nil, r.err
	}

	g := &Game{}
	var (
		moves   []rawMove
		gameErr error
		started bool
	)
	fail := func(err error) {
		if gameErr == nil {
			gameErr = err
		}
	}

	// Tag pairs.
	for {
		c, err := r.peekToken()
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, r.fatal(err)
		}
		if c == '{' && len(g.Tags) == 0 {
			// Commentary between games.
			if _, err := r.readComment(); err != nil {
				return nil, r.fatal(err)
			}
			continue
		}
		if c == ';' || c == '%' {
			if _, err := r.br.ReadString('\n'); err != nil && err != io.EOF {
				return nil, r.fatal(err)
			}
			continue
		}
		if c != '[' {
			break
		}
		started = true
		tag, err := r.readTag()
		if err != nil {
			if !errors.Is(err, ErrNotation) {
				return nil, r.fatal(err)
			}
			fail(err)
			continue
		}
		g.Tags = append(g.Tags, tag)
	}

	// Movetext.
movetext:
	for {
		c, err := r.peekToken()
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, r.fatal(err)
		}
		switch c {
		case '[':
			// Next game began without a result token.
			break movetext
		case '{':
			started = true
			text, err := r.readComment()
			if err != nil {
				return nil, r.fatal(err)
			}
			if len(moves) == 0 {
				g.Comment = joinComment(g.Comment, text)
			} else {
				last := &moves[len(moves)-1]
				last.comment = joinComment(last.comment, text)
			}
		case ';', '%':
			if _, err := r.br.ReadString('\n'); err != nil && err != io.EOF {
				return nil, r.fatal(err)
			}
		case '(':
			started = true
			if err := r.skipVariation(); err != nil {
				if !errors.Is(err, ErrNotation) {
					return nil, r.fatal(err)
				}
				fail(err)
				break movetext
			}
		case ')':
			r.br.ReadByte()
			fail(fmt.Errorf("%w: unbalanced ')'", ErrNotation))
		default:
			started = true
			word, err := r.readWord()
			if err != nil {
				return nil, r.fatal(err)
			}
			if word[0] == '$' {
				continue
			}
			word = moveNumberRegex.ReplaceAllString(word, "")
			word = strings.TrimRight(word, "!?")
			if word == "" {
				continue
			}
			if isResult(word) {
				g.Result = word
				break movetext
			}
			moves = append(moves, rawMove{san: word})
		}
	}

	if !started {
		r.err = io.EOF
		return nil, io.EOF
	}
	r.games++
	g.Index = r.games
	if g.Result == "" {
		if res, ok := g.Tag("Result"); ok {
			g.Result = res
		} else {
			g.Result = "*"
		}
	}
	if gameErr != nil {
		return nil, &ParseError{Game: g.Index, Ply: -1, Err: gameErr}
	}
	if err := resolve(g, moves); err != nil {
		return nil, err
	}
	return g, nil
}

func (r *Reader) fatal(err error) error {
	if err == io.ErrUnexpectedEOF {
		err = fmt.Errorf("game %d: %w", r.games+1, err)
	}
	r.err = err
	return err
}

// castling rewrites the zero spelling (0-0, 0-0-0) some exporters use.
func castling(san string) string {
	switch {
	case strings.HasPrefix(san, "0-0-0"):
		return "O-O-O" + san[len("0-0-0"):]
	case strings.HasPrefix(san, "0-0"):
		return "O-O" + san[len("0-0"):]
	}
	return san
}

// resolve replays the SAN moves from the start position, filling in UCI and
// the position key after each move.
func resolve(g *Game, moves []rawMove) error {
	pos := pgn.NewStartingPosition()
	if fen, ok := g.Tag("FEN"); ok && fen != "" {
		start, err := pgn.NewGame(fen)
		if err != nil {
			return &ParseError{Game: g.Index, Ply: -1, Err: fmt.Errorf("%w: FEN %q: %v", ErrNotation, fen, err)}
		}
		pos = start
		g.StartFEN = fen
	}

	g.Moves = make([]*Move, 0, len(moves))
	for i, raw := range moves {
		san := castling(strings.TrimRight(raw.san, "+#"))
		mv, err := pgn.ParseSAN(pos, san)
		if err != nil {
			return &ParseError{Game: g.Index, Ply: i, Err: fmt.Errorf("%w: parse %q: %v", ErrNotation, raw.san, err)}
		}
		uci := graph.UCI(mv)
		if err := pgn.ApplyMove(pos, mv); err != nil {
			return &ParseError{Game: g.Index, Ply: i, Err: fmt.Errorf("%w: apply %q: %v", ErrNotation, raw.san, err)}
		}
		g.Moves = append(g.Moves, &Move{
			SAN:     raw.san,
			UCI:     uci,
			Comment: raw.comment,
			Key:     pos.Pack(),
		})
	}
	return nil
}

// peekToken skips whitespace and returns the next byte without consuming it.
func (r *Reader) peekToken() (byte, error) {
	for {
		b, err := r.br.ReadByte()
		if err != nil {
			return 0, err
		}
		switch b {
		case ' ', '\t', '\n', '\r', '\f', '\v':
			continue
		}
		if err := r.br.UnreadByte(); err != nil {
			return 0, err
		}
		return b, nil
	}
}

// readTag reads `[Name "Value"]`. Backslash escapes quotes and backslashes
// inside the value.
func (r *Reader) readTag() (Tag, error) {
	line, err := r.readUntil(']', true)
	if err != nil {
		return Tag{}, err
	}
	body := strings.TrimSpace(line[1 : len(line)-1])
	sp := strings.IndexAny(body, " \t")
	if sp <= 0 {
		return Tag{}, fmt.Errorf("%w: malformed tag %q", ErrNotation, line)
	}
	name := body[:sp]
	rest := strings.TrimSpace(body[sp:])
	if len(rest) < 2 || rest[0] != '"' || rest[len(rest)-1] != '"' {
		return Tag{}, fmt.Errorf("%w: malformed tag value %q", ErrNotation, line)
	}
	var sb strings.Builder
	inner := rest[1 : len(rest)-1]
	for i := 0; i < len(inner); i++ {
		if inner[i] == '\\' && i+1 < len(inner) {
			i++
		}
		sb.WriteByte(inner[i])
	}
	return Tag{Name: name, Value: sb.String()}, nil
}

// readUntil reads through the delimiter. When quoted is set the delimiter is
// ignored inside double quoted strings.
func (r *Reader) readUntil(delim byte, quoted bool) (string, error) {
	var buf bytes.Buffer
	inQuote := false
	escaped := false
	for {
		b, err := r.br.ReadByte()
		if err != nil {
			if err == io.EOF {
				return "", io.ErrUnexpectedEOF
			}
			return "", err
		}
		buf.WriteByte(b)
		switch {
		case escaped:
			escaped = false
		case quoted && inQuote && b == '\\':
			escaped = true
		case quoted && b == '"':
			inQuote = !inQuote
		case b == delim && !inQuote:
			return buf.String(), nil
		}
	}
}

func (r *Reader) readComment() (string, error) {
	text, err := r.readUntil('}', false)
	if err != nil {
		return "", err
	}
	return strings.Join(strings.Fields(text[1:len(text)-1]), " "), nil
}

// skipVariation consumes a parenthesised side line, including nested lines
// and any comments inside it.
func (r *Reader) skipVariation() error {
	depth := 0
	for {
		b, err := r.br.ReadByte()
		if err != nil {
			if err == io.EOF {
				return fmt.Errorf("%w: unterminated variation", ErrNotation)
			}
			return err
		}
		switch b {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return nil
			}
		case '{':
			r.br.UnreadByte()
			if _, err := r.readComment(); err != nil {
				return err
			}
		case ';':
			if _, err := r.br.ReadString('\n'); err != nil && err != io.EOF {
				return err
			}
		}
	}
}

// readWord reads a symbol token: everything up to whitespace or a delimiter.
func (r *Reader) readWord() (string, error) {
	var buf bytes.Buffer
	for {
		b, err := r.br.ReadByte()
		if err != nil {
			if err == io.EOF && buf.Len() > 0 {
				return buf.String(), nil
			}
			return "", err
		}
		switch b {
		case ' ', '\t', '\n', '\r', '\f', '\v':
			return buf.String(), nil
		case '{', '}', '(', ')', '[', ']', ';':
			if err := r.br.UnreadByte(); err != nil {
				return "", err
			}
			if buf.Len() == 0 {
				// lone stray delimiter
				r.br.ReadByte()
				return string(b), nil
			}
			return buf.String(), nil
		}
		buf.WriteByte(b)
	}
}

func joinComment(existing, text string) string {
	switch {
	case text == "":
		return existing
	case existing == "":
		return text
	}
	return existing + " " + text
}
