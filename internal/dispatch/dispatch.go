// Package dispatch splits a stream of games into chunks and analyzes them on
// a pool of workers, each with its own engine and cache. Every annotated game
// is written to its own file.
package dispatch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Shonas301/only-moves/internal/eval"
	"github.com/Shonas301/only-moves/internal/notation"
	"github.com/Shonas301/only-moves/internal/outlier"
	"github.com/Shonas301/only-moves/internal/walker"
)

// Naming selects how output files are named.
type Naming string

const (
	// NameUnique names files <source>_<uuid v1>.pgn.
	NameUnique Naming = "unique"
	// NameSequence names files <source>_<n>.pgn, n being the 1-based game
	// index in the source.
	NameSequence Naming = "sequence"
)

// ParseNaming converts a flag value to a Naming.
func ParseNaming(s string) (Naming, error) {
	switch Naming(s) {
	case "", NameUnique:
		return NameUnique, nil
	case NameSequence:
		return NameSequence, nil
	}
	return "", fmt.Errorf("unknown naming %q (want unique or sequence)", s)
}

// Config configures a Dispatcher.
type Config struct {
	Workers       int            // concurrent workers, default runtime.NumCPU()
	ChunkSize     int            // games per chunk, default Workers
	OutDir        string         // existing directory for annotated games
	Naming        Naming         // default NameUnique
	Engine        eval.Factory   // creates one engine per worker
	CacheSize     int            // positions cached per worker
	Candidates    int            // lines requested per position
	Table         outlier.Table  // critical values, default Q90
	ProgressEvery time.Duration  // progress log interval, default 10s
	Logger        zerolog.Logger // Logger
}

// Summary counts the outcome of one Run.
type Summary struct {
	Chunks      int64 // chunks handed to workers
	Games       int64 // well formed games read
	Written     int64 // annotated games written
	Annotations int64 // only-move comments added
	Malformed   int64 // games skipped by the reader
	Failed      int64 // games whose walk or write failed
	Abandoned   int64 // games dropped after an engine failure in their chunk
}

type counters struct {
	chunks, games, written, annotations atomic.Int64
	malformed, failed, abandoned        atomic.Int64
}

func (c *counters) summary() Summary {
	return Summary{
		Chunks:      c.chunks.Load(),
		Games:       c.games.Load(),
		Written:     c.written.Load(),
		Annotations: c.annotations.Load(),
		Malformed:   c.malformed.Load(),
		Failed:      c.failed.Load(),
		Abandoned:   c.abandoned.Load(),
	}
}

// Dispatcher runs the analysis worker pool.
type Dispatcher struct {
	cfg Config
	log zerolog.Logger
}

// New validates cfg and fills defaults.
func New(cfg Config) (*Dispatcher, error) {
	if cfg.Engine == nil {
		return nil, errors.New("engine factory required")
	}
	if cfg.OutDir == "" {
		return nil, errors.New("output dir required")
	}
	fi, err := os.Stat(cfg.OutDir)
	if err != nil {
		return nil, fmt.Errorf("output dir: %w", err)
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("output dir %s is not a directory", cfg.OutDir)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = cfg.Workers
	}
	if cfg.Naming == "" {
		cfg.Naming = NameUnique
	}
	if cfg.Naming != NameUnique && cfg.Naming != NameSequence {
		return nil, fmt.Errorf("unknown naming %q", cfg.Naming)
	}
	if cfg.Table == nil {
		cfg.Table = outlier.Q90
	}
	if cfg.ProgressEvery == 0 {
		cfg.ProgressEvery = 10 * time.Second
	}
	return &Dispatcher{cfg: cfg, log: cfg.Logger}, nil
}

// AnalyzeFile runs the dispatcher over a .pgn or .pgn.zst file.
func (d *Dispatcher) AnalyzeFile(ctx context.Context, path string, enc notation.Encoding) (Summary, error) {
	f, err := notation.Open(path, enc)
	if err != nil {
		return Summary{}, err
	}
	defer f.Close()

	start := time.Now()
	d.log.Info().Str("path", path).Int("workers", d.cfg.Workers).Int("chunk_size", d.cfg.ChunkSize).Msg("starting file analysis")
	sum, err := d.Run(ctx, notation.SourceName(path), f)
	d.log.Info().
		Str("file", filepath.Base(path)).
		Int64("games", sum.Games).
		Int64("written", sum.Written).
		Int64("annotations", sum.Annotations).
		Int64("malformed", sum.Malformed).
		Int64("failed", sum.Failed).
		Int64("abandoned", sum.Abandoned).
		Dur("elapsed", time.Since(start)).
		Msg("file analysis complete")
	return sum, err
}

// Run analyzes every game of src and writes one file per annotated game.
// Per-game and per-chunk failures do not stop the run; they are joined into
// the returned error. Files already written stay on disk. A read error ends
// the source, but games already read are still analyzed. A worker whose engine
// cannot be started retires; once none is left the remaining games are
// abandoned.
func (d *Dispatcher) Run(ctx context.Context, sourceName string, src GameSource) (Summary, error) {
	var (
		c     counters
		errMu sync.Mutex
		errs  []error
	)
	record := func(err error) {
		errMu.Lock()
		errs = append(errs, err)
		errMu.Unlock()
	}

	src = &skipLogger{src: src, log: d.log, skipped: func() { c.malformed.Add(1) }}
	chunks := make(chan []*notation.Game)
	g, gctx := errgroup.WithContext(ctx)

	// feed stops the producer once every worker has retired.
	feed, stopFeed := context.WithCancel(gctx)
	defer stopFeed()
	var live atomic.Int32
	live.Store(int32(d.cfg.Workers))
	retire := func(err error) {
		record(err)
		if live.Add(-1) == 0 {
			stopFeed()
		}
	}

	g.Go(func() error {
		defer close(chunks)
		for chunk, err := range Chunks(src, d.cfg.ChunkSize) {
			if err != nil {
				// Games already handed out still finish.
				d.log.Error().Err(err).Str("source", sourceName).Msg("read failed, no more games from this source")
				record(fmt.Errorf("read %s: %w", sourceName, err))
				return nil
			}
			c.chunks.Add(1)
			c.games.Add(int64(len(chunk)))
			select {
			case chunks <- chunk:
			case <-feed.Done():
				c.abandoned.Add(int64(len(chunk)))
				return ctx.Err()
			}
		}
		return nil
	})

	for i := 0; i < d.cfg.Workers; i++ {
		g.Go(func() error {
			w := &worker{
				id:     i,
				d:      d,
				source: sourceName,
				c:      &c,
				record: record,
				retire: retire,
				log:    d.log.With().Int("worker_id", i).Logger(),
			}
			return w.run(gctx, chunks)
		})
	}

	err := g.Wait()
	errMu.Lock()
	defer errMu.Unlock()
	return c.summary(), errors.Join(append([]error{err}, errs...)...)
}

type worker struct {
	id     int
	d      *Dispatcher
	source string
	c      *counters
	record func(error)
	retire func(error)
	log    zerolog.Logger

	engine eval.Engine
	cache  *eval.Cache
	walker *walker.Walker
}

// run processes chunks until the channel closes. A worker whose engine cannot
// be started retires without stopping the others; only context cancellation
// is returned.
func (w *worker) run(ctx context.Context, chunks <-chan []*notation.Game) error {
	engine, err := w.d.cfg.Engine()
	if err != nil {
		w.log.Error().Err(err).Msg("engine failed to start, worker retiring")
		w.retire(fmt.Errorf("worker %d: start engine: %w", w.id, err))
		return nil
	}
	w.engine = engine
	defer func() {
		if w.engine == nil {
			return
		}
		if err := w.engine.Close(); err != nil {
			w.log.Warn().Err(err).Msg("close engine failed")
		}
	}()
	w.cache = eval.NewCache(engine, eval.CacheConfig{Capacity: w.d.cfg.CacheSize, Candidates: w.d.cfg.Candidates})
	w.walker = walker.New(walker.Config{Table: w.d.cfg.Table, Logger: w.log}, w.cache)

	startTime := time.Now()
	lastLog := time.Now()
	var done int64
	for chunk := range chunks {
		if err := w.chunk(ctx, chunk, &done); err != nil {
			return err
		}
		if w.engine == nil {
			return nil
		}
		if time.Since(lastLog) > w.d.cfg.ProgressEvery {
			stats := w.cache.Stats()
			w.log.Info().
				Str("source", w.source).
				Int64("games", done).
				Uint64("cache_hits", stats.Hits).
				Uint64("cache_misses", stats.Misses).
				Float64("games_per_sec", float64(done)/time.Since(startTime).Seconds()).
				Msg("analysis progress")
			lastLog = time.Now()
		}
	}

	stats := w.cache.Stats()
	w.log.Debug().
		Int64("games", done).
		Uint64("cache_hits", stats.Hits).
		Uint64("cache_misses", stats.Misses).
		Uint64("cache_evictions", stats.Evictions).
		Msg("worker finished")
	return ctx.Err()
}

// chunk analyzes the games of one chunk in order. An engine failure abandons
// the rest of the chunk and replaces the engine; if that fails the worker
// retires with w.engine nil. Only context cancellation is returned.
func (w *worker) chunk(ctx context.Context, games []*notation.Game, done *int64) error {
	for i, game := range games {
		if err := ctx.Err(); err != nil {
			w.c.abandoned.Add(int64(len(games) - i))
			return err
		}
		err := w.analyze(ctx, game)
		if err != nil && ctx.Err() != nil {
			w.c.abandoned.Add(int64(len(games) - i))
			return ctx.Err()
		}
		*done++
		if err == nil {
			continue
		}
		w.c.failed.Add(1)
		w.record(err)

		if !errors.Is(err, eval.ErrEngine) {
			w.log.Warn().Err(err).Int("game", game.Index).Msg("game failed")
			continue
		}

		rest := len(games) - i - 1
		w.c.abandoned.Add(int64(rest))
		w.log.Error().Err(err).Int("game", game.Index).Int("abandoned", rest).Msg("engine failed, abandoning chunk")
		if err := w.restartEngine(); err != nil {
			w.log.Error().Err(err).Msg("engine restart failed, worker retiring")
			w.retire(err)
		}
		return nil
	}
	return nil
}

func (w *worker) restartEngine() error {
	if err := w.engine.Close(); err != nil {
		w.log.Warn().Err(err).Msg("close failed engine")
	}
	w.engine = nil
	engine, err := w.d.cfg.Engine()
	if err != nil {
		return fmt.Errorf("worker %d: restart engine: %w", w.id, err)
	}
	w.engine = engine
	w.cache.SetEngine(engine)
	w.log.Info().Msg("engine restarted")
	return nil
}

func (w *worker) analyze(ctx context.Context, game *notation.Game) error {
	out, stats, err := w.walker.Walk(ctx, game)
	if err != nil {
		return fmt.Errorf("%s game %d: %w", w.source, game.Index, err)
	}

	name, err := w.d.fileName(w.source, game.Index)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := notation.WriteGame(&buf, out); err != nil {
		return err
	}
	if err := appendFile(filepath.Join(w.d.cfg.OutDir, name), buf.Bytes()); err != nil {
		return fmt.Errorf("%s game %d: %w", w.source, game.Index, err)
	}

	w.c.written.Add(1)
	w.c.annotations.Add(int64(stats.Annotations))
	w.log.Debug().
		Int("game", game.Index).
		Str("file", name).
		Int("plies", stats.Plies).
		Int("annotations", stats.Annotations).
		Msg("game written")
	return nil
}

func (d *Dispatcher) fileName(source string, index int) (string, error) {
	if d.cfg.Naming == NameSequence {
		return source + "_" + strconv.Itoa(index) + ".pgn", nil
	}
	id, err := uuid.NewUUID()
	if err != nil {
		return "", fmt.Errorf("output name: %w", err)
	}
	return source + "_" + id.String() + ".pgn", nil
}

// appendFile writes data with a single append so concurrent writers never
// interleave inside one game.
func appendFile(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
