package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/Shonas301/only-moves/internal/dispatch"
	"github.com/Shonas301/only-moves/internal/eval"
	"github.com/Shonas301/only-moves/internal/logx"
	"github.com/Shonas301/only-moves/internal/notation"
	"github.com/Shonas301/only-moves/internal/outlier"
)

// pathList collects a repeatable flag.
type pathList []string

func (p *pathList) String() string { return strings.Join(*p, ",") }

func (p *pathList) Set(v string) error {
	*p = append(*p, v)
	return nil
}

func main() {
	defaultWorkers := runtime.NumCPU()
	if envWorkers := os.Getenv("ONLYMOVES_WORKERS"); envWorkers != "" {
		if n, err := strconv.Atoi(envWorkers); err == nil && n > 0 {
			defaultWorkers = n
		}
	}
	defaultStockfish := "stockfish"
	if envPath := os.Getenv("STOCKFISH_PATH"); envPath != "" {
		defaultStockfish = envPath
	}

	var inputs pathList
	flag.Var(&inputs, "pgn", "PGN file (supports .zst) or directory of PGN files, repeatable")
	var (
		stockfish  = flag.String("stockfish", defaultStockfish, "Path to UCI engine binary")
		outDir     = flag.String("out", "./annotated", "Directory for annotated games")
		workers    = flag.Int("workers", defaultWorkers, "Concurrent workers, one engine each")
		chunkSize  = flag.Int("chunk-size", 0, "Games per chunk (0 = workers)")
		threads    = flag.Int("threads", eval.DefaultThreads, "Engine threads per worker")
		hashMB     = flag.Int("hash", eval.DefaultHashMB, "Engine hash per worker (MB)")
		depth      = flag.Int("depth", eval.DefaultDepth, "Search depth")
		elo        = flag.Int("elo", eval.DefaultElo, "Engine strength limit (0 = unlimited)")
		candidates = flag.Int("candidates", eval.DefaultCandidates, "Candidate lines per position")
		cacheSize  = flag.Int("cache-size", eval.DefaultCacheSize, "Positions cached per worker")
		confidence = flag.String("confidence", "90", "Dixon Q-test confidence: 90, 95 or 99")
		naming     = flag.String("naming", string(dispatch.NameUnique), "Output names: unique or sequence")
		encoding   = flag.String("encoding", string(notation.UTF8), "Input encoding: utf-8 or latin1")
		verbose    = flag.Bool("v", false, "Log per-ply detail")
	)
	flag.Parse()
	inputs = append(inputs, flag.Args()...)

	if len(inputs) == 0 {
		fmt.Fprintln(os.Stderr, "Usage: onlymoves --pgn <file.pgn[.zst]> [--pgn ...] [options]")
		flag.PrintDefaults()
		os.Exit(1)
	}

	logger := logx.NewLogger(*verbose)

	inputs, err := notation.ExpandPaths(inputs)
	if err != nil {
		logger.Fatal().Err(err).Msg("resolve inputs")
	}
	if len(inputs) == 0 {
		logger.Fatal().Msg("no PGN files found")
	}

	table, err := outlier.TableFor(*confidence)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid confidence")
	}
	nameMode, err := dispatch.ParseNaming(*naming)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid naming")
	}
	enc, err := notation.ParseEncoding(*encoding)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid encoding")
	}
	if err := os.MkdirAll(*outDir, 0755); err != nil {
		logger.Fatal().Err(err).Msg("create output dir")
	}

	settings := eval.Settings{
		Threads:    *threads,
		HashMB:     *hashMB,
		Depth:      *depth,
		Elo:        *elo,
		Candidates: *candidates,
	}
	settings, clamped := eval.ClampHash(settings, *workers)
	if clamped {
		logger.Warn().Int("hash_mb", settings.HashMB).Int("workers", *workers).Msg("engine hash reduced to fit in half of system memory")
	}

	d, err := dispatch.New(dispatch.Config{
		Workers:    *workers,
		ChunkSize:  *chunkSize,
		OutDir:     *outDir,
		Naming:     nameMode,
		Engine:     eval.UCIFactory(*stockfish, settings),
		CacheSize:  *cacheSize,
		Candidates: settings.Candidates,
		Table:      table,
		Logger:     logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("configure dispatcher")
	}

	logger.Info().
		Strs("pgn", inputs).
		Str("engine", *stockfish).
		Str("out", *outDir).
		Int("workers", *workers).
		Int("depth", settings.Depth).
		Str("confidence", *confidence).
		Msg("starting analysis")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	startTime := time.Now()
	var total dispatch.Summary
	failed := false
	for _, path := range inputs {
		sum, err := d.AnalyzeFile(ctx, path, enc)
		total.Games += sum.Games
		total.Written += sum.Written
		total.Annotations += sum.Annotations
		total.Malformed += sum.Malformed
		total.Failed += sum.Failed
		total.Abandoned += sum.Abandoned
		if err != nil {
			failed = true
			logger.Error().Err(err).Str("pgn", path).Msg("analysis finished with errors")
		}
		if ctx.Err() != nil {
			logger.Info().Msg("interrupted")
			break
		}
	}

	logger.Info().
		Int64("games", total.Games).
		Int64("written", total.Written).
		Int64("annotations", total.Annotations).
		Int64("malformed", total.Malformed).
		Int64("failed", total.Failed).
		Int64("abandoned", total.Abandoned).
		Dur("elapsed", time.Since(startTime)).
		Msg("analysis complete")

	if failed {
		os.Exit(1)
	}
}
