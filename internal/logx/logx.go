package logx

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger returns a zerolog logger writing colored console output to stdout.
// Verbose lowers the level to debug, which includes per-ply evaluation detail.
func NewLogger(verbose bool) zerolog.Logger {
	return New(os.Stdout, verbose)
}

// New returns a console logger writing to w.
func New(w io.Writer, verbose bool) zerolog.Logger {
	output := zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: time.RFC3339,
	}
	zerolog.CallerMarshalFunc = shortCaller

	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(output).Level(level).With().Timestamp().Caller().Logger()
}

// shortCaller keeps only the file name and pads it so messages line up.
func shortCaller(pc uintptr, file string, line int) string {
	short := file
	for i := len(file) - 1; i > 0; i-- {
		if file[i] == '/' {
			short = file[i+1:]
			break
		}
	}
	return fmt.Sprintf("%-24s", fmt.Sprintf("%s:%d", short, line))
}
