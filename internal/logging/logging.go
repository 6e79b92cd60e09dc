// Package logging builds the zerolog logger used across the application.
package logging

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/term"

	"ytarchive/internal/config"
)

// Console modes accepted in LogConfig.Console.
const (
	ConsoleAuto   = "auto"
	ConsoleAlways = "always"
	ConsoleNever  = "never"
)

// New returns a logger writing to out at the configured level. In auto mode
// human-readable output is used only when out is a terminal; otherwise each
// event is one JSON line.
func New(cfg config.LogConfig, out io.Writer) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("log level %q: %w", cfg.Level, err)
	}

	console, err := useConsole(cfg.Console, out)
	if err != nil {
		return zerolog.Nop(), err
	}
	if console {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	}

	return zerolog.New(out).Level(level).With().Timestamp().Logger(), nil
}

func useConsole(mode string, out io.Writer) (bool, error) {
	switch mode {
	case "", ConsoleAuto:
		f, ok := out.(*os.File)
		return ok && term.IsTerminal(int(f.Fd())), nil
	case ConsoleAlways:
		return true, nil
	case ConsoleNever:
		return false, nil
	default:
		return false, fmt.Errorf("unknown console mode %q", mode)
	}
}
