// Package logz holds the process wide zerolog logger. Packages derive their own logger from it:
//
//	var log = logz.Logger.With().Str("module", "statetree").Logger()
package logz

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var output = &swapWriter{w: zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.StampMilli}}

var Logger = zerolog.New(output).With().Timestamp().Logger()

// swapWriter lets Configure redirect loggers that were derived from Logger at init time.
type swapWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *swapWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

// Configure sends all log output to w, as JSON lines or in console format, and sets the global
// level. An unknown level name is returned as an error and leaves the level untouched.
func Configure(w io.Writer, json bool, level string) error {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return err
	}
	output.mu.Lock()
	if json {
		output.w = w
	} else {
		output.w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.StampMilli}
	}
	output.mu.Unlock()
	zerolog.SetGlobalLevel(lvl)
	return nil
}
