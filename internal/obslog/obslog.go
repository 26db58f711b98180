// Package obslog is the structured-logging and liveness-indicator
// layer behind core.Logger: a charmbracelet/log backend, a tty-only
// liveness spinner, and the one-line end-of-run summary.
package obslog

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/lestrrat-go/strftime"
	"github.com/mattn/go-isatty"

	"github.com/wittra-tof/rangecore/core"
)

// Logger adapts a charmbracelet/log.Logger to core.Logger.
type Logger struct {
	l *log.Logger
}

// New builds a Logger writing to w at the given level ("debug", "info",
// "warn", "error"; anything else defaults to info).
func New(w io.Writer, level string) *Logger {
	l := log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
	})
	l.SetLevel(parseLevel(level))
	return &Logger{l: l}
}

func parseLevel(level string) log.Level {
	switch level {
	case "debug":
		return log.DebugLevel
	case "warn":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

// For returns a sub-logger tagged with "role" = role ("beacon" or
// "tag"), so interleaved output from concurrent roles stays
// attributable.
func (lg *Logger) For(role string) core.Logger {
	return &Logger{l: lg.l.With("role", role)}
}

func (lg *Logger) Info(msg string, kv ...any) { lg.l.Info(msg, kv...) }
func (lg *Logger) Warn(msg string, kv ...any) { lg.l.Warn(msg, kv...) }
func (lg *Logger) Error(msg string, kv ...any) { lg.l.Error(msg, kv...) }

// Spinner prints a periodic tty-only liveness indicator so a run left
// unattended at a terminal shows signs of life without polluting piped
// output or log files.
type Spinner struct {
	w        io.Writer
	tty      bool
	fmtr     *strftime.Strftime
	interval time.Duration

	mu      sync.Mutex
	stopped bool
	done    chan struct{}
}

var spinnerFrames = [...]byte{'|', '/', '-', '\\'}

// NewSpinner builds a Spinner over w. tty-ness is determined via
// isatty against w's file descriptor when w is an *os.File; for any
// other writer (a log file, a buffer) the spinner is silently
// disabled, matching the "redirected output ... stay clean" intent.
func NewSpinner(w io.Writer, interval time.Duration) *Spinner {
	tty := false
	if f, ok := w.(*os.File); ok {
		tty = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	pattern, err := strftime.New("%H:%M:%S")
	if err != nil {
		pattern = nil
	}
	return &Spinner{w: w, tty: tty, fmtr: pattern, interval: interval, done: make(chan struct{})}
}

// Run ticks the spinner until stop is called or doneCh closes. It
// returns immediately if the spinner was built over a non-tty writer.
func (s *Spinner) Run(doneCh <-chan struct{}) {
	if !s.tty {
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	frame := 0
	for {
		select {
		case <-doneCh:
			return
		case <-s.done:
			return
		case now := <-ticker.C:
			s.render(now, frame)
			frame = (frame + 1) % len(spinnerFrames)
		}
	}
}

func (s *Spinner) render(now time.Time, frame int) {
	ts := now.Format("15:04:05")
	if s.fmtr != nil {
		ts = s.fmtr.FormatString(now)
	}
	fmt.Fprintf(s.w, "\r[%s] %c ranging active", ts, spinnerFrames[frame])
}

// Stop halts a running spinner and clears its line on a tty.
func (s *Spinner) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.stopped = true
	close(s.done)
	if s.tty {
		fmt.Fprint(s.w, "\r\033[K")
	}
}

// Summary prints the final one-line found/missed/average-TOF summary,
// fed from a core.Stats accumulator.
func Summary(w io.Writer, found, missed int64, avgNs, minNs, maxNs int64) {
	fmt.Fprintf(w, "found=%d missed=%d avg_tof_ns=%d min_tof_ns=%d max_tof_ns=%d\n",
		found, missed, avgNs, minNs, maxNs)
}
