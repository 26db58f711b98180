// Package dump persists RX buffers and correlation traces as
// plain-text column files, one "_re"/"_im" pair per complex buffer, a
// format common offline plotting tools load directly.
package dump

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/wittra-tof/rangecore/core"
)

// Writer is a core.Observer that writes every tagged RxBuffer and
// CorrelationTrace it sees to <dir>/<label>_re.txt and
// <dir>/<label>_im.txt (one real/imaginary sample per line), and
// <dir>/<label>_trace.txt for correlation magnitude traces. It never
// blocks the ranging loop on anything beyond a buffered file write, and
// logs but otherwise ignores I/O failures so a bad disk never takes
// down a ranging run.
type Writer struct {
	dir    string
	logger core.Logger
}

// New returns a Writer rooted at dir, creating it if necessary.
func New(dir string, logger core.Logger) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("dump: creating %s: %w", dir, err)
	}
	return &Writer{dir: dir, logger: logger}, nil
}

func (w *Writer) OnRxBuffer(label string, rx core.RXBuffer) {
	rePath := filepath.Join(w.dir, label+"_re.txt")
	imPath := filepath.Join(w.dir, label+"_im.txt")
	if err := writeColumn(rePath, len(rx.Samples), func(i int) float64 { return real(rx.Samples[i]) }); err != nil {
		w.logger.Warn("dump: writing real column failed", "path", rePath, "err", err)
	}
	if err := writeColumn(imPath, len(rx.Samples), func(i int) float64 { return imag(rx.Samples[i]) }); err != nil {
		w.logger.Warn("dump: writing imaginary column failed", "path", imPath, "err", err)
	}
}

func (w *Writer) OnCorrelationTrace(label string, trace []float64) {
	tracePath := filepath.Join(w.dir, label+"_trace.txt")
	if err := writeColumn(tracePath, len(trace), func(i int) float64 { return trace[i] }); err != nil {
		w.logger.Warn("dump: writing trace failed", "path", tracePath, "err", err)
	}
}

func (w *Writer) OnStateTransition(string, string, string) {}
func (w *Writer) OnRangeMeasurement(int64) {}

func writeColumn(path string, n int, at func(int) float64) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	bw := bufio.NewWriter(f)
	buf := make([]byte, 0, 32)
	for i := 0; i < n; i++ {
		buf = strconv.AppendFloat(buf[:0], at(i), 'g', -1, 64)
		buf = append(buf, '\n')
		if _, err := bw.Write(buf); err != nil {
			return err
		}
	}
	return bw.Flush()
}

var _ core.Observer = (*Writer)(nil)
