package telemetry

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/gocarina/gocsv"

	"github.com/cjeanneret/GyroDrive/internal/logic/motion"
)

// CSVRecorder writes one CSV row per control tick. The header is written
// with the first row.
type CSVRecorder struct {
	mu            sync.Mutex
	w             io.Writer
	closer        io.Closer
	headerWritten bool
	rows          int
}

// NewCSVRecorder records to w.
func NewCSVRecorder(w io.Writer) *CSVRecorder {
	return &CSVRecorder{w: w}
}

// CreateCSV creates the file at path, and its directory if needed, and
// returns a recorder writing to it. Returns nil if path is empty (trace
// disabled).
func CreateCSV(path string) (*CSVRecorder, error) {
	if path == "" {
		return nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating trace directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", path, err)
	}
	return &CSVRecorder{w: f, closer: f}, nil
}

// Record implements motion.Recorder.
func (r *CSVRecorder) Record(s motion.Sample) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	records := []motion.Sample{s}
	if !r.headerWritten {
		if err := gocsv.Marshal(records, r.w); err != nil {
			return fmt.Errorf("writing trace: %w", err)
		}
		r.headerWritten = true
	} else {
		if err := gocsv.MarshalWithoutHeaders(records, r.w); err != nil {
			return fmt.Errorf("writing trace: %w", err)
		}
	}
	r.rows++
	return nil
}

// Rows returns the number of samples written.
func (r *CSVRecorder) Rows() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rows
}

// Close closes the underlying file, if the recorder owns one.
func (r *CSVRecorder) Close() error {
	if r == nil || r.closer == nil {
		return nil
	}
	return r.closer.Close()
}
