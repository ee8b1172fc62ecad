package router

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"sync"

	log "github.com/sirupsen/logrus"
)

// LogWriter logs each attribute update instead of applying it.
type LogWriter struct{}

// Write logs w at info level.
func (LogWriter) Write(_ context.Context, w Write) error {
	log.WithFields(log.Fields{
		"stream_id": fmt.Sprintf("0x%08X", w.Record.StreamID),
		"bit":       w.Record.CIF0Bit,
		"target":    w.Record.Target(),
		"value":     FormatValue(w.Value),
	}).Info("Attribute write")
	return nil
}

// FormatValue renders a value the way attribute files expect it: integral
// values without a fractional part.
func FormatValue(v float64) string {
	if math.Abs(v) < 1<<53 && v == math.Trunc(v) {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// MemoryWriter records updates, keyed by attribute target, keeping the last
// value per target.
type MemoryWriter struct {
	mu     sync.Mutex
	values map[string]string
	writes []Write
}

// NewMemoryWriter creates an empty MemoryWriter.
func NewMemoryWriter() *MemoryWriter {
	return &MemoryWriter{values: make(map[string]string)}
}

// Write stores w.
func (m *MemoryWriter) Write(_ context.Context, w Write) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[w.Record.Target()] = FormatValue(w.Value)
	m.writes = append(m.writes, w)
	return nil
}

// Value returns the last value written to target.
func (m *MemoryWriter) Value(target string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[target]
	return v, ok
}

// Writes returns every update in arrival order.
func (m *MemoryWriter) Writes() []Write {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Write(nil), m.writes...)
}
