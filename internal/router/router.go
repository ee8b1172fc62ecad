// Package router applies decoded context packets to hardware attributes
// through the stream mapping table.
package router

import (
	"context"
	"errors"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"vrt-bridge/internal/mapping"
	"vrt-bridge/internal/vrt"
)

// Write is one attribute update produced by a context packet.
type Write struct {
	Record mapping.Record
	Value  float64
}

// Writer applies attribute updates.
type Writer interface {
	Write(ctx context.Context, w Write) error
}

// Observer is notified of routing outcomes.
type Observer interface {
	RouteWrite(rec mapping.Record)
	RouteSkip(rec mapping.Record)
	RouteError(rec mapping.Record, err error)
}

// Router dispatches CIF0 fields of IF context packets to mapped attributes.
type Router struct {
	byStream map[uint32][]mapping.Record
	writer   Writer
	observer Observer
	mu       sync.RWMutex
}

// New creates a router for records. Records keep their file order within a
// stream.
func New(records []mapping.Record, writer Writer) *Router {
	r := &Router{writer: writer}
	r.Reload(records)
	return r
}

// SetObserver installs an outcome observer. Pass nil to remove it.
func (r *Router) SetObserver(o Observer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observer = o
}

// Reload swaps the mapping table.
func (r *Router) Reload(records []mapping.Record) {
	byStream := make(map[uint32][]mapping.Record)
	for _, rec := range records {
		byStream[rec.StreamID] = append(byStream[rec.StreamID], rec)
	}

	r.mu.Lock()
	r.byStream = byStream
	r.mu.Unlock()
}

// Streams returns the number of distinct mapped stream IDs.
func (r *Router) Streams() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byStream)
}

// Route applies pkt and returns the number of successful writes. Packets that
// are not IF context packets, or carry no stream ID, are ignored. A CIF decode
// error is returned as is. Write failures do not stop the remaining records;
// they are joined into the returned error.
func (r *Router) Route(ctx context.Context, pkt *vrt.Packet) (int, error) {
	if pkt.Header.Type != vrt.TypeIFContext || !pkt.Header.HasStreamID() {
		return 0, nil
	}

	r.mu.RLock()
	records := r.byStream[pkt.StreamID]
	observer := r.observer
	r.mu.RUnlock()

	if len(records) == 0 {
		return 0, nil
	}

	fields, err := pkt.CIF()
	if err != nil {
		return 0, err
	}

	var (
		writes int
		errs   []error
	)
	for _, rec := range records {
		if !fields.Has(rec.CIF0Bit) {
			continue
		}

		value, ok := fields.Numeric(rec.CIF0Bit)
		if !ok {
			log.WithFields(log.Fields{
				"stream_id": fmt.Sprintf("0x%08X", rec.StreamID),
				"bit":       rec.CIF0Bit,
				"line":      rec.Line,
			}).Debug("CIF0 field has no numeric value, skipping")
			if observer != nil {
				observer.RouteSkip(rec)
			}
			continue
		}

		if err := r.writer.Write(ctx, Write{Record: rec, Value: value}); err != nil {
			log.WithFields(log.Fields{
				"target": rec.Target(),
				"value":  value,
			}).WithError(err).Warn("Attribute write failed")
			if observer != nil {
				observer.RouteError(rec, err)
			}
			errs = append(errs, fmt.Errorf("line %d %s: %w", rec.Line, rec.Target(), err))
			continue
		}

		writes++
		if observer != nil {
			observer.RouteWrite(rec)
		}
	}

	return writes, errors.Join(errs...)
}
