package network

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"vrt-bridge/internal/vrt"
	"vrt-bridge/pkg/types"
)

// Data and context packets of one stream carry independent packet counters.
type streamKey struct {
	id      uint32
	context bool
}

// StreamTracker keeps per-stream receive state and detects gaps in the 4-bit
// packet count.
type StreamTracker struct {
	streams map[streamKey]*types.StreamInfo
	mu      sync.Mutex
	timeout time.Duration
	now     func() time.Time
}

// NewStreamTracker creates a tracker that forgets streams idle for longer
// than idleTimeoutMs.
func NewStreamTracker(idleTimeoutMs int) *StreamTracker {
	return &StreamTracker{
		streams: make(map[streamKey]*types.StreamInfo),
		timeout: time.Duration(idleTimeoutMs) * time.Millisecond,
		now:     time.Now,
	}
}

// Observe records a received packet and returns the number of packets lost
// since the previous one on the same stream. A packet repeating the previous
// count is a duplicate, not a gap of 15. Packets without a stream ID are
// ignored.
func (t *StreamTracker) Observe(pkt *vrt.Packet, from string) uint64 {
	if !pkt.Header.HasStreamID() {
		return 0
	}
	key := streamKey{id: pkt.StreamID, context: pkt.Header.Type.IsContext()}
	count := pkt.Header.Count & 0xF
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	info, exists := t.streams[key]
	if !exists {
		t.streams[key] = &types.StreamInfo{
			StreamID:  pkt.StreamID,
			Context:   key.context,
			From:      from,
			FirstSeen: now,
			LastSeen:  now,
			Packets:   1,
			LastCount: count,
		}
		log.WithFields(log.Fields{
			"stream_id": formatStreamID(pkt.StreamID),
			"type":      pkt.Header.Type,
			"from":      from,
		}).Info("New VRT stream")
		return 0
	}

	info.LastSeen = now
	info.From = from
	if count == info.LastCount {
		info.Duplicates++
		log.WithFields(log.Fields{
			"stream_id": formatStreamID(pkt.StreamID),
			"count":     count,
		}).Debug("Duplicate packet count")
		return 0
	}

	expected := (info.LastCount + 1) & 0xF
	lost := uint64((count - expected) & 0xF)
	if lost > 0 {
		info.Lost += lost
		log.WithFields(log.Fields{
			"stream_id": formatStreamID(pkt.StreamID),
			"expected":  expected,
			"got":       count,
			"lost":      lost,
		}).Warn("Packet count gap")
	}

	info.Packets++
	info.LastCount = count
	return lost
}

// StartExpiryMonitor drops idle streams until ctx is cancelled.
func (t *StreamTracker) StartExpiryMonitor(ctx context.Context) {
	if t.timeout <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(t.checkInterval())
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				t.expire()
			}
		}
	}()
}

func (t *StreamTracker) checkInterval() time.Duration {
	interval := t.timeout / 4
	if interval < 10*time.Millisecond {
		interval = 10 * time.Millisecond
	}
	return interval
}

func (t *StreamTracker) expire() []types.StreamInfo {
	t.mu.Lock()
	var expired []types.StreamInfo
	now := t.now()
	for key, info := range t.streams {
		if now.Sub(info.LastSeen) > t.timeout {
			expired = append(expired, *info)
			delete(t.streams, key)
		}
	}
	t.mu.Unlock()

	for _, info := range expired {
		log.WithFields(log.Fields{
			"stream_id": formatStreamID(info.StreamID),
			"packets":   info.Packets,
			"lost":      info.Lost,
			"idle":      now.Sub(info.LastSeen).Round(time.Millisecond),
		}).Info("VRT stream expired")
	}
	return expired
}

// ActiveCount returns the number of tracked streams.
func (t *StreamTracker) ActiveCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.streams)
}

// Snapshot returns a copy of every tracked stream, sorted by stream ID with
// data streams before context streams.
func (t *StreamTracker) Snapshot() []types.StreamInfo {
	t.mu.Lock()
	keys := make([]streamKey, 0, len(t.streams))
	for k := range t.streams {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].id != keys[j].id {
			return keys[i].id < keys[j].id
		}
		return !keys[i].context && keys[j].context
	})
	out := make([]types.StreamInfo, len(keys))
	for i, k := range keys {
		out[i] = *t.streams[k]
	}
	t.mu.Unlock()
	return out
}

func formatStreamID(id uint32) string {
	return fmt.Sprintf("0x%08X", id)
}
