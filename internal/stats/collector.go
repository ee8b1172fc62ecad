package stats

import (
	"sort"
	"sync"
	"time"

	"vrt-bridge/internal/mapping"
	"vrt-bridge/internal/vrt"
)

// PacketTypeStats holds per packet-type counters.
type PacketTypeStats struct {
	Received uint64
	Bytes    uint64
	Routed   uint64
}

// Collector aggregates operational statistics. It implements the receiver's
// decode observer and the router's outcome observer.
type Collector struct {
	StartTime time.Time
	EndTime   time.Time

	PacketStats  map[string]*PacketTypeStats
	DecodeErrors map[string]uint64 // keyed by vrt.ErrorKind

	RouteWrites   uint64
	RouteSkips    uint64
	RouteFailures uint64
	PacketsLost   uint64

	MappingRecords      uint64
	MappingSyntaxErrors uint64
	MappingInvalid      uint64

	// Running latency totals; p99 comes from the most recent samples only.
	ProcessedCount uint64
	processingSum  time.Duration
	processingMin  time.Duration
	processingMax  time.Duration
	recent         []time.Duration
	recentNext     int

	mu sync.Mutex
}

// MaxRecentSamples caps the latency samples kept for the p99 estimate.
const MaxRecentSamples = 4096

// NewCollector creates a new statistics collector.
func NewCollector() *Collector {
	return &Collector{
		StartTime:    time.Now(),
		PacketStats:  make(map[string]*PacketTypeStats),
		DecodeErrors: make(map[string]uint64),
	}
}

func (c *Collector) getOrCreate(pktType string) *PacketTypeStats {
	if _, ok := c.PacketStats[pktType]; !ok {
		c.PacketStats[pktType] = &PacketTypeStats{}
	}
	return c.PacketStats[pktType]
}

// RecordReceived records a decoded packet of size bytes.
func (c *Collector) RecordReceived(t vrt.PacketType, size int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.getOrCreate(t.String())
	s.Received++
	s.Bytes += uint64(size)
}

// RecordRouted records a packet that produced at least one attribute write,
// and the time it took from receive to the last write.
func (c *Collector) RecordRouted(t vrt.PacketType, took time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.getOrCreate(t.String()).Routed++
	c.addProcessingTime(took)
}

func (c *Collector) addProcessingTime(took time.Duration) {
	if c.ProcessedCount == 0 || took < c.processingMin {
		c.processingMin = took
	}
	if took > c.processingMax {
		c.processingMax = took
	}
	c.ProcessedCount++
	c.processingSum += took

	if len(c.recent) < MaxRecentSamples {
		c.recent = append(c.recent, took)
		return
	}
	c.recent[c.recentNext] = took
	c.recentNext = (c.recentNext + 1) % MaxRecentSamples
}

// RecordLost adds packets reported missing by the stream tracker.
func (c *Collector) RecordLost(n uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.PacketsLost += n
}

// DecodeFailed records a datagram that did not decode.
func (c *Collector) DecodeFailed(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.DecodeErrors[vrt.ErrorKind(err)]++
}

// AddDecodeErrors adds n failures of one error kind, for failures counted
// elsewhere such as a capture parser.
func (c *Collector) AddDecodeErrors(kind string, n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.DecodeErrors[kind] += uint64(n)
}

// RouteWrite records a successful attribute write.
func (c *Collector) RouteWrite(mapping.Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.RouteWrites++
}

// RouteSkip records a mapped field that carried no scalar value.
func (c *Collector) RouteSkip(mapping.Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.RouteSkips++
}

// RouteError records a failed attribute write.
func (c *Collector) RouteError(mapping.Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.RouteFailures++
}

// RecordMapping records the outcome of loading a mapping file.
func (c *Collector) RecordMapping(records, syntaxErrors, invalid int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.MappingRecords = uint64(records)
	c.MappingSyntaxErrors = uint64(syntaxErrors)
	c.MappingInvalid = uint64(invalid)
}

// Finish marks the end of the collection period.
func (c *Collector) Finish() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.EndTime = time.Now()
}

// Duration returns the elapsed time.
func (c *Collector) Duration() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.EndTime.IsZero() {
		return time.Since(c.StartTime)
	}
	return c.EndTime.Sub(c.StartTime)
}

// TotalReceived returns the number of decoded packets.
func (c *Collector) TotalReceived() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	var total uint64
	for _, s := range c.PacketStats {
		total += s.Received
	}
	return total
}

// TotalDecodeErrors returns the number of datagrams that did not decode.
func (c *Collector) TotalDecodeErrors() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	var total uint64
	for _, n := range c.DecodeErrors {
		total += n
	}
	return total
}

// ProcessingTimeStats returns min, avg, max over every routed packet, and
// p99 over the last MaxRecentSamples.
func (c *Collector) ProcessingTimeStats() (min, avg, max, p99 time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ProcessedCount == 0 {
		return 0, 0, 0, 0
	}

	sorted := make([]time.Duration, len(c.recent))
	copy(sorted, c.recent)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	p99Idx := int(float64(len(sorted)) * 0.99)
	if p99Idx >= len(sorted) {
		p99Idx = len(sorted) - 1
	}

	return c.processingMin, c.processingSum / time.Duration(c.ProcessedCount), c.processingMax, sorted[p99Idx]
}

// Snapshot returns a copy of the current statistics (thread-safe).
func (c *Collector) Snapshot() *Collector {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := &Collector{
		StartTime:           c.StartTime,
		EndTime:             c.EndTime,
		PacketStats:         make(map[string]*PacketTypeStats, len(c.PacketStats)),
		DecodeErrors:        make(map[string]uint64, len(c.DecodeErrors)),
		RouteWrites:         c.RouteWrites,
		RouteSkips:          c.RouteSkips,
		RouteFailures:       c.RouteFailures,
		PacketsLost:         c.PacketsLost,
		MappingRecords:      c.MappingRecords,
		MappingSyntaxErrors: c.MappingSyntaxErrors,
		MappingInvalid:      c.MappingInvalid,
		ProcessedCount:      c.ProcessedCount,
		processingSum:       c.processingSum,
		processingMin:       c.processingMin,
		processingMax:       c.processingMax,
		recent:              append([]time.Duration(nil), c.recent...),
		recentNext:          c.recentNext,
	}

	for k, v := range c.PacketStats {
		cp := *v
		snap.PacketStats[k] = &cp
	}
	for k, v := range c.DecodeErrors {
		snap.DecodeErrors[k] = v
	}

	return snap
}
