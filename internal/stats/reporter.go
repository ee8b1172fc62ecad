package stats

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// Reporter outputs statistics to console and/or file.
type Reporter struct {
	collector   *Collector
	intervalSec int
	exportFile  string
	out         io.Writer
}

// NewReporter creates a new statistics reporter writing to stdout.
func NewReporter(collector *Collector, intervalSec int, exportFile string) *Reporter {
	return &Reporter{
		collector:   collector,
		intervalSec: intervalSec,
		exportFile:  exportFile,
		out:         os.Stdout,
	}
}

// SetOutput redirects console reports.
func (r *Reporter) SetOutput(w io.Writer) {
	r.out = w
}

// StartPeriodicReport begins periodic statistics reporting in a goroutine.
func (r *Reporter) StartPeriodicReport(ctx context.Context) {
	if r.intervalSec <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(time.Duration(r.intervalSec) * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fmt.Fprintln(r.out, r.FormatReport())
			}
		}
	}()
}

// PrintFinalReport prints the final statistics summary.
func (r *Reporter) PrintFinalReport() {
	r.collector.Finish()
	fmt.Fprintln(r.out, r.FormatReport())
}

type exportPacketStats struct {
	Received uint64 `json:"received"`
	Bytes    uint64 `json:"bytes"`
	Routed   uint64 `json:"routed"`
}

type exportStats struct {
	StartTime    string                       `json:"start_time"`
	EndTime      string                       `json:"end_time"`
	DurationSec  float64                      `json:"duration_sec"`
	Packets      map[string]exportPacketStats `json:"packets"`
	DecodeErrors map[string]uint64            `json:"decode_errors"`
	PacketsLost  uint64                       `json:"packets_lost"`
	Routing      map[string]uint64            `json:"routing"`
	Mapping      map[string]uint64            `json:"mapping"`
	ProcessingMs map[string]float64           `json:"processing_times_ms"`
	PacketRate   float64                      `json:"throughput_pkt_per_sec,omitempty"`
}

// ExportJSON exports statistics to a JSON file.
func (r *Reporter) ExportJSON() error {
	if r.exportFile == "" {
		return nil
	}

	snap := r.collector.Snapshot()
	min, avg, max, p99 := snap.ProcessingTimeStats()

	export := exportStats{
		StartTime:    snap.StartTime.Format(time.RFC3339),
		EndTime:      snap.EndTime.Format(time.RFC3339),
		DurationSec:  snap.Duration().Seconds(),
		Packets:      make(map[string]exportPacketStats, len(snap.PacketStats)),
		DecodeErrors: snap.DecodeErrors,
		PacketsLost:  snap.PacketsLost,
		Routing: map[string]uint64{
			"writes":   snap.RouteWrites,
			"skipped":  snap.RouteSkips,
			"failures": snap.RouteFailures,
		},
		Mapping: map[string]uint64{
			"records":       snap.MappingRecords,
			"syntax_errors": snap.MappingSyntaxErrors,
			"invalid":       snap.MappingInvalid,
		},
		ProcessingMs: map[string]float64{
			"min": float64(min) / float64(time.Millisecond),
			"avg": float64(avg) / float64(time.Millisecond),
			"max": float64(max) / float64(time.Millisecond),
			"p99": float64(p99) / float64(time.Millisecond),
		},
	}
	for name, s := range snap.PacketStats {
		export.Packets[name] = exportPacketStats{Received: s.Received, Bytes: s.Bytes, Routed: s.Routed}
	}
	if d := export.DurationSec; d > 0 {
		export.PacketRate = float64(snap.TotalReceived()) / d
	}

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal stats JSON: %w", err)
	}

	if err := os.WriteFile(r.exportFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write stats file %s: %w", r.exportFile, err)
	}

	log.WithField("file", r.exportFile).Info("Statistics exported to JSON")
	return nil
}

// FormatReport generates a formatted statistics report string.
func (r *Reporter) FormatReport() string {
	snap := r.collector.Snapshot()
	elapsed := snap.Duration()
	min, avg, max, p99 := snap.ProcessingTimeStats()

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("\n=== VRT Bridge Statistics (elapsed: %s) ===\n", elapsed.Round(time.Second)))
	sb.WriteString("Packets:\n")

	typeNames := make([]string, 0, len(snap.PacketStats))
	for name := range snap.PacketStats {
		typeNames = append(typeNames, name)
	}
	sort.Strings(typeNames)

	for _, name := range typeNames {
		s := snap.PacketStats[name]
		sb.WriteString(fmt.Sprintf("  %-20s recv=%-7d bytes=%-10d routed=%-7d\n",
			name+":", s.Received, s.Bytes, s.Routed))
	}

	if len(snap.DecodeErrors) > 0 {
		kinds := make([]string, 0, len(snap.DecodeErrors))
		for k := range snap.DecodeErrors {
			kinds = append(kinds, k)
		}
		sort.Strings(kinds)
		sb.WriteString("Decode errors:\n")
		for _, k := range kinds {
			sb.WriteString(fmt.Sprintf("  %-26s %d\n", k+":", snap.DecodeErrors[k]))
		}
	}

	sb.WriteString("Routing:\n")
	sb.WriteString(fmt.Sprintf("  Writes: %d  |  Skipped: %d  |  Failed: %d  |  Lost packets: %d\n",
		snap.RouteWrites, snap.RouteSkips, snap.RouteFailures, snap.PacketsLost))

	if snap.MappingRecords > 0 || snap.MappingSyntaxErrors > 0 {
		sb.WriteString(fmt.Sprintf("Mapping:\n  Records: %d  |  Syntax errors: %d  |  Invalid: %d\n",
			snap.MappingRecords, snap.MappingSyntaxErrors, snap.MappingInvalid))
	}

	if snap.ProcessedCount > 0 {
		sb.WriteString("Processing Times:\n")
		sb.WriteString(fmt.Sprintf("  Min: %s  |  Avg: %s  |  Max: %s  |  P99: %s\n",
			min.Round(time.Microsecond), avg.Round(time.Microsecond),
			max.Round(time.Microsecond), p99.Round(time.Microsecond)))
	}

	if elapsed.Seconds() > 0 {
		sb.WriteString("Throughput:\n")
		sb.WriteString(fmt.Sprintf("  %.1f pkt/s\n", float64(snap.TotalReceived())/elapsed.Seconds()))
	}

	sb.WriteString("================================================\n")
	return sb.String()
}
