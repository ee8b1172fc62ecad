package stats

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vrt-bridge/internal/mapping"
	"vrt-bridge/internal/vrt"
)

func TestCollector_Counters(t *testing.T) {
	c := NewCollector()

	c.RecordReceived(vrt.TypeIFContext, 40)
	c.RecordReceived(vrt.TypeIFContext, 40)
	c.RecordReceived(vrt.TypeIFDataWithStreamID, 1024)
	c.RecordRouted(vrt.TypeIFContext, 2*time.Millisecond)
	c.RecordLost(3)

	c.DecodeFailed(fmt.Errorf("wrap: %w", vrt.ErrSizeMismatch))
	c.DecodeFailed(vrt.ErrTruncatedBuffer)
	c.DecodeFailed(&vrt.IndicatorError{Bit: 10})
	c.DecodeFailed(errors.New("boom"))

	rec := mapping.Record{Line: 1}
	c.RouteWrite(rec)
	c.RouteWrite(rec)
	c.RouteSkip(rec)
	c.RouteError(rec, errors.New("denied"))
	c.RecordMapping(10, 2, 1)

	assert.Equal(t, uint64(3), c.TotalReceived())
	assert.Equal(t, uint64(4), c.TotalDecodeErrors())

	snap := c.Snapshot()
	assert.Equal(t, uint64(2), snap.PacketStats["IFContext"].Received)
	assert.Equal(t, uint64(80), snap.PacketStats["IFContext"].Bytes)
	assert.Equal(t, uint64(1), snap.PacketStats["IFContext"].Routed)
	assert.Equal(t, uint64(1), snap.DecodeErrors["size_mismatch"])
	assert.Equal(t, uint64(1), snap.DecodeErrors["truncated_buffer"])
	assert.Equal(t, uint64(1), snap.DecodeErrors["unsupported_indicator_bit"])
	assert.Equal(t, uint64(1), snap.DecodeErrors["other"])
	assert.Equal(t, uint64(2), snap.RouteWrites)
	assert.Equal(t, uint64(1), snap.RouteSkips)
	assert.Equal(t, uint64(1), snap.RouteFailures)
	assert.Equal(t, uint64(3), snap.PacketsLost)
	assert.Equal(t, uint64(10), snap.MappingRecords)
	assert.Equal(t, uint64(2), snap.MappingSyntaxErrors)
	assert.Equal(t, uint64(1), snap.MappingInvalid)
}

func TestCollector_SnapshotIsIndependent(t *testing.T) {
	c := NewCollector()
	c.RecordReceived(vrt.TypeIFContext, 4)
	snap := c.Snapshot()

	c.RecordReceived(vrt.TypeIFContext, 4)
	assert.Equal(t, uint64(1), snap.PacketStats["IFContext"].Received)
	assert.Equal(t, uint64(2), c.TotalReceived())
}

func TestCollector_ProcessingTimeStats(t *testing.T) {
	c := NewCollector()
	min, avg, max, p99 := c.ProcessingTimeStats()
	assert.Zero(t, min+avg+max+p99)

	for i := 1; i <= 100; i++ {
		c.RecordRouted(vrt.TypeIFContext, time.Duration(i)*time.Millisecond)
	}
	min, avg, max, p99 = c.ProcessingTimeStats()
	assert.Equal(t, time.Millisecond, min)
	assert.Equal(t, 100*time.Millisecond, max)
	assert.Equal(t, 50500*time.Microsecond, avg)
	assert.Equal(t, 100*time.Millisecond, p99)
}

func TestCollector_ProcessingTimesBounded(t *testing.T) {
	c := NewCollector()
	total := 3 * MaxRecentSamples
	for i := 1; i <= total; i++ {
		c.RecordRouted(vrt.TypeIFContext, time.Duration(i)*time.Microsecond)
	}

	assert.Len(t, c.recent, MaxRecentSamples)
	assert.Equal(t, uint64(total), c.ProcessedCount)

	min, avg, max, p99 := c.ProcessingTimeStats()
	assert.Equal(t, time.Microsecond, min)
	assert.Equal(t, time.Duration(total)*time.Microsecond, max)
	assert.Equal(t, time.Duration(total+1)*time.Microsecond/2, avg)
	// only the newest samples remain, so p99 sits near the top of the range
	assert.Greater(t, p99, time.Duration(total-MaxRecentSamples)*time.Microsecond)

	snap := c.Snapshot()
	assert.Len(t, snap.recent, MaxRecentSamples)
	c.RecordRouted(vrt.TypeIFContext, time.Hour)
	_, _, snapMax, _ := snap.ProcessingTimeStats()
	assert.Equal(t, time.Duration(total)*time.Microsecond, snapMax)
}

func TestCollector_Concurrent(t *testing.T) {
	c := NewCollector()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.RecordReceived(vrt.TypeIFContext, 8)
				c.RouteWrite(mapping.Record{})
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, uint64(800), c.TotalReceived())
	assert.Equal(t, uint64(800), c.Snapshot().RouteWrites)
}

func TestReporter_FormatAndExport(t *testing.T) {
	c := NewCollector()
	c.RecordReceived(vrt.TypeIFContext, 40)
	c.RecordRouted(vrt.TypeIFContext, time.Millisecond)
	c.DecodeFailed(vrt.ErrSizeMismatch)
	c.RouteWrite(mapping.Record{})

	path := filepath.Join(t.TempDir(), "stats.json")
	r := NewReporter(c, 0, path)
	var out bytes.Buffer
	r.SetOutput(&out)
	r.PrintFinalReport()

	report := out.String()
	assert.Contains(t, report, "VRT Bridge Statistics")
	assert.Contains(t, report, "IFContext:")
	assert.Contains(t, report, "size_mismatch:")
	assert.Contains(t, report, "Writes: 1")

	require.NoError(t, r.ExportJSON())
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, float64(1), got["routing"].(map[string]any)["writes"])
	assert.Equal(t, float64(1), got["decode_errors"].(map[string]any)["size_mismatch"])
	assert.Equal(t, float64(40), got["packets"].(map[string]any)["IFContext"].(map[string]any)["bytes"])
}

func TestReporter_NoExportFile(t *testing.T) {
	r := NewReporter(NewCollector(), 0, "")
	assert.NoError(t, r.ExportJSON())
}
