package pcap

import (
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vrt-bridge/internal/vrt"
)

var (
	srcEP = Endpoint{MAC: mustMAC("00:11:22:33:44:55"), IP: net.ParseIP("192.168.2.1").To4(), Port: 50000}
	dstEP = Endpoint{MAC: mustMAC("66:77:88:99:aa:bb"), IP: net.ParseIP("192.168.2.2").To4(), Port: DefaultPort}
)

func mustMAC(s string) net.HardwareAddr {
	mac, err := net.ParseMAC(s)
	if err != nil {
		panic(err)
	}
	return mac
}

func writeCapture(t *testing.T, fn func(w *Writer)) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "capture.pcap")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w, err := NewWriter(f)
	require.NoError(t, err)
	fn(w)
	return path
}

func TestParse_RoundTrip(t *testing.T) {
	ts := time.Unix(1700000000, 0)
	ctxPkt, err := vrt.NewContextPacket(0x12345678, map[int]any{
		vrt.BitSampleRate: 30720000.0,
		vrt.BitBandwidth:  18000000.0,
	})
	require.NoError(t, err)
	dataPkt := vrt.NewPacket(vrt.Header{Type: vrt.TypeIFDataWithStreamID, Count: 1}, 0x12345678, 0, []uint32{1, 2, 3}, 0)

	path := writeCapture(t, func(w *Writer) {
		require.NoError(t, w.WritePacket(srcEP, dstEP, ctxPkt, ts))
		require.NoError(t, w.WritePacket(srcEP, dstEP, dataPkt, ts.Add(time.Millisecond)))
		// wrong port
		other := dstEP
		other.Port = 9999
		require.NoError(t, w.WritePacket(srcEP, other, dataPkt, ts.Add(2*time.Millisecond)))
		// header claims 2 words, datagram has 1
		require.NoError(t, w.WriteDatagram(srcEP, dstEP, []byte{0x10, 0x00, 0x00, 0x02}, ts.Add(3*time.Millisecond)))
	})

	result, err := NewParser(DefaultPort).Parse(path)
	require.NoError(t, err)

	assert.Equal(t, 4, result.TotalFrames)
	assert.Equal(t, 3, result.UDPDatagrams)
	require.Len(t, result.Datagrams, 2)
	assert.Equal(t, 1, result.Failures())
	assert.Equal(t, 1, result.DecodeFailures["size_mismatch"])
	assert.Equal(t, 1, result.TypeCounts[vrt.TypeIFContext])
	assert.Equal(t, 1, result.TypeCounts[vrt.TypeIFDataWithStreamID])

	first := result.Datagrams[0]
	assert.Equal(t, vrt.TypeIFContext, first.Packet.Header.Type)
	assert.Equal(t, uint32(0x12345678), first.Packet.StreamID)
	assert.True(t, first.SrcIP.Equal(srcEP.IP))
	assert.True(t, first.DstIP.Equal(dstEP.IP))
	assert.Equal(t, uint16(DefaultPort), first.DstPort)
	assert.True(t, first.Timestamp.Equal(ts))

	fields, err := first.Packet.CIF()
	require.NoError(t, err)
	bw, ok := fields.Bandwidth()
	require.True(t, ok)
	assert.Equal(t, 18000000.0, bw)

	encoded, err := vrt.Encode(ctxPkt)
	require.NoError(t, err)
	assert.Equal(t, encoded, first.Data)
}

func TestParse_AnyPort(t *testing.T) {
	dataPkt := vrt.NewPacket(vrt.Header{Type: vrt.TypeIFDataWithStreamID}, 7, 0, []uint32{1}, 0)
	path := writeCapture(t, func(w *Writer) {
		other := dstEP
		other.Port = 12345
		require.NoError(t, w.WritePacket(srcEP, other, dataPkt, time.Now()))
	})

	result, err := NewParser(0).Parse(path)
	require.NoError(t, err)
	assert.Len(t, result.Datagrams, 1)
}

func TestParse_Errors(t *testing.T) {
	_, err := NewParser(DefaultPort).Parse(filepath.Join(t.TempDir(), "missing.pcap"))
	assert.Error(t, err)

	junk := filepath.Join(t.TempDir(), "junk.pcap")
	require.NoError(t, os.WriteFile(junk, []byte("definitely not a capture file"), 0644))
	_, err = NewParser(DefaultPort).Parse(junk)
	assert.Error(t, err)
}
