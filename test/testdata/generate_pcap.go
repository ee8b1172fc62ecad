//go:build ignore

// This program generates a sample VRT capture for testing replay.
//
// Usage: go run test/testdata/generate_pcap.go [output.pcap]
package main

import (
	"fmt"
	"net"
	"os"
	"time"

	"vrt-bridge/internal/pcap"
	"vrt-bridge/internal/vrt"
)

func main() {
	filename := "test/testdata/sample.pcap"
	if len(os.Args) > 1 {
		filename = os.Args[1]
	}

	f, err := os.Create(filename)
	if err != nil {
		panic(err)
	}
	defer f.Close()

	w, err := pcap.NewWriter(f)
	if err != nil {
		panic(err)
	}

	radioMAC, _ := net.ParseMAC("02:00:00:00:00:01")
	hostMAC, _ := net.ParseMAC("02:00:00:00:00:02")
	radio := pcap.Endpoint{MAC: radioMAC, IP: net.ParseIP("192.168.2.2"), Port: 50000}
	host := pcap.Endpoint{MAC: hostMAC, IP: net.ParseIP("192.168.2.1"), Port: pcap.DefaultPort}
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	write := func(p *vrt.Packet) {
		if err := w.WritePacket(radio, host, p, ts); err != nil {
			panic(fmt.Sprintf("failed to write packet: %v", err))
		}
		ts = ts.Add(10 * time.Millisecond)
	}
	mustContext := func(sid uint32, values map[int]any, count uint8) *vrt.Packet {
		p, err := vrt.NewContextPacket(sid, values, vrt.WithCount(count), vrt.WithClassID(0x0012A2, 0x0001))
		if err != nil {
			panic(err)
		}
		return p
	}

	const rx, tx = 0x12345678, 0x12345679
	total := 0

	// === Receive stream: context then data, with one gap in the count ===
	write(mustContext(rx, map[int]any{
		vrt.BitContextFieldChange: true,
		vrt.BitBandwidth:          18e6,
		vrt.BitSampleRate:         30.72e6,
	}, 0))
	total++
	for i, count := range []uint8{0, 1, 2, 4, 5} {
		payload := make([]uint32, 64)
		for j := range payload {
			payload[j] = uint32(i*64 + j)
		}
		write(vrt.NewPacket(vrt.Header{Type: vrt.TypeIFDataWithStreamID, Count: count}, rx, 0, payload, 0))
		total++
	}
	write(mustContext(rx, map[int]any{
		vrt.BitContextFieldChange:   true,
		vrt.BitRFReferenceFrequency: 2.4e9,
		vrt.BitGain:                 vrt.Gain{Stage1: 10},
	}, 1))
	total++

	// === Transmit stream: LO retune ===
	write(mustContext(tx, map[int]any{
		vrt.BitRFReferenceFrequency: 2.45e9,
		vrt.BitTemperature:          41.5,
	}, 0))
	total++

	// === One truncated datagram ===
	good, err := vrt.Encode(mustContext(rx, map[int]any{vrt.BitSampleRate: 61.44e6}, 2))
	if err != nil {
		panic(err)
	}
	if err := w.WriteDatagram(radio, host, good[:len(good)-4], ts); err != nil {
		panic(err)
	}
	total++

	fmt.Printf("Generated %s with VRT packets:\n", filename)
	fmt.Println("  2x IF context for stream 0x12345678 (sample rate, bandwidth, RF frequency, gain)")
	fmt.Println("  5x IF data for stream 0x12345678 (count gap 2 -> 4)")
	fmt.Println("  1x IF context for stream 0x12345679 (RF frequency, temperature)")
	fmt.Println("  1x truncated context datagram")
	fmt.Printf("  Total: %d packets\n", total)
}
