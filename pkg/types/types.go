package types

import (
	"net"
	"time"
)

// RawDatagram is a UDP payload extracted from a capture file.
type RawDatagram struct {
	Data      []byte
	Timestamp time.Time
	SrcIP     net.IP
	DstIP     net.IP
	SrcPort   uint16
	DstPort   uint16
}

// StreamInfo is the receive-side state of one VRT stream.
type StreamInfo struct {
	StreamID   uint32
	Context    bool   // context packets are counted separately from data
	From       string // last source address
	FirstSeen  time.Time
	LastSeen   time.Time
	Packets    uint64
	Lost       uint64 // packets missing according to the 4-bit packet count
	Duplicates uint64 // packets repeating the previous count
	LastCount  uint8
}
