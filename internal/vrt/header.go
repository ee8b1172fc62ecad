package vrt

import (
	"encoding/binary"
	"fmt"
)

// PacketType is the 4-bit VRT packet type from the header.
type PacketType uint8

const (
	TypeIFDataNoStreamID    PacketType = 0x0
	TypeIFDataWithStreamID  PacketType = 0x1
	TypeExtDataNoStreamID   PacketType = 0x2
	TypeExtDataWithStreamID PacketType = 0x3
	TypeIFContext           PacketType = 0x4
	TypeExtContext          PacketType = 0x5
	TypeCommand             PacketType = 0x6
	TypeExtCommand          PacketType = 0x7
)

// String returns a human-readable name for a VRT packet type.
func (t PacketType) String() string {
	switch t {
	case TypeIFDataNoStreamID:
		return "IFDataNoStreamID"
	case TypeIFDataWithStreamID:
		return "IFDataWithStreamID"
	case TypeExtDataNoStreamID:
		return "ExtDataNoStreamID"
	case TypeExtDataWithStreamID:
		return "ExtDataWithStreamID"
	case TypeIFContext:
		return "IFContext"
	case TypeExtContext:
		return "ExtContext"
	case TypeCommand:
		return "Command"
	case TypeExtCommand:
		return "ExtCommand"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(t))
	}
}

// IsContext returns true for IF and extension context packets.
func (t PacketType) IsContext() bool {
	return t == TypeIFContext || t == TypeExtContext
}

// Header is the fixed first word of every VRT packet.
type Header struct {
	Type       PacketType
	HasClassID bool
	HasTrailer bool
	Reserved   uint8 // 2 bits, carried as-is
	TSI        uint8 // timestamp-integer code, not interpreted
	TSF        uint8 // timestamp-fractional code, not interpreted
	Count      uint8 // 4-bit modulo-16 packet counter
	Size       uint16
}

// HasStreamID reports whether the packet type carries a Stream ID word.
func (h Header) HasStreamID() bool {
	switch h.Type {
	case TypeIFDataWithStreamID, TypeExtDataWithStreamID, TypeIFContext, TypeExtContext:
		return true
	default:
		return false
	}
}

// prefixWords is the number of words before the payload.
func (h Header) prefixWords() int {
	n := 1
	if h.HasStreamID() {
		n++
	}
	if h.HasClassID {
		n += 2
	}
	return n
}

// Word packs the header into its wire representation.
func (h Header) Word() uint32 {
	w := uint32(h.Type&0xF) << 28
	if h.HasClassID {
		w |= 1 << 27
	}
	if h.HasTrailer {
		w |= 1 << 26
	}
	w |= uint32(h.Reserved&0x3) << 24
	w |= uint32(h.TSI&0x3) << 22
	w |= uint32(h.TSF&0x3) << 20
	w |= uint32(h.Count&0xF) << 16
	w |= uint32(h.Size)
	return w
}

// HeaderFromWord unpacks a header word.
func HeaderFromWord(w uint32) Header {
	return Header{
		Type:       PacketType(w >> 28),
		HasClassID: w&(1<<27) != 0,
		HasTrailer: w&(1<<26) != 0,
		Reserved:   uint8(w>>24) & 0x3,
		TSI:        uint8(w>>22) & 0x3,
		TSF:        uint8(w>>20) & 0x3,
		Count:      uint8(w>>16) & 0xF,
		Size:       uint16(w),
	}
}

// ParseHeader decodes the header word at the start of buf.
func ParseHeader(buf []byte) (Header, error) {
	if len(buf) < 4 {
		return Header{}, fmt.Errorf("%w: need 4 bytes, got %d", ErrMalformedHeader, len(buf))
	}
	return HeaderFromWord(binary.BigEndian.Uint32(buf)), nil
}
