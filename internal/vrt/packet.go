package vrt

import (
	"encoding/binary"
	"fmt"
	"math"
)

// MaxPacketWords is the largest size the 16-bit header size field can express.
const MaxPacketWords = 0xFFFF

// Packet is a decoded VRT packet. Values returned by Decode are never
// modified by this package and must be treated as read-only by callers.
type Packet struct {
	Header   Header
	StreamID uint32 // valid iff Header.HasStreamID()
	ClassID  uint64 // valid iff Header.HasClassID
	Trailer  uint32 // raw trailer word, valid iff Header.HasTrailer

	payload []uint32
}

// Decode parses a single VRT packet from a datagram in network byte order.
// The buffer must hold exactly the number of words announced by the header.
func Decode(buf []byte) (*Packet, error) {
	h, err := ParseHeader(buf)
	if err != nil {
		return nil, err
	}

	// Every later offset is derived from the declared size, so check it first.
	if len(buf) != int(h.Size)*4 {
		return nil, fmt.Errorf("%w: header declares %d words (%d bytes), buffer has %d bytes",
			ErrSizeMismatch, h.Size, int(h.Size)*4, len(buf))
	}

	words := int(h.Size)
	idx := 1
	pkt := &Packet{Header: h}

	if h.HasStreamID() {
		if idx+1 > words {
			return nil, fmt.Errorf("%w: no room for stream ID in %d words", ErrTruncatedBuffer, words)
		}
		pkt.StreamID = wordAt(buf, idx)
		idx++
	}

	if h.HasClassID {
		if idx+2 > words {
			return nil, fmt.Errorf("%w: no room for class ID in %d words", ErrTruncatedBuffer, words)
		}
		pkt.ClassID = uint64(wordAt(buf, idx))<<32 | uint64(wordAt(buf, idx+1))
		idx += 2
	}

	end := words
	if h.HasTrailer {
		if idx+1 > words {
			return nil, fmt.Errorf("%w: no room for trailer in %d words", ErrTruncatedBuffer, words)
		}
		end--
		pkt.Trailer = wordAt(buf, end)
	}

	pkt.payload = make([]uint32, end-idx)
	for i := range pkt.payload {
		pkt.payload[i] = wordAt(buf, idx+i)
	}

	return pkt, nil
}

func wordAt(buf []byte, word int) uint32 {
	return binary.BigEndian.Uint32(buf[word*4:])
}

// NewPacket assembles a packet from its parts. The header size is derived
// from the parts; whatever Size the caller passed is ignored.
func NewPacket(h Header, streamID uint32, classID uint64, payload []uint32, trailer uint32) *Packet {
	p := &Packet{
		Header:   h,
		StreamID: streamID,
		ClassID:  classID,
		Trailer:  trailer,
		payload:  append([]uint32(nil), payload...),
	}
	p.Header.Size = uint16(p.sizeWords())
	return p
}

func (p *Packet) sizeWords() int {
	n := p.Header.prefixWords() + len(p.payload)
	if p.Header.HasTrailer {
		n++
	}
	return n
}

// Encode serializes a packet to its wire form, recomputing the header size.
func Encode(p *Packet) ([]byte, error) {
	words := p.sizeWords()
	if words > MaxPacketWords {
		return nil, fmt.Errorf("packet needs %d words, maximum is %d", words, MaxPacketWords)
	}

	h := p.Header
	h.Size = uint16(words)

	b := make([]byte, words*4)
	binary.BigEndian.PutUint32(b, h.Word())
	idx := 1
	if h.HasStreamID() {
		binary.BigEndian.PutUint32(b[idx*4:], p.StreamID)
		idx++
	}
	if h.HasClassID {
		binary.BigEndian.PutUint32(b[idx*4:], uint32(p.ClassID>>32))
		binary.BigEndian.PutUint32(b[(idx+1)*4:], uint32(p.ClassID))
		idx += 2
	}
	for _, w := range p.payload {
		binary.BigEndian.PutUint32(b[idx*4:], w)
		idx++
	}
	if h.HasTrailer {
		binary.BigEndian.PutUint32(b[idx*4:], p.Trailer)
	}
	return b, nil
}

// PayloadSize returns the number of payload words.
func (p *Packet) PayloadSize() int {
	return len(p.payload)
}

// Payload returns a copy of the payload words.
func (p *Packet) Payload() []uint32 {
	return append([]uint32(nil), p.payload...)
}

// PayloadWord returns payload word i.
func (p *Packet) PayloadWord(i int) (uint32, error) {
	if i < 0 || i >= len(p.payload) {
		return 0, fmt.Errorf("%w: word %d of %d", ErrIndexOutOfRange, i, len(p.payload))
	}
	return p.payload[i], nil
}

// PayloadDouble reads words i and i+1 as the high and low halves of a
// big-endian IEEE-754 double.
func (p *Packet) PayloadDouble(i int) (float64, error) {
	if i < 0 || i+1 >= len(p.payload) {
		return 0, fmt.Errorf("%w: double at word %d of %d", ErrIndexOutOfRange, i, len(p.payload))
	}
	return math.Float64frombits(uint64(p.payload[i])<<32 | uint64(p.payload[i+1])), nil
}

// ClassOUI returns the 24-bit OUI carried in the low bits of the first class ID word.
func (p *Packet) ClassOUI() uint32 {
	return uint32(p.ClassID>>32) & 0xFFFFFF
}

// ClassCode returns the second class ID word (information and packet class codes).
func (p *Packet) ClassCode() uint32 {
	return uint32(p.ClassID)
}

// CIF decodes the context indicator fields of an IF context packet.
// It returns nil, nil for every other packet type.
func (p *Packet) CIF() (*CIFFields, error) {
	if p.Header.Type != TypeIFContext {
		return nil, nil
	}
	return DecodeCIF(p.payload)
}

// PacketOption customizes packets built by NewContextPacket.
type PacketOption func(*Packet)

// WithClassID attaches a class ID built from an OUI and a class code word.
func WithClassID(oui, code uint32) PacketOption {
	return func(p *Packet) {
		p.Header.HasClassID = true
		p.ClassID = uint64(oui&0xFFFFFF)<<32 | uint64(code)
	}
}

// WithCount sets the 4-bit packet counter.
func WithCount(count uint8) PacketOption {
	return func(p *Packet) {
		p.Header.Count = count & 0xF
	}
}

// WithTrailer appends a raw trailer word.
func WithTrailer(trailer uint32) PacketOption {
	return func(p *Packet) {
		p.Header.HasTrailer = true
		p.Trailer = trailer
	}
}

// NewContextPacket builds an IF context packet whose payload carries the
// given CIF0 field values, keyed by indicator bit.
func NewContextPacket(streamID uint32, values map[int]any, opts ...PacketOption) (*Packet, error) {
	payload, err := EncodeCIF(values)
	if err != nil {
		return nil, err
	}
	p := &Packet{
		Header:   Header{Type: TypeIFContext},
		StreamID: streamID,
		payload:  payload,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.Header.Size = uint16(p.sizeWords())
	return p, nil
}
