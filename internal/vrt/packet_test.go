package vrt

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func packWords(words ...uint32) []byte {
	b := make([]byte, len(words)*4)
	for i, w := range words {
		binary.BigEndian.PutUint32(b[i*4:], w)
	}
	return b
}

func doubleWords(v float64) (uint32, uint32) {
	bits := math.Float64bits(v)
	return uint32(bits >> 32), uint32(bits)
}

// contextFixture is a 10-word IF context packet carrying bandwidth and sample rate.
func contextFixture() []byte {
	bwHi, bwLo := doubleWords(56e6)
	srHi, srLo := doubleWords(100e6)
	return packWords(
		0x4800000A,
		0xAABBCCDD,
		0x012345, 0x6789ABCD,
		(1<<21)|(1<<29),
		bwHi, bwLo,
		srHi, srLo,
		0,
	)
}

func TestDecode_ContextPacket(t *testing.T) {
	pkt, err := Decode(contextFixture())
	require.NoError(t, err)

	assert.Equal(t, TypeIFContext, pkt.Header.Type)
	assert.Equal(t, uint16(10), pkt.Header.Size)
	assert.True(t, pkt.Header.HasStreamID())
	assert.Equal(t, uint32(0xAABBCCDD), pkt.StreamID)
	assert.True(t, pkt.Header.HasClassID)
	assert.Equal(t, uint64(0x012345)<<32|0x6789ABCD, pkt.ClassID)
	assert.Equal(t, uint32(0x012345), pkt.ClassOUI())
	assert.Equal(t, uint32(0x6789ABCD), pkt.ClassCode())
	assert.False(t, pkt.Header.HasTrailer)
	assert.Equal(t, 6, pkt.PayloadSize())

	w0, err := pkt.PayloadWord(0)
	require.NoError(t, err)
	assert.Equal(t, uint32((1<<21)|(1<<29)), w0)

	bw, err := pkt.PayloadDouble(1)
	require.NoError(t, err)
	assert.Equal(t, 56e6, bw)

	sr, err := pkt.PayloadDouble(3)
	require.NoError(t, err)
	assert.Equal(t, 100e6, sr)

	cif, err := pkt.CIF()
	require.NoError(t, err)
	require.NotNil(t, cif)
	assert.Equal(t, uint32((1<<21)|(1<<29)), cif.CIF0)

	bandwidth, ok := cif.Bandwidth()
	assert.True(t, ok)
	assert.Equal(t, 56e6, bandwidth)

	sampleRate, ok := cif.SampleRate()
	assert.True(t, ok)
	assert.Equal(t, 100e6, sampleRate)

	temp, ok := cif.Temperature()
	assert.False(t, ok)
	assert.Zero(t, temp)
	v, ok := cif.Value(BitTemperature)
	assert.False(t, ok)
	assert.Nil(t, v)
}

func TestDecode_ShortBuffer(t *testing.T) {
	_, err := Decode([]byte{0x48, 0x00})
	assert.ErrorIs(t, err, ErrMalformedHeader)

	_, err = Decode(nil)
	assert.ErrorIs(t, err, ErrMalformedHeader)
}

func TestDecode_SizeMismatch(t *testing.T) {
	buf := contextFixture()

	_, err := Decode(buf[:36])
	assert.ErrorIs(t, err, ErrSizeMismatch)

	_, err = Decode(append(buf, 0, 0, 0, 0))
	assert.ErrorIs(t, err, ErrSizeMismatch)

	// Size field of zero never matches a buffer that holds the header itself.
	_, err = Decode(packWords(0x10000000))
	assert.ErrorIs(t, err, ErrSizeMismatch)
}

func TestDecode_TruncatedIdentifiers(t *testing.T) {
	// Context packet with class ID but only 3 words: room for the stream ID, not the class ID.
	_, err := Decode(packWords(0x48000003, 0x1, 0x2))
	assert.ErrorIs(t, err, ErrTruncatedBuffer)
	assert.NotErrorIs(t, err, ErrSizeMismatch)

	// Type 1 needs a stream ID word.
	_, err = Decode(packWords(0x10000001))
	assert.ErrorIs(t, err, ErrTruncatedBuffer)

	// Trailer flag with no word left for it.
	_, err = Decode(packWords(0x14000002, 0x1))
	assert.ErrorIs(t, err, ErrTruncatedBuffer)
}

func TestDecode_StreamIDPresenceByType(t *testing.T) {
	tests := []struct {
		typ  PacketType
		want bool
	}{
		{TypeIFDataNoStreamID, false},
		{TypeIFDataWithStreamID, true},
		{TypeExtDataNoStreamID, false},
		{TypeExtDataWithStreamID, true},
		{TypeIFContext, true},
		{TypeExtContext, true},
		{TypeCommand, false},
		{PacketType(15), false},
	}
	for _, tt := range tests {
		t.Run(tt.typ.String(), func(t *testing.T) {
			hdr := uint32(tt.typ)<<28 | 3
			pkt, err := Decode(packWords(hdr, 0xCAFEBABE, 0xDEADBEEF))
			require.NoError(t, err)
			assert.Equal(t, tt.want, pkt.Header.HasStreamID())
			if tt.want {
				assert.Equal(t, uint32(0xCAFEBABE), pkt.StreamID)
				assert.Equal(t, 1, pkt.PayloadSize())
			} else {
				assert.Zero(t, pkt.StreamID)
				assert.Equal(t, 2, pkt.PayloadSize())
			}
		})
	}
}

func TestDecode_PayloadSizeInvariant(t *testing.T) {
	for _, typ := range []PacketType{TypeIFDataNoStreamID, TypeIFDataWithStreamID, TypeIFContext} {
		for _, classID := range []bool{false, true} {
			for _, trailer := range []bool{false, true} {
				for size := 1; size <= 8; size++ {
					h := Header{Type: typ, HasClassID: classID, HasTrailer: trailer, Size: uint16(size)}
					words := make([]uint32, size)
					words[0] = h.Word()

					pkt, err := Decode(packWords(words...))

					want := size - 1
					if h.HasStreamID() {
						want--
					}
					if classID {
						want -= 2
					}
					if trailer {
						want--
					}
					if want < 0 {
						assert.ErrorIs(t, err, ErrTruncatedBuffer, "type=%d c=%v t=%v size=%d", typ, classID, trailer, size)
						continue
					}
					require.NoError(t, err)
					assert.Equal(t, want, pkt.PayloadSize())
				}
			}
		}
	}
}

func TestDecode_Trailer(t *testing.T) {
	pkt, err := Decode(packWords(0x14000004, 0x11, 0xAAAA5555, 0x00F00001))
	require.NoError(t, err)
	assert.True(t, pkt.Header.HasTrailer)
	assert.Equal(t, uint32(0x00F00001), pkt.Trailer)
	assert.Equal(t, []uint32{0xAAAA5555}, pkt.Payload())
}

func TestHeader_Fields(t *testing.T) {
	h := HeaderFromWord(0x4DB7000A)
	assert.Equal(t, TypeIFContext, h.Type)
	assert.True(t, h.HasClassID)
	assert.True(t, h.HasTrailer)
	assert.Equal(t, uint8(1), h.Reserved)
	assert.Equal(t, uint8(2), h.TSI)
	assert.Equal(t, uint8(3), h.TSF)
	assert.Equal(t, uint8(7), h.Count)
	assert.Equal(t, uint16(10), h.Size)
	assert.Equal(t, uint32(0x4DB7000A), h.Word())
}

func TestPayloadAccessors_OutOfRange(t *testing.T) {
	pkt, err := Decode(contextFixture())
	require.NoError(t, err)

	_, err = pkt.PayloadWord(6)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
	_, err = pkt.PayloadWord(-1)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)

	_, err = pkt.PayloadDouble(5)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
	_, err = pkt.PayloadDouble(4)
	assert.NoError(t, err)
}

func TestEncode_RoundTrip(t *testing.T) {
	orig := NewPacket(
		Header{Type: TypeIFDataWithStreamID, HasTrailer: true, TSI: 1, TSF: 2, Count: 9, Size: 999},
		0x87654321, 0, []uint32{0xDEADBEEF, 0xCAFEBABE}, 0x80000000,
	)
	assert.Equal(t, uint16(5), orig.Header.Size)

	buf, err := Encode(orig)
	require.NoError(t, err)
	assert.Len(t, buf, 20)

	got, err := Decode(buf)
	require.NoError(t, err)
	assert.Equal(t, orig.Header, got.Header)
	assert.Equal(t, orig.StreamID, got.StreamID)
	assert.Equal(t, orig.Trailer, got.Trailer)
	assert.Equal(t, orig.Payload(), got.Payload())
}

func TestEncode_TooLarge(t *testing.T) {
	p := NewPacket(Header{Type: TypeIFDataNoStreamID}, 0, 0, make([]uint32, MaxPacketWords), 0)
	_, err := Encode(p)
	assert.Error(t, err)
}

func TestPacketType_String(t *testing.T) {
	assert.Equal(t, "IFContext", TypeIFContext.String())
	assert.Equal(t, "Unknown(12)", PacketType(12).String())
	assert.True(t, TypeExtContext.IsContext())
	assert.False(t, TypeCommand.IsContext())
}

func TestDecode_Concurrent(t *testing.T) {
	buf := contextFixture()
	done := make(chan error, 50)
	for i := 0; i < 50; i++ {
		go func() {
			pkt, err := Decode(buf)
			if err == nil {
				_, err = pkt.CIF()
			}
			done <- err
		}()
	}
	for i := 0; i < 50; i++ {
		assert.NoError(t, <-done)
	}
}
