package vrt

import (
	"fmt"
	"math"
	"sort"
)

// CIF0 indicator bits understood by the decoder.
const (
	BitContextFieldChange         = 31
	BitReferencePointID           = 30
	BitBandwidth                  = 29
	BitIFReferenceFrequency       = 28
	BitRFReferenceFrequency       = 27
	BitRFReferenceFrequencyOffset = 26
	BitIFBandOffset               = 25
	BitReferenceLevel             = 24
	BitGain                       = 23
	BitOverRangeCount             = 22
	BitSampleRate                 = 21
	BitTimestampAdjustment        = 20
	BitTimestampCalibrationTime   = 19
	BitTemperature                = 18
	BitDeviceIdentifier           = 17
	BitStateAndEventIndicators    = 16
	BitDataPacketPayloadFormat    = 15
)

// Gain holds the two gain stages in dB.
type Gain struct {
	Stage1 float64
	Stage2 float64
}

// CalibrationTime is a timestamp calibration time (integer + fractional).
type CalibrationTime struct {
	Integer    uint32
	Fractional uint64
}

// DeviceIdentifier is a manufacturer OUI plus device code.
type DeviceIdentifier struct {
	OUI  uint32
	Code uint16
}

// Indicator describes one CIF0 bit: the field it announces and how many
// payload words that field occupies.
type Indicator struct {
	Bit   int
	Name  string
	Unit  string
	Words int

	decode func(w []uint32) any
	encode func(v any) ([]uint32, bool)
}

var indicatorTable [32]*Indicator

func register(ind Indicator) {
	indicatorTable[ind.Bit] = &ind
}

func init() {
	register(Indicator{Bit: BitContextFieldChange, Name: "context_field_change", Words: 0,
		decode: func([]uint32) any { return true },
		encode: func(v any) ([]uint32, bool) {
			_, ok := v.(bool)
			return nil, ok
		}})
	register(Indicator{Bit: BitReferencePointID, Name: "reference_point_id", Words: 1,
		decode: decodeUint32, encode: encodeUint32})
	register(Indicator{Bit: BitBandwidth, Name: "bandwidth", Unit: "Hz", Words: 2,
		decode: decodeDouble, encode: encodeDouble})
	register(Indicator{Bit: BitIFReferenceFrequency, Name: "if_reference_frequency", Unit: "Hz", Words: 2,
		decode: decodeDouble, encode: encodeDouble})
	register(Indicator{Bit: BitRFReferenceFrequency, Name: "rf_reference_frequency", Unit: "Hz", Words: 2,
		decode: decodeDouble, encode: encodeDouble})
	register(Indicator{Bit: BitRFReferenceFrequencyOffset, Name: "rf_reference_frequency_offset", Unit: "Hz", Words: 2,
		decode: decodeDouble, encode: encodeDouble})
	register(Indicator{Bit: BitIFBandOffset, Name: "if_band_offset", Unit: "Hz", Words: 2,
		decode: decodeDouble, encode: encodeDouble})
	register(Indicator{Bit: BitReferenceLevel, Name: "reference_level", Unit: "dBm", Words: 1,
		decode: func(w []uint32) any { return float64(math.Float32frombits(w[0])) },
		encode: func(v any) ([]uint32, bool) {
			f, ok := toFloat(v)
			return []uint32{math.Float32bits(float32(f))}, ok
		}})
	register(Indicator{Bit: BitGain, Name: "gain", Unit: "dB", Words: 1,
		decode: func(w []uint32) any {
			return Gain{Stage1: float64(int16(w[0] >> 16)), Stage2: float64(int16(w[0]))}
		},
		encode: func(v any) ([]uint32, bool) {
			g, ok := v.(Gain)
			hi := uint32(uint16(int16(g.Stage1)))
			lo := uint32(uint16(int16(g.Stage2)))
			return []uint32{hi<<16 | lo}, ok
		}})
	register(Indicator{Bit: BitOverRangeCount, Name: "over_range_count", Words: 1,
		decode: decodeUint32, encode: encodeUint32})
	register(Indicator{Bit: BitSampleRate, Name: "sample_rate", Unit: "Hz", Words: 2,
		decode: decodeDouble, encode: encodeDouble})
	register(Indicator{Bit: BitTimestampAdjustment, Name: "timestamp_adjustment", Unit: "ps", Words: 2,
		decode: decodeUint64, encode: encodeUint64})
	register(Indicator{Bit: BitTimestampCalibrationTime, Name: "timestamp_calibration_time", Words: 3,
		decode: func(w []uint32) any {
			return CalibrationTime{Integer: w[0], Fractional: uint64(w[1])<<32 | uint64(w[2])}
		},
		encode: func(v any) ([]uint32, bool) {
			c, ok := v.(CalibrationTime)
			return []uint32{c.Integer, uint32(c.Fractional >> 32), uint32(c.Fractional)}, ok
		}})
	register(Indicator{Bit: BitTemperature, Name: "temperature", Unit: "C", Words: 1,
		decode: func(w []uint32) any {
			return float64(int16(w[0]>>16)) + float64(uint16(w[0]))/65536.0
		},
		encode: func(v any) ([]uint32, bool) {
			f, ok := toFloat(v)
			return []uint32{uint32(int32(math.Round(f * 65536.0)))}, ok
		}})
	register(Indicator{Bit: BitDeviceIdentifier, Name: "device_identifier", Words: 2,
		decode: func(w []uint32) any {
			return DeviceIdentifier{OUI: w[0] & 0xFFFFFF, Code: uint16(w[1] >> 16)}
		},
		encode: func(v any) ([]uint32, bool) {
			d, ok := v.(DeviceIdentifier)
			return []uint32{d.OUI & 0xFFFFFF, uint32(d.Code) << 16}, ok
		}})
	register(Indicator{Bit: BitStateAndEventIndicators, Name: "state_and_event_indicators", Words: 1,
		decode: decodeUint32, encode: encodeUint32})
	register(Indicator{Bit: BitDataPacketPayloadFormat, Name: "data_packet_payload_format", Words: 2,
		decode: decodeUint64, encode: encodeUint64})
}

func decodeUint32(w []uint32) any { return w[0] }

func decodeUint64(w []uint32) any { return uint64(w[0])<<32 | uint64(w[1]) }

func decodeDouble(w []uint32) any {
	return math.Float64frombits(uint64(w[0])<<32 | uint64(w[1]))
}

func encodeUint32(v any) ([]uint32, bool) {
	u, ok := v.(uint32)
	return []uint32{u}, ok
}

func encodeUint64(v any) ([]uint32, bool) {
	u, ok := v.(uint64)
	return []uint32{uint32(u >> 32), uint32(u)}, ok
}

func encodeDouble(v any) ([]uint32, bool) {
	f, ok := toFloat(v)
	bits := math.Float64bits(f)
	return []uint32{uint32(bits >> 32), uint32(bits)}, ok
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

// LookupIndicator returns the table entry for a CIF0 bit.
func LookupIndicator(bit int) (Indicator, bool) {
	if bit < 0 || bit > 31 || indicatorTable[bit] == nil {
		return Indicator{}, false
	}
	return *indicatorTable[bit], true
}

// Indicators lists every supported indicator, highest bit first.
func Indicators() []Indicator {
	var out []Indicator
	for bit := 31; bit >= 0; bit-- {
		if ind := indicatorTable[bit]; ind != nil {
			out = append(out, *ind)
		}
	}
	return out
}

// Span locates a field inside a context payload. Offset counts from the
// start of the payload, so the first field after CIF0 is at offset 1.
type Span struct {
	Bit    int
	Offset int
	Words  int
}

// Layout computes where each field announced by cif0 lives in the payload.
func Layout(cif0 uint32) ([]Span, error) {
	var spans []Span
	offset := 1
	for bit := 31; bit >= 0; bit-- {
		if cif0&(1<<uint(bit)) == 0 {
			continue
		}
		ind := indicatorTable[bit]
		if ind == nil {
			return nil, &IndicatorError{Bit: bit, CIF0: cif0}
		}
		spans = append(spans, Span{Bit: bit, Offset: offset, Words: ind.Words})
		offset += ind.Words
	}
	return spans, nil
}

// CIFFields holds the CIF0 word of a context packet and the fields it announces.
type CIFFields struct {
	CIF0 uint32

	values [32]any
}

// Field is one decoded context field.
type Field struct {
	Bit   int
	Name  string
	Unit  string
	Value any
}

// DecodeCIF interprets payload[0] as CIF0 and decodes the fields that follow
// it in descending bit order. A set bit that is not in the indicator table
// fails the whole decode, since every later field would be misaligned.
func DecodeCIF(payload []uint32) (*CIFFields, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("%w: context payload has no CIF0 word", ErrIndexOutOfRange)
	}

	spans, err := Layout(payload[0])
	if err != nil {
		return nil, err
	}

	f := &CIFFields{CIF0: payload[0]}
	for _, s := range spans {
		end := s.Offset + s.Words
		if end > len(payload) {
			return nil, fmt.Errorf("%w: %s (bit %d) needs words %d..%d, payload has %d",
				ErrIndexOutOfRange, indicatorTable[s.Bit].Name, s.Bit, s.Offset, end-1, len(payload))
		}
		f.values[s.Bit] = indicatorTable[s.Bit].decode(payload[s.Offset:end])
	}
	return f, nil
}

// EncodeCIF builds a context payload (CIF0 word followed by fields) from
// values keyed by indicator bit.
func EncodeCIF(values map[int]any) ([]uint32, error) {
	bits := make([]int, 0, len(values))
	for bit := range values {
		bits = append(bits, bit)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(bits)))

	var cif0 uint32
	payload := []uint32{0}
	for _, bit := range bits {
		ind, ok := LookupIndicator(bit)
		if !ok {
			return nil, &IndicatorError{Bit: bit}
		}
		if b, isBool := values[bit].(bool); isBool && !b {
			continue
		}
		words, ok := ind.encode(values[bit])
		if !ok {
			return nil, fmt.Errorf("bit %d (%s): cannot encode value of type %T", bit, ind.Name, values[bit])
		}
		cif0 |= 1 << uint(bit)
		payload = append(payload, words...)
	}
	payload[0] = cif0
	return payload, nil
}

// Has reports whether bit is set in CIF0 and was decoded.
func (f *CIFFields) Has(bit int) bool {
	return bit >= 0 && bit <= 31 && f.values[bit] != nil
}

// Value returns the decoded value for bit.
func (f *CIFFields) Value(bit int) (any, bool) {
	if !f.Has(bit) {
		return nil, false
	}
	return f.values[bit], true
}

// Numeric returns the value for bit when it is a scalar floating-point field
// (frequencies, rates, levels, temperature).
func (f *CIFFields) Numeric(bit int) (float64, bool) {
	v, ok := f.Value(bit)
	if !ok {
		return 0, false
	}
	n, ok := v.(float64)
	return n, ok
}

// Fields returns every decoded field, highest bit first.
func (f *CIFFields) Fields() []Field {
	var out []Field
	for bit := 31; bit >= 0; bit-- {
		if f.values[bit] == nil {
			continue
		}
		ind := indicatorTable[bit]
		out = append(out, Field{Bit: bit, Name: ind.Name, Unit: ind.Unit, Value: f.values[bit]})
	}
	return out
}

func (f *CIFFields) uint32Value(bit int) (uint32, bool) {
	v, ok := f.Value(bit)
	if !ok {
		return 0, false
	}
	return v.(uint32), true
}

func (f *CIFFields) uint64Value(bit int) (uint64, bool) {
	v, ok := f.Value(bit)
	if !ok {
		return 0, false
	}
	return v.(uint64), true
}

func (f *CIFFields) ContextFieldChange() bool { return f.Has(BitContextFieldChange) }

func (f *CIFFields) ReferencePointID() (uint32, bool) { return f.uint32Value(BitReferencePointID) }

func (f *CIFFields) Bandwidth() (float64, bool) { return f.Numeric(BitBandwidth) }

func (f *CIFFields) IFReferenceFrequency() (float64, bool) { return f.Numeric(BitIFReferenceFrequency) }

func (f *CIFFields) RFReferenceFrequency() (float64, bool) { return f.Numeric(BitRFReferenceFrequency) }

func (f *CIFFields) RFReferenceFrequencyOffset() (float64, bool) {
	return f.Numeric(BitRFReferenceFrequencyOffset)
}

func (f *CIFFields) IFBandOffset() (float64, bool) { return f.Numeric(BitIFBandOffset) }

func (f *CIFFields) ReferenceLevel() (float64, bool) { return f.Numeric(BitReferenceLevel) }

func (f *CIFFields) Gain() (Gain, bool) {
	v, ok := f.Value(BitGain)
	if !ok {
		return Gain{}, false
	}
	return v.(Gain), true
}

func (f *CIFFields) OverRangeCount() (uint32, bool) { return f.uint32Value(BitOverRangeCount) }

func (f *CIFFields) SampleRate() (float64, bool) { return f.Numeric(BitSampleRate) }

func (f *CIFFields) TimestampAdjustment() (uint64, bool) {
	return f.uint64Value(BitTimestampAdjustment)
}

func (f *CIFFields) TimestampCalibrationTime() (CalibrationTime, bool) {
	v, ok := f.Value(BitTimestampCalibrationTime)
	if !ok {
		return CalibrationTime{}, false
	}
	return v.(CalibrationTime), true
}

func (f *CIFFields) Temperature() (float64, bool) { return f.Numeric(BitTemperature) }

func (f *CIFFields) DeviceIdentifier() (DeviceIdentifier, bool) {
	v, ok := f.Value(BitDeviceIdentifier)
	if !ok {
		return DeviceIdentifier{}, false
	}
	return v.(DeviceIdentifier), true
}

func (f *CIFFields) StateAndEventIndicators() (uint32, bool) {
	return f.uint32Value(BitStateAndEventIndicators)
}

func (f *CIFFields) DataPacketPayloadFormat() (uint64, bool) {
	return f.uint64Value(BitDataPacketPayloadFormat)
}
