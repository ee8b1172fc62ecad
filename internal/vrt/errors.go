package vrt

import (
	"errors"
	"fmt"
)

// Decode failures. Any of these aborts decoding of the whole packet.
var (
	ErrMalformedHeader         = errors.New("malformed VRT header")
	ErrSizeMismatch            = errors.New("buffer length does not match header packet size")
	ErrTruncatedBuffer         = errors.New("packet too short for the fields its header announces")
	ErrIndexOutOfRange         = errors.New("payload index out of range")
	ErrUnsupportedIndicatorBit = errors.New("unsupported CIF0 indicator bit")
)

// IndicatorError reports a set CIF0 bit that the decoder cannot account for.
type IndicatorError struct {
	Bit  int
	CIF0 uint32
}

func (e *IndicatorError) Error() string {
	return fmt.Sprintf("%v: bit %d (cif0=0x%08X)", ErrUnsupportedIndicatorBit, e.Bit, e.CIF0)
}

func (e *IndicatorError) Unwrap() error {
	return ErrUnsupportedIndicatorBit
}

// ErrorKind returns a short stable name for a decode error, suitable as a
// counter label. Unknown errors map to "other".
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMalformedHeader):
		return "malformed_header"
	case errors.Is(err, ErrSizeMismatch):
		return "size_mismatch"
	case errors.Is(err, ErrTruncatedBuffer):
		return "truncated_buffer"
	case errors.Is(err, ErrIndexOutOfRange):
		return "index_out_of_range"
	case errors.Is(err, ErrUnsupportedIndicatorBit):
		return "unsupported_indicator_bit"
	default:
		return "other"
	}
}
