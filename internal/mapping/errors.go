package mapping

import (
	"errors"
	"fmt"
	"strings"
)

// Syntax errors, one per rejected line.
var (
	ErrFieldCountMismatch = errors.New("wrong number of fields")
	ErrBadStreamID        = errors.New("invalid stream_id")
	ErrBadCIF0Bit         = errors.New("invalid cif0_bit")
	ErrBadAttrType        = errors.New("invalid attr_type")
	ErrBadBoolean         = errors.New("invalid is_output flag")
)

// Validation errors, one per unsatisfied record.
var (
	ErrDeviceNotFound           = errors.New("device not found")
	ErrChannelNotFound          = errors.New("channel not found")
	ErrChannelAttributeNotFound = errors.New("channel attribute not found")
	ErrDeviceAttributeNotFound  = errors.New("device attribute not found")
	ErrDebugAttributeNotFound   = errors.New("debug attribute not found")
)

// SyntaxError describes why a mapping line was rejected.
type SyntaxError struct {
	Line  int
	Field string
	Value string
	Err   error
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *SyntaxError) Unwrap() error {
	return e.Err
}

// maxSampleAttrs caps how many available attribute names a diagnostic lists.
const maxSampleAttrs = 5

// ValidationError describes a record that does not resolve against the directory.
type ValidationError struct {
	Line    int
	Device  string
	Channel string
	Attr    string
	Err     error
	// Samples holds up to five attribute names that do exist on the channel.
	Samples []string
	// More is set when the channel has more attributes than Samples lists.
	More bool
}

func (e *ValidationError) Error() string {
	var msg string
	switch {
	case errors.Is(e.Err, ErrDeviceNotFound):
		msg = fmt.Sprintf("device '%s' not found in context", e.Device)
	case errors.Is(e.Err, ErrChannelNotFound):
		msg = fmt.Sprintf("channel '%s' not found on device '%s'", e.Channel, e.Device)
	case errors.Is(e.Err, ErrChannelAttributeNotFound):
		msg = fmt.Sprintf("attribute '%s' not found on channel '%s'", e.Attr, e.Channel)
		if len(e.Samples) > 0 {
			msg += fmt.Sprintf(" (available: %s", strings.Join(e.Samples, ", "))
			if e.More {
				msg += ", ..."
			}
			msg += ")"
		}
	case errors.Is(e.Err, ErrDeviceAttributeNotFound):
		msg = fmt.Sprintf("device attribute '%s' not found on device '%s'", e.Attr, e.Device)
	case errors.Is(e.Err, ErrDebugAttributeNotFound):
		msg = fmt.Sprintf("debug attribute '%s' not found on device '%s'", e.Attr, e.Device)
	default:
		msg = e.Err.Error()
	}
	return fmt.Sprintf("line %d: %s", e.Line, msg)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}
