package mapping

import (
	"fmt"
	"strings"
)

// AttrType selects which attribute namespace a mapping writes to.
type AttrType int

const (
	AttrChannel AttrType = iota
	AttrDevice
	AttrDebug
)

func (a AttrType) String() string {
	switch a {
	case AttrChannel:
		return "channel"
	case AttrDevice:
		return "device"
	case AttrDebug:
		return "debug"
	default:
		return fmt.Sprintf("AttrType(%d)", int(a))
	}
}

// ParseAttrType matches channel, device or debug case-insensitively.
func ParseAttrType(s string) (AttrType, error) {
	switch strings.ToLower(s) {
	case "channel":
		return AttrChannel, nil
	case "device":
		return AttrDevice, nil
	case "debug":
		return AttrDebug, nil
	default:
		return 0, fmt.Errorf("%w: %q (use channel, device or debug)", ErrBadAttrType, s)
	}
}

// Record maps one CIF0 bit of one VRT stream onto a hardware attribute.
type Record struct {
	Line        int
	StreamID    uint32
	CIF0Bit     int
	DeviceName  string
	AttrType    AttrType
	ChannelName string // only meaningful for AttrChannel
	IsOutput    bool
	AttrName    string
}

// Target renders the attribute path the record resolves to,
// e.g. "ad9361-phy/[channel]voltage0/sampling_frequency".
func (r Record) Target() string {
	return fmt.Sprintf("%s/[%s]%s/%s", r.DeviceName, r.AttrType, r.ChannelName, r.AttrName)
}

// File is the result of parsing a mapping source.
type File struct {
	Records []Record
	Errors  []*SyntaxError
}

// ErrorCount returns the number of rejected lines.
func (f *File) ErrorCount() int {
	return len(f.Errors)
}

// ForStream returns the records for a stream ID, in file order.
func (f *File) ForStream(streamID uint32) []Record {
	var out []Record
	for _, r := range f.Records {
		if r.StreamID == streamID {
			out = append(out, r)
		}
	}
	return out
}
