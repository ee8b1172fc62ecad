package mapping

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

const fieldCount = 7

var (
	truthy = map[string]bool{"1": true, "true": true, "t": true, "yes": true, "y": true, "none": true, "": true}
	falsy  = map[string]bool{"0": true, "false": true, "f": true, "no": true, "n": true}
)

// ParseFile opens and parses a mapping file.
func ParseFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open mapping file %s: %w", path, err)
	}
	defer f.Close()

	return Parse(f)
}

// Parse reads a mapping source line by line. Data lines have the form
//
//	stream_id,cif0_bit,device,attr_type,channel,is_output,attr_name
//
// Blank lines and lines starting with '#' are ignored. A malformed line is
// recorded as a SyntaxError and skipped; parsing always covers the whole
// source. The returned error is only ever a read error from r.
func Parse(r io.Reader) (*File, error) {
	file := &File{}
	br := bufio.NewReader(r)
	lineNum := 0

	for {
		// ReadString has no line length limit
		raw, err := br.ReadString('\n')
		if err != nil && err != io.EOF {
			return nil, fmt.Errorf("failed to read mapping source: %w", err)
		}
		if raw == "" && err == io.EOF {
			break
		}
		lineNum++

		line := strings.TrimSpace(raw)
		if line != "" && !strings.HasPrefix(line, "#") {
			rec, serr := parseLine(line, lineNum)
			if serr != nil {
				file.Errors = append(file.Errors, serr)
			} else {
				file.Records = append(file.Records, rec)
			}
		}
		if err == io.EOF {
			break
		}
	}

	return file, nil
}

func parseLine(line string, lineNum int) (Record, *SyntaxError) {
	parts := strings.Split(line, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	if len(parts) != fieldCount {
		return Record{}, &SyntaxError{
			Line:  lineNum,
			Field: "line",
			Value: line,
			Err:   fmt.Errorf("%w: expected %d comma-separated fields, got %d", ErrFieldCountMismatch, fieldCount, len(parts)),
		}
	}

	streamID, err := parseStreamID(parts[0])
	if err != nil {
		return Record{}, &SyntaxError{Line: lineNum, Field: "stream_id", Value: parts[0], Err: err}
	}

	bit, err := parseCIF0Bit(parts[1])
	if err != nil {
		return Record{}, &SyntaxError{Line: lineNum, Field: "cif0_bit", Value: parts[1], Err: err}
	}

	attrType, err := ParseAttrType(parts[3])
	if err != nil {
		return Record{}, &SyntaxError{Line: lineNum, Field: "attr_type", Value: parts[3], Err: err}
	}

	isOutput, err := parseBool(parts[5])
	if err != nil {
		return Record{}, &SyntaxError{Line: lineNum, Field: "is_output", Value: parts[5], Err: err}
	}

	return Record{
		Line:        lineNum,
		StreamID:    streamID,
		CIF0Bit:     bit,
		DeviceName:  parts[2],
		AttrType:    attrType,
		ChannelName: parts[4],
		IsOutput:    isOutput,
		AttrName:    parts[6],
	}, nil
}

// parseStreamID accepts decimal or 0x-prefixed hex.
func parseStreamID(s string) (uint32, error) {
	base := 10
	digits := s
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		base = 16
		digits = s[2:]
	}
	v, err := strconv.ParseUint(digits, base, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %q (must be a 32-bit decimal or 0x hex integer)", ErrBadStreamID, s)
	}
	return uint32(v), nil
}

func parseCIF0Bit(s string) (int, error) {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrBadCIF0Bit, s)
	}
	if v < 0 || v > 31 {
		return 0, fmt.Errorf("%w: %d out of range (0-31)", ErrBadCIF0Bit, v)
	}
	return v, nil
}

// parseBool keeps the legacy token sets: "none" and the empty string are true.
func parseBool(s string) (bool, error) {
	lower := strings.ToLower(s)
	if truthy[lower] {
		return true, nil
	}
	if falsy[lower] {
		return false, nil
	}
	return false, fmt.Errorf("%w: %q (use true or false)", ErrBadBoolean, s)
}
