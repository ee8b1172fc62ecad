package mapping

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_ValidLine(t *testing.T) {
	f, err := Parse(strings.NewReader("0x12345678,21,ad9361-phy,channel,voltage0,true,sampling_frequency\n"))
	require.NoError(t, err)
	require.Equal(t, 0, f.ErrorCount())
	require.Len(t, f.Records, 1)

	want := Record{
		Line:        1,
		StreamID:    0x12345678,
		CIF0Bit:     21,
		DeviceName:  "ad9361-phy",
		AttrType:    AttrChannel,
		ChannelName: "voltage0",
		IsOutput:    true,
		AttrName:    "sampling_frequency",
	}
	if diff := cmp.Diff(want, f.Records[0]); diff != "" {
		t.Errorf("record mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "ad9361-phy/[channel]voltage0/sampling_frequency", f.Records[0].Target())
}

func TestParse_CommentsBlanksAndWhitespace(t *testing.T) {
	src := `
    # Map Stream 0x12345678, CIF0 Bit 21 to ad9361-phy sampling_frequency
    0x12345678,21,ad9361-phy,channel,voltage0,true,sampling_frequency
    # Comment line
    0x00000001, 5, device2, device, none, none, sample_rate
    `
	f, err := Parse(strings.NewReader(src))
	require.NoError(t, err)
	assert.Equal(t, 0, f.ErrorCount())
	require.Len(t, f.Records, 2)

	assert.Equal(t, 3, f.Records[0].Line)
	assert.Equal(t, uint32(1), f.Records[1].StreamID)
	assert.Equal(t, 5, f.Records[1].CIF0Bit)
	assert.Equal(t, AttrDevice, f.Records[1].AttrType)
	assert.Equal(t, "none", f.Records[1].ChannelName)
	assert.True(t, f.Records[1].IsOutput)
	assert.Equal(t, 5, f.Records[1].Line)
}

func TestParse_InvalidLines(t *testing.T) {
	src := `
    # Missing fields
    0x12345678,21,ad9361-phy,channel,voltage0,true

    # Invalid bit (out of bounds)
    0x12345678, 35, ad9361-phy, channel, voltage0, true, freq

    # Invalid boolean
    0x12345678, 1, ad9361-phy, channel, voltage0, yes_maybe, freq

    # Invalid attr_type
    0x12345678, 2, ad9361-phy, magical, voltage0, true, freq
    `
	f, err := Parse(strings.NewReader(src))
	require.NoError(t, err)
	assert.Equal(t, 4, f.ErrorCount())
	assert.Empty(t, f.Records)

	assert.ErrorIs(t, f.Errors[0], ErrFieldCountMismatch)
	assert.ErrorIs(t, f.Errors[1], ErrBadCIF0Bit)
	assert.ErrorIs(t, f.Errors[2], ErrBadBoolean)
	assert.ErrorIs(t, f.Errors[3], ErrBadAttrType)

	assert.Equal(t, 3, f.Errors[0].Line)
	assert.Equal(t, "cif0_bit", f.Errors[1].Field)
	assert.Equal(t, "35", f.Errors[1].Value)
	assert.Equal(t, "yes_maybe", f.Errors[2].Value)
	assert.Equal(t, "attr_type", f.Errors[3].Field)
}

func TestParse_FirstFailureWins(t *testing.T) {
	f, err := Parse(strings.NewReader("zzz,99,dev,magical,ch,maybe,attr\n"))
	require.NoError(t, err)
	require.Len(t, f.Errors, 1)
	assert.ErrorIs(t, f.Errors[0], ErrBadStreamID)
	assert.False(t, errors.Is(f.Errors[0], ErrBadCIF0Bit))
}

func TestParse_CIF0BitBoundary(t *testing.T) {
	tests := []struct {
		bit   string
		valid bool
	}{
		{"0", true},
		{"31", true},
		{"32", false},
		{"-1", false},
		{"0x1f", false},
		{"twenty", false},
	}
	for _, tt := range tests {
		t.Run(tt.bit, func(t *testing.T) {
			f, err := Parse(strings.NewReader("1," + tt.bit + ",dev,device,,false,attr"))
			require.NoError(t, err)
			if tt.valid {
				assert.Len(t, f.Records, 1)
				assert.Equal(t, 0, f.ErrorCount())
			} else {
				assert.Empty(t, f.Records)
				require.Equal(t, 1, f.ErrorCount())
				assert.ErrorIs(t, f.Errors[0], ErrBadCIF0Bit)
			}
		})
	}
}

func TestParse_StreamIDForms(t *testing.T) {
	tests := []struct {
		in    string
		want  uint32
		valid bool
	}{
		{"0x12345678", 0x12345678, true},
		{"0XABCDEF01", 0xABCDEF01, true},
		{"305419896", 305419896, true},
		{"0xFFFFFFFF", 0xFFFFFFFF, true},
		{"0x100000000", 0, false},
		{"0x", 0, false},
		{"-1", 0, false},
		{"12ab", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			f, err := Parse(strings.NewReader(tt.in + ",21,dev,device,,true,attr"))
			require.NoError(t, err)
			if tt.valid {
				require.Len(t, f.Records, 1)
				assert.Equal(t, tt.want, f.Records[0].StreamID)
			} else {
				require.Equal(t, 1, f.ErrorCount())
				assert.ErrorIs(t, f.Errors[0], ErrBadStreamID)
			}
		})
	}
}

func TestParse_BooleanTokens(t *testing.T) {
	for _, tok := range []string{"1", "true", "T", "Yes", "y", "NONE", ""} {
		f, err := Parse(strings.NewReader("1,21,dev,channel,ch," + tok + ",attr"))
		require.NoError(t, err)
		require.Len(t, f.Records, 1, "token %q", tok)
		assert.True(t, f.Records[0].IsOutput, "token %q", tok)
	}
	for _, tok := range []string{"0", "FALSE", "f", "no", "N"} {
		f, err := Parse(strings.NewReader("1,21,dev,channel,ch," + tok + ",attr"))
		require.NoError(t, err)
		require.Len(t, f.Records, 1, "token %q", tok)
		assert.False(t, f.Records[0].IsOutput, "token %q", tok)
	}
	for _, tok := range []string{"2", "yes_maybe", "on", "off"} {
		f, err := Parse(strings.NewReader("1,21,dev,channel,ch," + tok + ",attr"))
		require.NoError(t, err)
		require.Equal(t, 1, f.ErrorCount(), "token %q", tok)
		assert.ErrorIs(t, f.Errors[0], ErrBadBoolean)
	}
}

func TestParse_AttrTypeCaseInsensitive(t *testing.T) {
	f, err := Parse(strings.NewReader("1,21,dev,DeBuG,,true,direct_reg_access\n2,22,dev,Device,,true,x"))
	require.NoError(t, err)
	require.Len(t, f.Records, 2)
	assert.Equal(t, AttrDebug, f.Records[0].AttrType)
	assert.Equal(t, AttrDevice, f.Records[1].AttrType)
}

func TestParse_MixedKeepsOrderAndCounts(t *testing.T) {
	src := strings.Join([]string{
		"0x10,29,dev,device,,true,bandwidth",
		"bad line",
		"0x20,21,dev,device,,true,rate",
		"0x30,40,dev,device,,true,rate",
		"0x40,27,dev,channel,altvoltage0,true,frequency",
	}, "\n")
	f, err := Parse(strings.NewReader(src))
	require.NoError(t, err)

	assert.Equal(t, 2, f.ErrorCount())
	require.Len(t, f.Records, 3)
	assert.Equal(t, []int{1, 3, 5}, []int{f.Records[0].Line, f.Records[1].Line, f.Records[2].Line})
	assert.Len(t, f.ForStream(0x20), 1)
	assert.Empty(t, f.ForStream(0x30))
}

func TestParse_Deterministic(t *testing.T) {
	src := "0x1,29,a,device,,true,x\n0x2,21,b,channel,voltage0,false,y\n# c\n3,18,c,debug,,1,z\n"
	f1, err := Parse(strings.NewReader(src))
	require.NoError(t, err)
	f2, err := Parse(strings.NewReader(src))
	require.NoError(t, err)

	if diff := cmp.Diff(f1.Records, f2.Records); diff != "" {
		t.Errorf("parses differ (-first +second):\n%s", diff)
	}
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vrt_mapping.conf")
	require.NoError(t, os.WriteFile(path, []byte("0x12345678,21,ad9361-phy,channel,voltage0,true,sampling_frequency\n"), 0644))

	f, err := ParseFile(path)
	require.NoError(t, err)
	assert.Len(t, f.Records, 1)

	_, err = ParseFile(filepath.Join(t.TempDir(), "missing.conf"))
	assert.Error(t, err)
}

func TestSyntaxError_Message(t *testing.T) {
	f, err := Parse(strings.NewReader("1,2,3"))
	require.NoError(t, err)
	require.Len(t, f.Errors, 1)
	assert.Contains(t, f.Errors[0].Error(), "line 1")
	assert.Contains(t, f.Errors[0].Error(), "expected 7 comma-separated fields, got 3")
}

func TestParse_LongLinesDoNotAbort(t *testing.T) {
	src := strings.Join([]string{
		"0x1,21,dev,device,,true,a",
		"# " + strings.Repeat("x", 70*1024),
		"0x2,21,dev,device,,true," + strings.Repeat("b", 70*1024) + ",extra",
		"0x3,21,dev,device,,true,c",
	}, "\n")

	f, err := Parse(strings.NewReader(src))
	require.NoError(t, err)
	require.Len(t, f.Records, 2)
	assert.Equal(t, 1, f.Records[0].Line)
	assert.Equal(t, 4, f.Records[1].Line)
	require.Equal(t, 1, f.ErrorCount())
	assert.Equal(t, 3, f.Errors[0].Line)
	assert.ErrorIs(t, f.Errors[0], ErrFieldCountMismatch)
}

func TestParse_CRLFAndNoTrailingNewline(t *testing.T) {
	f, err := Parse(strings.NewReader("# header\r\n0x1,21,dev,device,,true,a\r\n0x2,21,dev,device,,false,b"))
	require.NoError(t, err)
	require.Len(t, f.Records, 2)
	assert.Equal(t, "a", f.Records[0].AttrName)
	assert.Equal(t, 3, f.Records[1].Line)
	assert.False(t, f.Records[1].IsOutput)
}

func TestParse_ReadError(t *testing.T) {
	boom := errors.New("boom")
	f, err := Parse(iotest.ErrReader(boom))
	assert.Nil(t, f)
	assert.ErrorIs(t, err, boom)
}
