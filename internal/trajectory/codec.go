package trajectory

import (
	"fmt"
	"strconv"
	"strings"
)

// DefaultPrecision is the fractional digit count for angles on the wire.
// Two digits (0.01°) sits well under the pointing resolution of the device's
// stepper gearing.
const DefaultPrecision = 2

// Codec encodes and decodes the device wire format:
//
//	<epoch>,<az>,<el>|<epoch>,<az>,<el>|...
//
// Epochs are integer Unix seconds; angles are fixed-precision decimals. No
// whitespace, no trailing delimiter.
type Codec struct {
	// Precision is the fractional digit count for angles. Negative values
	// select DefaultPrecision; zero is a valid (whole-degree) width.
	Precision int
}

// FormatError describes malformed wire text.
type FormatError struct {
	Index  int // zero-based sample index within the wire string
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("trajectory wire sample %d: %s", e.Index, e.Reason)
}

func (c Codec) precision() int {
	if c.Precision < 0 {
		return DefaultPrecision
	}
	return c.Precision
}

// Encode renders tr in wire form. Encoding is total: any trajectory, sample
// by sample, in order. An empty trajectory encodes to an empty string.
func (c Codec) Encode(tr Trajectory) string {
	p := c.precision()
	var b strings.Builder
	b.Grow(len(tr) * 24)
	for i, s := range tr {
		if i > 0 {
			b.WriteByte('|')
		}
		fmt.Fprintf(&b, "%d,%.*f,%.*f", s.Epoch, p, s.Azimuth, p, s.Elevation)
	}
	return b.String()
}

// Decode parses wire text back into a Trajectory. Empty input, a group with
// the wrong field count, or a non-numeric field returns a *FormatError.
// Values parsed from text produced by Encode re-encode to the same text.
func (c Codec) Decode(wire string) (Trajectory, error) {
	if wire == "" {
		return nil, &FormatError{Index: 0, Reason: "empty trajectory"}
	}

	groups := strings.Split(wire, "|")
	tr := make(Trajectory, 0, len(groups))
	for i, g := range groups {
		fields := strings.Split(g, ",")
		if len(fields) != 3 {
			return nil, &FormatError{Index: i, Reason: fmt.Sprintf("got %d fields, want 3", len(fields))}
		}
		epoch, err := strconv.ParseInt(fields[0], 10, 64)
		if err != nil {
			return nil, &FormatError{Index: i, Reason: fmt.Sprintf("epoch %q is not an integer", fields[0])}
		}
		az, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, &FormatError{Index: i, Reason: fmt.Sprintf("azimuth %q is not a number", fields[1])}
		}
		el, err := strconv.ParseFloat(fields[2], 64)
		if err != nil {
			return nil, &FormatError{Index: i, Reason: fmt.Sprintf("elevation %q is not a number", fields[2])}
		}
		tr = append(tr, Sample{Epoch: epoch, Azimuth: az, Elevation: el})
	}
	return tr, nil
}
