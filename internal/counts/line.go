package counts

import (
	"fmt"
	"strconv"
	"strings"
)

// AppendValue appends a two-field "seq\tvalue\n" line to dst.
func AppendValue(dst []byte, seq string, v int64) []byte {
	dst = append(dst, seq...)
	dst = append(dst, '\t')
	dst = strconv.AppendInt(dst, v, 10)
	return append(dst, '\n')
}

// AppendCounts appends a five-field continuation line to dst.
func AppendCounts(dst []byte, seq string, c Counts) []byte {
	dst = append(dst, seq...)
	for _, v := range [...]int64{c.OnePlus, c.One, c.Two, c.ThreePlus} {
		dst = append(dst, '\t')
		dst = strconv.AppendInt(dst, v, 10)
	}
	return append(dst, '\n')
}

// ParseLine splits a count line without its trailing newline. Two-field lines
// set only OnePlus. The returned reason is empty on success and names the
// defect otherwise, so callers can build a located error.
func ParseLine(line string) (seq string, c Counts, fields int, reason string) {
	parts := strings.Split(line, "\t")
	fields = len(parts)
	if fields != 2 && fields != 5 {
		return "", Counts{}, fields, fmt.Sprintf("expected 2 or 5 tab-separated fields, got %d", fields)
	}
	seq = parts[0]
	if seq == "" {
		return "", Counts{}, fields, "empty sequence"
	}
	var vals [4]int64
	for i, p := range parts[1:] {
		v, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return "", Counts{}, fields, fmt.Sprintf("field %d is not an integer", i+2)
		}
		if v < 0 {
			return "", Counts{}, fields, fmt.Sprintf("field %d is negative", i+2)
		}
		vals[i] = v
	}
	c = Counts{OnePlus: vals[0], One: vals[1], Two: vals[2], ThreePlus: vals[3]}
	return seq, c, fields, ""
}
