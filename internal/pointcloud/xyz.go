package pointcloud

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// xyzDecoder reads whitespace-separated ASCII coordinates: one point per
// line, X Y Z first, extra columns (intensity etc.) ignored. Lines starting
// with '#' or "//" are comments. This is the CloudCompare .asc convention and
// doubles as the fallback decoder for unknown extensions.
type xyzDecoder struct{}

func (xyzDecoder) Decode(r io.Reader) (*Cloud, error) {
	cloud := NewCloud(0)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "//") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 3 {
			return nil, fmt.Errorf("line %d: expected at least 3 columns, got %d", lineNo, len(fields))
		}
		var xyz [3]float32
		for i := 0; i < 3; i++ {
			v, err := strconv.ParseFloat(fields[i], 32)
			if err != nil {
				return nil, fmt.Errorf("line %d: bad coordinate %q: %v", lineNo, fields[i], err)
			}
			xyz[i] = float32(v)
		}
		cloud.Append(xyz[0], xyz[1], xyz[2])
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read ascii point file: %w", err)
	}
	return cloud, nil
}

// xyzEncoder writes one "X Y Z" line per point with a short comment header,
// CloudCompare-compatible.
type xyzEncoder struct{}

func (xyzEncoder) Encode(w io.Writer, c *Cloud) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "# Exported points\n")
	fmt.Fprintf(bw, "# Format: X Y Z\n")
	for i := 0; i < c.Len(); i++ {
		x, y, z := c.At(i)
		fmt.Fprintf(bw, "%.6f %.6f %.6f\n", x, y, z)
	}
	return bw.Flush()
}
