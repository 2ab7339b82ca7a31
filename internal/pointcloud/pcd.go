package pointcloud

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// pcdHeader holds the subset of a PCD v0.7 header needed to locate the
// x/y/z fields inside each point record.
type pcdHeader struct {
	fields []string
	sizes  []int
	types  []string
	counts []int
	points int
	data   string // "ascii" or "binary"
}

func (h *pcdHeader) fieldOffset(name string) (offset, size int, ok bool) {
	off := 0
	for i, f := range h.fields {
		if f == name {
			return off, h.sizes[i], true
		}
		off += h.sizes[i] * h.counts[i]
	}
	return 0, 0, false
}

func (h *pcdHeader) fieldType(name string) string {
	for i, f := range h.fields {
		if f == name && i < len(h.types) {
			return strings.ToUpper(h.types[i])
		}
	}
	return ""
}

func (h *pcdHeader) recordSize() int {
	total := 0
	for i := range h.fields {
		total += h.sizes[i] * h.counts[i]
	}
	return total
}

// pcdDecoder reads PCD v0.7 files with ascii or binary (little-endian) data
// sections. Only the x, y and z fields are extracted; extra fields such as
// intensity or rgb are skipped using the declared sizes.
type pcdDecoder struct{}

func (pcdDecoder) Decode(r io.Reader) (*Cloud, error) {
	br := bufio.NewReader(r)
	h, err := parsePCDHeader(br)
	if err != nil {
		return nil, err
	}

	switch h.data {
	case "ascii":
		return decodePCDAscii(br, h)
	case "binary":
		return decodePCDBinary(br, h)
	default:
		return nil, fmt.Errorf("unsupported PCD data mode %q (want ascii or binary)", h.data)
	}
}

func parsePCDHeader(br *bufio.Reader) (*pcdHeader, error) {
	h := &pcdHeader{points: -1}
	for {
		line, err := br.ReadString('\n')
		if err != nil {
			return nil, fmt.Errorf("read PCD header: %w", err)
		}
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Fields(line)
		key := strings.ToUpper(parts[0])
		args := parts[1:]

		switch key {
		case "FIELDS":
			h.fields = make([]string, len(args))
			for i, a := range args {
				h.fields[i] = strings.ToLower(a)
			}
			// COUNT is optional; default 1 per field.
			h.counts = make([]int, len(args))
			for i := range h.counts {
				h.counts[i] = 1
			}
		case "SIZE":
			h.sizes = make([]int, len(args))
			for i, a := range args {
				v, err := strconv.Atoi(a)
				if err != nil {
					return nil, fmt.Errorf("bad SIZE entry %q", a)
				}
				h.sizes[i] = v
			}
		case "TYPE":
			h.types = args
		case "COUNT":
			h.counts = make([]int, len(args))
			for i, a := range args {
				v, err := strconv.Atoi(a)
				if err != nil {
					return nil, fmt.Errorf("bad COUNT entry %q", a)
				}
				h.counts[i] = v
			}
		case "POINTS":
			if len(args) == 0 {
				return nil, fmt.Errorf("malformed POINTS line %q", line)
			}
			v, err := strconv.Atoi(args[0])
			if err != nil {
				return nil, fmt.Errorf("bad POINTS value %q", args[0])
			}
			h.points = v
		case "DATA":
			if len(args) != 1 {
				return nil, fmt.Errorf("malformed DATA line %q", line)
			}
			h.data = strings.ToLower(args[0])
			// DATA is the last header line; validate and return.
			if len(h.fields) == 0 || len(h.sizes) != len(h.fields) {
				return nil, fmt.Errorf("incomplete PCD header (FIELDS/SIZE mismatch)")
			}
			if h.points < 0 {
				return nil, fmt.Errorf("PCD header missing POINTS")
			}
			for _, want := range []string{"x", "y", "z"} {
				if _, _, ok := h.fieldOffset(want); !ok {
					return nil, fmt.Errorf("PCD file has no %q field", want)
				}
			}
			return h, nil
		case "VERSION", "WIDTH", "HEIGHT", "VIEWPOINT":
			// Not needed: POINTS carries the total count.
		default:
			return nil, fmt.Errorf("unknown PCD header key %q", key)
		}
	}
}

func decodePCDAscii(br *bufio.Reader, h *pcdHeader) (*Cloud, error) {
	// Column indices of x/y/z within the whitespace-separated record,
	// accounting for multi-count fields.
	col := map[string]int{}
	idx := 0
	for i, f := range h.fields {
		if f == "x" || f == "y" || f == "z" {
			col[f] = idx
		}
		idx += h.counts[i]
	}

	cloud := NewCloud(0)
	sc := bufio.NewScanner(br)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		var xyz [3]float32
		for i, name := range []string{"x", "y", "z"} {
			ci := col[name]
			if ci >= len(fields) {
				return nil, fmt.Errorf("point %d: too few columns (%d)", cloud.Len(), len(fields))
			}
			v, err := strconv.ParseFloat(fields[ci], 32)
			if err != nil {
				return nil, fmt.Errorf("point %d: bad %s value %q", cloud.Len(), name, fields[ci])
			}
			xyz[i] = float32(v)
		}
		cloud.Append(xyz[0], xyz[1], xyz[2])
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read PCD data: %w", err)
	}
	if cloud.Len() != h.points {
		return nil, fmt.Errorf("PCD declared %d points, found %d", h.points, cloud.Len())
	}
	return cloud, nil
}

func decodePCDBinary(br *bufio.Reader, h *pcdHeader) (*Cloud, error) {
	rec := h.recordSize()
	xOff, xSize, _ := h.fieldOffset("x")
	yOff, ySize, _ := h.fieldOffset("y")
	zOff, zSize, _ := h.fieldOffset("z")
	if xSize != 4 || ySize != 4 || zSize != 4 {
		return nil, fmt.Errorf("binary PCD x/y/z must be 4-byte floats")
	}
	for _, name := range []string{"x", "y", "z"} {
		if ft := h.fieldType(name); ft != "F" {
			return nil, fmt.Errorf("binary PCD %s field has TYPE %q, want F", name, ft)
		}
	}

	buf := make([]byte, rec)
	cloud := NewCloud(h.points)
	for i := 0; i < h.points; i++ {
		if _, err := io.ReadFull(br, buf); err != nil {
			return nil, fmt.Errorf("point %d: %w", i, err)
		}
		x := math.Float32frombits(binary.LittleEndian.Uint32(buf[xOff:]))
		y := math.Float32frombits(binary.LittleEndian.Uint32(buf[yOff:]))
		z := math.Float32frombits(binary.LittleEndian.Uint32(buf[zOff:]))
		cloud.Set(i, x, y, z)
	}
	return cloud, nil
}

// pcdEncoder writes PCD v0.7 binary little-endian files with x/y/z fields
// only, one 12-byte record per point.
type pcdEncoder struct{}

func (pcdEncoder) Encode(w io.Writer, c *Cloud) error {
	bw := bufio.NewWriter(w)
	n := c.Len()
	fmt.Fprintf(bw, "# .PCD v0.7 - Point Cloud Data file format\n")
	fmt.Fprintf(bw, "VERSION 0.7\n")
	fmt.Fprintf(bw, "FIELDS x y z\n")
	fmt.Fprintf(bw, "SIZE 4 4 4\n")
	fmt.Fprintf(bw, "TYPE F F F\n")
	fmt.Fprintf(bw, "COUNT 1 1 1\n")
	fmt.Fprintf(bw, "WIDTH %d\n", n)
	fmt.Fprintf(bw, "HEIGHT 1\n")
	fmt.Fprintf(bw, "VIEWPOINT 0 0 0 1 0 0 0\n")
	fmt.Fprintf(bw, "POINTS %d\n", n)
	fmt.Fprintf(bw, "DATA binary\n")

	var rec [12]byte
	for i := 0; i < n; i++ {
		x, y, z := c.At(i)
		binary.LittleEndian.PutUint32(rec[0:], math.Float32bits(x))
		binary.LittleEndian.PutUint32(rec[4:], math.Float32bits(y))
		binary.LittleEndian.PutUint32(rec[8:], math.Float32bits(z))
		if _, err := bw.Write(rec[:]); err != nil {
			return err
		}
	}
	return bw.Flush()
}
