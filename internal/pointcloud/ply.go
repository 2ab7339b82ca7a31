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

// plyProperty is one declared property of the vertex element.
type plyProperty struct {
	name string
	size int  // bytes per scalar
	fl   bool // float or double (vs integer)
}

var plyScalarSizes = map[string]int{
	"char": 1, "int8": 1, "uchar": 1, "uint8": 1,
	"short": 2, "int16": 2, "ushort": 2, "uint16": 2,
	"int": 4, "int32": 4, "uint": 4, "uint32": 4,
	"float": 4, "float32": 4,
	"double": 8, "float64": 8,
}

// plyDecoder reads PLY files in ascii or binary_little_endian form. Only the
// "vertex" element's x/y/z properties are used; other vertex properties are
// skipped, and elements after vertex (faces etc.) are ignored entirely.
type plyDecoder struct{}

func (plyDecoder) Decode(r io.Reader) (*Cloud, error) {
	br := bufio.NewReader(r)

	magic, err := br.ReadString('\n')
	if err != nil {
		return nil, fmt.Errorf("read PLY magic: %w", err)
	}
	if strings.TrimSpace(magic) != "ply" {
		return nil, fmt.Errorf("not a PLY file (magic %q)", strings.TrimSpace(magic))
	}

	var (
		format      string
		vertexCount = -1
		props       []plyProperty
		inVertex    bool
	)
headerLoop:
	for {
		line, err := br.ReadString('\n')
		if err != nil {
			return nil, fmt.Errorf("read PLY header: %w", err)
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "comment", "obj_info":
		case "format":
			if len(fields) < 2 {
				return nil, fmt.Errorf("malformed format line %q", strings.TrimSpace(line))
			}
			format = fields[1]
		case "element":
			if len(fields) < 3 {
				return nil, fmt.Errorf("malformed element line %q", strings.TrimSpace(line))
			}
			inVertex = fields[1] == "vertex"
			if inVertex {
				n, err := strconv.Atoi(fields[2])
				if err != nil {
					return nil, fmt.Errorf("bad vertex count %q", fields[2])
				}
				vertexCount = n
			}
		case "property":
			if !inVertex || len(fields) < 3 {
				continue
			}
			if fields[1] == "list" {
				return nil, fmt.Errorf("list property %q on vertex element is unsupported", fields[len(fields)-1])
			}
			size, ok := plyScalarSizes[fields[1]]
			if !ok {
				return nil, fmt.Errorf("unknown PLY scalar type %q", fields[1])
			}
			props = append(props, plyProperty{
				name: fields[2],
				size: size,
				fl:   strings.HasPrefix(fields[1], "float") || strings.HasPrefix(fields[1], "double"),
			})
		case "end_header":
			break headerLoop
		}
	}

	if vertexCount < 0 {
		return nil, fmt.Errorf("PLY file has no vertex element")
	}
	idx := map[string]int{}
	for i, p := range props {
		idx[p.name] = i
	}
	for _, want := range []string{"x", "y", "z"} {
		if _, ok := idx[want]; !ok {
			return nil, fmt.Errorf("PLY vertex element has no %q property", want)
		}
	}

	switch format {
	case "ascii":
		return decodePLYAscii(br, vertexCount, idx)
	case "binary_little_endian":
		return decodePLYBinary(br, vertexCount, props, idx)
	default:
		return nil, fmt.Errorf("unsupported PLY format %q", format)
	}
}

func decodePLYAscii(br *bufio.Reader, count int, idx map[string]int) (*Cloud, error) {
	cloud := NewCloud(count)
	sc := bufio.NewScanner(br)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for i := 0; i < count; i++ {
		if !sc.Scan() {
			if err := sc.Err(); err != nil {
				return nil, fmt.Errorf("vertex %d: %w", i, err)
			}
			return nil, fmt.Errorf("vertex %d: unexpected end of file", i)
		}
		fields := strings.Fields(sc.Text())
		var xyz [3]float32
		for j, name := range []string{"x", "y", "z"} {
			ci := idx[name]
			if ci >= len(fields) {
				return nil, fmt.Errorf("vertex %d: too few values", i)
			}
			v, err := strconv.ParseFloat(fields[ci], 32)
			if err != nil {
				return nil, fmt.Errorf("vertex %d: bad %s value %q", i, name, fields[ci])
			}
			xyz[j] = float32(v)
		}
		cloud.Set(i, xyz[0], xyz[1], xyz[2])
	}
	return cloud, nil
}

func decodePLYBinary(br *bufio.Reader, count int, props []plyProperty, idx map[string]int) (*Cloud, error) {
	recSize := 0
	offsets := make([]int, len(props))
	for i, p := range props {
		offsets[i] = recSize
		recSize += p.size
	}
	readScalar := func(buf []byte, p plyProperty, off int) (float64, error) {
		switch {
		case p.fl && p.size == 4:
			return float64(math.Float32frombits(binary.LittleEndian.Uint32(buf[off:]))), nil
		case p.fl && p.size == 8:
			return math.Float64frombits(binary.LittleEndian.Uint64(buf[off:])), nil
		default:
			return 0, fmt.Errorf("coordinate property %q is not floating point", p.name)
		}
	}

	cloud := NewCloud(count)
	buf := make([]byte, recSize)
	for i := 0; i < count; i++ {
		if _, err := io.ReadFull(br, buf); err != nil {
			return nil, fmt.Errorf("vertex %d: %w", i, err)
		}
		var xyz [3]float32
		for j, name := range []string{"x", "y", "z"} {
			pi := idx[name]
			v, err := readScalar(buf, props[pi], offsets[pi])
			if err != nil {
				return nil, fmt.Errorf("vertex %d: %v", i, err)
			}
			xyz[j] = float32(v)
		}
		cloud.Set(i, xyz[0], xyz[1], xyz[2])
	}
	return cloud, nil
}

// plyEncoder writes ascii PLY with float x/y/z vertex properties.
type plyEncoder struct{}

func (plyEncoder) Encode(w io.Writer, c *Cloud) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "ply\n")
	fmt.Fprintf(bw, "format ascii 1.0\n")
	fmt.Fprintf(bw, "element vertex %d\n", c.Len())
	fmt.Fprintf(bw, "property float x\n")
	fmt.Fprintf(bw, "property float y\n")
	fmt.Fprintf(bw, "property float z\n")
	fmt.Fprintf(bw, "end_header\n")
	for i := 0; i < c.Len(); i++ {
		x, y, z := c.At(i)
		fmt.Fprintf(bw, "%g %g %g\n", x, y, z)
	}
	return bw.Flush()
}
