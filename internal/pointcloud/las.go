package pointcloud

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// LAS public header layout constants (all values little-endian).
const (
	lasSignature        = "LASF"
	lasMinHeaderSize    = 227 // LAS 1.0-1.3 public header block
	lasVersionMajorOff  = 24
	lasVersionMinorOff  = 25
	lasHeaderSizeOff    = 94
	lasPointOffsetOff   = 96
	lasPointFormatOff   = 104
	lasRecordLengthOff  = 105
	lasLegacyCountOff   = 107
	lasScaleOff         = 131 // 3 consecutive float64: x, y, z scale
	lasOffsetOff        = 155 // 3 consecutive float64: x, y, z offset
	lasExtendedCountOff = 247 // uint64 point count, LAS 1.4 only
)

// lasDecoder reads LAS 1.2-1.4 files with point record formats 0-3. Every
// record format stores the coordinates as three scaled int32 values at the
// start of the record; the remaining attributes (intensity, returns, GPS
// time, colour) are skipped using the declared record length. Compressed LAZ
// files are rejected.
type lasDecoder struct{}

func (lasDecoder) Decode(r io.Reader) (*Cloud, error) {
	header := make([]byte, lasMinHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("read LAS header: %w", err)
	}
	if string(header[0:4]) != lasSignature {
		return nil, fmt.Errorf("not a LAS file (signature %q)", header[0:4])
	}

	verMajor := header[lasVersionMajorOff]
	verMinor := header[lasVersionMinorOff]
	if verMajor != 1 {
		return nil, fmt.Errorf("unsupported LAS version %d.%d", verMajor, verMinor)
	}

	headerSize := int(binary.LittleEndian.Uint16(header[lasHeaderSizeOff:]))
	pointOffset := int(binary.LittleEndian.Uint32(header[lasPointOffsetOff:]))
	pointFormat := header[lasPointFormatOff]
	recordLength := int(binary.LittleEndian.Uint16(header[lasRecordLengthOff:]))
	count := uint64(binary.LittleEndian.Uint32(header[lasLegacyCountOff:]))

	if pointFormat&0x80 != 0 {
		return nil, fmt.Errorf("compressed LAZ data is unsupported")
	}
	if pointFormat > 3 {
		return nil, fmt.Errorf("unsupported LAS point record format %d (want 0-3)", pointFormat)
	}
	if recordLength < 12 {
		return nil, fmt.Errorf("LAS record length %d too small for xyz", recordLength)
	}
	if headerSize < lasMinHeaderSize || pointOffset < headerSize {
		return nil, fmt.Errorf("malformed LAS header (size %d, point offset %d)", headerSize, pointOffset)
	}

	var scale, offset [3]float64
	for i := 0; i < 3; i++ {
		scale[i] = math.Float64frombits(binary.LittleEndian.Uint64(header[lasScaleOff+8*i:]))
		offset[i] = math.Float64frombits(binary.LittleEndian.Uint64(header[lasOffsetOff+8*i:]))
	}

	// Consume the remainder of the header plus any variable length records
	// up to the point data. For LAS 1.4 the extended point count lives in
	// the extended header block.
	rest := make([]byte, pointOffset-lasMinHeaderSize)
	if _, err := io.ReadFull(r, rest); err != nil {
		return nil, fmt.Errorf("read LAS header extension: %w", err)
	}
	if verMinor >= 4 && count == 0 {
		extOff := lasExtendedCountOff - lasMinHeaderSize
		if extOff+8 > len(rest) {
			return nil, fmt.Errorf("LAS 1.4 header truncated")
		}
		count = binary.LittleEndian.Uint64(rest[extOff:])
	}
	const maxPoints = 1 << 28 // sanity bound on untrusted count
	if count > maxPoints {
		return nil, fmt.Errorf("LAS point count %d exceeds limit", count)
	}

	cloud := NewCloud(int(count))
	rec := make([]byte, recordLength)
	for i := 0; i < int(count); i++ {
		if _, err := io.ReadFull(r, rec); err != nil {
			return nil, fmt.Errorf("point %d: %w", i, err)
		}
		rawX := int32(binary.LittleEndian.Uint32(rec[0:]))
		rawY := int32(binary.LittleEndian.Uint32(rec[4:]))
		rawZ := int32(binary.LittleEndian.Uint32(rec[8:]))
		cloud.Set(i,
			float32(float64(rawX)*scale[0]+offset[0]),
			float32(float64(rawY)*scale[1]+offset[1]),
			float32(float64(rawZ)*scale[2]+offset[2]))
	}
	return cloud, nil
}
