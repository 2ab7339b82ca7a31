package pointcloud

import (
	"fmt"
	"io"
	"math"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// Pandar40P UDP packet layout constants. Each 1262-byte payload carries 10
// data blocks of 124 bytes (2-byte 0xFFEE preamble + 2-byte azimuth + 40
// channels of distance and reflectivity) followed by a 32-byte tail.
const (
	pandarPacketSize     = 1262
	pandarPacketSizeSeq  = 1266 // variant with trailing 4-byte UDP sequence
	pandarBlocksPerPkt   = 10
	pandarChannels       = 40
	pandarBlockSize      = 2 + 2 + pandarChannels*3
	pandarTailSize       = 32
	pandarDistanceRes    = 0.004 // meters per LSB
	pandarAzimuthRes     = 0.01  // degrees per LSB
	pandarBlockPreamble  = 0xEEFF
	pandarMinReturnUnits = 1 // distance 0 means no return
)

// pandarElevations holds the factory elevation angle (degrees) for each of
// the 40 laser channels. Per-unit azimuth and firetime corrections from the
// sensor's calibration file are not applied here; for completion training the
// sub-0.1 degree difference is below the model's resolving power.
var pandarElevations = [pandarChannels]float64{
	15.0, 11.0, 8.0, 5.0, 3.0, 2.0, 1.67, 1.33, 1.0, 0.67,
	0.33, 0.0, -0.33, -0.67, -1.0, -1.33, -1.67, -2.0, -2.33, -2.67,
	-3.0, -3.33, -3.67, -4.0, -4.33, -4.67, -5.0, -5.33, -5.67, -6.0,
	-7.0, -8.0, -9.0, -10.0, -11.0, -12.0, -13.0, -14.0, -19.0, -25.0,
}

// pcapDecoder extracts a point cloud from a pcap capture of Pandar40P UDP
// traffic. All sensor packets in the capture are folded into one cloud;
// non-sensor packets (wrong size, bad preamble) are skipped rather than
// failing the decode, since captures routinely include unrelated traffic.
type pcapDecoder struct{}

func (pcapDecoder) Decode(r io.Reader) (*Cloud, error) {
	pr, err := pcapgo.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("open pcap stream: %w", err)
	}

	cloud := NewCloud(0)
	packets := 0
	for {
		data, _, err := pr.ReadPacketData()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read pcap packet: %w", err)
		}

		pkt := gopacket.NewPacket(data, pr.LinkType(), gopacket.NoCopy)
		udpLayer := pkt.Layer(layers.LayerTypeUDP)
		if udpLayer == nil {
			continue
		}
		payload := udpLayer.(*layers.UDP).Payload
		if len(payload) != pandarPacketSize && len(payload) != pandarPacketSizeSeq {
			continue
		}
		if parsePandarPayload(payload, cloud) {
			packets++
		}
	}
	if packets == 0 {
		return nil, fmt.Errorf("no Pandar40P packets found in capture")
	}
	return cloud, nil
}

// parsePandarPayload appends all valid returns from one sensor payload to
// cloud. Returns false when the payload does not look like sensor data.
// Blocks are consumed from the start of the payload until the next block
// would overlap the 32-byte tail.
func parsePandarPayload(payload []byte, cloud *Cloud) bool {
	tailOffset := len(payload) - pandarTailSize
	if tailOffset < pandarBlockSize {
		return false
	}

	// Validate every block preamble before appending anything, so a payload
	// rejected part-way through never leaves partial points in the cloud.
	nBlocks := 0
	for blockIdx := 0; blockIdx < pandarBlocksPerPkt; blockIdx++ {
		off := blockIdx * pandarBlockSize
		if off+pandarBlockSize > tailOffset {
			break
		}
		preamble := uint16(payload[off]) | uint16(payload[off+1])<<8
		if preamble != pandarBlockPreamble {
			return false
		}
		nBlocks++
	}

	added := false
	for blockIdx := 0; blockIdx < nBlocks; blockIdx++ {
		off := blockIdx * pandarBlockSize
		block := payload[off : off+pandarBlockSize]
		baseAzimuth := float64(uint16(block[2])|uint16(block[3])<<8) * pandarAzimuthRes

		azRad := baseAzimuth * math.Pi / 180.0
		cosAz, sinAz := math.Cos(azRad), math.Sin(azRad)

		for ch := 0; ch < pandarChannels; ch++ {
			off := 4 + ch*3
			rawDist := uint16(block[off]) | uint16(block[off+1])<<8
			if rawDist < pandarMinReturnUnits {
				continue
			}
			dist := float64(rawDist) * pandarDistanceRes
			elRad := pandarElevations[ch] * math.Pi / 180.0
			cosEl, sinEl := math.Cos(elRad), math.Sin(elRad)

			// Sensor frame: X forward, Y right, Z up.
			cloud.Append(
				float32(dist*cosEl*cosAz),
				float32(dist*cosEl*sinAz),
				float32(dist*sinEl))
			added = true
		}
	}
	return added
}
