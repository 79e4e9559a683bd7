package wire

import (
	"encoding/binary"
	"fmt"
	"strings"
)

const (
	// deviceNameLen is the fixed width of every name field in the
	// configuration block, NUL padded.
	deviceNameLen = 100

	// ConfigHeaderLen is the leading record of the configuration block:
	// device name plus a 32-bit mode count.
	ConfigHeaderLen = deviceNameLen + 4

	// ModeRecordLen is one mode descriptor: name plus eleven 32-bit fields.
	ModeRecordLen = deviceNameLen + 11*4

	// MaxModes is the most mode records a device ever reports.
	MaxModes = 12
)

// ModeInfo describes one camera mode as reported by the device. The table
// is read once per session; see the registry for the single mutable field.
type ModeInfo struct {
	Name          string
	DeviceMode    int32 // device-internal id, not the table index
	MaxValue      int32
	WhitePoint    int32
	SpatialPixels int32
	SpectralBands int32
	SpectralMin   int32
	SpectralMax   int32
	BlueBand      int32 // per-channel calibration band indices
	GreenBand     int32
	RedBand       int32
	MaxFPS        int32
}

// DeviceInfo is the parsed configuration block.
type DeviceInfo struct {
	Name  string
	Modes []ModeInfo
}

// DecodeConfigHeader parses the leading name + mode-count record.
func DecodeConfigHeader(b []byte) (name string, modeCount int, err error) {
	if len(b) != ConfigHeaderLen {
		return "", 0, fmt.Errorf("%w: config header is %d bytes, want %d", ErrShortRead, len(b), ConfigHeaderLen)
	}
	name = decodeDeviceString(b[:deviceNameLen])
	modeCount = int(int32(binary.LittleEndian.Uint32(b[deviceNameLen:])))
	if modeCount < 0 || modeCount > MaxModes {
		return "", 0, fmt.Errorf("wire: device reports %d modes, max %d", modeCount, MaxModes)
	}
	return name, modeCount, nil
}

// DecodeModeRecord parses one fixed-size mode descriptor.
func DecodeModeRecord(b []byte) (ModeInfo, error) {
	if len(b) != ModeRecordLen {
		return ModeInfo{}, fmt.Errorf("%w: mode record is %d bytes, want %d", ErrShortRead, len(b), ModeRecordLen)
	}
	f := func(i int) int32 {
		return int32(binary.LittleEndian.Uint32(b[deviceNameLen+i*4:]))
	}
	return ModeInfo{
		Name:          decodeDeviceString(b[:deviceNameLen]),
		DeviceMode:    f(0),
		MaxValue:      f(1),
		WhitePoint:    f(2),
		SpatialPixels: f(3),
		SpectralBands: f(4),
		SpectralMin:   f(5),
		SpectralMax:   f(6),
		BlueBand:      f(7),
		GreenBand:     f(8),
		RedBand:       f(9),
		MaxFPS:        f(10),
	}, nil
}

// EncodeDeviceInfo serializes a configuration block. The simulator uses it;
// the driver itself only decodes.
func EncodeDeviceInfo(info DeviceInfo) []byte {
	out := make([]byte, ConfigHeaderLen+len(info.Modes)*ModeRecordLen)
	copy(out, info.Name)
	binary.LittleEndian.PutUint32(out[deviceNameLen:], uint32(len(info.Modes)))
	for i, m := range info.Modes {
		rec := out[ConfigHeaderLen+i*ModeRecordLen:]
		copy(rec, m.Name)
		for j, v := range []int32{
			m.DeviceMode, m.MaxValue, m.WhitePoint, m.SpatialPixels,
			m.SpectralBands, m.SpectralMin, m.SpectralMax,
			m.BlueBand, m.GreenBand, m.RedBand, m.MaxFPS,
		} {
			binary.LittleEndian.PutUint32(rec[deviceNameLen+j*4:], uint32(v))
		}
	}
	return out
}

const (
	// ROIRecordLen is one ROI limit record: two 32-bit wavelengths plus
	// the used and active flags.
	ROIRecordLen = 10

	// MaxROIRegions is the fixed count of records in a ROI limits block.
	MaxROIRegions = 129
)

// ROIRegion is one selectable wavelength region of the manual-ROI mode.
type ROIRegion struct {
	MinWavelength int32 // nm
	MaxWavelength int32 // nm
	Used          bool
	Active        bool
}

// DecodeROILimits parses the fixed block of ROI limit records.
func DecodeROILimits(b []byte) ([]ROIRegion, error) {
	if len(b) != ROIRecordLen*MaxROIRegions {
		return nil, fmt.Errorf("%w: roi limits block is %d bytes, want %d",
			ErrShortRead, len(b), ROIRecordLen*MaxROIRegions)
	}
	out := make([]ROIRegion, MaxROIRegions)
	for i := range out {
		rec := b[i*ROIRecordLen:]
		out[i] = ROIRegion{
			MinWavelength: int32(binary.LittleEndian.Uint32(rec[0:4])),
			MaxWavelength: int32(binary.LittleEndian.Uint32(rec[4:8])),
			Used:          rec[8] != 0,
			Active:        rec[9] != 0,
		}
	}
	return out, nil
}

// EncodeROILimits serializes a full ROI limits block, padding to the fixed
// record count. Simulator-side counterpart of DecodeROILimits.
func EncodeROILimits(regions []ROIRegion) []byte {
	out := make([]byte, ROIRecordLen*MaxROIRegions)
	for i, r := range regions {
		if i >= MaxROIRegions {
			break
		}
		rec := out[i*ROIRecordLen:]
		binary.LittleEndian.PutUint32(rec[0:4], uint32(r.MinWavelength))
		binary.LittleEndian.PutUint32(rec[4:8], uint32(r.MaxWavelength))
		if r.Used {
			rec[8] = 1
		}
		if r.Active {
			rec[9] = 1
		}
	}
	return out
}

// UsedRegionCount counts the regions the device reports as usable. Four
// spectral bands are delivered per used region.
func UsedRegionCount(regions []ROIRegion) int {
	n := 0
	for _, r := range regions {
		if r.Used {
			n++
		}
	}
	return n
}

// DeviceStringLen is the size of the raw serial-number and firmware-version
// replies.
const DeviceStringLen = 20

// DecodeDeviceString trims a fixed-width NUL-padded device string.
func DecodeDeviceString(b []byte) string {
	return decodeDeviceString(b)
}

func decodeDeviceString(b []byte) string {
	if i := strings.IndexByte(string(b), 0); i >= 0 {
		return string(b[:i])
	}
	return string(b)
}
