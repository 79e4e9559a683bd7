package hsicamera

import (
	"time"

	"github.com/e7canasta/hsi-sensor-driver/internal/wire"
)

// Frame is one decoded line-scan acquisition: SpatialPixels rows by Bands
// columns, row-major. Samples are widened to uint16 regardless of the wire
// width. Data is immutable after delivery; consumers must not modify it.
type Frame struct {
	// Seq is the monotonic sequence number within the stream.
	Seq uint64
	// Timestamp is when the frame was decoded.
	Timestamp time.Time
	// TraceID is a unique identifier for correlating a frame through
	// downstream processing.
	TraceID string
	// SpatialPixels is the along-slit row count.
	SpatialPixels int
	// Bands is the column count: spectral bands, or 3 for the on-camera
	// classifier's RGB output.
	Bands int
	// Format is the wire encoding the frame was decoded from.
	Format PixelFormat
	// Samples holds the grid, row-major.
	Samples []uint16
}

// At returns the sample at the given spatial row and band column.
func (f *Frame) At(row, band int) uint16 {
	return f.Samples[row*f.Bands+band]
}

// PixelFormat and its values are re-exported from the wire codec so
// callers never import internal packages.
type PixelFormat = wire.PixelFormat

const (
	FormatMono10       = wire.FormatMono10
	FormatMono8        = wire.FormatMono8
	FormatMono10Pack45 = wire.FormatMono10Pack45
	FormatMono10Pack23 = wire.FormatMono10Pack23
	FormatClassColor   = wire.FormatClassColor
)

// ParsePixelFormat maps a short format name ("mono10", "mono8",
// "mono10p45", "mono10p23", "classcolor") to its tag.
func ParsePixelFormat(s string) (PixelFormat, error) {
	return wire.ParsePixelFormat(s)
}

// ModeInfo re-exports the per-mode descriptor read from the device.
type ModeInfo = wire.ModeInfo

// ROIRegion re-exports one manual-ROI wavelength region record.
type ROIRegion = wire.ROIRegion

// WavelengthBand is one calibrated-ROI region, in nanometers.
type WavelengthBand struct {
	Start int32
	End   int32
}

// Features is the capability bitfield reported by the device.
type Features uint32

const (
	FeatureFrameHeader         Features = 1 << 0
	FeatureManualROI           Features = 1 << 1
	FeatureTempFrame           Features = 1 << 2
	FeatureTrigger             Features = 1 << 3
	FeatureCalibratedROI       Features = 1 << 4
	FeaturePixelPacking        Features = 1 << 5
	FeatureSaveUserConfig      Features = 1 << 7
	FeatureOnCameraClassifier  Features = 1 << 8
	FeatureSpatialBinning      Features = 1 << 9
	FeatureDifferentialTrigger Features = 1 << 11
)

// Has reports whether all bits in want are set.
func (f Features) Has(want Features) bool {
	return f&want == want
}

// Input trigger modes.
const (
	// TriggerMaster lets the camera pace itself (default).
	TriggerMaster int32 = 0
	// TriggerFrame captures one frame per external trigger edge.
	TriggerFrame int32 = 1
	// TriggerBurst records a burst of frames per external trigger.
	TriggerBurst int32 = 2
)

// Output trigger modes.
const (
	TriggerFromSensor      int32 = 0
	TriggerRisingExternal  int32 = 1
	TriggerFallingExternal int32 = 2
)

// Trigger pin modes.
const (
	PinSingleEnded5V  int32 = 0
	PinSingleEnded24V int32 = 1
	PinDifferential   int32 = 2
)

// Spatial binning modes (preprocess setting).
const (
	BinningNone int32 = 1
	Binning2    int32 = 2
)

// Stats is a snapshot of the capture pipeline.
type Stats struct {
	// Streaming is true while the capture loop is running.
	Streaming bool
	// FramesDecoded counts frames pushed into the hand-off buffer.
	FramesDecoded uint64
	// FramesEvicted counts frames overwritten before being consumed.
	FramesEvicted uint64
	// Stalls counts timed-out reads resolved as transient by the probe.
	Stalls uint64
	// BytesRead is the total payload bytes read off the streaming socket.
	BytesRead uint64
	// FPSReal is the measured delivery rate since stream start.
	FPSReal float64
	// LastFrameAt is the decode time of the newest frame, zero before the
	// first one.
	LastFrameAt time.Time
}
