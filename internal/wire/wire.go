// Package wire implements the binary codec for the camera's TCP protocol:
// fixed 12-byte command frames, the one-shot stream header, the per-mode
// configuration block, ROI limit records, and the pixel formats used on the
// streaming channel (including the two bit-packed 10-bit encodings).
//
// Everything in this package is a pure function over byte slices. No I/O,
// no state; the transport and streaming layers own the sockets.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrShortRead is returned when a buffer does not hold exactly the
	// number of bytes the format and resolution require.
	ErrShortRead = errors.New("wire: buffer length does not match expected size")

	// ErrUnknownFormat is returned for pixel format tags outside the
	// closed enumeration the camera speaks.
	ErrUnknownFormat = errors.New("wire: unknown pixel format")
)

// Command mode selector, first meaningful byte of every request.
const (
	ModeSet uint8 = 0
	ModeGet uint8 = 1
)

// Function identifies a camera operation. The code space is fixed by the
// device firmware; it is not extensible at runtime.
type Function int16

const (
	FnGain                 Function = 1
	FnExposure             Function = 2
	FnTemperature          Function = 5
	FnReceiveConfig        Function = 6
	FnStartStreaming       Function = 7
	FnFramerate            Function = 9
	FnMode                 Function = 10
	FnSerialNumber         Function = 11
	FnFeatureSupport       Function = 13
	FnROILimits            Function = 14
	FnSetROI               Function = 15
	FnCalibratedROIStart   Function = 16
	FnCalibratedROIEnd     Function = 17
	FnCurrentResolution    Function = 18
	FnCurrentMaxFPS        Function = 19
	FnPixelFormat          Function = 20
	FnAutoSelectManualROI  Function = 21
	FnPreprocess           Function = 23
	FnTCPBlockSendout      Function = 24
	FnStatus               Function = 25
	FnInputTriggerDivider  Function = 41
	FnInputTriggerMode     Function = 42
	FnMaxAutoExposure      Function = 43
	FnInputTriggerFreq     Function = 44
	FnOutputTriggerMode    Function = 45
	FnAcquisitionBurstLen  Function = 46
	FnSaveUserConfig       Function = 52
	FnOutputTriggerPinMode Function = 56
	FnInputTriggerPinMode  Function = 57
)

// CommandLen is the fixed size of a request frame and of its echo reply.
const CommandLen = 12

// Command is one request on the control channel. The reserved leading byte
// is always zero on the wire.
type Command struct {
	Mode uint8
	Fn   Function
	P1   uint32
	P2   uint32
}

// Reply mirrors the request layout, with both result fields signed.
// The meaning of R1/R2 is function-code specific.
type Reply struct {
	Mode uint8
	Fn   Function
	R1   int32
	R2   int32
}

// EncodeCommand serializes c into its 12-byte little-endian wire form.
func EncodeCommand(c Command) []byte {
	b := make([]byte, CommandLen)
	b[0] = 0 // reserved
	b[1] = c.Mode
	binary.LittleEndian.PutUint16(b[2:4], uint16(c.Fn))
	binary.LittleEndian.PutUint32(b[4:8], c.P1)
	binary.LittleEndian.PutUint32(b[8:12], c.P2)
	return b
}

// DecodeReply parses a 12-byte reply frame.
func DecodeReply(b []byte) (Reply, error) {
	if len(b) != CommandLen {
		return Reply{}, fmt.Errorf("%w: reply is %d bytes, want %d", ErrShortRead, len(b), CommandLen)
	}
	return Reply{
		Mode: b[1],
		Fn:   Function(binary.LittleEndian.Uint16(b[2:4])),
		R1:   int32(binary.LittleEndian.Uint32(b[4:8])),
		R2:   int32(binary.LittleEndian.Uint32(b[8:12])),
	}, nil
}

// PixelFormat selects the wire encoding of streamed frames. The tag values
// are the ones understood by the pixel-format command.
type PixelFormat int32

const (
	// FormatMono10 is the default: one 10-bit sample per 16-bit slot.
	FormatMono10 PixelFormat = 0
	// FormatMono8 is one 8-bit sample per byte.
	FormatMono8 PixelFormat = 1
	// FormatMono10Pack45 packs four 10-bit samples into five bytes.
	FormatMono10Pack45 PixelFormat = 2
	// FormatMono10Pack23 packs two 10-bit samples into three bytes
	// (12 bits per sample on the wire).
	FormatMono10Pack23 PixelFormat = 3
	// FormatClassColor is the on-camera classifier output: one RGB
	// triplet per spatial pixel, no spectral axis.
	FormatClassColor PixelFormat = 4
)

// String returns the short name used in logs and CLI flags.
func (f PixelFormat) String() string {
	switch f {
	case FormatMono10:
		return "mono10"
	case FormatMono8:
		return "mono8"
	case FormatMono10Pack45:
		return "mono10p45"
	case FormatMono10Pack23:
		return "mono10p23"
	case FormatClassColor:
		return "classcolor"
	default:
		return fmt.Sprintf("pixelformat(%d)", int32(f))
	}
}

// ParsePixelFormat maps a short name back to its tag.
func ParsePixelFormat(s string) (PixelFormat, error) {
	switch strings.ToLower(s) {
	case "mono10":
		return FormatMono10, nil
	case "mono8":
		return FormatMono8, nil
	case "mono10p45":
		return FormatMono10Pack45, nil
	case "mono10p23":
		return FormatMono10Pack23, nil
	case "classcolor":
		return FormatClassColor, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// Columns returns the number of samples per spatial row for the format.
// All monochrome formats carry one sample per spectral band; the classifier
// format carries a fixed RGB triplet instead.
func (f PixelFormat) Columns(spectral int) int {
	if f == FormatClassColor {
		return 3
	}
	return spectral
}

// FrameLen computes the exact payload size in bytes of one streamed frame.
// The length is fully determined by format and resolution; the stream
// carries no delimiters.
func FrameLen(f PixelFormat, spatial, spectral int) (int, error) {
	if spatial <= 0 || spectral <= 0 {
		return 0, fmt.Errorf("wire: invalid resolution %dx%d", spatial, spectral)
	}
	n := spatial * spectral
	switch f {
	case FormatMono10:
		return n * 2, nil
	case FormatMono8:
		return n, nil
	case FormatMono10Pack45:
		return (n*10 + 7) / 8, nil
	case FormatMono10Pack23:
		return (n*12 + 7) / 8, nil
	case FormatClassColor:
		return spatial * 3, nil
	}
	return 0, fmt.Errorf("%w: %d", ErrUnknownFormat, int32(f))
}

// DecodeSamples converts one raw frame payload into a row-major sample grid,
// spatial rows by Columns(spectral) columns, widened to uint16. The buffer
// must hold exactly FrameLen bytes.
func DecodeSamples(b []byte, f PixelFormat, spatial, spectral int) ([]uint16, error) {
	want, err := FrameLen(f, spatial, spectral)
	if err != nil {
		return nil, err
	}
	if len(b) != want {
		return nil, fmt.Errorf("%w: got %d bytes, want %d (%s %dx%d)",
			ErrShortRead, len(b), want, f, spatial, spectral)
	}

	switch f {
	case FormatMono10:
		out := make([]uint16, spatial*spectral)
		for i := range out {
			out[i] = binary.LittleEndian.Uint16(b[i*2:])
		}
		return out, nil

	case FormatMono8, FormatClassColor:
		out := make([]uint16, len(b))
		for i, v := range b {
			out[i] = uint16(v)
		}
		return out, nil

	case FormatMono10Pack45:
		out := make([]uint16, spatial*spectral)
		Unpack10From5(out, b)
		return out, nil

	case FormatMono10Pack23:
		out := make([]uint16, spatial*spectral)
		Unpack10From3(out, b)
		return out, nil
	}
	return nil, fmt.Errorf("%w: %d", ErrUnknownFormat, int32(f))
}

// Unpack10From5 expands groups of 5 packed bytes into 4 samples each.
// Packing is LSB-first: sample 0 starts at bit 0 of byte 0. dst must hold
// 4 samples per 5 source bytes.
func Unpack10From5(dst []uint16, src []byte) {
	for g := 0; g*5+4 < len(src) && g*4+3 < len(dst); g++ {
		b0 := uint16(src[g*5+0])
		b1 := uint16(src[g*5+1])
		b2 := uint16(src[g*5+2])
		b3 := uint16(src[g*5+3])
		b4 := uint16(src[g*5+4])
		dst[g*4+0] = b0 | (b1&0x03)<<8
		dst[g*4+1] = (b1>>2)&0x3F | (b2&0x0F)<<6
		dst[g*4+2] = (b2>>4)&0x0F | (b3&0x3F)<<4
		dst[g*4+3] = b4<<2 | b3>>6
	}
}

// Pack10Into5 is the exact inverse of Unpack10From5 for 10-bit samples.
// Used by the camera simulator and the round-trip tests.
func Pack10Into5(dst []byte, src []uint16) {
	for g := 0; g*4+3 < len(src) && g*5+4 < len(dst); g++ {
		s0 := src[g*4+0] & 0x3FF
		s1 := src[g*4+1] & 0x3FF
		s2 := src[g*4+2] & 0x3FF
		s3 := src[g*4+3] & 0x3FF
		dst[g*5+0] = byte(s0)
		dst[g*5+1] = byte(s0>>8) | byte(s1&0x3F)<<2
		dst[g*5+2] = byte(s1>>6) | byte(s2&0x0F)<<4
		dst[g*5+3] = byte(s2>>4) | byte(s3&0x03)<<6
		dst[g*5+4] = byte(s3 >> 2)
	}
}

// Unpack10From3 expands groups of 3 packed bytes into 2 samples each.
// The samples occupy 12-bit slots on the wire but carry 10-bit values.
func Unpack10From3(dst []uint16, src []byte) {
	for g := 0; g*3+2 < len(src) && g*2+1 < len(dst); g++ {
		b0 := uint16(src[g*3+0])
		b1 := uint16(src[g*3+1])
		b2 := uint16(src[g*3+2])
		dst[g*2+0] = b0<<2 | b1&0x03
		dst[g*2+1] = b2<<2 | b1>>4
	}
}

// Pack10Into3 is the exact inverse of Unpack10From3 for 10-bit samples.
func Pack10Into3(dst []byte, src []uint16) {
	for g := 0; g*2+1 < len(src) && g*3+2 < len(dst); g++ {
		s0 := src[g*2+0] & 0x3FF
		s1 := src[g*2+1] & 0x3FF
		dst[g*3+0] = byte(s0 >> 2)
		dst[g*3+1] = byte(s0&0x03) | byte(s1&0x03)<<4
		dst[g*3+2] = byte(s1 >> 2)
	}
}

// EncodeSamples serializes a sample grid back into the given format's wire
// form. Inverse of DecodeSamples; lossy only if samples exceed the format's
// value range.
func EncodeSamples(samples []uint16, f PixelFormat, spatial, spectral int) ([]byte, error) {
	want, err := FrameLen(f, spatial, spectral)
	if err != nil {
		return nil, err
	}
	if len(samples) != spatial*f.Columns(spectral) {
		return nil, fmt.Errorf("%w: %d samples for %s %dx%d",
			ErrShortRead, len(samples), f, spatial, spectral)
	}

	out := make([]byte, want)
	switch f {
	case FormatMono10:
		for i, s := range samples {
			binary.LittleEndian.PutUint16(out[i*2:], s)
		}
	case FormatMono8, FormatClassColor:
		for i, s := range samples {
			out[i] = byte(s)
		}
	case FormatMono10Pack45:
		Pack10Into5(out, samples)
	case FormatMono10Pack23:
		Pack10Into3(out, samples)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownFormat, int32(f))
	}
	return out, nil
}

// StreamHeaderLen is the size of the one-time header sent after the
// start-stream command. Only the two leading fields are meaningful; the
// rest of the record is reserved.
const StreamHeaderLen = 32

// DecodeStreamHeader extracts the spatial and spectral resolution from the
// stream header.
func DecodeStreamHeader(b []byte) (spatial, spectral int, err error) {
	if len(b) != StreamHeaderLen {
		return 0, 0, fmt.Errorf("%w: header is %d bytes, want %d", ErrShortRead, len(b), StreamHeaderLen)
	}
	spatial = int(binary.LittleEndian.Uint16(b[0:2]))
	spectral = int(binary.LittleEndian.Uint16(b[2:4]))
	return spatial, spectral, nil
}
