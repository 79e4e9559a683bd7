package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"testing"
)

// TestCommandRoundTrip verifies encode→decode over the whole function code
// set and at the signed 32-bit boundaries of the parameter fields.
func TestCommandRoundTrip(t *testing.T) {
	fns := []Function{
		FnGain, FnExposure, FnTemperature, FnReceiveConfig, FnStartStreaming,
		FnFramerate, FnMode, FnSerialNumber, FnFeatureSupport, FnROILimits,
		FnSetROI, FnCalibratedROIStart, FnCalibratedROIEnd, FnCurrentResolution,
		FnCurrentMaxFPS, FnPixelFormat, FnAutoSelectManualROI, FnPreprocess,
		FnTCPBlockSendout, FnStatus, FnInputTriggerDivider, FnInputTriggerMode,
		FnMaxAutoExposure, FnInputTriggerFreq, FnOutputTriggerMode,
		FnAcquisitionBurstLen, FnSaveUserConfig, FnOutputTriggerPinMode,
		FnInputTriggerPinMode,
	}
	params := []uint32{0, 1, uint32(math.MaxInt32), 0x80000000, 0xFFFFFFFF}

	for _, fn := range fns {
		for _, p := range params {
			cmd := Command{Mode: ModeGet, Fn: fn, P1: p, P2: ^p}
			b := EncodeCommand(cmd)
			if len(b) != CommandLen {
				t.Fatalf("encoded command is %d bytes, want %d", len(b), CommandLen)
			}
			if b[0] != 0 {
				t.Fatalf("reserved byte not zero: %#x", b[0])
			}

			// The reply layout mirrors the request, with signed results.
			rep, err := DecodeReply(b)
			if err != nil {
				t.Fatalf("DecodeReply: %v", err)
			}
			if rep.Fn != fn || rep.Mode != ModeGet {
				t.Errorf("fn %d: got fn=%d mode=%d", fn, rep.Fn, rep.Mode)
			}
			if rep.R1 != int32(p) || rep.R2 != int32(^p) {
				t.Errorf("fn %d p=%#x: results %d,%d want %d,%d",
					fn, p, rep.R1, rep.R2, int32(p), int32(^p))
			}
		}
	}
}

// TestCommandWireLayout pins the exact byte layout against a hand-built frame.
func TestCommandWireLayout(t *testing.T) {
	b := EncodeCommand(Command{Mode: ModeSet, Fn: FnExposure, P1: 9000, P2: 1})
	want := []byte{0, 0, 2, 0, 0x28, 0x23, 0, 0, 1, 0, 0, 0}
	if !bytes.Equal(b, want) {
		t.Fatalf("wire layout mismatch:\n got %v\nwant %v", b, want)
	}
}

func TestDecodeReplyShort(t *testing.T) {
	if _, err := DecodeReply(make([]byte, CommandLen-1)); !errors.Is(err, ErrShortRead) {
		t.Fatalf("got %v, want ErrShortRead", err)
	}
}

// TestFrameLen checks the byte-length formula for every format.
func TestFrameLen(t *testing.T) {
	cases := []struct {
		format             PixelFormat
		spatial, spectral  int
		want               int
	}{
		{FormatMono10, 640, 213, 272640},
		{FormatMono8, 640, 213, 136320},
		{FormatMono10Pack45, 4, 4, 20},
		{FormatMono10Pack45, 640, 224, 179200},
		{FormatMono10Pack23, 4, 4, 24},
		{FormatMono10Pack23, 640, 214, 205440},
		{FormatClassColor, 640, 213, 1920},
	}
	for _, c := range cases {
		got, err := FrameLen(c.format, c.spatial, c.spectral)
		if err != nil {
			t.Fatalf("FrameLen(%s, %d, %d): %v", c.format, c.spatial, c.spectral, err)
		}
		if got != c.want {
			t.Errorf("FrameLen(%s, %d, %d) = %d, want %d",
				c.format, c.spatial, c.spectral, got, c.want)
		}
	}

	if _, err := FrameLen(PixelFormat(99), 4, 4); !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("unknown format: got %v, want ErrUnknownFormat", err)
	}
	if _, err := FrameLen(FormatMono10, 0, 4); err == nil {
		t.Errorf("zero spatial accepted")
	}
}

// TestDecodeSamplesExactLength verifies a payload one byte short always
// fails, for every format, and that the exact length decodes.
func TestDecodeSamplesExactLength(t *testing.T) {
	formats := []PixelFormat{
		FormatMono10, FormatMono8, FormatMono10Pack45, FormatMono10Pack23, FormatClassColor,
	}
	for _, f := range formats {
		n, err := FrameLen(f, 8, 4)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := DecodeSamples(make([]byte, n-1), f, 8, 4); !errors.Is(err, ErrShortRead) {
			t.Errorf("%s: short payload: got %v, want ErrShortRead", f, err)
		}
		samples, err := DecodeSamples(make([]byte, n), f, 8, 4)
		if err != nil {
			t.Errorf("%s: exact payload rejected: %v", f, err)
			continue
		}
		if len(samples) != 8*f.Columns(4) {
			t.Errorf("%s: got %d samples, want %d", f, len(samples), 8*f.Columns(4))
		}
	}
}

// TestMono10Identity feeds a full 640x213 mono10 frame and expects the grid
// back verbatim: for the default format, unpacked equals raw.
func TestMono10Identity(t *testing.T) {
	const spatial, spectral = 640, 213
	raw := make([]byte, spatial*spectral*2)
	for i := 0; i < spatial*spectral; i++ {
		binary.LittleEndian.PutUint16(raw[i*2:], uint16(i%1024))
	}

	samples, err := DecodeSamples(raw, FormatMono10, spatial, spectral)
	if err != nil {
		t.Fatal(err)
	}
	if len(samples) != spatial*spectral {
		t.Fatalf("got %d samples, want %d", len(samples), spatial*spectral)
	}
	for i, s := range samples {
		if s != uint16(i%1024) {
			t.Fatalf("sample %d = %d, want %d", i, s, i%1024)
		}
	}
}

// TestUnpack10From5KnownGroup checks one crafted 5-byte group against
// values computed by hand from the bit layout.
func TestUnpack10From5KnownGroup(t *testing.T) {
	// b0..b4 = 0xAB, 0xCD, 0xEF, 0x12, 0x34
	// s0 = 0xAB | (0xCD&0x03)<<8          = 0x1AB = 427
	// s1 = (0xCD>>2)&0x3F | (0xEF&0x0F)<<6 = 0x33 | 0x3C0 = 0x3F3 = 1011
	// s2 = (0xEF>>4)&0x0F | (0x12&0x3F)<<4 = 0x0E | 0x120 = 0x12E = 302
	// s3 = 0x34<<2 | 0x12>>6               = 0xD0 = 208
	src := []byte{0xAB, 0xCD, 0xEF, 0x12, 0x34}
	dst := make([]uint16, 4)
	Unpack10From5(dst, src)

	want := []uint16{427, 1011, 302, 208}
	for i := range want {
		if dst[i] != want[i] {
			t.Errorf("s%d = %d, want %d", i, dst[i], want[i])
		}
	}
}

// TestPack45RoundTrip sweeps the full 10-bit range through the 5-byte
// packer and expects the unpacker to reproduce every group exactly.
func TestPack45RoundTrip(t *testing.T) {
	samples := make([]uint16, 1024)
	for i := range samples {
		samples[i] = uint16(i)
	}

	packed := make([]byte, len(samples)*10/8)
	Pack10Into5(packed, samples)

	got := make([]uint16, len(samples))
	Unpack10From5(got, packed)

	for i := range samples {
		if got[i] != samples[i] {
			t.Fatalf("sample %d: got %d, want %d", i, got[i], samples[i])
		}
	}
}

// TestPack23RoundTrip does the same for the 3-byte/2-sample pair.
func TestPack23RoundTrip(t *testing.T) {
	samples := make([]uint16, 1024)
	for i := range samples {
		samples[i] = uint16(1023 - i)
	}

	packed := make([]byte, len(samples)*12/8)
	Pack10Into3(packed, samples)

	got := make([]uint16, len(samples))
	Unpack10From3(got, packed)

	for i := range samples {
		if got[i] != samples[i] {
			t.Fatalf("sample %d: got %d, want %d", i, got[i], samples[i])
		}
	}
}

// TestEncodeDecodeSamples round-trips full frames through every format.
func TestEncodeDecodeSamples(t *testing.T) {
	const spatial, spectral = 16, 8
	for _, f := range []PixelFormat{
		FormatMono10, FormatMono8, FormatMono10Pack45, FormatMono10Pack23, FormatClassColor,
	} {
		n := spatial * f.Columns(spectral)
		samples := make([]uint16, n)
		limit := uint16(1024)
		if f == FormatMono8 || f == FormatClassColor {
			limit = 256
		}
		for i := range samples {
			samples[i] = uint16(i*7) % limit
		}

		raw, err := EncodeSamples(samples, f, spatial, spectral)
		if err != nil {
			t.Fatalf("%s: encode: %v", f, err)
		}
		got, err := DecodeSamples(raw, f, spatial, spectral)
		if err != nil {
			t.Fatalf("%s: decode: %v", f, err)
		}
		for i := range samples {
			if got[i] != samples[i] {
				t.Fatalf("%s: sample %d: got %d, want %d", f, i, got[i], samples[i])
			}
		}
	}
}

func TestStreamHeader(t *testing.T) {
	b := make([]byte, StreamHeaderLen)
	binary.LittleEndian.PutUint16(b[0:2], 640)
	binary.LittleEndian.PutUint16(b[2:4], 213)

	spatial, spectral, err := DecodeStreamHeader(b)
	if err != nil {
		t.Fatal(err)
	}
	if spatial != 640 || spectral != 213 {
		t.Fatalf("got %dx%d, want 640x213", spatial, spectral)
	}

	if _, _, err := DecodeStreamHeader(b[:31]); !errors.Is(err, ErrShortRead) {
		t.Fatalf("short header: got %v, want ErrShortRead", err)
	}
}

func TestParsePixelFormat(t *testing.T) {
	for _, f := range []PixelFormat{
		FormatMono10, FormatMono8, FormatMono10Pack45, FormatMono10Pack23, FormatClassColor,
	} {
		got, err := ParsePixelFormat(f.String())
		if err != nil || got != f {
			t.Errorf("ParsePixelFormat(%q) = %v, %v", f.String(), got, err)
		}
	}
	if _, err := ParsePixelFormat("mono42"); !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("got %v, want ErrUnknownFormat", err)
	}
}
