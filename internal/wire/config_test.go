package wire

import (
	"errors"
	"testing"
)

func testDeviceInfo() DeviceInfo {
	return DeviceInfo{
		Name: "BlackIndustry SWIR",
		Modes: []ModeInfo{
			{
				Name: "Full Resolution", DeviceMode: 0, MaxValue: 1023, WhitePoint: 900,
				SpatialPixels: 640, SpectralBands: 213, SpectralMin: 900, SpectralMax: 1700,
				BlueBand: 30, GreenBand: 100, RedBand: 180, MaxFPS: 450,
			},
			{
				Name: "Binned", DeviceMode: 1, MaxValue: 1023, WhitePoint: 900,
				SpatialPixels: 320, SpectralBands: 213, SpectralMin: 900, SpectralMax: 1700,
				BlueBand: 30, GreenBand: 100, RedBand: 180, MaxFPS: 900,
			},
			{
				Name: "Manual ROI", DeviceMode: 2, MaxValue: 1023, WhitePoint: 900,
				SpatialPixels: 640, SpectralBands: 32, SpectralMin: 900, SpectralMax: 1700,
				BlueBand: 0, GreenBand: 0, RedBand: 0, MaxFPS: 1200,
			},
		},
	}
}

// TestConfigBlockRoundTrip parses a simulator-encoded configuration block
// record by record, the way the control client reads it off the socket.
func TestConfigBlockRoundTrip(t *testing.T) {
	info := testDeviceInfo()
	block := EncodeDeviceInfo(info)

	name, count, err := DecodeConfigHeader(block[:ConfigHeaderLen])
	if err != nil {
		t.Fatal(err)
	}
	if name != info.Name {
		t.Errorf("device name %q, want %q", name, info.Name)
	}
	if count != len(info.Modes) {
		t.Fatalf("mode count %d, want %d", count, len(info.Modes))
	}

	for i := 0; i < count; i++ {
		rec := block[ConfigHeaderLen+i*ModeRecordLen:][:ModeRecordLen]
		mode, err := DecodeModeRecord(rec)
		if err != nil {
			t.Fatalf("mode %d: %v", i, err)
		}
		if mode != info.Modes[i] {
			t.Errorf("mode %d:\n got %+v\nwant %+v", i, mode, info.Modes[i])
		}
	}
}

func TestConfigHeaderRejectsBadCount(t *testing.T) {
	block := EncodeDeviceInfo(DeviceInfo{Name: "x"})
	block[deviceNameLen] = MaxModes + 1
	if _, _, err := DecodeConfigHeader(block[:ConfigHeaderLen]); err == nil {
		t.Fatal("mode count above table size accepted")
	}
	if _, _, err := DecodeConfigHeader(block[:ConfigHeaderLen-1]); !errors.Is(err, ErrShortRead) {
		t.Fatal("short header accepted")
	}
}

// TestROILimitsRoundTrip checks the fixed-size limit block and the used
// count that drives the manual-ROI spectral band update.
func TestROILimitsRoundTrip(t *testing.T) {
	regions := make([]ROIRegion, MaxROIRegions)
	for i := 0; i < 10; i++ {
		regions[i] = ROIRegion{
			MinWavelength: int32(900 + i*10),
			MaxWavelength: int32(910 + i*10),
			Used:          true,
			Active:        i < 4,
		}
	}

	got, err := DecodeROILimits(EncodeROILimits(regions))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != MaxROIRegions {
		t.Fatalf("got %d regions, want %d", len(got), MaxROIRegions)
	}
	for i := range regions {
		if got[i] != regions[i] {
			t.Fatalf("region %d: got %+v, want %+v", i, got[i], regions[i])
		}
	}

	if n := UsedRegionCount(got); n != 10 {
		t.Errorf("used count %d, want 10", n)
	}

	if _, err := DecodeROILimits(make([]byte, ROIRecordLen*MaxROIRegions-1)); !errors.Is(err, ErrShortRead) {
		t.Errorf("short block: got %v, want ErrShortRead", err)
	}
}

func TestDecodeDeviceString(t *testing.T) {
	b := make([]byte, DeviceStringLen)
	copy(b, "HSI-1234-SN")
	if got := DecodeDeviceString(b); got != "HSI-1234-SN" {
		t.Fatalf("got %q", got)
	}
	if got := DecodeDeviceString([]byte("no padding")); got != "no padding" {
		t.Fatalf("got %q", got)
	}
}
