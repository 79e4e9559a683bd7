package hsicamera

import (
	"sync"

	"github.com/e7canasta/hsi-sensor-driver/internal/wire"
)

// manualROIBandSentinel marks the manual-ROI acquisition mode in the
// device's configuration block. Its real band count depends on the regions
// currently programmed and is unknown until the first ROI read or write.
const manualROIBandSentinel = 32

// ModeTable holds the acquisition modes read from the device at connect
// time. The table is fixed for the life of the connection except for the
// manual-ROI mode, whose spectral band count tracks the programmed regions.
type ModeTable struct {
	deviceName string

	mu        sync.RWMutex
	modes     []ModeInfo
	manualROI int // index into modes, -1 when the device has no such mode
}

func newModeTable(info wire.DeviceInfo) *ModeTable {
	t := &ModeTable{
		deviceName: info.Name,
		modes:      make([]ModeInfo, len(info.Modes)),
		manualROI:  -1,
	}
	copy(t.modes, info.Modes)
	for i, m := range t.modes {
		if m.SpectralBands == manualROIBandSentinel {
			t.manualROI = i
		}
	}
	return t
}

// DeviceName returns the device name from the configuration block.
func (t *ModeTable) DeviceName() string {
	return t.deviceName
}

// Len returns the number of acquisition modes.
func (t *ModeTable) Len() int {
	return len(t.modes)
}

// Mode returns the descriptor at table index i.
func (t *ModeTable) Mode(i int) (ModeInfo, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if i < 0 || i >= len(t.modes) {
		return ModeInfo{}, false
	}
	return t.modes[i], true
}

// Modes returns a copy of the full table.
func (t *ModeTable) Modes() []ModeInfo {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]ModeInfo, len(t.modes))
	copy(out, t.modes)
	return out
}

// ManualROIIndex returns the table index of the manual-ROI mode, or -1.
func (t *ModeTable) ManualROIIndex() int {
	return t.manualROI
}

// indexByDeviceMode maps a device-side mode identifier back to its table
// index. Identifiers are not required to be contiguous.
func (t *ModeTable) indexByDeviceMode(id int32) (int, bool) {
	for i, m := range t.modes {
		if m.DeviceMode == id {
			return i, true
		}
	}
	return 0, false
}

// setManualROIBands updates the manual-ROI mode's effective band count
// after a region read or write. Reports false when no such mode exists.
func (t *ModeTable) setManualROIBands(bands int32) bool {
	if t.manualROI < 0 {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.modes[t.manualROI].SpectralBands = bands
	return true
}
