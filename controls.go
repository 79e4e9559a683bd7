package hsicamera

import (
	"fmt"

	"github.com/e7canasta/hsi-sensor-driver/internal/wire"
)

// Parameter accessors. Each call opens a short-lived command connection;
// none of them touches the streaming channel. Setters that make the device
// reconfigure its sensor path (mode, pixel format, trigger modes, binning,
// ROI commits) use the longer write timeout.

func (c *Camera) require(f Features, what string) error {
	if !c.features.Has(f) {
		return fmt.Errorf("%w: %s", ErrUnsupported, what)
	}
	return nil
}

// Gain returns the sensor gain in dB.
func (c *Camera) Gain() (int32, error) {
	r1, _, err := c.ctrl.Get(wire.FnGain, 0, 0)
	return r1, err
}

// SetGain sets the sensor gain in dB.
func (c *Camera) SetGain(db int32) error {
	return c.ctrl.Set(wire.FnGain, uint32(db), 0)
}

// Exposure returns the exposure time in microseconds.
func (c *Camera) Exposure() (int32, error) {
	r1, _, err := c.ctrl.Get(wire.FnExposure, 0, 1)
	return r1, err
}

// SetExposure sets the exposure time in microseconds.
func (c *Camera) SetExposure(us int32) error {
	return c.ctrl.Set(wire.FnExposure, uint32(us), 1)
}

// Framerate returns the target frame rate in Hz.
func (c *Camera) Framerate() (int32, error) {
	r1, _, err := c.ctrl.Get(wire.FnFramerate, 0, 0)
	return r1, err
}

// SetFramerate sets the target frame rate in Hz.
func (c *Camera) SetFramerate(fps int32) error {
	return c.ctrl.Set(wire.FnFramerate, uint32(fps), 0)
}

// Temperature returns the sensor temperature in degrees Celsius. The
// device sends a raw value and a divider; older firmware leaves the
// divider at zero, which means ten.
func (c *Camera) Temperature() (float64, error) {
	raw, divider, err := c.ctrl.Get(wire.FnTemperature, 0, 0)
	if err != nil {
		return 0, err
	}
	if divider == 0 {
		divider = 10
	}
	return float64(raw) / float64(divider), nil
}

// Mode returns the index of the active acquisition mode.
func (c *Camera) Mode() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.modeIndex
}

// SetMode switches the acquisition mode by table index. The device
// reconfigures the sensor, so the live resolution may lag briefly.
func (c *Camera) SetMode(index int) error {
	mode, ok := c.modes.Mode(index)
	if !ok {
		return fmt.Errorf("hsicamera: mode index %d out of range", index)
	}
	if err := c.ctrl.SetSlow(wire.FnMode, uint32(mode.DeviceMode), 0); err != nil {
		return err
	}
	c.mu.Lock()
	c.modeIndex = index
	c.mu.Unlock()
	return nil
}

// PixelFormat returns the active wire encoding.
func (c *Camera) PixelFormat() PixelFormat {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pixelFormat
}

// SetPixelFormat switches the wire encoding for subsequent streams.
func (c *Camera) SetPixelFormat(pf PixelFormat) error {
	switch pf {
	case FormatMono10Pack45, FormatMono10Pack23:
		if err := c.require(FeaturePixelPacking, "packed pixel formats"); err != nil {
			return err
		}
	case FormatClassColor:
		if err := c.require(FeatureOnCameraClassifier, "classifier output"); err != nil {
			return err
		}
	case FormatMono10, FormatMono8:
	default:
		return fmt.Errorf("%w: %d", wire.ErrUnknownFormat, pf)
	}
	if err := c.ctrl.SetSlow(wire.FnPixelFormat, uint32(pf), 0); err != nil {
		return err
	}
	c.mu.Lock()
	c.pixelFormat = pf
	c.mu.Unlock()
	return nil
}

// CurrentLimits returns the maximum frame rate and exposure the active
// mode supports under the current settings.
func (c *Camera) CurrentLimits() (maxFPS, maxExposureUS int32, err error) {
	return c.ctrl.Get(wire.FnCurrentMaxFPS, 0, 0)
}

// MaxAutoExposure returns the ceiling the auto-exposure control honors.
func (c *Camera) MaxAutoExposure() (int32, error) {
	r1, _, err := c.ctrl.Get(wire.FnMaxAutoExposure, 0, 0)
	return r1, err
}

// SetMaxAutoExposure caps the auto-exposure control, in microseconds.
func (c *Camera) SetMaxAutoExposure(us int32) error {
	return c.ctrl.Set(wire.FnMaxAutoExposure, uint32(us), 0)
}

// SpatialBinning returns the active spatial binning mode.
func (c *Camera) SpatialBinning() (int32, error) {
	if err := c.require(FeatureSpatialBinning, "spatial binning"); err != nil {
		return 0, err
	}
	_, r2, err := c.ctrl.Get(wire.FnPreprocess, 2, 0)
	return r2, err
}

// SetSpatialBinning sets the spatial binning mode (BinningNone, Binning2).
// Binning halves the spatial resolution the next stream reports.
func (c *Camera) SetSpatialBinning(mode int32) error {
	if err := c.require(FeatureSpatialBinning, "spatial binning"); err != nil {
		return err
	}
	return c.ctrl.SetSlow(wire.FnPreprocess, 2, uint32(mode))
}

// TCPBlockSendout returns the streaming block-sendout setting.
func (c *Camera) TCPBlockSendout() (int32, error) {
	r1, _, err := c.ctrl.Get(wire.FnTCPBlockSendout, 0, 0)
	return r1, err
}

// SetTCPBlockSendout tunes how the device chunks frame payloads onto the
// streaming socket.
func (c *Camera) SetTCPBlockSendout(blocks int32) error {
	return c.ctrl.Set(wire.FnTCPBlockSendout, uint32(blocks), 0)
}

// SaveUserConfig persists (or stops persisting) the current settings
// across power cycles.
func (c *Camera) SaveUserConfig(enable bool) error {
	if err := c.require(FeatureSaveUserConfig, "saving user config"); err != nil {
		return err
	}
	var v uint32
	if enable {
		v = 1
	}
	return c.ctrl.Set(wire.FnSaveUserConfig, v, 0)
}

// SavedUserConfig reports whether settings persist across power cycles.
func (c *Camera) SavedUserConfig() (bool, error) {
	if err := c.require(FeatureSaveUserConfig, "saving user config"); err != nil {
		return false, err
	}
	r1, _, err := c.ctrl.Get(wire.FnSaveUserConfig, 0, 0)
	return r1 == 1, err
}

// ROILimits reads the device's manual-ROI region table: which wavelength
// regions exist and which are active. Reading also refreshes the
// manual-ROI mode's effective band count.
func (c *Camera) ROILimits() ([]ROIRegion, error) {
	if err := c.require(FeatureManualROI, "manual ROI"); err != nil {
		return nil, err
	}
	regions, err := c.ctrl.ReadROILimits()
	if err != nil {
		return nil, err
	}
	c.modes.setManualROIBands(int32(wire.UsedRegionCount(regions) * 4))
	return regions, nil
}

// WriteROIRegions programs the active manual-ROI regions by their indices
// in the region table. The selection is cleared first; the final write
// commits, which makes the device reconfigure.
func (c *Camera) WriteROIRegions(indices []int) error {
	if err := c.require(FeatureManualROI, "manual ROI"); err != nil {
		return err
	}
	if len(indices) == 0 || len(indices) > wire.MaxROIRegions {
		return fmt.Errorf("hsicamera: %d ROI regions, want 1..%d",
			len(indices), wire.MaxROIRegions)
	}
	for _, idx := range indices {
		if idx < 0 || idx >= wire.MaxROIRegions {
			return fmt.Errorf("hsicamera: ROI region index %d out of range", idx)
		}
	}
	if err := c.ctrl.Set(wire.FnSetROI, 0, 0); err != nil {
		return err
	}
	for i, idx := range indices {
		// Regions are addressed one-based on the wire; zero means clear.
		if i == len(indices)-1 {
			if err := c.ctrl.SetSlow(wire.FnSetROI, uint32(idx+1), 1); err != nil {
				return err
			}
		} else {
			if err := c.ctrl.Set(wire.FnSetROI, uint32(idx+1), 0); err != nil {
				return err
			}
		}
	}
	c.modes.setManualROIBands(int32(len(indices) * 4))
	return nil
}

// AutoSelectManualROI asks the device to pick n regions itself, then
// re-reads the region table to learn what it chose.
func (c *Camera) AutoSelectManualROI(n int) ([]ROIRegion, error) {
	if err := c.require(FeatureManualROI, "manual ROI"); err != nil {
		return nil, err
	}
	if err := c.ctrl.SetSlow(wire.FnAutoSelectManualROI, uint32(n), 0); err != nil {
		return nil, err
	}
	return c.ROILimits()
}

// calibratedROISlots is the number of wavelength band slots the device
// exposes for the calibrated ROI.
const calibratedROISlots = 8

// calibratedROICommit is the out-of-band slot address that commits the
// slot writes.
const calibratedROICommit = 100

// CalibratedROI reads the calibrated wavelength bands. Slots with a zero
// start and end are unprogrammed and skipped.
func (c *Camera) CalibratedROI() ([]WavelengthBand, error) {
	if err := c.require(FeatureCalibratedROI, "calibrated ROI"); err != nil {
		return nil, err
	}
	var bands []WavelengthBand
	for slot := 0; slot < calibratedROISlots; slot++ {
		_, start, err := c.ctrl.Get(wire.FnCalibratedROIStart, uint32(slot), 0)
		if err != nil {
			return nil, err
		}
		_, end, err := c.ctrl.Get(wire.FnCalibratedROIEnd, uint32(slot), 0)
		if err != nil {
			return nil, err
		}
		if start == 0 && end == 0 {
			continue
		}
		bands = append(bands, WavelengthBand{Start: start, End: end})
	}
	return bands, nil
}

// SetCalibratedROI programs the calibrated wavelength bands: each slot is
// written (unused slots zeroed), then the set is committed, which makes
// the device reconfigure.
func (c *Camera) SetCalibratedROI(bands []WavelengthBand) error {
	if err := c.require(FeatureCalibratedROI, "calibrated ROI"); err != nil {
		return err
	}
	if len(bands) > calibratedROISlots {
		return fmt.Errorf("hsicamera: %d calibrated bands, device holds %d",
			len(bands), calibratedROISlots)
	}
	for slot := 0; slot < calibratedROISlots; slot++ {
		var b WavelengthBand
		if slot < len(bands) {
			b = bands[slot]
		}
		// Slot index in the first parameter, wavelength in the second,
		// matching the read side.
		if err := c.ctrl.Set(wire.FnCalibratedROIStart, uint32(slot), uint32(b.Start)); err != nil {
			return err
		}
		if err := c.ctrl.Set(wire.FnCalibratedROIEnd, uint32(slot), uint32(b.End)); err != nil {
			return err
		}
	}
	return c.ctrl.SetSlow(wire.FnCalibratedROIStart, calibratedROICommit, 0)
}

// InputTriggerMode returns the active input trigger mode.
func (c *Camera) InputTriggerMode() (int32, error) {
	if err := c.require(FeatureTrigger, "triggering"); err != nil {
		return 0, err
	}
	r1, _, err := c.ctrl.Get(wire.FnInputTriggerMode, 0, 0)
	return r1, err
}

// SetInputTriggerMode selects TriggerMaster, TriggerFrame or TriggerBurst.
func (c *Camera) SetInputTriggerMode(mode int32) error {
	if err := c.require(FeatureTrigger, "triggering"); err != nil {
		return err
	}
	return c.ctrl.SetSlow(wire.FnInputTriggerMode, uint32(mode), 0)
}

// InputTriggerDivider returns how many trigger edges make one frame.
func (c *Camera) InputTriggerDivider() (int32, error) {
	if err := c.require(FeatureTrigger, "triggering"); err != nil {
		return 0, err
	}
	r1, _, err := c.ctrl.Get(wire.FnInputTriggerDivider, 0, 0)
	return r1, err
}

// SetInputTriggerDivider captures one frame per n trigger edges.
func (c *Camera) SetInputTriggerDivider(n int32) error {
	if err := c.require(FeatureTrigger, "triggering"); err != nil {
		return err
	}
	return c.ctrl.Set(wire.FnInputTriggerDivider, uint32(n), 0)
}

// InputTriggerFrequency returns the measured external trigger rate in Hz.
func (c *Camera) InputTriggerFrequency() (int32, error) {
	if err := c.require(FeatureTrigger, "triggering"); err != nil {
		return 0, err
	}
	r1, _, err := c.ctrl.Get(wire.FnInputTriggerFreq, 0, 0)
	return r1, err
}

// AcquisitionBurstLength returns the frames recorded per burst trigger.
func (c *Camera) AcquisitionBurstLength() (int32, error) {
	if err := c.require(FeatureTrigger, "triggering"); err != nil {
		return 0, err
	}
	r1, _, err := c.ctrl.Get(wire.FnAcquisitionBurstLen, 0, 0)
	return r1, err
}

// SetAcquisitionBurstLength sets the frames recorded per burst trigger.
func (c *Camera) SetAcquisitionBurstLength(frames int32) error {
	if err := c.require(FeatureTrigger, "triggering"); err != nil {
		return err
	}
	return c.ctrl.Set(wire.FnAcquisitionBurstLen, uint32(frames), 0)
}

// OutputTriggerMode returns the active output trigger mode.
func (c *Camera) OutputTriggerMode() (int32, error) {
	if err := c.require(FeatureTrigger, "triggering"); err != nil {
		return 0, err
	}
	r1, _, err := c.ctrl.Get(wire.FnOutputTriggerMode, 0, 0)
	return r1, err
}

// SetOutputTriggerMode selects the output trigger source.
func (c *Camera) SetOutputTriggerMode(mode int32) error {
	if err := c.require(FeatureTrigger, "triggering"); err != nil {
		return err
	}
	return c.ctrl.SetSlow(wire.FnOutputTriggerMode, uint32(mode), 0)
}

// InputTriggerPinMode returns the input trigger pin's electrical mode.
func (c *Camera) InputTriggerPinMode() (int32, error) {
	if err := c.require(FeatureTrigger, "triggering"); err != nil {
		return 0, err
	}
	r1, _, err := c.ctrl.Get(wire.FnInputTriggerPinMode, 0, 0)
	return r1, err
}

// SetInputTriggerPinMode sets the input pin mode. PinDifferential needs
// the corresponding capability bit.
func (c *Camera) SetInputTriggerPinMode(mode int32) error {
	if err := c.require(FeatureTrigger, "triggering"); err != nil {
		return err
	}
	if mode == PinDifferential {
		if err := c.require(FeatureDifferentialTrigger, "differential trigger pins"); err != nil {
			return err
		}
	}
	return c.ctrl.SetSlow(wire.FnInputTriggerPinMode, uint32(mode), 0)
}

// OutputTriggerPinMode returns the output trigger pin's electrical mode.
func (c *Camera) OutputTriggerPinMode() (int32, error) {
	if err := c.require(FeatureTrigger, "triggering"); err != nil {
		return 0, err
	}
	r1, _, err := c.ctrl.Get(wire.FnOutputTriggerPinMode, 0, 0)
	return r1, err
}

// SetOutputTriggerPinMode sets the output pin mode.
func (c *Camera) SetOutputTriggerPinMode(mode int32) error {
	if err := c.require(FeatureTrigger, "triggering"); err != nil {
		return err
	}
	if mode == PinDifferential {
		if err := c.require(FeatureDifferentialTrigger, "differential trigger pins"); err != nil {
			return err
		}
	}
	return c.ctrl.SetSlow(wire.FnOutputTriggerPinMode, uint32(mode), 0)
}
