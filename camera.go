// Package hsicamera drives a networked hyperspectral line-scan camera:
// parameter control over short-lived command connections, frame capture
// over a dedicated streaming connection, and a two-deep hand-off buffer
// that always favors the freshest frame.
//
// A Camera is built with Connect, which reads the device's configuration
// block and capability bits. Parameter accessors are safe to call at any
// time, including while streaming. One capture loop may run at a time.
package hsicamera

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/e7canasta/hsi-sensor-driver/internal/control"
	"github.com/e7canasta/hsi-sensor-driver/internal/stream"
	"github.com/e7canasta/hsi-sensor-driver/internal/wire"
)

var (
	// ErrAlreadyStreaming is returned by StartStream while a capture loop
	// is still running.
	ErrAlreadyStreaming = errors.New("hsicamera: stream already running")

	// ErrUnsupported marks operations the connected device's capability
	// bits exclude.
	ErrUnsupported = errors.New("hsicamera: not supported by device")
)

// Camera is a connected device. All methods are safe for concurrent use.
type Camera struct {
	ctrl *control.Client
	cfg  CameraConfig

	modes    *ModeTable
	features Features

	mu          sync.RWMutex
	modeIndex   int
	pixelFormat PixelFormat

	streamMu sync.Mutex // guards the stream lifecycle fields below
	cancel   context.CancelFunc
	done     chan struct{}

	session   atomic.Pointer[stream.Session]
	buf       handoffBuffer
	seq       atomic.Uint64
	decoded   atomic.Uint64
	streaming atomic.Bool
}

// Connect reaches the device, reads its configuration block and
// capability bits, and returns a ready Camera. No streaming starts here.
func Connect(cfg CameraConfig) (*Camera, error) {
	ctrl, err := control.NewClient(control.Config{
		Host:       cfg.Host,
		Port:       cfg.Port,
		GetTimeout: msDuration(cfg.GetTimeoutMS),
		SetTimeout: msDuration(cfg.SetTimeoutMS),
	})
	if err != nil {
		return nil, err
	}

	info, err := ctrl.ReadDeviceInfo()
	if err != nil {
		return nil, fmt.Errorf("hsicamera: read device config: %w", err)
	}
	modes := newModeTable(info)
	if modes.Len() == 0 {
		return nil, fmt.Errorf("hsicamera: device %q reports no acquisition modes", info.Name)
	}

	featBits, _, err := ctrl.Get(wire.FnFeatureSupport, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("hsicamera: read feature bits: %w", err)
	}
	pf, _, err := ctrl.Get(wire.FnPixelFormat, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("hsicamera: read pixel format: %w", err)
	}
	deviceMode, _, err := ctrl.Get(wire.FnMode, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("hsicamera: read mode: %w", err)
	}
	modeIndex, known := modes.indexByDeviceMode(deviceMode)
	if !known {
		slog.Warn("hsicamera: device reports unknown mode, assuming first",
			"device_mode", deviceMode)
	}

	c := &Camera{
		ctrl:        ctrl,
		cfg:         cfg,
		modes:       modes,
		features:    Features(featBits),
		modeIndex:   modeIndex,
		pixelFormat: PixelFormat(pf),
	}
	slog.Info("hsicamera: connected",
		"device", modes.DeviceName(),
		"addr", ctrl.Addr(),
		"modes", modes.Len(),
		"features", fmt.Sprintf("0x%04x", featBits),
		"pixel_format", c.pixelFormat.String(),
	)
	return c, nil
}

// DeviceName returns the name from the device's configuration block.
func (c *Camera) DeviceName() string { return c.modes.DeviceName() }

// Features returns the device capability bits read at connect time.
func (c *Camera) Features() Features { return c.features }

// Modes returns a copy of the acquisition mode table. The manual-ROI
// mode's band count reflects the most recent region read or write.
func (c *Camera) Modes() []ModeInfo { return c.modes.Modes() }

// ManualROIModeIndex returns the table index of the manual-ROI mode, or -1
// when the device has none.
func (c *Camera) ManualROIModeIndex() int { return c.modes.ManualROIIndex() }

// SerialNumber queries the device serial string.
func (c *Camera) SerialNumber() (string, error) { return c.ctrl.SerialNumber() }

// FirmwareVersion queries the device firmware string.
func (c *Camera) FirmwareVersion() (string, error) { return c.ctrl.FirmwareVersion() }

// Status reports the device's connected and streaming bits.
func (c *Camera) Status() (connected, streaming bool, err error) {
	return c.ctrl.Status()
}

// StartStream opens the streaming connection, sends the start command and
// spawns the capture loop. Frame geometry is fixed here: the live
// resolution is queried first, with the mode table as fallback when the
// device has not refreshed it yet. The ctx cancels the loop.
func (c *Camera) StartStream(ctx context.Context) error {
	c.streamMu.Lock()
	defer c.streamMu.Unlock()
	if c.streaming.Load() {
		return ErrAlreadyStreaming
	}
	if c.done != nil {
		// Previous loop exited on its own; reap it. Its context must
		// still be cancelled or the watcher goroutine outlives the loop.
		if c.cancel != nil {
			c.cancel()
			c.cancel = nil
		}
		<-c.done
		c.done = nil
	}

	spatial, spectral, err := c.streamGeometry()
	if err != nil {
		return err
	}
	c.mu.RLock()
	format := c.pixelFormat
	c.mu.RUnlock()
	frameLen, err := wire.FrameLen(format, spatial, spectral)
	if err != nil {
		return err
	}

	sess, err := stream.Dial(stream.Config{
		Addr:           c.ctrl.Addr(),
		Prober:         c.ctrl,
		ConnectTimeout: msDuration(c.cfg.ConnectTimeoutMS),
		ReadTimeout:    msDuration(c.cfg.ReadTimeoutMS),
		HeaderDeadline: msDuration(c.cfg.HeaderDeadlineMS),
	})
	if err != nil {
		return err
	}
	c.session.Store(sess)

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	c.cancel = cancel
	c.done = done
	c.buf.reset()
	c.seq.Store(0)
	c.decoded.Store(0)
	c.streaming.Store(true)

	slog.Info("hsicamera: stream starting",
		"spatial", spatial, "spectral", spectral,
		"format", format.String(), "frame_bytes", frameLen)
	go c.captureLoop(loopCtx, done, sess, format, spatial, spectral, frameLen)
	return nil
}

// streamGeometry resolves the frame dimensions for the current mode.
func (c *Camera) streamGeometry() (spatial, spectral int, err error) {
	c.mu.RLock()
	idx := c.modeIndex
	c.mu.RUnlock()
	mode, ok := c.modes.Mode(idx)
	if !ok {
		return 0, 0, fmt.Errorf("hsicamera: mode index %d out of range", idx)
	}

	r1, r2, err := c.ctrl.Get(wire.FnCurrentResolution, uint32(mode.DeviceMode), 0)
	if err != nil {
		return 0, 0, fmt.Errorf("hsicamera: query resolution: %w", err)
	}
	spectral, spatial = int(r1), int(r2)
	if spatial == 0 || spectral == 0 {
		// Seen right after a mode switch before the device refreshes the
		// live values.
		slog.Warn("hsicamera: live resolution unset, using mode table",
			"mode", mode.Name)
		spatial, spectral = int(mode.SpatialPixels), int(mode.SpectralBands)
	}
	if spatial <= 0 || spectral <= 0 {
		return 0, 0, fmt.Errorf("hsicamera: unusable resolution %dx%d for mode %q",
			spatial, spectral, mode.Name)
	}
	return spatial, spectral, nil
}

func (c *Camera) captureLoop(ctx context.Context, done chan struct{}, sess *stream.Session, format PixelFormat, spatial, spectral, frameLen int) {
	defer close(done)
	defer c.streaming.Store(false)
	defer sess.Close()

	// A blocked read must notice cancellation.
	go func() {
		<-ctx.Done()
		sess.Close()
	}()

	hdrSpatial, hdrSpectral, err := sess.ReadHeader()
	if err != nil {
		if ctx.Err() != nil {
			slog.Info("hsicamera: stream stopped while waiting for header")
		} else {
			slog.Error("hsicamera: stream header", "error", err)
		}
		return
	}
	if hdrSpatial != spatial || hdrSpectral != spectral {
		// The negotiated geometry wins; the header is advisory.
		slog.Warn("hsicamera: header disagrees with negotiated geometry",
			"header_spatial", hdrSpatial, "header_spectral", hdrSpectral,
			"spatial", spatial, "spectral", spectral)
	}

	payload := make([]byte, frameLen)
	for {
		if ctx.Err() != nil {
			slog.Info("hsicamera: capture stopped", "frames", c.decoded.Load())
			return
		}
		if err := sess.Receive(payload); err != nil {
			if ctx.Err() != nil || errors.Is(err, stream.ErrClosed) {
				slog.Info("hsicamera: capture stopped", "frames", c.decoded.Load())
			} else {
				slog.Error("hsicamera: capture loop ended", "error", err,
					"frames", c.decoded.Load())
			}
			return
		}

		samples, err := wire.DecodeSamples(payload, format, spatial, spectral)
		if err != nil {
			slog.Error("hsicamera: decode frame", "error", err)
			return
		}
		c.buf.put(&Frame{
			Seq:           c.seq.Add(1),
			Timestamp:     time.Now(),
			TraceID:       uuid.NewString(),
			SpatialPixels: spatial,
			Bands:         format.Columns(spectral),
			Format:        format,
			Samples:       samples,
		})
		c.decoded.Add(1)
	}
}

// StopStream cancels the capture loop and waits for it to exit. Safe to
// call when no stream is running.
func (c *Camera) StopStream() {
	c.streamMu.Lock()
	defer c.streamMu.Unlock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	if c.done != nil {
		<-c.done
		c.done = nil
	}
}

// Streaming reports whether the capture loop is running.
func (c *Camera) Streaming() bool { return c.streaming.Load() }

// LatestFrame removes and returns the newest buffered frame, if any.
func (c *Camera) LatestFrame() (*Frame, bool) { return c.buf.takeLatest() }

// Stats snapshots the capture pipeline counters.
func (c *Camera) Stats() Stats {
	st := Stats{
		Streaming:     c.streaming.Load(),
		FramesDecoded: c.decoded.Load(),
		FramesEvicted: c.buf.evictions(),
	}
	if sess := c.session.Load(); sess != nil {
		ss := sess.Stats()
		st.Stalls = ss.Stalls
		st.BytesRead = ss.BytesRead
		st.LastFrameAt = ss.LastFrame
		if ss.Uptime > 0 {
			st.FPSReal = float64(ss.FramesRead) / ss.Uptime.Seconds()
		}
	}
	return st
}

// Close stops any running stream. The control channel holds no persistent
// connection, so there is nothing else to release.
func (c *Camera) Close() error {
	c.StopStream()
	return nil
}

func msDuration(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
