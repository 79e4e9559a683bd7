// Package simcam serves the camera's wire protocol on a local listener:
// command/response on short-lived connections and the header-then-frames
// sequence on a streaming connection. The driver tests run against it, and
// cmd/hsi-simcam exposes it for manual testing without hardware.
//
// It is a protocol double, not a device model: replies come from a register
// table the caller can rewrite at runtime.
package simcam

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/e7canasta/hsi-sensor-driver/internal/wire"
)

// Config describes the simulated device.
type Config struct {
	// Listen is the address to serve on (default 127.0.0.1:0).
	Listen string
	// Info is the configuration block served on the config request.
	Info wire.DeviceInfo
	// Spatial and Spectral size the streamed frames and the header.
	Spatial, Spectral int
	// PixelFormat selects the streamed encoding.
	PixelFormat wire.PixelFormat
	// FrameInterval paces the stream (default 1ms).
	FrameInterval time.Duration
	// FrameCount stops the stream after N frames; 0 streams until closed.
	FrameCount int
	// HeaderDelay postpones the header after stream start.
	HeaderDelay time.Duration
	// ROILimits is served on the ROI limits request.
	ROILimits []wire.ROIRegion
	// Serial and Version are the raw device strings.
	Serial, Version string
	// FrameFn generates the sample grid for frame seq; nil uses a ramp.
	FrameFn func(seq uint64, samples []uint16)
}

// Device is a running simulator.
type Device struct {
	cfg Config

	ln net.Listener
	wg sync.WaitGroup

	mu     sync.Mutex
	regs   map[wire.Function][2]int32
	sets   []wire.Command
	closed bool
}

// New builds a simulator with usable defaults: one full-resolution mode,
// status reporting connected+streaming, live resolution matching the
// streamed frames.
func New(cfg Config) *Device {
	if cfg.Spatial == 0 {
		cfg.Spatial = 64
	}
	if cfg.Spectral == 0 {
		cfg.Spectral = 32
	}
	if cfg.FrameInterval == 0 {
		cfg.FrameInterval = time.Millisecond
	}
	if cfg.Info.Name == "" {
		cfg.Info = wire.DeviceInfo{
			Name: "simcam",
			Modes: []wire.ModeInfo{{
				Name:          "default",
				DeviceMode:    0,
				MaxValue:      1023,
				SpatialPixels: int32(cfg.Spatial),
				SpectralBands: int32(cfg.Spectral),
				SpectralMin:   900,
				SpectralMax:   1700,
				MaxFPS:        450,
			}},
		}
	}
	if cfg.Serial == "" {
		cfg.Serial = "SIM-0001"
	}
	if cfg.Version == "" {
		cfg.Version = "sim-fw-1.0"
	}

	d := &Device{
		cfg:  cfg,
		regs: make(map[wire.Function][2]int32),
	}
	d.regs[wire.FnStatus] = [2]int32{0b11, 0} // connected + streaming
	d.regs[wire.FnCurrentResolution] = [2]int32{int32(cfg.Spectral), int32(cfg.Spatial)}
	d.regs[wire.FnPixelFormat] = [2]int32{int32(cfg.PixelFormat), 0}
	d.regs[wire.FnMode] = [2]int32{cfg.Info.Modes[0].DeviceMode, 0}
	return d
}

// Start listens and serves until Close.
func (d *Device) Start() error {
	if d.cfg.Listen == "" {
		d.cfg.Listen = "127.0.0.1:0"
	}
	ln, err := net.Listen("tcp", d.cfg.Listen)
	if err != nil {
		return fmt.Errorf("simcam: listen: %w", err)
	}
	d.ln = ln

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			d.wg.Add(1)
			go func() {
				defer d.wg.Done()
				defer conn.Close()
				d.handle(conn)
			}()
		}
	}()

	slog.Debug("simcam: listening", "addr", ln.Addr().String())
	return nil
}

// Addr returns the host:port the simulator listens on.
func (d *Device) Addr() string {
	return d.ln.Addr().String()
}

// Close stops the listener and waits for in-flight connections.
func (d *Device) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	if d.ln != nil {
		d.ln.Close()
	}
	d.wg.Wait()
}

// SetRegister rewrites the reply for a GET function code.
func (d *Device) SetRegister(fn wire.Function, r1, r2 int32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.regs[fn] = [2]int32{r1, r2}
}

// SetCommands returns every SET command received so far, in order.
func (d *Device) SetCommands() []wire.Command {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]wire.Command, len(d.sets))
	copy(out, d.sets)
	return out
}

func (d *Device) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

func (d *Device) handle(conn net.Conn) {
	buf := make([]byte, wire.CommandLen)
	if _, err := readFull(conn, buf); err != nil {
		return
	}
	// Request and reply share the layout, so decoding the request as a
	// reply gives us the parsed fields.
	req, err := wire.DecodeReply(buf)
	if err != nil {
		return
	}

	if req.Mode == wire.ModeSet && req.Fn == wire.FnStartStreaming {
		d.stream(conn)
		return
	}

	if req.Mode == wire.ModeSet {
		d.mu.Lock()
		d.sets = append(d.sets, wire.Command{
			Mode: req.Mode, Fn: req.Fn, P1: uint32(req.R1), P2: uint32(req.R2),
		})
		// A pixel format write changes what the next stream sends.
		if req.Fn == wire.FnPixelFormat {
			d.cfg.PixelFormat = wire.PixelFormat(req.R1)
			d.regs[wire.FnPixelFormat] = [2]int32{req.R1, 0}
		}
		d.mu.Unlock()
		conn.Write(buf) // echo
		return
	}

	switch req.Fn {
	case wire.FnReceiveConfig:
		conn.Write(wire.EncodeDeviceInfo(d.cfg.Info))
		conn.Write(buf) // trailing echo reply
	case wire.FnSerialNumber:
		s := d.cfg.Serial
		if req.R1 == 1 {
			s = d.cfg.Version
		}
		out := make([]byte, wire.DeviceStringLen)
		copy(out, s)
		conn.Write(out)
	case wire.FnROILimits:
		conn.Write(wire.EncodeROILimits(d.cfg.ROILimits))
	default:
		d.mu.Lock()
		r := d.regs[req.Fn]
		d.mu.Unlock()
		rep := wire.EncodeCommand(wire.Command{
			Mode: req.Mode, Fn: req.Fn, P1: uint32(r[0]), P2: uint32(r[1]),
		})
		conn.Write(rep)
	}
}

func (d *Device) stream(conn net.Conn) {
	if d.cfg.HeaderDelay > 0 {
		time.Sleep(d.cfg.HeaderDelay)
	}

	hdr := make([]byte, wire.StreamHeaderLen)
	binary.LittleEndian.PutUint16(hdr[0:2], uint16(d.cfg.Spatial))
	binary.LittleEndian.PutUint16(hdr[2:4], uint16(d.cfg.Spectral))
	if _, err := conn.Write(hdr); err != nil {
		return
	}

	d.mu.Lock()
	format := d.cfg.PixelFormat
	d.mu.Unlock()

	samples := make([]uint16, d.cfg.Spatial*format.Columns(d.cfg.Spectral))
	for seq := uint64(0); d.cfg.FrameCount == 0 || seq < uint64(d.cfg.FrameCount); seq++ {
		if d.isClosed() {
			return
		}
		if d.cfg.FrameFn != nil {
			d.cfg.FrameFn(seq, samples)
		} else {
			for i := range samples {
				samples[i] = uint16((uint64(i) + seq) % 1024)
			}
		}
		payload, err := wire.EncodeSamples(samples, format, d.cfg.Spatial, d.cfg.Spectral)
		if err != nil {
			slog.Error("simcam: encode frame", "error", err)
			return
		}
		if _, err := conn.Write(payload); err != nil {
			return
		}
		time.Sleep(d.cfg.FrameInterval)
	}
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
