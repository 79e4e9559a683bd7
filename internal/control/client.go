// Package control implements the command/response channel of the camera.
//
// Every call opens a fresh TCP connection, writes one 12-byte command frame,
// reads the fixed-size reply and closes. There is no pooling: calls are
// independent, self-closing, and safe to issue from the caller's goroutine
// while a streaming session is running on its own connection.
//
// A failed call means the device state must be treated as unchanged; the
// client never retries on its own.
package control

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/e7canasta/hsi-sensor-driver/internal/wire"
)

// DefaultPort is the camera's fixed TCP control/streaming port.
const DefaultPort = 7892

const (
	// defaultGetTimeout bounds connect+reply for queries.
	defaultGetTimeout = 1 * time.Second
	// defaultSetTimeout bounds writes; no payload beyond the echo comes back.
	defaultSetTimeout = 200 * time.Millisecond
	// SlowSetTimeout is used for commands the firmware applies before
	// echoing: mode, pixel format, trigger mode, binning, ROI commits.
	SlowSetTimeout = 2 * time.Second
)

var (
	// ErrUnavailable is returned when the device cannot be reached or does
	// not answer within the deadline. Set commands must not be assumed to
	// have taken effect.
	ErrUnavailable = errors.New("control: device unavailable")
)

// Config carries the transport settings.
type Config struct {
	// Host is the camera address, IP or name. Required.
	Host string
	// Port overrides the control port (default 7892).
	Port int
	// GetTimeout bounds query calls (default 1s).
	GetTimeout time.Duration
	// SetTimeout bounds plain set calls (default 200ms).
	SetTimeout time.Duration
}

// Client issues commands over short-lived control connections.
type Client struct {
	addr       string
	getTimeout time.Duration
	setTimeout time.Duration
}

// NewClient validates cfg and builds a client. No connection is made here;
// use Ping to probe reachability.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("control: host is required")
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.GetTimeout == 0 {
		cfg.GetTimeout = defaultGetTimeout
	}
	if cfg.SetTimeout == 0 {
		cfg.SetTimeout = defaultSetTimeout
	}
	return &Client{
		addr:       net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", cfg.Port)),
		getTimeout: cfg.GetTimeout,
		setTimeout: cfg.SetTimeout,
	}, nil
}

// Addr returns the host:port the client talks to. The streaming session
// dials the same address.
func (c *Client) Addr() string {
	return c.addr
}

func (c *Client) dial(timeout time.Duration) (net.Conn, error) {
	conn, err := net.DialTimeout("tcp", c.addr, timeout)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return conn, nil
}

// Ping opens and closes a control connection without sending anything.
func (c *Client) Ping() error {
	conn, err := c.dial(c.getTimeout)
	if err != nil {
		return err
	}
	return conn.Close()
}

// Get issues a query and returns both signed result fields. Their meaning
// is function-code specific.
func (c *Client) Get(fn wire.Function, p1, p2 uint32) (r1, r2 int32, err error) {
	rep, err := c.exec(wire.ModeGet, fn, p1, p2, c.getTimeout)
	if err != nil {
		return 0, 0, err
	}
	return rep.R1, rep.R2, nil
}

// Set issues a write with the short default deadline.
func (c *Client) Set(fn wire.Function, p1, p2 uint32) error {
	_, err := c.exec(wire.ModeSet, fn, p1, p2, c.setTimeout)
	return err
}

// SetSlow issues a write with the long deadline for commands the firmware
// applies synchronously.
func (c *Client) SetSlow(fn wire.Function, p1, p2 uint32) error {
	_, err := c.exec(wire.ModeSet, fn, p1, p2, SlowSetTimeout)
	return err
}

func (c *Client) exec(mode uint8, fn wire.Function, p1, p2 uint32, timeout time.Duration) (wire.Reply, error) {
	conn, err := c.dial(timeout)
	if err != nil {
		return wire.Reply{}, err
	}
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(timeout))

	if _, err := conn.Write(wire.EncodeCommand(wire.Command{Mode: mode, Fn: fn, P1: p1, P2: p2})); err != nil {
		return wire.Reply{}, fmt.Errorf("%w: write fn %d: %v", ErrUnavailable, fn, err)
	}

	buf := make([]byte, wire.CommandLen)
	if _, err := io.ReadFull(conn, buf); err != nil {
		return wire.Reply{}, fmt.Errorf("%w: read reply fn %d: %v", ErrUnavailable, fn, err)
	}
	rep, err := wire.DecodeReply(buf)
	if err != nil {
		return wire.Reply{}, err
	}

	slog.Debug("control: command completed",
		"fn", int16(fn),
		"mode", mode,
		"r1", rep.R1,
		"r2", rep.R2,
	)
	return rep, nil
}

// getRaw issues a query whose answer is a raw byte block instead of the
// echo reply (serial number, ROI limits).
func (c *Client) getRaw(fn wire.Function, p1, p2 uint32, size int) ([]byte, error) {
	conn, err := c.dial(c.getTimeout)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(c.getTimeout))

	if _, err := conn.Write(wire.EncodeCommand(wire.Command{Mode: wire.ModeGet, Fn: fn, P1: p1, P2: p2})); err != nil {
		return nil, fmt.Errorf("%w: write fn %d: %v", ErrUnavailable, fn, err)
	}
	buf := make([]byte, size)
	if _, err := io.ReadFull(conn, buf); err != nil {
		return nil, fmt.Errorf("%w: read %d bytes fn %d: %v", ErrUnavailable, size, fn, err)
	}
	return buf, nil
}

// Status reports the device's liveness bits. The streaming session uses
// this as its stall probe.
func (c *Client) Status() (connected, streaming bool, err error) {
	r1, _, err := c.Get(wire.FnStatus, 0, 0)
	if err != nil {
		return false, false, err
	}
	return r1&0b1 != 0, r1&0b10 != 0, nil
}

// ReadDeviceInfo fetches and parses the configuration block: header first,
// then exactly the announced number of mode records, then the trailing echo
// reply the device sends before closing.
func (c *Client) ReadDeviceInfo() (wire.DeviceInfo, error) {
	conn, err := c.dial(c.getTimeout)
	if err != nil {
		return wire.DeviceInfo{}, err
	}
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(c.getTimeout))

	if _, err := conn.Write(wire.EncodeCommand(wire.Command{Mode: wire.ModeGet, Fn: wire.FnReceiveConfig})); err != nil {
		return wire.DeviceInfo{}, fmt.Errorf("%w: write config request: %v", ErrUnavailable, err)
	}

	hdr := make([]byte, wire.ConfigHeaderLen)
	if _, err := io.ReadFull(conn, hdr); err != nil {
		return wire.DeviceInfo{}, fmt.Errorf("%w: read config header: %v", ErrUnavailable, err)
	}
	name, count, err := wire.DecodeConfigHeader(hdr)
	if err != nil {
		return wire.DeviceInfo{}, err
	}

	info := wire.DeviceInfo{Name: name, Modes: make([]wire.ModeInfo, 0, count)}
	rec := make([]byte, wire.ModeRecordLen)
	for i := 0; i < count; i++ {
		if _, err := io.ReadFull(conn, rec); err != nil {
			return wire.DeviceInfo{}, fmt.Errorf("%w: read mode record %d: %v", ErrUnavailable, i, err)
		}
		mode, err := wire.DecodeModeRecord(rec)
		if err != nil {
			return wire.DeviceInfo{}, err
		}
		info.Modes = append(info.Modes, mode)
	}

	// Trailing echo reply; content is not meaningful.
	tail := make([]byte, wire.CommandLen)
	if _, err := io.ReadFull(conn, tail); err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, os.ErrDeadlineExceeded) {
		return wire.DeviceInfo{}, fmt.Errorf("%w: read config trailer: %v", ErrUnavailable, err)
	}

	slog.Debug("control: device info read", "device", info.Name, "modes", len(info.Modes))
	return info, nil
}

// ReadROILimits fetches and parses the fixed ROI limits block.
func (c *Client) ReadROILimits() ([]wire.ROIRegion, error) {
	buf, err := c.getRaw(wire.FnROILimits, 0, 0, wire.ROIRecordLen*wire.MaxROIRegions)
	if err != nil {
		return nil, err
	}
	return wire.DecodeROILimits(buf)
}

// SerialNumber returns the device serial string.
func (c *Client) SerialNumber() (string, error) {
	buf, err := c.getRaw(wire.FnSerialNumber, 0, 0, wire.DeviceStringLen)
	if err != nil {
		return "", err
	}
	return wire.DecodeDeviceString(buf), nil
}

// FirmwareVersion returns the firmware version string (same function code
// as the serial number, selected by the first parameter).
func (c *Client) FirmwareVersion() (string, error) {
	buf, err := c.getRaw(wire.FnSerialNumber, 1, 0, wire.DeviceStringLen)
	if err != nil {
		return "", err
	}
	return wire.DecodeDeviceString(buf), nil
}
