// Package stream implements the long-lived streaming channel of the camera.
//
// A session owns one dedicated TCP connection: it sends the start-stream
// command, reads the one-time 32-byte header, then delivers fixed-length
// frame payloads sized by the caller. A read timeout is not a failure by
// itself — the device may simply have nothing to send — so stalls are
// disambiguated with a status probe over a fresh control connection.
//
// There is no automatic reconnect. Once a session is closed, the caller
// starts a new one.
package stream

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/e7canasta/hsi-sensor-driver/internal/wire"
)

// State of the session. Stalled is transient: the session returns to
// Streaming when the probe confirms the device is still sending.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateHeaderWait
	StateStreaming
	StateStalled
	StateClosed
)

// String returns a short name for logging.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateHeaderWait:
		return "header-wait"
	case StateStreaming:
		return "streaming"
	case StateStalled:
		return "stalled"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

var (
	// ErrClosed is returned once the session has been closed, by the
	// caller or by a failure path.
	ErrClosed = errors.New("stream: session closed")

	// ErrDeviceGone means the stall probe itself could not reach the
	// device. The session closes itself before returning it.
	ErrDeviceGone = errors.New("stream: device unreachable")

	// ErrNotStreaming means the device answered the probe but reports it
	// is no longer streaming. The session closes itself before returning it.
	ErrNotStreaming = errors.New("stream: device stopped streaming")

	// ErrHeaderTimeout is returned when a header deadline was configured
	// and expired. Without a deadline the header read retries forever.
	ErrHeaderTimeout = errors.New("stream: no header before deadline")
)

// StatusProber answers whether the device is alive and still streaming.
// The control client implements it.
type StatusProber interface {
	Status() (connected, streaming bool, err error)
}

// Config carries the session settings.
type Config struct {
	// Addr is the camera host:port. Required.
	Addr string
	// Prober is consulted when a frame read times out. Required.
	Prober StatusProber
	// ConnectTimeout bounds the stream connect (default 4s; deliberately
	// longer than the control transport's).
	ConnectTimeout time.Duration
	// ReadTimeout bounds each read attempt (default 1s).
	ReadTimeout time.Duration
	// HeaderDeadline bounds the total header wait. Zero keeps the
	// device's observed contract: retry indefinitely.
	HeaderDeadline time.Duration
	// Now is the clock used for the header deadline; nil means time.Now.
	Now func() time.Time
}

// Session is one streaming connection. Not safe for concurrent Receive
// calls; the capture loop is its only reader. Close may be called from any
// goroutine and is idempotent.
type Session struct {
	cfg  Config
	conn net.Conn

	state     atomic.Int32
	closeOnce sync.Once

	frames    atomic.Uint64
	stalls    atomic.Uint64
	bytesRead atomic.Uint64
	started   time.Time
	lastFrame atomic.Int64 // unix nanos, 0 until the first frame
}

// SessionStats is a snapshot of session counters.
type SessionStats struct {
	State      State
	FramesRead uint64
	Stalls     uint64
	BytesRead  uint64
	Uptime     time.Duration
	LastFrame  time.Time
}

// Dial opens the streaming connection and sends the start-stream command.
// No reply is expected on this channel; the next bytes are the header.
func Dial(cfg Config) (*Session, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("stream: addr is required")
	}
	if cfg.Prober == nil {
		return nil, fmt.Errorf("stream: prober is required")
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 4 * time.Second
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 1 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	s := &Session{cfg: cfg, started: time.Now()}
	s.state.Store(int32(StateConnecting))

	conn, err := net.DialTimeout("tcp", cfg.Addr, cfg.ConnectTimeout)
	if err != nil {
		s.state.Store(int32(StateClosed))
		return nil, fmt.Errorf("stream: connect %s: %w", cfg.Addr, err)
	}
	s.conn = conn

	cmd := wire.EncodeCommand(wire.Command{Mode: wire.ModeSet, Fn: wire.FnStartStreaming})
	if _, err := conn.Write(cmd); err != nil {
		conn.Close()
		s.state.Store(int32(StateClosed))
		return nil, fmt.Errorf("stream: start command: %w", err)
	}

	s.state.Store(int32(StateHeaderWait))
	slog.Debug("stream: session connected", "addr", cfg.Addr)
	return s, nil
}

// ReadHeader blocks until the one-time header arrives, retrying timed-out
// reads. With no HeaderDeadline it keeps trying until the session is
// closed; with one, it fails with ErrHeaderTimeout.
func (s *Session) ReadHeader() (spatial, spectral int, err error) {
	buf := make([]byte, wire.StreamHeaderLen)
	deadline := time.Time{}
	if s.cfg.HeaderDeadline > 0 {
		deadline = s.cfg.Now().Add(s.cfg.HeaderDeadline)
	}

	total := 0
	for total < len(buf) {
		if s.State() == StateClosed {
			return 0, 0, ErrClosed
		}
		s.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		n, rerr := s.conn.Read(buf[total:])
		total += n
		if rerr == nil {
			continue
		}
		if !isTimeout(rerr) {
			s.closeWith(rerr)
			return 0, 0, fmt.Errorf("stream: read header: %w", rerr)
		}
		if !deadline.IsZero() && s.cfg.Now().After(deadline) {
			s.closeWith(ErrHeaderTimeout)
			return 0, 0, ErrHeaderTimeout
		}
		slog.Debug("stream: header timeout, retrying")
	}

	spatial, spectral, err = wire.DecodeStreamHeader(buf)
	if err != nil {
		s.closeWith(err)
		return 0, 0, err
	}
	s.state.Store(int32(StateStreaming))
	slog.Debug("stream: header received", "spatial", spatial, "spectral", spectral)
	return spatial, spectral, nil
}

// Receive fills buf with exactly one frame payload. On a timed-out read it
// probes the device: a transient stall restarts the frame from scratch,
// anything else closes the session and surfaces ErrDeviceGone or
// ErrNotStreaming. Other I/O errors also close the session.
func (s *Session) Receive(buf []byte) error {
	for {
		if s.State() == StateClosed {
			return ErrClosed
		}

		err := s.readFull(buf)
		if err == nil {
			s.frames.Add(1)
			s.lastFrame.Store(time.Now().UnixNano())
			return nil
		}
		if s.State() == StateClosed {
			return ErrClosed
		}
		if !isTimeout(err) {
			s.closeWith(err)
			return fmt.Errorf("stream: read frame: %w", err)
		}

		// Stall: a timeout alone does not mean disconnection.
		s.stalls.Add(1)
		s.state.Store(int32(StateStalled))

		connected, streaming, perr := s.cfg.Prober.Status()
		if perr != nil {
			slog.Warn("stream: status probe failed, closing session", "error", perr)
			s.closeWith(ErrDeviceGone)
			return fmt.Errorf("%w: %v", ErrDeviceGone, perr)
		}
		if !streaming {
			slog.Warn("stream: device no longer streaming, closing session",
				"connected", connected)
			s.closeWith(ErrNotStreaming)
			return ErrNotStreaming
		}

		slog.Debug("stream: transient stall, device still streaming")
		s.state.Store(int32(StateStreaming))
		// Partial data is discarded; the next frame starts clean.
	}
}

// readFull accumulates partial reads until buf is full, one read deadline
// per attempt. A timeout mid-frame abandons the accumulated bytes.
func (s *Session) readFull(buf []byte) error {
	total := 0
	for total < len(buf) {
		s.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		n, err := s.conn.Read(buf[total:])
		total += n
		s.bytesRead.Add(uint64(n))
		if err != nil {
			return err
		}
	}
	return nil
}

// Close releases the streaming socket. Safe to call twice and from any
// goroutine; a Receive blocked in a read returns promptly.
func (s *Session) Close() error {
	s.closeWith(nil)
	return nil
}

func (s *Session) closeWith(cause error) {
	s.closeOnce.Do(func() {
		s.state.Store(int32(StateClosed))
		if s.conn != nil {
			s.conn.Close()
		}
		slog.Debug("stream: session closed",
			"cause", cause,
			"frames", s.frames.Load(),
			"stalls", s.stalls.Load(),
			"uptime", time.Since(s.started),
		)
	})
}

// State returns the current session state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Stats returns a snapshot of the session counters.
func (s *Session) Stats() SessionStats {
	var last time.Time
	if ns := s.lastFrame.Load(); ns != 0 {
		last = time.Unix(0, ns)
	}
	return SessionStats{
		State:      s.State(),
		FramesRead: s.frames.Load(),
		Stalls:     s.stalls.Load(),
		BytesRead:  s.bytesRead.Load(),
		Uptime:     time.Since(s.started),
		LastFrame:  last,
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
