package stream

import (
	"encoding/binary"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/e7canasta/hsi-sensor-driver/internal/wire"
)

// fakeProber scripts the answers of the stall probe.
type fakeProber struct {
	mu      sync.Mutex
	answers []proberAnswer
	calls   int
}

type proberAnswer struct {
	connected, streaming bool
	err                  error
}

func (p *fakeProber) Status() (bool, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if len(p.answers) == 0 {
		return true, true, nil
	}
	a := p.answers[0]
	if len(p.answers) > 1 {
		p.answers = p.answers[1:]
	}
	return a.connected, a.streaming, a.err
}

func (p *fakeProber) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// fakeStreamer accepts one streaming connection, consumes the start
// command and then writes whatever the script function decides.
func fakeStreamer(t *testing.T, script func(conn net.Conn)) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		cmd := make([]byte, wire.CommandLen)
		for n := 0; n < len(cmd); {
			m, err := conn.Read(cmd[n:])
			if err != nil {
				return
			}
			n += m
		}
		script(conn)
	}()
	return ln.Addr().String()
}

func header(spatial, spectral int) []byte {
	h := make([]byte, wire.StreamHeaderLen)
	binary.LittleEndian.PutUint16(h[0:2], uint16(spatial))
	binary.LittleEndian.PutUint16(h[2:4], uint16(spectral))
	return h
}

func TestHeaderThenFrames(t *testing.T) {
	frame := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	addr := fakeStreamer(t, func(conn net.Conn) {
		conn.Write(header(2, 2))
		conn.Write(frame)
		time.Sleep(50 * time.Millisecond)
	})

	s, err := Dial(Config{Addr: addr, Prober: &fakeProber{}, ReadTimeout: 200 * time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if s.State() != StateHeaderWait {
		t.Fatalf("state after dial = %s, want header-wait", s.State())
	}

	spatial, spectral, err := s.ReadHeader()
	if err != nil {
		t.Fatal(err)
	}
	if spatial != 2 || spectral != 2 {
		t.Fatalf("header %dx%d, want 2x2", spatial, spectral)
	}
	if s.State() != StateStreaming {
		t.Fatalf("state after header = %s, want streaming", s.State())
	}

	buf := make([]byte, len(frame))
	if err := s.Receive(buf); err != nil {
		t.Fatal(err)
	}
	for i := range frame {
		if buf[i] != frame[i] {
			t.Fatalf("frame byte %d = %d, want %d", i, buf[i], frame[i])
		}
	}

	stats := s.Stats()
	if stats.FramesRead != 1 || stats.BytesRead < uint64(len(frame)) {
		t.Fatalf("stats %+v", stats)
	}
}

// TestHeaderRetriesOnTimeout verifies the header wait survives read
// timeouts when no deadline is configured.
func TestHeaderRetriesOnTimeout(t *testing.T) {
	addr := fakeStreamer(t, func(conn net.Conn) {
		time.Sleep(120 * time.Millisecond) // several read timeouts
		conn.Write(header(4, 8))
		time.Sleep(50 * time.Millisecond)
	})

	s, err := Dial(Config{Addr: addr, Prober: &fakeProber{}, ReadTimeout: 20 * time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	spatial, spectral, err := s.ReadHeader()
	if err != nil {
		t.Fatal(err)
	}
	if spatial != 4 || spectral != 8 {
		t.Fatalf("header %dx%d, want 4x8", spatial, spectral)
	}
}

// TestHeaderDeadline verifies the bounded-retry policy with an injected
// clock: the deadline expires without any wall-clock wait of its own.
func TestHeaderDeadline(t *testing.T) {
	addr := fakeStreamer(t, func(conn net.Conn) {
		time.Sleep(500 * time.Millisecond) // never send the header in time
	})

	now := time.Now()
	tick := 0
	s, err := Dial(Config{
		Addr:           addr,
		Prober:         &fakeProber{},
		ReadTimeout:    10 * time.Millisecond,
		HeaderDeadline: 1 * time.Second,
		Now: func() time.Time {
			// First call sets the deadline; afterwards jump past it.
			tick++
			if tick == 1 {
				return now
			}
			return now.Add(2 * time.Second)
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if _, _, err := s.ReadHeader(); !errors.Is(err, ErrHeaderTimeout) {
		t.Fatalf("got %v, want ErrHeaderTimeout", err)
	}
	if s.State() != StateClosed {
		t.Fatalf("state = %s, want closed", s.State())
	}
}

// TestTransientStall scripts the core stall scenario: the first frame read
// times out twice, the probe reports streaming both times, and the third
// attempt delivers the frame. The session must stay out of Closed.
func TestTransientStall(t *testing.T) {
	frame := []byte{9, 9, 9, 9}
	addr := fakeStreamer(t, func(conn net.Conn) {
		conn.Write(header(2, 1))
		time.Sleep(130 * time.Millisecond) // two read timeouts worth of silence
		conn.Write(frame)
		time.Sleep(50 * time.Millisecond)
	})

	prober := &fakeProber{}
	s, err := Dial(Config{Addr: addr, Prober: prober, ReadTimeout: 50 * time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if _, _, err := s.ReadHeader(); err != nil {
		t.Fatal(err)
	}

	buf := make([]byte, len(frame))
	if err := s.Receive(buf); err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if s.State() != StateStreaming {
		t.Fatalf("state = %s, want streaming", s.State())
	}
	if prober.callCount() < 1 {
		t.Fatal("probe never consulted during stall")
	}
	if s.Stats().Stalls == 0 {
		t.Fatal("stall not counted")
	}
}

// TestProbeReportsStopped: the device answers the probe but is no longer
// streaming; the session must close.
func TestProbeReportsStopped(t *testing.T) {
	addr := fakeStreamer(t, func(conn net.Conn) {
		conn.Write(header(2, 1))
		time.Sleep(300 * time.Millisecond) // silence forever
	})

	prober := &fakeProber{answers: []proberAnswer{{connected: true, streaming: false}}}
	s, err := Dial(Config{Addr: addr, Prober: prober, ReadTimeout: 30 * time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if _, _, err := s.ReadHeader(); err != nil {
		t.Fatal(err)
	}

	buf := make([]byte, 4)
	if err := s.Receive(buf); !errors.Is(err, ErrNotStreaming) {
		t.Fatalf("got %v, want ErrNotStreaming", err)
	}
	if s.State() != StateClosed {
		t.Fatalf("state = %s, want closed", s.State())
	}
}

// TestProbeUnreachable: the probe itself fails; the session must close
// with ErrDeviceGone and a further Receive must return ErrClosed, not hang.
func TestProbeUnreachable(t *testing.T) {
	addr := fakeStreamer(t, func(conn net.Conn) {
		conn.Write(header(2, 1))
		time.Sleep(300 * time.Millisecond)
	})

	prober := &fakeProber{answers: []proberAnswer{{err: errors.New("connect refused")}}}
	s, err := Dial(Config{Addr: addr, Prober: prober, ReadTimeout: 30 * time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if _, _, err := s.ReadHeader(); err != nil {
		t.Fatal(err)
	}

	buf := make([]byte, 4)
	if err := s.Receive(buf); !errors.Is(err, ErrDeviceGone) {
		t.Fatalf("got %v, want ErrDeviceGone", err)
	}

	done := make(chan error, 1)
	go func() { done <- s.Receive(buf) }()
	select {
	case err := <-done:
		if !errors.Is(err, ErrClosed) {
			t.Fatalf("got %v, want ErrClosed", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Receive on closed session hung")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	addr := fakeStreamer(t, func(conn net.Conn) {
		conn.Write(header(2, 1))
		time.Sleep(100 * time.Millisecond)
	})

	s, err := Dial(Config{Addr: addr, Prober: &fakeProber{}})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if s.State() != StateClosed {
		t.Fatalf("state = %s, want closed", s.State())
	}
}

// TestCloseUnblocksReceive checks the cooperative-stop latency contract:
// closing from another goroutine frees a blocked Receive within roughly
// one read timeout.
func TestCloseUnblocksReceive(t *testing.T) {
	addr := fakeStreamer(t, func(conn net.Conn) {
		conn.Write(header(2, 1))
		time.Sleep(2 * time.Second)
	})

	s, err := Dial(Config{Addr: addr, Prober: &fakeProber{}, ReadTimeout: 5 * time.Second})
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := s.ReadHeader(); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() { done <- s.Receive(make([]byte, 4)) }()

	time.Sleep(20 * time.Millisecond)
	s.Close()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("Receive returned nil after Close")
		}
	case <-time.After(time.Second):
		t.Fatal("Receive did not unblock after Close")
	}
}
