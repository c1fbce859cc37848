package main

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kstaniek/go-drive-bridge/internal/bridge"
	"github.com/kstaniek/go-drive-bridge/internal/can"
	"github.com/kstaniek/go-drive-bridge/internal/layout"
	"github.com/kstaniek/go-drive-bridge/internal/logging"
	"github.com/kstaniek/go-drive-bridge/internal/metrics"
	"github.com/kstaniek/go-drive-bridge/internal/serial"
	"github.com/kstaniek/go-drive-bridge/internal/socketcan"
)

// fakeSerialPort implements serial.Port for tests.
type fakeSerialPort struct {
	reads [][]byte
	idx   int
	mu    sync.Mutex
}

func (f *fakeSerialPort) Read(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.idx >= len(f.reads) {
		// after delivering all data, block briefly then return EOF repeatedly
		time.Sleep(10 * time.Millisecond)
		return 0, io.EOF
	}
	chunk := f.reads[f.idx]
	f.idx++
	n := copy(p, chunk)
	return n, nil
}
func (f *fakeSerialPort) Write(p []byte) (int, error) { return len(p), nil }
func (f *fakeSerialPort) Close() error                { return nil }

func testConfig(backend string) *appConfig {
	c := defaultConfig()
	c.backend = backend
	c.serialDev = "fake"
	c.canIf = "vcan0"
	c.serialReadTO = 10 * time.Millisecond
	c.openAttempts = 1
	c.openDelay = time.Millisecond
	return c
}

// serTestWireEnvelope replicates the unexported serial RX framing for tests.
func serTestWireEnvelope(fr can.Frame) []byte {
	data := []byte{byte(fr.ID >> 24), byte(fr.ID >> 16), byte(fr.ID >> 8), byte(fr.ID)}
	data = append(data, fr.Data[:fr.Len]...)
	n := len(data)
	out := make([]byte, n+4)
	out[0] = 0x2D
	out[1] = 0xD4
	out[2] = byte(n + 1)
	sum := out[2] + 0x2D
	for i, b := range data {
		out[3+i] = b
		sum += b
	}
	out[3+n] = sum
	return out
}

// waitForSample polls the bridge until a sample of kind k shows up.
func waitForSample(t *testing.T, br *bridge.Bridge, k layout.Kind) bridge.Sample {
	t.Helper()
	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		if s, ok := br.Latest()[k]; ok {
			return s
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %s sample", k)
	return bridge.Sample{}
}

// TestInitSerialBackendBasic checks that a frame read from the UART is
// decoded into a command on the bridge and that serial RX is counted.
func TestInitSerialBackendBasic(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	want := layout.BusStateCmd{BusCurrent: 12.5, BusVoltage: 100}
	enc := serTestWireEnvelope(layout.Encode(want))
	openSerialPort = func(name string, baud int, to time.Duration) (serial.Port, error) {
		return &fakeSerialPort{reads: [][]byte{enc[:5], enc[5:]}}, nil
	}
	defer func() { openSerialPort = serial.Open }()

	before := metrics.Snap().Rx
	br := bridge.New(nil, bridge.WithLogger(logging.Discard()))
	var g errgroup.Group
	sink, cleanup, err := initSerialBackend(ctx, testConfig("serial"), br, logging.Discard(), &g)
	if err != nil {
		t.Fatalf("initSerialBackend: %v", err)
	}

	s := waitForSample(t, br, layout.KindBusState)
	if s.Command != want {
		t.Fatalf("decoded %+v want %+v", s.Command, want)
	}
	if err := sink.SendFrame(layout.Encode(layout.DriveCmd{Current: 1})); err != nil {
		t.Fatalf("send frame: %v", err)
	}
	if metrics.Snap().Rx <= before {
		t.Fatalf("expected rx counter increment")
	}
	cancel()
	cleanup()
	if err := g.Wait(); err != nil {
		t.Fatalf("rx loop: %v", err)
	}
}

func TestInitSerialBackendOpenRetries(t *testing.T) {
	calls := 0
	openSerialPort = func(name string, baud int, to time.Duration) (serial.Port, error) {
		calls++
		if calls < 2 {
			return nil, errors.New("busy")
		}
		return &fakeSerialPort{}, nil
	}
	defer func() { openSerialPort = serial.Open }()

	ctx, cancel := context.WithCancel(context.Background())
	cfg := testConfig("serial")
	cfg.openAttempts = 3
	var g errgroup.Group
	_, cleanup, err := initSerialBackend(ctx, cfg, bridge.New(nil), logging.Discard(), &g)
	if err != nil {
		t.Fatalf("initSerialBackend: %v", err)
	}
	if calls != 2 {
		t.Fatalf("open calls %d want 2", calls)
	}
	cancel()
	cleanup()
	_ = g.Wait()
}

func TestInitSerialBackendOpenFails(t *testing.T) {
	errBusy := errors.New("busy")
	openSerialPort = func(string, int, time.Duration) (serial.Port, error) { return nil, errBusy }
	defer func() { openSerialPort = serial.Open }()
	var g errgroup.Group
	_, _, err := initSerialBackend(context.Background(), testConfig("serial"), bridge.New(nil), logging.Discard(), &g)
	if !errors.Is(err, errBusy) {
		t.Fatalf("expected wrapped open error, got %v", err)
	}
}

func TestInitBackendUnknown(t *testing.T) {
	var g errgroup.Group
	if _, _, err := initBackend(context.Background(), testConfig("carrier-pigeon"), bridge.New(nil), logging.Discard(), &g); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
}

// ---- SocketCAN backend test ----

type fakeSocketDev struct {
	mu       sync.Mutex
	reads    []error // per read: nil delivers the next frame
	frames   []can.Frame
	written  []can.Frame
	idx, fdx int
}

func (d *fakeSocketDev) ReadFrame(fr *can.Frame) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.idx < len(d.reads) {
		err := d.reads[d.idx]
		d.idx++
		if err != nil {
			return err
		}
		*fr = d.frames[d.fdx]
		d.fdx++
		return nil
	}
	time.Sleep(10 * time.Millisecond)
	return io.EOF
}

func (d *fakeSocketDev) WriteFrame(fr can.Frame) error {
	d.mu.Lock()
	d.written = append(d.written, fr)
	d.mu.Unlock()
	return nil
}
func (d *fakeSocketDev) Close() error { return nil }

func TestInitSocketCANBackendBasic(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	want := layout.MotorVelCmd{CarVelocity: 20, MotorVelocity: 650}
	dev := &fakeSocketDev{
		reads:  []error{socketcan.ErrErrorFrame, nil},
		frames: []can.Frame{layout.Encode(want)},
	}
	openSocketCANDevice = func(iface string) (socketcan.Dev, error) { return dev, nil }
	var linkUp string
	setCANLinkUp = func(iface string) error { linkUp = iface; return nil }
	defer func() {
		openSocketCANDevice = func(iface string) (socketcan.Dev, error) { return socketcan.Open(iface) }
		setCANLinkUp = socketcan.SetLinkUp
	}()
	sleepFn = func(time.Duration) {}
	defer func() { sleepFn = time.Sleep }()

	before := metrics.Snap()
	br := bridge.New(nil, bridge.WithLogger(logging.Discard()))
	cfg := testConfig("socketcan")
	cfg.canLinkUp = true
	var g errgroup.Group
	sink, cleanup, err := initSocketCANBackend(ctx, cfg, br, logging.Discard(), &g)
	if err != nil {
		t.Fatalf("initSocketCANBackend: %v", err)
	}
	if linkUp != "vcan0" {
		t.Fatalf("link up not requested, got %q", linkUp)
	}

	s := waitForSample(t, br, layout.KindMotorVelocity)
	if s.Command != want {
		t.Fatalf("decoded %+v", s.Command)
	}
	out := layout.Encode(layout.DriveCmd{Velocity: 10, Current: 0.5})
	if err := sink.SendFrame(out); err != nil {
		t.Fatalf("send frame: %v", err)
	}
	// Allow the EOF read error path to trigger once.
	time.Sleep(30 * time.Millisecond)
	cancel()
	cleanup()
	_ = g.Wait()

	after := metrics.Snap()
	if after.Rx <= before.Rx {
		t.Fatalf("expected rx increment")
	}
	if after.Malformed <= before.Malformed {
		t.Fatalf("expected error frame counted as malformed")
	}
	if after.Errors <= before.Errors {
		t.Fatalf("expected at least one read error increment")
	}
	dev.mu.Lock()
	defer dev.mu.Unlock()
	if len(dev.written) != 1 || dev.written[0] != out {
		t.Fatalf("written %v", dev.written)
	}
}

func TestInitSocketCANBackendLinkUpFails(t *testing.T) {
	setCANLinkUp = func(string) error { return errors.New("operation not permitted") }
	defer func() { setCANLinkUp = socketcan.SetLinkUp }()
	cfg := testConfig("socketcan")
	cfg.canLinkUp = true
	var g errgroup.Group
	if _, _, err := initSocketCANBackend(context.Background(), cfg, bridge.New(nil), logging.Discard(), &g); err == nil {
		t.Fatalf("expected link up error")
	}
}

// idleSocketDev reports a read timeout on every read, like a quiet bus.
type idleSocketDev struct{ reads readCounter }

type readCounter struct {
	mu sync.Mutex
	n  int
}

func (c *readCounter) inc() { c.mu.Lock(); c.n++; c.mu.Unlock() }
func (c *readCounter) get() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

func (d *idleSocketDev) ReadFrame(*can.Frame) error {
	d.reads.inc()
	time.Sleep(time.Millisecond)
	return socketcan.ErrReadTimeout
}
func (d *idleSocketDev) WriteFrame(can.Frame) error { return nil }
func (d *idleSocketDev) Close() error               { return nil }

// An idle bus must neither count errors nor keep the run group from exiting.
func TestSocketCANBackendIdleShutdown(t *testing.T) {
	dev := &idleSocketDev{}
	openSocketCANDevice = func(string) (socketcan.Dev, error) { return dev, nil }
	defer func() {
		openSocketCANDevice = func(iface string) (socketcan.Dev, error) { return socketcan.Open(iface) }
	}()
	sleepFn = func(time.Duration) { t.Errorf("timeout must not back off") }
	defer func() { sleepFn = time.Sleep }()

	ctx, cancel := context.WithCancel(context.Background())
	before := metrics.Snap().Errors
	var g errgroup.Group
	_, cleanup, err := initSocketCANBackend(ctx, testConfig("socketcan"), bridge.New(nil), logging.Discard(), &g)
	if err != nil {
		t.Fatalf("initSocketCANBackend: %v", err)
	}
	for dev.reads.get() < 5 {
		time.Sleep(time.Millisecond)
	}
	cancel()
	cleanup()

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("rx loop: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("rx loop did not exit after cancel")
	}
	if metrics.Snap().Errors != before {
		t.Fatalf("read timeouts counted as errors")
	}
}
