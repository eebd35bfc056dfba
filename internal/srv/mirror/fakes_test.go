package mirror

import (
	"errors"
	"fmt"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/jypelle/tftmirror/internal/srv/capture"
	"github.com/jypelle/tftmirror/internal/srv/config"
	"github.com/jypelle/tftmirror/internal/srv/device"
	"periph.io/x/conn/v3/gpio"
)

var errBrokenPipe = errors.New("broken pipe")

// fakeSession serves a uniform frame of colour, with scriptable failures.
type fakeSession struct {
	lock        sync.Mutex
	colour      uint16
	pointer     image.Point
	console     int
	powerSaving bool

	captureErr error
	powerErr   error
	panicOn    string

	captures int
	closed   bool
}

func (s *fakeSession) enter(method string) error {
	if s.panicOn == method {
		panic("corrupt reply in " + method)
	}
	if s.closed {
		return errors.New("session closed")
	}
	return nil
}

func (s *fakeSession) CaptureFrame(dst []byte) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if err := s.enter("CaptureFrame"); err != nil {
		return err
	}
	if s.captureErr != nil {
		return s.captureErr
	}
	s.captures++
	for i := 0; i+1 < len(dst); i += 2 {
		dst[i] = byte(s.colour)
		dst[i+1] = byte(s.colour >> 8)
	}
	return nil
}

func (s *fakeSession) PowerSaving() (bool, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if err := s.enter("PowerSaving"); err != nil {
		return false, err
	}
	return s.powerSaving, s.powerErr
}

func (s *fakeSession) Pointer() (image.Point, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if err := s.enter("Pointer"); err != nil {
		return image.Point{}, err
	}
	return s.pointer, nil
}

func (s *fakeSession) Console() (int, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if err := s.enter("Console"); err != nil {
		return 0, err
	}
	return s.console, nil
}

func (s *fakeSession) Close() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSession) set(fn func(s *fakeSession)) {
	s.lock.Lock()
	defer s.lock.Unlock()
	fn(s)
}

func (s *fakeSession) isClosed() bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.closed
}

func (s *fakeSession) captureCount() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.captures
}

// fakeSource hands out the scripted sessions in order, then fails with err.
type fakeSource struct {
	lock     sync.Mutex
	sessions []*fakeSession
	err      error
	opens    int
}

func (s *fakeSource) Open() (capture.Session, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.opens++
	if len(s.sessions) == 0 {
		if s.err == nil {
			return nil, fmt.Errorf("%w: no display", capture.ErrUnavailable)
		}
		return nil, s.err
	}
	session := s.sessions[0]
	s.sessions = s.sessions[1:]
	return session, nil
}

func (s *fakeSource) openCount() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.opens
}

func (s *fakeSource) push(session *fakeSession) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.sessions = append(s.sessions, session)
}

type fakeConsole struct {
	lock   sync.Mutex
	active int
	err    error
}

func (c *fakeConsole) Active() (int, error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.active, c.err
}

func (c *fakeConsole) set(active int) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.active = active
}

// uniformFrame is a framebuffer filled with one little-endian colour.
type uniformFrame struct {
	lock   sync.Mutex
	colour uint16
}

func (f *uniformFrame) Snapshot(dst []byte) int {
	f.lock.Lock()
	defer f.lock.Unlock()
	for i := 0; i+1 < len(dst); i += 2 {
		dst[i] = byte(f.colour)
		dst[i+1] = byte(f.colour >> 8)
	}
	return len(dst)
}

// orderedTransport is an emulated panel that also keeps the backlight and command order.
type orderedTransport struct {
	*device.Emulator

	lock     sync.Mutex
	dataMode bool
	events   []string
}

func (t *orderedTransport) Write(p []byte) error {
	t.lock.Lock()
	if !t.dataMode && len(p) > 0 {
		t.events = append(t.events, fmt.Sprintf("command %#02x", p[0]))
	}
	t.lock.Unlock()
	return t.Emulator.Write(p)
}

func (t *orderedTransport) SetDataCommand(level gpio.Level) error {
	t.lock.Lock()
	t.dataMode = level == gpio.High
	t.lock.Unlock()
	return t.Emulator.SetDataCommand(level)
}

func (t *orderedTransport) SetBacklight(level gpio.Level) error {
	t.lock.Lock()
	t.events = append(t.events, fmt.Sprintf("backlight %v", level))
	t.lock.Unlock()
	return t.Emulator.SetBacklight(level)
}

func (t *orderedTransport) eventsSince(mark int) []string {
	t.lock.Lock()
	defer t.lock.Unlock()
	return append([]string(nil), t.events[mark:]...)
}

func (t *orderedTransport) mark() int {
	t.lock.Lock()
	defer t.lock.Unlock()
	return len(t.events)
}

const (
	testTickInterval  = 20 * time.Millisecond
	liveColour        = 0xf800
	framebufferColour = 0x001f
)

type testMirror struct {
	transport   *orderedTransport
	display     *device.Display
	shared      *Shared
	framebuffer *uniformFrame
	source      *fakeSource
	console     *fakeConsole
	param       config.MirrorParam
}

func newTestMirror(t *testing.T) *testMirror {
	t.Helper()

	transport := &orderedTransport{Emulator: device.NewEmulator(4096), dataMode: true}
	display := device.NewDisplay(transport, clockwork.NewRealClock())
	display.Lock()
	display.CombinedSetup(device.COLOUR_FORMAT_16_BIT,
		device.ADDRESS_HORIZONTAL_ORIENTATION|device.ADDRESS_COLOUR_LITTLE_ENDIAN)
	display.Unlock()

	framebuffer := &uniformFrame{colour: framebufferColour}

	return &testMirror{
		transport:   transport,
		display:     display,
		shared:      NewShared(framebuffer),
		framebuffer: framebuffer,
		source:      &fakeSource{},
		console:     &fakeConsole{active: 7},
		param: config.MirrorParam{
			TickInterval:      testTickInterval,
			SleepPollInterval: 5 * time.Millisecond,
			FrameInterval:     2 * time.Millisecond,
			CursorIdleFrames:  300,
			ConsoleCheck:      true,
		},
	}
}

func (m *testMirror) arbiter() *Arbiter {
	return NewArbiter(m.shared, m.display, m.source, m.console, clockwork.NewRealClock(), m.param)
}

func (m *testMirror) renderer() *Renderer {
	return NewRenderer(m.shared, m.display, clockwork.NewRealClock(), m.param)
}

// pixel returns the colour shown by the emulated panel at p.
func (m *testMirror) pixel(p image.Point) uint16 {
	return device.EncodeRGB565(m.transport.Memory().RGBAAt(p.X, p.Y))
}
