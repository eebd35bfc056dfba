package device

import (
	"image"
	"image/color"
	"image/draw"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/gpio"
)

// EmulatorState is what an observer of the emulated panel can tell about it.
type EmulatorState struct {
	Sleeping     bool
	On           bool
	Inverted     bool
	Partial      bool
	Idle         bool
	Horizontal   bool
	LittleEndian bool
	BitsPerPixel int
	Backlight    int
}

// Emulator is a Transport decoding the command stream into an in-memory panel,
// used in simulation mode and by tests.
type Emulator struct {
	lock        sync.Mutex
	maxTransfer int
	onChange    func()

	dataMode bool
	current  command
	params   []byte
	pending  []byte

	state       EmulatorState
	columnStart int
	columnEnd   int
	rowStart    int
	rowEnd      int
	cursorX     int
	cursorY     int

	memory *image.RGBA
}

var paramLengths = map[command]int{
	COLUMN_ADDRESS_SET:    4,
	ROW_ADDRESS_SET:       4,
	PARTIAL_AREA_SET:      4,
	MEMORY_ACCESS_CONTROL: 1,
	COLOUR_FORMAT_SET:     1,
	RAM_CONTROL:           2,
}

func NewEmulator(maxTransfer int) *Emulator {
	e := &Emulator{
		maxTransfer: maxTransfer,
		dataMode:    true,
		memory:      image.NewRGBA(image.Rect(0, 0, PANEL_WIDTH, PANEL_WIDTH)),
	}
	e.reset()
	return e
}

// SetOnChange registers a function called after each command and backlight change.
func (e *Emulator) SetOnChange(onChange func()) {
	e.lock.Lock()
	defer e.lock.Unlock()
	e.onChange = onChange
}

func (e *Emulator) Write(p []byte) error {
	if len(p) == 0 {
		return nil
	}

	e.lock.Lock()
	if !e.dataMode {
		e.startCommand(command(p[0]))
		onChange := e.onChange
		e.lock.Unlock()
		if onChange != nil {
			onChange()
		}
		return nil
	}
	defer e.lock.Unlock()

	switch e.current {
	case WRITE_RAM, WRITE_RAM_CONTINUE:
		e.writePixels(p)
	default:
		length, ok := paramLengths[e.current]
		if !ok {
			logrus.Debugf("Emulator: ignoring %d data bytes after command %#02x", len(p), byte(e.current))
			return nil
		}
		e.params = append(e.params, p...)
		if len(e.params) >= length {
			e.applyParams(e.params[:length])
			e.params = e.params[:0]
		}
	}
	return nil
}

func (e *Emulator) SetDataCommand(level gpio.Level) error {
	e.lock.Lock()
	defer e.lock.Unlock()
	e.dataMode = level == gpio.High
	return nil
}

func (e *Emulator) PulseReset(low, settle time.Duration) error {
	e.lock.Lock()
	defer e.lock.Unlock()
	e.reset()
	return nil
}

func (e *Emulator) SetBacklight(level gpio.Level) error {
	e.lock.Lock()
	if level == gpio.High {
		e.state.Backlight = MAX_BRIGHTNESS
	} else {
		e.state.Backlight = 0
	}
	onChange := e.onChange
	e.lock.Unlock()

	if onChange != nil {
		onChange()
	}
	return nil
}

func (e *Emulator) SetBacklightPWM(value, valueRange, clockDivisor int) error {
	e.lock.Lock()
	e.state.Backlight = value * MAX_BRIGHTNESS / valueRange
	onChange := e.onChange
	e.lock.Unlock()

	if onChange != nil {
		onChange()
	}
	return nil
}

func (e *Emulator) MaxTransfer() int {
	return e.maxTransfer
}

func (e *Emulator) Close() error {
	return nil
}

func (e *Emulator) State() EmulatorState {
	e.lock.Lock()
	defer e.lock.Unlock()
	return e.state
}

// Memory returns a copy of the panel RAM for the current orientation.
func (e *Emulator) Memory() *image.RGBA {
	e.lock.Lock()
	defer e.lock.Unlock()
	return e.memoryCopy()
}

// Snapshot returns what a viewer would see: the panel RAM, or black when the panel does not show it.
func (e *Emulator) Snapshot() *image.RGBA {
	e.lock.Lock()
	defer e.lock.Unlock()

	img := e.memoryCopy()
	if !e.state.On || e.state.Sleeping || e.state.Backlight == 0 {
		draw.Draw(img, img.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)
	}
	return img
}

func (e *Emulator) memoryCopy() *image.RGBA {
	columns, rows := PANEL_HEIGHT, PANEL_WIDTH
	if e.state.Horizontal {
		columns, rows = PANEL_WIDTH, PANEL_HEIGHT
	}
	img := image.NewRGBA(image.Rect(0, 0, columns, rows))
	draw.Draw(img, img.Bounds(), e.memory, image.Point{}, draw.Src)
	return img
}

func (e *Emulator) reset() {
	e.state = EmulatorState{
		Sleeping:     true,
		BitsPerPixel: 24,
		Backlight:    e.state.Backlight,
	}
	e.current = NO_OPERATION
	e.params = e.params[:0]
	e.pending = e.pending[:0]
	e.columnStart, e.columnEnd = 0, PANEL_HEIGHT-1
	e.rowStart, e.rowEnd = 0, PANEL_WIDTH-1
}

func (e *Emulator) startCommand(cmd command) {
	e.current = cmd
	e.params = e.params[:0]
	e.pending = e.pending[:0]

	switch cmd {
	case SOFTWARE_RESET:
		e.reset()
	case SLEEP_IN_MODE:
		e.state.Sleeping = true
	case SLEEP_OUT_MODE:
		e.state.Sleeping = false
	case PARTIAL_MODE:
		e.state.Partial = true
	case NORMAL_MODE:
		e.state.Partial = false
	case INVERT_OFF:
		e.state.Inverted = false
	case INVERT_ON:
		e.state.Inverted = true
	case DISPLAY_OFF:
		e.state.On = false
	case DISPLAY_ON:
		e.state.On = true
	case IDLE_MODE_OFF:
		e.state.Idle = false
	case IDLE_MODE_ON:
		e.state.Idle = true
	case WRITE_RAM:
		e.cursorX, e.cursorY = e.columnStart, e.rowStart
	}
}

func (e *Emulator) applyParams(params []byte) {
	switch e.current {
	case COLUMN_ADDRESS_SET:
		e.columnStart = int(params[0])<<8 | int(params[1])
		e.columnEnd = int(params[2])<<8 | int(params[3])
	case ROW_ADDRESS_SET:
		e.rowStart = int(params[0])<<8 | int(params[1])
		e.rowEnd = int(params[2])<<8 | int(params[3])
	case MEMORY_ACCESS_CONTROL:
		e.state.Horizontal = AddressFlags(params[0])&ADDRESS_HORIZONTAL_ORIENTATION != 0
	case COLOUR_FORMAT_SET:
		if bits, ok := ColourFormat(params[0]).BitsPerPixel(); ok {
			e.state.BitsPerPixel = bits
		}
	case RAM_CONTROL:
		e.state.LittleEndian = params[1]&ramControlLittleEndian != 0
	}
}

// writePixels decodes colour data, keeping incomplete pixels for the next write.
func (e *Emulator) writePixels(p []byte) {
	e.pending = append(e.pending, p...)

	var chunk int
	switch e.state.BitsPerPixel {
	case 12:
		chunk = 3
	case 16:
		chunk = 2
	default:
		chunk = 3
	}

	i := 0
	for ; i+chunk <= len(e.pending); i += chunk {
		px := e.pending[i : i+chunk]
		switch e.state.BitsPerPixel {
		case 12:
			// two pixels in three bytes
			e.putPixel(color.RGBA{R: px[0] & 0xf0, G: px[0] << 4, B: px[1] & 0xf0, A: 0xff})
			e.putPixel(color.RGBA{R: px[1] << 4, G: px[2] & 0xf0, B: px[2] << 4, A: 0xff})
		case 16:
			var v uint16
			if e.state.LittleEndian {
				v = uint16(px[1])<<8 | uint16(px[0])
			} else {
				v = uint16(px[0])<<8 | uint16(px[1])
			}
			e.putPixel(DecodeRGB565(v))
		default:
			e.putPixel(color.RGBA{R: px[0] & 0xfc, G: px[1] & 0xfc, B: px[2] & 0xfc, A: 0xff})
		}
	}
	e.pending = append(e.pending[:0], e.pending[i:]...)
}

// putPixel writes at the cursor and advances it, wrapping inside the draw area.
func (e *Emulator) putPixel(c color.RGBA) {
	e.memory.SetRGBA(e.cursorX, e.cursorY, c)

	e.cursorX++
	if e.cursorX > e.columnEnd {
		e.cursorX = e.columnStart
		e.cursorY++
		if e.cursorY > e.rowEnd {
			e.cursorY = e.rowStart
		}
	}
}
