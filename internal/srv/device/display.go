package device

import (
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sasha-s/go-deadlock"
	"github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/gpio"
)

// Display drives an ST7789 class panel through a Transport.
//
// None of the methods below take the lock: callers bracket them with Lock/Unlock,
// which lets a sequence of commands run atomically against draws from another goroutine.
type Display struct {
	lock      deadlock.Mutex
	transport Transport
	clock     clockwork.Clock

	state          displayState
	transferBuffer []byte
}

type displayState struct {
	sleeping        bool
	lastSleepChange time.Time

	on           bool
	invert       bool
	partial      bool
	idle         bool
	horizontal   bool
	littleEndian bool

	brightness         int
	previousBrightness int

	colourFormat ColourFormat
	bitsPerPixel int

	columnStart uint16
	columnWidth uint16
	rowStart    uint16
	rowWidth    uint16
}

func NewDisplay(transport Transport, clock clockwork.Clock) *Display {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	d := &Display{
		transport:      transport,
		clock:          clock,
		transferBuffer: make([]byte, transport.MaxTransfer()),
	}
	d.resetState()

	// Keep the panel dark until it is configured
	d.Brightness(0)

	return d
}

func (d *Display) Lock() {
	d.lock.Lock()
}

func (d *Display) Unlock() {
	d.lock.Unlock()
}

// HardwareReset pulses the reset line, takes about 10ms.
func (d *Display) HardwareReset() {
	if err := d.transport.PulseReset(resetPulse, hardwareResetSettle); err != nil {
		logrus.Warnf("Unable to reset display: %v", err)
	}
	d.resetState()
}

// SoftwareReset restores the controller defaults, takes about 5ms.
func (d *Display) SoftwareReset() {
	d.sendCommand(SOFTWARE_RESET)
	d.clock.Sleep(softwareResetSettle)
	d.resetState()
}

// SetSleep enters or leaves the minimum power mode.
// Two transitions are always at least 120ms apart, the call blocks for the remaining time.
func (d *Display) SetSleep(enable bool) {
	if enable == d.state.sleeping {
		return
	}

	if wait := sleepTransitionGuard - d.clock.Since(d.state.lastSleepChange); wait > 0 {
		d.clock.Sleep(wait)
	}

	if enable {
		d.Brightness(0)
		d.sendCommand(SLEEP_IN_MODE)
	} else {
		d.Brightness(d.state.previousBrightness)
		d.sendCommand(SLEEP_OUT_MODE)
	}
	d.state.lastSleepChange = d.clock.Now()
	d.state.sleeping = enable

	d.clock.Sleep(sleepCommandSettle)
}

func (d *Display) SetOn(enable bool) {
	if enable == d.state.on {
		return
	}
	if enable {
		d.sendCommand(DISPLAY_ON)
	} else {
		d.sendCommand(DISPLAY_OFF)
	}
	d.state.on = enable
}

func (d *Display) SetInvert(enable bool) {
	if enable == d.state.invert {
		return
	}
	if enable {
		d.sendCommand(INVERT_ON)
	} else {
		d.sendCommand(INVERT_OFF)
	}
	d.state.invert = enable
}

func (d *Display) SetIdleMode(enable bool) {
	if enable == d.state.idle {
		return
	}
	if enable {
		d.sendCommand(IDLE_MODE_ON)
	} else {
		d.sendCommand(IDLE_MODE_OFF)
	}
	d.state.idle = enable
}

// Brightness sets the backlight, 0 and MAX_BRIGHTNESS drive the line directly,
// anything in between goes through PWM.
func (d *Display) Brightness(brightness int) {
	if brightness > MAX_BRIGHTNESS {
		brightness = MAX_BRIGHTNESS
	}
	if brightness < 0 {
		brightness = 0
	}

	var err error
	switch brightness {
	case 0:
		err = d.transport.SetBacklight(gpio.Low)
	case MAX_BRIGHTNESS:
		err = d.transport.SetBacklight(gpio.High)
	default:
		err = d.transport.SetBacklightPWM(brightness, MAX_BRIGHTNESS, brightnessClockDivisor)
	}
	if err != nil {
		logrus.Warnf("Unable to set display brightness to %d: %v", brightness, err)
	}

	d.state.brightness = brightness
	if brightness != 0 {
		d.state.previousBrightness = brightness
	}
}

// SetPartial restricts refresh to the rows between start and end.
func (d *Display) SetPartial(start, end uint16) {
	if !d.state.partial {
		d.sendCommand(PARTIAL_MODE)
	}
	d.state.partial = true
	d.sendCommand(PARTIAL_AREA_SET)
	d.sendBounds(start, end)
}

func (d *Display) DisablePartial() {
	if !d.state.partial {
		return
	}
	d.sendCommand(NORMAL_MODE)
	d.state.partial = false
}

// SetAddressOptions changes orientation and how colour data is read.
func (d *Display) SetAddressOptions(flags AddressFlags) {
	d.sendCommand(MEMORY_ACCESS_CONTROL)
	d.sendBuffer([]byte{byte(flags)})

	horizontal := flags&ADDRESS_HORIZONTAL_ORIENTATION != 0
	if horizontal != d.state.horizontal {
		// Swapped axes: the draw window must be set again before the next draw
		d.state.columnStart, d.state.columnWidth = 0, 0
		d.state.rowStart, d.state.rowWidth = 0, 0
	}
	d.state.horizontal = horizontal

	littleEndian := flags&ADDRESS_COLOUR_LITTLE_ENDIAN != 0
	if littleEndian == d.state.littleEndian {
		return
	}

	ramControl := []byte{ramControlBaseline0, ramControlBaseline1}
	if littleEndian {
		ramControl[1] |= ramControlLittleEndian
	}
	d.sendCommand(RAM_CONTROL)
	d.sendBuffer(ramControl)
	d.state.littleEndian = littleEndian
}

// SetColourFormat changes the colour depth, an unknown format is a programming error.
func (d *Display) SetColourFormat(format ColourFormat) {
	bitsPerPixel, ok := format.BitsPerPixel()
	if !ok {
		logrus.Panicf("Unrecognised colour format: %#08b", byte(format))
	}
	if format == d.state.colourFormat {
		return
	}
	d.sendCommand(COLOUR_FORMAT_SET)
	d.sendBuffer([]byte{byte(format)})
	d.state.colourFormat = format
	d.state.bitsPerPixel = bitsPerPixel
}

// SetDrawArea selects the rectangle written by the next draws.
// x always addresses columns and y rows, the orientation only swaps which panel side bounds them.
func (d *Display) SetDrawArea(x, y, w, h uint16) {
	columnMax, rowMax := d.Size()
	if dimensionInvalid(x, w, columnMax) || dimensionInvalid(y, h, rowMax) {
		logrus.Panicf("Draw area out of range! screen is %d by %d, draw area is %d+%d by %d+%d",
			columnMax, rowMax, x, w, y, h)
	}

	d.state.columnStart = x
	d.state.columnWidth = w
	d.state.rowStart = y
	d.state.rowWidth = h

	d.sendCommand(COLUMN_ADDRESS_SET)
	d.sendBounds(x, x+w-1)
	d.sendCommand(ROW_ADDRESS_SET)
	d.sendBounds(y, y+h-1)
}

func (d *Display) SetDrawAreaFull() {
	columnMax, rowMax := d.Size()
	d.SetDrawArea(0, 0, columnMax, rowMax)
}

// Size returns the column and row counts for the current orientation.
func (d *Display) Size() (columns, rows uint16) {
	if d.state.horizontal {
		return PANEL_WIDTH, PANEL_HEIGHT
	}
	return PANEL_HEIGHT, PANEL_WIDTH
}

// Draw streams pixel data into the draw area, buffer must hold a whole number of pixels.
func (d *Display) Draw(buffer []byte, flags DrawFlags) {
	bits := len(buffer) * 8
	if bits > int(d.state.columnWidth)*int(d.state.rowWidth)*d.state.bitsPerPixel {
		logrus.Panicf("Colour data passed was greater than draw area (%d by %d)",
			d.state.columnWidth, d.state.rowWidth)
	}
	if bits%d.state.bitsPerPixel != 0 {
		logrus.Panicf("Colour data passed did not have a whole number of pixels! pixel width: %d bits, bits passed: %d",
			d.state.bitsPerPixel, bits)
	}

	if flags&DONT_RESET_DRAW_LOCATION != 0 {
		d.sendCommand(WRITE_RAM_CONTINUE)
	} else {
		d.sendCommand(WRITE_RAM)
	}
	d.sendBuffer(buffer)
	if flags&DONT_FLUSH_DRAW == 0 {
		d.sendCommand(NO_OPERATION)
	}
}

// CombinedSetup brings the panel from any state to showing the full draw area at max brightness.
func (d *Display) CombinedSetup(format ColourFormat, flags AddressFlags) {
	d.HardwareReset()
	d.SetSleep(false)

	d.SetColourFormat(format)
	d.SetAddressOptions(flags)

	d.SetInvert(true)

	d.SetDrawAreaFull()

	d.SetOn(true)
	d.Brightness(MAX_BRIGHTNESS)
}

func (d *Display) Sleeping() bool {
	return d.state.sleeping
}

func (d *Display) CurrentBrightness() int {
	return d.state.brightness
}

func (d *Display) PreviousBrightness() int {
	return d.state.previousBrightness
}

func (d *Display) BitsPerPixel() int {
	return d.state.bitsPerPixel
}

func (d *Display) resetState() {
	d.state = displayState{
		sleeping:           true,
		colourFormat:       COLOUR_FORMAT_18_BIT,
		bitsPerPixel:       24,
		brightness:         d.state.brightness,
		previousBrightness: MAX_BRIGHTNESS,
	}
}

func (d *Display) sendCommand(cmd command) {
	d.setDataCommand(gpio.Low)
	d.write([]byte{byte(cmd)})
	d.setDataCommand(gpio.High)
}

// sendBounds sends two big-endian 16-bit values.
func (d *Display) sendBounds(start, end uint16) {
	d.sendBuffer([]byte{byte(start >> 8), byte(start), byte(end >> 8), byte(end)})
}

func (d *Display) sendBuffer(buffer []byte) {
	for len(buffer) > 0 {
		n := copy(d.transferBuffer, buffer)
		d.write(d.transferBuffer[:n])
		buffer = buffer[n:]
	}
}

func (d *Display) setDataCommand(level gpio.Level) {
	if err := d.transport.SetDataCommand(level); err != nil {
		logrus.Warnf("Unable to switch display data/command line: %v", err)
	}
}

func (d *Display) write(p []byte) {
	if err := d.transport.Write(p); err != nil {
		logrus.Warnf("Failed to send data over spi: %v", err)
	}
}

func dimensionInvalid(start, size, max uint16) bool {
	return size == 0 || start > max || uint32(start)+uint32(size) > uint32(max)
}
