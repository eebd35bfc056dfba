package device

import (
	"fmt"
	"time"
)

const (
	PANEL_WIDTH  = 320
	PANEL_HEIGHT = 240

	MAX_BRIGHTNESS = 1024
)

const (
	brightnessClockDivisor = 100

	resetPulse           = 10 * time.Microsecond
	hardwareResetSettle  = 10 * time.Millisecond
	softwareResetSettle  = 5 * time.Millisecond
	sleepTransitionGuard = 120 * time.Millisecond
	sleepCommandSettle   = 5 * time.Millisecond
)

type command byte

const (
	NO_OPERATION          command = 0x00
	SOFTWARE_RESET        command = 0x01
	SLEEP_IN_MODE         command = 0x10
	SLEEP_OUT_MODE        command = 0x11
	PARTIAL_MODE          command = 0x12
	NORMAL_MODE           command = 0x13
	INVERT_OFF            command = 0x20
	INVERT_ON             command = 0x21
	DISPLAY_OFF           command = 0x28
	DISPLAY_ON            command = 0x29
	COLUMN_ADDRESS_SET    command = 0x2a
	ROW_ADDRESS_SET       command = 0x2b
	WRITE_RAM             command = 0x2c
	PARTIAL_AREA_SET      command = 0x30
	MEMORY_ACCESS_CONTROL command = 0x36
	IDLE_MODE_OFF         command = 0x38
	IDLE_MODE_ON          command = 0x39
	COLOUR_FORMAT_SET     command = 0x3a
	WRITE_RAM_CONTINUE    command = 0x3c
	RAM_CONTROL           command = 0xb0
)

// Default content of the RAM control register, only the endianness bit is ever changed.
const (
	ramControlBaseline0    byte = 0x00
	ramControlBaseline1    byte = 0xf0
	ramControlLittleEndian byte = 0b00001000
)

type ColourFormat byte

const (
	// 4-4-4 RRRRGGGGBBBB
	COLOUR_FORMAT_12_BIT ColourFormat = 0b01010011
	// 5-6-5 RRRRRGGGGGGBBBBB
	COLOUR_FORMAT_16_BIT ColourFormat = 0b01010101
	// 6-6-6 RRRRRRXXGGGGGGXXBBBBBBXX
	COLOUR_FORMAT_18_BIT ColourFormat = 0b01010110
)

// BitsPerPixel returns the size of a pixel on the wire, ok is false for unknown formats.
func (f ColourFormat) BitsPerPixel() (bits int, ok bool) {
	switch f {
	case COLOUR_FORMAT_12_BIT:
		return 12, true
	case COLOUR_FORMAT_16_BIT:
		return 16, true
	case COLOUR_FORMAT_18_BIT:
		return 24, true
	}
	return 0, false
}

type AddressFlags byte

const (
	ADDRESS_FLIP_HORIZONTAL        AddressFlags = 0b10000000
	ADDRESS_FLIP_VERTICAL          AddressFlags = 0b01000000
	ADDRESS_HORIZONTAL_ORIENTATION AddressFlags = 0b00100000
	ADDRESS_REFRESH_BOTTOM_TO_TOP  AddressFlags = 0b00010000
	ADDRESS_SWAP_COLOUR_ORDER      AddressFlags = 0b00001000
	ADDRESS_REFRESH_RIGHT_TO_LEFT  AddressFlags = 0b00000100
	ADDRESS_COLOUR_LITTLE_ENDIAN   AddressFlags = 0b00000001
)

var addressFlagNames = map[string]AddressFlags{
	"flip_horizontal":        ADDRESS_FLIP_HORIZONTAL,
	"flip_vertical":          ADDRESS_FLIP_VERTICAL,
	"horizontal_orientation": ADDRESS_HORIZONTAL_ORIENTATION,
	"refresh_bottom_to_top":  ADDRESS_REFRESH_BOTTOM_TO_TOP,
	"swap_colour_order":      ADDRESS_SWAP_COLOUR_ORDER,
	"refresh_right_to_left":  ADDRESS_REFRESH_RIGHT_TO_LEFT,
	"colour_little_endian":   ADDRESS_COLOUR_LITTLE_ENDIAN,
}

// ParseAddressOptions combines the address option names found in the param file.
func ParseAddressOptions(names []string) (AddressFlags, error) {
	var flags AddressFlags
	for _, name := range names {
		flag, ok := addressFlagNames[name]
		if !ok {
			return 0, fmt.Errorf("unknown address option %q", name)
		}
		flags |= flag
	}
	return flags, nil
}

type DrawFlags byte

const (
	// Continue from the current RAM location instead of the start of the draw area
	DONT_RESET_DRAW_LOCATION DrawFlags = 1 << iota
	// Skip the trailing no-op, the panel only shows the data once another command arrives
	DONT_FLUSH_DRAW
)
