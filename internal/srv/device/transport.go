package device

import (
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/jypelle/tftmirror/internal/srv/config"
	"github.com/sirupsen/logrus"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// Transport is the byte channel to the panel plus its control lines.
type Transport interface {
	// Write sends bytes on the bus, at most MaxTransfer of them per call.
	Write(p []byte) error
	// SetDataCommand drives the data/command line: Low for commands, High for data.
	SetDataCommand(level gpio.Level) error
	// PulseReset holds the reset line low for low, then waits settle with the line high.
	PulseReset(low, settle time.Duration) error
	// SetBacklight drives the backlight line digitally.
	SetBacklight(level gpio.Level) error
	// SetBacklightPWM drives the backlight with value/valueRange duty,
	// the PWM clock being divided by clockDivisor.
	SetBacklightPWM(value, valueRange, clockDivisor int) error
	MaxTransfer() int
	Close() error
}

// Raspberry Pi PWM oscillator
const pwmBaseClock = 19200 * physic.KiloHertz

type SpiTransport struct {
	port           spi.PortCloser
	spiConn        spi.Conn
	dataCommandPin gpio.PinIO
	resetPin       gpio.PinIO
	backlightPin   gpio.PinIO
	maxTransfer    int
	clock          clockwork.Clock
}

func NewSpiTransport(param config.PanelParam, clock clockwork.Clock) (*SpiTransport, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("unable to initialize periph host: %w", err)
	}

	port, err := spireg.Open(param.SpiPort)
	if err != nil {
		return nil, fmt.Errorf("unable to open spi port %q: %w", param.SpiPort, err)
	}

	pins := make([]gpio.PinIO, 3)
	for i, name := range []string{param.DataCommandPin, param.ResetPin, param.BacklightPin} {
		pins[i] = gpioreg.ByName(name)
		if pins[i] == nil {
			port.Close()
			return nil, fmt.Errorf("unable to find gpio %s", name)
		}
	}

	t, err := newSpiTransport(port, pins[0], pins[1], pins[2], param, clock)
	if err != nil {
		port.Close()
		return nil, err
	}
	return t, nil
}

// newSpiTransport connects an opened port and drives the control lines to their idle levels.
func newSpiTransport(port spi.PortCloser, dataCommandPin, resetPin, backlightPin gpio.PinIO, param config.PanelParam, clock clockwork.Clock) (*SpiTransport, error) {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	spiConn, err := port.Connect(physic.Frequency(param.SpiFrequency)*physic.Hertz, spi.Mode0, 8)
	if err != nil {
		return nil, fmt.Errorf("unable to connect spi port: %w", err)
	}

	t := &SpiTransport{
		port:           port,
		spiConn:        spiConn,
		dataCommandPin: dataCommandPin,
		resetPin:       resetPin,
		backlightPin:   backlightPin,
		maxTransfer:    param.MaxTransfer,
		clock:          clock,
	}
	if limits, ok := spiConn.(conn.Limits); ok && limits.MaxTxSize() > 0 && limits.MaxTxSize() < t.maxTransfer {
		logrus.Infof("Spi driver limits transfers to %d bytes", limits.MaxTxSize())
		t.maxTransfer = limits.MaxTxSize()
	}

	pins := []struct {
		pin   gpio.PinIO
		level gpio.Level
	}{
		{t.dataCommandPin, gpio.High},
		{t.resetPin, gpio.High},
		{t.backlightPin, gpio.Low},
	}
	for _, p := range pins {
		if err := p.pin.Out(p.level); err != nil {
			return nil, fmt.Errorf("unable to setup gpio %s: %w", p.pin, err)
		}
	}

	return t, nil
}

func (t *SpiTransport) Write(p []byte) error {
	return t.spiConn.Tx(p, nil)
}

func (t *SpiTransport) SetDataCommand(level gpio.Level) error {
	return t.dataCommandPin.Out(level)
}

func (t *SpiTransport) PulseReset(low, settle time.Duration) error {
	if err := t.resetPin.Out(gpio.Low); err != nil {
		return err
	}
	t.clock.Sleep(low)
	if err := t.resetPin.Out(gpio.High); err != nil {
		return err
	}
	t.clock.Sleep(settle)
	return nil
}

func (t *SpiTransport) SetBacklight(level gpio.Level) error {
	return t.backlightPin.Out(level)
}

func (t *SpiTransport) SetBacklightPWM(value, valueRange, clockDivisor int) error {
	duty := gpio.Duty(int64(gpio.DutyMax) * int64(value) / int64(valueRange))
	frequency := pwmBaseClock / physic.Frequency(clockDivisor*valueRange)
	return t.backlightPin.PWM(duty, frequency)
}

func (t *SpiTransport) MaxTransfer() int {
	return t.maxTransfer
}

func (t *SpiTransport) Close() error {
	return t.port.Close()
}
