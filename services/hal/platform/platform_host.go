//go:build !rp2040

package platform

import (
	"errors"
	"time"

	"pdstation-go/services/hal"

	"go.bug.st/serial"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// Open initialises periph, opens the I²C bus and the Vin line by name, and
// optionally a serial telemetry port.
func Open(ic I2CConfig, vinPin string, sc SerialConfig) (*Board, error) {
	if _, err := host.Init(); err != nil {
		return nil, err
	}
	b := &Board{Restart: PanicRestart}

	bus, err := i2creg.Open(ic.Bus)
	if err != nil {
		return nil, err
	}
	b.closers = append(b.closers, bus)
	b.I2C = bus

	p := gpioreg.ByName(vinPin)
	if p == nil {
		_ = b.Close()
		return nil, errors.New("platform: unknown gpio " + vinPin)
	}
	b.Vin = &periphPin{p: p}

	if sc.Port != "" {
		port, err := OpenSerial(sc)
		if err != nil {
			_ = b.Close()
			return nil, err
		}
		b.closers = append(b.closers, port)
		b.Serial = port
	}
	return b, nil
}

// OpenSerial opens a host serial port in 8N1 with a short read timeout so
// readers can observe cancellation.
func OpenSerial(sc SerialConfig) (serial.Port, error) {
	baud := sc.Baud
	if baud <= 0 {
		baud = 115200
	}
	port, err := serial.Open(sc.Port, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, err
	}
	if err := port.SetReadTimeout(200 * time.Millisecond); err != nil {
		_ = port.Close()
		return nil, err
	}
	return port, nil
}

// periphPin adapts a periph GPIO to hal.Pin.
type periphPin struct {
	p gpio.PinIO
}

func (p *periphPin) ConfigureInput(pull hal.Pull) error {
	pp := gpio.Float
	switch pull {
	case hal.PullUp:
		pp = gpio.PullUp
	case hal.PullDown:
		pp = gpio.PullDown
	}
	return p.p.In(pp, gpio.NoEdge)
}

func (p *periphPin) ConfigureOutput(initial bool) error {
	return p.p.Out(gpio.Level(initial))
}

func (p *periphPin) Set(level bool) { _ = p.p.Out(gpio.Level(level)) }
func (p *periphPin) Get() bool      { return p.p.Read() == gpio.High }
