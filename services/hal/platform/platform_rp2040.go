//go:build rp2040

package platform

import (
	"context"
	"errors"
	"machine"
	"time"

	"pdstation-go/services/hal"
	"pdstation-go/x/strconvx"

	uartx "github.com/jangala-dev/tinygo-uartx/uartx"
)

// Open configures the I²C peripheral, the Vin pin and optionally a UART.
// vinPin is the GPIO number in decimal.
func Open(ic I2CConfig, vinPin string, sc SerialConfig) (*Board, error) {
	var hw *machine.I2C
	switch ic.Bus {
	case "i2c0", "":
		hw = machine.I2C0
	case "i2c1":
		hw = machine.I2C1
	default:
		return nil, errors.New("platform: unknown i2c bus " + ic.Bus)
	}
	hz := ic.Hz
	if hz == 0 {
		hz = 100_000
	}
	sda := machine.Pin(ic.SDA)
	scl := machine.Pin(ic.SCL)
	sda.Configure(machine.PinConfig{Mode: machine.PinI2C})
	scl.Configure(machine.PinConfig{Mode: machine.PinI2C})
	if err := hw.Configure(machine.I2CConfig{SCL: scl, SDA: sda, Frequency: hz}); err != nil {
		return nil, err
	}

	n, err := strconvx.Atoi(vinPin)
	if err != nil {
		return nil, errors.New("platform: bad vin pin " + vinPin)
	}
	b := &Board{
		I2C:     hw,
		Vin:     &rp2Pin{p: machine.Pin(n)},
		Restart: WatchdogRestart,
	}

	if sc.Port != "" {
		var u *uartx.UART
		switch sc.Port {
		case "uart0":
			u = uartx.UART0
		case "uart1":
			u = uartx.UART1
		default:
			return nil, errors.New("platform: unknown uart " + sc.Port)
		}
		_ = u.Configure(uartx.UARTConfig{
			BaudRate: uint32(sc.Baud),
			TX:       machine.Pin(sc.TX),
			RX:       machine.Pin(sc.RX),
		})
		b.Serial = &uartPort{u: u}
	}
	return b, nil
}

// WatchdogRestart arms the hardware watchdog with the shortest timeout and
// stops feeding it.
func WatchdogRestart(reason string) {
	println("[platform] restart:", reason)
	machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 1})
	machine.Watchdog.Start()
	for {
		time.Sleep(time.Millisecond)
	}
}

type rp2Pin struct {
	p machine.Pin
}

func (r *rp2Pin) ConfigureInput(pull hal.Pull) error {
	mode := machine.PinInput
	switch pull {
	case hal.PullUp:
		mode = machine.PinInputPullup
	case hal.PullDown:
		mode = machine.PinInputPulldown
	}
	r.p.Configure(machine.PinConfig{Mode: mode})
	return nil
}

func (r *rp2Pin) ConfigureOutput(initial bool) error {
	r.p.Configure(machine.PinConfig{Mode: machine.PinOutput})
	r.p.Set(initial)
	return nil
}

func (r *rp2Pin) Set(level bool) { r.p.Set(level) }
func (r *rp2Pin) Get() bool      { return r.p.Get() }

// uartPort adapts uartx to io.ReadWriter.
type uartPort struct{ u *uartx.UART }

func (p *uartPort) Write(b []byte) (int, error) { return p.u.Write(b) }

func (p *uartPort) Read(b []byte) (int, error) {
	return p.u.RecvSomeContext(context.Background(), b)
}
