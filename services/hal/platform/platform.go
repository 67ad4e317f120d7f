// Package platform opens the physical resources of a board: the shared I²C
// bus, the Vin enable line, a telemetry port and the restart action.
package platform

import (
	"io"

	"pdstation-go/services/hal"

	"tinygo.org/x/drivers"
)

// I2CConfig selects and configures the shared bus.
type I2CConfig struct {
	Bus string // host: periph bus name ("1", "/dev/i2c-1"); MCU: "i2c0" or "i2c1"
	SDA int
	SCL int
	Hz  uint32
}

// SerialConfig selects the telemetry port. An empty Port disables it.
type SerialConfig struct {
	Port string // host: device path; MCU: "uart0" or "uart1"
	Baud int
	TX   int
	RX   int
}

// Board carries the opened resources.
type Board struct {
	I2C     drivers.I2C
	Vin     hal.Pin
	Serial  io.ReadWriter // nil when disabled
	Restart func(reason string)

	closers []io.Closer
}

// Close releases host resources. It is a no-op on the MCU.
func (b *Board) Close() error {
	var first error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	b.closers = nil
	return first
}

// PanicRestart is the host restart action: the process dies and the service
// manager brings it back.
func PanicRestart(reason string) {
	panic("watchdog restart: " + reason)
}
