// Package pca9546a drives the PCA9546A 4-channel I²C switch. The chip has a
// single control register: bit n enables downstream port n.
package pca9546a

import (
	"errors"
	"sync"

	"tinygo.org/x/drivers"
)

// Address is the base 7-bit address (A2..A0 low).
const Address = 0x70

// Port names one downstream port, or none.
type Port uint8

const (
	PortNone Port = 0xFF
	Port0    Port = 0
	Port1    Port = 1
	Port2    Port = 2
	Port3    Port = 3
)

var ErrPort = errors.New("pca9546a: invalid port")

// Mask returns the control byte that enables only p.
func (p Port) Mask() (byte, error) {
	switch {
	case p == PortNone:
		return 0, nil
	case p <= Port3:
		return 1 << p, nil
	default:
		return 0, ErrPort
	}
}

type Device struct {
	bus  drivers.I2C
	addr uint16

	mu sync.Mutex
	b  [1]byte
}

// New returns a device at addr (0 selects Address).
func New(bus drivers.I2C, addr uint16) *Device {
	if addr == 0 {
		addr = Address
	}
	return &Device{bus: bus, addr: addr}
}

func (d *Device) Addr() uint16 { return d.addr }

// Control reads the control register. It doubles as a presence probe.
func (d *Device) Control() (byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.bus.Tx(d.addr, nil, d.b[:]); err != nil {
		return 0, err
	}
	return d.b[0] & 0x0F, nil
}

// Select enables exactly one port, or disconnects every port for PortNone.
func (d *Device) Select(p Port) error {
	m, err := p.Mask()
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.b[0] = m
	return d.bus.Tx(d.addr, d.b[:], nil)
}
