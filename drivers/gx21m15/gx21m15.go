// Package gx21m15 drives the GX21M15 digital temperature sensor, an
// LM75-compatible part with 11-bit readings and an over-temperature output.
package gx21m15

import (
	"errors"
	"sync"

	"tinygo.org/x/drivers"
)

// Address is the base 7-bit address (A2..A0 low).
const Address = 0x48

const (
	regTemp   = 0x00
	regConfig = 0x01
	regTHyst  = 0x02
	regTOS    = 0x03

	cfgShutdown  = 1 << 0
	cfgInterrupt = 1 << 1
	cfgPolarity  = 1 << 2
	cfgQueueMask = 3 << 3
)

// Range accepted for the limit registers, °C.
const (
	MinCelsius = -55
	MaxCelsius = 125
)

var ErrRange = errors.New("gx21m15: temperature out of range")

// FaultQueue is the number of consecutive faults before OS asserts.
type FaultQueue uint8

const (
	FaultQueue1 FaultQueue = iota
	FaultQueue2
	FaultQueue4
	FaultQueue6
)

// Config is the content of the configuration register.
type Config struct {
	Shutdown   bool
	Interrupt  bool // OS in interrupt mode instead of comparator mode
	ActiveHigh bool // OS polarity
	FaultQueue FaultQueue
}

func (c Config) bits() byte {
	b := byte(c.FaultQueue&3) << 3
	if c.Shutdown {
		b |= cfgShutdown
	}
	if c.Interrupt {
		b |= cfgInterrupt
	}
	if c.ActiveHigh {
		b |= cfgPolarity
	}
	return b
}

func configFrom(b byte) Config {
	return Config{
		Shutdown:   b&cfgShutdown != 0,
		Interrupt:  b&cfgInterrupt != 0,
		ActiveHigh: b&cfgPolarity != 0,
		FaultQueue: FaultQueue(b & cfgQueueMask >> 3),
	}
}

type Device struct {
	bus  drivers.I2C
	addr uint16

	mu sync.Mutex
	w  [3]byte
	r  [2]byte
}

// New returns a device at addr (0 selects Address). It does not touch the bus.
func New(bus drivers.I2C, addr uint16) *Device {
	if addr == 0 {
		addr = Address
	}
	return &Device{bus: bus, addr: addr}
}

func (d *Device) Addr() uint16 { return d.addr }

func (d *Device) SetConfig(c Config) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.w[0] = regConfig
	d.w[1] = c.bits()
	return d.bus.Tx(d.addr, d.w[:2], nil)
}

func (d *Device) Config() (Config, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.w[0] = regConfig
	if err := d.bus.Tx(d.addr, d.w[:1], d.r[:1]); err != nil {
		return Config{}, err
	}
	return configFrom(d.r[0]), nil
}

// Temperature reads the current temperature in °C (0.125 °C resolution).
func (d *Device) Temperature() (float32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	raw, err := d.read16(regTemp)
	if err != nil {
		return 0, err
	}
	return float32(int16(raw)>>5) * 0.125, nil
}

// SetHysteresis sets the temperature at which OS deasserts.
func (d *Device) SetHysteresis(c float32) error { return d.setLimit(regTHyst, c) }

// SetOverShutdown sets the temperature at which OS asserts.
func (d *Device) SetOverShutdown(c float32) error { return d.setLimit(regTOS, c) }

func (d *Device) Hysteresis() (float32, error)   { return d.limit(regTHyst) }
func (d *Device) OverShutdown() (float32, error) { return d.limit(regTOS) }

// Limits are 9-bit two's complement with 0.5 °C resolution, left aligned.
func (d *Device) setLimit(reg byte, c float32) error {
	if c < MinCelsius || c > MaxCelsius {
		return ErrRange
	}
	half := int16(c * 2)
	v := uint16(half << 7)
	d.mu.Lock()
	defer d.mu.Unlock()
	d.w[0] = reg
	d.w[1] = byte(v >> 8)
	d.w[2] = byte(v)
	return d.bus.Tx(d.addr, d.w[:3], nil)
}

func (d *Device) limit(reg byte) (float32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	raw, err := d.read16(reg)
	if err != nil {
		return 0, err
	}
	return float32(int16(raw)>>7) * 0.5, nil
}

func (d *Device) read16(reg byte) (uint16, error) {
	d.w[0] = reg
	if err := d.bus.Tx(d.addr, d.w[:1], d.r[:2]); err != nil {
		return 0, err
	}
	return uint16(d.r[0])<<8 | uint16(d.r[1]), nil
}
