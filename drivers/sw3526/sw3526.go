// Package sw3526 drives the Ismartware SW3526 USB-C fast-charge controller.
//
// Configuration registers are write protected until Unlock has been called
// since the last power-on.
package sw3526

import (
	"context"
	"errors"
	"sync"

	"pdstation-go/x/mathx"

	"tinygo.org/x/drivers"
)

// Address is the fixed 7-bit address.
const Address = 0x3C

const (
	regChipVersion  = 0x01
	regProtocol     = 0x06
	regSystemStatus = 0x07
	regAbnormal     = 0x0B
	regI2CEnable    = 0x12
	regADCSelect    = 0x3A
	regADCHigh      = 0x3B
	regADCLow       = 0x3C
	regFastCharge1  = 0xA8
	regBuckLimit    = 0xAE
	regWattLimit    = 0xAF

	adcBuckVout = 0x02

	buckVoutLSBmV  = 6
	buckLimitLSBmA = 50
)

// Output power cap limits accepted by the chip.
const (
	MinLimitWatts = 18
	MaxLimitWatts = 65
)

var unlockSeq = [...]byte{0x20, 0x40, 0x80}

var ErrLocked = errors.New("sw3526: configuration is write protected")

// FastChargeConfig1 enables or disables PD tiers. A set field disables.
type FastChargeConfig1 struct {
	PPS1Disabled  bool
	PPS0Disabled  bool
	PD20VDisabled bool
	PD15VDisabled bool
	PD12VDisabled bool
	PD9VDisabled  bool
	PDDisabled    bool
}

func (c FastChargeConfig1) bits() byte {
	var b byte
	for i, off := range [...]bool{c.PDDisabled, c.PD9VDisabled, c.PD12VDisabled, c.PD15VDisabled, c.PD20VDisabled, c.PPS0Disabled, c.PPS1Disabled} {
		if off {
			b |= 1 << i
		}
	}
	return b
}

func fastChargeConfig1From(b byte) FastChargeConfig1 {
	return FastChargeConfig1{
		PDDisabled:    b&(1<<0) != 0,
		PD9VDisabled:  b&(1<<1) != 0,
		PD12VDisabled: b&(1<<2) != 0,
		PD15VDisabled: b&(1<<3) != 0,
		PD20VDisabled: b&(1<<4) != 0,
		PPS0Disabled:  b&(1<<5) != 0,
		PPS1Disabled:  b&(1<<6) != 0,
	}
}

// Status is one bundled read of the controller's limits and state.
type Status struct {
	LimitWatts               uint8
	BuckOutputMillivolts     uint16
	Protocol                 uint8 // low nibble of the protocol indication
	SystemStatus             uint8
	AbnormalCase             uint8
	BuckOutputLimitMilliamps uint16
}

type Device struct {
	bus  drivers.I2C
	addr uint16

	mu       sync.Mutex
	unlocked bool
	w        [2]byte
	r        [1]byte
}

// New returns a device at addr (0 selects Address). It does not touch the bus.
func New(bus drivers.I2C, addr uint16) *Device {
	if addr == 0 {
		addr = Address
	}
	return &Device{bus: bus, addr: addr}
}

func (d *Device) Addr() uint16 { return d.addr }

func (d *Device) read(reg byte) (byte, error) {
	d.w[0] = reg
	if err := d.bus.Tx(d.addr, d.w[:1], d.r[:]); err != nil {
		return 0, err
	}
	return d.r[0], nil
}

func (d *Device) write(reg, v byte) error {
	d.w[0] = reg
	d.w[1] = v
	return d.bus.Tx(d.addr, d.w[:2], nil)
}

// ChipVersion reads the two-bit silicon revision. It is the presence probe.
func (d *Device) ChipVersion() (uint8, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, err := d.read(regChipVersion)
	return v & 0x03, err
}

// Unlock enables writes to the configuration registers.
func (d *Device) Unlock() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, b := range unlockSeq {
		if err := d.write(regI2CEnable, b); err != nil {
			d.unlocked = false
			return err
		}
	}
	d.unlocked = true
	return nil
}

func (d *Device) SetFastChargeConfig1(c FastChargeConfig1) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.unlocked {
		return ErrLocked
	}
	return d.write(regFastCharge1, c.bits())
}

func (d *Device) FastChargeConfig1() (FastChargeConfig1, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, err := d.read(regFastCharge1)
	if err != nil {
		return FastChargeConfig1{}, err
	}
	return fastChargeConfig1From(v), nil
}

// SetLimitWatts caps the output power, clamped to the chip's range.
func (d *Device) SetLimitWatts(w uint8) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.unlocked {
		return ErrLocked
	}
	return d.write(regWattLimit, mathx.Clamp(w, MinLimitWatts, MaxLimitWatts))
}

func (d *Device) LimitWatts() (uint8, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.read(regWattLimit)
}

func (d *Device) buckMillivolts() (uint16, error) {
	if err := d.write(regADCSelect, adcBuckVout); err != nil {
		return 0, err
	}
	hi, err := d.read(regADCHigh)
	if err != nil {
		return 0, err
	}
	lo, err := d.read(regADCLow)
	if err != nil {
		return 0, err
	}
	raw := uint16(hi)<<4 | uint16(lo&0x0F)
	return raw * buckVoutLSBmV, nil
}

// BuckOutputMillivolts samples the buck converter output through the ADC.
func (d *Device) BuckOutputMillivolts() (uint16, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.buckMillivolts()
}

func (d *Device) BuckOutputLimitMilliamps() (uint16, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, err := d.read(regBuckLimit)
	return uint16(v) * buckLimitLSBmA, err
}

// Status performs the bundled read in a fixed order. ctx is checked before
// each register access, so a cancelled read stops after the transaction in
// flight. On error the fields read so far are returned alongside it.
func (d *Device) Status(ctx context.Context) (Status, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var s Status
	var err error
	if err = ctx.Err(); err != nil {
		return s, err
	}
	if s.LimitWatts, err = d.read(regWattLimit); err != nil {
		return s, err
	}
	if err = ctx.Err(); err != nil {
		return s, err
	}
	if s.BuckOutputMillivolts, err = d.buckMillivolts(); err != nil {
		return s, err
	}
	var p byte
	if err = ctx.Err(); err != nil {
		return s, err
	}
	if p, err = d.read(regProtocol); err != nil {
		return s, err
	}
	s.Protocol = p & 0x0F
	if err = ctx.Err(); err != nil {
		return s, err
	}
	if s.SystemStatus, err = d.read(regSystemStatus); err != nil {
		return s, err
	}
	if err = ctx.Err(); err != nil {
		return s, err
	}
	if s.AbnormalCase, err = d.read(regAbnormal); err != nil {
		return s, err
	}
	var lim byte
	if err = ctx.Err(); err != nil {
		return s, err
	}
	if lim, err = d.read(regBuckLimit); err != nil {
		return s, err
	}
	s.BuckOutputLimitMilliamps = uint16(lim) * buckLimitLSBmA
	return s, nil
}
