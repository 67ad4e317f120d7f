// Package ina226 drives the TI INA226 bus voltage / shunt current / power
// monitor. Registers are 16-bit big-endian.
//
// Current and power readings need a prior Calibrate; until then they return
// ErrNotCalibrated.
package ina226

import (
	"errors"
	"sync"

	"tinygo.org/x/drivers"
)

// Address is the default 7-bit address (A1=A0=GND).
const Address = 0x40

const (
	regConfig      = 0x00
	regShunt       = 0x01
	regBus         = 0x02
	regPower       = 0x03
	regCurrent     = 0x04
	regCalibration = 0x05
	regManufID     = 0xFE
	regDieID       = 0xFF

	cfgReset    = 0x8000
	cfgReserved = 0x4000 // bit 14 reads back as 1

	busLSBmV    = 1.25
	shuntLSBuV  = 2.5
	calScale    = 0.00512
	powerFactor = 25
)

// Identification values from the datasheet.
const (
	ManufacturerTI = 0x5449
	DieIDINA226    = 0x2260
)

var (
	ErrNotCalibrated = errors.New("ina226: not calibrated")
	ErrCalibration   = errors.New("ina226: calibration out of range")
)

// Mode selects what the chip converts.
type Mode uint8

const (
	ModePowerDown          Mode = 0
	ModeShuntTriggered     Mode = 1
	ModeBusTriggered       Mode = 2
	ModeShuntBusTriggered  Mode = 3
	ModeShuntContinuous    Mode = 5
	ModeBusContinuous      Mode = 6
	ModeShuntBusContinuous Mode = 7
)

// Avg is the number of samples averaged per reading.
type Avg uint8

const (
	Avg1 Avg = iota
	Avg4
	Avg16
	Avg64
	Avg128
	Avg256
	Avg512
	Avg1024
)

// ConvTime is the per-sample conversion time.
type ConvTime uint8

const (
	Conv140us ConvTime = iota
	Conv204us
	Conv332us
	Conv588us
	Conv1100us
	Conv2116us
	Conv4156us
	Conv8244us
)

// Config is the content of the configuration register.
type Config struct {
	Mode    Mode
	Avg     Avg
	BusConv ConvTime
	ShConv  ConvTime
}

// Word encodes c as the configuration register value.
func (c Config) Word() uint16 {
	return cfgReserved |
		uint16(c.Avg&7)<<9 |
		uint16(c.BusConv&7)<<6 |
		uint16(c.ShConv&7)<<3 |
		uint16(c.Mode&7)
}

// ConfigFromWord decodes a configuration register value.
func ConfigFromWord(w uint16) Config {
	return Config{
		Mode:    Mode(w & 7),
		ShConv:  ConvTime(w >> 3 & 7),
		BusConv: ConvTime(w >> 6 & 7),
		Avg:     Avg(w >> 9 & 7),
	}
}

type Device struct {
	bus  drivers.I2C
	addr uint16

	mu         sync.Mutex
	currentLSB float64 // A per bit; 0 until calibrated
	w          [3]byte
	r          [2]byte
}

// New returns a device at addr (0 selects Address). It does not touch the bus.
func New(bus drivers.I2C, addr uint16) *Device {
	if addr == 0 {
		addr = Address
	}
	return &Device{bus: bus, addr: addr}
}

func (d *Device) Addr() uint16 { return d.addr }

func (d *Device) read(reg byte) (uint16, error) {
	d.w[0] = reg
	if err := d.bus.Tx(d.addr, d.w[:1], d.r[:]); err != nil {
		return 0, err
	}
	return uint16(d.r[0])<<8 | uint16(d.r[1]), nil
}

func (d *Device) write(reg byte, v uint16) error {
	d.w[0] = reg
	d.w[1] = byte(v >> 8)
	d.w[2] = byte(v)
	return d.bus.Tx(d.addr, d.w[:3], nil)
}

// DieID reads the die identification register.
func (d *Device) DieID() (uint16, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.read(regDieID)
}

func (d *Device) ManufacturerID() (uint16, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.read(regManufID)
}

// Reset restores power-on defaults, including calibration.
func (d *Device) Reset() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.write(regConfig, cfgReset); err != nil {
		return err
	}
	d.currentLSB = 0
	return nil
}

func (d *Device) SetConfiguration(c Config) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.write(regConfig, c.Word())
}

func (d *Device) Configuration() (Config, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	w, err := d.read(regConfig)
	if err != nil {
		return Config{}, err
	}
	return ConfigFromWord(w), nil
}

// Calibrate programs the calibration register for a shunt of shuntOhms and a
// full-scale current of maxAmps.
func (d *Device) Calibrate(shuntOhms, maxAmps float64) error {
	if shuntOhms <= 0 || maxAmps <= 0 {
		return ErrCalibration
	}
	lsb := maxAmps / 32768
	cal := calScale / (lsb * shuntOhms)
	if cal < 1 || cal > 0x7FFF {
		return ErrCalibration
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.write(regCalibration, uint16(cal)); err != nil {
		return err
	}
	d.currentLSB = lsb
	return nil
}

// CurrentLSB returns the calibrated amps per bit (0 when uncalibrated).
func (d *Device) CurrentLSB() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.currentLSB
}

// BusMillivolts reads the bus voltage.
func (d *Device) BusMillivolts() (float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, err := d.read(regBus)
	if err != nil {
		return 0, err
	}
	return float64(v) * busLSBmV, nil
}

// ShuntMicrovolts reads the signed shunt voltage.
func (d *Device) ShuntMicrovolts() (float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, err := d.read(regShunt)
	if err != nil {
		return 0, err
	}
	return float64(int16(v)) * shuntLSBuV, nil
}

// Amps reads the signed current.
func (d *Device) Amps() (float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.currentLSB == 0 {
		return 0, ErrNotCalibrated
	}
	v, err := d.read(regCurrent)
	if err != nil {
		return 0, err
	}
	return float64(int16(v)) * d.currentLSB, nil
}

// Watts reads the power register.
func (d *Device) Watts() (float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.currentLSB == 0 {
		return 0, ErrNotCalibrated
	}
	v, err := d.read(regPower)
	if err != nil {
		return 0, err
	}
	return float64(v) * d.currentLSB * powerFactor, nil
}
