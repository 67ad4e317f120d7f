// Package protector watches the board's input: two temperature sensors and
// the input power monitor, plus the Vin enable line.
package protector

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"pdstation-go/drivers/gx21m15"
	"pdstation-go/drivers/ina226"
	"pdstation-go/errcode"
	"pdstation-go/services/watchdog"
	"pdstation-go/types"
	"pdstation-go/x/mailbox"
)

const (
	MonitorAddress = 0x43
	Sensor0Address = 0x48
	Sensor1Address = 0x49
)

// TempSensor is the temperature sensor capability the protector uses.
type TempSensor interface {
	SetConfig(c gx21m15.Config) error
	SetHysteresis(c float32) error
	SetOverShutdown(c float32) error
	Hysteresis() (float32, error)
	OverShutdown() (float32, error)
	Temperature() (float32, error)
}

// Monitor is the input power monitor capability.
type Monitor interface {
	SetConfiguration(c ina226.Config) error
	Calibrate(shuntOhms, maxAmps float64) error
	BusMillivolts() (float64, error)
	Amps() (float64, error)
	Watts() (float64, error)
}

// Rail is the Vin enable line.
type Rail interface {
	TurnOff() error
	TurnOn() error
	Level() bool
	Driven() bool
}

// SensorConfig is applied to both temperature sensors at init.
var SensorConfig = gx21m15.Config{FaultQueue: gx21m15.FaultQueue4}

// MonitorConfig is applied to the input monitor at init.
var MonitorConfig = ina226.Config{
	Mode:    ina226.ModeShuntBusContinuous,
	Avg:     ina226.Avg4,
	BusConv: ina226.Conv588us,
	ShConv:  ina226.Conv588us,
}

type Config struct {
	Period       time.Duration // 1s
	ReadTimeout  time.Duration // bound on one telemetry read (Period)
	MaxFailTimes int           // consecutive failures before re-init (3)
	Hysteresis   float32       // °C (60)
	OverShutdown float32       // °C (70)
	ShuntOhms    float64       // 0.01
	MaxAmps      float64       // 5
}

func (c *Config) defaults() {
	if c.Period <= 0 {
		c.Period = time.Second
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = c.Period
	}
	if c.MaxFailTimes <= 0 {
		c.MaxFailTimes = 3
	}
	if c.Hysteresis == 0 {
		c.Hysteresis = 60
	}
	if c.OverShutdown == 0 {
		c.OverShutdown = 70
	}
	if c.ShuntOhms <= 0 {
		c.ShuntOhms = 0.01
	}
	if c.MaxAmps <= 0 {
		c.MaxAmps = 5
	}
}

type Protector struct {
	sensors  [2]TempSensor
	mon      Monitor
	vin      Rail
	out      *mailbox.Mailbox[types.ProtectorSnapshot]
	override *mailbox.Slot[types.VinState]
	wd       watchdog.Tracker
	cfg      Config

	inits atomic.Int32

	mu       sync.Mutex
	state    types.ProtectorSnapshot
	shutdown bool // set by a disabling override until a Normal one
}

func New(s0, s1 TempSensor, mon Monitor, vin Rail,
	out *mailbox.Mailbox[types.ProtectorSnapshot], override *mailbox.Slot[types.VinState],
	wd watchdog.Tracker, cfg Config) *Protector {
	cfg.defaults()
	return &Protector{
		sensors:  [2]TempSensor{s0, s1},
		mon:      mon,
		vin:      vin,
		out:      out,
		override: override,
		wd:       wd,
		cfg:      cfg,
	}
}

// Inits counts Init calls.
func (p *Protector) Inits() int { return int(p.inits.Load()) }

// State returns the last accumulated snapshot.
func (p *Protector) State() types.ProtectorSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Init configures both sensors' over-temperature output and the input
// monitor. It stops at the first failure.
func (p *Protector) Init() error {
	p.inits.Add(1)
	for i, s := range p.sensors {
		if err := p.initSensor(i, s); err != nil {
			return err
		}
	}
	if err := p.mon.SetConfiguration(MonitorConfig); err != nil {
		return errcode.Wrap(errcode.ConfigFailed, "ina226_config", err)
	}
	if err := p.mon.Calibrate(p.cfg.ShuntOhms, p.cfg.MaxAmps); err != nil {
		return errcode.Wrap(errcode.ConfigFailed, "ina226_calibrate", err)
	}
	return nil
}

func (p *Protector) initSensor(i int, s TempSensor) error {
	if err := s.SetConfig(SensorConfig); err != nil {
		return errcode.Wrap(errcode.ConfigFailed, "gx21m15_config", err)
	}
	if err := s.SetHysteresis(p.cfg.Hysteresis); err != nil {
		return errcode.Wrap(errcode.ConfigFailed, "gx21m15_hysteresis", err)
	}
	if t, err := s.Hysteresis(); err == nil {
		println("[protector] sensor", i, "hysteresis", int(t), "C")
	}
	if err := s.SetOverShutdown(p.cfg.OverShutdown); err != nil {
		return errcode.Wrap(errcode.ConfigFailed, "gx21m15_over_shutdown", err)
	}
	if t, err := s.OverShutdown(); err == nil {
		println("[protector] sensor", i, "over-shutdown", int(t), "C")
	}
	return nil
}

type reading struct {
	s   types.ProtectorSnapshot
	err error
}

// read takes one set of measurements on top of prev. Fields whose read
// failed keep their previous value.
func (p *Protector) read(prev types.ProtectorSnapshot) reading {
	s := prev
	var err error
	for i, sen := range p.sensors {
		t, e := sen.Temperature()
		if e != nil {
			return reading{s, errcode.Wrap(errcode.MapDriverErr(e), "gx21m15_temperature", e)}
		}
		if i == 0 {
			s.Temperature0 = t
		} else {
			s.Temperature1 = t
		}
	}
	if s.Millivolts, err = p.mon.BusMillivolts(); err != nil {
		s.Millivolts = prev.Millivolts
		return reading{s, errcode.Wrap(errcode.MapDriverErr(err), "ina226_bus_mv", err)}
	}
	a, err := p.mon.Amps()
	switch {
	case errors.Is(err, ina226.ErrNotCalibrated):
		println("[protector] input current unavailable")
	case err != nil:
		return reading{s, errcode.Wrap(errcode.MapDriverErr(err), "ina226_amps", err)}
	default:
		s.Amps = -a
	}
	w, err := p.mon.Watts()
	switch {
	case errors.Is(err, ina226.ErrNotCalibrated):
		println("[protector] input power unavailable")
	case err != nil:
		return reading{s, errcode.Wrap(errcode.MapDriverErr(err), "ina226_watts", err)}
	default:
		s.Watts = w
	}
	return reading{s, nil}
}

// applyOverride drives the rail for a remote override.
func (p *Protector) applyOverride(v types.VinState) {
	println("[protector] vin override", v.String())
	p.mu.Lock()
	p.shutdown = v.Disabled()
	p.mu.Unlock()
	var err error
	if v.Disabled() {
		err = p.vin.TurnOff()
	} else {
		err = p.vin.TurnOn()
	}
	if err != nil {
		println("[protector] vin drive:", err.Error())
	}
}

// vinState derives the rail state. While an override holds the rail off the
// state is Shutdown whatever the line reads; otherwise the line level
// decides, low meaning an external protection trip.
func (p *Protector) vinState() types.VinState {
	p.mu.Lock()
	shutdown := p.shutdown
	p.mu.Unlock()
	if shutdown {
		if !p.vin.Driven() {
			if err := p.vin.TurnOff(); err != nil {
				println("[protector] vin drive:", err.Error())
			}
		}
		return types.VinShutdown
	}
	if p.vin.Level() {
		return types.VinNormal
	}
	return types.VinProtection
}

// Cycle runs one telemetry cycle: the read races ReadTimeout and at most
// one pending override. A timed-out read is abandoned. On success the
// snapshot, with its recomputed Vin state, is sent to the mailbox.
func (p *Protector) Cycle(ctx context.Context) error {
	done := make(chan reading, 1)
	prev := p.State()
	go func() { done <- p.read(prev) }()

	t := time.NewTimer(p.cfg.ReadTimeout)
	defer t.Stop()

	var ov <-chan types.VinState
	if p.override != nil {
		ov = p.override.C()
	}
	var res reading
wait:
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			return &errcode.E{C: errcode.Timeout, Op: "protector_read", Msg: "read abandoned"}
		case v := <-ov:
			ov = nil
			p.applyOverride(v)
		case res = <-done:
			break wait
		}
	}
	if res.err != nil {
		return res.err
	}

	res.s.Vin = p.vinState()
	p.mu.Lock()
	p.state = res.s
	p.mu.Unlock()
	return p.out.Send(ctx, res.s)
}

// Run loops until ctx ends. Each outer pass re-initialises the devices;
// the inner loop polls until MaxFailTimes consecutive cycles fail.
// The watchdog task is armed for each Init attempt and dropped from
// timeout checks while a failed init waits for its retry.
func (p *Protector) Run(ctx context.Context) {
	println("[protector] starting")
	tick := time.NewTicker(p.cfg.Period)
	defer tick.Stop()

	next := func(feed bool) bool {
		select {
		case <-ctx.Done():
			println("[protector] stopping")
			return false
		case <-tick.C:
			if feed {
				p.wd.Feed(watchdog.TaskProtector)
			}
			return true
		}
	}

	for {
		if !next(false) {
			return
		}
		p.wd.SetActive(watchdog.TaskProtector, true)
		if err := p.Init(); err != nil {
			println("[protector] init:", err.Error())
			p.wd.SetActive(watchdog.TaskProtector, false)
			continue
		}

		fails := 0
		for fails < p.cfg.MaxFailTimes {
			if !next(true) {
				return
			}
			if err := p.Cycle(ctx); err != nil {
				if ctx.Err() != nil {
					continue
				}
				fails++
				println("[protector] cycle:", err.Error(), "fails", fails)
				continue
			}
			fails = 0
		}
		println("[protector] fail budget exhausted, re-initialising")
	}
}
