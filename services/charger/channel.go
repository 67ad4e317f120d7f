// Package charger runs the four charge channels: one INA226 power monitor and
// one SW3526 fast-charge controller each, reached through the mux.
package charger

import (
	"context"
	"errors"
	"sync"
	"time"

	"pdstation-go/drivers/ina226"
	"pdstation-go/drivers/sw3526"
	"pdstation-go/errcode"
	"pdstation-go/services/i2cmux"
	"pdstation-go/types"
	"pdstation-go/x/mailbox"
)

// Monitor is the power-monitor capability a channel uses.
type Monitor interface {
	DieID() (uint16, error)
	SetConfiguration(c ina226.Config) error
	Calibrate(shuntOhms, maxAmps float64) error
	BusMillivolts() (float64, error)
	Amps() (float64, error)
	Watts() (float64, error)
}

// Controller is the fast-charge controller capability a channel uses.
type Controller interface {
	ChipVersion() (uint8, error)
	Unlock() error
	SetFastChargeConfig1(c sw3526.FastChargeConfig1) error
	SetLimitWatts(w uint8) error
	Status(ctx context.Context) (sw3526.Status, error)
}

// Selector routes the shared bus to a channel.
type Selector interface {
	Select(ch i2cmux.Channel) error
}

// MonitorAddresses are the per-channel monitor addresses behind the mux.
var MonitorAddresses = [i2cmux.NumChannels]uint16{0x44, 0x41, 0x45, 0x40}

// MonitorConfig is the sampling and calibration applied to every monitor.
var MonitorConfig = ina226.Config{
	Mode:    ina226.ModeShuntBusContinuous,
	Avg:     ina226.Avg4,
	BusConv: ina226.Conv588us,
	ShConv:  ina226.Conv588us,
}

// Config holds per-channel policy. Zero values select the defaults noted.
type Config struct {
	LimitWatts        uint8         // output power cap (65)
	ShuntOhms         float64       // 0.01
	MaxAmps           float64       // 5
	ControllerTimeout time.Duration // bound on the bundled controller read (1s)
	FastCharge        sw3526.FastChargeConfig1
}

func (c *Config) defaults() {
	if c.LimitWatts == 0 {
		c.LimitWatts = 65
	}
	if c.ShuntOhms <= 0 {
		c.ShuntOhms = 0.01
	}
	if c.MaxAmps <= 0 {
		c.MaxAmps = 5
	}
	if c.ControllerTimeout <= 0 {
		c.ControllerTimeout = time.Second
	}
}

// Channel is one charge channel's state machine.
type Channel struct {
	idx i2cmux.Channel
	sel Selector
	mon Monitor
	ctl Controller
	out *mailbox.Mailbox[types.ChargeChannelSnapshot]
	cfg Config

	mu     sync.Mutex
	status OnlineStatus
	state  types.ChargeChannelSnapshot
}

func NewChannel(idx i2cmux.Channel, sel Selector, mon Monitor, ctl Controller,
	out *mailbox.Mailbox[types.ChargeChannelSnapshot], cfg Config) *Channel {
	cfg.defaults()
	return &Channel{idx: idx, sel: sel, mon: mon, ctl: ctl, out: out, cfg: cfg}
}

func (c *Channel) Index() i2cmux.Channel { return c.idx }

func (c *Channel) Status() OnlineStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// State returns the last accumulated readings.
func (c *Channel) State() types.ChargeChannelSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Channel) setBit(b OnlineStatus, on bool) {
	c.mu.Lock()
	if on {
		c.status = c.status.Or(b)
	} else {
		c.status = c.status.And(b.Not())
	}
	c.mu.Unlock()
}

// Init probes and configures the controller, then the monitor. Each
// sub-device's bit is set only when its probe and configuration both
// succeed; a failure clears that bit alone. The returned error joins every
// failure for logging.
func (c *Channel) Init() error {
	if err := c.sel.Select(c.idx); err != nil {
		c.setBit(Online, false)
		return err
	}
	errCtl := c.initController()
	c.setBit(ControllerOnline, errCtl == nil)
	errMon := c.initMonitor()
	c.setBit(MonitorOnline, errMon == nil)
	return errors.Join(errCtl, errMon)
}

func (c *Channel) initController() error {
	v, err := c.ctl.ChipVersion()
	if err != nil {
		return errcode.Wrap(errcode.ProbeFailed, "sw3526_chip_version", err)
	}
	println("[charger] ch", int(c.idx), "sw3526 chip version", v)
	if err := c.ctl.Unlock(); err != nil {
		return errcode.Wrap(errcode.ConfigFailed, "sw3526_unlock", err)
	}
	if err := c.ctl.SetFastChargeConfig1(c.cfg.FastCharge); err != nil {
		return errcode.Wrap(errcode.ConfigFailed, "sw3526_fast_charge", err)
	}
	if err := c.ctl.SetLimitWatts(c.cfg.LimitWatts); err != nil {
		return errcode.Wrap(errcode.ConfigFailed, "sw3526_limit_watts", err)
	}
	return nil
}

func (c *Channel) initMonitor() error {
	if _, err := c.mon.DieID(); err != nil {
		return errcode.Wrap(errcode.ProbeFailed, "ina226_die_id", err)
	}
	if err := c.mon.SetConfiguration(MonitorConfig); err != nil {
		return errcode.Wrap(errcode.ConfigFailed, "ina226_config", err)
	}
	if err := c.mon.Calibrate(c.cfg.ShuntOhms, c.cfg.MaxAmps); err != nil {
		return errcode.Wrap(errcode.ConfigFailed, "ina226_calibrate", err)
	}
	return nil
}

type statusResult struct {
	s   sw3526.Status
	err error
}

// PollOnce runs one telemetry cycle. It does nothing unless the channel is
// fully online. Monitor readings are taken first; the bundled controller
// read then races ControllerTimeout. If the timer wins the read is abandoned
// (it may still complete on the bus) and no snapshot is published. On
// success the snapshot is sent to the channel mailbox, waiting for capacity.
// Fields whose read failed keep their previous value.
func (c *Channel) PollOnce(ctx context.Context) error {
	if !c.Status().IsOnline() {
		return nil
	}
	if err := c.sel.Select(c.idx); err != nil {
		return err
	}

	snap := c.State()
	defer func() {
		c.mu.Lock()
		c.state = snap
		c.mu.Unlock()
	}()

	var err error
	if snap.Millivolts, err = readOr(c.mon.BusMillivolts, snap.Millivolts); err != nil {
		return errcode.Wrap(codeOf(err), "ina226_bus_mv", err)
	}
	if snap.Amps, err = readOr(c.mon.Amps, snap.Amps); err != nil {
		return errcode.Wrap(codeOf(err), "ina226_amps", err)
	}
	if snap.Watts, err = readOr(c.mon.Watts, snap.Watts); err != nil {
		return errcode.Wrap(codeOf(err), "ina226_watts", err)
	}

	// Cancelled on return, so an abandoned read stops after the transaction
	// in flight instead of reaching the next channel's controller.
	rctx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan statusResult, 1)
	go func() {
		s, err := c.ctl.Status(rctx)
		done <- statusResult{s, err}
	}()

	t := time.NewTimer(c.cfg.ControllerTimeout)
	defer t.Stop()

	var res statusResult
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return &errcode.E{C: errcode.Timeout, Op: "sw3526_status", Msg: "controller read abandoned"}
	case res = <-done:
	}
	if res.err != nil {
		return errcode.Wrap(codeOf(res.err), "sw3526_status", res.err)
	}

	snap.LimitWatts = res.s.LimitWatts
	snap.BuckOutputMillivolts = res.s.BuckOutputMillivolts
	snap.Protocol = types.Protocol(res.s.Protocol)
	snap.SystemStatus = types.SystemStatus(res.s.SystemStatus)
	snap.AbnormalCase = types.AbnormalCase(res.s.AbnormalCase)
	snap.BuckOutputLimitMilliamps = res.s.BuckOutputLimitMilliamps

	return c.out.Send(ctx, snap)
}

// readOr returns prev alongside a failed read's error.
func readOr(read func() (float64, error), prev float64) (float64, error) {
	v, err := read()
	if err != nil {
		return prev, err
	}
	return v, nil
}

func codeOf(err error) errcode.Code {
	if errors.Is(err, ina226.ErrNotCalibrated) {
		return errcode.NotCalibrated
	}
	return errcode.MapDriverErr(err)
}
