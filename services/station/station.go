// Package station wires the control plane together: one shared bus owner,
// the mux arbitrator, four charge channels, the protector and the watchdog,
// plus the bus-facing services around them.
package station

import (
	"context"
	"sync"

	"pdstation-go/bus"
	"pdstation-go/drivers/gx21m15"
	"pdstation-go/drivers/ina226"
	"pdstation-go/drivers/pca9546a"
	"pdstation-go/drivers/sw3526"
	"pdstation-go/services/bridge"
	"pdstation-go/services/charger"
	"pdstation-go/services/config"
	"pdstation-go/services/hal"
	"pdstation-go/services/heartbeat"
	"pdstation-go/services/i2cmux"
	"pdstation-go/services/protector"
	"pdstation-go/services/watchdog"
	"pdstation-go/types"
	"pdstation-go/x/mailbox"

	"tinygo.org/x/drivers"
)

var TopicStatusGet = bus.T("station", "status", "get")

// Hardware is what a board provides to the station.
type Hardware struct {
	I2C     drivers.I2C
	Vin     hal.Pin
	Restart func(reason string)
}

type Station struct {
	cfg   *config.Config
	owner *hal.Owner

	Mux       *i2cmux.Arbitrator
	Channels  [i2cmux.NumChannels]*charger.Channel
	Charger   *charger.Service
	Protector *protector.Protector
	Watchdog  *watchdog.Supervisor

	ChargeBoxes  [i2cmux.NumChannels]*mailbox.Mailbox[types.ChargeChannelSnapshot]
	ProtectorBox *mailbox.Mailbox[types.ProtectorSnapshot]
	VinSlot      *mailbox.Slot[types.VinState]

	wg sync.WaitGroup
}

// New builds the station. Nothing touches the bus until Start.
func New(cfg *config.Config, hw Hardware) *Station {
	s := &Station{
		cfg:          cfg,
		owner:        hal.NewOwner("i2c0", hw.I2C, 16),
		ProtectorBox: mailbox.New[types.ProtectorSnapshot](cfg.Protector.MailboxDepth),
		VinSlot:      mailbox.NewSlot[types.VinState](),
	}
	dev := s.owner.Device(0)

	s.Watchdog = watchdog.New(watchdog.Config{
		Timeout:       cfg.Watchdog.Timeout(),
		CheckInterval: cfg.Watchdog.CheckInterval(),
		StableAfter:   cfg.Watchdog.StableAfter(),
		Restart:       hw.Restart,
	})

	s.Mux = i2cmux.New(
		pca9546a.New(dev, i2cmux.Mux0Address),
		pca9546a.New(dev, i2cmux.Mux1Address),
	)
	chCfg := channelConfig(cfg.Charger)
	for i := range s.Channels {
		s.ChargeBoxes[i] = mailbox.New[types.ChargeChannelSnapshot](cfg.Charger.MailboxDepth)
		s.Channels[i] = newChannel(i2cmux.Channel(i), dev, s.Mux, s.ChargeBoxes[i], chCfg)
	}
	s.Charger = charger.NewService(s.Mux, s.Watchdog, charger.ServiceConfig{
		Period:      cfg.Charger.Period(),
		ReinitEvery: cfg.Charger.ReinitEvery,
	}, s.Channels[:]...)

	s.Protector = protector.New(
		gx21m15.New(dev, protector.Sensor0Address),
		gx21m15.New(dev, protector.Sensor1Address),
		ina226.New(dev, protector.MonitorAddress),
		hal.NewVinLine(hw.Vin),
		s.ProtectorBox, s.VinSlot, s.Watchdog,
		protector.Config{
			Period:       cfg.Protector.Period(),
			MaxFailTimes: cfg.Protector.MaxFailTimes,
			Hysteresis:   cfg.Protector.HysteresisC,
			OverShutdown: cfg.Protector.OverShutdownC,
			ShuntOhms:    cfg.Protector.ShuntOhms,
			MaxAmps:      cfg.Protector.MaxAmps,
		})
	return s
}

func newChannel(idx i2cmux.Channel, dev drivers.I2C, sel charger.Selector,
	out *mailbox.Mailbox[types.ChargeChannelSnapshot], cfg charger.Config) *charger.Channel {
	return charger.NewChannel(idx, sel,
		ina226.New(dev, charger.MonitorAddresses[idx]),
		sw3526.New(dev, sw3526.Address),
		out, cfg)
}

func channelConfig(c config.ChargerConfig) charger.Config {
	fc := c.FastCharge
	return charger.Config{
		LimitWatts:        c.LimitWatts,
		ShuntOhms:         c.ShuntOhms,
		MaxAmps:           c.MaxAmps,
		ControllerTimeout: c.ControllerTimeout(),
		FastCharge: sw3526.FastChargeConfig1{
			PPS1Disabled:  fc.DisablePPS1,
			PPS0Disabled:  fc.DisablePPS0,
			PD20VDisabled: fc.DisablePD20V,
			PD15VDisabled: fc.DisablePD15V,
			PD12VDisabled: fc.DisablePD12V,
			PD9VDisabled:  fc.DisablePD9V,
			PDDisabled:    fc.DisablePD,
		},
	}
}

// Start launches every loop. Each service gets its own bus connection.
func (s *Station) Start(ctx context.Context, b *bus.Bus) {
	config.Publish(ctx, b.NewConnection("config"), s.cfg)

	s.spawn(func() { s.Watchdog.Run(ctx) })
	s.spawn(func() { s.Charger.Run(ctx) })
	s.spawn(func() { s.Protector.Run(ctx) })
	s.spawn(func() {
		bridge.Start(ctx, b.NewConnection("bridge"), bridge.Sources{
			Charge:    s.ChargeBoxes[:],
			Protector: s.ProtectorBox,
			Vin:       s.VinSlot,
		})
	})
	s.spawn(func() { s.serveStatus(ctx, b.NewConnection("station")) })

	hb := &heartbeat.Service{}
	hbConn := b.NewConnection("heartbeat")
	s.spawn(func() { hb.Run(ctx, hbConn) })
}

func (s *Station) spawn(fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
}

// Wait blocks until every loop has returned, then stops the bus owner.
func (s *Station) Wait() {
	s.wg.Wait()
	s.owner.Close()
}

// Status is the reply to station/status/get.
type Status struct {
	Watchdog watchdog.Status
	Channels [i2cmux.NumChannels]string
	MuxChips [2]bool
}

func (s *Station) Status() Status {
	st := Status{Watchdog: s.Watchdog.Status()}
	for i, ch := range s.Channels {
		st.Channels[i] = ch.Status().String()
	}
	for i := range st.MuxChips {
		st.MuxChips[i] = s.Mux.ChipAvailable(i)
	}
	return st
}

func (s *Station) serveStatus(ctx context.Context, conn *bus.Connection) {
	sub := conn.Subscribe(TopicStatusGet)
	defer conn.Unsubscribe(sub)
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-sub.Channel():
			if !ok {
				return
			}
			conn.Reply(m, s.Status(), false)
		}
	}
}
