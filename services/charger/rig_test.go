package charger

import (
	"testing"
	"time"

	"pdstation-go/drivers/ina226"
	"pdstation-go/drivers/pca9546a"
	"pdstation-go/drivers/sw3526"
	"pdstation-go/services/hal"
	"pdstation-go/services/i2cmux"
	"pdstation-go/types"
	"pdstation-go/x/mailbox"
)

var monAddrs = MonitorAddresses

// rig is a simulated board: two muxes, and per channel a monitor and a
// controller behind the channel's port.
type rig struct {
	bus   *hal.SimBus
	mux   [2]*hal.SimMux
	mon   [4]*hal.SimRegs
	ctl   [4]*hal.SimRegs
	arb   *i2cmux.Arbitrator
	boxes [4]*mailbox.Mailbox[types.ChargeChannelSnapshot]
	chans [4]*Channel
}

type rigOpts struct {
	noMux  [2]bool
	noMon  [4]bool
	noCtl  [4]bool
	depth  int
	config Config
}

func newRig(t *testing.T, o rigOpts) *rig {
	t.Helper()
	r := &rig{bus: hal.NewSimBus()}
	for i := range r.mux {
		r.mux[i] = hal.NewSimMux()
		if !o.noMux[i] {
			r.bus.Attach(uint16(i2cmux.Mux0Address+i), r.mux[i])
		}
	}
	r.arb = i2cmux.New(
		pca9546a.New(r.bus, i2cmux.Mux0Address),
		pca9546a.New(r.bus, i2cmux.Mux1Address),
	)
	if o.depth == 0 {
		o.depth = 10
	}
	for ch := 0; ch < 4; ch++ {
		set, _ := i2cmux.Route(i2cmux.Channel(ch))
		chip, port := 0, set.Mux0
		if set.Mux0 == pca9546a.PortNone {
			chip, port = 1, set.Mux1
		}

		mon := hal.NewSimRegs()
		mon.Set16(0xFF, ina226.DieIDINA226)
		mon.Set16(0x02, uint16(16000+ch)) // bus: 20000 mV + 1.25 mV * ch
		mon.Set16(0x04, 0x4000)           // 2.5 A at 5 A full scale
		mon.Set16(0x03, 1000)
		r.mon[ch] = mon
		if !o.noMon[ch] {
			r.mux[chip].AttachPort(int(port), monAddrs[ch], mon)
		}

		ctl := hal.NewSimRegs()
		ctl.Set(0x01, 0x01)
		ctl.Set(0x06, 0x07) // PD PPS
		ctl.Set(0x07, byte(types.SysPortCOn|types.SysBuckOn))
		ctl.Set(0x3B, 0xD0)
		ctl.Set(0x3C, 0x05)
		ctl.Set(0xAE, 65)
		r.ctl[ch] = ctl
		if !o.noCtl[ch] {
			r.mux[chip].AttachPort(int(port), sw3526.Address, ctl)
		}

		r.boxes[ch] = mailbox.New[types.ChargeChannelSnapshot](o.depth)
		r.chans[ch] = NewChannel(i2cmux.Channel(ch), r.arb,
			ina226.New(r.bus, monAddrs[ch]), sw3526.New(r.bus, 0),
			r.boxes[ch], o.config)
	}
	return r
}

func expectSnapshot(t *testing.T, box *mailbox.Mailbox[types.ChargeChannelSnapshot]) types.ChargeChannelSnapshot {
	t.Helper()
	select {
	case s := <-box.C():
		return s
	case <-time.After(time.Second):
		t.Fatal("no snapshot published")
	}
	return types.ChargeChannelSnapshot{}
}

func expectEmpty(t *testing.T, box *mailbox.Mailbox[types.ChargeChannelSnapshot]) {
	t.Helper()
	if s, ok := box.TryRecv(); ok {
		t.Fatalf("unexpected snapshot %+v", s)
	}
}
