package station

import (
	"pdstation-go/drivers/ina226"
	"pdstation-go/drivers/pca9546a"
	"pdstation-go/drivers/sw3526"
	"pdstation-go/services/charger"
	"pdstation-go/services/hal"
	"pdstation-go/services/i2cmux"
	"pdstation-go/services/protector"
)

// SimBoard is a fully populated simulated board.
type SimBoard struct {
	Bus         *hal.SimBus
	Mux         [2]*hal.SimMux
	Monitors    [i2cmux.NumChannels]*hal.SimRegs
	Controllers [i2cmux.NumChannels]*hal.SimRegs
	Sensors     [2]*hal.SimRegs
	Input       *hal.SimRegs
	Vin         *hal.FakePin
}

// NewSimBoard returns a board with every chip answering and plausible
// readings: 20 V input, about 30 °C, each port negotiating PD at 9 V.
func NewSimBoard() *SimBoard {
	b := &SimBoard{
		Bus: hal.NewSimBus(),
		Vin: hal.NewFakePin(22, true),
	}
	for i := range b.Mux {
		b.Mux[i] = hal.NewSimMux()
		b.Bus.Attach(uint16(i2cmux.Mux0Address+i), b.Mux[i])
	}
	for ch := range b.Monitors {
		set, _ := i2cmux.Route(i2cmux.Channel(ch))
		mux, port := b.Mux[0], set.Mux0
		if port == pca9546a.PortNone {
			mux, port = b.Mux[1], set.Mux1
		}

		mon := hal.NewSimRegs()
		mon.Set16(0xFF, ina226.DieIDINA226)
		mon.Set16(0xFE, ina226.ManufacturerTI)
		mon.Set16(0x02, 7200)   // 9000 mV
		mon.Set16(0x04, 0x3000) // 1.875 A at 5 A full scale
		mon.Set16(0x03, 720)
		mux.AttachPort(int(port), charger.MonitorAddresses[ch], mon)
		b.Monitors[ch] = mon

		ctl := hal.NewSimRegs()
		ctl.Set(0x01, 0x01)
		ctl.Set(0x06, 0x06) // PD fixed
		ctl.Set(0x07, 0x05) // port C on, buck on
		ctl.Set(0x3B, 0x5D)
		ctl.Set(0x3C, 0x0C) // 1500 * 6 mV
		ctl.Set(0xAE, 60)
		mux.AttachPort(int(port), sw3526.Address, ctl)
		b.Controllers[ch] = ctl
	}

	for i, addr := range []uint16{protector.Sensor0Address, protector.Sensor1Address} {
		s := hal.NewSimRegs()
		s.Set16(0x00, uint16(240+8*i)<<5) // 30 °C, 31 °C
		b.Bus.Attach(addr, s)
		b.Sensors[i] = s
	}
	b.Input = hal.NewSimRegs()
	b.Input.Set16(0xFF, ina226.DieIDINA226)
	b.Input.Set16(0x02, 16000) // 20000 mV
	b.Input.Set16(0x04, 0x2000)
	b.Input.Set16(0x03, 1200)
	b.Bus.Attach(protector.MonitorAddress, b.Input)
	return b
}

// Hardware returns the board as station hardware.
func (b *SimBoard) Hardware(restart func(string)) Hardware {
	return Hardware{I2C: b.Bus, Vin: b.Vin, Restart: restart}
}
