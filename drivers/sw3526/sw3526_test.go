package sw3526

import (
	"context"
	"errors"
	"testing"

	"pdstation-go/services/hal"
)

func newSim() (*Device, *hal.SimRegs, *hal.SimBus) {
	bus := hal.NewSimBus()
	regs := hal.NewSimRegs()
	regs.Set(regChipVersion, 0xF2)
	bus.Attach(Address, regs)
	return New(bus, 0), regs, bus
}

func TestChipVersionMasksReservedBits(t *testing.T) {
	d, _, _ := newSim()
	v, err := d.ChipVersion()
	if err != nil || v != 2 {
		t.Fatalf("ChipVersion = %d,%v want 2", v, err)
	}
}

func TestConfigRequiresUnlock(t *testing.T) {
	d, regs, _ := newSim()
	if err := d.SetLimitWatts(65); !errors.Is(err, ErrLocked) {
		t.Fatalf("locked write err = %v", err)
	}
	if err := d.SetFastChargeConfig1(FastChargeConfig1{}); !errors.Is(err, ErrLocked) {
		t.Fatalf("locked write err = %v", err)
	}

	var seq []byte
	regs.OnWrite = func(reg byte, data []byte) {
		if reg == regI2CEnable {
			seq = append(seq, data[0])
		}
	}
	if err := d.Unlock(); err != nil {
		t.Fatal(err)
	}
	if string(seq) != string(unlockSeq[:]) {
		t.Fatalf("unlock sequence % x", seq)
	}
	if err := d.SetLimitWatts(65); err != nil {
		t.Fatal(err)
	}
	if got, _ := d.LimitWatts(); got != 65 {
		t.Fatalf("LimitWatts = %d", got)
	}
}

func TestSetLimitWattsClamps(t *testing.T) {
	d, _, _ := newSim()
	_ = d.Unlock()
	_ = d.SetLimitWatts(200)
	if got, _ := d.LimitWatts(); got != MaxLimitWatts {
		t.Fatalf("over range stored %d", got)
	}
	_ = d.SetLimitWatts(1)
	if got, _ := d.LimitWatts(); got != MinLimitWatts {
		t.Fatalf("under range stored %d", got)
	}
}

func TestFastChargeConfigBits(t *testing.T) {
	d, regs, _ := newSim()
	_ = d.Unlock()
	if err := d.SetFastChargeConfig1(FastChargeConfig1{}); err != nil {
		t.Fatal(err)
	}
	if b := regs.Get(regFastCharge1); len(b) != 1 || b[0] != 0 {
		t.Fatalf("all tiers enabled should write 0, got % x", b)
	}
	want := FastChargeConfig1{PPS1Disabled: true, PD9VDisabled: true}
	_ = d.SetFastChargeConfig1(want)
	got, err := d.FastChargeConfig1()
	if err != nil || got != want {
		t.Fatalf("read back %+v,%v", got, err)
	}
}

func TestStatusBundle(t *testing.T) {
	d, regs, _ := newSim()
	regs.Set(regWattLimit, 65)
	regs.Set(regADCHigh, 0xD0)
	regs.Set(regADCLow, 0xF5)
	regs.Set(regProtocol, 0x27)
	regs.Set(regSystemStatus, 0x05)
	regs.Set(regAbnormal, 0x00)
	regs.Set(regBuckLimit, 65)

	s, err := d.Status(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	want := Status{
		LimitWatts:               65,
		BuckOutputMillivolts:     0xD05 * 6,
		Protocol:                 7,
		SystemStatus:             5,
		BuckOutputLimitMilliamps: 3250,
	}
	if s != want {
		t.Fatalf("Status = %+v\nwant %+v", s, want)
	}
	if sel := regs.Get(regADCSelect); len(sel) != 1 || sel[0] != adcBuckVout {
		t.Fatalf("ADC channel not selected: % x", sel)
	}
}

func TestStatusStopsAtFirstError(t *testing.T) {
	d, _, bus := newSim()
	bus.Fail(Address, errors.New("nack"))
	if _, err := d.Status(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if n := len(bus.Log()); n != 1 {
		t.Fatalf("%d transactions after first failure, want 1", n)
	}
}

func TestStatusStopsWhenCancelled(t *testing.T) {
	d, regs, bus := newSim()
	ctx, cancel := context.WithCancel(context.Background())
	regs.OnWrite = func(reg byte, _ []byte) {
		if reg == regADCSelect {
			cancel()
		}
	}
	s, err := d.Status(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want canceled", err)
	}
	// watt limit, ADC select, ADC high, ADC low; nothing after.
	if n := len(bus.Log()); n != 4 {
		t.Fatalf("%d transactions, want 4", n)
	}
	if s.SystemStatus != 0 || s.BuckOutputLimitMilliamps != 0 {
		t.Fatalf("fields read after cancel: %+v", s)
	}
}
