package export

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"pdstation-go/bus"
	"pdstation-go/types"
)

var (
	chargeSnap = types.ChargeChannelSnapshot{
		Millivolts: 9000, Amps: 2.25, Watts: 20.25,
		Protocol: types.ProtocolPDFix, BuckOutputMillivolts: 9012,
		BuckOutputLimitMilliamps: 3000, LimitWatts: 65,
	}
	protSnap = types.ProtectorSnapshot{Temperature0: 30.5, Temperature1: 31, Millivolts: 20000, Amps: -1, Vin: types.VinNormal}
)

func TestEncode(t *testing.T) {
	b := bus.NewBus(4)
	conn := b.NewConnection("t")

	rec, ok := Encode(conn.NewMessage(bus.T("telemetry", "charge", 3), chargeSnap, true))
	if !ok || rec.Kind != KindCharge || rec.Index != 3 || len(rec.Payload) != types.ChargeChannelWireSize {
		t.Fatalf("charge record %+v ok=%v", rec, ok)
	}
	var back types.ChargeChannelSnapshot
	if err := back.UnmarshalBinary(rec.Payload); err != nil || back != chargeSnap {
		t.Fatalf("payload does not decode: %+v %v", back, err)
	}
	if rec.Fields["protocol"] != "pd_fix" || rec.Fields["millivolts"] != "9000.000" || rec.Fields["limit_watts"] != "65" {
		t.Fatalf("fields %v", rec.Fields)
	}

	rec, ok = Encode(conn.NewMessage(bus.T("telemetry", "protector"), protSnap, true))
	if !ok || rec.Kind != KindProtector || len(rec.Payload) != types.ProtectorWireSize {
		t.Fatalf("protector record %+v", rec)
	}
	if rec.Fields["vin"] != "normal" || rec.Fields["amps"] != "-1.000" {
		t.Fatalf("fields %v", rec.Fields)
	}

	if _, ok := Encode(conn.NewMessage(bus.T("telemetry", "charge", "x"), chargeSnap, false)); ok {
		t.Fatal("non-numeric channel token accepted")
	}
	if _, ok := Encode(conn.NewMessage(bus.T("telemetry", "other"), "hello", false)); ok {
		t.Fatal("non-snapshot payload accepted")
	}
}

// ---- serial ----

// link is an in-memory serial port.
type link struct {
	mu  sync.Mutex
	out bytes.Buffer
	in  io.Reader
}

func (l *link) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.out.Write(p)
}

func (l *link) Read(p []byte) (int, error) { return l.in.Read(p) }

func (l *link) written() []byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]byte(nil), l.out.Bytes()...)
}

func TestSerial_WritesRecordsAndReadsOverrides(t *testing.T) {
	b := bus.NewBus(16)
	conn := b.NewConnection("test")
	vinSub := conn.Subscribe(topicVin)
	defer conn.Unsubscribe(vinSub)

	l := &link{in: bytes.NewReader([]byte{0x00, 'V', 0x01, 'x'})}
	s := NewSerial(b.NewConnection("serial"), l)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	select {
	case m := <-vinSub.Channel():
		if p, _ := m.Payload.([]byte); len(p) != 1 || p[0] != 1 {
			t.Fatalf("vin payload %v", m.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("override not read")
	}

	conn.Publish(conn.NewMessage(bus.T("telemetry", "protector"), protSnap, true))
	deadline := time.Now().Add(time.Second)
	for s.Written() < 1 && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	got := l.written()
	if len(got) != 2+types.ProtectorWireSize || got[0] != KindProtector || got[1] != 0 {
		t.Fatalf("record % x", got)
	}
	var back types.ProtectorSnapshot
	if err := back.UnmarshalBinary(got[2:]); err != nil || back != protSnap {
		t.Fatalf("decoded %+v %v", back, err)
	}
}
