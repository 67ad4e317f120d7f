package heartbeat

import (
	"context"
	"testing"
	"time"

	"pdstation-go/bus"
	"pdstation-go/types"
)

func TestInterval(t *testing.T) {
	cases := []struct {
		in   any
		want time.Duration
		ok   bool
	}{
		{map[string]any{"interval": float64(2)}, 2 * time.Second, true},
		{map[string]any{"interval": 1}, time.Second, true},
		{map[string]any{"interval": 0.5}, 500 * time.Millisecond, true},
		{map[string]any{"interval": -1}, 0, false},
		{map[string]any{"other": 1}, 0, false},
		{"5", 0, false},
	}
	for _, c := range cases {
		got, ok := interval(c.in)
		if got != c.want || ok != c.ok {
			t.Fatalf("interval(%v) = %v, %v", c.in, got, ok)
		}
	}
}

func TestBeatSummarisesTelemetry(t *testing.T) {
	b := bus.NewBus(16)
	pub := b.NewConnection("pub")
	pub.Publish(pub.NewMessage(bus.T("telemetry", "protector"),
		types.ProtectorSnapshot{Temperature0: 33, Vin: types.VinShutdown}, true))
	pub.Publish(pub.NewMessage(bus.T("telemetry", "charge", 0), types.ChargeChannelSnapshot{}, true))
	pub.Publish(pub.NewMessage(bus.T("telemetry", "charge", 1), types.ChargeChannelSnapshot{}, true))

	s := &Service{Interval: 10 * time.Millisecond}
	beats := make(chan Beat, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.serviceLoop(ctx, b.NewConnection("heartbeat"), beats)

	deadline := time.After(time.Second)
	for {
		select {
		case bt := <-beats:
			if bt.ChargeMessages == 2 && bt.HaveProtector {
				if bt.Protector.Vin != types.VinShutdown {
					t.Fatalf("protector %+v", bt.Protector)
				}
				return
			}
		case <-deadline:
			t.Fatal("heartbeat never reflected the retained telemetry")
		}
	}
}

func TestRunReturnsOnCancel(t *testing.T) {
	b := bus.NewBus(4)
	s := &Service{Interval: time.Millisecond}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx, b.NewConnection("heartbeat"))
		close(done)
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run kept going after cancel")
	}
}
