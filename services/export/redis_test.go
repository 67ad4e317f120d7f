//go:build !rp2040

package export

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"pdstation-go/bus"
	"pdstation-go/services/bridge"
	"pdstation-go/types"
)

// ---- redis ----

type write struct {
	key    string
	fields map[string]any
	record []byte
}

type fakeStore struct {
	mu      sync.Mutex
	pings   int
	pingErr int // first n pings fail
	writes  []write
	vin     chan string
}

func (s *fakeStore) Ping(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pings++
	if s.pings <= s.pingErr {
		return errors.New("connection refused")
	}
	return nil
}

func (s *fakeStore) Write(_ context.Context, key string, fields map[string]any, record []byte) error {
	s.mu.Lock()
	s.writes = append(s.writes, write{key, fields, record})
	s.mu.Unlock()
	return nil
}

func (s *fakeStore) Subscribe(context.Context, string) (<-chan string, func()) {
	return s.vin, func() {}
}

func (s *fakeStore) snapshot() []write {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]write(nil), s.writes...)
}

func TestRedis_WritesTelemetryAndForwardsVin(t *testing.T) {
	b := bus.NewBus(16)
	conn := b.NewConnection("test")
	st := &fakeStore{pingErr: 1, vin: make(chan string, 1)}
	r := newRedis(b.NewConnection("redis"), st, "")

	vinSub := conn.Subscribe(topicVin)
	defer conn.Unsubscribe(vinSub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	// Retained telemetry published before the sink connected is still exported.
	conn.Publish(conn.NewMessage(bus.T("telemetry", "charge", 1), chargeSnap, true))
	conn.Publish(conn.NewMessage(bus.T("telemetry", "protector"), protSnap, true))

	deadline := time.Now().Add(2 * time.Second)
	for len(st.snapshot()) < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	keys := map[string]bool{}
	for _, w := range st.snapshot() {
		keys[w.key] = true
	}
	if !keys["pdstation:charge:1"] || !keys["pdstation:protector"] {
		t.Fatalf("keys %v", keys)
	}

	st.vin <- "shutdown"
	select {
	case m := <-vinSub.Channel():
		if m.Payload != "shutdown" {
			t.Fatalf("vin payload %v", m.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("override not forwarded")
	}
}

func TestRedis_ForwardsByteCodeOverrides(t *testing.T) {
	b := bus.NewBus(16)
	conn := b.NewConnection("test")
	st := &fakeStore{vin: make(chan string, 1)}
	r := newRedis(b.NewConnection("redis"), st, "")

	vinSub := conn.Subscribe(topicVin)
	defer conn.Unsubscribe(vinSub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	for _, c := range []struct {
		msg  string
		want types.VinState
	}{
		{"\x01", types.VinShutdown},
		{"1", types.VinShutdown},
		{"\x02", types.VinProtection},
		{"0", types.VinNormal},
	} {
		st.vin <- c.msg
		select {
		case m := <-vinSub.Channel():
			if p, ok := m.Payload.([]byte); !ok || len(p) != 1 {
				t.Fatalf("%q forwarded as %#v, want one byte", c.msg, m.Payload)
			}
			got, err := bridge.DecodeVin(m.Payload)
			if err != nil || got != c.want {
				t.Fatalf("%q decoded as %v, %v; want %v", c.msg, got, err, c.want)
			}
		case <-time.After(time.Second):
			t.Fatalf("%q not forwarded", c.msg)
		}
	}
}

func TestRedis_StopsWhileWaiting(t *testing.T) {
	b := bus.NewBus(4)
	r := newRedis(b.NewConnection("redis"), &fakeStore{pingErr: 1 << 30}, "x")
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { r.Run(ctx); close(done) }()
	time.Sleep(10 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run ignored cancel during backoff")
	}
	if k := r.Key(Record{Kind: KindCharge, Index: 2}); k != "x:charge:2" {
		t.Fatalf("key %q", k)
	}
}
