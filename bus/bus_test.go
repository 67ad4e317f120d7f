package bus

import (
	"context"
	"sort"
	"testing"
	"time"
)

func TestPublishReachesExactSubscriber(t *testing.T) {
	b := NewBus(4)
	conn := b.NewConnection("charger")
	sub := conn.Subscribe(T("telemetry", "charge", 0))

	conn.Publish(conn.NewMessage(T("telemetry", "charge", 0), "ch0", false))
	expectOneOf(t, sub, "ch0")

	conn.Publish(conn.NewMessage(T("telemetry", "charge", 1), "ch1", false))
	expectNoMessage(t, sub)
}

func TestRetainedTelemetryReplaysToLateSubscriber(t *testing.T) {
	b := NewBus(4)
	conn := b.NewConnection("bridge")
	conn.Publish(conn.NewMessage(T("telemetry", "protector"), "first", true))
	conn.Publish(conn.NewMessage(T("telemetry", "protector"), "latest", true))

	sub := conn.Subscribe(T("telemetry", "protector"))
	expectOneOf(t, sub, "latest")
	expectNoMessage(t, sub)
}

func TestWildcardMatching(t *testing.T) {
	for _, c := range []struct {
		pattern Topic
		topic   Topic
		match   bool
	}{
		{T("telemetry", "charge", "+"), T("telemetry", "charge", 2), true},
		{T("telemetry", "+", "+"), T("telemetry", "charge", 2), true},
		{T("telemetry", "+"), T("telemetry", "protector"), true},
		{T("telemetry", "+"), T("telemetry", "charge", 2), false},
		{T("telemetry", "#"), T("telemetry"), true},
		{T("telemetry", "#"), T("telemetry", "charge", 3), true},
		{T("#"), T("config", "protector", "vin"), true},
		{T("config", "+", "vin"), T("config", "protector", "vin"), true},
		{T("config", "+", "vin"), T("config", "vin"), false},
		{T("config", "protector", "#"), T("config", "heartbeat"), false},
	} {
		b := NewBus(4)
		conn := b.NewConnection("test")
		sub := conn.Subscribe(c.pattern)
		conn.Publish(conn.NewMessage(c.topic, "m", false))
		if c.match {
			expectOneOf(t, sub, "m")
		} else {
			expectNoMessage(t, sub)
		}
	}
}

func TestWildcardReplaysEveryRetainedMatch(t *testing.T) {
	b := NewBus(16)
	conn := b.NewConnection("bridge")
	for i := 0; i < 4; i++ {
		conn.Publish(conn.NewMessage(T("telemetry", "charge", i), "ch"+string(rune('0'+i)), true))
	}
	conn.Publish(conn.NewMessage(T("telemetry", "protector"), "prot", true))
	conn.Publish(conn.NewMessage(T("config", "heartbeat"), "cfg", true))

	all := conn.Subscribe(T("telemetry", "#"))
	assertUnorderedEqual(t, drainPayloads(t, all, 5), []string{"ch0", "ch1", "ch2", "ch3", "prot"})

	charge := conn.Subscribe(T("telemetry", "charge", "+"))
	assertUnorderedEqual(t, drainPayloads(t, charge, 4), []string{"ch0", "ch1", "ch2", "ch3"})
}

func TestRetainedNilClears(t *testing.T) {
	b := NewBus(8)
	conn := b.NewConnection("bridge")
	conn.Publish(conn.NewMessage(T("telemetry", "charge", 0), "stale", true))
	conn.Publish(conn.NewMessage(T("telemetry", "protector"), "prot", true))
	conn.Publish(conn.NewMessage(T("telemetry", "charge", 0), nil, true))

	sub := conn.Subscribe(T("telemetry", "#"))
	if got := drainPayloads(t, sub, 1); got[0] != "prot" {
		t.Fatalf("retained after clear: %v", got)
	}
	expectNoMessage(t, sub)
}

// -----------------------------------------------------------------------------
// Request–Reply
// -----------------------------------------------------------------------------

func TestRequestWaitGetsReply(t *testing.T) {
	b := NewBus(8)
	client := b.NewConnection("client")
	server := b.NewConnection("station")

	get := T("station", "status", "get")
	reqs := server.Subscribe(get)
	defer server.Unsubscribe(reqs)
	go func() {
		if m, ok := <-reqs.Channel(); ok {
			server.Reply(m, "online", false)
		}
	}()

	req := b.NewMessage(get, nil, false)
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	reply, err := client.RequestWait(ctx, req)
	if err != nil {
		t.Fatalf("RequestWait: %v", err)
	}
	if s, _ := reply.Payload.(string); s != "online" {
		t.Fatalf("reply payload %#v", reply.Payload)
	}
	if len(req.ReplyTo) == 0 || !topicsEqual(reply.Topic, req.ReplyTo) {
		t.Fatalf("reply topic %v, ReplyTo %v", reply.Topic, req.ReplyTo)
	}
}

func TestRequestWaitHonoursDeadline(t *testing.T) {
	b := NewBus(8)
	client := b.NewConnection("client")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if _, err := client.RequestWait(ctx, b.NewMessage(T("station", "nobody"), nil, false)); err == nil {
		t.Fatal("expected deadline error")
	}
}

func TestRequestKeepsReplySubscription(t *testing.T) {
	b := NewBus(8)
	client := b.NewConnection("client")
	server := b.NewConnection("station")

	reqs := server.Subscribe(T("station", "status", "get"))
	defer server.Unsubscribe(reqs)
	replies := client.Request(b.NewMessage(T("station", "status", "get"), nil, false))
	defer client.Unsubscribe(replies)

	go func() {
		if m, ok := <-reqs.Channel(); ok {
			server.Reply(m, map[string]any{"restarts": 0}, false)
		}
	}()

	select {
	case got := <-replies.Channel():
		if m, ok := got.Payload.(map[string]any); !ok || m["restarts"] != 0 {
			t.Fatalf("reply %#v", got.Payload)
		}
	case <-time.After(300 * time.Millisecond):
		t.Fatal("no reply")
	}
}

// -----------------------------------------------------------------------------
// helpers
// -----------------------------------------------------------------------------

// -----------------------------------------------------------------------------

func topicsEqual(a, b Topic) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func expectOneOf(t *testing.T, sub *Subscription, want string) {
	t.Helper()
	select {
	case got := <-sub.Channel():
		s, ok := got.Payload.(string)
		if !ok || s != want {
			t.Fatalf("unexpected payload: %v (want %q)", got.Payload, want)
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("timeout waiting for %q", want)
	}
}

func expectNoMessage(t *testing.T, sub *Subscription) {
	t.Helper()
	select {
	case got := <-sub.Channel():
		t.Fatalf("unexpected message: %#v", got)
	case <-time.After(60 * time.Millisecond):
	}
}

func drainPayloads(t *testing.T, sub *Subscription, n int) []string {
	t.Helper()
	var out []string
	deadline := time.Now().Add(300 * time.Millisecond)
	for len(out) < n && time.Now().Before(deadline) {
		select {
		case m := <-sub.Channel():
			if s, ok := m.Payload.(string); ok {
				out = append(out, s)
			} else {
				t.Fatalf("non-string payload in drain: %#v", m.Payload)
			}
		case <-time.After(10 * time.Millisecond):
		}
	}
	if len(out) != n {
		t.Fatalf("drainPayloads: expected %d messages, got %d (%v)", n, len(out), out)
	}
	return out
}

func assertUnorderedEqual(t *testing.T, got, want []string) {
	t.Helper()
	sort.Strings(got)
	sort.Strings(want)
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d (%v vs %v)", len(got), len(want), got, want)
	}
	for i := range got {
		if got[i] != want[i] {
			t.Fatalf("mismatch at %d: got %q, want %q (got=%v want=%v)", i, got[i], want[i], got, want)
		}
	}
}

func TestTopic_InvalidTokenPanics(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic for non-comparable token, got none")
		}
	}()

	// []byte is not comparable, so T should panic
	_ = T([]byte{1, 2, 3})
}

func TestTopic_String(t *testing.T) {
	if got := T("telemetry", "charge", 3).String(); got != "telemetry/charge/3" {
		t.Fatalf("String() = %q", got)
	}
	base := T("telemetry", "charge")
	ext := base.Append(1)
	if len(base) != 2 || len(ext) != 3 || ext[2] != 1 {
		t.Fatalf("Append mutated base or produced %v", ext)
	}
}

func TestIntTokensDistinctFromStrings(t *testing.T) {
	b := NewBus(4)
	c := b.NewConnection("test")
	sInt := c.Subscribe(T("telemetry", "charge", 1))
	sStr := c.Subscribe(T("telemetry", "charge", "1"))

	c.Publish(b.NewMessage(T("telemetry", "charge", 1), "int", false))
	expectOneOf(t, sInt, "int")
	expectNoMessage(t, sStr)
}

func TestQueueOverflowDropsOldest(t *testing.T) {
	b := NewBus(2)
	c := b.NewConnection("test")
	s := c.Subscribe(T("telemetry", "protector"))
	for _, p := range []string{"a", "b", "c"} {
		c.Publish(b.NewMessage(T("telemetry", "protector"), p, false))
	}
	expectOneOf(t, s, "b")
	expectOneOf(t, s, "c")
}

func TestUnsubscribeClosesOnce(t *testing.T) {
	b := NewBus(2)
	c := b.NewConnection("test")
	s := c.Subscribe(T("config", "heartbeat"))
	c.Unsubscribe(s)
	c.Unsubscribe(s)
	if _, ok := <-s.Channel(); ok {
		t.Fatal("channel should be closed")
	}
	// Publishing after unsubscribe must not panic on the closed channel.
	c.Publish(b.NewMessage(T("config", "heartbeat"), "x", false))
}

func TestReplyWithoutAddressIsNoop(t *testing.T) {
	b := NewBus(2)
	c := b.NewConnection("test")
	s := c.Subscribe(T("#"))
	c.Reply(b.NewMessage(T("x"), nil, false), "ignored", false)
	expectNoMessage(t, s)
}
