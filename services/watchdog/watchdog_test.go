package watchdog

import (
	"context"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTest(cfg Config) (*Supervisor, *fakeClock, *[]string) {
	clk := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	var restarts []string
	cfg.Now = clk.Now
	cfg.Restart = func(reason string) { restarts = append(restarts, reason) }
	return New(cfg), clk, &restarts
}

func TestFeedResetsClock(t *testing.T) {
	s, clk, _ := newTest(Config{Timeout: 10 * time.Second})
	for i := 0; i < 5; i++ {
		clk.Advance(9 * time.Second)
		s.Feed(TaskProtector)
		s.Feed(TaskChargeChannel)
		if _, ok := s.Check(); ok {
			t.Fatalf("timeout declared at iteration %d despite feeding", i)
		}
	}
}

func TestTimeoutIsStrictAndOncePerStall(t *testing.T) {
	s, clk, _ := newTest(Config{Timeout: 10 * time.Second})
	s.SetActive(TaskChargeChannel, false)

	clk.Advance(10 * time.Second)
	if _, ok := s.Check(); ok {
		t.Fatal("silence equal to the timeout must not trip")
	}
	clk.Advance(time.Millisecond)
	task, ok := s.Check()
	if !ok || task != TaskProtector {
		t.Fatalf("Check = %v,%v want protector timeout", task, ok)
	}
	for i := 0; i < 3; i++ {
		clk.Advance(time.Second)
		if _, ok := s.Check(); ok {
			t.Fatal("same stall declared twice")
		}
	}

	s.Feed(TaskProtector)
	clk.Advance(11 * time.Second)
	if _, ok := s.Check(); !ok {
		t.Fatal("a new stall after feeding must be declared")
	}
	if got := s.Status().Timeouts[TaskProtector]; got != 2 {
		t.Fatalf("timeout count = %d, want 2", got)
	}
}

func TestInactiveTaskIgnored(t *testing.T) {
	s, clk, _ := newTest(Config{Timeout: time.Second})
	s.SetActive(TaskProtector, false)
	s.SetActive(TaskChargeChannel, false)
	clk.Advance(time.Hour)
	if _, ok := s.Check(); ok {
		t.Fatal("inactive tasks must not trip")
	}
}

func TestRecordRestartStretchesTimeout(t *testing.T) {
	base := 2 * time.Second
	s, _, _ := newTest(Config{Timeout: base})
	want := []time.Duration{base, base, 2 * base, 3 * base, 4 * base, 5 * base, 5 * base, 5 * base}
	for i, w := range want {
		s.RecordRestart()
		if got := s.Timeout(); got != w {
			t.Fatalf("after %d restarts timeout = %v, want %v", i+1, got, w)
		}
	}
}

func TestBackoffSuppressesWithinWindow(t *testing.T) {
	s, clk, _ := newTest(Config{Timeout: time.Second})
	s.SetActive(TaskChargeChannel, false)
	for i := 0; i < 5; i++ {
		s.RecordRestart()
	}
	stretched := s.Timeout()

	// Stall well past the stretched timeout but inside the 30s window.
	clk.Advance(stretched + time.Second)
	if _, ok := s.Check(); ok {
		t.Fatal("6th timeout inside the backoff window must be suppressed")
	}
	clk.Advance(10 * time.Second)
	if _, ok := s.Check(); ok {
		t.Fatal("still inside the window")
	}

	// Window elapsed: the ongoing stall is now declared.
	clk.Advance(30 * time.Second)
	if _, ok := s.Check(); !ok {
		t.Fatal("stall must be declared once the window elapses")
	}
}

func TestFourRestartsDoNotArmBackoff(t *testing.T) {
	s, clk, _ := newTest(Config{Timeout: time.Second})
	for i := 0; i < 4; i++ {
		s.RecordRestart()
	}
	clk.Advance(s.Timeout() + time.Millisecond)
	if _, ok := s.Check(); !ok {
		t.Fatal("backoff must need 5 restarts")
	}
}

func TestResetIfStable(t *testing.T) {
	s, clk, _ := newTest(Config{Timeout: time.Second})
	s.RecordRestart()
	s.RecordRestart()
	s.RecordRestart()
	if s.Timeout() == time.Second {
		t.Fatal("timeout should be stretched")
	}
	clk.Advance(59 * time.Second)
	s.Feed(TaskProtector)
	s.Feed(TaskChargeChannel)
	if s.ResetIfStable() {
		t.Fatal("reset before the stable period")
	}
	clk.Advance(2 * time.Second)
	s.Feed(TaskProtector)
	s.Feed(TaskChargeChannel)
	if !s.ResetIfStable() {
		t.Fatal("expected reset after 60s without timeouts")
	}
	if s.Restarts() != 0 || s.Timeout() != time.Second {
		t.Fatalf("restarts=%d timeout=%v after reset", s.Restarts(), s.Timeout())
	}
}

func TestTickRestartsOncePerStall(t *testing.T) {
	s, clk, restarts := newTest(Config{Timeout: time.Second})
	s.Feed(TaskProtector)
	for i := 0; i < 10; i++ {
		clk.Advance(500 * time.Millisecond)
		s.Feed(TaskProtector)
		s.Tick()
	}
	if len(*restarts) != 1 {
		t.Fatalf("restart hook called %d times, want 1 (%v)", len(*restarts), *restarts)
	}
	if (*restarts)[0] != "task charge_channel timed out" {
		t.Fatalf("reason = %q", (*restarts)[0])
	}
	if s.Restarts() != 1 {
		t.Fatalf("Restarts = %d", s.Restarts())
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	s := New(Config{CheckInterval: time.Millisecond, Restart: func(string) {}})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	time.Sleep(5 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
