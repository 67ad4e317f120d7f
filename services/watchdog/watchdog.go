// Package watchdog supervises the liveness of the long-running control loops
// and restarts the system when one of them stops feeding it.
package watchdog

import (
	"context"
	"sync"
	"time"

	"pdstation-go/x/mathx"
)

// TaskID identifies a watched loop.
type TaskID uint8

const (
	TaskProtector TaskID = iota
	TaskChargeChannel
	numTasks
)

func (t TaskID) String() string {
	switch t {
	case TaskProtector:
		return "protector"
	case TaskChargeChannel:
		return "charge_channel"
	default:
		return "unknown"
	}
}

// Feeder is what a watched loop needs from the supervisor.
type Feeder interface {
	Feed(task TaskID)
}

// Tracker is a Feeder that can also take its task out of timeout checks
// while the loop has nothing to watch.
type Tracker interface {
	Feeder
	SetActive(task TaskID, active bool)
}

// Config tunes the supervisor. Zero values select the defaults noted.
type Config struct {
	Timeout         time.Duration // base stall timeout (10s)
	CheckInterval   time.Duration // 500ms
	BackoffRestarts int           // restarts that arm the backoff guard (5)
	BackoffWindow   time.Duration // 30s
	MaxMultiplier   int           // cap on timeout stretching (5)
	StableAfter     time.Duration // quiet period that resets the restart count (60s)
	ReportEvery     time.Duration // status line period (10s)

	// Restart performs the terminal system restart. It should not return.
	Restart func(reason string)
	// Now is the clock; tests replace it.
	Now func() time.Time
}

func (c *Config) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.CheckInterval <= 0 {
		c.CheckInterval = 500 * time.Millisecond
	}
	if c.BackoffRestarts <= 0 {
		c.BackoffRestarts = 5
	}
	if c.BackoffWindow <= 0 {
		c.BackoffWindow = 30 * time.Second
	}
	if c.MaxMultiplier <= 0 {
		c.MaxMultiplier = 5
	}
	if c.StableAfter <= 0 {
		c.StableAfter = 60 * time.Second
	}
	if c.ReportEvery <= 0 {
		c.ReportEvery = 10 * time.Second
	}
	if c.Restart == nil {
		c.Restart = func(reason string) { panic("watchdog: " + reason) }
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

type taskState struct {
	lastFeed time.Time
	active   bool
	timeouts uint32
	tripped  bool // a timeout was declared for the current stall
}

// Supervisor holds the watchdog state. All methods are safe for concurrent use.
type Supervisor struct {
	cfg Config

	mu          sync.Mutex
	tasks       [numTasks]taskState
	timeout     time.Duration
	restarts    int
	lastRestart time.Time // zero when no restart recorded
	lastTimeout time.Time // last declared timeout, or start
	lastReport  time.Time
}

func New(cfg Config) *Supervisor {
	cfg.defaults()
	now := cfg.Now()
	s := &Supervisor{cfg: cfg, timeout: cfg.Timeout, lastTimeout: now, lastReport: now}
	for i := range s.tasks {
		s.tasks[i] = taskState{lastFeed: now, active: true}
	}
	return s
}

// Feed marks task alive and restarts its timeout clock.
func (s *Supervisor) Feed(task TaskID) {
	if task >= numTasks {
		return
	}
	now := s.cfg.Now()
	s.mu.Lock()
	t := &s.tasks[task]
	t.lastFeed = now
	t.active = true
	t.tripped = false
	s.mu.Unlock()
}

// SetActive includes or excludes task from timeout checks.
func (s *Supervisor) SetActive(task TaskID, active bool) {
	if task >= numTasks {
		return
	}
	s.mu.Lock()
	s.tasks[task].active = active
	if active {
		s.tasks[task].lastFeed = s.cfg.Now()
	}
	s.mu.Unlock()
}

// backoff reports whether new timeout declarations are suppressed.
func (s *Supervisor) backoff(now time.Time) bool {
	return s.restarts >= s.cfg.BackoffRestarts &&
		!s.lastRestart.IsZero() &&
		now.Sub(s.lastRestart) < s.cfg.BackoffWindow
}

// Check looks for a stalled task. At most one task is declared per call and
// each stall is declared once. The restart itself is left to the caller.
func (s *Supervisor) Check() (TaskID, bool) {
	now := s.cfg.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.tasks {
		t := &s.tasks[i]
		if !t.active || t.tripped || now.Sub(t.lastFeed) <= s.timeout {
			continue
		}
		if s.backoff(now) {
			println("[watchdog] backoff:", s.restarts, "consecutive restarts, timeout of", TaskID(i).String(), "suppressed")
			return 0, false
		}
		t.tripped = true
		t.timeouts++
		s.lastTimeout = now
		println("[watchdog] timeout:", TaskID(i).String(), "silent for", now.Sub(t.lastFeed).String())
		return TaskID(i), true
	}
	return 0, false
}

// RecordRestart counts a restart and stretches the timeout once restarts
// start repeating.
func (s *Supervisor) RecordRestart() {
	now := s.cfg.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.restarts++
	s.lastRestart = now
	if s.restarts > 2 {
		mult := mathx.Min(s.restarts-1, s.cfg.MaxMultiplier)
		s.timeout = s.cfg.Timeout * time.Duration(mult)
		println("[watchdog] timeout raised to", s.timeout.String(), "after", s.restarts, "restarts")
	}
}

// ResetIfStable clears the restart history once no timeout has been declared
// for StableAfter. It reports whether a reset happened.
func (s *Supervisor) ResetIfStable() bool {
	now := s.cfg.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.restarts == 0 || now.Sub(s.lastTimeout) < s.cfg.StableAfter {
		return false
	}
	s.restarts = 0
	s.timeout = s.cfg.Timeout
	println("[watchdog] system stable, restart counter reset")
	return true
}

// Status is a point-in-time view of the supervisor.
type Status struct {
	SinceFeed [numTasks]time.Duration
	Timeouts  [numTasks]uint32
	Restarts  int
	Timeout   time.Duration
}

func (s *Supervisor) Status() Status {
	now := s.cfg.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{Restarts: s.restarts, Timeout: s.timeout}
	for i, t := range s.tasks {
		st.SinceFeed[i] = now.Sub(t.lastFeed)
		st.Timeouts[i] = t.timeouts
	}
	return st
}

func (s *Supervisor) Timeout() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeout
}

func (s *Supervisor) Restarts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.restarts
}

func (s *Supervisor) logStatus(prefix string) {
	st := s.Status()
	println("[watchdog]", prefix,
		"protector:", st.SinceFeed[TaskProtector].Milliseconds(), "ms ago,",
		"charge_channel:", st.SinceFeed[TaskChargeChannel].Milliseconds(), "ms ago,",
		"restarts:", st.Restarts)
}

// Tick runs one supervision step: timeout check (restarting on a declared
// timeout), periodic status line and stable-period reset.
func (s *Supervisor) Tick() {
	if task, ok := s.Check(); ok {
		s.RecordRestart()
		s.logStatus("final status")
		s.cfg.Restart("task " + task.String() + " timed out")
		return
	}

	now := s.cfg.Now()
	s.mu.Lock()
	report := now.Sub(s.lastReport) >= s.cfg.ReportEvery
	if report {
		s.lastReport = now
	}
	s.mu.Unlock()
	if report {
		s.logStatus("status")
	}
	s.ResetIfStable()
}

// Run ticks every CheckInterval until ctx ends.
func (s *Supervisor) Run(ctx context.Context) {
	println("[watchdog] started, timeout", s.cfg.Timeout.String())
	t := time.NewTicker(s.cfg.CheckInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.Tick()
		}
	}
}
