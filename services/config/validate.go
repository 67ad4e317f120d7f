package config

import (
	"pdstation-go/drivers/gx21m15"
	"pdstation-go/drivers/sw3526"
	"pdstation-go/x/fmtx"
)

// Validate checks configuration correctness. It does not mutate cfg.
func Validate(cfg *Config) error {
	c := cfg.Charger
	if c.PeriodMs <= 0 {
		return fmtx.Errorf("charger: period_ms must be positive, got %d", c.PeriodMs)
	}
	if c.ControllerTimeoutMs <= 0 || c.ControllerTimeoutMs > c.PeriodMs {
		return fmtx.Errorf("charger: controller_timeout_ms must be in 1..period_ms (%d), got %d",
			c.PeriodMs, c.ControllerTimeoutMs)
	}
	if c.LimitWatts < sw3526.MinLimitWatts || c.LimitWatts > sw3526.MaxLimitWatts {
		return fmtx.Errorf("charger: limit_watts must be in %d..%d, got %d",
			sw3526.MinLimitWatts, sw3526.MaxLimitWatts, c.LimitWatts)
	}
	if c.ShuntOhms <= 0 || c.MaxAmps <= 0 {
		return fmtx.Errorf("charger: shunt_ohms and max_amps must be positive")
	}
	if c.ReinitEvery < 0 {
		return fmtx.Errorf("charger: reinit_every must not be negative")
	}
	if c.MailboxDepth < 1 {
		return fmtx.Errorf("charger: mailbox_depth must be at least 1")
	}

	p := cfg.Protector
	if p.PeriodMs <= 0 {
		return fmtx.Errorf("protector: period_ms must be positive, got %d", p.PeriodMs)
	}
	if p.MaxFailTimes < 1 {
		return fmtx.Errorf("protector: max_fail_times must be at least 1")
	}
	if p.HysteresisC < gx21m15.MinCelsius || p.OverShutdownC > gx21m15.MaxCelsius {
		return fmtx.Errorf("protector: thresholds must be in %d..%d C",
			gx21m15.MinCelsius, gx21m15.MaxCelsius)
	}
	if p.HysteresisC >= p.OverShutdownC {
		return fmtx.Errorf("protector: hysteresis_c (%v) must be below over_shutdown_c (%v)",
			p.HysteresisC, p.OverShutdownC)
	}
	if p.ShuntOhms <= 0 || p.MaxAmps <= 0 {
		return fmtx.Errorf("protector: shunt_ohms and max_amps must be positive")
	}
	if p.MailboxDepth < 1 {
		return fmtx.Errorf("protector: mailbox_depth must be at least 1")
	}

	w := cfg.Watchdog
	if w.TimeoutMs <= 0 || w.CheckIntervalMs <= 0 {
		return fmtx.Errorf("watchdog: timeout_ms and check_interval_ms must be positive")
	}
	if ms(w.TimeoutMs) <= cfg.Charger.Period() || ms(w.TimeoutMs) <= cfg.Protector.Period() {
		return fmtx.Errorf("watchdog: timeout_ms (%d) must exceed every task period", w.TimeoutMs)
	}

	if cfg.Heartbeat.IntervalS <= 0 {
		return fmtx.Errorf("heartbeat: interval_s must be positive")
	}
	if cfg.Board.Serial.Port != "" && cfg.Board.Serial.Baud <= 0 {
		return fmtx.Errorf("board: serial port %q needs a baud rate", cfg.Board.Serial.Port)
	}
	return nil
}
