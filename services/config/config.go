// Package config loads the station configuration: embedded per-board YAML
// defaults, optionally overlaid with a file.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"pdstation-go/bus"

	"gopkg.in/yaml.v3"
)

const configPrefix = "config"

// ---- BOARD ----

type I2CConfig struct {
	Bus string `yaml:"bus"` // host bus name, or "i2c0"/"i2c1" on the MCU
	SDA int    `yaml:"sda"`
	SCL int    `yaml:"scl"`
	Hz  uint32 `yaml:"hz"`
}

type SerialConfig struct {
	Port string `yaml:"port"` // empty disables the serial sink
	Baud int    `yaml:"baud"`
	TX   int    `yaml:"tx"`
	RX   int    `yaml:"rx"`
}

type BoardConfig struct {
	I2C    I2CConfig    `yaml:"i2c"`
	VinPin string       `yaml:"vin_pin"`
	Serial SerialConfig `yaml:"serial"`
}

// ---- CHARGER ----

type FastChargeConfig struct {
	DisablePD    bool `yaml:"disable_pd"`
	DisablePD9V  bool `yaml:"disable_pd_9v"`
	DisablePD12V bool `yaml:"disable_pd_12v"`
	DisablePD15V bool `yaml:"disable_pd_15v"`
	DisablePD20V bool `yaml:"disable_pd_20v"`
	DisablePPS0  bool `yaml:"disable_pps0"`
	DisablePPS1  bool `yaml:"disable_pps1"`
}

type ChargerConfig struct {
	PeriodMs            int              `yaml:"period_ms"`
	ReinitEvery         int              `yaml:"reinit_every"`
	ControllerTimeoutMs int              `yaml:"controller_timeout_ms"`
	LimitWatts          uint8            `yaml:"limit_watts"`
	ShuntOhms           float64          `yaml:"shunt_ohms"`
	MaxAmps             float64          `yaml:"max_amps"`
	MailboxDepth        int              `yaml:"mailbox_depth"`
	FastCharge          FastChargeConfig `yaml:"fast_charge"`
}

// ---- PROTECTOR ----

type ProtectorConfig struct {
	PeriodMs      int     `yaml:"period_ms"`
	MaxFailTimes  int     `yaml:"max_fail_times"`
	HysteresisC   float32 `yaml:"hysteresis_c"`
	OverShutdownC float32 `yaml:"over_shutdown_c"`
	ShuntOhms     float64 `yaml:"shunt_ohms"`
	MaxAmps       float64 `yaml:"max_amps"`
	MailboxDepth  int     `yaml:"mailbox_depth"`
}

// ---- WATCHDOG ----

type WatchdogConfig struct {
	TimeoutMs       int `yaml:"timeout_ms"`
	CheckIntervalMs int `yaml:"check_interval_ms"`
	StableAfterS    int `yaml:"stable_after_s"`
}

// ---- OUTER SURFACES ----

type HeartbeatConfig struct {
	IntervalS float64 `yaml:"interval_s"`
}

type RedisConfig struct {
	Addr   string `yaml:"addr"` // empty disables the redis sink
	Prefix string `yaml:"prefix"`
}

type Config struct {
	Board     BoardConfig     `yaml:"board"`
	Charger   ChargerConfig   `yaml:"charger"`
	Protector ProtectorConfig `yaml:"protector"`
	Watchdog  WatchdogConfig  `yaml:"watchdog"`
	Heartbeat HeartbeatConfig `yaml:"heartbeat"`
	Redis     RedisConfig     `yaml:"redis"`
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

func (c ChargerConfig) Period() time.Duration            { return ms(c.PeriodMs) }
func (c ChargerConfig) ControllerTimeout() time.Duration { return ms(c.ControllerTimeoutMs) }
func (c ProtectorConfig) Period() time.Duration          { return ms(c.PeriodMs) }
func (c WatchdogConfig) Timeout() time.Duration          { return ms(c.TimeoutMs) }
func (c WatchdogConfig) CheckInterval() time.Duration    { return ms(c.CheckIntervalMs) }
func (c WatchdogConfig) StableAfter() time.Duration {
	return time.Duration(c.StableAfterS) * time.Second
}

// ---- LOADING ----

// EmbeddedConfigLookup allows overriding how board defaults are resolved.
var EmbeddedConfigLookup = func(board string) ([]byte, bool) {
	b, ok := embeddedConfigs[board]
	return b, ok
}

// Parse decodes raw YAML over the embedded defaults of board.
func Parse(board string, raw []byte) (*Config, error) {
	def, ok := EmbeddedConfigLookup(board)
	if !ok || len(def) == 0 {
		return nil, errors.New("no embedded config for board: " + board)
	}
	var cfg Config
	if err := yaml.Unmarshal(def, &cfg); err != nil {
		return nil, fmt.Errorf("embedded config %q: %w", board, err)
	}
	if len(raw) > 0 {
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	}
	return &cfg, nil
}

// Load reads the board defaults and overlays the file at path, if any.
func Load(board, path string) (*Config, error) {
	var raw []byte
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		raw = b
	}
	return Parse(board, raw)
}

// ---- PUBLISHING ----

// Publish places the runtime-tunable sections on the bus as retained
// config messages.
func Publish(ctx context.Context, conn *bus.Connection, cfg *Config) {
	if ctx.Err() != nil {
		return
	}
	conn.Publish(&bus.Message{
		Topic:    bus.T(configPrefix, "heartbeat"),
		Payload:  map[string]any{"interval": cfg.Heartbeat.IntervalS},
		Retained: true,
	})
}
