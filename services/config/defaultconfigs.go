package config

// -----------------------------------------------------------------------------
// Embedded configuration
//
// Key: board name (the -board flag)
// Val: raw YAML for that board; a loaded file overlays it
// -----------------------------------------------------------------------------

const cfgCommon = `
charger:
  period_ms: 1000
  reinit_every: 30
  controller_timeout_ms: 1000
  limit_watts: 65
  shunt_ohms: 0.01
  max_amps: 5
  mailbox_depth: 10
protector:
  period_ms: 1000
  max_fail_times: 3
  hysteresis_c: 60
  over_shutdown_c: 70
  shunt_ohms: 0.01
  max_amps: 5
  mailbox_depth: 10
watchdog:
  timeout_ms: 10000
  check_interval_ms: 500
  stable_after_s: 60
heartbeat:
  interval_s: 10
redis:
  prefix: pdstation
`

const cfgPico = cfgCommon + `
board:
  i2c: {bus: i2c0, sda: 4, scl: 5, hz: 400000}
  vin_pin: "22"
  serial: {port: uart0, baud: 115200, tx: 0, rx: 1}
`

const cfgHost = cfgCommon + `
board:
  i2c: {bus: "", hz: 400000}
  vin_pin: GPIO22
`

const cfgSim = cfgCommon + `
board:
  i2c: {bus: sim}
  vin_pin: sim
`

var embeddedConfigs = map[string][]byte{
	"pico": []byte(cfgPico),
	"host": []byte(cfgHost),
	"sim":  []byte(cfgSim),
}
