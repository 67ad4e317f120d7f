//go:build !rp2040

// Command pdstation runs the charging station control plane on a Linux host,
// against real hardware through periph or against a simulated board.
package main

import (
	"context"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"pdstation-go/bus"
	"pdstation-go/services/config"
	"pdstation-go/services/export"
	"pdstation-go/services/hal/platform"
	"pdstation-go/services/station"
	"pdstation-go/x/strx"
)

// Configuration flags
var (
	configPath = flag.String("config", "", "YAML file overlaid on the board defaults")
	boardName  = flag.String("board", "host", "Embedded board defaults (host, sim, pico)")
	simulate   = flag.Bool("sim", false, "Run against a simulated board")
	redisAddr  = flag.String("redis", "", "Redis address; overrides redis.addr")
	serialDev  = flag.String("serial", "", "Serial telemetry device; overrides board.serial.port")
)

func main() {
	flag.Parse()
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)

	board := *boardName
	if *simulate {
		board = "sim"
	}
	cfg, err := config.Load(board, *configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	cfg.Redis.Addr = strx.Coalesce(*redisAddr, cfg.Redis.Addr)
	cfg.Board.Serial.Port = strx.Coalesce(*serialDev, cfg.Board.Serial.Port)
	if err := config.Validate(cfg); err != nil {
		log.Fatalf("config: %v", err)
	}

	var hw station.Hardware
	var serialPort io.ReadWriter
	if *simulate {
		log.Printf("Using simulated board")
		hw = station.NewSimBoard().Hardware(platform.PanicRestart)
		if cfg.Board.Serial.Port != "" {
			port, err := platform.OpenSerial(serialConfig(cfg))
			if err != nil {
				log.Fatalf("serial: %v", err)
			}
			defer port.Close()
			serialPort = port
		}
	} else {
		b, err := platform.Open(platform.I2CConfig{
			Bus: cfg.Board.I2C.Bus,
			SDA: cfg.Board.I2C.SDA,
			SCL: cfg.Board.I2C.SCL,
			Hz:  cfg.Board.I2C.Hz,
		}, cfg.Board.VinPin, serialConfig(cfg))
		if err != nil {
			log.Fatalf("platform: %v", err)
		}
		defer b.Close()
		hw = station.Hardware{I2C: b.I2C, Vin: b.Vin, Restart: b.Restart}
		if b.Serial != nil {
			serialPort = b.Serial
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msgBus := bus.NewBus(16)
	st := station.New(cfg, hw)
	st.Start(ctx, msgBus)
	log.Printf("Station started (board %s)", board)

	if cfg.Redis.Addr != "" {
		r := export.NewRedis(msgBus.NewConnection("redis"), export.RedisConfig{
			Addr:   cfg.Redis.Addr,
			Prefix: cfg.Redis.Prefix,
		})
		defer r.Close()
		go r.Run(ctx)
		log.Printf("Redis export to %s", cfg.Redis.Addr)
	}
	if serialPort != nil {
		s := export.NewSerial(msgBus.NewConnection("serial"), serialPort)
		go func() {
			if err := s.Run(ctx); err != nil {
				log.Printf("serial export stopped: %v", err)
			}
		}()
		log.Printf("Serial export on %s", cfg.Board.Serial.Port)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Printf("Shutting down...")
	cancel()
	st.Wait()
}

func serialConfig(cfg *config.Config) platform.SerialConfig {
	return platform.SerialConfig{
		Port: cfg.Board.Serial.Port,
		Baud: cfg.Board.Serial.Baud,
		TX:   cfg.Board.Serial.TX,
		RX:   cfg.Board.Serial.RX,
	}
}
