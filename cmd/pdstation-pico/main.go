//go:build rp2040

package main

import (
	"context"
	"runtime"
	"time"

	"pdstation-go/bus"
	"pdstation-go/services/config"
	"pdstation-go/services/export"
	"pdstation-go/services/hal/platform"
	"pdstation-go/services/station"
)

func main() {
	// Allow USB CDC to enumerate before we print.
	time.Sleep(2 * time.Second)
	println("[main] boot")

	cfg, err := config.Parse("pico", nil)
	if err == nil {
		err = config.Validate(cfg)
	}
	if err != nil {
		println("[main] config:", err.Error())
		return
	}

	b, err := platform.Open(platform.I2CConfig{
		Bus: cfg.Board.I2C.Bus,
		SDA: cfg.Board.I2C.SDA,
		SCL: cfg.Board.I2C.SCL,
		Hz:  cfg.Board.I2C.Hz,
	}, cfg.Board.VinPin, platform.SerialConfig{
		Port: cfg.Board.Serial.Port,
		Baud: cfg.Board.Serial.Baud,
		TX:   cfg.Board.Serial.TX,
		RX:   cfg.Board.Serial.RX,
	})
	if err != nil {
		println("[main] platform:", err.Error())
		return
	}

	ctx := context.Background()
	msgBus := bus.NewBus(4)
	st := station.New(cfg, station.Hardware{I2C: b.I2C, Vin: b.Vin, Restart: b.Restart})
	st.Start(ctx, msgBus)
	println("[main] station started")

	if b.Serial != nil {
		s := export.NewSerial(msgBus.NewConnection("serial"), b.Serial)
		go func() {
			if err := s.Run(ctx); err != nil {
				println("[main] serial export:", err.Error())
			}
		}()
	}

	// Periodic stats.
	tick := time.NewTicker(10 * time.Second)
	defer tick.Stop()
	for range tick.C {
		printMem()
	}
}

// printMem prints a compact snapshot of TinyGo runtime memory stats.
func printMem() {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	println(
		"[mem]",
		"alloc:", uint32(ms.Alloc),
		"heapInuse:", uint32(ms.HeapInuse),
		"heapSys:", uint32(ms.HeapSys),
		"mallocs:", uint32(ms.Mallocs),
		"frees:", uint32(ms.Frees),
	)
}
