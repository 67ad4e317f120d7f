package charger

import (
	"context"
	"time"

	"pdstation-go/services/i2cmux"
	"pdstation-go/services/watchdog"
)

// Prober is the start-up side of the mux arbitrator.
type Prober interface {
	Probe() int
	IsAvailable(ch i2cmux.Channel) bool
}

// ServiceConfig tunes the polling loop. Zero values select the defaults noted.
type ServiceConfig struct {
	Period      time.Duration // poll period (1s)
	ReinitEvery int           // re-init channels that are not online every N cycles; 0 disables
}

// Service drives every channel from one loop so that channel cycles never
// overlap on the mux.
type Service struct {
	mux      Prober
	channels []*Channel
	wd       watchdog.Feeder
	cfg      ServiceConfig
}

func NewService(mux Prober, wd watchdog.Feeder, cfg ServiceConfig, channels ...*Channel) *Service {
	if cfg.Period <= 0 {
		cfg.Period = time.Second
	}
	return &Service{mux: mux, channels: channels, wd: wd, cfg: cfg}
}

func (s *Service) Channels() []*Channel { return s.channels }

// InitAll probes the mux chips and initialises every channel whose chip
// answered.
func (s *Service) InitAll() {
	n := s.mux.Probe()
	println("[charger] mux chips present:", n)
	for _, ch := range s.channels {
		if !s.mux.IsAvailable(ch.Index()) {
			println("[charger] ch", int(ch.Index()), "skipped: mux chip absent")
			continue
		}
		s.initChannel(ch)
	}
}

func (s *Service) initChannel(ch *Channel) {
	err := ch.Init()
	if err != nil {
		println("[charger] ch", int(ch.Index()), "init:", err.Error())
	}
	println("[charger] ch", int(ch.Index()), "status", ch.Status().String())
}

// PollAll runs one cycle over every channel. Channels that are not online are
// skipped without touching the bus.
func (s *Service) PollAll(ctx context.Context) {
	for _, ch := range s.channels {
		if ctx.Err() != nil {
			return
		}
		if !ch.Status().IsOnline() {
			continue
		}
		if err := ch.PollOnce(ctx); err != nil {
			println("[charger] ch", int(ch.Index()), "poll:", err.Error())
		}
	}
}

func (s *Service) reinitOffline() {
	for _, ch := range s.channels {
		if ch.Status().IsOnline() || !s.mux.IsAvailable(ch.Index()) {
			continue
		}
		s.initChannel(ch)
	}
}

// Run initialises the channels and polls them every Period until ctx ends,
// feeding the watchdog once per cycle.
func (s *Service) Run(ctx context.Context) {
	println("[charger] starting,", len(s.channels), "channels")
	s.InitAll()

	tick := time.NewTicker(s.cfg.Period)
	defer tick.Stop()

	cycle := 0
	for {
		select {
		case <-ctx.Done():
			println("[charger] stopping")
			return
		case <-tick.C:
		}
		s.wd.Feed(watchdog.TaskChargeChannel)

		cycle++
		if s.cfg.ReinitEvery > 0 && cycle%s.cfg.ReinitEvery == 0 {
			s.reinitOffline()
		}
		s.PollAll(ctx)
	}
}
