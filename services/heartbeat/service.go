package heartbeat

import (
	"context"
	"time"

	"pdstation-go/bus"
	"pdstation-go/types"
)

var (
	topicConfigHeartbeat = bus.T("config", "heartbeat")
	topicTelemetry       = bus.T("telemetry", "#")
)

type Service struct {
	Interval time.Duration // 10s

	charge    uint32
	protector types.ProtectorSnapshot
	seen      bool
}

// Beat is one status line's content.
type Beat struct {
	ChargeMessages uint32
	Protector      types.ProtectorSnapshot
	HaveProtector  bool
}

func (s *Service) beat() Beat {
	return Beat{ChargeMessages: s.charge, Protector: s.protector, HaveProtector: s.seen}
}

func (s *Service) observe(m *bus.Message) {
	switch v := m.Payload.(type) {
	case types.ChargeChannelSnapshot:
		s.charge++
	case types.ProtectorSnapshot:
		s.protector = v
		s.seen = true
	}
}

func logBeat(t time.Time, b Beat) {
	if !b.HaveProtector {
		println("[heartbeat]", t.Format("15:04:05"), "charge msgs", b.ChargeMessages, "protector: none")
		return
	}
	p := b.Protector
	println("[heartbeat]", t.Format("15:04:05"), "charge msgs", b.ChargeMessages,
		"temp", int(p.Temperature0), int(p.Temperature1),
		"vin", int(p.Millivolts), "mV", p.Vin.String())
}

// interval reads {"interval": seconds} from a config payload.
func interval(p any) (time.Duration, bool) {
	var secs float64
	switch v := p.(type) {
	case map[string]any:
		iv, ok := v["interval"]
		if !ok {
			return 0, false
		}
		switch n := iv.(type) {
		case float64:
			secs = n
		case int:
			secs = float64(n)
		default:
			return 0, false
		}
	case time.Duration:
		return v, v > 0
	default:
		return 0, false
	}
	if secs <= 0 {
		return 0, false
	}
	return time.Duration(secs * float64(time.Second)), true
}

func (s *Service) serviceLoop(ctx context.Context, conn *bus.Connection, beats chan<- Beat) {
	cfgSub := conn.Subscribe(topicConfigHeartbeat)
	defer conn.Unsubscribe(cfgSub)
	telSub := conn.Subscribe(topicTelemetry)
	defer conn.Unsubscribe(telSub)

	iv := s.Interval
	if iv <= 0 {
		iv = 10 * time.Second
	}
	tick := time.NewTicker(iv)
	defer tick.Stop()

	// loop until context is cancelled, respond to tick and config changes
	for {
		select {
		case <-ctx.Done():
			println("[heartbeat] stopping")
			return
		case t := <-tick.C:
			b := s.beat()
			logBeat(t, b)
			if beats != nil {
				select {
				case beats <- b:
				default:
				}
			}
		case msg := <-telSub.Channel():
			s.observe(msg)
		case msg := <-cfgSub.Channel():
			if d, ok := interval(msg.Payload); ok {
				tick.Reset(d)
				println("[heartbeat] interval set to", d.String())
			} else {
				println("[heartbeat] ignoring config payload")
			}
		}
	}
}

// Run logs heartbeats until ctx is cancelled.
func (s *Service) Run(ctx context.Context, conn *bus.Connection) {
	s.serviceLoop(ctx, conn, nil)
}

// Start the heartbeat service.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) error {
	go s.Run(ctx, conn)
	return nil
}
