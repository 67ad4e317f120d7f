// Package bridge moves telemetry out of the control-plane mailboxes onto the
// pub/sub bus and carries Vin overrides from the bus back into the
// protector's config slot.
package bridge

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"pdstation-go/bus"
	"pdstation-go/errcode"
	"pdstation-go/types"
	"pdstation-go/x/mailbox"
	"pdstation-go/x/timex"
)

// -----------------------------------------------------------------------------
// Topics
// -----------------------------------------------------------------------------

var (
	TopicCharge    = bus.T("telemetry", "charge") // + channel index
	TopicProtector = bus.T("telemetry", "protector")
	TopicVin       = bus.T("config", "protector", "vin")
	TopicState     = bus.T("bridge", "state")
)

// ChargeTopic is the retained telemetry topic of one channel.
func ChargeTopic(ch int) bus.Topic { return TopicCharge.Append(ch) }

// -----------------------------------------------------------------------------
// Service
// -----------------------------------------------------------------------------

// Sources are the control-plane endpoints the bridge serves.
type Sources struct {
	Charge    []*mailbox.Mailbox[types.ChargeChannelSnapshot]
	Protector *mailbox.Mailbox[types.ProtectorSnapshot]
	Vin       *mailbox.Slot[types.VinState]
}

type Service struct {
	conn *bus.Connection
	src  Sources

	forwarded atomic.Uint32
	rejected  atomic.Uint32
}

func New(conn *bus.Connection, src Sources) *Service {
	return &Service{conn: conn, src: src}
}

// Start runs the bridge. It blocks until ctx is cancelled.
func Start(ctx context.Context, conn *bus.Connection, src Sources) {
	New(conn, src).Run(ctx)
}

// Forwarded counts snapshots published on the bus.
func (s *Service) Forwarded() uint32 { return s.forwarded.Load() }

// Rejected counts Vin override payloads that could not be decoded.
func (s *Service) Rejected() uint32 { return s.rejected.Load() }

// Run drains every mailbox into retained bus messages and forwards Vin
// overrides until ctx ends.
func (s *Service) Run(ctx context.Context) {
	vinSub := s.conn.Subscribe(TopicVin)
	defer s.conn.Unsubscribe(vinSub)

	var wg sync.WaitGroup
	for i, box := range s.src.Charge {
		wg.Add(1)
		go func(i int, box *mailbox.Mailbox[types.ChargeChannelSnapshot]) {
			defer wg.Done()
			drain(ctx, box, func(v types.ChargeChannelSnapshot) { s.publish(ChargeTopic(i), v) })
		}(i, box)
	}
	if s.src.Protector != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			drain(ctx, s.src.Protector, func(v types.ProtectorSnapshot) { s.publish(TopicProtector, v) })
		}()
	}

	s.publishState("up", "forwarding", nil)
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			s.publishState("idle", "stopped", nil)
			return
		case msg, ok := <-vinSub.Channel():
			if !ok {
				s.publishState("error", "vin_subscription_closed", nil)
				return
			}
			v, err := DecodeVin(msg.Payload)
			if err != nil {
				s.rejected.Add(1)
				println("[bridge] vin override rejected:", err.Error())
				s.publishState("degraded", "vin_decode_failed", err)
				continue
			}
			if s.src.Vin != nil {
				s.src.Vin.Put(v)
			}
			println("[bridge] vin override", v.String())
		}
	}
}

// drain forwards every value received from box until ctx ends.
func drain[T any](ctx context.Context, box *mailbox.Mailbox[T], fn func(T)) {
	for {
		v, err := box.Recv(ctx)
		if err != nil {
			return
		}
		fn(v)
	}
}

func (s *Service) publish(t bus.Topic, v any) {
	s.conn.Publish(s.conn.NewMessage(t, v, true))
	s.forwarded.Add(1)
}

// -----------------------------------------------------------------------------
// Utilities
// -----------------------------------------------------------------------------

var errVinPayload = errors.New("unsupported vin payload")

// DecodeVin accepts a VinState, its byte code (as a byte, an int, a float64
// from decoded JSON, a one-byte slice or string, or one ASCII digit) or its
// name.
func DecodeVin(p any) (types.VinState, error) {
	var code int
	switch v := p.(type) {
	case types.VinState:
		code = int(v)
	case byte:
		code = int(v)
	case int:
		code = v
	case float64:
		code = int(v)
		if float64(code) != v {
			return 0, &errcode.E{C: errcode.InvalidPayload, Op: "decode_vin", Err: errVinPayload}
		}
	case []byte:
		if len(v) != 1 {
			return 0, &errcode.E{C: errcode.InvalidPayload, Op: "decode_vin", Msg: "want one byte", Err: errVinPayload}
		}
		code = int(v[0])
	case string:
		if st, ok := types.VinStateFromString(v); ok {
			return st, nil
		}
		if len(v) != 1 {
			return 0, &errcode.E{C: errcode.InvalidPayload, Op: "decode_vin", Msg: v, Err: errVinPayload}
		}
		code = int(v[0])
		if '0' <= v[0] && v[0] <= '9' {
			code = int(v[0] - '0')
		}
	default:
		return 0, &errcode.E{C: errcode.InvalidPayload, Op: "decode_vin", Err: errVinPayload}
	}
	if code < 0 || code > 0xFF {
		return 0, &errcode.E{C: errcode.InvalidPayload, Op: "decode_vin", Msg: "code out of range", Err: errVinPayload}
	}
	st, ok := types.ParseVinState(byte(code))
	if !ok {
		return 0, &errcode.E{C: errcode.InvalidPayload, Op: "decode_vin", Msg: "unknown code", Err: errVinPayload}
	}
	return st, nil
}

func (s *Service) publishState(level, status string, err error) {
	payload := map[string]any{
		"level":  level,  // "up", "degraded", "error", "idle"
		"status": status, // short machine string
		"ts_ms":  timex.NowMs(),
	}
	if err != nil {
		payload["error"] = err.Error()
	}
	s.conn.Publish(s.conn.NewMessage(TopicState, payload, true))
}
