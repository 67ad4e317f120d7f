package export

import (
	"context"
	"io"
	"sync/atomic"

	"pdstation-go/bus"
	"pdstation-go/types"
)

// Serial writes [kind][index][payload] records to a link and reads
// 'V', code override pairs back from it.
type Serial struct {
	conn *bus.Connection
	rw   io.ReadWriter
	buf  []byte

	written atomic.Uint32
}

func NewSerial(conn *bus.Connection, rw io.ReadWriter) *Serial {
	return &Serial{conn: conn, rw: rw, buf: make([]byte, 0, 2+types.ProtectorWireSize)}
}

func (s *Serial) Written() uint32 { return s.written.Load() }

// AppendRecord appends the wire form of rec to b.
func AppendRecord(b []byte, rec Record) []byte {
	b = append(b, rec.Kind, rec.Index)
	return append(b, rec.Payload...)
}

// Run forwards telemetry until ctx ends or the link fails.
func (s *Serial) Run(ctx context.Context) error {
	telSub := s.conn.Subscribe(topicTelemetry)
	defer s.conn.Unsubscribe(telSub)

	go s.readLoop(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-telSub.Channel():
			if !ok {
				return nil
			}
			rec, ok := Encode(m)
			if !ok {
				continue
			}
			s.buf = AppendRecord(s.buf[:0], rec)
			if _, err := s.rw.Write(s.buf); err != nil {
				println("[export] serial write:", err.Error())
				return err
			}
			s.written.Add(1)
		}
	}
}

// readLoop scans the inbound stream for 'V', code pairs. Other bytes are
// skipped.
func (s *Serial) readLoop(ctx context.Context) {
	var b [16]byte
	pending := false
	for ctx.Err() == nil {
		n, err := s.rw.Read(b[:])
		for _, c := range b[:n] {
			switch {
			case pending:
				pending = false
				s.conn.Publish(s.conn.NewMessage(topicVin, []byte{c}, false))
			case c == KindVin:
				pending = true
			}
		}
		if err != nil {
			if err != io.EOF {
				println("[export] serial read:", err.Error())
			}
			return
		}
	}
}
