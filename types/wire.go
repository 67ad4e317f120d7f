package types

import (
	"encoding/binary"
	"errors"
	"math"
)

// Fixed wire sizes (little-endian, no framing).
const (
	ChargeChannelWireSize = 3*8 + 3*1 + 2*2 + 1 // 32
	ProtectorWireSize     = 2*4 + 3*8 + 1       // 33
)

var ErrShortBuffer = errors.New("types: short buffer")

// AppendBinary appends the wire layout of s to b.
//
//	f64 mV | f64 A | f64 W | u8 protocol | u8 system | u8 abnormal |
//	u16 buck mV | u16 buck limit mA | u8 limit W
func (s ChargeChannelSnapshot) AppendBinary(b []byte) []byte {
	b = binary.LittleEndian.AppendUint64(b, math.Float64bits(s.Millivolts))
	b = binary.LittleEndian.AppendUint64(b, math.Float64bits(s.Amps))
	b = binary.LittleEndian.AppendUint64(b, math.Float64bits(s.Watts))
	b = append(b, byte(s.Protocol), byte(s.SystemStatus), byte(s.AbnormalCase))
	b = binary.LittleEndian.AppendUint16(b, s.BuckOutputMillivolts)
	b = binary.LittleEndian.AppendUint16(b, s.BuckOutputLimitMilliamps)
	return append(b, s.LimitWatts)
}

func (s ChargeChannelSnapshot) MarshalBinary() ([]byte, error) {
	return s.AppendBinary(make([]byte, 0, ChargeChannelWireSize)), nil
}

func (s *ChargeChannelSnapshot) UnmarshalBinary(b []byte) error {
	if len(b) < ChargeChannelWireSize {
		return ErrShortBuffer
	}
	le := binary.LittleEndian
	s.Millivolts = math.Float64frombits(le.Uint64(b[0:8]))
	s.Amps = math.Float64frombits(le.Uint64(b[8:16]))
	s.Watts = math.Float64frombits(le.Uint64(b[16:24]))
	s.Protocol = Protocol(b[24])
	s.SystemStatus = SystemStatus(b[25])
	s.AbnormalCase = AbnormalCase(b[26])
	s.BuckOutputMillivolts = le.Uint16(b[27:29])
	s.BuckOutputLimitMilliamps = le.Uint16(b[29:31])
	s.LimitWatts = b[31]
	return nil
}

// AppendBinary appends the wire layout of s to b.
//
//	f32 temp0 | f32 temp1 | f64 mV | f64 A | f64 W | u8 vin
func (s ProtectorSnapshot) AppendBinary(b []byte) []byte {
	b = binary.LittleEndian.AppendUint32(b, math.Float32bits(s.Temperature0))
	b = binary.LittleEndian.AppendUint32(b, math.Float32bits(s.Temperature1))
	b = binary.LittleEndian.AppendUint64(b, math.Float64bits(s.Millivolts))
	b = binary.LittleEndian.AppendUint64(b, math.Float64bits(s.Amps))
	b = binary.LittleEndian.AppendUint64(b, math.Float64bits(s.Watts))
	return append(b, byte(s.Vin))
}

func (s ProtectorSnapshot) MarshalBinary() ([]byte, error) {
	return s.AppendBinary(make([]byte, 0, ProtectorWireSize)), nil
}

func (s *ProtectorSnapshot) UnmarshalBinary(b []byte) error {
	if len(b) < ProtectorWireSize {
		return ErrShortBuffer
	}
	le := binary.LittleEndian
	s.Temperature0 = math.Float32frombits(le.Uint32(b[0:4]))
	s.Temperature1 = math.Float32frombits(le.Uint32(b[4:8]))
	s.Millivolts = math.Float64frombits(le.Uint64(b[8:16]))
	s.Amps = math.Float64frombits(le.Uint64(b[16:24]))
	s.Watts = math.Float64frombits(le.Uint64(b[24:32]))
	s.Vin = VinState(b[32])
	return nil
}
