// Package export carries telemetry off the bus to the outer collaborators:
// a Redis store and a serial link. Both accept Vin overrides in return.
package export

import (
	"pdstation-go/bus"
	"pdstation-go/types"
	"pdstation-go/x/strconvx"
)

// Record kinds on the wire.
const (
	KindCharge    byte = 'C'
	KindProtector byte = 'P'
	KindVin       byte = 'V'
)

var (
	topicTelemetry = bus.T("telemetry", "#")
	topicVin       = bus.T("config", "protector", "vin")
)

// Record is one telemetry message in wire form.
type Record struct {
	Kind    byte
	Index   byte
	Payload []byte // fixed-size snapshot encoding
	Fields  map[string]any
}

// Encode converts a telemetry bus message. ok is false for payloads that
// are not snapshots.
func Encode(m *bus.Message) (Record, bool) {
	switch v := m.Payload.(type) {
	case types.ChargeChannelSnapshot:
		idx, ok := channelIndex(m.Topic)
		if !ok {
			return Record{}, false
		}
		return Record{
			Kind:    KindCharge,
			Index:   idx,
			Payload: v.AppendBinary(make([]byte, 0, types.ChargeChannelWireSize)),
			Fields:  chargeFields(v),
		}, true
	case types.ProtectorSnapshot:
		return Record{
			Kind:    KindProtector,
			Payload: v.AppendBinary(make([]byte, 0, types.ProtectorWireSize)),
			Fields:  protectorFields(v),
		}, true
	}
	return Record{}, false
}

// channelIndex reads the trailing channel token of telemetry/charge/<n>.
func channelIndex(t bus.Topic) (byte, bool) {
	if len(t) == 0 {
		return 0, false
	}
	n, ok := t[len(t)-1].(int)
	if !ok || n < 0 || n > 0xFF {
		return 0, false
	}
	return byte(n), true
}

func ftoa(f float64) string { return strconvx.FormatFloat(f, 'f', 3, 64) }
func itoa(i int) string     { return strconvx.Itoa(i) }

func chargeFields(s types.ChargeChannelSnapshot) map[string]any {
	return map[string]any{
		"millivolts":                  ftoa(s.Millivolts),
		"amps":                        ftoa(s.Amps),
		"watts":                       ftoa(s.Watts),
		"protocol":                    s.Protocol.String(),
		"system_status":               itoa(int(s.SystemStatus)),
		"abnormal_case":               itoa(int(s.AbnormalCase)),
		"buck_output_millivolts":      itoa(int(s.BuckOutputMillivolts)),
		"buck_output_limit_milliamps": itoa(int(s.BuckOutputLimitMilliamps)),
		"limit_watts":                 itoa(int(s.LimitWatts)),
	}
}

func protectorFields(s types.ProtectorSnapshot) map[string]any {
	return map[string]any{
		"temperature0": ftoa(float64(s.Temperature0)),
		"temperature1": ftoa(float64(s.Temperature1)),
		"millivolts":   ftoa(s.Millivolts),
		"amps":         ftoa(s.Amps),
		"watts":        ftoa(s.Watts),
		"vin":          s.Vin.String(),
	}
}
