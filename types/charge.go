package types

// Protocol is the fast-charge protocol negotiated on a port, as reported by
// the controller's protocol indication register.
type Protocol uint8

const (
	ProtocolNone Protocol = iota
	ProtocolQC2
	ProtocolQC3
	ProtocolQC3Plus
	ProtocolFCP
	ProtocolSCP
	ProtocolPDFix
	ProtocolPDPPS
	ProtocolPE11
	ProtocolPE20
	ProtocolVOOC
	ProtocolSFCP
	ProtocolAFC
	ProtocolTFCP
)

func (p Protocol) String() string {
	switch p {
	case ProtocolNone:
		return "none"
	case ProtocolQC2:
		return "qc2.0"
	case ProtocolQC3:
		return "qc3.0"
	case ProtocolQC3Plus:
		return "qc3+"
	case ProtocolFCP:
		return "fcp"
	case ProtocolSCP:
		return "scp"
	case ProtocolPDFix:
		return "pd_fix"
	case ProtocolPDPPS:
		return "pd_pps"
	case ProtocolPE11:
		return "pe1.1"
	case ProtocolPE20:
		return "pe2.0"
	case ProtocolVOOC:
		return "vooc"
	case ProtocolSFCP:
		return "sfcp"
	case ProtocolAFC:
		return "afc"
	case ProtocolTFCP:
		return "tfcp"
	default:
		return "unknown"
	}
}

// SystemStatus is the raw controller system status byte.
type SystemStatus uint8

const (
	SysPortCOn   SystemStatus = 1 << 0
	SysPortAOn   SystemStatus = 1 << 1
	SysBuckOn    SystemStatus = 1 << 2
	SysFastCharg SystemStatus = 1 << 3
)

func (s SystemStatus) Has(bit SystemStatus) bool { return s&bit != 0 }

// AbnormalCase is the raw controller fault byte; zero means no fault.
type AbnormalCase uint8

const (
	AbnVinOverVolt  AbnormalCase = 1 << 0
	AbnVinUnderVolt AbnormalCase = 1 << 1
	AbnDieOverTemp  AbnormalCase = 1 << 2
	AbnOutputShort  AbnormalCase = 1 << 3
	AbnOutputOverI  AbnormalCase = 1 << 4
)

func (a AbnormalCase) Has(bit AbnormalCase) bool { return a&bit != 0 }

// ChargeChannelSnapshot captures one poll cycle of a charging channel.
// It is published by value.
type ChargeChannelSnapshot struct {
	Millivolts float64
	Amps       float64
	Watts      float64

	Protocol     Protocol
	SystemStatus SystemStatus
	AbnormalCase AbnormalCase

	BuckOutputMillivolts     uint16
	BuckOutputLimitMilliamps uint16
	LimitWatts               uint8
}
