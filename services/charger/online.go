package charger

// OnlineStatus records which sub-devices of a channel answered their last
// probe and accepted configuration.
type OnlineStatus uint8

const (
	Offline          OnlineStatus = 0
	MonitorOnline    OnlineStatus = 1 << 0
	ControllerOnline OnlineStatus = 1 << 1
	Online                        = MonitorOnline | ControllerOnline
)

func (s OnlineStatus) And(o OnlineStatus) OnlineStatus { return s & o & Online }
func (s OnlineStatus) Or(o OnlineStatus) OnlineStatus  { return (s | o) & Online }
func (s OnlineStatus) Xor(o OnlineStatus) OnlineStatus { return (s ^ o) & Online }
func (s OnlineStatus) Not() OnlineStatus               { return ^s & Online }

// Has reports whether every bit of o is set.
func (s OnlineStatus) Has(o OnlineStatus) bool { return s&o == o }

// IsOnline reports whether both sub-devices are usable.
func (s OnlineStatus) IsOnline() bool { return s&Online == Online }

func (s OnlineStatus) String() string {
	switch s & Online {
	case Online:
		return "online"
	case MonitorOnline:
		return "monitor_only"
	case ControllerOnline:
		return "controller_only"
	default:
		return "offline"
	}
}
