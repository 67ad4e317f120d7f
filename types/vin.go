package types

// VinState is the state of the upstream input rail.
type VinState uint8

const (
	// VinNormal: rail enabled and healthy (GPIO released).
	VinNormal VinState = iota
	// VinShutdown: rail disabled by a remote/config override.
	VinShutdown
	// VinProtection: rail disabled because a local safety threshold tripped.
	VinProtection
)

// ParseVinState maps a wire byte code onto a VinState.
func ParseVinState(code byte) (VinState, bool) {
	switch VinState(code) {
	case VinNormal, VinShutdown, VinProtection:
		return VinState(code), true
	default:
		return 0, false
	}
}

// VinStateFromString accepts the names produced by String.
func VinStateFromString(s string) (VinState, bool) {
	switch s {
	case "normal":
		return VinNormal, true
	case "shutdown":
		return VinShutdown, true
	case "protection":
		return VinProtection, true
	default:
		return 0, false
	}
}

// Disabled reports whether the rail must be held off.
func (v VinState) Disabled() bool { return v != VinNormal }

func (v VinState) String() string {
	switch v {
	case VinNormal:
		return "normal"
	case VinShutdown:
		return "shutdown"
	case VinProtection:
		return "protection"
	default:
		return "unknown"
	}
}
