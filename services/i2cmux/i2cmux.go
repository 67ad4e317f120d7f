// Package i2cmux routes the shared bus to one of four logical charging
// channels through two cascaded PCA9546A switches.
//
// Every per-channel transaction must be preceded by Select for that channel:
// other components interleave their own transactions between ours, so the
// routing left by a previous Select cannot be trusted.
package i2cmux

import (
	"sync"

	"pdstation-go/drivers/pca9546a"
	"pdstation-go/errcode"
)

// NumChannels is the number of logical charging channels.
const NumChannels = 4

// Chip addresses of the two switches.
const (
	Mux0Address = 0x70
	Mux1Address = 0x71
)

// Channel is a logical charging channel index.
type Channel uint8

// Setting is the pair of port selections applied for a channel.
type Setting struct {
	Mux0 pca9546a.Port
	Mux1 pca9546a.Port
}

// Route returns the switch settings for ch. Each channel enables exactly one
// port on one switch and disconnects the other switch.
func Route(ch Channel) (Setting, bool) {
	switch ch {
	case 0:
		return Setting{Mux0: pca9546a.Port0, Mux1: pca9546a.PortNone}, true
	case 1:
		return Setting{Mux0: pca9546a.Port1, Mux1: pca9546a.PortNone}, true
	case 2:
		return Setting{Mux0: pca9546a.PortNone, Mux1: pca9546a.Port0}, true
	case 3:
		return Setting{Mux0: pca9546a.PortNone, Mux1: pca9546a.Port1}, true
	default:
		return Setting{}, false
	}
}

// owner reports which chip carries ch's active port.
func owner(ch Channel) int {
	if ch < 2 {
		return 0
	}
	return 1
}

// Switch is the capability the arbitrator needs from a mux chip.
type Switch interface {
	Control() (byte, error)
	Select(p pca9546a.Port) error
}

// Arbitrator owns both switches and their availability.
type Arbitrator struct {
	chips [2]Switch

	mu        sync.Mutex
	available [2]bool
}

func New(mux0, mux1 Switch) *Arbitrator {
	return &Arbitrator{chips: [2]Switch{mux0, mux1}}
}

// Probe reads each chip once and records which answered. A missing chip is
// not an error; the returned count says how many responded.
func (a *Arbitrator) Probe() int {
	var avail [2]bool
	n := 0
	for i, c := range a.chips {
		if c == nil {
			continue
		}
		if _, err := c.Control(); err != nil {
			println("[mux] chip", i, "absent:", err.Error())
			continue
		}
		avail[i] = true
		n++
	}
	a.mu.Lock()
	a.available = avail
	a.mu.Unlock()
	return n
}

// ChipAvailable reports whether chip i (0 or 1) answered at probe.
func (a *Arbitrator) ChipAvailable(i int) bool {
	if i < 0 || i > 1 {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.available[i]
}

// IsAvailable reports whether the chip carrying ch answered at probe.
func (a *Arbitrator) IsAvailable(ch Channel) bool {
	if _, ok := Route(ch); !ok {
		return false
	}
	return a.ChipAvailable(owner(ch))
}

// Select applies ch's setting to every available chip. Unavailable chips are
// skipped, so one missing switch still leaves the other's channels usable.
func (a *Arbitrator) Select(ch Channel) error {
	s, ok := Route(ch)
	if !ok {
		return &errcode.E{C: errcode.InvalidParams, Op: "mux_select", Msg: "channel out of range"}
	}
	a.mu.Lock()
	avail := a.available
	a.mu.Unlock()

	ports := [2]pca9546a.Port{s.Mux0, s.Mux1}
	for i, c := range a.chips {
		if !avail[i] {
			continue
		}
		if err := c.Select(ports[i]); err != nil {
			return errcode.Wrap(errcode.MuxSelect, "mux_select", err)
		}
	}
	return nil
}
