package hal

import "sync"

// ---- GPIO abstractions ----

type Pull uint8

const (
	PullNone Pull = iota
	PullUp
	PullDown
)

// Pin is the minimal GPIO surface the control plane needs.
type Pin interface {
	ConfigureInput(pull Pull) error
	ConfigureOutput(initial bool) error
	Set(level bool)
	Get() bool
}

// VinLine drives the upstream input rail enable. The line is open-drain:
// pulling it low disables the rail, releasing it lets the rail's pull-up (or
// an external fault holding it low) decide the level.
type VinLine struct {
	pin Pin

	mu     sync.Mutex
	driven bool
}

func NewVinLine(pin Pin) *VinLine { return &VinLine{pin: pin} }

// TurnOff drives the line low.
func (v *VinLine) TurnOff() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.pin.ConfigureOutput(false); err != nil {
		return err
	}
	v.driven = true
	return nil
}

// TurnOn releases the line to a floating input.
func (v *VinLine) TurnOn() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.pin.ConfigureInput(PullNone); err != nil {
		return err
	}
	v.driven = false
	return nil
}

// Level reads the electrical level of the line.
func (v *VinLine) Level() bool { return v.pin.Get() }

// Driven reports whether we are currently holding the line low.
func (v *VinLine) Driven() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.driven
}

// ----------------------------- GPIO (host) -----------------------------------

// FakePin implements Pin for host-side tests and simulation. While configured
// as an input it reads External, which models the rail pull-up or a fault
// holding the line low.
type FakePin struct {
	mu       sync.RWMutex
	number   int
	output   bool
	level    bool
	external bool
	pull     Pull
	configs  int
}

func NewFakePin(number int, external bool) *FakePin {
	return &FakePin{number: number, external: external}
}

func (p *FakePin) ConfigureInput(pull Pull) error {
	p.mu.Lock()
	p.output = false
	p.pull = pull
	p.configs++
	p.mu.Unlock()
	return nil
}

func (p *FakePin) ConfigureOutput(initial bool) error {
	p.mu.Lock()
	p.output = true
	p.level = initial
	p.configs++
	p.mu.Unlock()
	return nil
}

func (p *FakePin) Set(level bool) {
	p.mu.Lock()
	p.level = level
	p.mu.Unlock()
}

func (p *FakePin) Get() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.output {
		return p.level
	}
	return p.external
}

// SetExternal changes the level seen while the pin is an input.
func (p *FakePin) SetExternal(level bool) {
	p.mu.Lock()
	p.external = level
	p.mu.Unlock()
}

// IsOutput reports whether the pin is currently driven.
func (p *FakePin) IsOutput() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.output
}

func (p *FakePin) Configures() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.configs
}

func (p *FakePin) Number() int { return p.number }
