package hal

import (
	"errors"
	"sync"
	"time"

	"tinygo.org/x/drivers"
)

// ----------------------------- I²C (host) ------------------------------------

var (
	ErrNack     = errors.New("hal: no device acknowledged")
	ErrConflict = errors.New("hal: more than one device answered")
)

// SimDevice is one addressable chip on a simulated bus.
type SimDevice interface {
	Tx(w, r []byte) error
}

// SimTx records one transaction seen by a SimBus.
type SimTx struct {
	Addr uint16
	W    []byte
	Rn   int
	Err  error
}

// SimBus implements drivers.I2C over a set of simulated devices. Devices can
// sit on the root segment or behind a SimMux port; a downstream device only
// answers while its port is enabled.
type SimBus struct {
	mu      sync.Mutex
	root    map[uint16]SimDevice
	muxes   []*SimMux
	faults  map[uint16]error
	delays  map[uint16]time.Duration
	log     []SimTx
	logSize int
}

var _ drivers.I2C = (*SimBus)(nil)

func NewSimBus() *SimBus {
	return &SimBus{
		root:    make(map[uint16]SimDevice),
		faults:  make(map[uint16]error),
		delays:  make(map[uint16]time.Duration),
		logSize: 1024,
	}
}

// Attach places dev on the root segment.
func (b *SimBus) Attach(addr uint16, dev SimDevice) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.root[addr] = dev
	if m, ok := dev.(*SimMux); ok {
		b.muxes = append(b.muxes, m)
	}
}

// Detach removes a root device, simulating an unplugged chip.
func (b *SimBus) Detach(addr uint16) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if m, ok := b.root[addr].(*SimMux); ok {
		for i, x := range b.muxes {
			if x == m {
				b.muxes = append(b.muxes[:i], b.muxes[i+1:]...)
				break
			}
		}
	}
	delete(b.root, addr)
}

// Fail makes every transaction to addr return err (nil clears).
func (b *SimBus) Fail(addr uint16, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		delete(b.faults, addr)
		return
	}
	b.faults[addr] = err
}

// Delay stalls every transaction to addr by d before it completes.
func (b *SimBus) Delay(addr uint16, d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if d <= 0 {
		delete(b.delays, addr)
		return
	}
	b.delays[addr] = d
}

func (b *SimBus) Tx(addr uint16, w, r []byte) error {
	b.mu.Lock()
	delay := b.delays[addr]
	fault := b.faults[addr]
	dev, err := b.route(addr)
	b.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if err == nil {
		err = fault
	}
	if err == nil {
		err = dev.Tx(w, r)
	}

	b.mu.Lock()
	if len(b.log) >= b.logSize {
		b.log = b.log[1:]
	}
	b.log = append(b.log, SimTx{Addr: addr, W: append([]byte(nil), w...), Rn: len(r), Err: err})
	b.mu.Unlock()
	return err
}

// route resolves addr against the root segment and every enabled mux port.
func (b *SimBus) route(addr uint16) (SimDevice, error) {
	if dev, ok := b.root[addr]; ok {
		return dev, nil
	}
	var found SimDevice
	for _, m := range b.muxes {
		for _, dev := range m.downstream(addr) {
			if found != nil {
				return nil, ErrConflict
			}
			found = dev
		}
	}
	if found == nil {
		return nil, ErrNack
	}
	return found, nil
}

// Log returns a copy of the recorded transactions.
func (b *SimBus) Log() []SimTx {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]SimTx(nil), b.log...)
}

// ResetLog clears the transaction record.
func (b *SimBus) ResetLog() {
	b.mu.Lock()
	b.log = b.log[:0]
	b.mu.Unlock()
}

// Writes counts recorded transactions to addr that carried write bytes.
func (b *SimBus) Writes(addr uint16) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, tx := range b.log {
		if tx.Addr == addr && len(tx.W) > 0 {
			n++
		}
	}
	return n
}

// ----------------------------- Mux (host) ------------------------------------

// SimMux models a 4-port switch with a single control register.
type SimMux struct {
	mu      sync.Mutex
	control byte
	ports   [4]map[uint16]SimDevice
}

func NewSimMux() *SimMux { return &SimMux{} }

// AttachPort places dev behind port.
func (m *SimMux) AttachPort(port int, addr uint16, dev SimDevice) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ports[port] == nil {
		m.ports[port] = make(map[uint16]SimDevice)
	}
	m.ports[port][addr] = dev
}

func (m *SimMux) Tx(w, r []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(w) > 0 {
		m.control = w[len(w)-1] & 0x0F
	}
	if len(r) > 0 {
		r[0] = m.control
	}
	return nil
}

func (m *SimMux) Control() byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.control
}

func (m *SimMux) downstream(addr uint16) []SimDevice {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []SimDevice
	for p := 0; p < 4; p++ {
		if m.control&(1<<p) == 0 {
			continue
		}
		if dev, ok := m.ports[p][addr]; ok {
			out = append(out, dev)
		}
	}
	return out
}

// ----------------------------- Registers (host) ------------------------------

// SimRegs is a register-file chip. The first write byte selects a register,
// remaining write bytes replace its contents; reads return the selected
// register's bytes zero-padded to the read length.
type SimRegs struct {
	mu      sync.Mutex
	regs    map[byte][]byte
	ptr     byte
	writes  []SimTx
	OnWrite func(reg byte, data []byte)
}

func NewSimRegs() *SimRegs {
	return &SimRegs{regs: make(map[byte][]byte)}
}

// Set stores raw register contents.
func (s *SimRegs) Set(reg byte, data ...byte) {
	s.mu.Lock()
	s.regs[reg] = append([]byte(nil), data...)
	s.mu.Unlock()
}

// Set16 stores a big-endian 16-bit register.
func (s *SimRegs) Set16(reg byte, v uint16) { s.Set(reg, byte(v>>8), byte(v)) }

func (s *SimRegs) Get(reg byte) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.regs[reg]...)
}

// Get16 reads a big-endian 16-bit register.
func (s *SimRegs) Get16(reg byte) uint16 {
	b := s.Get(reg)
	if len(b) < 2 {
		return 0
	}
	return uint16(b[0])<<8 | uint16(b[1])
}

// WriteCount counts data writes (register select alone does not count).
func (s *SimRegs) WriteCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.writes)
}

func (s *SimRegs) Tx(w, r []byte) error {
	s.mu.Lock()
	if len(w) > 0 {
		s.ptr = w[0]
	}
	var hook func(byte, []byte)
	var data []byte
	if len(w) > 1 {
		data = append([]byte(nil), w[1:]...)
		s.regs[s.ptr] = data
		s.writes = append(s.writes, SimTx{W: append([]byte(nil), w...)})
		hook = s.OnWrite
	}
	if len(r) > 0 {
		v := s.regs[s.ptr]
		n := copy(r, v)
		for i := n; i < len(r); i++ {
			r[i] = 0
		}
	}
	reg := s.ptr
	s.mu.Unlock()

	if hook != nil {
		hook(reg, data)
	}
	return nil
}
