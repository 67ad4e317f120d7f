package hal

import (
	"time"

	"pdstation-go/errcode"

	"tinygo.org/x/drivers"
)

// -----------------------------------------------------------------------------
// I²C owner (one worker per physical bus)
// -----------------------------------------------------------------------------

// request posted to the per-bus worker
type i2cReq struct {
	addr uint16
	w    []byte // owned by the request
	rn   int
	done chan i2cResult // buffered(1); worker replies best-effort
}

type i2cResult struct {
	r   []byte
	err error
}

// Owner serialises every transaction on one physical bus through a single
// worker goroutine. Exclusion is per transaction, so cycles of different
// components interleave between reads and writes.
type Owner struct {
	name string
	hw   drivers.I2C
	reqs chan i2cReq
	quit chan struct{}
}

// NewOwner starts the worker. depth bounds the request queue (default 16).
func NewOwner(name string, hw drivers.I2C, depth int) *Owner {
	if depth <= 0 {
		depth = 16
	}
	o := &Owner{
		name: name,
		hw:   hw,
		reqs: make(chan i2cReq, depth),
		quit: make(chan struct{}),
	}
	go o.loop()
	return o
}

func (o *Owner) Name() string { return o.name }

func (o *Owner) loop() {
	for {
		select {
		case req := <-o.reqs:
			var res i2cResult
			if req.rn > 0 {
				res.r = make([]byte, req.rn)
			}
			res.err = o.hw.Tx(req.addr, req.w, res.r)
			// best-effort reply; an abandoned caller is not waiting
			select {
			case req.done <- res:
			default:
			}
		case <-o.quit:
			return
		}
	}
}

// Close stops the worker. Queued requests are not executed.
func (o *Owner) Close() { close(o.quit) }

// Device returns a virtual per-device handle. timeout bounds how long a call
// waits for the worker (0 waits forever).
func (o *Owner) Device(timeout time.Duration) *Handle {
	return &Handle{o: o, timeout: timeout}
}

// Handle adapts the owner to tinygo.org/x/drivers.I2C.
//
// On timeout the call returns errcode.Timeout but the transaction is not
// withdrawn: it still reaches the bus later and its read data is discarded.
// The caller's buffers are never touched after Tx returns.
type Handle struct {
	o       *Owner
	timeout time.Duration
}

var _ drivers.I2C = (*Handle)(nil)

func (h *Handle) Tx(addr uint16, w, r []byte) error {
	req := i2cReq{
		addr: addr,
		w:    append([]byte(nil), w...),
		rn:   len(r),
		done: make(chan i2cResult, 1),
	}

	if h.timeout <= 0 {
		select {
		case h.o.reqs <- req:
		case <-h.o.quit:
			return errcode.Closed
		}
		select {
		case res := <-req.done:
			return finish(res, r)
		case <-h.o.quit:
			return errcode.Closed
		}
	}

	t := time.NewTimer(h.timeout)
	defer t.Stop()
	select {
	case h.o.reqs <- req:
	case <-t.C:
		return errcode.Busy
	case <-h.o.quit:
		return errcode.Closed
	}
	select {
	case res := <-req.done:
		return finish(res, r)
	case <-t.C:
		return errcode.Timeout
	case <-h.o.quit:
		return errcode.Closed
	}
}

func finish(res i2cResult, r []byte) error {
	if res.err != nil {
		return res.err
	}
	copy(r, res.r)
	return nil
}
