package strip

import (
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"
)

// Emitter shapes the pulses of one data line.
//
// Emit must take the same time for both bit values; only the split between
// high and low may differ. Implementations are driven from within the
// critical section and must not block on anything but the clock.
type Emitter interface {
	// Start drives the line low and anchors the bit clock. The first Emit
	// starts no earlier than Start returned.
	Start() error
	// Emit sends one bit and returns when its period has elapsed. An
	// Emitter that can fail mid frame reports it through an Err() error
	// method, checked by Dev.Transmit after the latch.
	Emit(bit bool)
	// Latch holds the line low until at least d after the last bit. It is
	// called once the critical section is released.
	Latch(d time.Duration)
	// Halt drives the line low.
	Halt() error
}

// ByteEmitter is optionally implemented by an Emitter that sends a whole
// channel at once, most significant bit first. It is preferred when
// available since per-platform code can keep the 8 bits in registers.
type ByteEmitter interface {
	EmitByte(b byte)
}

// Clock is a monotonic time source. Now is relative to an arbitrary origin.
type Clock interface {
	Now() time.Duration
}

type monotonic struct {
	origin time.Time
}

func (m monotonic) Now() time.Duration {
	return time.Since(m.origin)
}

// HostClock returns the monotonic clock of the OS.
func HostClock() Clock {
	return monotonic{origin: time.Now()}
}

// PinEmitter bit-bangs a gpio.PinOut by busy-waiting on a Clock.
//
// All edges are scheduled against absolute deadlines: bit n rises at
// anchor+n*Period, falls at its rise plus T0H or T1H and the next bit rises
// one Period after. A late edge therefore never shifts the following bits.
type PinEmitter struct {
	p    gpio.PinOut
	t    Timing
	clk  Clock
	next time.Duration
	// err is the first pin error since Start. Errors are not returned from
	// the timed section.
	err error
}

// NewPinEmitter returns an Emitter toggling p with the timing t. A nil clk
// uses HostClock.
//
// p must already be usable as an output; its Out error is only checked in
// Start.
func NewPinEmitter(p gpio.PinOut, t Timing, clk Clock) (*PinEmitter, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: nil pin", ErrInvalidArgument)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if clk == nil {
		clk = HostClock()
	}
	return &PinEmitter{p: p, t: t, clk: clk}, nil
}

func (e *PinEmitter) String() string {
	return e.p.Name()
}

// Timing returns the bit shape used.
func (e *PinEmitter) Timing() Timing {
	return e.t
}

// Start implements Emitter.
func (e *PinEmitter) Start() error {
	e.err = nil
	if err := e.p.Out(gpio.Low); err != nil {
		return fmt.Errorf("strip: %s: %w", e.p, err)
	}
	e.next = e.clk.Now()
	return nil
}

// Err returns the first pin error since the last Start, if any. Dev.Transmit
// returns it once the frame is latched.
func (e *PinEmitter) Err() error {
	if e.err == nil {
		return nil
	}
	return fmt.Errorf("strip: %s: %w", e.p.Name(), e.err)
}

// Emit implements Emitter.
func (e *PinEmitter) Emit(bit bool) {
	start := e.next
	fall := start + e.t.High(bit)
	e.next = start + e.t.Period
	e.spin(start)
	e.out(gpio.High)
	e.spin(fall)
	e.out(gpio.Low)
	e.spin(e.next)
}

// Latch implements Emitter.
func (e *PinEmitter) Latch(d time.Duration) {
	e.out(gpio.Low)
	e.next += d
	e.spin(e.next)
}

// Halt implements Emitter.
func (e *PinEmitter) Halt() error {
	return e.p.Out(gpio.Low)
}

func (e *PinEmitter) out(l gpio.Level) {
	if err := e.p.Out(l); err != nil && e.err == nil {
		e.err = err
	}
}

func (e *PinEmitter) spin(deadline time.Duration) {
	for e.clk.Now() < deadline {
	}
}

var _ Emitter = &PinEmitter{}
