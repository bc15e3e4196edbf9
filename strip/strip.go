package strip

import (
	"fmt"
	"sync"
	"time"

	"github.com/coreman2200/funtimes-nixieglow/model"
)

// Opts defines the options for the device.
type Opts struct {
	// Masker guards the waveform. Defaults to the platform masker: interrupt
	// masking under TinyGo, ThreadMasker otherwise.
	Masker Masker
	// Reset is the line-low time enforced after each frame. Defaults to
	// DefaultReset; shorter values are rejected.
	Reset time.Duration
}

// Dev is a handle to a LED strip on one data line.
type Dev struct {
	mu    sync.Mutex
	e     Emitter
	m     Masker
	reset time.Duration
}

// New returns a strip transmitting through e. opts may be nil.
func New(e Emitter, opts *Opts) (*Dev, error) {
	if e == nil {
		return nil, fmt.Errorf("%w: nil emitter", ErrInvalidArgument)
	}
	var o Opts
	if opts != nil {
		o = *opts
	}
	if o.Masker == nil {
		o.Masker = defaultMasker()
	}
	switch {
	case o.Reset == 0:
		o.Reset = DefaultReset
	case o.Reset < DefaultReset:
		return nil, fmt.Errorf("%w: reset %s is shorter than %s", ErrInvalidArgument, o.Reset, DefaultReset)
	}
	return &Dev{e: e, m: o.Masker, reset: o.Reset}, nil
}

func (d *Dev) String() string {
	if s, ok := d.e.(fmt.Stringer); ok {
		return "strip{" + s.String() + "}"
	}
	return "strip"
}

// Reset returns the line-low time enforced after each frame.
func (d *Dev) Reset() time.Duration {
	return d.reset
}

// Transmit sends the first count colors of s and blocks until the strip has
// latched them.
//
// The bits are sent with the Masker disabled; it is enabled again before
// Transmit returns, whatever the outcome. The reset period is enforced before
// returning, so back to back calls are safe.
//
// A pin error raised while bits are sent is returned after the latch.
//
// Returns ErrInvalidArgument if count is negative or larger than len(s); the
// line is not touched in that case.
func (d *Dev) Transmit(s model.Strip, count int) error {
	if count < 0 || count > len(s) {
		return fmt.Errorf("%w: count %d out of range for a strip of %d", ErrInvalidArgument, count, len(s))
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.send(s[:count]); err != nil {
		return err
	}
	if count != 0 {
		d.e.Latch(d.reset)
	}
	if fe, ok := d.e.(frameErrer); ok {
		return fe.Err()
	}
	return nil
}

// frameErrer is implemented by emitters that hold back errors raised while
// bits are being sent.
type frameErrer interface {
	Err() error
}

// Halt drives the data line low. It does not blank the LEDs; transmit a dark
// strip for that.
func (d *Dev) Halt() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.e.Halt()
}

func (d *Dev) send(s model.Strip) error {
	defer critical(d.m)()
	if err := d.e.Start(); err != nil {
		return err
	}
	if be, ok := d.e.(ByteEmitter); ok {
		for _, c := range s {
			be.EmitByte(c.R)
			be.EmitByte(c.G)
			be.EmitByte(c.B)
		}
		return nil
	}
	for _, c := range s {
		emitByte(d.e, c.R)
		emitByte(d.e, c.G)
		emitByte(d.e, c.B)
	}
	return nil
}

func emitByte(e Emitter, b byte) {
	for mask := byte(0x80); mask != 0; mask >>= 1 {
		e.Emit(b&mask != 0)
	}
}
