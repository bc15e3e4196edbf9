// Package striptest is meant to be used to test drivers using package strip.
package striptest

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"

	"github.com/coreman2200/funtimes-nixieglow/strip"
)

// Clock is a strip.Clock that advances by Step on every Now call, so a busy
// wait on it terminates deterministically.
type Clock struct {
	sync.Mutex
	T    time.Duration
	Step time.Duration
}

// Now implements strip.Clock.
func (c *Clock) Now() time.Duration {
	c.Lock()
	defer c.Unlock()
	step := c.Step
	if step <= 0 {
		step = time.Nanosecond
	}
	c.T += step
	return c.T
}

// Peek returns the current time without advancing it.
func (c *Clock) Peek() time.Duration {
	c.Lock()
	defer c.Unlock()
	return c.T
}

// Masker records the critical sections.
type Masker struct {
	sync.Mutex
	Masked   bool
	Disables int
	Enables  int
}

// Disable implements strip.Masker.
func (m *Masker) Disable() {
	m.Lock()
	defer m.Unlock()
	m.Masked = true
	m.Disables++
}

// Enable implements strip.Masker.
func (m *Masker) Enable() {
	m.Lock()
	defer m.Unlock()
	m.Masked = false
	m.Enables++
}

// IsMasked returns true while between Disable and Enable.
func (m *Masker) IsMasked() bool {
	m.Lock()
	defer m.Unlock()
	return m.Masked
}

// Edge is one Out call seen by a Recorder.
type Edge struct {
	L gpio.Level
	T time.Duration
	// Masked is true if the Recorder's Masker was disabled at the time.
	Masked bool
}

// Recorder is a gpio.PinOut that timestamps every level it is set to.
type Recorder struct {
	gpiotest.Pin
	Clock  *Clock
	Masker *Masker
	// Err, if set, is returned by Out and nothing is recorded.
	Err error

	mu    sync.Mutex
	edges []Edge
}

// NewRecorder returns a Recorder named name on a fresh 1ns Clock.
func NewRecorder(name string) *Recorder {
	return &Recorder{
		Pin:   gpiotest.Pin{N: name, Num: -1},
		Clock: &Clock{Step: time.Nanosecond},
	}
}

// Out implements gpio.PinOut.
func (r *Recorder) Out(l gpio.Level) error {
	if r.Err != nil {
		return r.Err
	}
	if err := r.Pin.Out(l); err != nil {
		return err
	}
	e := Edge{L: l, T: r.Clock.Peek()}
	if r.Masker != nil {
		e.Masked = r.Masker.IsMasked()
	}
	r.mu.Lock()
	r.edges = append(r.edges, e)
	r.mu.Unlock()
	return nil
}

// Edges returns the recorded levels, collapsing repeated ones.
func (r *Recorder) Edges() []Edge {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Edge
	for _, e := range r.edges {
		if len(out) != 0 && out[len(out)-1].L == e.L {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Reset forgets the recorded edges.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.edges = nil
	r.mu.Unlock()
}

// Pulse is one high phase of the data line.
type Pulse struct {
	Rise time.Duration
	Fall time.Duration
}

// High is the high time of the pulse.
func (p Pulse) High() time.Duration {
	return p.Fall - p.Rise
}

// Pulses pairs each rising edge with the following falling edge. An
// unterminated trailing pulse is an error.
func Pulses(edges []Edge) ([]Pulse, error) {
	var out []Pulse
	for i := 0; i < len(edges); i++ {
		if edges[i].L != gpio.High {
			continue
		}
		if i+1 == len(edges) {
			return out, errors.New("striptest: line left high")
		}
		out = append(out, Pulse{Rise: edges[i].T, Fall: edges[i+1].T})
		i++
	}
	return out, nil
}

// Decode turns pulses back into bits, checking every high time and every
// period against t within strip.Tolerance.
func Decode(pulses []Pulse, t strip.Timing) ([]bool, error) {
	bits := make([]bool, 0, len(pulses))
	for i, p := range pulses {
		switch h := p.High(); {
		case within(h, t.T1H):
			bits = append(bits, true)
		case within(h, t.T0H):
			bits = append(bits, false)
		default:
			return bits, fmt.Errorf("striptest: pulse %d: high time %s matches neither %s nor %s", i, h, t.T0H, t.T1H)
		}
		if i != 0 {
			if d := p.Rise - pulses[i-1].Rise; !within(d, t.Period) {
				return bits, fmt.Errorf("striptest: pulse %d: period %s, want %s", i, d, t.Period)
			}
		}
	}
	return bits, nil
}

// Bytes packs bits MSB first. len(bits) must be a multiple of 8.
func Bytes(bits []bool) []byte {
	out := make([]byte, len(bits)/8)
	for i, b := range bits {
		if b {
			out[i/8] |= 0x80 >> uint(i%8)
		}
	}
	return out
}

func within(got, want time.Duration) bool {
	d := got - want
	return d <= strip.Tolerance && d >= -strip.Tolerance
}

// Emitter is a strip.Emitter that records bits without any timing.
type Emitter struct {
	Bits    []bool
	Latches []time.Duration
	Starts  int
	Halts   int
	// StartErr is returned by Start.
	StartErr error
	// Masker, if set, must be disabled for every Emit.
	Masker *Masker
	// Unmasked counts bits emitted outside the critical section.
	Unmasked int
}

// Start implements strip.Emitter.
func (e *Emitter) Start() error {
	e.Starts++
	return e.StartErr
}

// Emit implements strip.Emitter.
func (e *Emitter) Emit(bit bool) {
	if e.Masker != nil && !e.Masker.IsMasked() {
		e.Unmasked++
	}
	e.Bits = append(e.Bits, bit)
}

// Latch implements strip.Emitter.
func (e *Emitter) Latch(d time.Duration) {
	e.Latches = append(e.Latches, d)
}

// Halt implements strip.Emitter.
func (e *Emitter) Halt() error {
	e.Halts++
	return nil
}

// ByteEmitter is an Emitter that also implements strip.ByteEmitter.
type ByteEmitter struct {
	Emitter
	Bytes []byte
}

// EmitByte implements strip.ByteEmitter.
func (e *ByteEmitter) EmitByte(b byte) {
	e.Bytes = append(e.Bytes, b)
}

var _ gpio.PinOut = &Recorder{}
var _ strip.Clock = &Clock{}
var _ strip.Masker = &Masker{}
var _ strip.Emitter = &Emitter{}
var _ strip.ByteEmitter = &ByteEmitter{}
