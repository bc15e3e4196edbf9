//go:build tinygo

package strip

import (
	"machine"
	"runtime/interrupt"
	"time"

	"tinygo.org/x/drivers/ws2812"
)

func defaultMasker() Masker {
	return interruptMasker{}
}

// enabled is captured during package init, which runs with interrupts on.
var enabled = func() interrupt.State {
	s := interrupt.Disable()
	interrupt.Restore(s)
	return s
}()

// interruptMasker masks all maskable interrupts. Enable turns them back on
// even if they were off before Disable.
type interruptMasker struct{}

func (interruptMasker) Disable() {
	interrupt.Disable()
}

func (interruptMasker) Enable() {
	interrupt.Restore(enabled)
}

// mcuEmitter uses the cycle counted byte sender of the ws2812 driver for the
// current chip and core clock. The driver masks interrupts around each byte;
// that nests inside the critical section of Dev.Transmit, and the driver's
// Restore returns to the masked state, so the gaps between bytes stay masked.
type mcuEmitter struct {
	pin machine.Pin
	d   ws2812.Device
}

// NewMCUEmitter configures pin as an output and returns an Emitter for it.
func NewMCUEmitter(pin machine.Pin) Emitter {
	pin.Configure(machine.PinConfig{Mode: machine.PinOutput})
	return &mcuEmitter{pin: pin, d: ws2812.New(pin)}
}

func (e *mcuEmitter) Start() error {
	e.pin.Low()
	return nil
}

// Emit is unsupported: the cycle counted code has no single bit entry point
// and Dev always prefers EmitByte.
func (e *mcuEmitter) Emit(bit bool) {
	panic("strip: mcuEmitter only sends whole bytes")
}

func (e *mcuEmitter) EmitByte(b byte) {
	_ = e.d.WriteByte(b)
}

// Latch runs with interrupts enabled, so the timer based sleep is usable.
func (e *mcuEmitter) Latch(d time.Duration) {
	e.pin.Low()
	time.Sleep(d)
}

func (e *mcuEmitter) Halt() error {
	e.pin.Low()
	return nil
}

var _ ByteEmitter = &mcuEmitter{}
