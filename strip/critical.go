package strip

import (
	"runtime"
	"runtime/debug"
	"sync"
)

// Masker guards a transmission against anything that could stretch a pulse.
//
// On a microcontroller this masks interrupts. Enable must leave them enabled
// regardless of the state before Disable.
type Masker interface {
	Disable()
	Enable()
}

// critical disables m and returns the matching release, meant to be
// deferred:
//
//	defer critical(m)()
func critical(m Masker) func() {
	m.Disable()
	return m.Enable
}

// ThreadMasker is the best a hosted Go program can do: the calling goroutine
// is wired to its OS thread and the garbage collector is paused so no
// stop-the-world lands in the middle of a frame. The kernel can still
// preempt the thread; run the process with a real-time scheduling policy on
// an isolated CPU when this matters.
//
// The GC setting is process wide, so all ThreadMaskers share one nesting
// count: the GC is paused by the first Disable and resumed by the last Enable.
//
// Disable and Enable must be called from the same goroutine.
type ThreadMasker struct{}

var gcPause struct {
	sync.Mutex
	depth     int
	gcPercent int
}

// Disable implements Masker.
func (m *ThreadMasker) Disable() {
	runtime.LockOSThread()
	gcPause.Lock()
	if gcPause.depth == 0 {
		gcPause.gcPercent = debug.SetGCPercent(-1)
	}
	gcPause.depth++
	gcPause.Unlock()
}

// Enable implements Masker.
func (m *ThreadMasker) Enable() {
	gcPause.Lock()
	gcPause.depth--
	if gcPause.depth == 0 {
		debug.SetGCPercent(gcPause.gcPercent)
	}
	gcPause.Unlock()
	runtime.UnlockOSThread()
}

var _ Masker = &ThreadMasker{}
