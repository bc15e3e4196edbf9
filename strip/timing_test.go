package strip

import (
	"errors"
	"runtime/debug"
	"testing"
	"time"

	"periph.io/x/conn/v3/physic"
)

func TestNewTiming(t *testing.T) {
	data := []struct {
		speed physic.Frequency
		want  Timing
	}{
		{800 * physic.KiloHertz, Timing{Period: 1250 * time.Nanosecond, T0H: 375 * time.Nanosecond, T1H: 750 * time.Nanosecond}},
		{1 * physic.MegaHertz, Timing{Period: time.Microsecond, T0H: 300 * time.Nanosecond, T1H: 600 * time.Nanosecond}},
	}
	for i, line := range data {
		if got := NewTiming(line.speed); got != line.want {
			t.Fatalf("line %d: NewTiming(%s) = %s, want %s", i, line.speed, got, line.want)
		}
	}
	if DefaultTiming.High(true) != DefaultTiming.T1H || DefaultTiming.High(false) != DefaultTiming.T0H {
		t.Fatal("High() mismatch")
	}
}

func TestTiming_Validate(t *testing.T) {
	data := []struct {
		t  Timing
		ok bool
	}{
		{DefaultTiming, true},
		{NewTiming(850 * physic.KiloHertz), true},
		{NewTiming(400 * physic.KiloHertz), false},
		{NewTiming(2 * physic.MegaHertz), false},
		{Timing{}, false},
		{Timing{Period: 1250 * time.Nanosecond, T0H: 750 * time.Nanosecond, T1H: 375 * time.Nanosecond}, false},
		{Timing{Period: 1250 * time.Nanosecond, T0H: 375 * time.Nanosecond, T1H: 950 * time.Nanosecond}, false},
	}
	for i, line := range data {
		err := line.t.Validate()
		if line.ok && err != nil {
			t.Fatalf("line %d: %s: unexpected error %v", i, line.t, err)
		}
		if !line.ok && !errors.Is(err, ErrInvalidArgument) {
			t.Fatalf("line %d: %s: expected ErrInvalidArgument, got %v", i, line.t, err)
		}
	}
}

func TestThreadMasker_RestoresGC(t *testing.T) {
	prev := debug.SetGCPercent(77)
	defer debug.SetGCPercent(prev)

	m := &ThreadMasker{}
	func() {
		defer critical(m)()
		if got := debug.SetGCPercent(-1); got != -1 {
			t.Fatalf("GC not paused in the critical section: %d", got)
		}
	}()
	if got := debug.SetGCPercent(77); got != 77 {
		t.Fatalf("GC percent not restored: %d", got)
	}
}

func TestThreadMasker_Interleaved(t *testing.T) {
	prev := debug.SetGCPercent(77)
	defer debug.SetGCPercent(prev)

	a, b := &ThreadMasker{}, &ThreadMasker{}
	a.Disable()
	b.Disable()
	a.Enable()
	if got := debug.SetGCPercent(-1); got != -1 {
		t.Fatalf("GC resumed while a section is still masked: %d", got)
	}
	b.Enable()
	if got := debug.SetGCPercent(77); got != 77 {
		t.Fatalf("GC percent not restored after interleaved sections: %d", got)
	}

	// One masker shared by nested sections.
	m := &ThreadMasker{}
	m.Disable()
	m.Disable()
	m.Enable()
	m.Enable()
	if got := debug.SetGCPercent(77); got != 77 {
		t.Fatalf("GC percent not restored after nested sections: %d", got)
	}
}
