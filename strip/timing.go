package strip

import (
	"errors"
	"fmt"
	"time"

	"periph.io/x/conn/v3/physic"
)

const (
	// DefaultSpeed is the bit rate of SK6812 and WS2812B strips.
	DefaultSpeed = 800 * physic.KiloHertz
	// DefaultReset is the minimum line-low time that latches a frame.
	DefaultReset = 80 * time.Microsecond
	// Tolerance is how far a pulse edge may drift from nominal and still be
	// latched correctly.
	Tolerance = 150 * time.Nanosecond
)

// ErrInvalidArgument is returned for out of range arguments, most notably a
// count larger than the strip passed to Transmit.
var ErrInvalidArgument = errors.New("strip: invalid argument")

// Timing is the shape of one bit on the wire.
type Timing struct {
	// Period is the total duration of a bit, independent of its value.
	Period time.Duration
	// T0H is the high time of a 0 bit.
	T0H time.Duration
	// T1H is the high time of a 1 bit.
	T1H time.Duration
}

// NewTiming derives the bit shape from a bit rate: the high time is 30% of
// the period for a 0 and 60% for a 1.
func NewTiming(speed physic.Frequency) Timing {
	p := speed.Period()
	return Timing{
		Period: p,
		T0H:    p * 3 / 10,
		T1H:    p * 6 / 10,
	}
}

// DefaultTiming is NewTiming(DefaultSpeed): 1.25µs, 375ns, 750ns.
var DefaultTiming = NewTiming(DefaultSpeed)

// High returns the high time for the bit value.
func (t Timing) High(bit bool) time.Duration {
	if bit {
		return t.T1H
	}
	return t.T0H
}

// Validate returns an error if a strip would not decode t.
func (t Timing) Validate() error {
	if t.T0H <= 0 || t.T0H >= t.T1H || t.T1H >= t.Period {
		return fmt.Errorf("%w: timing %s must satisfy 0 < T0H < T1H < Period", ErrInvalidArgument, t)
	}
	check := func(name string, got, want time.Duration) error {
		if d := got - want; d > Tolerance || d < -Tolerance {
			return fmt.Errorf("%w: %s %s is more than %s away from %s", ErrInvalidArgument, name, got, Tolerance, want)
		}
		return nil
	}
	if err := check("period", t.Period, DefaultTiming.Period); err != nil {
		return err
	}
	if err := check("T0H", t.T0H, DefaultTiming.T0H); err != nil {
		return err
	}
	return check("T1H", t.T1H, DefaultTiming.T1H)
}

func (t Timing) String() string {
	return fmt.Sprintf("Timing{T:%s T0H:%s T1H:%s}", t.Period, t.T0H, t.T1H)
}
