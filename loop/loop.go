// Package loop drives a frame callback at a fixed rate.
package loop

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// DefaultFPS is used when Looper.FPS is not set.
const DefaultFPS = 30

// Looper calls Frame FPS times per second until its context is done.
type Looper struct {
	FPS int
	// Frame renders one frame; elapsed is the time since Run started.
	Frame func(ctx context.Context, elapsed time.Duration) error
	Log   zerolog.Logger
}

// Run blocks until ctx is done and returns nil. A failing frame is logged and
// the loop keeps going; the next frame replaces it entirely.
func (l *Looper) Run(ctx context.Context) error {
	fps := l.FPS
	if fps <= 0 {
		fps = DefaultFPS
	}
	period := time.Second / time.Duration(fps)
	start := time.Now()
	timer := time.NewTimer(0)
	defer timer.Stop()

	var frames, failed uint64
	for {
		select {
		case <-ctx.Done():
			l.Log.Debug().Uint64("frames", frames).Uint64("failed", failed).Msg("loop stopped")
			return nil
		case <-timer.C:
			if ctx.Err() != nil {
				// Both were ready; cancellation wins.
				continue
			}
		}
		t := time.Now()
		frames++
		if err := l.Frame(ctx, t.Sub(start)); err != nil {
			failed++
			l.Log.Warn().Err(err).Uint64("frame", frames).Msg("frame failed")
		}
		// Account for the time spent rendering so the rate does not drift.
		next := period - time.Since(t)
		if next < 0 {
			l.Log.Trace().Dur("late", -next).Msg("frame overran")
			next = 0
		}
		timer.Reset(next)
	}
}
