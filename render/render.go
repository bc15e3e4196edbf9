// Package render shows a model.Strip on an output: the bit-banged strip
// transmitter, a SPI driven strip or the terminal.
package render

import (
	"fmt"
	"image"
	"sync"

	"github.com/coreman2200/funtimes-nixieglow/model"
	"github.com/coreman2200/funtimes-nixieglow/strip"
	"periph.io/x/conn/v3/display"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/devices/v3/nrzled"
	"periph.io/x/extra/devices/screen"
)

// Renderer outputs full frames.
type Renderer interface {
	// Show outputs s. The whole strip is sent every time.
	Show(s model.Strip) error
	// Halt turns every LED off.
	Halt() error
	String() string
}

// NewTransmitter returns a Renderer that bit-bangs frames through d.
func NewTransmitter(d *strip.Dev) Renderer {
	return &transmitter{d: d}
}

type transmitter struct {
	d *strip.Dev

	mu   sync.Mutex
	last int
}

func (r *transmitter) Show(s model.Strip) error {
	r.mu.Lock()
	if len(s) > r.last {
		r.last = len(s)
	}
	r.mu.Unlock()
	return r.d.Transmit(s, len(s))
}

// Halt blanks as many LEDs as the longest frame shown, then parks the line.
func (r *transmitter) Halt() error {
	r.mu.Lock()
	n := r.last
	r.mu.Unlock()
	if err := r.d.Transmit(model.NewStrip(n), n); err != nil {
		return err
	}
	return r.d.Halt()
}

func (r *transmitter) String() string {
	return r.d.String()
}

// nrzClock is the only SPI clock nrzled accepts: three SPI bits per LED bit
// give an 833kHz LED bit rate.
const nrzClock = 2500 * physic.KiloHertz

// NewNRZ returns a Renderer driving numPixels LEDs through the SPI port p,
// which keeps the waveform timing in hardware.
func NewNRZ(p spi.Port, numPixels int) (Renderer, error) {
	if numPixels <= 0 {
		return nil, fmt.Errorf("render: invalid pixel count %d", numPixels)
	}
	d, err := nrzled.NewSPI(p, &nrzled.Opts{
		NumPixels: numPixels,
		Channels:  3,
		Freq:      nrzClock,
	})
	if err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	if err := d.Halt(); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	// nrzled sends green first; swapping keeps red first on the wire like
	// strip.Dev.
	return &drawer{d: d, swapRG: true}, nil
}

// NewConsole returns a Renderer printing numPixels LEDs as ANSI colored
// blocks on the terminal.
func NewConsole(numPixels int) Renderer {
	return &drawer{d: screen.New(numPixels), newline: true}
}

type drawer struct {
	d       display.Drawer
	newline bool
	swapRG  bool
}

func (r *drawer) Show(s model.Strip) error {
	img := s.Image()
	if r.swapRG {
		for i := 0; i < len(img.Pix); i += 4 {
			img.Pix[i], img.Pix[i+1] = img.Pix[i+1], img.Pix[i]
		}
	}
	if err := r.d.Draw(r.d.Bounds(), img, image.Point{}); err != nil {
		return err
	}
	if r.newline {
		fmt.Println()
	}
	return nil
}

func (r *drawer) Halt() error {
	return r.d.Halt()
}

func (r *drawer) String() string {
	return r.d.String()
}
