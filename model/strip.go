package model

import (
	"image"
)

// Strip is the caller owned frame buffer of a LED strip, one Color per LED
// in wire order.
type Strip []Color

// NewStrip returns a dark strip of n LEDs.
func NewStrip(n int) Strip {
	return make(Strip, n)
}

// Fill sets every LED to c.
func (s Strip) Fill(c Color) {
	for i := range s {
		s[i] = c
	}
}

// Image renders the strip as a len(s)x1 image, LED 0 at X=0.
func (s Strip) Image() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, len(s), 1))
	for i, c := range s {
		img.SetNRGBA(i, 0, c.NRGBA())
	}
	return img
}

// Bytes returns the strip as packed R, G, B triplets.
func (s Strip) Bytes() []byte {
	buf := make([]byte, 0, 3*len(s))
	for _, c := range s {
		buf = append(buf, c.R, c.G, c.B)
	}
	return buf
}

// Wheel maps h in [0, 1) onto the hue circle at full saturation.
func Wheel(h float64) Color {
	h -= float64(int(h))
	if h < 0 {
		h++
	}
	h *= 6
	switch {
	case h < 1.:
		return Color{R: 255, G: byte(255 * h)}
	case h < 2.:
		return Color{R: byte(255 * (2 - h)), G: 255}
	case h < 3.:
		return Color{G: 255, B: byte(255 * (h - 2))}
	case h < 4.:
		return Color{G: byte(255 * (4 - h)), B: 255}
	case h < 5.:
		return Color{R: byte(255 * (h - 4)), B: 255}
	default:
		return Color{R: 255, B: byte(255 * (6 - h))}
	}
}
