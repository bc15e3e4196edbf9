package model

import (
	"image/color"
)

const (
	RED_OFFSET   uint8 = 0x10
	GREEN_OFFSET uint8 = 0x08
	BLUE_OFFSET  uint8 = 0x0
)

// Color is the 24 bit value of one LED, as it is sent on the wire.
//
// There is no alpha: a Color is always opaque.
type Color struct {
	R, G, B uint8
}

// NewColor unpacks 0xRRGGBB.
func NewColor(c uint32) Color {
	return Color{
		R: getcolor(c, RED_OFFSET),
		G: getcolor(c, GREEN_OFFSET),
		B: getcolor(c, BLUE_OFFSET),
	}
}

// Uint32 packs c as 0xRRGGBB.
func (c Color) Uint32() uint32 {
	return uint32(c.R)<<RED_OFFSET | uint32(c.G)<<GREEN_OFFSET | uint32(c.B)<<BLUE_OFFSET
}

// RGBA implements color.Color.
func (c Color) RGBA() (r, g, b, a uint32) {
	r = uint32(c.R)
	r |= r << 8
	g = uint32(c.G)
	g |= g << 8
	b = uint32(c.B)
	b |= b << 8
	return r, g, b, 0xFFFF
}

// NRGBA returns c as an opaque color.NRGBA.
func (c Color) NRGBA() color.NRGBA {
	return color.NRGBA{R: c.R, G: c.G, B: c.B, A: 255}
}

// Scale dims every channel by s, clamped to [0, 1].
func (c Color) Scale(s float64) Color {
	if s >= 1.0 {
		return c
	}
	if s <= 0.0 {
		return Color{}
	}
	return Color{
		R: uint8(float64(c.R) * s),
		G: uint8(float64(c.G) * s),
		B: uint8(float64(c.B) * s),
	}
}

// ColorModel converts any color.Color to a Color. Non-opaque colors are
// un-premultiplied first, then alpha is dropped.
var ColorModel = color.ModelFunc(convert)

func convert(c color.Color) color.Color {
	if v, ok := c.(Color); ok {
		return v
	}
	n := color.NRGBAModel.Convert(c).(color.NRGBA)
	return Color{R: n.R, G: n.G, B: n.B}
}

func getcolor(c uint32, off uint8) uint8 {
	var mask uint32 = 0xFF << off
	return uint8((c & mask) >> off)
}

var _ color.Color = Color{}
