// Package strip bit-bangs SK6812 and WS2812 LED strips on a single data line.
//
// Every LED receives 24 bits, red then green then blue, most significant bit
// first. A bit is a pulse of fixed period: the line is held high for about
// 0.6 of the period for a 1 and about 0.3 for a 0, then low for the rest.
// After the last bit the line is held low for the reset (latch) period so the
// strip shows the new frame.
//
// The waveform has no framing or checksum; it is only correct if the pulses
// are not stretched. Dev.Transmit therefore runs inside a critical section
// provided by a Masker, and delegates the pulse shaping to an Emitter that
// knows how to hit the deadlines on its platform.
//
// # Datasheet
//
// https://github.com/cpldcpu/light_ws2812/tree/master/Datasheets
package strip
