// Package ds3231 controls a Maxim DS3231 real-time clock over I²C.
//
// The driver reads and writes the time and date registers, configures the
// INT/SQW output and reads the internal temperature sensor. All time fields
// are stored BCD encoded by the chip; the century bit of the month register
// extends the two digit year to 2000-2199.
//
// # Datasheet
//
// https://www.analog.com/media/en/technical-documentation/data-sheets/DS3231.pdf
package ds3231
