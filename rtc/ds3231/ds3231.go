package ds3231

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
)

// Addr is the fixed 7 bit I²C address of the DS3231.
const Addr uint16 = 0x68

// Registers.
const (
	regSeconds  = 0x00
	regControl  = 0x0E
	regStatus   = 0x0F
	regTempMSB  = 0x11
	timeLength  = 3
	dateLength  = 7
	tempLength  = 2
	century     = 0x80
	hour12      = 0x40
	hourPM      = 0x20
	ctrlINTCN   = 0x04
	ctrlCONV    = 0x20
	statusOSF   = 0x80
	statusBSY   = 0x04
	defaultPoll = 10 * time.Millisecond
	defaultWait = 250 * time.Millisecond
)

var (
	// ErrInvalidArgument is returned for a Time or Date that the chip cannot
	// represent.
	ErrInvalidArgument = errors.New("ds3231: invalid argument")
	// ErrTimeout is returned when a forced temperature conversion does not
	// complete in Opts.ConvertTimeout.
	ErrTimeout = errors.New("ds3231: temperature conversion timed out")
)

// SquareWave selects what the INT/SQW pin outputs.
type SquareWave uint8

// Acceptable SquareWave values. The zero value is a 1Hz square wave.
const (
	SquareWave1Hz    SquareWave = 0x00
	SquareWave1024Hz SquareWave = 0x08
	SquareWave4096Hz SquareWave = 0x10
	SquareWave8192Hz SquareWave = 0x18
	// SquareWaveOff switches the pin to alarm interrupt output.
	SquareWaveOff SquareWave = ctrlINTCN
)

func (s SquareWave) String() string {
	switch s {
	case SquareWave1Hz:
		return "1Hz"
	case SquareWave1024Hz:
		return "1.024kHz"
	case SquareWave4096Hz:
		return "4.096kHz"
	case SquareWave8192Hz:
		return "8.192kHz"
	case SquareWaveOff:
		return "Off"
	default:
		return fmt.Sprintf("SquareWave(%d)", uint8(s))
	}
}

// Opts holds the configuration options.
type Opts struct {
	// SquareWave is written to the control register by Init.
	SquareWave SquareWave
	// ForceConvert starts a temperature conversion before each temperature
	// read instead of using the value the chip refreshes every 64 seconds.
	ForceConvert bool
	// ConvertPoll is the busy flag polling interval. Defaults to 10ms.
	ConvertPoll time.Duration
	// ConvertTimeout bounds a forced conversion. Defaults to 250ms.
	ConvertTimeout time.Duration
	// Logger receives register level debug logs. Defaults to no logging.
	Logger *zerolog.Logger
}

// Time is a time of day.
type Time struct {
	Second, Minute, Hour uint8
}

func (t Time) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", t.Hour, t.Minute, t.Second)
}

func (t Time) validate() error {
	if t.Second > 59 || t.Minute > 59 || t.Hour > 23 {
		return fmt.Errorf("%w: time %s", ErrInvalidArgument, t)
	}
	return nil
}

// Date is a calendar date with its time of day.
type Date struct {
	Second, Minute, Hour uint8
	Day, Month           uint8
	Year                 uint16
}

// DateOf returns the Date of t, in t's location.
func DateOf(t time.Time) Date {
	return Date{
		Second: uint8(t.Second()),
		Minute: uint8(t.Minute()),
		Hour:   uint8(t.Hour()),
		Day:    uint8(t.Day()),
		Month:  uint8(t.Month()),
		Year:   uint16(t.Year()),
	}
}

// Time returns d as a time.Time in loc.
func (d Date) Time(loc *time.Location) time.Time {
	return time.Date(int(d.Year), time.Month(d.Month), int(d.Day), int(d.Hour), int(d.Minute), int(d.Second), 0, loc)
}

// TimeOfDay drops the calendar part.
func (d Date) TimeOfDay() Time {
	return Time{Second: d.Second, Minute: d.Minute, Hour: d.Hour}
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d %02d:%02d:%02d", d.Year, d.Month, d.Day, d.Hour, d.Minute, d.Second)
}

func (d Date) validate() error {
	if err := d.TimeOfDay().validate(); err != nil {
		return err
	}
	if d.Year < 2000 || d.Year > 2199 || d.Month < 1 || d.Month > 12 || d.Day < 1 {
		return fmt.Errorf("%w: date %s", ErrInvalidArgument, d)
	}
	// time.Date normalizes Feb 30 to Mar 2.
	if t := d.Time(time.UTC); t.Day() != int(d.Day) {
		return fmt.Errorf("%w: date %s", ErrInvalidArgument, d)
	}
	return nil
}

// Dev is a handle to a DS3231.
type Dev struct {
	c    i2c.Dev
	opts Opts
	log  zerolog.Logger
}

// NewI2C returns a handle to the DS3231 on bus b. It does not touch the chip;
// call Init to configure it.
func NewI2C(b i2c.Bus, opts *Opts) (*Dev, error) {
	if b == nil {
		return nil, fmt.Errorf("%w: nil bus", ErrInvalidArgument)
	}
	d := &Dev{c: i2c.Dev{Bus: b, Addr: Addr}, log: zerolog.Nop()}
	if opts != nil {
		d.opts = *opts
	}
	switch d.opts.SquareWave {
	case SquareWave1Hz, SquareWave1024Hz, SquareWave4096Hz, SquareWave8192Hz, SquareWaveOff:
	default:
		return nil, fmt.Errorf("%w: square wave %s", ErrInvalidArgument, d.opts.SquareWave)
	}
	if d.opts.ConvertPoll <= 0 {
		d.opts.ConvertPoll = defaultPoll
	}
	if d.opts.ConvertTimeout <= 0 {
		d.opts.ConvertTimeout = defaultWait
	}
	if d.opts.Logger != nil {
		d.log = d.opts.Logger.With().Str("dev", "ds3231").Logger()
	}
	return d, nil
}

func (d *Dev) String() string {
	return fmt.Sprintf("DS3231{%s}", &d.c)
}

// Halt implements conn.Resource. The RTC keeps running on its battery.
func (d *Dev) Halt() error {
	return nil
}

// Init configures the INT/SQW output, disables the 32kHz output and clears
// the oscillator stop flag.
func (d *Dev) Init() error {
	if err := d.write(regControl, byte(d.opts.SquareWave), 0x00); err != nil {
		return err
	}
	d.log.Debug().Stringer("sqw", d.opts.SquareWave).Msg("initialized")
	return nil
}

// ReadTime reads the time of day.
func (d *Dev) ReadTime() (Time, error) {
	var b [timeLength]byte
	if err := d.read(regSeconds, b[:]); err != nil {
		return Time{}, err
	}
	return Time{
		Second: fromBCD(b[0] & 0x7F),
		Minute: fromBCD(b[1] & 0x7F),
		Hour:   hourFromReg(b[2]),
	}, nil
}

// ReadDate reads the date and time of day in a single transaction, so the
// fields are consistent with each other.
func (d *Dev) ReadDate() (Date, error) {
	var b [dateLength]byte
	if err := d.read(regSeconds, b[:]); err != nil {
		return Date{}, err
	}
	year := 2000 + uint16(fromBCD(b[6]))
	if b[5]&century != 0 {
		year += 100
	}
	// b[3] is the day of the week, derived from the date on write.
	return Date{
		Second: fromBCD(b[0] & 0x7F),
		Minute: fromBCD(b[1] & 0x7F),
		Hour:   hourFromReg(b[2]),
		Day:    fromBCD(b[4] & 0x3F),
		Month:  fromBCD(b[5] & 0x1F),
		Year:   year,
	}, nil
}

// WriteTime sets the time of day, leaving the date untouched. The chip is
// switched to 24 hour mode.
func (d *Dev) WriteTime(t Time) error {
	if err := t.validate(); err != nil {
		return err
	}
	return d.write(regSeconds, toBCD(t.Second), toBCD(t.Minute), toBCD(t.Hour))
}

// WriteDate sets the date and time of day. The day of the week register is
// set from the date, 1 being Sunday.
func (d *Dev) WriteDate(dt Date) error {
	if err := dt.validate(); err != nil {
		return err
	}
	month := toBCD(dt.Month)
	y := dt.Year - 2000
	if y >= 100 {
		month |= century
		y -= 100
	}
	weekday := uint8(dt.Time(time.UTC).Weekday()) + 1
	return d.write(regSeconds,
		toBCD(dt.Second), toBCD(dt.Minute), toBCD(dt.Hour),
		weekday, toBCD(dt.Day), month, toBCD(uint8(y)))
}

// Now reads the date as a time.Time in UTC.
func (d *Dev) Now() (time.Time, error) {
	dt, err := d.ReadDate()
	if err != nil {
		return time.Time{}, err
	}
	return dt.Time(time.UTC), nil
}

// Set writes t, converted to UTC, to the chip.
func (d *Dev) Set(t time.Time) error {
	return d.WriteDate(DateOf(t.UTC()))
}

// LostPower returns true if the oscillator stopped since Init, in which case
// the time is not to be trusted.
func (d *Dev) LostPower() (bool, error) {
	var b [1]byte
	if err := d.read(regStatus, b[:]); err != nil {
		return false, err
	}
	return b[0]&statusOSF != 0, nil
}

// ReadTemperature returns the die temperature in tenths of °C, truncated
// toward zero. The sensor resolution is 0.25°C.
func (d *Dev) ReadTemperature() (int, error) {
	q, err := d.quarters()
	if err != nil {
		return 0, err
	}
	return q * 25 / 10, nil
}

// Temperature returns the die temperature.
func (d *Dev) Temperature() (physic.Temperature, error) {
	q, err := d.quarters()
	if err != nil {
		return 0, err
	}
	return physic.ZeroCelsius + physic.Temperature(q)*250*physic.MilliKelvin, nil
}

// quarters returns the temperature in quarters of °C.
func (d *Dev) quarters() (int, error) {
	if d.opts.ForceConvert {
		if err := d.convert(); err != nil {
			return 0, err
		}
	}
	var b [tempLength]byte
	if err := d.read(regTempMSB, b[:]); err != nil {
		return 0, err
	}
	q := int(int8(b[0]))*4 + int(b[1]>>6)
	d.log.Debug().Int("quarters", q).Hex("raw", b[:]).Msg("temperature")
	return q, nil
}

// convert forces a temperature conversion unless one is already running,
// then waits for the busy flag to clear.
func (d *Dev) convert() error {
	busy, err := d.busy()
	if err != nil {
		return err
	}
	if !busy {
		if err := d.write(regControl, byte(d.opts.SquareWave)|ctrlCONV); err != nil {
			return err
		}
	}
	deadline := time.Now().Add(d.opts.ConvertTimeout)
	for {
		if busy, err = d.busy(); err != nil || !busy {
			return err
		}
		if time.Now().After(deadline) {
			return ErrTimeout
		}
		time.Sleep(d.opts.ConvertPoll)
	}
}

func (d *Dev) busy() (bool, error) {
	var b [1]byte
	if err := d.read(regStatus, b[:]); err != nil {
		return false, err
	}
	return b[0]&statusBSY != 0, nil
}

func (d *Dev) read(reg byte, b []byte) error {
	if err := d.c.Tx([]byte{reg}, b); err != nil {
		return fmt.Errorf("ds3231: read register 0x%02X: %w", reg, err)
	}
	return nil
}

func (d *Dev) write(reg byte, data ...byte) error {
	if err := d.c.Tx(append([]byte{reg}, data...), nil); err != nil {
		return fmt.Errorf("ds3231: write register 0x%02X: %w", reg, err)
	}
	return nil
}
