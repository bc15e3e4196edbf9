package ds3231

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2ctest"
	"periph.io/x/conn/v3/physic"
)

// chip emulates the DS3231 register file and its auto-incrementing register
// pointer.
type chip struct {
	sync.Mutex
	regs [0x13]byte
	txs  int
	// busyFor is how many status reads report BSY after a CONV request. A
	// negative value never clears.
	busyFor int
	busy    int
	convs   int
	err     error
}

func (c *chip) String() string { return "chip" }

func (c *chip) SetSpeed(physic.Frequency) error { return nil }

func (c *chip) Tx(addr uint16, w, r []byte) error {
	c.Lock()
	defer c.Unlock()
	c.txs++
	if c.err != nil {
		return c.err
	}
	if addr != Addr {
		return fmt.Errorf("no device at 0x%02X", addr)
	}
	if len(w) == 0 {
		return errors.New("no register pointer")
	}
	ptr := int(w[0])
	for _, b := range w[1:] {
		if ptr == regControl && b&ctrlCONV != 0 {
			c.convs++
			c.busy = c.busyFor
			c.regs[regStatus] |= statusBSY
			b &^= ctrlCONV
		}
		c.regs[ptr%len(c.regs)] = b
		ptr++
	}
	for i := range r {
		p := ptr % len(c.regs)
		r[i] = c.regs[p]
		if p == regStatus && c.regs[regStatus]&statusBSY != 0 && c.busy >= 0 {
			if c.busy == 0 {
				c.regs[regStatus] &^= statusBSY
				r[i] = c.regs[p]
			} else {
				c.busy--
			}
		}
		ptr++
	}
	return nil
}

func newDev(t *testing.T, c *chip, opts *Opts) *Dev {
	t.Helper()
	d, err := NewI2C(c, opts)
	require.NoError(t, err)
	return d
}

func TestInit(t *testing.T) {
	data := []struct {
		sqw  SquareWave
		want byte
	}{
		{SquareWave1Hz, 0x00},
		{SquareWave8192Hz, 0x18},
		{SquareWaveOff, 0x04},
	}
	for _, line := range data {
		t.Run(line.sqw.String(), func(t *testing.T) {
			bus := &i2ctest.Playback{
				Ops: []i2ctest.IO{{Addr: Addr, W: []byte{regControl, line.want, 0x00}}},
			}
			d, err := NewI2C(bus, &Opts{SquareWave: line.sqw})
			require.NoError(t, err)
			require.NoError(t, d.Init())
			require.NoError(t, bus.Close())
		})
	}
}

func TestNewI2C(t *testing.T) {
	_, err := NewI2C(nil, nil)
	assert.True(t, errors.Is(err, ErrInvalidArgument))

	_, err = NewI2C(&chip{}, &Opts{SquareWave: 0x01})
	assert.True(t, errors.Is(err, ErrInvalidArgument))

	d := newDev(t, &chip{}, nil)
	assert.Equal(t, defaultPoll, d.opts.ConvertPoll)
	assert.Equal(t, defaultWait, d.opts.ConvertTimeout)
	assert.Contains(t, d.String(), "DS3231")
	assert.NoError(t, d.Halt())
}

func TestDateRoundTrip(t *testing.T) {
	dates := []Date{
		{Year: 2000, Month: 1, Day: 1},
		{Second: 59, Minute: 59, Hour: 23, Day: 31, Month: 12, Year: 2099},
		{Year: 2100, Month: 1, Day: 1},
		{Second: 7, Minute: 8, Hour: 9, Day: 29, Month: 2, Year: 2024},
		{Second: 30, Minute: 15, Hour: 12, Day: 10, Month: 10, Year: 2150},
		{Second: 59, Minute: 59, Hour: 23, Day: 31, Month: 12, Year: 2199},
	}
	c := &chip{}
	d := newDev(t, c, nil)
	for _, want := range dates {
		t.Run(want.String(), func(t *testing.T) {
			require.NoError(t, d.WriteDate(want))
			got, err := d.ReadDate()
			require.NoError(t, err)
			assert.Equal(t, want, got)
			assert.Equal(t, uint8(want.Time(time.UTC).Weekday())+1, c.regs[0x03])
		})
	}
}

func TestCenturyFlag(t *testing.T) {
	c := &chip{}
	d := newDev(t, c, nil)

	require.NoError(t, d.WriteDate(Date{Day: 31, Month: 12, Year: 2099}))
	assert.Equal(t, byte(0x12), c.regs[0x05], "century flag clear")
	assert.Equal(t, byte(0x99), c.regs[0x06])

	require.NoError(t, d.WriteDate(Date{Day: 1, Month: 1, Year: 2100}))
	assert.Equal(t, byte(0x81), c.regs[0x05], "century flag set")
	assert.Equal(t, byte(0x00), c.regs[0x06])

	dt, err := d.ReadDate()
	require.NoError(t, err)
	assert.Equal(t, uint16(2100), dt.Year)
}

func TestReadDate_Registers(t *testing.T) {
	c := &chip{}
	copy(c.regs[:], []byte{0x45, 0x32, 0x21, 0x03, 0x17, 0x11, 0x26})
	d := newDev(t, c, nil)

	dt, err := d.ReadDate()
	require.NoError(t, err)
	assert.Equal(t, Date{Second: 45, Minute: 32, Hour: 21, Day: 17, Month: 11, Year: 2026}, dt)

	tm, err := d.ReadTime()
	require.NoError(t, err)
	assert.Equal(t, Time{Second: 45, Minute: 32, Hour: 21}, tm)
	assert.Equal(t, dt.TimeOfDay(), tm)
	assert.Equal(t, "21:32:45", tm.String())

	now, err := d.Now()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, time.November, 17, 21, 32, 45, 0, time.UTC), now)
}

func TestHour12(t *testing.T) {
	data := []struct {
		reg  byte
		want uint8
	}{
		{0x23, 23},
		{hour12 | 0x12, 0},
		{hour12 | 0x01, 1},
		{hour12 | hourPM | 0x12, 12},
		{hour12 | hourPM | 0x01, 13},
		{hour12 | hourPM | 0x11, 23},
	}
	for i, line := range data {
		if got := hourFromReg(line.reg); got != line.want {
			t.Fatalf("line %d: hourFromReg(0x%02X) = %d, want %d", i, line.reg, got, line.want)
		}
	}
}

func TestBCD(t *testing.T) {
	for i := uint8(0); i < 100; i++ {
		b := toBCD(i)
		require.Equal(t, i/10, b>>4)
		require.Equal(t, i%10, b&0x0F)
		require.Equal(t, i, fromBCD(b))
	}
}

func TestWriteTime(t *testing.T) {
	c := &chip{}
	copy(c.regs[:], []byte{0, 0, 0, 0x05, 0x24, 0x12, 0x99})
	d := newDev(t, c, nil)

	require.NoError(t, d.WriteTime(Time{Second: 5, Minute: 59, Hour: 17}))
	assert.Equal(t, []byte{0x05, 0x59, 0x17, 0x05, 0x24, 0x12, 0x99}, c.regs[:7])
}

func TestWrite_Invalid(t *testing.T) {
	c := &chip{}
	d := newDev(t, c, nil)
	for _, tm := range []Time{{Second: 60}, {Minute: 60}, {Hour: 24}} {
		assert.True(t, errors.Is(d.WriteTime(tm), ErrInvalidArgument), "%s", tm)
	}
	for _, dt := range []Date{
		{Year: 1999, Month: 12, Day: 31},
		{Year: 2200, Month: 1, Day: 1},
		{Year: 2024, Month: 0, Day: 1},
		{Year: 2024, Month: 13, Day: 1},
		{Year: 2024, Month: 1, Day: 0},
		{Year: 2023, Month: 2, Day: 29},
		{Year: 2024, Month: 4, Day: 31},
		{Year: 2024, Month: 1, Day: 1, Hour: 24},
	} {
		assert.True(t, errors.Is(d.WriteDate(dt), ErrInvalidArgument), "%s", dt)
	}
	assert.Zero(t, c.txs, "no bus traffic on invalid input")
}

func TestSet(t *testing.T) {
	c := &chip{}
	d := newDev(t, c, nil)
	loc := time.FixedZone("UTC+2", 2*60*60)
	want := time.Date(2031, time.March, 4, 1, 2, 3, 0, loc)
	require.NoError(t, d.Set(want))
	got, err := d.Now()
	require.NoError(t, err)
	assert.True(t, want.Equal(got), "%s != %s", want, got)
}

func TestTemperature(t *testing.T) {
	data := []struct {
		msb, lsb byte
		tenths   int
		celsius  physic.Temperature
	}{
		{0x19, 0x40, 252, 25*physic.Kelvin + 250*physic.MilliKelvin},
		{0x00, 0x00, 0, 0},
		{0xFF, 0x40, -7, -750 * physic.MilliKelvin},
		{0xE7, 0x00, -250, -25 * physic.Kelvin},
	}
	for i, line := range data {
		c := &chip{}
		c.regs[regTempMSB] = line.msb
		c.regs[regTempMSB+1] = line.lsb
		d := newDev(t, c, nil)

		tenths, err := d.ReadTemperature()
		require.NoError(t, err)
		assert.Equal(t, line.tenths, tenths, "line %d", i)

		temp, err := d.Temperature()
		require.NoError(t, err)
		assert.Equal(t, physic.ZeroCelsius+line.celsius, temp, "line %d", i)
		assert.Zero(t, c.convs, "no forced conversion by default")
	}
}

func TestTemperature_ForceConvert(t *testing.T) {
	c := &chip{busyFor: 2}
	c.regs[regTempMSB] = 21
	logger := zerolog.New(zerolog.NewTestWriter(t)).Level(zerolog.DebugLevel)
	d := newDev(t, c, &Opts{
		SquareWave:   SquareWave1024Hz,
		ForceConvert: true,
		ConvertPoll:  time.Microsecond,
		Logger:       &logger,
	})

	tenths, err := d.ReadTemperature()
	require.NoError(t, err)
	assert.Equal(t, 210, tenths)
	assert.Equal(t, 1, c.convs)
	assert.Equal(t, byte(SquareWave1024Hz), c.regs[regControl], "rate select preserved")
	assert.Zero(t, c.regs[regStatus]&statusBSY)
}

func TestTemperature_AlreadyBusy(t *testing.T) {
	c := &chip{busy: 1}
	c.regs[regStatus] = statusBSY
	d := newDev(t, c, &Opts{ForceConvert: true, ConvertPoll: time.Microsecond})

	_, err := d.ReadTemperature()
	require.NoError(t, err)
	assert.Zero(t, c.convs, "no second conversion while one is running")
}

func TestTemperature_Timeout(t *testing.T) {
	c := &chip{busyFor: -1}
	d := newDev(t, c, &Opts{ForceConvert: true, ConvertPoll: time.Microsecond, ConvertTimeout: time.Millisecond})

	_, err := d.ReadTemperature()
	assert.True(t, errors.Is(err, ErrTimeout), "%v", err)
}

func TestLostPower(t *testing.T) {
	c := &chip{}
	d := newDev(t, c, nil)
	lost, err := d.LostPower()
	require.NoError(t, err)
	assert.False(t, lost)

	c.regs[regStatus] = statusOSF
	lost, err = d.LostPower()
	require.NoError(t, err)
	assert.True(t, lost)

	require.NoError(t, d.Init())
	lost, err = d.LostPower()
	require.NoError(t, err)
	assert.False(t, lost, "Init clears OSF")
}

func TestBusError(t *testing.T) {
	boom := errors.New("nack")
	c := &chip{err: boom}
	d := newDev(t, c, nil)

	_, err := d.ReadDate()
	assert.True(t, errors.Is(err, boom))
	assert.Contains(t, err.Error(), "0x00")

	err = d.WriteDate(Date{Year: 2024, Month: 1, Day: 1})
	assert.True(t, errors.Is(err, boom))

	_, err = d.ReadTemperature()
	assert.Contains(t, err.Error(), "0x11")
}

var _ i2c.Bus = &chip{}
