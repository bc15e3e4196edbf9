package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
	"periph.io/x/conn/v3/physic"

	"github.com/coreman2200/funtimes-nixieglow/model"
	"github.com/coreman2200/funtimes-nixieglow/rtc/ds3231"
	"github.com/coreman2200/funtimes-nixieglow/strip"
)

// Output drivers.
const (
	DriverGPIO    = "gpio"
	DriverSPI     = "spi"
	DriverConsole = "console"
)

// ErrInvalid is wrapped by every Validate error.
var ErrInvalid = errors.New("config: invalid")

type PowerCfg struct {
	LimitAmps float64 `yaml:"limit_amps"` // 0 disables the budget
	WhiteCap  float64 `yaml:"white_cap"`
	ChannelmA float64 `yaml:"channel_ma"`
}

// SPI selects the port of the spi driver. Its clock is fixed by nrzled.
type SPI struct {
	Port string `yaml:"port"` // e.g. /dev/spidev0.0, empty for the first port
}

type RTC struct {
	Bus          string `yaml:"bus"`         // empty disables the clock
	SquareWave   string `yaml:"square_wave"` // 1Hz | 1.024kHz | 4.096kHz | 8.192kHz | Off
	ForceConvert bool   `yaml:"force_convert"`
}

type Config struct {
	Driver   string `yaml:"driver"` // "gpio" | "spi" | "console"
	Pin      string `yaml:"pin"`
	LEDs     int    `yaml:"leds"`
	SpeedHz  int    `yaml:"speed_hz"`
	ResetUs  int    `yaml:"reset_us"`
	FPS      int    `yaml:"fps"`
	LogLevel string `yaml:"log_level"`

	Brightness float64  `yaml:"brightness"`
	Power      PowerCfg `yaml:"power"`
	SPI        SPI      `yaml:"spi,omitempty"`
	RTC        RTC      `yaml:"rtc,omitempty"`
}

// Default returns the configuration used when no file is found.
func Default() *Config {
	return &Config{
		Driver:     DriverConsole,
		Pin:        "GPIO18",
		LEDs:       8,
		SpeedHz:    int(strip.DefaultSpeed / physic.Hertz),
		ResetUs:    int(strip.DefaultReset / time.Microsecond),
		FPS:        30,
		LogLevel:   "info",
		Brightness: 1,
		Power:      PowerCfg{ChannelmA: model.DefaultChannelmA},
		RTC:        RTC{SquareWave: ds3231.SquareWave1Hz.String()},
	}
}

// Load reads path over Default, so missing keys keep their default.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c := Default()
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return c, nil
}

func Save(path string, c *Config) error {
	b, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0644)
}

// Validate checks every field the command depends on.
func (c *Config) Validate() error {
	switch c.Driver {
	case DriverGPIO:
		if c.Pin == "" {
			return fmt.Errorf("%w: driver %q needs a pin", ErrInvalid, c.Driver)
		}
		if _, err := c.Timing(); err != nil {
			return err
		}
		if c.Reset() < strip.DefaultReset {
			return fmt.Errorf("%w: reset_us %d below %s", ErrInvalid, c.ResetUs, strip.DefaultReset)
		}
	case DriverSPI, DriverConsole:
	default:
		return fmt.Errorf("%w: unknown driver %q", ErrInvalid, c.Driver)
	}
	if c.LEDs <= 0 {
		return fmt.Errorf("%w: leds %d", ErrInvalid, c.LEDs)
	}
	if c.FPS < 0 {
		return fmt.Errorf("%w: fps %d", ErrInvalid, c.FPS)
	}
	if c.Brightness < 0 || c.Brightness > 1 {
		return fmt.Errorf("%w: brightness %g not in [0, 1]", ErrInvalid, c.Brightness)
	}
	if c.Power.LimitAmps < 0 || c.Power.WhiteCap < 0 || c.Power.ChannelmA < 0 {
		return fmt.Errorf("%w: power %+v", ErrInvalid, c.Power)
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: log_level: %v", ErrInvalid, err)
	}
	if _, err := c.SquareWave(); err != nil {
		return err
	}
	return nil
}

// PowerLimits returns the frame dimming settings.
func (c *Config) PowerLimits() model.Power {
	return model.Power{
		Brightness: c.Brightness,
		WhiteCap:   c.Power.WhiteCap,
		ChannelmA:  c.Power.ChannelmA,
		BudgetmA:   c.Power.LimitAmps * 1000,
	}
}

// Timing returns the bit timing for speed_hz.
func (c *Config) Timing() (strip.Timing, error) {
	speed := strip.DefaultSpeed
	if c.SpeedHz != 0 {
		speed = physic.Frequency(c.SpeedHz) * physic.Hertz
	}
	t := strip.NewTiming(speed)
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("%w: speed_hz %d: %v", ErrInvalid, c.SpeedHz, err)
	}
	return t, nil
}

// Reset returns the latch period, strip.DefaultReset when unset.
func (c *Config) Reset() time.Duration {
	if c.ResetUs == 0 {
		return strip.DefaultReset
	}
	return time.Duration(c.ResetUs) * time.Microsecond
}

// Level returns the parsed log level, info when invalid.
func (c *Config) Level() zerolog.Level {
	l, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil || c.LogLevel == "" {
		return zerolog.InfoLevel
	}
	return l
}

// SquareWave parses rtc.square_wave; empty selects 1Hz.
func (c *Config) SquareWave() (ds3231.SquareWave, error) {
	if c.RTC.SquareWave == "" {
		return ds3231.SquareWave1Hz, nil
	}
	for _, s := range []ds3231.SquareWave{
		ds3231.SquareWave1Hz,
		ds3231.SquareWave1024Hz,
		ds3231.SquareWave4096Hz,
		ds3231.SquareWave8192Hz,
		ds3231.SquareWaveOff,
	} {
		if s.String() == c.RTC.SquareWave {
			return s, nil
		}
	}
	return 0, fmt.Errorf("%w: rtc.square_wave %q", ErrInvalid, c.RTC.SquareWave)
}
