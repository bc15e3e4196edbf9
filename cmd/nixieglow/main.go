package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"github.com/coreman2200/funtimes-nixieglow/internal/config"
	"github.com/coreman2200/funtimes-nixieglow/loop"
	"github.com/coreman2200/funtimes-nixieglow/model"
	"github.com/coreman2200/funtimes-nixieglow/render"
	"github.com/coreman2200/funtimes-nixieglow/rtc/ds3231"
	"github.com/coreman2200/funtimes-nixieglow/strip"
)

var (
	configPath = "nixieglow.yaml"
	driver     = config.DriverConsole
	pin        = "GPIO18"
	leds       = 8
	verbose    = false
	setClock   = false
)

func init() {
	pflag.StringVarP(&configPath, "config", "c", configPath, "path to the YAML config")
	pflag.StringVarP(&driver, "driver", "d", driver, "output: gpio | spi | console")
	pflag.StringVarP(&pin, "pin", "p", pin, "data pin for the gpio driver")
	pflag.IntVarP(&leds, "leds", "n", leds, "number of LEDs on the strip")
	pflag.BoolVar(&setClock, "set-clock", setClock, "write the system time to the RTC at startup")
	pflag.BoolVarP(&verbose, "verbose", "v", verbose, "verbose logging")
}

// temperatureEvery is how often the RTC die temperature is logged.
const temperatureEvery = time.Minute

func main() {
	pflag.Parse()

	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen})

	cfg := loadConfig()
	zerolog.SetGlobalLevel(cfg.Level())
	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Str("path", configPath).Msg("bad configuration")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("nixieglow failed")
	}
}

// loadConfig reads the config file, then applies the flags set on the
// command line over it.
func loadConfig() *config.Config {
	cfg, err := config.Load(configPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) || pflag.CommandLine.Changed("config") {
			log.Warn().Err(err).Str("path", configPath).Msg("config load failed; proceeding with flags")
		}
		cfg = config.Default()
		cfg.Driver, cfg.Pin, cfg.LEDs = driver, pin, leds
	}
	if pflag.CommandLine.Changed("driver") {
		cfg.Driver = driver
	}
	if pflag.CommandLine.Changed("pin") {
		cfg.Pin = pin
	}
	if pflag.CommandLine.Changed("leds") {
		cfg.LEDs = leds
	}
	return cfg
}

func run(ctx context.Context, cfg *config.Config) error {
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("failed to initialize host drivers: %w", err)
	}

	r, err := openRenderer(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := r.Halt(); err != nil {
			log.Error().Err(err).Stringer("renderer", r).Msg("failed to blank the strip")
		}
	}()
	log.Info().Stringer("renderer", r).Int("leds", cfg.LEDs).Msg("output ready")

	clock, closeClock, err := openClock(cfg)
	if err != nil {
		return err
	}
	defer closeClock()

	s := model.NewStrip(cfg.LEDs)
	power := cfg.PowerLimits()
	looper := loop.Looper{
		FPS: cfg.FPS,
		Frame: func(_ context.Context, elapsed time.Duration) error {
			h := elapsed.Seconds() / 60
			if clock != nil {
				t, err := clock.ReadTime()
				if err != nil {
					return err
				}
				h = float64(t.Second) / 60
			}
			for i := range s {
				s[i] = model.Wheel(h + float64(i)/float64(len(s)))
			}
			power.Apply(s)
			return r.Show(s)
		},
		Log: log.Logger.With().Str("component", "loop").Logger(),
	}

	errg, ctx := errgroup.WithContext(ctx)
	errg.Go(func() error {
		return looper.Run(ctx)
	})
	if clock != nil {
		errg.Go(func() error {
			return logTemperature(ctx, clock)
		})
	}
	return errg.Wait()
}

func openRenderer(cfg *config.Config) (render.Renderer, error) {
	switch cfg.Driver {
	case config.DriverGPIO:
		p := gpioreg.ByName(cfg.Pin)
		if p == nil {
			return nil, fmt.Errorf("failed to find pin %q", cfg.Pin)
		}
		t, err := cfg.Timing()
		if err != nil {
			return nil, err
		}
		e, err := strip.NewPinEmitter(p, t, strip.HostClock())
		if err != nil {
			return nil, err
		}
		d, err := strip.New(e, &strip.Opts{Reset: cfg.Reset()})
		if err != nil {
			return nil, err
		}
		return render.NewTransmitter(d), nil

	case config.DriverSPI:
		port, err := spireg.Open(cfg.SPI.Port)
		if err != nil {
			log.Warn().Err(err).
				Str("driver", "spi").
				Str("port", cfg.SPI.Port).
				Msg("SPI init failed; falling back to console")
			return render.NewConsole(cfg.LEDs), nil
		}
		return render.NewNRZ(port, cfg.LEDs)

	default:
		return render.NewConsole(cfg.LEDs), nil
	}
}

// openClock opens the RTC when one is configured. The returned clock is nil
// otherwise.
func openClock(cfg *config.Config) (*ds3231.Dev, func(), error) {
	if cfg.RTC.Bus == "" {
		return nil, func() {}, nil
	}
	sqw, err := cfg.SquareWave()
	if err != nil {
		return nil, nil, err
	}
	bus, err := i2creg.Open(cfg.RTC.Bus)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open I²C bus %q: %w", cfg.RTC.Bus, err)
	}
	logger := log.Logger.With().Str("component", "rtc").Logger()
	d, err := ds3231.NewI2C(bus, &ds3231.Opts{
		SquareWave:   sqw,
		ForceConvert: cfg.RTC.ForceConvert,
		Logger:       &logger,
	})
	if err != nil {
		bus.Close()
		return nil, nil, err
	}
	// Init clears the oscillator stop flag, so check it first.
	if lost, err := d.LostPower(); err != nil {
		bus.Close()
		return nil, nil, err
	} else if lost {
		logger.Warn().Msg("oscillator stopped; the time is not valid until set, see --set-clock")
	}
	if setClock {
		if err := d.Set(time.Now()); err != nil {
			bus.Close()
			return nil, nil, err
		}
	}
	if err := d.Init(); err != nil {
		bus.Close()
		return nil, nil, err
	}
	now, err := d.Now()
	if err != nil {
		bus.Close()
		return nil, nil, err
	}
	logger.Info().Time("now", now).Stringer("sqw", sqw).Msg("clock ready")
	return d, func() { bus.Close() }, nil
}

func logTemperature(ctx context.Context, clock *ds3231.Dev) error {
	ticker := time.NewTicker(temperatureEvery)
	defer ticker.Stop()
	for {
		t, err := clock.Temperature()
		if err != nil {
			log.Warn().Err(err).Msg("failed to read temperature")
		} else {
			log.Info().Stringer("temperature", t).Msg("rtc")
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
