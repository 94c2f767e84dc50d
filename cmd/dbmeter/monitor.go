package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/mklimuk/dbmeter/cmd/dbmeter/console"
)

type monitorConfig struct {
	Adapter      string        `yaml:"adapter"`
	Device       string        `yaml:"device"`
	Bus          int           `yaml:"bus"`
	Frequency    int           `yaml:"frequency"`
	Interval     time.Duration `yaml:"interval"`
	AveragingMs  uint16        `yaml:"averaging_ms"`
	ResetOnStart bool          `yaml:"reset_on_start"`
}

func loadMonitorConfig(path string) (monitorConfig, error) {
	config := monitorConfig{
		Adapter:   "mcp2221",
		Device:    "/dev/i2c-1",
		Frequency: 100_000,
		Interval:  time.Second,
	}
	if path == "" {
		return config, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return config, fmt.Errorf("could not read config file: %w", err)
	}
	err = yaml.Unmarshal(raw, &config)
	if err != nil {
		return config, fmt.Errorf("could not parse config file: %w", err)
	}
	return config, nil
}

var soundMonitorCmd = cli.Command{
	Name:  "monitor",
	Usage: "poll the meter and print readings until interrupted",
	Flags: append([]cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "YAML config file with monitor settings",
		},
		&cli.DurationFlag{
			Name:    "interval",
			Aliases: []string{"i"},
			Usage:   "poll interval (overrides config)",
		},
	}, busFlags...),
	Action: func(c *cli.Context) error {
		config, err := loadMonitorConfig(c.String("config"))
		if err != nil {
			return console.Exit(1, "config error: %s", console.Red(err))
		}
		if c.IsSet("adapter") {
			config.Adapter = c.String("adapter")
		}
		if c.IsSet("device") {
			config.Device = c.String("device")
		}
		if c.IsSet("interval") {
			config.Interval = c.Duration("interval")
		}
		if config.Interval <= 0 {
			config.Interval = time.Second
		}
		// reuse the flag plumbing of the other sound commands
		_ = c.Set("adapter", config.Adapter)
		_ = c.Set("device", config.Device)
		if !c.IsSet("frequency") && config.Frequency > 0 {
			_ = c.Set("frequency", strconv.Itoa(config.Frequency))
		}
		if !c.IsSet("bus") {
			_ = c.Set("bus", strconv.Itoa(config.Bus))
		}

		meter, rctx, cleanup, err := newMeter(c)
		if err != nil {
			return console.Exit(1, "adapter initialization error: %s", console.Red(err))
		}
		defer cleanup()

		ctx, stop := signal.NotifyContext(rctx, os.Interrupt, syscall.SIGTERM)
		defer stop()

		if config.AveragingMs > 0 {
			err = meter.SetAveragingInterval(ctx, config.AveragingMs)
			if err != nil {
				return console.Exit(1, "error setting averaging interval: %s", console.Red(err))
			}
			slog.Info("averaging interval configured", "ms", config.AveragingMs)
		}
		if config.ResetOnStart {
			err = meter.ResetMinMax(ctx)
			if err != nil {
				return console.Exit(1, "error clearing min/max latch: %s", console.Red(err))
			}
		}

		ticker := time.NewTicker(config.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				console.Print("monitor stopped")
				return nil
			case <-ticker.C:
			}
			db, err := meter.ReadDecibel(ctx)
			if err != nil {
				if ctx.Err() != nil {
					console.Print("monitor stopped")
					return nil
				}
				slog.Error("read error", "error", err)
				continue
			}
			console.PInfof(picto(db), "%s %s dB", time.Now().Format(time.TimeOnly), console.White(db))
		}
	},
}

func picto(db byte) string {
	switch {
	case db >= 80:
		return console.PictoSpeakerHigh
	case db >= 40:
		return console.PictoSpeakerLow
	default:
		return console.PictoMute
	}
}
