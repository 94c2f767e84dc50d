package main

import (
	"context"
	"strconv"

	"github.com/urfave/cli/v2"
	"periph.io/x/conn/v3/physic"

	"github.com/mklimuk/dbmeter"
	"github.com/mklimuk/dbmeter/adapter"
	"github.com/mklimuk/dbmeter/cmd/dbmeter/console"
	"github.com/mklimuk/dbmeter/i2c"
	"github.com/mklimuk/dbmeter/sound"
)

var busFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "adapter",
		Aliases: []string{"a"},
		Usage:   "bus adapter: mcp2221, generic or nanopi",
		Value:   "mcp2221",
	},
	&cli.StringFlag{
		Name:    "device",
		Aliases: []string{"d"},
		Usage:   "i2c device path for the generic adapter",
		Value:   "/dev/i2c-1",
	},
	&cli.IntFlag{
		Name:  "bus",
		Usage: "i2c bus number for the nanopi adapter",
		Value: 0,
	},
	&cli.IntFlag{
		Name:    "frequency",
		Aliases: []string{"f"},
		Usage:   "bus clock frequency in Hz",
		Value:   100_000,
	},
	&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}},
}

var soundCmd = cli.Command{
	Name: "sound",
	Subcommands: []*cli.Command{
		&soundReadCmd,
		&soundVersionCmd,
		&soundIDCmd,
		&soundResetCmd,
		&soundTavgCmd,
		&soundSelftestCmd,
		&soundMonitorCmd,
	},
}

// openBus builds the transport selected by the adapter flag and applies
// the requested bus clock frequency. The returned cleanup function is
// safe to call on every path.
func openBus(c *cli.Context) (dbmeter.I2CBus, func(), error) {
	noop := func() {}
	switch c.String("adapter") {
	case "generic":
		bus, err := i2c.NewGenericBus(c.String("device"))
		if err != nil {
			return nil, noop, err
		}
		err = bus.SetSpeed(physic.Frequency(c.Int("frequency")) * physic.Hertz)
		if err != nil {
			_ = bus.Close()
			return nil, noop, err
		}
		return bus, func() {
			err := bus.Close()
			if err != nil {
				console.Errorf("error closing bus: %s", console.Red(err))
			}
		}, nil
	case "nanopi":
		bus, err := adapter.NewNanoPiBus(c.Int("bus"))
		if err != nil {
			return nil, noop, err
		}
		return bus, func() {
			err := bus.Release(context.Background())
			if err != nil {
				console.Errorf("error releasing bus: %s", console.Red(err))
			}
		}, nil
	default:
		ad := adapter.NewMCP2221()
		err := ad.Init()
		if err != nil {
			return nil, noop, err
		}
		err = ad.SetSpeed(uint32(c.Int("frequency")))
		if err != nil {
			return nil, noop, err
		}
		return ad, noop, nil
	}
}

func newMeter(c *cli.Context) (*sound.DBM, context.Context, func(), error) {
	ctx := console.SetVerbose(context.Background(), c.Bool("verbose"))
	bus, cleanup, err := openBus(c)
	if err != nil {
		return nil, ctx, cleanup, err
	}
	meter := sound.NewDBM(bus)
	err = meter.Begin(ctx)
	if err != nil {
		return nil, ctx, cleanup, err
	}
	return meter, ctx, cleanup, nil
}

var soundReadCmd = cli.Command{
	Name:    "read",
	Aliases: []string{"rd"},
	Flags: append([]cli.Flag{
		&cli.BoolFlag{Name: "all", Usage: "also read the min/max latch"},
	}, busFlags...),
	Action: func(c *cli.Context) error {
		meter, ctx, cleanup, err := newMeter(c)
		if err != nil {
			return console.Exit(1, "adapter initialization error: %s", console.Red(err))
		}
		defer cleanup()
		db, err := meter.ReadDecibel(ctx)
		if err != nil {
			return console.Exit(1, "error reading sound level: %s", console.Red(err))
		}
		console.PInfof(console.PictoSpeakerHigh, "%s dB", console.White(db))
		if !c.Bool("all") {
			return nil
		}
		min, err := meter.ReadMinDecibel(ctx)
		if err != nil {
			return console.Exit(1, "error reading min level: %s", console.Red(err))
		}
		max, err := meter.ReadMaxDecibel(ctx)
		if err != nil {
			return console.Exit(1, "error reading max level: %s", console.Red(err))
		}
		console.PInfof(console.PictoSpeakerLow, "min %s dB / max %s dB", console.White(min), console.White(max))
		return nil
	},
}

var soundVersionCmd = cli.Command{
	Name:  "version",
	Flags: busFlags,
	Action: func(c *cli.Context) error {
		meter, ctx, cleanup, err := newMeter(c)
		if err != nil {
			return console.Exit(1, "adapter initialization error: %s", console.Red(err))
		}
		defer cleanup()
		ver, err := meter.GetVersion(ctx)
		if err != nil {
			return console.Exit(1, "error reading version: %s", console.Red(err))
		}
		console.Printf("firmware version: %d\n", ver)
		return nil
	},
}

var soundIDCmd = cli.Command{
	Name:  "id",
	Flags: busFlags,
	Action: func(c *cli.Context) error {
		meter, ctx, cleanup, err := newMeter(c)
		if err != nil {
			return console.Exit(1, "adapter initialization error: %s", console.Red(err))
		}
		defer cleanup()
		id, err := meter.GetID(ctx)
		if err != nil {
			return console.Exit(1, "error reading device ID: %s", console.Red(err))
		}
		console.Printf("device ID: %02X%02X%02X%02X\n", id[0], id[1], id[2], id[3])
		return nil
	},
}

var soundResetCmd = cli.Command{
	Name:  "reset",
	Usage: "clear the min/max latch",
	Flags: append([]cli.Flag{
		&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "skip confirmation"},
	}, busFlags...),
	Action: func(c *cli.Context) error {
		if !c.Bool("yes") {
			answer, err := console.YesOrNo("clear the min/max latch?")
			if err != nil {
				return console.Exit(1, "prompt error: %s", console.Red(err))
			}
			if answer != console.Yes {
				console.Print("aborted")
				return nil
			}
		}
		meter, ctx, cleanup, err := newMeter(c)
		if err != nil {
			return console.Exit(1, "adapter initialization error: %s", console.Red(err))
		}
		defer cleanup()
		err = meter.ResetMinMax(ctx)
		if err != nil {
			return console.Exit(1, "error clearing min/max latch: %s", console.Red(err))
		}
		console.Print("min/max latch cleared")
		return nil
	},
}

var soundTavgCmd = cli.Command{
	Name:  "tavg",
	Usage: "averaging interval configuration",
	Subcommands: []*cli.Command{
		{
			Name:      "set",
			ArgsUsage: "<interval-ms>",
			Flags:     busFlags,
			Action: func(c *cli.Context) error {
				if c.NArg() < 1 {
					return console.Exit(1, "usage: dbmeter sound tavg set <interval-ms>")
				}
				interval, err := strconv.ParseUint(c.Args().Get(0), 10, 16)
				if err != nil {
					return console.Exit(1, "invalid interval: %s", console.Red(c.Args().Get(0)))
				}
				meter, ctx, cleanup, err := newMeter(c)
				if err != nil {
					return console.Exit(1, "adapter initialization error: %s", console.Red(err))
				}
				defer cleanup()
				err = meter.SetAveragingInterval(ctx, uint16(interval))
				if err != nil {
					return console.Exit(1, "error setting averaging interval: %s", console.Red(err))
				}
				console.PInfof(console.PictoStopwatch, "averaging interval set to %s ms", console.White(interval))
				return nil
			},
		},
		{
			Name:  "get",
			Flags: busFlags,
			Action: func(c *cli.Context) error {
				meter, ctx, cleanup, err := newMeter(c)
				if err != nil {
					return console.Exit(1, "adapter initialization error: %s", console.Red(err))
				}
				defer cleanup()
				interval, err := meter.GetAveragingInterval(ctx)
				if err != nil {
					return console.Exit(1, "error reading averaging interval: %s", console.Red(err))
				}
				console.PInfof(console.PictoStopwatch, "averaging interval: %s ms", console.White(interval))
				return nil
			},
		},
	},
}

var soundSelftestCmd = cli.Command{
	Name:  "selftest",
	Usage: "verify communication through the scratch register",
	Flags: busFlags,
	Action: func(c *cli.Context) error {
		meter, ctx, cleanup, err := newMeter(c)
		if err != nil {
			return console.Exit(1, "adapter initialization error: %s", console.Red(err))
		}
		defer cleanup()
		const pattern = 0xA5
		err = meter.WriteScratch(ctx, pattern)
		if err != nil {
			return console.Exit(1, "scratch write failed: %s", console.Red(err))
		}
		got, err := meter.ReadScratch(ctx)
		if err != nil {
			return console.Exit(1, "scratch read failed: %s", console.Red(err))
		}
		if got != pattern {
			return console.Exit(1, "scratch mismatch: wrote %#x, read %#x", pattern, got)
		}
		console.Printf("%s device responding\n", console.Green("OK"))
		return nil
	},
}
