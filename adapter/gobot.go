package adapter

import (
	"context"
	"fmt"

	"gobot.io/x/gobot/v2/drivers/i2c"
	"gobot.io/x/gobot/v2/platforms/friendlyelec/nanopi"

	"github.com/mklimuk/dbmeter"
)

var _ dbmeter.I2CBus = &NanoPiBus{}

// i2cDevice is the slice of gobot's generic I2C driver the bus uses.
type i2cDevice interface {
	Write(data []byte) error
	Read(data []byte) error
	Halt() error
}

var _ i2cDevice = (*i2c.GenericDriver)(nil)

// NanoPiBus adapts the gobot NanoPi NEO I2C stack to dbmeter.I2CBus.
// A generic gobot driver is started lazily per slave address and reused
// for subsequent transactions.
type NanoPiBus struct {
	drivers  map[byte]i2cDevice
	open     func(address byte) (i2cDevice, error)
	finalize func() error
}

func NewNanoPiBus(bus int) (*NanoPiBus, error) {
	npi := nanopi.NewNeoAdaptor()
	err := npi.I2cBusAdaptor.Connect()
	if err != nil {
		return nil, fmt.Errorf("adaptor connect error: %w", err)
	}
	return &NanoPiBus{
		drivers: make(map[byte]i2cDevice),
		open: func(address byte) (i2cDevice, error) {
			d := i2c.NewGenericDriver(npi, "dbmeter", int(address), func(c i2c.Config) {
				c.SetBus(bus)
			})
			err := d.Start()
			if err != nil {
				return nil, fmt.Errorf("driver start error: %w", err)
			}
			return d, nil
		},
		finalize: npi.I2cBusAdaptor.Finalize,
	}, nil
}

func (b *NanoPiBus) driver(address byte) (i2cDevice, error) {
	if d, ok := b.drivers[address]; ok {
		return d, nil
	}
	d, err := b.open(address)
	if err != nil {
		return nil, err
	}
	b.drivers[address] = d
	return d, nil
}

func (b *NanoPiBus) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	d, err := b.driver(address)
	if err != nil {
		return err
	}
	err = d.Write(buffer)
	if err != nil {
		return fmt.Errorf("could not write to i2c bus %x: %w", address, err)
	}
	return nil
}

func (b *NanoPiBus) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	d, err := b.driver(address)
	if err != nil {
		return err
	}
	err = d.Read(buffer)
	if err != nil {
		return fmt.Errorf("could not read from i2c bus %x: %w", address, err)
	}
	return nil
}

func (b *NanoPiBus) Release(ctx context.Context) error {
	for addr, d := range b.drivers {
		err := d.Halt()
		if err != nil {
			return fmt.Errorf("could not halt driver for %x: %w", addr, err)
		}
		delete(b.drivers, addr)
	}
	err := b.finalize()
	if err != nil {
		return fmt.Errorf("adaptor finalize error: %w", err)
	}
	return nil
}
