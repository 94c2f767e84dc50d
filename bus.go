package dbmeter

import (
	"context"
	"fmt"
)

var ErrBusBusy = fmt.Errorf("I2C engine is busy (command not completed)")

// AddressableReader reads a buffer from a 7-bit bus address.
type AddressableReader interface {
	ReadFromAddr(ctx context.Context, address byte, buffer []byte) error
}

// AddressableWriter writes a buffer to a 7-bit bus address.
type AddressableWriter interface {
	WriteToAddr(ctx context.Context, address byte, buffer []byte) error
	Release(ctx context.Context) error
}

// I2CBus is the transport contract the decibel meter driver operates on.
// Implementations live in the i2c and adapter packages.
type I2CBus interface {
	AddressableReader
	AddressableWriter
}
