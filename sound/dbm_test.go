package sound

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// fakeMeterBus emulates the module's register file on the far side of
// the bus: a one-byte write selects a register, a two-byte write stores
// a value, a read returns the selected register. Every transaction is
// appended to the log so tests can assert exact bus sequences.
type fakeMeterBus struct {
	regs     map[byte]byte
	selected byte
	log      []string
}

func newFakeMeterBus() *fakeMeterBus {
	return &fakeMeterBus{regs: make(map[byte]byte)}
}

func (f *fakeMeterBus) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	if address != dbmAddress {
		return fmt.Errorf("unexpected address %#02x", address)
	}
	switch len(buffer) {
	case 1:
		f.selected = buffer[0]
		f.log = append(f.log, fmt.Sprintf("select %#02x", buffer[0]))
	case 2:
		f.regs[buffer[0]] = buffer[1]
		f.log = append(f.log, fmt.Sprintf("write %#02x=%#02x", buffer[0], buffer[1]))
	default:
		return fmt.Errorf("unexpected write length %d", len(buffer))
	}
	return nil
}

func (f *fakeMeterBus) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	if address != dbmAddress {
		return fmt.Errorf("unexpected address %#02x", address)
	}
	if len(buffer) != 1 {
		return fmt.Errorf("unexpected read length %d", len(buffer))
	}
	buffer[0] = f.regs[f.selected]
	f.log = append(f.log, fmt.Sprintf("read %#02x", f.selected))
	return nil
}

func (f *fakeMeterBus) Release(ctx context.Context) error {
	return nil
}

// MockI2CBus is a mock implementation of dbmeter.I2CBus using testify/mock.
type MockI2CBus struct {
	mock.Mock
}

func (m *MockI2CBus) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	args := m.Called(ctx, address, buffer)
	return args.Error(0)
}

func (m *MockI2CBus) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	args := m.Called(ctx, address, buffer)
	if args.Get(0) != nil {
		if data, ok := args.Get(0).([]byte); ok && len(data) <= len(buffer) {
			copy(buffer, data)
		}
	}
	return args.Error(1)
}

func (m *MockI2CBus) Release(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func TestDBM_RegisterRoundTrip(t *testing.T) {
	tests := []struct {
		reg   byte
		value byte
	}{
		{regScratch, 0x00},
		{regScratch, 0xA5},
		{regControl, 0xFF},
		{regThrMin, 0x23},
		{regThrMax, 0x7B},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%#02x=%#02x", test.reg, test.value), func(t *testing.T) {
			bus := newFakeMeterBus()
			meter := NewDBM(bus, WithRegisterDelay(time.Millisecond))
			ctx := context.Background()

			err := meter.writeRegister(ctx, test.reg, test.value)
			assert.NoError(t, err)
			got, err := meter.readRegister(ctx, test.reg)
			assert.NoError(t, err)
			assert.Equal(t, test.value, got)
			assert.Equal(t, []string{
				fmt.Sprintf("write %#02x=%#02x", test.reg, test.value),
				fmt.Sprintf("select %#02x", test.reg),
				fmt.Sprintf("read %#02x", test.reg),
			}, bus.log)
		})
	}
}

func TestDBM_ReadRegisterSequence(t *testing.T) {
	// every register read is an address-only write, a wait, then exactly
	// one single-byte read request
	for _, reg := range []byte{regVersion, regScratch, regControl, regDecibel, regMin, regMax} {
		t.Run(fmt.Sprintf("%#02x", reg), func(t *testing.T) {
			bus := newFakeMeterBus()
			meter := NewDBM(bus, WithRegisterDelay(time.Millisecond))

			_, err := meter.readRegister(context.Background(), reg)
			assert.NoError(t, err)
			assert.Equal(t, []string{
				fmt.Sprintf("select %#02x", reg),
				fmt.Sprintf("read %#02x", reg),
			}, bus.log)
		})
	}
}

func TestDBM_ReadRegisterDelay(t *testing.T) {
	delay := 30 * time.Millisecond
	bus := newFakeMeterBus()
	meter := NewDBM(bus, WithRegisterDelay(delay))

	start := time.Now()
	_, err := meter.readRegister(context.Background(), regVersion)
	elapsed := time.Since(start)

	assert.NoError(t, err)
	assert.GreaterOrEqual(t, elapsed, delay, "read should block for the register access latency")
}

func TestDBM_BeginAndReadDecibel(t *testing.T) {
	bus := newFakeMeterBus()
	bus.regs[regDecibel] = 0x3C
	meter := NewDBM(bus, WithRegisterDelay(time.Millisecond))
	ctx := context.Background()

	assert.NoError(t, meter.Begin(ctx))

	db, err := meter.ReadDecibel(ctx)
	assert.NoError(t, err)
	assert.Equal(t, byte(60), db)
}

func TestDBM_MinMaxReads(t *testing.T) {
	bus := newFakeMeterBus()
	bus.regs[regMin] = 38
	bus.regs[regMax] = 92
	meter := NewDBM(bus, WithRegisterDelay(time.Millisecond))
	ctx := context.Background()

	min, err := meter.ReadMinDecibel(ctx)
	assert.NoError(t, err)
	assert.Equal(t, byte(38), min)
	max, err := meter.ReadMaxDecibel(ctx)
	assert.NoError(t, err)
	assert.Equal(t, byte(92), max)
}

func TestDBM_ResetMinMax(t *testing.T) {
	bus := newFakeMeterBus()
	meter := NewDBM(bus, WithRegisterDelay(time.Millisecond))

	err := meter.ResetMinMax(context.Background())
	assert.NoError(t, err)
	// exactly one write, to the reset register, with only the min/max
	// clear bit set
	assert.Equal(t, []string{"write 0x09=0x02"}, bus.log)
}

func TestDBM_SetAveragingInterval(t *testing.T) {
	tests := []struct {
		interval uint16
		expected []string
	}{
		{500, []string{"write 0x07=0x01", "write 0x08=0xf4"}},
		{0, []string{"write 0x07=0x00", "write 0x08=0x00"}},
		{0xFFFF, []string{"write 0x07=0xff", "write 0x08=0xff"}},
		{1000, []string{"write 0x07=0x03", "write 0x08=0xe8"}},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%dms", test.interval), func(t *testing.T) {
			bus := newFakeMeterBus()
			meter := NewDBM(bus, WithRegisterDelay(time.Millisecond))

			err := meter.SetAveragingInterval(context.Background(), test.interval)
			assert.NoError(t, err)
			// exactly two writes, high byte first
			assert.Equal(t, test.expected, bus.log)
		})
	}
}

func TestDBM_GetAveragingInterval(t *testing.T) {
	bus := newFakeMeterBus()
	meter := NewDBM(bus, WithRegisterDelay(time.Millisecond))
	ctx := context.Background()

	assert.NoError(t, meter.SetAveragingInterval(ctx, 500))
	interval, err := meter.GetAveragingInterval(ctx)
	assert.NoError(t, err)
	assert.Equal(t, uint16(500), interval)
}

func TestDBM_GetID(t *testing.T) {
	bus := newFakeMeterBus()
	bus.regs[regID3] = 0xDE
	bus.regs[regID2] = 0xAD
	bus.regs[regID1] = 0xBE
	bus.regs[regID0] = 0xEF
	meter := NewDBM(bus, WithRegisterDelay(time.Millisecond))

	id, err := meter.GetID(context.Background())
	assert.NoError(t, err)
	// id[0] holds ID3: registers are read in descending order while the
	// output index ascends
	assert.Equal(t, [4]byte{0xDE, 0xAD, 0xBE, 0xEF}, id)
	assert.Equal(t, []string{
		"select 0x01", "read 0x01",
		"select 0x02", "read 0x02",
		"select 0x03", "read 0x03",
		"select 0x04", "read 0x04",
	}, bus.log)
}

func TestDBM_Thresholds(t *testing.T) {
	bus := newFakeMeterBus()
	meter := NewDBM(bus, WithRegisterDelay(time.Millisecond))
	ctx := context.Background()

	assert.NoError(t, meter.SetThresholds(ctx, 40, 85))
	min, max, err := meter.GetThresholds(ctx)
	assert.NoError(t, err)
	assert.Equal(t, byte(40), min)
	assert.Equal(t, byte(85), max)
}

func TestDBM_Scratch(t *testing.T) {
	bus := newFakeMeterBus()
	meter := NewDBM(bus, WithRegisterDelay(time.Millisecond))
	ctx := context.Background()

	assert.NoError(t, meter.WriteScratch(ctx, 0x5A))
	v, err := meter.ReadScratch(ctx)
	assert.NoError(t, err)
	assert.Equal(t, byte(0x5A), v)
}

func TestDBM_ErrorCases(t *testing.T) {
	tests := []struct {
		name          string
		setupMock     func(*MockI2CBus)
		testFunc      func(*DBM, context.Context) error
		expectedError string
	}{
		{
			name: "read register write error",
			setupMock: func(bus *MockI2CBus) {
				bus.On("WriteToAddr", mock.Anything, byte(dbmAddress), []byte{regDecibel}).
					Return(errors.New("i2c write failed")).Once()
			},
			testFunc: func(s *DBM, ctx context.Context) error {
				_, err := s.ReadDecibel(ctx)
				return err
			},
			expectedError: "dbm: write reg 0x0a failed: i2c write failed",
		},
		{
			name: "read register read error",
			setupMock: func(bus *MockI2CBus) {
				bus.On("WriteToAddr", mock.Anything, byte(dbmAddress), []byte{regVersion}).
					Return(nil).Once()
				bus.On("ReadFromAddr", mock.Anything, byte(dbmAddress), mock.Anything).
					Return(nil, errors.New("i2c read failed")).Once()
			},
			testFunc: func(s *DBM, ctx context.Context) error {
				_, err := s.GetVersion(ctx)
				return err
			},
			expectedError: "dbm: read reg 0x00 failed: i2c read failed",
		},
		{
			name: "write register error",
			setupMock: func(bus *MockI2CBus) {
				bus.On("WriteToAddr", mock.Anything, byte(dbmAddress), []byte{regReset, resetClearMinMax}).
					Return(errors.New("i2c write failed")).Once()
			},
			testFunc: func(s *DBM, ctx context.Context) error {
				return s.ResetMinMax(ctx)
			},
			expectedError: "dbm: write reg 0x09 failed: i2c write failed",
		},
		{
			name: "averaging interval high byte error",
			setupMock: func(bus *MockI2CBus) {
				bus.On("WriteToAddr", mock.Anything, byte(dbmAddress), []byte{regTavgHigh, 0x01}).
					Return(errors.New("i2c write failed")).Once()
			},
			testFunc: func(s *DBM, ctx context.Context) error {
				return s.SetAveragingInterval(ctx, 500)
			},
			expectedError: "dbm: write reg 0x07 failed: i2c write failed",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus := new(MockI2CBus)
			meter := NewDBM(bus, WithRegisterDelay(time.Millisecond))

			tt.setupMock(bus)

			err := tt.testFunc(meter, context.Background())
			assert.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectedError)
			bus.AssertExpectations(t)
		})
	}
}

func TestDBM_ContextCancelledDuringDelay(t *testing.T) {
	bus := new(MockI2CBus)
	meter := NewDBM(bus, WithRegisterDelay(time.Second))

	bus.On("WriteToAddr", mock.Anything, byte(dbmAddress), []byte{regDecibel}).
		Return(nil).Once()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	_, err := meter.ReadDecibel(ctx)
	elapsed := time.Since(start)

	assert.Error(t, err)
	assert.Equal(t, context.Canceled, err)
	assert.Less(t, elapsed, 500*time.Millisecond, "cancelled read should not sit out the full delay")
	// the single-byte read request is never issued
	bus.AssertNotCalled(t, "ReadFromAddr", mock.Anything, mock.Anything, mock.Anything)
	bus.AssertExpectations(t)
}

func TestDBM_GetIDStopsOnError(t *testing.T) {
	bus := new(MockI2CBus)
	meter := NewDBM(bus, WithRegisterDelay(time.Millisecond))

	bus.On("WriteToAddr", mock.Anything, byte(dbmAddress), []byte{regID3}).
		Return(errors.New("i2c write failed")).Once()

	_, err := meter.GetID(context.Background())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "dbm: write reg 0x01 failed")
	bus.AssertExpectations(t)
}
