package sound

import (
	"context"
)

// LevelBehaviorFunc defines the function signature for sound level behavior.
// It returns a level in dB SPL or an error.
type LevelBehaviorFunc func(ctx context.Context) (byte, error)

// MockSoundLevelSensor is a mock implementation of a sound level sensor
// that uses behavior functions to produce results without requiring hardware.
// This can be used to mock the DBM decibel meter module.
type MockSoundLevelSensor struct {
	levelBehavior LevelBehaviorFunc
	minBehavior   LevelBehaviorFunc
	maxBehavior   LevelBehaviorFunc
}

// NewMockSoundLevelSensor creates a new mock sound level sensor with the given
// behavior functions. The level behavior is called by ReadDecibel, the min and
// max behaviors by ReadMinDecibel and ReadMaxDecibel.
//
// Example usage:
//
//	sensor := NewMockSoundLevelSensor(
//		func(ctx context.Context) (byte, error) { return 60, nil },
//		func(ctx context.Context) (byte, error) { return 38, nil },
//		func(ctx context.Context) (byte, error) { return 92, nil },
//	)
func NewMockSoundLevelSensor(level, min, max LevelBehaviorFunc) *MockSoundLevelSensor {
	return &MockSoundLevelSensor{
		levelBehavior: level,
		minBehavior:   min,
		maxBehavior:   max,
	}
}

// ReadDecibel returns the current level by calling the level behavior function.
func (m *MockSoundLevelSensor) ReadDecibel(ctx context.Context) (byte, error) {
	return m.levelBehavior(ctx)
}

// ReadMinDecibel returns the latched minimum by calling the min behavior function.
func (m *MockSoundLevelSensor) ReadMinDecibel(ctx context.Context) (byte, error) {
	return m.minBehavior(ctx)
}

// ReadMaxDecibel returns the latched maximum by calling the max behavior function.
func (m *MockSoundLevelSensor) ReadMaxDecibel(ctx context.Context) (byte, error) {
	return m.maxBehavior(ctx)
}

// NewMockDBM creates a new mock DBM sensor (alias for NewMockSoundLevelSensor).
func NewMockDBM(level, min, max LevelBehaviorFunc) *MockSoundLevelSensor {
	return NewMockSoundLevelSensor(level, min, max)
}
