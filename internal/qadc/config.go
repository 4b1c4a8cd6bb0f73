package qadc

import (
	"errors"
	"fmt"

	"github.com/markusressel/qadc2go/internal/lut"
)

const (
	DefaultResolution  = 1024
	DefaultFilterDepth = 32
	DefaultHysteresis  = 1
)

var (
	ErrConfig            = errors.New("invalid QADC configuration")
	ErrIntervalTooShort  = errors.New("conversion interval too short for the RC constants")
	ErrTransitionTimeout = errors.New("pin did not cross the threshold in time")
	ErrChannel           = errors.New("channel index out of range")
	ErrNoDirection       = errors.New("rheostat channels have no direction")
)

// Config describes the external components of a QADC instance and how it
// is clocked.
type Config struct {
	Circuit lut.Circuit
	// TimerHz is the frequency of the tick counter, 100MHz if 0.
	TimerHz uint32
	// ConvertIntervalTicks is the time budget of a single channel in the
	// continuous task. 0 restricts the instance to single shot reads.
	ConvertIntervalTicks uint32
	// AutoScale stretches the end points whenever a conversion exceeds the
	// expected range. Ignored by single shot reads.
	AutoScale bool
	// PortTimeOffsetTicks is subtracted from every measurement to remove
	// the fixed latency between releasing the pin and starting the timer.
	PortTimeOffsetTicks uint32
}

func (c Config) timerHz() uint32 {
	if c.TimerHz == 0 {
		return lut.DefaultTimerHz
	}
	return c.TimerHz
}

type settings struct {
	resolution  int
	filterDepth int
	hysteresis  uint16
	buffer      []uint16
}

type Option func(s *settings)

// WithResolution sets the LUT size of a potentiometer or the number of
// steps of a rheostat. Results range from 0 to resolution-1.
func WithResolution(resolution int) Option {
	return func(s *settings) {
		s.resolution = resolution
	}
}

// WithFilterDepth sets the length of the moving average of every channel.
func WithFilterDepth(depth int) Option {
	return func(s *settings) {
		s.filterDepth = depth
	}
}

// WithHysteresis sets the dead zone around the last published value.
func WithHysteresis(hysteresis uint16) Option {
	return func(s *settings) {
		s.hysteresis = hysteresis
	}
}

// WithStateBuffer makes the instance use a caller owned buffer for all of
// its state. The length has to match PotStateSize or RheoStateSize.
func WithStateBuffer(buffer []uint16) Option {
	return func(s *settings) {
		s.buffer = buffer
	}
}

func newSettings(options []Option) settings {
	s := settings{
		resolution:  DefaultResolution,
		filterDepth: DefaultFilterDepth,
		hysteresis:  DefaultHysteresis,
	}
	for _, option := range options {
		option(&s)
	}
	return s
}

func (s settings) validate(numChannels int) error {
	if numChannels <= 0 {
		return fmt.Errorf("%w: at least one channel is required", ErrConfig)
	}
	if s.resolution < lut.MinResolution || s.resolution > lut.MaxTicks {
		return fmt.Errorf("%w: resolution must be within [%d, %d]", ErrConfig, lut.MinResolution, lut.MaxTicks)
	}
	if s.filterDepth <= 0 || s.filterDepth > lut.MaxTicks {
		return fmt.Errorf("%w: filter depth must be within [1, %d]", ErrConfig, lut.MaxTicks)
	}
	return nil
}
