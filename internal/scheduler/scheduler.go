// Package scheduler runs the continuous conversion loop of a QADC instance.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/asecurityteam/rolling"
	"github.com/markusressel/qadc2go/internal/control"
	"github.com/markusressel/qadc2go/internal/hal"
	"github.com/markusressel/qadc2go/internal/lut"
	"github.com/markusressel/qadc2go/internal/qadc"
	"github.com/markusressel/qadc2go/internal/ui"
	"github.com/markusressel/qadc2go/internal/util"
)

const DefaultPeakWindowSize = 100

var (
	ErrDeadlineExceeded = errors.New("conversion deadline exceeded")
	ErrNoInterval       = errors.New("no conversion interval configured")
)

// Converter is a QADC instance that can be driven by a Scheduler.
// Both qadc.Pot and qadc.Rheo implement it.
type Converter interface {
	NumChannels() int
	Timer() hal.Timer
	ConvertIntervalTicks() uint32
	ChargeTicks() uint32

	Update(ch int, timeout uint32) (qadc.Reading, error)
	Result(ch int) uint16
	Direction(ch int) (lut.Direction, error)

	Calibrating() bool
	StartCalibration()
	FinishCalibration() qadc.Calibration
	Calibration() qadc.Calibration

	Close() error
}

// ChannelStats describes the recent activity of a single channel.
type ChannelStats struct {
	Result      uint16        `json:"result"`
	Ticks       uint32        `json:"ticks"`
	PeakTicks   uint32        `json:"peakTicks"`
	Direction   lut.Direction `json:"direction"`
	Conversions uint64        `json:"conversions"`
	Faults      uint64        `json:"faults"`
	LastError   string        `json:"lastError,omitempty"`
}

// Stats is a snapshot of a scheduler.
type Stats struct {
	Running     bool             `json:"running"`
	Calibrating bool             `json:"calibrating"`
	Cycles      uint64           `json:"cycles"`
	Channels    []ChannelStats   `json:"channels"`
	Calibration qadc.Calibration `json:"calibration"`
}

// Scheduler converts all channels of one instance round-robin, each within
// a fixed interval, and serves the control protocol in between. It is the
// only goroutine allowed to touch the instance while running.
type Scheduler struct {
	id        string
	converter Converter

	control       *control.Channel
	board         *qadc.Board
	onCalibration func(qadc.Calibration)

	running bool

	mu          sync.Mutex
	stats       Stats
	peakWindows []*rolling.PointPolicy
}

type Option func(s *Scheduler)

// WithControl makes the scheduler serve commands from ch.
func WithControl(ch *control.Channel) Option {
	return func(s *Scheduler) {
		s.control = ch
	}
}

// WithBoard makes the scheduler publish every result to board.
func WithBoard(board *qadc.Board) Option {
	return func(s *Scheduler) {
		s.board = board
	}
}

// WithCalibrationHandler registers a function called with the new
// calibration whenever a calibration session is finished.
func WithCalibrationHandler(handler func(qadc.Calibration)) Option {
	return func(s *Scheduler) {
		s.onCalibration = handler
	}
}

// WithPeakWindow sets the number of conversions the peak transition time
// of a channel is computed over.
func WithPeakWindow(size int) Option {
	return func(s *Scheduler) {
		s.peakWindows = make([]*rolling.PointPolicy, s.converter.NumChannels())
		for ch := range s.peakWindows {
			s.peakWindows[ch] = util.CreateRollingWindow(size)
		}
	}
}

func New(id string, converter Converter, options ...Option) *Scheduler {
	s := &Scheduler{
		id:        id,
		converter: converter,
		running:   true,
		stats: Stats{
			Running:  true,
			Channels: make([]ChannelStats, converter.NumChannels()),
		},
	}
	WithPeakWindow(DefaultPeakWindowSize)(s)
	for _, option := range options {
		option(s)
	}
	for ch := range s.stats.Channels {
		s.stats.Channels[ch].Result = converter.Result(ch)
		if s.board != nil {
			s.board.Store(ch, converter.Result(ch))
		}
	}
	s.stats.Calibration = converter.Calibration()
	return s
}

func (s *Scheduler) Id() string {
	return s.id
}

// Stats returns a copy of the current statistics.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := s.stats
	result.Channels = make([]ChannelStats, len(s.stats.Channels))
	copy(result.Channels, s.stats.Channels)
	result.Calibration.Channels = make([]qadc.ChannelCalibration, len(s.stats.Calibration.Channels))
	copy(result.Calibration.Channels, s.stats.Calibration.Channels)
	return result
}

// Run converts until EXIT is received or ctx is cancelled, whichever
// happens first. A conversion in progress is always completed and
// published. The pins of the instance are closed on return.
//
// A channel taking longer than the conversion interval ends the loop with
// ErrDeadlineExceeded, unless its read already failed with a transition
// timeout, which only counts as a fault of that channel.
func (s *Scheduler) Run(ctx context.Context) (err error) {
	defer func() {
		if s.control != nil {
			s.control.Close()
		}
		if closeErr := s.converter.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", s.id, closeErr)
		}
	}()

	interval := s.converter.ConvertIntervalTicks()
	if interval == 0 {
		return fmt.Errorf("%s: %w", s.id, ErrNoInterval)
	}
	// a dead channel must fail its read before it can break the deadline
	timeout := min(lut.MaxTicks, interval-min(interval, s.converter.ChargeTicks()))
	timer := s.converter.Timer()

	for {
		if !s.running {
			exit, err := s.waitForStart(ctx)
			if err != nil || exit {
				return err
			}
			continue
		}

		completed := true
		for ch := 0; ch < s.converter.NumChannels(); ch++ {
			start := timer.Now()
			reading, convErr := s.converter.Update(ch, timeout)
			elapsed := timer.Now().Since(start)
			s.record(ch, reading, convErr)

			// a read that timed out has already failed on its own
			if elapsed > interval && !errors.Is(convErr, qadc.ErrTransitionTimeout) {
				return fmt.Errorf("%s: %w: channel %d took %d ticks, interval is %d", s.id, ErrDeadlineExceeded, ch, elapsed, interval)
			}

			if s.serve() {
				return nil
			}
			if ctx.Err() != nil {
				ui.Debug("QADC %s: context done, exiting", s.id)
				return nil
			}
			if !s.running {
				completed = false
				break
			}
			timer.WaitUntil(start.Add(interval))
		}
		if completed {
			s.updateCalibration()
			s.mu.Lock()
			s.stats.Cycles++
			s.mu.Unlock()
		}
	}
}

// waitForStart blocks on the control channel while conversions are
// suspended.
func (s *Scheduler) waitForStart(ctx context.Context) (bool, error) {
	if s.control == nil {
		s.setRunning(true)
		return false, nil
	}
	request, err := s.control.Wait(ctx)
	if err != nil {
		ui.Debug("QADC %s: context done while stopped, exiting", s.id)
		return true, nil
	}
	return s.handle(request), nil
}

// serve handles all pending commands and reports whether EXIT was received.
func (s *Scheduler) serve() bool {
	if s.control == nil {
		return false
	}
	for {
		request, ok := s.control.Poll()
		if !ok {
			return false
		}
		if s.handle(request) {
			return true
		}
	}
}

func (s *Scheduler) handle(request control.Request) (exit bool) {
	cmd := request.Command
	ui.Debug("QADC %s: handling command %s", s.id, cmd)

	switch cmd.Op {
	case control.OpRead:
		ch, ok := s.channel(cmd)
		if !ok {
			request.Reply(control.StatusInvalid)
			return false
		}
		request.Reply(uint32(s.converter.Result(ch)))

	case control.OpDirection:
		ch, ok := s.channel(cmd)
		if !ok {
			request.Reply(control.StatusInvalid)
			return false
		}
		dir, err := s.converter.Direction(ch)
		if err != nil {
			ui.Warning("QADC %s: ignoring %s: %v", s.id, cmd, err)
			request.Reply(control.StatusInvalid)
			return false
		}
		request.Reply(uint32(dir))

	case control.OpCalibrationStart:
		s.converter.StartCalibration()
		s.updateCalibration()
		ui.Info("QADC %s: calibration started", s.id)
		request.Reply(control.StatusAck)

	case control.OpCalibrationFinish:
		if !s.converter.Calibrating() {
			ui.Warning("QADC %s: ignoring %s, no calibration in progress", s.id, cmd)
			request.Reply(control.StatusInvalid)
			return false
		}
		calibration := s.converter.FinishCalibration()
		s.updateCalibration()
		ui.Success("QADC %s: calibration finished", s.id)
		if s.onCalibration != nil {
			s.onCalibration(calibration)
		}
		request.Reply(control.StatusAck)

	case control.OpStop:
		s.setRunning(false)
		request.Reply(control.StatusAck)

	case control.OpStart:
		s.setRunning(true)
		request.Reply(control.StatusAck)

	case control.OpExit:
		ui.Info("QADC %s: exit requested", s.id)
		request.Reply(control.StatusAck)
		return true

	default:
		ui.Warning("QADC %s: ignoring unknown command word 0x%08x", s.id, cmd.Word())
		request.Reply(control.StatusInvalid)
	}
	return false
}

func (s *Scheduler) channel(cmd control.Command) (int, bool) {
	ch := int(cmd.Operand)
	if ch >= s.converter.NumChannels() {
		ui.Warning("QADC %s: ignoring %s, channel out of range (have %d)", s.id, cmd, s.converter.NumChannels())
		return 0, false
	}
	return ch, true
}

func (s *Scheduler) setRunning(running bool) {
	s.running = running
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.Running = running
}

func (s *Scheduler) updateCalibration() {
	calibration := s.converter.Calibration()
	calibrating := s.converter.Calibrating()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.Calibration = calibration
	s.stats.Calibrating = calibrating
}

// record publishes the outcome of a conversion. A failed conversion keeps
// the last good result.
func (s *Scheduler) record(ch int, reading qadc.Reading, err error) {
	result := s.converter.Result(ch)
	if s.board != nil {
		s.board.Store(ch, result)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	stats := &s.stats.Channels[ch]
	stats.Result = result
	stats.Direction = reading.Direction
	if err != nil {
		stats.Faults++
		stats.LastError = err.Error()
		ui.Debug("QADC %s: conversion failed: %v", s.id, err)
		return
	}
	stats.Conversions++
	stats.Ticks = reading.Ticks
	window := s.peakWindows[ch]
	window.Append(float64(reading.Ticks))
	stats.PeakTicks = uint32(util.GetWindowMax(window))
}
