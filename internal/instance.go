package internal

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/markusressel/qadc2go/internal/configuration"
	"github.com/markusressel/qadc2go/internal/control"
	"github.com/markusressel/qadc2go/internal/hal"
	"github.com/markusressel/qadc2go/internal/hal/gpiocdev"
	"github.com/markusressel/qadc2go/internal/hal/sim"
	"github.com/markusressel/qadc2go/internal/lut"
	"github.com/markusressel/qadc2go/internal/persistence"
	"github.com/markusressel/qadc2go/internal/qadc"
	"github.com/markusressel/qadc2go/internal/scheduler"
	"github.com/markusressel/qadc2go/internal/ui"
)

var ErrNoBackend = errors.New("no pin backend configured")

// Converter is a QADC instance of either type.
type Converter interface {
	scheduler.Converter
	Single(ch int) (uint16, error)
	Resolution() int
	RestoreCalibration(calibration qadc.Calibration) error
}

// Instance is a QADC instance wired up with everything needed to run it.
type Instance struct {
	Config    configuration.InstanceConfig
	Converter Converter
	Scheduler *scheduler.Scheduler
	Control   *control.Channel
	Board     *qadc.Board

	// SimPins is set for simulated instances.
	SimPins []*sim.Pin

	closers []io.Closer
}

// Close releases resources held in addition to the pins, which are closed
// when the scheduler stops.
func (i *Instance) Close() error {
	var result error
	for _, closer := range i.closers {
		if err := closer.Close(); err != nil && result == nil {
			result = err
		}
	}
	return result
}

// NewCircuit returns the circuit of an instance.
func NewCircuit(instance configuration.InstanceConfig) lut.Circuit {
	return lut.Circuit{
		PotOhms:         instance.Resistance.Float(),
		CapacitorFarads: instance.Capacitor.Float(),
		SeriesOhms:      instance.SeriesResistor.Float(),
		VRail:           instance.VRail,
		VThresh:         instance.VThresh,
	}
}

// NewQadcConfig converts the configuration of an instance.
func NewQadcConfig(config *configuration.Configuration, instance configuration.InstanceConfig) qadc.Config {
	return qadc.Config{
		Circuit:              NewCircuit(instance),
		TimerHz:              config.TimerHz,
		ConvertIntervalTicks: config.ConvertIntervalTicks(instance),
		AutoScale:            instance.AutoScale,
		PortTimeOffsetTicks:  instance.PortTimeOffset,
	}
}

// OpenPins opens the pins and the timer of an instance. Simulated pins
// run on a realtime timer unless virtual is set.
func OpenPins(config *configuration.Configuration, instance configuration.InstanceConfig, virtual bool) (hal.Timer, []hal.Pin, []*sim.Pin, io.Closer, error) {
	switch {
	case instance.Sim != nil:
		var timer *sim.Timer
		if virtual {
			timer = sim.NewTimer(config.TimerHz)
		} else {
			timer = sim.NewRealtimeTimer(config.TimerHz)
		}

		circuit := NewCircuit(instance)
		circuit.PotOhms *= instance.Sim.Tolerance

		var model sim.Model
		var err error
		switch instance.Type {
		case configuration.InstanceTypeRheo:
			model, err = sim.NewRheoModel(circuit, config.TimerHz)
		default:
			model, err = sim.NewPotModel(circuit, instance.Resolution, config.TimerHz)
		}
		if err != nil {
			return nil, nil, nil, nil, err
		}

		simPins := make([]*sim.Pin, len(instance.Sim.Positions))
		pins := make([]hal.Pin, len(instance.Sim.Positions))
		for ch, position := range instance.Sim.Positions {
			simPins[ch] = sim.NewPin(timer, model, position)
			pins[ch] = simPins[ch]
		}
		return timer, pins, simPins, nil, nil

	case instance.Gpio != nil:
		chip, err := gpiocdev.Open(instance.Gpio.Chip)
		if err != nil {
			return nil, nil, nil, nil, err
		}
		timer := gpiocdev.NewTimer(config.TimerHz)
		return timer, chip.Pins(timer, instance.Gpio.Lines...), nil, chip, nil
	}
	return nil, nil, nil, nil, fmt.Errorf("%s: %w", instance.ID, ErrNoBackend)
}

// NewConverter creates a pot or rheo on already enabled pins.
func NewConverter(config *configuration.Configuration, instance configuration.InstanceConfig, timer hal.Timer, pins []hal.Pin) (Converter, error) {
	cfg := NewQadcConfig(config, instance)
	options := []qadc.Option{
		qadc.WithResolution(instance.Resolution),
		qadc.WithFilterDepth(instance.FilterDepth),
	}
	if instance.Hysteresis != nil {
		options = append(options, qadc.WithHysteresis(uint16(*instance.Hysteresis)))
	}

	if instance.Type == configuration.InstanceTypeRheo {
		rheo, err := qadc.NewRheo(pins, timer, cfg, options...)
		if err != nil {
			return nil, err
		}
		return rheo, nil
	}
	pot, err := qadc.NewPot(pins, timer, cfg, options...)
	if err != nil {
		return nil, err
	}
	return pot, nil
}

// CreateInstance opens the pins of an instance, creates its converter,
// restores a persisted calibration and sets up the scheduler. The returned
// instance still has to be run.
func CreateInstance(config *configuration.Configuration, instanceConfig configuration.InstanceConfig, pers persistence.Persistence, virtual bool) (*Instance, error) {
	timer, pins, simPins, closer, err := OpenPins(config, instanceConfig, virtual)
	if err != nil {
		return nil, err
	}
	instance := &Instance{
		Config:  instanceConfig,
		SimPins: simPins,
	}
	if closer != nil {
		instance.closers = append(instance.closers, closer)
	}

	if err := hal.PreInit(timer, pins); err != nil {
		_ = hal.CloseAll(pins)
		_ = instance.Close()
		return nil, fmt.Errorf("%s: %w", instanceConfig.ID, err)
	}

	converter, err := NewConverter(config, instanceConfig, timer, pins)
	if err != nil {
		_ = hal.CloseAll(pins)
		_ = instance.Close()
		return nil, fmt.Errorf("%s: %w", instanceConfig.ID, err)
	}
	instance.Converter = converter

	persist := pers != nil && instanceConfig.PersistCalibration.Get()
	if persist {
		restoreCalibration(pers, instanceConfig.ID, converter)
	}

	instance.Control = control.NewChannel()
	instance.Board = qadc.NewBoard(converter.NumChannels())

	options := []scheduler.Option{
		scheduler.WithControl(instance.Control),
		scheduler.WithBoard(instance.Board),
	}
	if config.Statistics.PeakWindowSize > 0 {
		options = append(options, scheduler.WithPeakWindow(config.Statistics.PeakWindowSize))
	}
	if persist {
		options = append(options, scheduler.WithCalibrationHandler(func(calibration qadc.Calibration) {
			if err := pers.SaveCalibration(instanceConfig.ID, calibration); err != nil {
				ui.Warning("Failed to save calibration of %s: %v", instanceConfig.ID, err)
			}
		}))
	}
	instance.Scheduler = scheduler.New(instanceConfig.ID, converter, options...)

	return instance, nil
}

func restoreCalibration(pers persistence.Persistence, id string, converter Converter) {
	calibration, err := pers.LoadCalibration(id)
	if errors.Is(err, os.ErrNotExist) {
		ui.Debug("No calibration stored for %s", id)
		return
	}
	if err != nil {
		ui.Warning("Failed to load calibration of %s: %v", id, err)
		return
	}
	if err := converter.RestoreCalibration(calibration); err != nil {
		ui.Warning("Discarding stored calibration of %s: %v", id, err)
		if err := pers.DeleteCalibration(id); err != nil {
			ui.Warning("Failed to delete calibration of %s: %v", id, err)
		}
		return
	}
	ui.Info("Restored calibration of %s", id)
}
