package lut

import (
	"errors"
	"fmt"

	"github.com/markusressel/qadc2go/internal/configuration"
	"github.com/markusressel/qadc2go/internal/lut"
	"github.com/spf13/cobra"
)

var (
	instanceId string

	resistance string
	capacitor  string
	series     string
	vRail      float64
	vThresh    float64
	resolution int
	timerHz    uint32
	rheo       bool
)

var Command = &cobra.Command{
	Use:              "lut",
	Short:            "Lookup table related commands",
	Long:             `Computes the transition time lookup table of an instance from the config, or of a circuit given by flags.`,
	TraverseChildren: true,
}

func init() {
	Command.PersistentFlags().StringVarP(&instanceId, "id", "i", "", "Instance ID as specified in the config")
	Command.PersistentFlags().StringVar(&resistance, "resistance", "47k", "Resistance of the pot or rheostat")
	Command.PersistentFlags().StringVar(&capacitor, "capacitor", "5n", "Capacitor value")
	Command.PersistentFlags().StringVar(&series, "series", "330", "Series resistor value")
	Command.PersistentFlags().Float64Var(&vRail, "vrail", 3.3, "I/O rail voltage")
	Command.PersistentFlags().Float64Var(&vThresh, "vthresh", 1.15, "Input threshold voltage")
	Command.PersistentFlags().IntVarP(&resolution, "resolution", "r", configuration.DefaultResolution, "LUT size or number of rheostat steps")
	Command.PersistentFlags().Uint32Var(&timerHz, "timer-hz", lut.DefaultTimerHz, "Timer frequency")
	Command.PersistentFlags().BoolVar(&rheo, "rheo", false, "Treat the circuit as a rheostat")
}

// Document is the exported form of a lookup table.
type Document struct {
	Id           string          `yaml:"id,omitempty"`
	Type         string          `yaml:"type"`
	TimerHz      uint32          `yaml:"timerHz"`
	Resolution   int             `yaml:"resolution"`
	Circuit      CircuitDocument `yaml:"circuit"`
	ChargeTicks  uint32          `yaml:"chargeTicks"`
	Table        *lut.Table      `yaml:"table,omitempty"`
	RheoMaxTicks uint16          `yaml:"rheoMaxTicks,omitempty"`
}

type CircuitDocument struct {
	Resistance     string  `yaml:"resistance"`
	Capacitor      string  `yaml:"capacitor"`
	SeriesResistor string  `yaml:"seriesResistor"`
	VRail          float64 `yaml:"vRail"`
	VThresh        float64 `yaml:"vThresh"`
}

// source returns the instance to compute the table for, either from the
// config or from the command line flags.
func source() (configuration.InstanceConfig, uint32, error) {
	if instanceId != "" {
		configuration.ReadConfigFile()
		if err := configuration.Validate(); err != nil {
			return configuration.InstanceConfig{}, 0, err
		}
		for _, instance := range configuration.CurrentConfig.Instances {
			if instance.ID == instanceId {
				return instance, configuration.CurrentConfig.TimerHz, nil
			}
		}
		return configuration.InstanceConfig{}, 0, fmt.Errorf("no instance with id '%s' found", instanceId)
	}

	instance := configuration.InstanceConfig{
		Type:       configuration.InstanceTypePot,
		Resolution: resolution,
		VRail:      vRail,
		VThresh:    vThresh,
	}
	if rheo {
		instance.Type = configuration.InstanceTypeRheo
	}
	var err error
	if instance.Resistance, err = configuration.ParseComponent(resistance); err != nil {
		return instance, 0, err
	}
	if instance.Capacitor, err = configuration.ParseComponent(capacitor); err != nil {
		return instance, 0, err
	}
	if instance.SeriesResistor, err = configuration.ParseComponent(series); err != nil {
		return instance, 0, err
	}
	return instance, timerHz, nil
}

// NewDocument computes the lookup table of an instance.
func NewDocument(instance configuration.InstanceConfig, timerHz uint32) (*Document, error) {
	if timerHz == 0 {
		return nil, errors.New("timer frequency must be > 0")
	}
	circuit := lut.Circuit{
		PotOhms:         instance.Resistance.Float(),
		CapacitorFarads: instance.Capacitor.Float(),
		SeriesOhms:      instance.SeriesResistor.Float(),
		VRail:           instance.VRail,
		VThresh:         instance.VThresh,
	}
	if err := circuit.Validate(); err != nil {
		return nil, err
	}

	doc := &Document{
		Id:         instance.ID,
		Type:       string(instance.Type),
		TimerHz:    timerHz,
		Resolution: instance.Resolution,
		Circuit: CircuitDocument{
			Resistance:     instance.Resistance.String(),
			Capacitor:      instance.Capacitor.String(),
			SeriesResistor: instance.SeriesResistor.String(),
			VRail:          instance.VRail,
			VThresh:        instance.VThresh,
		},
		ChargeTicks: circuit.ChargeTicks(timerHz),
	}

	if instance.Type == configuration.InstanceTypeRheo {
		maxTicks, err := lut.RheoMaxTicks(circuit, timerHz)
		if err != nil {
			return nil, err
		}
		doc.RheoMaxTicks = maxTicks
		return doc, nil
	}

	table, err := lut.GeneratePot(instance.Resolution, circuit, timerHz)
	if err != nil {
		return nil, err
	}
	doc.Table = table
	return doc, nil
}
