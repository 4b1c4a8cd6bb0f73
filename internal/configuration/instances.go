package configuration

import (
	"time"
)

type InstanceType string

const (
	InstanceTypePot  InstanceType = "pot"
	InstanceTypeRheo InstanceType = "rheo"

	DefaultResolution    = 1024
	DefaultFilterDepth   = 32
	DefaultHysteresis    = 1
	DefaultBaudRate      = 115200
	DefaultSerialTimeout = 500 * time.Millisecond
)

type InstanceConfig struct {
	ID   string       `json:"id"`
	Type InstanceType `json:"type"`

	// Resolution is the LUT size of a pot or the number of steps of a rheostat.
	Resolution  int `json:"resolution"`
	FilterDepth int `json:"filterDepth"`
	// Hysteresis defaults to DefaultHysteresis when not set.
	Hysteresis *int `json:"hysteresis,omitempty"`
	AutoScale  bool `json:"autoScale"`

	Capacitor      Component `json:"capacitor"`
	Resistance     Component `json:"resistance"`
	SeriesResistor Component `json:"seriesResistor"`
	VRail          float64   `json:"vRail"`
	VThresh        float64   `json:"vThresh"`

	ConvertInterval time.Duration `json:"convertInterval"`
	PortTimeOffset  uint32        `json:"portTimeOffset"`

	PersistCalibration DefaultTrueBool `json:"persistCalibration"`

	Control *ControlConfig `json:"control,omitempty"`
	Sim     *SimConfig     `json:"sim,omitempty"`
	Gpio    *GpioConfig    `json:"gpio,omitempty"`
}

type ControlConfig struct {
	Serial *SerialConfig `json:"serial,omitempty"`
}

type SerialConfig struct {
	Port        string        `json:"port"`
	BaudRate    int           `json:"baudRate"`
	ReadTimeout time.Duration `json:"readTimeout"`
}

type SimConfig struct {
	// Positions holds the initial knob position of every channel, in [0, 1].
	Positions []float64 `json:"positions"`
	// Tolerance scales the simulated resistance against the nominal one.
	Tolerance float64 `json:"tolerance"`
}

type GpioConfig struct {
	Chip  string `json:"chip"`
	Lines []int  `json:"lines"`
}

// NumChannels returns the number of pins configured for the instance.
func (c InstanceConfig) NumChannels() int {
	switch {
	case c.Sim != nil:
		return len(c.Sim.Positions)
	case c.Gpio != nil:
		return len(c.Gpio.Lines)
	}
	return 0
}

func applyInstanceDefaults(config *Configuration) {
	for i := range config.Instances {
		instance := &config.Instances[i]
		if instance.Type == "" {
			instance.Type = InstanceTypePot
		}
		if instance.Resolution == 0 {
			instance.Resolution = DefaultResolution
		}
		if instance.FilterDepth == 0 {
			instance.FilterDepth = DefaultFilterDepth
		}
		if instance.Hysteresis == nil {
			hysteresis := DefaultHysteresis
			instance.Hysteresis = &hysteresis
		}
		if instance.Sim != nil && instance.Sim.Tolerance == 0 {
			instance.Sim.Tolerance = 1
		}
		if instance.Control != nil && instance.Control.Serial != nil {
			serial := instance.Control.Serial
			if serial.BaudRate == 0 {
				serial.BaudRate = DefaultBaudRate
			}
			if serial.ReadTimeout == 0 {
				serial.ReadTimeout = DefaultSerialTimeout
			}
		}
	}
}
