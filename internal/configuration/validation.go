package configuration

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/markusressel/qadc2go/internal/ui"
	"golang.org/x/exp/slices"
)

func Validate() error {
	return validateConfig(&CurrentConfig)
}

func validateConfig(config *Configuration) error {
	if config.TimerHz <= 0 {
		return errors.New("timerHz must be > 0")
	}
	if len(config.Instances) <= 0 {
		ui.Warning("No QADC instances configured")
	}

	err := validateInstances(config)
	if err != nil {
		return err
	}
	return validateResources(config)
}

func validateInstances(config *Configuration) error {
	var ids []string
	for _, instance := range config.Instances {
		if len(instance.ID) <= 0 {
			return errors.New("Instance: missing id")
		}
		if slices.Contains(ids, instance.ID) {
			return errors.New(fmt.Sprintf("duplicate instance id detected: %s", instance.ID))
		}
		ids = append(ids, instance.ID)

		if err := validateInstance(instance); err != nil {
			return err
		}
	}
	return nil
}

func validateInstance(instance InstanceConfig) error {
	supportedTypes := []string{string(InstanceTypePot), string(InstanceTypeRheo)}
	if !slices.Contains(supportedTypes, string(instance.Type)) {
		return errors.New(fmt.Sprintf("Instance %s: unsupported type '%s', use one of: %s", instance.ID, instance.Type, strings.Join(supportedTypes, " | ")))
	}

	subConfigs := 0
	if instance.Sim != nil {
		subConfigs++
	}
	if instance.Gpio != nil {
		subConfigs++
	}
	if subConfigs > 1 {
		return errors.New(fmt.Sprintf("Instance %s: only one backend can be used per instance definition block", instance.ID))
	}
	if subConfigs <= 0 {
		return errors.New(fmt.Sprintf("Instance %s: backend sub-configuration is missing, use one of: sim | gpio", instance.ID))
	}
	if instance.NumChannels() <= 0 {
		return errors.New(fmt.Sprintf("Instance %s: at least one channel is required", instance.ID))
	}

	if instance.Sim != nil {
		for _, position := range instance.Sim.Positions {
			if position < 0 || position > 1 {
				return errors.New(fmt.Sprintf("Instance %s: sim position %v out of range, must be within [0, 1]", instance.ID, position))
			}
		}
		if instance.Sim.Tolerance <= 0 {
			return errors.New(fmt.Sprintf("Instance %s: sim tolerance must be > 0", instance.ID))
		}
	}
	if instance.Gpio != nil && len(instance.Gpio.Chip) <= 0 {
		return errors.New(fmt.Sprintf("Instance %s: missing gpio chip", instance.ID))
	}

	if instance.Resolution < 2 || instance.Resolution > math.MaxUint16 {
		return errors.New(fmt.Sprintf("Instance %s: resolution must be within [2, %d]", instance.ID, math.MaxUint16))
	}
	if instance.FilterDepth < 1 || instance.FilterDepth > math.MaxUint16 {
		return errors.New(fmt.Sprintf("Instance %s: filterDepth must be within [1, %d]", instance.ID, math.MaxUint16))
	}
	if instance.Hysteresis != nil && (*instance.Hysteresis < 0 || *instance.Hysteresis > math.MaxUint16) {
		return errors.New(fmt.Sprintf("Instance %s: hysteresis must be within [0, %d]", instance.ID, math.MaxUint16))
	}

	if instance.Capacitor <= 0 {
		return errors.New(fmt.Sprintf("Instance %s: capacitor must be > 0", instance.ID))
	}
	if instance.Resistance <= 0 {
		return errors.New(fmt.Sprintf("Instance %s: resistance must be > 0", instance.ID))
	}
	if instance.SeriesResistor <= 0 {
		return errors.New(fmt.Sprintf("Instance %s: seriesResistor must be > 0", instance.ID))
	}
	if instance.VRail <= 0 {
		return errors.New(fmt.Sprintf("Instance %s: vRail must be > 0", instance.ID))
	}
	if instance.VThresh <= 0 || instance.VThresh >= instance.VRail {
		return errors.New(fmt.Sprintf("Instance %s: vThresh must be within (0, vRail)", instance.ID))
	}
	if instance.ConvertInterval <= 0 {
		return errors.New(fmt.Sprintf("Instance %s: convertInterval must be > 0", instance.ID))
	}
	return nil
}

// validateResources makes sure no gpio line or serial port is claimed by
// more than one instance.
func validateResources(config *Configuration) error {
	lineOwners := map[string]string{}
	var serialPorts []string

	for _, instance := range config.Instances {
		if instance.Gpio != nil {
			for _, line := range instance.Gpio.Lines {
				key := fmt.Sprintf("%s/%d", instance.Gpio.Chip, line)
				if owner, ok := lineOwners[key]; ok {
					return errors.New(fmt.Sprintf("Instance %s: gpio line %d of chip %s is already used by instance %s", instance.ID, line, instance.Gpio.Chip, owner))
				}
				lineOwners[key] = instance.ID
			}
		}

		if instance.Control != nil && instance.Control.Serial != nil {
			port := instance.Control.Serial.Port
			if len(port) <= 0 {
				return errors.New(fmt.Sprintf("Instance %s: missing serial port", instance.ID))
			}
			if slices.Contains(serialPorts, port) {
				return errors.New(fmt.Sprintf("Instance %s: serial port %s is already in use", instance.ID, port))
			}
			serialPorts = append(serialPorts, port)
		}
	}
	return nil
}
