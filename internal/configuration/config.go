package configuration

import (
	"os"
	"time"

	"github.com/markusressel/qadc2go/internal/ui"
	"github.com/mitchellh/go-homedir"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

type Configuration struct {
	DbPath string `json:"dbPath"`

	// TimerHz is the frequency all transition times are expressed in.
	TimerHz uint32 `json:"timerHz"`

	Statistics StatisticsConfig `json:"statistics"`
	Api        ApiConfig        `json:"api"`
	Profiling  ProfilingConfig  `json:"profiling"`

	Instances []InstanceConfig `json:"instances"`
}

var CurrentConfig Configuration

// InitConfig reads in config file and ENV variables if set.
func InitConfig(cfgFile string) {
	viper.SetConfigName("qadc2go")

	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := homedir.Dir()
		if err != nil {
			ui.Error("Couldn't detect home directory: %v", err)
			os.Exit(1)
		}

		viper.AddConfigPath(".")
		viper.AddConfigPath(home)
		viper.AddConfigPath("/etc/qadc2go/")
	}

	viper.SetEnvPrefix("QADC2GO")
	viper.AutomaticEnv() // read in environment variables that match

	setDefaultValues()
}

func setDefaultValues() {
	viper.SetDefault("dbpath", "/etc/qadc2go/qadc2go.db")
	viper.SetDefault("timerHz", 100_000_000)

	viper.SetDefault("statistics.enabled", false)
	viper.SetDefault("statistics.port", 9000)
	viper.SetDefault("statistics.peakWindowSize", 100)

	viper.SetDefault("api.enabled", false)
	viper.SetDefault("api.host", "localhost")
	viper.SetDefault("api.port", 9001)

	viper.SetDefault("profiling.enabled", false)
	viper.SetDefault("profiling.host", "localhost")
	viper.SetDefault("profiling.port", 6060)

	viper.SetDefault("instances", []InstanceConfig{})
}

func ReadConfigFile() {
	if err := viper.ReadInConfig(); err != nil {
		// config file is required, so we fail here
		ui.Fatal("Error reading config file, %s", err)
	}
	// this is only populated _after_ ReadInConfig()
	ui.Info("Using configuration file at: %s", viper.ConfigFileUsed())

	LoadConfig()
}

func LoadConfig() {
	err := viper.Unmarshal(&CurrentConfig, viper.DecodeHook(decodeHook()))
	if err != nil {
		ui.Fatal("unable to decode into struct, %v", err)
	}
	applyInstanceDefaults(&CurrentConfig)
}

func decodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		ComponentHookFunc(),
		DefaultTrueBoolHookFunc(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
}

// ConvertIntervalTicks returns the conversion interval of an instance in
// timer ticks.
func (c *Configuration) ConvertIntervalTicks(instance InstanceConfig) uint32 {
	return uint32(uint64(instance.ConvertInterval) * uint64(c.TimerHz) / uint64(time.Second))
}
