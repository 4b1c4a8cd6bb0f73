package configuration

// ApiConfig configures the REST API.
type ApiConfig struct {
	Enabled bool   `json:"enabled"`
	Host    string `json:"host"`
	Port    int    `json:"port"`
}

// StatisticsConfig configures the prometheus exporter.
type StatisticsConfig struct {
	Enabled bool `json:"enabled"`
	Port    int  `json:"port"`
	// PeakWindowSize is the number of conversions the peak transition
	// time of a channel is taken over.
	PeakWindowSize int `json:"peakWindowSize"`
}

// ProfilingConfig exposes the pprof endpoints of the daemon on Host:Port.
type ProfilingConfig struct {
	Enabled bool   `json:"enabled"`
	Host    string `json:"host"`
	Port    int    `json:"port,omitempty"`
}
