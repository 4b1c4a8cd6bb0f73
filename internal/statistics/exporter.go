// Package statistics exports the state of the QADC workers as prometheus
// metrics.
package statistics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "qadc2go"
)

// Register adds collector to the default registry. Registering the same
// collector twice is not an error.
func Register(collector prometheus.Collector) error {
	err := prometheus.Register(collector)
	var alreadyRegistered prometheus.AlreadyRegisteredError
	if errors.As(err, &alreadyRegistered) {
		return nil
	}
	return err
}
