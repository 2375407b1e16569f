package metrics

import (
	"time"
)

const (
	DirectionLoad = "load"
	DirectionSave = "save"
)

// Collector receives the service's operational measurements.
type Collector interface {
	// ServerRunning records an observed server state and counts transitions
	ServerRunning(running bool)

	// ServerStartDuration records how long a start attempt took to report readiness
	ServerStartDuration(duration time.Duration, err error)

	// ServerStop records a stop outcome, graceful or forced
	ServerStop(graceful bool)

	// MirrorCycle records one working-set copy
	MirrorCycle(direction string, duration time.Duration, err error)
}

type noopCollector struct{}

func (n *noopCollector) ServerRunning(running bool)                                      {}
func (n *noopCollector) ServerStartDuration(duration time.Duration, err error)           {}
func (n *noopCollector) ServerStop(graceful bool)                                        {}
func (n *noopCollector) MirrorCycle(direction string, duration time.Duration, err error) {}

func NewNoopCollector() Collector {
	return &noopCollector{}
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
