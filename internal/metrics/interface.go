package metrics

import (
	"net/http"

	"codeberg.org/mutker/stepperctl/internal/hal"
	"codeberg.org/mutker/stepperctl/internal/telemetry"
)

// Collector publishes engine health for scraping
type Collector interface {
	// Observe replaces the gauges of one motor
	Observe(h telemetry.Health)
	EmergencyStop(source hal.StopSource)
	DatasetFinished(motorID int, state telemetry.DataSetState)
	Handler() http.Handler
	// WriteTextfile dumps the registry for the node exporter textfile
	// collector, for processes that exit before they could be scraped
	WriteTextfile(path string) error
}
