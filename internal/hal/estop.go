package hal

import (
	"sync/atomic"

	"codeberg.org/mutker/stepperctl/internal/errors"
	"codeberg.org/mutker/stepperctl/internal/logger"
)

// HardStopTrigger halts every configured driver when a stop is requested
type HardStopTrigger struct {
	driver StepperDriver
	motors []int
	log    logger.Logger
	trips  atomic.Uint64
	notify func(StopSource)
}

func NewHardStopTrigger(driver StepperDriver, motors []int, log logger.Logger) *HardStopTrigger {
	ids := make([]int, len(motors))
	copy(ids, motors)

	return &HardStopTrigger{
		driver: driver,
		motors: ids,
		log:    log,
	}
}

// OnTrip registers a callback run after the drivers were stopped
func (h *HardStopTrigger) OnTrip(fn func(StopSource)) {
	h.notify = fn
}

func (h *HardStopTrigger) Trigger(source StopSource) {
	h.trips.Add(1)

	for _, id := range h.motors {
		if err := h.driver.HardStop(id); err != nil {
			h.log.ErrorWithContext(errors.New().Wrap(ErrHardStopFailed, err), "estop", "hard_stop").
				Int("motor", id).
				Msg("Failed to hard stop driver")
		}
	}

	h.log.Warn().
		Str("source", source.String()).
		Uint64("trips", h.trips.Load()).
		Msg("Emergency stop triggered")

	if h.notify != nil {
		h.notify(source)
	}
}

// Trips returns how many times the trigger fired
func (h *HardStopTrigger) Trips() uint64 {
	return h.trips.Load()
}
