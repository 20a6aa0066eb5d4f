package hal_test

import (
	"testing"
	"time"

	"codeberg.org/mutker/stepperctl/internal/errors"
	"codeberg.org/mutker/stepperctl/internal/hal"
	"codeberg.org/mutker/stepperctl/internal/hal/sim"
	"codeberg.org/mutker/stepperctl/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonotonicTimerLifecycle(t *testing.T) {
	timer := hal.NewMonotonicTimer()

	err := timer.Start()
	assert.True(t, errors.HasCode(err, hal.ErrTimerNotInitialized))

	err = timer.Init(hal.TimerConfig{ResolutionUs: 10})
	assert.True(t, errors.HasCode(err, hal.ErrTimerResolution))

	require.NoError(t, timer.Init(hal.TimerConfig{ResolutionUs: 1}))
	require.NoError(t, timer.Start())

	first := timer.Counter()
	time.Sleep(2 * time.Millisecond)
	second := timer.Counter()
	assert.GreaterOrEqual(t, second-first, uint32(2000))

	require.NoError(t, timer.Stop())
	frozen := timer.Counter()
	time.Sleep(time.Millisecond)
	assert.Equal(t, frozen, timer.Counter())
}

func TestHardStopTriggerStopsEveryMotor(t *testing.T) {
	rig := sim.New(map[int]sim.MotorConfig{0: {VelocityDps: 10}, 1: {VelocityDps: 10}})
	require.NoError(t, rig.Init(0))
	require.NoError(t, rig.Init(1))

	var got hal.StopSource
	trigger := hal.NewHardStopTrigger(rig, []int{0, 1, 7}, logger.Nop())
	trigger.OnTrip(func(s hal.StopSource) { got = s })

	trigger.Trigger(hal.SourceSoftware)

	assert.True(t, rig.Stopped(0))
	assert.True(t, rig.Stopped(1))
	assert.Equal(t, uint64(1), trigger.Trips())
	assert.Equal(t, hal.SourceSoftware, got)
	assert.Equal(t, "software", got.String())
}
