package telemetry

import "math"

const (
	fullTurnDeg = 360.0
	halfTurnDeg = 180.0
)

// estimateDerivatives returns velocity and acceleration from the previous
// and new position. A jump of more than half a turn is taken as the short
// way round the encoder zero.
func estimateDerivatives(prevPos, prevVel, newPos, dt float64) (velocity, acceleration float64) {
	if dt <= 0 || math.IsNaN(dt) {
		return 0, 0
	}

	velocity = wrapDelta(newPos-prevPos) / dt
	acceleration = (velocity - prevVel) / dt

	return velocity, acceleration
}

// wrapDelta folds an angle difference into [-180, 180)
func wrapDelta(delta float64) float64 {
	if delta >= halfTurnDeg {
		delta -= fullTurnDeg
	} else if delta < -halfTurnDeg {
		delta += fullTurnDeg
	}

	return delta
}

// normalizeAngle maps deg into [0, 360)
func normalizeAngle(deg float64) float64 {
	deg = math.Mod(deg, fullTurnDeg)
	if deg < 0 {
		deg += fullTurnDeg
	}

	return deg
}

// elapsedSeconds converts two counter readings into seconds. The counter
// wraps, so the difference is taken as signed: a negative result means the
// clock went backwards.
func elapsedSeconds(prevUs, nowUs uint32) (float64, int32) {
	//nolint:gosec // G115: intentional two's complement reinterpretation
	delta := int32(nowUs - prevUs)

	return float64(delta) / 1e6, delta
}
