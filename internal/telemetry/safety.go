package telemetry

import "math"

// CheckSafetyBounds reports whether s is inside the envelope configured on
// c. A disabled monitor accepts everything.
func CheckSafetyBounds(c *Context, s *Sample) bool {
	if c == nil || s == nil {
		return false
	}
	if !c.SafetyLimitsEnabled {
		return true
	}

	// Written as "within" so NaN readings fall outside the envelope
	if !(math.Abs(s.MotorCurrentA) <= c.SafetyCurrentLimitA) {
		return false
	}
	if !(math.Abs(s.VelocityDps) <= c.SafetySpeedLimitDps) {
		return false
	}
	if !(math.Abs(s.PositionError) <= c.SafetyErrorLimitDeg) {
		return false
	}

	return !s.ThermalWarning && !s.StallDetected && !s.OvercurrentDetected
}

// defaultLimits derives the normal operating envelope of a motor
func defaultLimits(cfg Config, maxCurrentA, maxSpeedDps float64) SafetyLimits {
	return SafetyLimits{
		Enabled:  true,
		CurrentA: maxCurrentA * cfg.SafetyCurrentRatio,
		SpeedDps: maxSpeedDps * cfg.SafetySpeedRatio,
		ErrorDeg: cfg.PositionErrorLimitDeg,
	}
}

// testLimits overlays the non-zero limits of a test configuration
func testLimits(base SafetyLimits, tc *TestConfig) SafetyLimits {
	l := base
	if tc.CurrentLimitA > 0 {
		l.CurrentA = tc.CurrentLimitA
	}
	if tc.SpeedLimitDps > 0 {
		l.SpeedDps = tc.SpeedLimitDps
	}
	if tc.ErrorLimitDeg > 0 {
		l.ErrorDeg = tc.ErrorLimitDeg
	}
	if tc.DisableSafety {
		l.Enabled = false
	}

	return l
}
