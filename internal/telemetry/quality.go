package telemetry

const (
	qualityFull          = 100
	qualityDriverMissing = 20

	penaltyUnsafe      = 30
	penaltyThermal     = 20
	penaltyStall       = 25
	penaltyOvercurrent = 50

	thermalCurrentKnee  = 0.8
	thermalCurrentSlope = 2.0
	thermalWarnFactor   = 0.5
	thermalStallFactor  = 0.3
)

// qualityScore subtracts a penalty per observed defect from base
func qualityScore(base int, s *Sample) uint8 {
	score := base
	if !s.SafetyBoundsOK {
		score -= penaltyUnsafe
	}
	if s.ThermalWarning {
		score -= penaltyThermal
	}
	if s.StallDetected {
		score -= penaltyStall
	}
	if s.OvercurrentDetected {
		score -= penaltyOvercurrent
	}

	if score < 0 {
		return 0
	}

	return uint8(score)
}

// thermalPerformance scores thermal headroom in [0, 1]
func thermalPerformance(currentA, maxCurrentA float64, thermalWarning, stall bool) float64 {
	score := 1.0

	if maxCurrentA > 0 {
		ratio := currentA / maxCurrentA
		if ratio < 0 {
			ratio = -ratio
		}
		if ratio > thermalCurrentKnee {
			score = 1.0 - (ratio-thermalCurrentKnee)*thermalCurrentSlope
		}
	}
	if thermalWarning {
		score *= thermalWarnFactor
	}
	if stall {
		score *= thermalStallFactor
	}

	return clamp(score, 0, 1)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}

	return v
}
