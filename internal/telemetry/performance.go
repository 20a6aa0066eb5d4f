package telemetry

import "math"

// updatePerformance folds one collection time into the metrics. intervalUs
// is the time since the previous sample, or 0 when there is none.
func updatePerformance(p *PerformanceMetrics, rateHz uint32, realtimeRatio float64, sampleTimeUs uint32, intervalUs int32) {
	if p.TotalSamplesCollected == 0 {
		p.AverageSampleTimeUs = sampleTimeUs
	} else {
		avg := (uint64(p.AverageSampleTimeUs)*9 + uint64(sampleTimeUs)) / 10
		p.AverageSampleTimeUs = uint32(avg)
	}

	if sampleTimeUs > p.MaxSampleTimeUs {
		p.MaxSampleTimeUs = sampleTimeUs
	}

	if rateHz == 0 {
		return
	}
	targetPeriodUs := 1e6 / float64(rateHz)

	p.CPUOverheadPercent = float64(sampleTimeUs) / targetPeriodUs * 100
	p.RealTimeCompatible = float64(sampleTimeUs) < targetPeriodUs*realtimeRatio

	if intervalUs > 0 {
		deviation := math.Abs(float64(intervalUs)-targetPeriodUs) / targetPeriodUs * 100
		p.TimingAccuracyPercent = clamp(100-deviation, 0, 100)
	}
}

func health(id int, c *Context, cfg Config) Health {
	return Health{
		MotorID:          id,
		Metrics:          c.Performance,
		SafetyTrips:      c.SafetyViolationCount,
		Streaming:        c.StreamingActive,
		OverheadExceeded: c.Performance.CPUOverheadPercent > cfg.CPUOverheadTargetPercent,
		TimingDegraded: c.Performance.TotalSamplesCollected > 1 &&
			c.Performance.TimingAccuracyPercent < 100-cfg.TimingTolerancePercent,
	}
}
