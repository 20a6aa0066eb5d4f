package telemetry

import "codeberg.org/mutker/stepperctl/internal/hal"

// CurrentInput is what a CurrentEstimator may look at. None of the
// supported drivers expose a phase current ADC.
type CurrentInput struct {
	Status   uint32
	KvalHold uint8
	KvalRun  uint8
}

// CurrentEstimator approximates motor current from driver state
type CurrentEstimator interface {
	Estimate(in CurrentInput) float64
}

// KvalEstimator approximates phase current as the PWM duty implied by the
// active KVAL register times supply voltage over winding resistance. It
// ignores back-EMF and is an approximation only.
type KvalEstimator struct {
	SupplyVoltage      float64
	PhaseResistanceOhm float64
}

func (k KvalEstimator) Estimate(in CurrentInput) float64 {
	if k.PhaseResistanceOhm <= 0 {
		return 0
	}

	kval := in.KvalRun
	if in.Status&hal.StatusMotorMask == 0 {
		kval = in.KvalHold
	}

	return float64(kval) / 255.0 * k.SupplyVoltage / k.PhaseResistanceOhm
}

// NullEstimator reports zero current for rigs without any current source
type NullEstimator struct{}

func (NullEstimator) Estimate(CurrentInput) float64 {
	return 0
}
