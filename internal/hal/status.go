package hal

// Driver status word layout (L6470 STATUS register). Fault bits marked
// active-low read 0 while the condition is present.
const (
	StatusHiZ        uint32 = 1 << 0
	StatusBusy       uint32 = 1 << 1 // active-low
	StatusSwitchFlag uint32 = 1 << 2
	StatusSwitchEvt  uint32 = 1 << 3
	StatusDirection  uint32 = 1 << 4
	StatusMotorMask  uint32 = 3 << 5
	StatusNotPerfCmd uint32 = 1 << 7
	StatusWrongCmd   uint32 = 1 << 8
	StatusUVLO       uint32 = 1 << 9  // active-low
	StatusThWarn     uint32 = 1 << 10 // active-low
	StatusThShutdown uint32 = 1 << 11 // active-low
	StatusOCD        uint32 = 1 << 12 // active-low
	StatusStepLossA  uint32 = 1 << 13 // active-low
	StatusStepLossB  uint32 = 1 << 14 // active-low
	StatusSckMod     uint32 = 1 << 15

	// StatusHealthy is a status word with no fault asserted
	StatusHealthy = StatusBusy | StatusUVLO | StatusThWarn | StatusThShutdown |
		StatusOCD | StatusStepLossA | StatusStepLossB
)

// Driver parameter addresses read for reporting
const (
	ParamKvalHold uint8 = 0x09
	ParamKvalRun  uint8 = 0x0A
)
