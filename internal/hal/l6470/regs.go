package l6470

// Register addresses
const (
	RegAbsPos   = 0x01
	RegElPos    = 0x02
	RegMark     = 0x03
	RegSpeed    = 0x04
	RegAcc      = 0x05
	RegDec      = 0x06
	RegMaxSpeed = 0x07
	RegMinSpeed = 0x08
	RegKvalHold = 0x09
	RegKvalRun  = 0x0A
	RegKvalAcc  = 0x0B
	RegKvalDec  = 0x0C
	RegIntSpeed = 0x0D
	RegStSlp    = 0x0E
	RegFnSlpAcc = 0x0F
	RegFnSlpDec = 0x10
	RegKTherm   = 0x11
	RegADCOut   = 0x12
	RegOCDTh    = 0x13
	RegStallTh  = 0x14
	RegFsSpd    = 0x15
	RegStepMode = 0x16
	RegAlarmEn  = 0x17
	RegConfig   = 0x18
	RegStatus   = 0x19
)

// Commands
const (
	cmdNop       = 0x00
	cmdGetParam  = 0x20
	cmdHardStop  = 0xB8
	cmdGetStatus = 0xD0
)

// configResetValue is CONFIG after power-up
const configResetValue = 0x2E88

// paramBytes is the SPI transfer length of each readable register
var paramBytes = map[uint8]int{
	RegAbsPos:   3,
	RegElPos:    2,
	RegMark:     3,
	RegSpeed:    3,
	RegAcc:      2,
	RegDec:      2,
	RegMaxSpeed: 2,
	RegMinSpeed: 2,
	RegKvalHold: 1,
	RegKvalRun:  1,
	RegKvalAcc:  1,
	RegKvalDec:  1,
	RegIntSpeed: 2,
	RegStSlp:    1,
	RegFnSlpAcc: 1,
	RegFnSlpDec: 1,
	RegKTherm:   1,
	RegADCOut:   1,
	RegOCDTh:    1,
	RegStallTh:  1,
	RegFsSpd:    2,
	RegStepMode: 1,
	RegAlarmEn:  1,
	RegConfig:   2,
	RegStatus:   2,
}
