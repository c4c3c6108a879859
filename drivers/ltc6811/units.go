package ltc6811

import "bmscode-go/x/mathx"

// Integer-only scaling. Cell, GPIO and supply codes share a 100µV LSB.

const (
	codeMicroV = 100 // µV per code
	scScale    = 20  // SC is reported divided by 20
	vthStep    = 16  // VUV/VOV step in codes (1.6mV)
	max12      = 0x0FFF
)

// CodeMicroVolts converts a cell or GPIO code to µV.
func CodeMicroVolts(code uint16) int32 { return int32(code) * codeMicroV }

// CodeMilliVolts converts a cell or GPIO code to mV, rounded.
func CodeMilliVolts(code uint16) int32 { return (int32(code) + 5) / 10 }

// SumOfCellsMilliVolts converts the SC status code to mV.
func SumOfCellsMilliVolts(sc uint16) int32 { return int32(sc) * scScale * codeMicroV / 1000 }

// SupplyMilliVolts converts a VA or VD status code to mV, rounded.
func SupplyMilliVolts(code uint16) int32 { return CodeMilliVolts(code) }

// DieMilliC converts ITMP to milli-°C: ITMP·100µV / 7.5mV/°C − 273°C.
func DieMilliC(itmp uint16) int32 { return int32(itmp)*40/3 - 273_000 }

// UnderVoltageCode returns the VUV code for an under-voltage threshold in mV.
// The comparison voltage is (VUV+1)·16·100µV.
func UnderVoltageCode(mV int32) uint16 {
	code := (int64(mV)*10+vthStep/2)/vthStep - 1
	return uint16(mathx.Clamp(code, 0, max12))
}

// OverVoltageCode returns the VOV code for an over-voltage threshold in mV.
// The comparison voltage is VOV·16·100µV.
func OverVoltageCode(mV int32) uint16 {
	code := (int64(mV)*10 + vthStep/2) / vthStep
	return uint16(mathx.Clamp(code, 0, max12))
}

// UnderVoltageMilliVolts is the inverse of UnderVoltageCode.
func UnderVoltageMilliVolts(vuv uint16) int32 {
	return (int32(vuv&max12) + 1) * vthStep * codeMicroV / 1000
}

// OverVoltageMilliVolts is the inverse of OverVoltageCode.
func OverVoltageMilliVolts(vov uint16) int32 {
	return int32(vov&max12) * vthStep * codeMicroV / 1000
}

// SelfTestCode returns the code every register reads after CVST, AXST or
// STATST with pattern st. The 27kHz and 14kHz modes differ from the rest.
func SelfTestCode(md Mode, adcopt bool, st SelfTest) uint16 {
	if md&0x3 == Mode27kHz {
		switch {
		case !adcopt && st == SelfTest1:
			return 0x9565
		case !adcopt:
			return 0x6A9A
		case st == SelfTest1:
			return 0x9553
		default:
			return 0x6AAC
		}
	}
	if st == SelfTest1 {
		return 0x9555
	}
	return 0x6AAA
}
