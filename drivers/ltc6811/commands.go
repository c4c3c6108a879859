package ltc6811

// Command is an 11-bit LTC6811 opcode, optionally with option fields OR-ed in.
type Command uint16

// Opcodes (Table 38).
const (
	WRCFGA Command = 0x001
	WRCFGB Command = 0x024 // LTC6812/13 only
	RDCFGA Command = 0x002
	RDCFGB Command = 0x026 // LTC6812/13 only

	RDCVA Command = 0x004
	RDCVB Command = 0x006
	RDCVC Command = 0x008
	RDCVD Command = 0x00A
	RDCVE Command = 0x009 // LTC6812/13 only
	RDCVF Command = 0x00B // LTC6812/13 only

	RDAUXA Command = 0x00C
	RDAUXB Command = 0x00E
	RDAUXC Command = 0x00D // LTC6812/13 only
	RDAUXD Command = 0x00F // LTC6812/13 only

	RDSTATA Command = 0x010
	RDSTATB Command = 0x012

	WRSCTRL  Command = 0x014
	WRPWM    Command = 0x020
	WRPSB    Command = 0x01C // LTC6812/13 only
	RDSCTRL  Command = 0x016
	RDPWM    Command = 0x022
	RDPSB    Command = 0x01E // LTC6812/13 only
	STSCTRL  Command = 0x019
	CLRSCTRL Command = 0x018

	ADCV    Command = 0x260
	ADOW    Command = 0x228
	CVST    Command = 0x207
	ADOL    Command = 0x201
	ADAX    Command = 0x460
	ADAXD   Command = 0x400
	AXST    Command = 0x407
	ADSTAT  Command = 0x468
	ADSTATD Command = 0x408
	STATST  Command = 0x40F
	ADCVAX  Command = 0x46F
	ADCVSC  Command = 0x467

	CLRCELL Command = 0x711
	CLRAUX  Command = 0x712
	CLRSTAT Command = 0x713
	PLADC   Command = 0x714
	DIAGN   Command = 0x715

	WRCOMM Command = 0x721
	RDCOMM Command = 0x722
	STCOMM Command = 0x723
)

// ---------------- Command option fields ----------------

// Mode selects the ADC conversion speed (MD[1:0]). The second figure applies
// when CFGR0.ADCOPT is set.
type Mode uint8

const (
	Mode422Hz Mode = iota // 422Hz / 1kHz
	Mode27kHz             // 27kHz / 14kHz
	Mode7kHz              // 7kHz / 3kHz (normal)
	Mode26Hz              // 26Hz / 2kHz (filtered)
)

// PullUp selects the open-wire current source for ADOW.
type PullUp uint8

const (
	PullDown PullUp = iota
	PullUpActive
)

// SelfTest selects the self-test pattern.
type SelfTest uint8

const (
	SelfTest1 SelfTest = iota + 1
	SelfTest2
)

// Discharge permits cell discharge while converting.
type Discharge uint8

const (
	DischargeOff Discharge = iota
	DischargePermitted
)

// CellSelect selects cells for ADCV/ADOW. Cells n and n+6 share a code.
type CellSelect uint8

const (
	CellsAll CellSelect = iota
	Cells1and7
	Cells2and8
	Cells3and9
	Cells4and10
	Cells5and11
	Cells6and12
)

// GPIOSelect selects auxiliary inputs for ADAX/ADAXD.
type GPIOSelect uint8

const (
	GPIOAll GPIOSelect = iota
	GPIO1
	GPIO2
	GPIO3
	GPIO4
	GPIO5
	GPIORef2 // second reference
)

// StatusSelect selects status measurements for ADSTAT/ADSTATD.
type StatusSelect uint8

const (
	StatusAll StatusSelect = iota
	StatusSC
	StatusITMP
	StatusVA
	StatusVD
)

// WithMode sets MD[1:0] (bits 8:7).
func (c Command) WithMode(md Mode) Command { return c | Command(md&0x3)<<7 }

// WithPullUp sets PUP (bit 6).
func (c Command) WithPullUp(pup PullUp) Command { return c | Command(pup&0x1)<<6 }

// WithSelfTest sets ST[1:0] (bits 6:5).
func (c Command) WithSelfTest(st SelfTest) Command { return c | Command(st&0x3)<<5 }

// WithDischarge sets DCP (bit 4).
func (c Command) WithDischarge(dcp Discharge) Command { return c | Command(dcp&0x1)<<4 }

// WithCells sets CH[2:0].
func (c Command) WithCells(ch CellSelect) Command { return c | Command(ch&0x7) }

// WithGPIO sets CHG[2:0].
func (c Command) WithGPIO(chg GPIOSelect) Command { return c | Command(chg&0x7) }

// WithStatus sets CHST[2:0].
func (c Command) WithStatus(chst StatusSelect) Command { return c | Command(chst&0x7) }

// encodeCommand writes the 4-byte command frame into out[:4].
//
// Addressed commands set bit 7 of the first byte and place the 4-bit device
// address in bits 6:3. No public helper issues them; every chain operation is
// a broadcast.
func encodeCommand(cmd Command, addressed bool, addr uint8, out []byte) {
	out[0] = byte(cmd>>8) & 0x07
	if addressed {
		out[0] |= 0x80 | (addr&0x0F)<<3
	}
	out[1] = byte(cmd)
	putPEC(out[:cmdFrame], cmdBytes)
}
