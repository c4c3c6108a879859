package ltc6811sim

import "bmscode-go/drivers/ltc6811"

// Option bits carried by conversion commands.
const (
	optMD  = 0x180
	optPUP = 0x040
	optST  = 0x060
	optDCP = 0x010
	optCH  = 0x007
)

type conversion struct {
	base ltc6811.Command
	opts ltc6811.Command
}

// Ordered so that a command never matches a pattern with a wider option mask
// that folds its fixed bits away.
var conversions = [...]conversion{
	{ltc6811.ADCVAX, optMD | optDCP},
	{ltc6811.ADCVSC, optMD | optDCP},
	{ltc6811.CVST, optMD | optST},
	{ltc6811.AXST, optMD | optST},
	{ltc6811.STATST, optMD | optST},
	{ltc6811.ADOL, optMD | optDCP},
	{ltc6811.ADOW, optMD | optPUP | optDCP | optCH},
	{ltc6811.ADCV, optMD | optDCP | optCH},
	{ltc6811.ADAX, optMD | optCH},
	{ltc6811.ADAXD, optMD | optCH},
	{ltc6811.ADSTAT, optMD | optCH},
	{ltc6811.ADSTATD, optMD | optCH},
}

// classify splits a conversion command into its opcode and option bits.
func classify(cmd ltc6811.Command) (ltc6811.Command, bool) {
	for _, cv := range conversions {
		if cmd&^cv.opts == cv.base {
			return cv.base, true
		}
	}
	return 0, false
}

// adc runs a conversion command. Results land in the registers at once; the
// busy count only shapes what PLADC reports.
func (c *Chain) adc(cmd ltc6811.Command) {
	base, ok := classify(cmd)
	if !ok {
		return
	}
	md := ltc6811.Mode(cmd >> 7 & 0x3)
	st := ltc6811.SelfTest(cmd >> 5 & 0x3)
	sel := int(cmd & optCH)
	switch base {
	case ltc6811.ADCV, ltc6811.ADOW:
		c.convert(func(ch *Chip) { ch.convertCells(sel) })
	case ltc6811.ADOL:
		c.convert(func(ch *Chip) { ch.convertCells(0) })
	case ltc6811.ADCVSC:
		c.convert(func(ch *Chip) {
			ch.convertCells(0)
			ch.convertStatus(1)
		})
	case ltc6811.ADCVAX:
		c.convert(func(ch *Chip) {
			ch.convertCells(0)
			ch.convertGPIO(1)
			ch.convertGPIO(2)
		})
	case ltc6811.ADAX, ltc6811.ADAXD:
		c.convert(func(ch *Chip) { ch.convertGPIO(sel) })
	case ltc6811.ADSTAT, ltc6811.ADSTATD:
		c.convert(func(ch *Chip) { ch.convertStatus(sel) })
	case ltc6811.CVST:
		c.convert(func(ch *Chip) { ch.selfTest(ch.cv[:], md, st) })
	case ltc6811.AXST:
		c.convert(func(ch *Chip) { ch.selfTest(ch.aux[:], md, st) })
	case ltc6811.STATST:
		c.convert(func(ch *Chip) { ch.selfTest(ch.stat[:1], md, st) })
	}
}

func (c *Chain) convert(f func(ch *Chip)) {
	c.each(f)
	c.busy = c.ConversionPolls
}

// convertCells converts all cells (sel 0) or cells sel and sel+6.
func (ch *Chip) convertCells(sel int) {
	for k := 0; k < ltc6811.CellsPerDevice; k++ {
		if sel != 0 && k%6 != sel-1 {
			continue
		}
		g, j := k/ltc6811.CellsPerGroup, k%ltc6811.CellsPerGroup
		putLE16(ch.cv[g][2*j:], ch.Cells[k])
	}
}

// convertGPIO converts all auxiliary inputs (sel 0) or input sel (1..6).
func (ch *Chip) convertGPIO(sel int) {
	for k := 0; k < ltc6811.AuxPerDevice; k++ {
		if sel != 0 && k != sel-1 {
			continue
		}
		g, j := k/ltc6811.AuxPerGroup, k%ltc6811.AuxPerGroup
		putLE16(ch.aux[g][2*j:], ch.GPIO[k])
	}
}

// convertStatus converts all status items (sel 0) or one of SC, ITMP, VA, VD.
// Group B flags are refreshed from the configured thresholds.
func (ch *Chip) convertStatus(sel int) {
	var s ltc6811.Str
	s.SC, s.ITMP, s.VA = le16(ch.stat[0][0:]), le16(ch.stat[0][2:]), le16(ch.stat[0][4:])
	s.VD = le16(ch.stat[1][0:])
	var sum uint32
	for _, v := range ch.Cells {
		sum += uint32(v)
	}
	if sel == 0 || sel == int(ltc6811.StatusSC) {
		s.SC = uint16(sum / 20)
	}
	if sel == 0 || sel == int(ltc6811.StatusITMP) {
		s.ITMP = ch.ITMP
	}
	if sel == 0 || sel == int(ltc6811.StatusVA) {
		s.VA = ch.VA
	}
	if sel == 0 || sel == int(ltc6811.StatusVD) {
		s.VD = ch.VD
	}
	var cfg ltc6811.Cfgr
	cfg.Unpack(ch.cfg[:])
	uv := (uint32(cfg.VUV) + 1) * 16
	ov := uint32(cfg.VOV) * 16
	for k, v := range ch.Cells {
		if uint32(v) <= uv {
			s.CUV |= 1 << uint(k)
		}
		if uint32(v) > ov {
			s.COV |= 1 << uint(k)
		}
	}
	s.REV = ch.REV
	s.MUXFAIL = ch.stat[1][5]&0x02 != 0
	ltc6811.PackStatus(ltc6811.StatusGroupA, &s, ch.stat[0][:])
	ltc6811.PackStatus(ltc6811.StatusGroupB, &s, ch.stat[1][:])
}

func (ch *Chip) selfTest(groups [][reg]byte, md ltc6811.Mode, st ltc6811.SelfTest) {
	adcopt := ch.cfg[0]&0x01 != 0
	code := ltc6811.SelfTestCode(md, adcopt, st)
	for g := range groups {
		for j := 0; j < 3; j++ {
			putLE16(groups[g][2*j:], code)
		}
	}
}

func le16(p []byte) uint16 { return uint16(p[0]) | uint16(p[1])<<8 }

func putLE16(p []byte, v uint16) {
	p[0] = byte(v)
	p[1] = byte(v >> 8)
}
