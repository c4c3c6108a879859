package ltc6811

// Conversion start, clear and diagnostic commands. All are broadcast and
// produce a single command frame.

// EncodeADCV starts a cell voltage conversion.
func (c *Chain) EncodeADCV(md Mode, dcp Discharge, ch CellSelect, out []byte) int {
	return c.encodeRead(ADCV.WithMode(md).WithDischarge(dcp).WithCells(ch), out)
}

// EncodeADOW starts an open-wire conversion with pull-up or pull-down current.
func (c *Chain) EncodeADOW(md Mode, pup PullUp, dcp Discharge, ch CellSelect, out []byte) int {
	return c.encodeRead(ADOW.WithMode(md).WithPullUp(pup).WithDischarge(dcp).WithCells(ch), out)
}

// EncodeCVST starts the cell voltage self test.
func (c *Chain) EncodeCVST(md Mode, st SelfTest, out []byte) int {
	return c.encodeRead(CVST.WithMode(md).WithSelfTest(st), out)
}

// EncodeADOL starts the ADC overlap check on cell 7.
func (c *Chain) EncodeADOL(md Mode, dcp Discharge, out []byte) int {
	return c.encodeRead(ADOL.WithMode(md).WithDischarge(dcp), out)
}

// EncodeADAX starts a GPIO/reference conversion.
func (c *Chain) EncodeADAX(md Mode, chg GPIOSelect, out []byte) int {
	return c.encodeRead(ADAX.WithMode(md).WithGPIO(chg), out)
}

// EncodeADAXD starts a GPIO conversion with digital redundancy.
func (c *Chain) EncodeADAXD(md Mode, chg GPIOSelect, out []byte) int {
	return c.encodeRead(ADAXD.WithMode(md).WithGPIO(chg), out)
}

// EncodeAXST starts the auxiliary self test.
func (c *Chain) EncodeAXST(md Mode, st SelfTest, out []byte) int {
	return c.encodeRead(AXST.WithMode(md).WithSelfTest(st), out)
}

// EncodeADSTAT starts a status group conversion.
func (c *Chain) EncodeADSTAT(md Mode, chst StatusSelect, out []byte) int {
	return c.encodeRead(ADSTAT.WithMode(md).WithStatus(chst), out)
}

// EncodeADSTATD starts a status conversion with digital redundancy.
func (c *Chain) EncodeADSTATD(md Mode, chst StatusSelect, out []byte) int {
	return c.encodeRead(ADSTATD.WithMode(md).WithStatus(chst), out)
}

// EncodeSTATST starts the status self test.
func (c *Chain) EncodeSTATST(md Mode, st SelfTest, out []byte) int {
	return c.encodeRead(STATST.WithMode(md).WithSelfTest(st), out)
}

// EncodeADCVAX converts all cells plus GPIO1 and GPIO2.
func (c *Chain) EncodeADCVAX(md Mode, dcp Discharge, out []byte) int {
	return c.encodeRead(ADCVAX.WithMode(md).WithDischarge(dcp), out)
}

// EncodeADCVSC converts all cells plus the sum of cells.
func (c *Chain) EncodeADCVSC(md Mode, dcp Discharge, out []byte) int {
	return c.encodeRead(ADCVSC.WithMode(md).WithDischarge(dcp), out)
}

func (c *Chain) EncodeCLRCELL(out []byte) int  { return c.encodeRead(CLRCELL, out) }
func (c *Chain) EncodeCLRAUX(out []byte) int   { return c.encodeRead(CLRAUX, out) }
func (c *Chain) EncodeCLRSTAT(out []byte) int  { return c.encodeRead(CLRSTAT, out) }
func (c *Chain) EncodeCLRSCTRL(out []byte) int { return c.encodeRead(CLRSCTRL, out) }
func (c *Chain) EncodeSTSCTRL(out []byte) int  { return c.encodeRead(STSCTRL, out) }
func (c *Chain) EncodeDIAGN(out []byte) int    { return c.encodeRead(DIAGN, out) }

// EncodePLADC encodes the conversion poll command. After it, keep CS low and
// clock bytes until PladcCheck reports completion.
func (c *Chain) EncodePLADC(out []byte) int { return c.encodeRead(PLADC, out) }

// PladcCheck reports whether a byte clocked after PLADC signals a finished
// conversion. SDO is held low while the ADC is busy.
func PladcCheck(b byte) bool { return b == 0xFF }
