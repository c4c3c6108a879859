package ltc6811

import "time"

// DischargeTimeout is the DCTO field of CFGR5.
type DischargeTimeout uint8

const (
	DCTOOff DischargeTimeout = iota
	DCTO30s
	DCTO1Min
	DCTO2Min
	DCTO3Min
	DCTO4Min
	DCTO5Min
	DCTO10Min
	DCTO15Min
	DCTO20Min
	DCTO30Min
	DCTO40Min
	DCTO60Min
	DCTO75Min
	DCTO90Min
	DCTO120Min
)

var dctoMinutes = [16]uint8{0, 0, 1, 2, 3, 4, 5, 10, 15, 20, 30, 40, 60, 75, 90, 120}

// Duration returns the nominal discharge timeout. DCTOOff returns 0.
func (t DischargeTimeout) Duration() time.Duration {
	t &= 0x0F
	if t == DCTO30s {
		return 30 * time.Second
	}
	return time.Duration(dctoMinutes[t]) * time.Minute
}

// DischargeTimeoutFor returns the shortest timeout that covers d. Anything
// beyond 120 minutes saturates; d <= 0 disables the timer.
func DischargeTimeoutFor(d time.Duration) DischargeTimeout {
	if d <= 0 {
		return DCTOOff
	}
	for t := DCTO30s; t < DCTO120Min; t++ {
		if t.Duration() >= d {
			return t
		}
	}
	return DCTO120Min
}

// Cfgr is the per-device configuration register group (CFGR0..CFGR5).
type Cfgr struct {
	ADCOPT bool             // ADC mode option
	DTEN   bool             // discharge timer enable (read-only on the chip)
	REFON  bool             // keep the reference powered between conversions
	GPIO   uint8            // GPIO5..1 pull-down off (5 bits)
	VUV    uint16           // under-voltage threshold code (12 bits)
	VOV    uint16           // over-voltage threshold code (12 bits)
	DCC    uint16           // discharge cell 1..12, bit 0 = cell 1
	DCTO   DischargeTimeout // discharge timeout (4 bits)
}

// Pack writes the 6-byte register payload of c into p[:6].
func (c *Cfgr) Pack(p []byte) {
	p[0] = (c.GPIO&0x1F)<<3 | b2u(c.REFON)<<2 | b2u(c.DTEN)<<1 | b2u(c.ADCOPT)
	p[1] = byte(c.VUV)
	p[2] = byte(c.VOV&0x0F)<<4 | byte(c.VUV>>8)&0x0F
	p[3] = byte(c.VOV >> 4)
	p[4] = byte(c.DCC)
	p[5] = byte(c.DCTO&0x0F)<<4 | byte(c.DCC>>8)&0x0F
}

// Unpack assigns every field of c from the payload in p[:6].
func (c *Cfgr) Unpack(p []byte) {
	c.ADCOPT = p[0]&0x01 != 0
	c.DTEN = p[0]&0x02 != 0
	c.REFON = p[0]&0x04 != 0
	c.GPIO = p[0] >> 3
	c.VUV = uint16(p[1]) | uint16(p[2]&0x0F)<<8
	c.VOV = uint16(p[2]>>4) | uint16(p[3])<<4
	c.DCC = uint16(p[4]) | uint16(p[5]&0x0F)<<8
	c.DCTO = DischargeTimeout(p[5] >> 4)
}

// EncodeWRCFG encodes a WRCFGA transaction. cfg holds one entry per device in
// chain order.
func (c *Chain) EncodeWRCFG(cfg []Cfgr, out []byte) int {
	if len(cfg) < c.Devices() {
		return 0
	}
	return c.encodeWrite(WRCFGA, out, func(i int, p []byte) { cfg[i].Pack(p) })
}

// EncodeRDCFG encodes the RDCFGA command.
func (c *Chain) EncodeRDCFG(out []byte) int { return c.encodeRead(RDCFGA, out) }

// DecodeRDCFG decodes RDCFGA data into out, one entry per device.
func (c *Chain) DecodeRDCFG(data []byte, out []Cfgr) int {
	if len(out) < c.Devices() {
		return 0
	}
	return c.decodeRead(data, func(i int, p []byte) { out[i].Unpack(p) })
}

func b2u(b bool) byte {
	if b {
		return 1
	}
	return 0
}
