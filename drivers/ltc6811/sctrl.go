package ltc6811

// S pin control codes (SCTL nibble). Codes 1..7 send that many pulses.
const (
	SctrlHigh uint8 = 0x0 // drive S pin high (de-asserted)
	SctrlLow  uint8 = 0x8 // drive S pin low (asserted), any 1xxx code
)

// SctrlPulses returns the code that sends n pulses on the S pin, n in 1..7.
func SctrlPulses(n int) uint8 {
	if n <= 0 {
		return SctrlHigh
	}
	if n > 7 {
		n = 7
	}
	return uint8(n)
}

// EncodeWRSCTRL encodes a WRSCTRL transaction. sctl holds 12 nibbles per
// device, device-major in chain order.
func (c *Chain) EncodeWRSCTRL(sctl []uint8, out []byte) int {
	return c.encodeNibbles(WRSCTRL, sctl, SctrlPerDevice, out)
}

// EncodeRDSCTRL encodes the RDSCTRL command.
func (c *Chain) EncodeRDSCTRL(out []byte) int { return c.encodeRead(RDSCTRL, out) }

// DecodeRDSCTRL decodes RDSCTRL data into 12 nibbles per device.
func (c *Chain) DecodeRDSCTRL(data []byte, sctl []uint8) int {
	return c.decodeNibbles(data, sctl, SctrlPerDevice)
}

// EncodeWRPWM encodes a WRPWM transaction. pwm holds 12 duty nibbles per
// device (0 = off, 15 = always on within the 30s period).
func (c *Chain) EncodeWRPWM(pwm []uint8, out []byte) int {
	return c.encodeNibbles(WRPWM, pwm, PWMPerDevice, out)
}

// EncodeRDPWM encodes the RDPWM command.
func (c *Chain) EncodeRDPWM(out []byte) int { return c.encodeRead(RDPWM, out) }

// DecodeRDPWM decodes RDPWM data into 12 nibbles per device.
func (c *Chain) DecodeRDPWM(data []byte, pwm []uint8) int {
	return c.decodeNibbles(data, pwm, PWMPerDevice)
}

// Byte j holds nibble 2j in its low half and nibble 2j+1 in its high half.
func (c *Chain) encodeNibbles(cmd Command, v []uint8, per int, out []byte) int {
	if len(v) < per*c.Devices() {
		return 0
	}
	return c.encodeWrite(cmd, out, func(i int, p []byte) {
		base := v[i*per:]
		for j := 0; j < regBytes; j++ {
			p[j] = base[2*j]&0x0F | (base[2*j+1]&0x0F)<<4
		}
	})
}

func (c *Chain) decodeNibbles(data []byte, v []uint8, per int) int {
	if len(v) < per*c.Devices() {
		return 0
	}
	return c.decodeRead(data, func(i int, p []byte) {
		base := v[i*per:]
		for j := 0; j < regBytes; j++ {
			base[2*j] = p[j] & 0x0F
			base[2*j+1] = p[j] >> 4
		}
	})
}
