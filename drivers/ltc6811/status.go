package ltc6811

// StatusGroup selects a status register group.
type StatusGroup uint8

const (
	StatusGroupA StatusGroup = iota // SC, ITMP, VA
	StatusGroupB                    // VD, CUV/COV flags, REV, MUXFAIL, THSD
)

// Command returns the read opcode for g. Unknown groups read group A.
func (g StatusGroup) Command() Command {
	if g == StatusGroupB {
		return RDSTATB
	}
	return RDSTATA
}

// Str holds both status register groups of one device.
type Str struct {
	SC   uint16 // sum of cells, 20 × 100µV per LSB
	ITMP uint16 // die temperature code
	VA   uint16 // analog supply code
	VD   uint16 // digital supply code

	CUV uint16 // under-voltage flag per cell, bit 0 = cell 1
	COV uint16 // over-voltage flag per cell, bit 0 = cell 1

	REV     uint8 // silicon revision (4 bits)
	RSVD    uint8 // reserved (2 bits)
	MUXFAIL bool  // multiplexer self-test failed
	THSD    bool  // thermal shutdown occurred
}

func (s *Str) unpackA(p []byte) {
	s.SC = le16(p[0:])
	s.ITMP = le16(p[2:])
	s.VA = le16(p[4:])
}

func (s *Str) unpackB(p []byte) {
	s.VD = le16(p[0:])
	var cuv, cov uint16
	for j := 0; j < 3; j++ {
		b := p[2+j]
		for k := 0; k < 4; k++ {
			cell := uint(4*j + k)
			cuv |= uint16(b>>(2*k)&1) << cell
			cov |= uint16(b>>(2*k+1)&1) << cell
		}
	}
	s.CUV = cuv
	s.COV = cov
	s.REV = p[5] >> 4
	s.RSVD = p[5] >> 2 & 0x3
	s.MUXFAIL = p[5]&0x02 != 0
	s.THSD = p[5]&0x01 != 0
}

func (s *Str) packA(p []byte) {
	putLE16(p[0:], s.SC)
	putLE16(p[2:], s.ITMP)
	putLE16(p[4:], s.VA)
}

func (s *Str) packB(p []byte) {
	putLE16(p[0:], s.VD)
	for j := 0; j < 3; j++ {
		var b byte
		for k := 0; k < 4; k++ {
			cell := uint(4*j + k)
			b |= byte(s.CUV>>cell&1) << (2 * k)
			b |= byte(s.COV>>cell&1) << (2*k + 1)
		}
		p[2+j] = b
	}
	p[5] = (s.REV&0x0F)<<4 | (s.RSVD&0x3)<<2 | b2u(s.MUXFAIL)<<1 | b2u(s.THSD)
}

// EncodeRDSTAT encodes the read command for status group g.
func (c *Chain) EncodeRDSTAT(g StatusGroup, out []byte) int { return c.encodeRead(g.Command(), out) }

// DecodeRDSTAT decodes status group g into out, one entry per device. Only the
// fields of group g are written. An unknown group decodes nothing.
func (c *Chain) DecodeRDSTAT(g StatusGroup, data []byte, out []Str) int {
	if len(out) < c.Devices() {
		return 0
	}
	switch g {
	case StatusGroupA:
		return c.decodeRead(data, func(i int, p []byte) { out[i].unpackA(p) })
	case StatusGroupB:
		return c.decodeRead(data, func(i int, p []byte) { out[i].unpackB(p) })
	default:
		return 0
	}
}

// PackStatus writes the 6-byte payload of group g for s into p. It is the
// device-side view of the register and is used by chain simulators.
func PackStatus(g StatusGroup, s *Str, p []byte) {
	if len(p) < regBytes {
		return
	}
	if g == StatusGroupB {
		s.packB(p)
		return
	}
	s.packA(p)
}
