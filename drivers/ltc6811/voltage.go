package ltc6811

// CellGroup selects a cell voltage register group.
type CellGroup uint8

const (
	CellGroupA CellGroup = iota // C1..C3
	CellGroupB                  // C4..C6
	CellGroupC                  // C7..C9
	CellGroupD                  // C10..C12
)

var cellGroupCmd = [CellGroups]Command{RDCVA, RDCVB, RDCVC, RDCVD}

// Command returns the read opcode for g. Unknown groups read group A.
func (g CellGroup) Command() Command {
	if int(g) < len(cellGroupCmd) {
		return cellGroupCmd[g]
	}
	return RDCVA
}

// AuxGroup selects an auxiliary register group.
type AuxGroup uint8

const (
	AuxGroupA AuxGroup = iota // G1..G3
	AuxGroupB                 // G4, G5, REF
)

var auxGroupCmd = [AuxGroups]Command{RDAUXA, RDAUXB}

// Command returns the read opcode for g. Unknown groups read group A.
func (g AuxGroup) Command() Command {
	if int(g) < len(auxGroupCmd) {
		return auxGroupCmd[g]
	}
	return RDAUXA
}

// EncodeRDCV encodes the read command for cell group g.
func (c *Chain) EncodeRDCV(g CellGroup, out []byte) int { return c.encodeRead(g.Command(), out) }

// DecodeRDCV decodes one cell group. out[3*i+k] receives the k-th code of
// device i; it must hold 3 codes per device.
func (c *Chain) DecodeRDCV(data []byte, out []uint16) int {
	return c.decodeCodes(data, out, CellsPerGroup)
}

// EncodeRDAUX encodes the read command for auxiliary group g.
func (c *Chain) EncodeRDAUX(g AuxGroup, out []byte) int { return c.encodeRead(g.Command(), out) }

// DecodeRDAUX decodes one auxiliary group with the same layout as DecodeRDCV.
func (c *Chain) DecodeRDAUX(data []byte, out []uint16) int {
	return c.decodeCodes(data, out, AuxPerGroup)
}

func (c *Chain) decodeCodes(data []byte, out []uint16, per int) int {
	if len(out) < per*c.Devices() {
		return 0
	}
	return c.decodeRead(data, func(i int, p []byte) {
		for k := 0; k < per; k++ {
			out[i*per+k] = le16(p[2*k:])
		}
	})
}

func le16(p []byte) uint16 { return uint16(p[0]) | uint16(p[1])<<8 }

func putLE16(p []byte, v uint16) {
	p[0] = byte(v)
	p[1] = byte(v >> 8)
}
