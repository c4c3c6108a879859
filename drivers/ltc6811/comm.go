package ltc6811

// I²C master codes written to COMM (ICOM/FCOM nibbles).
const (
	I2CWriteStart      uint8 = 0x6 // START, then data
	I2CWriteStop       uint8 = 0x1 // STOP
	I2CWriteBlank      uint8 = 0x0 // data only
	I2CWriteNoTransmit uint8 = 0x7 // release SDA/SCL, ignore the rest

	I2CWriteACK      uint8 = 0x0 // master ACK on the ninth clock
	I2CWriteNACK     uint8 = 0x8 // master NACK
	I2CWriteNACKStop uint8 = 0x9 // master NACK then STOP
)

// SPI master codes written to COMM.
const (
	SPIWriteCSLow      uint8 = 0x8 // CSBM low
	SPIWriteCSFalling  uint8 = 0xA // CSBM high then low
	SPIWriteCSHigh     uint8 = 0x9 // CSBM high
	SPIWriteNoTransmit uint8 = 0xF // release the port, ignore the rest

	SPIWriteHoldLow  uint8 = 0x0 // keep CSBM low after the byte
	SPIWriteHoldLowB uint8 = 0x8 // same as SPIWriteHoldLow
	SPIWriteRelease  uint8 = 0x9 // CSBM high after the byte
)

// Codes read back from COMM after an I²C transfer.
const (
	I2CReadStart      uint8 = 0x6 // master generated START
	I2CReadStop       uint8 = 0x1 // master generated STOP
	I2CReadBlank      uint8 = 0x0 // SDA held low between bytes
	I2CReadNoTransmit uint8 = 0x7 // SDA held high between bytes

	I2CReadMasterACK     uint8 = 0x0
	I2CReadSlaveACK      uint8 = 0x7
	I2CReadSlaveNACK     uint8 = 0xF
	I2CReadSlaveACKStop  uint8 = 0x1
	I2CReadSlaveNACKStop uint8 = 0x9
)

// Codes read back from COMM after an SPI transfer.
const (
	SPIReadICOM uint8 = 0x7
	SPIReadFCOM uint8 = 0xF
)

// Comm is the COMM register group of one device: three bytes for the I²C/SPI
// master on GPIO3..5, each with a leading (ICOM) and trailing (FCOM) code.
type Comm struct {
	ICOM [CommDataBytes]uint8
	Data [CommDataBytes]uint8
	FCOM [CommDataBytes]uint8
}

// Pack writes the 6-byte register payload of m into p[:6].
func (m *Comm) Pack(p []byte) {
	for j := 0; j < CommDataBytes; j++ {
		p[2*j] = (m.ICOM[j]&0x0F)<<4 | m.Data[j]>>4
		p[2*j+1] = (m.Data[j]&0x0F)<<4 | m.FCOM[j]&0x0F
	}
}

// Unpack assigns every field of m from the payload in p[:6].
func (m *Comm) Unpack(p []byte) {
	for j := 0; j < CommDataBytes; j++ {
		m.ICOM[j] = p[2*j] >> 4
		m.Data[j] = p[2*j]<<4 | p[2*j+1]>>4
		m.FCOM[j] = p[2*j+1] & 0x0F
	}
}

// EncodeWRCOMM encodes a WRCOMM transaction, one Comm per device.
func (c *Chain) EncodeWRCOMM(comm []Comm, out []byte) int {
	if len(comm) < c.Devices() {
		return 0
	}
	return c.encodeWrite(WRCOMM, out, func(i int, p []byte) { comm[i].Pack(p) })
}

// EncodeRDCOMM encodes the RDCOMM command.
func (c *Chain) EncodeRDCOMM(out []byte) int { return c.encodeRead(RDCOMM, out) }

// DecodeRDCOMM decodes RDCOMM data, one Comm per device.
func (c *Chain) DecodeRDCOMM(data []byte, out []Comm) int {
	if len(out) < c.Devices() {
		return 0
	}
	return c.decodeRead(data, func(i int, p []byte) { out[i].Unpack(p) })
}

// EncodeSTCOMM encodes STCOMM followed by the dummy bytes that clock the
// bridge transfer out.
func (c *Chain) EncodeSTCOMM(out []byte) int {
	if len(out) < StcommBufferSize(c.Devices()) {
		return 0
	}
	n := c.encodeRead(STCOMM, out)
	if n == 0 {
		return 0
	}
	for i := n; i < n+StcommCycles; i++ {
		out[i] = 0xFF
	}
	return n + StcommCycles
}
