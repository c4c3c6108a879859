// Package ltc6811 encodes and decodes the SPI frames of a daisy chain of
// LTC6811 multicell battery monitors.
//
// Design notes (datasheet references):
// • SPI mode 3, ≤1MHz; isoSPI chains shift data through every device.
// • Command frame: 2 command bytes + PEC15 (big-endian).
// • Register frame: 6 data bytes + PEC15, one frame per device.
// • Writes go out in reverse chain order (last device first); reads come back
//   in chain order (device 0 first).
// • Every frame carries its own PEC; a bad frame only drops its own device.
//
// The Chain codecs are pure and allocation-free. Device binds a Chain to a
// tinygo.org/x/drivers SPI bus.
package ltc6811

import "time"

// ---------------- Frame geometry ----------------

const (
	cmdBytes   = 2
	pecBytes   = 2
	regBytes   = 6
	frameBytes = regBytes + pecBytes
	cmdFrame   = cmdBytes + pecBytes

	// StcommCycles is the number of dummy bytes clocked after STCOMM so the
	// I²C/SPI bridge can finish (3 bytes × 24 clocks).
	StcommCycles = 72
)

// Per-device register geometry.
const (
	CellsPerGroup  = 3
	CellGroups     = 4
	CellsPerDevice = CellsPerGroup * CellGroups // 12

	AuxPerGroup  = 3
	AuxGroups    = 2
	AuxPerDevice = AuxPerGroup * AuxGroups // G1..G5 + REF

	SctrlPerDevice = 12
	PWMPerDevice   = 12
	CommDataBytes  = 3
)

// Bus timing.
const (
	SPIMode      = 3
	MaxSPIHz     = 1_000_000
	IdleTimeout  = 5 * time.Millisecond    // isoSPI goes IDLE after tIDLE
	SleepTimeout = 2000 * time.Millisecond // core goes to SLEEP after tSLEEP
	WakeTime     = 400 * time.Microsecond  // tWAKE upper bound
)

// ---------------- Chain ----------------

// Chain describes a daisy chain of Count devices. It carries no other state.
type Chain struct {
	Count int
}

// NewChain returns a chain of count devices.
func NewChain(count int) *Chain {
	if count < 0 {
		count = 0
	}
	return &Chain{Count: count}
}

// Devices returns the device count; a nil chain has none.
func (c *Chain) Devices() int {
	if c == nil || c.Count < 0 {
		return 0
	}
	return c.Count
}

// ---------------- Buffer sizes ----------------

// WriteBufferSize is the length of a write transaction for n devices.
func WriteBufferSize(n int) int { return cmdFrame + frameBytes*n }

// ReadBufferSize is the length of a read command.
func ReadBufferSize(n int) int { return cmdFrame }

// DataBufferSize is the length of the data clocked back by a read.
func DataBufferSize(n int) int { return frameBytes * n }

// PollBufferSize is the length of a PLADC command.
func PollBufferSize(n int) int { return cmdFrame }

// StcommBufferSize is the length of an STCOMM transaction including dummy bytes.
func StcommBufferSize(n int) int { return cmdFrame + StcommCycles }

func (c *Chain) WriteBufferSize() int  { return WriteBufferSize(c.Devices()) }
func (c *Chain) ReadBufferSize() int   { return ReadBufferSize(c.Devices()) }
func (c *Chain) DataBufferSize() int   { return DataBufferSize(c.Devices()) }
func (c *Chain) PollBufferSize() int   { return PollBufferSize(c.Devices()) }
func (c *Chain) StcommBufferSize() int { return StcommBufferSize(c.Devices()) }

// ---------------- Shared frame walkers ----------------

// encodeWrite emits cmd followed by one frame per device in reverse chain
// order. fill packs device i into a 6-byte payload.
func (c *Chain) encodeWrite(cmd Command, out []byte, fill func(i int, p []byte)) int {
	n := c.Devices()
	if n == 0 || len(out) < WriteBufferSize(n) {
		return 0
	}
	encodeCommand(cmd, false, 0, out)
	off := cmdFrame
	for i := n - 1; i >= 0; i-- {
		f := out[off : off+frameBytes]
		fill(i, f[:regBytes])
		putPEC(f, regBytes)
		off += frameBytes
	}
	return off
}

// encodeRead emits a single broadcast command frame.
func (c *Chain) encodeRead(cmd Command, out []byte) int {
	if c.Devices() == 0 || len(out) < cmdFrame {
		return 0
	}
	encodeCommand(cmd, false, 0, out)
	return cmdFrame
}

// decodeRead walks data in chain order and hands every frame with a valid PEC
// to take. It returns the number of bytes accepted.
func (c *Chain) decodeRead(data []byte, take func(i int, p []byte)) int {
	n := c.Devices()
	if n == 0 || len(data) < DataBufferSize(n) {
		return 0
	}
	accepted := 0
	for i := 0; i < n; i++ {
		f := data[i*frameBytes : (i+1)*frameBytes]
		if !checkPEC(f) {
			continue
		}
		take(i, f[:regBytes])
		accepted += frameBytes
	}
	return accepted
}
